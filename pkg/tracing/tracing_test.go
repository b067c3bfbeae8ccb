package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpan_NoTracer(t *testing.T) {
	SetTracer(nil)
	ctx, span := StartSpan(context.Background(), "noop")
	defer span.End()

	assert.Nil(t, GetActiveSpan(ctx))
	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetTraceParent(ctx))
}

func TestStartSpan_RecordsFailureAndAttributes(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	SetTracer(provider.Tracer("test"))
	t.Cleanup(func() { SetTracer(nil) })

	ctx, span := StartSpan(context.Background(), "resolution.Engine.ResolveAll")
	Annotate(ctx, map[string]string{"session_id": "s-1"})
	Fail(span, errors.New("store down"))
	Fail(span, nil)

	assert.Len(t, GetTraceID(ctx), 32)
	assert.Contains(t, GetTraceParent(ctx), GetTraceID(ctx))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "store down", ended[0].Status().Description)

	var found bool
	for _, kv := range ended[0].Attributes() {
		if string(kv.Key) == "clover.session_id" {
			found = kv.Value.AsString() == "s-1"
		}
	}
	assert.True(t, found)
}
