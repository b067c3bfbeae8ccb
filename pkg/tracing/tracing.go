package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer

// SetTracer installs the tracer used by StartSpan. A nil tracer turns tracing off.
func SetTracer(t trace.Tracer) {
	tracer = t
}

// GetActiveSpan returns the recording span carried by ctx, or nil
func GetActiveSpan(ctx context.Context) trace.Span {
	if tracer == nil {
		return nil
	}
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		return span
	}
	return nil
}

// StartSpan starts a child span. Without a tracer the span already in ctx is returned untouched.
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, spanName)
}

// Fail records err on span and marks it as errored. A nil err is ignored.
func Fail(span trace.Span, err error) {
	if err == nil || span == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Annotate attaches resolution attributes to the active span
func Annotate(ctx context.Context, fields map[string]string) {
	span := GetActiveSpan(ctx)
	if span == nil || len(fields) == 0 {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(fields))
	for k, v := range fields {
		attrs = append(attrs, attribute.String("clover."+k, v))
	}
	span.SetAttributes(attrs...)
}

// GetTraceParent renders the W3C traceparent of the active span for outbound messages
func GetTraceParent(ctx context.Context) string {
	if GetActiveSpan(ctx) == nil {
		return ""
	}
	carrier := propagation.MapCarrier{}
	propagation.TraceContext{}.Inject(ctx, carrier)
	return carrier.Get("traceparent")
}

// GetTraceID returns the trace id of the active span, or ""
func GetTraceID(ctx context.Context) string {
	if span := GetActiveSpan(ctx); span != nil {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
