package app

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/startup"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.StoreBackend = "memory"
	cfg.RedisEnabled = false
	cfg.GraphDBEnabled = false
	cfg.KafkaEnabled = false
	cfg.StartupMaxAttempts = 1
	return cfg
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestApp_MemoryBackend(t *testing.T) {
	a := New(memoryConfig(t), testLogger()).WithSeed(
		models.NewPerson("a", "Alice Anders", models.PersonFields{Emails: []models.EmailAddress{{Email: "x@y.com"}}}),
		models.NewPerson("b", "Bob Brown", models.PersonFields{Emails: []models.EmailAddress{{Email: "x@y.com"}}}),
	)

	ctx := context.Background()
	require.NoError(t, a.Start(ctx, false))
	t.Cleanup(func() { _ = a.Stop(context.Background()) })

	assert.Equal(t, startup.StartupStatusStarted, a.startup.Status(depEngine))
	assert.Equal(t, startup.StartupStatusPending, a.startup.Status(depHTTP))

	session, err := a.Engine().ResolveAll(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, session.MergesExecuted)
}

func TestApp_InvalidResolutionConfig(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.ManualReviewThreshold = 0.99

	a := New(cfg, testLogger())
	assert.Error(t, a.Start(context.Background(), false))
}

func TestApp_ServesHTTP(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Port = 38471
	a := New(cfg, testLogger())

	ctx := context.Background()
	require.NoError(t, a.Start(ctx, true))

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(stopCtx))
	assert.Equal(t, startup.StartupStatusStopped, a.startup.Status(depHTTP))
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug", true)
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = NewLogger("chatty", false)
	assert.Error(t, err)
}
