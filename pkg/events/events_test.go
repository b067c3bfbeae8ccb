package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestBus_SessionHandlers(t *testing.T) {
	bus := NewBus(testLogger())

	var started, completed, failed []string
	bus.OnSessionStarted(func(_ context.Context, s models.ResolutionSession) { started = append(started, s.ID) })
	bus.OnSessionCompleted(func(_ context.Context, s models.ResolutionSession) { completed = append(completed, s.ID) })
	bus.OnSessionFailed(func(_ context.Context, s models.ResolutionSession) { failed = append(failed, s.ID) })

	ctx := context.Background()
	bus.EmitSessionStarted(ctx, models.ResolutionSession{ID: "s1"})
	bus.EmitSessionCompleted(ctx, models.ResolutionSession{ID: "s1"})
	bus.EmitSessionFailed(ctx, models.ResolutionSession{ID: "s2"})

	assert.Equal(t, []string{"s1"}, started)
	assert.Equal(t, []string{"s1"}, completed)
	assert.Equal(t, []string{"s2"}, failed)
}

func TestBus_HandlersReceiveCopies(t *testing.T) {
	bus := NewBus(testLogger())

	bus.OnMergeCompleted(func(_ context.Context, r models.MergeResult) {
		r.NewEntity.Name = "mutated"
		r.FieldsConflicted[0] = "mutated"
	})

	entity := models.NewPerson("a", "Ada", models.PersonFields{})
	result := models.MergeResult{Success: true, NewEntity: entity, FieldsConflicted: []string{"name"}}
	bus.EmitMergeCompleted(context.Background(), result)

	assert.Equal(t, "Ada", entity.Name)
	assert.Equal(t, "name", result.FieldsConflicted[0])
}

func TestBus_PanickingHandlerIsIsolated(t *testing.T) {
	bus := NewBus(testLogger())

	called := false
	bus.OnSessionCompleted(func(context.Context, models.ResolutionSession) { panic("boom") })
	bus.OnSessionCompleted(func(context.Context, models.ResolutionSession) { called = true })

	assert.NotPanics(t, func() {
		bus.EmitSessionCompleted(context.Background(), models.ResolutionSession{ID: "s"})
	})
	assert.True(t, called)
}

func TestBus_MatchesFound(t *testing.T) {
	bus := NewBus(testLogger())

	var got []models.EntityMatch
	calls := 0
	bus.OnMatchesFound(func(_ context.Context, m []models.EntityMatch) {
		calls++
		got = m
	})

	bus.EmitMatchesFound(context.Background(), nil)
	assert.Equal(t, 0, calls)

	bus.EmitMatchesFound(context.Background(), []models.EntityMatch{{Entity1ID: "a", Entity2ID: "b"}})
	assert.Equal(t, 1, calls)
	assert.Len(t, got, 1)
}

type fakePublisher struct {
	msgs []kafka.Message
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func TestKafkaPublisher(t *testing.T) {
	bus := NewBus(testLogger())
	pub := &fakePublisher{}
	kp := NewKafkaPublisher(bus, pub, testLogger())
	kp.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	ctx := context.Background()
	bus.EmitSessionCompleted(ctx, models.ResolutionSession{ID: "s1", Status: models.SessionStatusCompleted})
	bus.EmitMergeCompleted(ctx, models.MergeResult{Success: true, SurvivorID: "a", MergedID: "b"})

	require.Len(t, pub.msgs, 2)
	assert.Equal(t, "s1", pub.msgs[0].Key)
	assert.Equal(t, SessionCompleted, pub.msgs[0].Headers["event_type"])
	assert.Equal(t, "a", pub.msgs[1].Key)

	var env struct {
		EventType     string             `json:"event_type"`
		SchemaVersion string             `json:"schema_version"`
		Timestamp     time.Time          `json:"timestamp"`
		Payload       models.MergeResult `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(pub.msgs[1].Value, &env))
	assert.Equal(t, MergeCompleted, env.EventType)
	assert.Equal(t, SchemaVersion, env.SchemaVersion)
	assert.Equal(t, "b", env.Payload.MergedID)
}

func TestKafkaPublisher_ErrorsAreSwallowed(t *testing.T) {
	bus := NewBus(testLogger())
	NewKafkaPublisher(bus, &fakePublisher{err: errors.New("down")}, testLogger())

	assert.NotPanics(t, func() {
		bus.EmitSessionStarted(context.Background(), models.ResolutionSession{ID: "s"})
	})
}
