package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Publisher writes encoded events to a transport
type Publisher interface {
	Publish(ctx context.Context, msgs ...kafka.Message) error
}

// Envelope wraps every published event
type Envelope struct {
	EventType     string    `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	Timestamp     time.Time `json:"timestamp"`
	Payload       any       `json:"payload"`
}

// KafkaPublisher forwards bus events to Kafka
type KafkaPublisher struct {
	publisher Publisher
	logger    ectologger.Logger
	now       func() time.Time
}

// NewKafkaPublisher creates a publisher and subscribes it to the bus
func NewKafkaPublisher(bus *Bus, publisher Publisher, logger ectologger.Logger) *KafkaPublisher {
	p := &KafkaPublisher{
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}

	bus.OnSessionStarted(p.sessionHandler(SessionStarted))
	bus.OnSessionCompleted(p.sessionHandler(SessionCompleted))
	bus.OnSessionFailed(p.sessionHandler(SessionFailed))
	bus.OnMergeCompleted(func(ctx context.Context, result models.MergeResult) {
		p.publish(ctx, MergeCompleted, result.SurvivorID, result)
	})

	return p
}

func (p *KafkaPublisher) sessionHandler(event string) SessionHandler {
	return func(ctx context.Context, session models.ResolutionSession) {
		p.publish(ctx, event, session.ID, session)
	}
}

// publish is best effort; failures are logged and never reach the engine
func (p *KafkaPublisher) publish(ctx context.Context, eventType, key string, payload any) {
	ctx, span := tracing.StartSpan(ctx, "events.KafkaPublisher.publish")
	defer span.End()

	data, err := json.Marshal(Envelope{
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		Timestamp:     p.now(),
		Payload:       payload,
	})
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithField("event_type", eventType).Error("Failed to encode event")
		return
	}

	err = p.publisher.Publish(ctx, kafka.Message{
		Key:   key,
		Value: data,
		Headers: map[string]string{
			"event_type":     eventType,
			"schema_version": SchemaVersion,
		},
	})
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithField("event_type", eventType).Error("Failed to publish event")
	}
}
