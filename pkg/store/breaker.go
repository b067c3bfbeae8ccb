package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/sony/gobreaker"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
)

// BreakerConfig configures the store circuit breaker
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	MinRequests      uint32
	ReadyToTripRatio float64
}

// DefaultBreakerConfig returns default breaker settings
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "entity-store",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		MinRequests:      5,
		ReadyToTripRatio: 0.6,
	}
}

// Breaker wraps a Store with a circuit breaker. Every failure it returns wraps
// models.ErrStoreUnavailable, except not-found results which pass through and do not
// count against the breaker.
type Breaker struct {
	next Store
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker creates a breaker around next
func NewBreaker(next Store, cfg BreakerConfig, logger ectologger.Logger) *Breaker {
	st := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.MinRequests && failureRatio >= cfg.ReadyToTripRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, models.ErrEntityNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			metrics.StoreBreakerState.WithLabelValues(name).Set(float64(to))
			logger.WithFields(map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Store circuit breaker changed state")
		},
	}

	metrics.StoreBreakerState.WithLabelValues(cfg.Name).Set(float64(gobreaker.StateClosed))

	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

// State returns the current breaker state
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func (b *Breaker) Search(ctx context.Context, entityType models.EntityType, limit int) ([]models.EntitySummary, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Search(ctx, entityType, limit)
	})
	if err != nil {
		return nil, unavailable(err)
	}
	return res.([]models.EntitySummary), nil
}

func (b *Breaker) GetAllEntities(ctx context.Context, limit int) ([]models.EntitySummary, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.GetAllEntities(ctx, limit)
	})
	if err != nil {
		return nil, unavailable(err)
	}
	return res.([]models.EntitySummary), nil
}

func (b *Breaker) Get(ctx context.Context, id string) (*models.Entity, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Get(ctx, id)
	})
	if err != nil {
		return nil, unavailable(err)
	}
	return res.(*models.Entity), nil
}

func (b *Breaker) Update(ctx context.Context, id string, update models.EntityUpdate) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Update(ctx, id, update)
	})
	return unavailable(err)
}

func (b *Breaker) Delete(ctx context.Context, id string) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Delete(ctx, id)
	})
	return unavailable(err)
}

func unavailable(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrEntityNotFound),
		errors.Is(err, models.ErrStoreUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
	}
}
