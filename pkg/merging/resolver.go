// Package merging merges duplicate entities into a surviving record
package merging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/store"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Config controls merge behavior
type Config struct {
	ConfidenceBoost     float64
	ConflictPolicy      models.ConflictPolicy
	DeleteRetryAttempts int
	RetryBaseDelay      time.Duration
}

// DefaultConfig returns default merge configuration
func DefaultConfig() Config {
	return Config{
		ConfidenceBoost:     0.1,
		ConflictPolicy:      models.ConflictPolicySurvivor,
		DeleteRetryAttempts: 3,
		RetryBaseDelay:      100 * time.Millisecond,
	}
}

// errMergedGone reports a merged entity that disappeared between load and delete
var errMergedGone = errors.New("merged entity was already removed")

// PartialMergeError means the survivor was updated but the merged entity could not be deleted
type PartialMergeError struct {
	SurvivorID string
	MergedID   string
	Err        error
}

func (e *PartialMergeError) Error() string {
	return fmt.Sprintf("survivor %s updated but delete of %s failed: %v", e.SurvivorID, e.MergedID, e.Err)
}

func (e *PartialMergeError) Unwrap() error {
	return e.Err
}

// Resolver merges pairs of entities in the store
type Resolver struct {
	store  store.Store
	merger *FieldMerger
	config Config
	logger ectologger.Logger
	now    func() time.Time
}

// NewResolver creates a merge resolver
func NewResolver(st store.Store, config Config, logger ectologger.Logger) *Resolver {
	if config.DeleteRetryAttempts < 1 {
		config.DeleteRetryAttempts = 1
	}
	return &Resolver{
		store:  st,
		merger: NewFieldMerger(config.ConflictPolicy),
		config: config,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// MergeEntities merges two entities. Missing entities and type mismatches produce an
// unsuccessful result without touching the store. Store failures are returned as errors.
// When the survivor update succeeds but the delete keeps failing, the returned error is a
// *PartialMergeError and the result describes the survivor that was written.
func (r *Resolver) MergeEntities(ctx context.Context, id1, id2 string) (models.MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Resolver.MergeEntities")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"entity1_id": id1,
		"entity2_id": id2,
	})

	if id1 == id2 {
		return models.FailedMerge("cannot merge an entity with itself"), nil
	}

	e1, err := r.store.Get(ctx, id1)
	if err != nil {
		return models.MergeResult{}, fmt.Errorf("failed to load entity %s: %w", id1, err)
	}
	e2, err := r.store.Get(ctx, id2)
	if err != nil {
		return models.MergeResult{}, fmt.Errorf("failed to load entity %s: %w", id2, err)
	}

	if e1 == nil || e2 == nil {
		missing := id1
		if e1 != nil {
			missing = id2
		}
		log.WithField("missing_id", missing).Debug("Merge skipped, entity not found")
		return models.FailedMerge(fmt.Sprintf("%s: %s", models.ErrEntityNotFound, missing)), nil
	}

	if e1.Type != e2.Type {
		log.Debug("Merge skipped, entity types differ")
		return models.FailedMerge(fmt.Sprintf("type mismatch: %s is %s, %s is %s", e1.ID, e1.Type, e2.ID, e2.Type)), nil
	}

	survivor, merged := SelectSurvivor(e1, e2)
	outcome := r.merger.Merge(survivor, merged, r.config.ConfidenceBoost, r.now())

	if err := r.store.Update(ctx, survivor.ID, models.UpdateFromEntity(outcome.Entity)); err != nil {
		tracing.Fail(span, err)
		return models.MergeResult{}, fmt.Errorf("failed to update survivor %s: %w", survivor.ID, err)
	}

	result := models.MergeResult{
		Success:          true,
		SurvivorID:       survivor.ID,
		MergedID:         merged.ID,
		FieldsConflicted: outcome.Conflicted,
		FieldsResolved:   outcome.Resolved,
		NewEntity:        outcome.Entity,
	}

	if err := r.deleteWithRetry(ctx, merged.ID, false); err != nil {
		if errors.Is(err, errMergedGone) {
			log.WithField("merged_id", merged.ID).Warn("Merged entity was removed before its delete")
			result.Success = false
			result.Error = err.Error()
			return result, nil
		}
		log.WithError(err).WithFields(map[string]any{
			"survivor_id": survivor.ID,
			"merged_id":   merged.ID,
		}).Error("Survivor updated but merged entity could not be deleted")

		tracing.Fail(span, err)
		result.Success = false
		result.Error = "delete of merged entity failed"
		return result, &PartialMergeError{SurvivorID: survivor.ID, MergedID: merged.ID, Err: err}
	}

	log.WithFields(map[string]any{
		"survivor_id":       survivor.ID,
		"merged_id":         merged.ID,
		"fields_conflicted": len(outcome.Conflicted),
	}).Info("Merged entities")

	return result, nil
}

// DeleteMerged retries the delete left behind by a partial merge
func (r *Resolver) DeleteMerged(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "merging.Resolver.DeleteMerged")
	defer span.End()

	return r.deleteWithRetry(ctx, id, true)
}

// deleteWithRetry deletes id with fibonacci backoff. A missing entity counts as deleted
// when missingOK is set or when an earlier attempt failed and may have landed. Otherwise
// it means another writer removed the entity and errMergedGone is returned.
func (r *Resolver) deleteWithRetry(ctx context.Context, id string, missingOK bool) error {
	var err error
	prev, curr := 0, 1
	for attempt := 1; attempt <= r.config.DeleteRetryAttempts; attempt++ {
		err = r.store.Delete(ctx, id)
		if err == nil {
			return nil
		}
		if errors.Is(err, models.ErrEntityNotFound) {
			if missingOK || attempt > 1 {
				return nil
			}
			return fmt.Errorf("%w: %s", errMergedGone, id)
		}
		if attempt == r.config.DeleteRetryAttempts {
			break
		}

		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"entity_id": id,
			"attempt":   attempt,
		}).Warn("Delete failed, retrying")

		timer := time.NewTimer(time.Duration(curr) * r.config.RetryBaseDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-timer.C:
		}
		prev, curr = curr, prev+curr
	}
	return err
}
