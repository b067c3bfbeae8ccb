package mergehistory

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/clover/pkg/tracing"
)

// DefaultKey is the Redis hash holding merged id -> survivor id
const DefaultKey = "clover:merge-history"

// Repository persists merge history in a Redis hash
type Repository struct {
	rdb    redis.UniversalClient
	key    string
	logger ectologger.Logger
}

func NewRepository(rdb redis.UniversalClient, key string, logger ectologger.Logger) *Repository {
	if key == "" {
		key = DefaultKey
	}
	return &Repository{rdb: rdb, key: key, logger: logger}
}

// Load returns the whole history
func (r *Repository) Load(ctx context.Context) (map[string]string, error) {
	ctx, span := tracing.StartSpan(ctx, "mergehistory.Repository.Load")
	defer span.End()

	entries, err := r.rdb.HGetAll(ctx, r.key).Result()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("key", r.key).Error("Failed to load merge history")
		return nil, fmt.Errorf("failed to load merge history: %w", err)
	}

	r.logger.WithContext(ctx).WithField("entries", len(entries)).Debug("Loaded merge history")
	return entries, nil
}

// Append records one merge. Re-recording the same merged id overwrites it.
func (r *Repository) Append(ctx context.Context, mergedID, survivorID string) error {
	ctx, span := tracing.StartSpan(ctx, "mergehistory.Repository.Append")
	defer span.End()

	if err := r.rdb.HSet(ctx, r.key, mergedID, survivorID).Err(); err != nil {
		return fmt.Errorf("failed to record merge %s -> %s: %w", mergedID, survivorID, err)
	}
	return nil
}
