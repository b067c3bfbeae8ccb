package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
)

const sessionLockKey = "resolution-session"

// SessionGuard allows one resolution session at a time across every replica sharing a Redis
type SessionGuard struct {
	locker *Locker
}

// NewSessionGuard creates a guard backed by the locker
func NewSessionGuard(locker *Locker) *SessionGuard {
	return &SessionGuard{locker: locker}
}

// Acquire takes the session lock for ttl. A lock held elsewhere yields models.ErrSessionInProgress.
func (g *SessionGuard) Acquire(ctx context.Context, ttl time.Duration) (func(context.Context) error, error) {
	lock, err := g.locker.Acquire(ctx, sessionLockKey, ttl)
	if errors.Is(err, ErrLockNotAcquired) {
		return nil, fmt.Errorf("%w: held by another replica", models.ErrSessionInProgress)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: session lock: %w", models.ErrStoreUnavailable, err)
	}
	return lock.Release, nil
}
