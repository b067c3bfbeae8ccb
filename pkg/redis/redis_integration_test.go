//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/internal/testhelpers"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/redis"
)

func TestLocker(t *testing.T) {
	client := testhelpers.Redis(t)
	ctx := context.Background()
	locker := redis.NewLocker(client, "test:lock:")

	lock, err := locker.Acquire(ctx, "job", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "job", time.Minute)
	assert.ErrorIs(t, err, redis.ErrLockNotAcquired)

	require.NoError(t, lock.Extend(ctx, 2*time.Minute))
	ttl, err := client.Redis().TTL(ctx, "test:lock:job").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Minute)

	require.NoError(t, lock.Release(ctx))
	assert.ErrorIs(t, lock.Release(ctx), redis.ErrLockNotHeld)
	assert.ErrorIs(t, lock.Extend(ctx, time.Minute), redis.ErrLockNotHeld)

	again, err := locker.Acquire(ctx, "job", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestLocker_Expires(t *testing.T) {
	client := testhelpers.Redis(t)
	ctx := context.Background()
	locker := redis.NewLocker(client, "")

	_, err := locker.Acquire(ctx, "short", 200*time.Millisecond)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		lock, err := locker.Acquire(ctx, "short", time.Minute)
		return err == nil && lock != nil
	}, 3*time.Second, 50*time.Millisecond)
}

func TestSessionGuard(t *testing.T) {
	client := testhelpers.Redis(t)
	ctx := context.Background()

	replicaA := redis.NewSessionGuard(redis.NewLocker(client, "clover:lock:"))
	replicaB := redis.NewSessionGuard(redis.NewLocker(client, "clover:lock:"))

	release, err := replicaA.Acquire(ctx, time.Minute)
	require.NoError(t, err)

	_, err = replicaB.Acquire(ctx, time.Minute)
	assert.ErrorIs(t, err, models.ErrSessionInProgress)

	require.NoError(t, release(ctx))

	releaseB, err := replicaB.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	require.NoError(t, releaseB(ctx))
}
