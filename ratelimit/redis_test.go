package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appdistillery/brain/ratelimit"
)

func setupRedisStore(t *testing.T) (*miniredis.Miniredis, *ratelimit.RedisStore) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, ratelimit.NewRedisStore(client, "test:ratelimit:")
}

func TestRedisStore_IncrementWithinWindow(t *testing.T) {
	mr, store := setupRedisStore(t)
	defer mr.Close()

	ctx := context.Background()
	now := time.Now()

	first, err := store.Increment(ctx, "alice", time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Count)

	second, err := store.Increment(ctx, "alice", time.Minute, now.Add(10*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, second.Count)
	assert.Equal(t, first.WindowStart.UnixMilli(), second.WindowStart.UnixMilli())
}

func TestRedisStore_IncrementResetsOnNewWindow(t *testing.T) {
	mr, store := setupRedisStore(t)
	defer mr.Close()

	ctx := context.Background()
	now := time.Now()

	_, err := store.Increment(ctx, "bob", time.Minute, now)
	require.NoError(t, err)

	reset, err := store.Increment(ctx, "bob", time.Minute, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, reset.Count)
}

func TestRedisStore_StatusAndClear(t *testing.T) {
	mr, store := setupRedisStore(t)
	defer mr.Close()

	ctx := context.Background()
	_, ok, err := store.Status(ctx, "carol")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Increment(ctx, "carol", time.Minute, time.Now())
	require.NoError(t, err)

	entry, ok, err := store.Status(ctx, "carol")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, entry.Count)

	require.NoError(t, store.Clear(ctx, "carol"))
	_, ok, err = store.Status(ctx, "carol")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_ClearAll(t *testing.T) {
	mr, store := setupRedisStore(t)
	defer mr.Close()

	ctx := context.Background()
	_, err := store.Increment(ctx, "dave", time.Minute, time.Now())
	require.NoError(t, err)
	_, err = store.Increment(ctx, "erin", time.Minute, time.Now())
	require.NoError(t, err)

	require.NoError(t, store.ClearAll(ctx))

	_, ok, err := store.Status(ctx, "dave")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = store.Status(ctx, "erin")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLimiter_WithRedisStore_EnforcesMax(t *testing.T) {
	mr, store := setupRedisStore(t)
	defer mr.Close()

	limiter := ratelimit.New(store, ratelimit.Config{MaxRequests: 2, Window: time.Minute})
	ctx := context.Background()

	d1, err := limiter.Check(ctx, "flagged")
	require.NoError(t, err)
	assert.True(t, d1.Allowed)

	d2, err := limiter.Check(ctx, "flagged")
	require.NoError(t, err)
	assert.True(t, d2.Allowed)

	d3, err := limiter.Check(ctx, "flagged")
	require.NoError(t, err)
	assert.False(t, d3.Allowed)
	assert.Greater(t, d3.RetryAfterSec, 0)
}
