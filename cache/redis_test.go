package cache_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appdistillery/brain/cache"
)

func setupRedisBackend(t *testing.T) (*miniredis.Miniredis, *cache.RedisBackend) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, cache.NewRedisBackend(client, "test:cache:")
}

func TestRedisBackend_SetAndGet(t *testing.T) {
	mr, backend := setupRedisBackend(t)
	defer mr.Close()

	ctx := context.Background()
	entry := cache.Entry{
		Data:      json.RawMessage(`{"name":"ada"}`),
		Usage:     cache.Usage{PromptTokens: 5, CompletionTokens: 10, TotalTokens: 15, Units: 1},
		ExpiresAt: time.Now().Add(time.Minute),
	}
	require.NoError(t, backend.Set(ctx, "key1", entry))

	got, ok, err := backend.Get(ctx, "key1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, string(entry.Data), string(got.Data))
	assert.Equal(t, entry.Usage, got.Usage)
}

func TestRedisBackend_GetMiss(t *testing.T) {
	mr, backend := setupRedisBackend(t)
	defer mr.Close()

	_, ok, err := backend.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisBackend_SetSkipsAlreadyExpired(t *testing.T) {
	mr, backend := setupRedisBackend(t)
	defer mr.Close()

	ctx := context.Background()
	entry := cache.Entry{Data: json.RawMessage(`{}`), ExpiresAt: time.Now().Add(-time.Second)}
	require.NoError(t, backend.Set(ctx, "stale", entry))

	_, ok, err := backend.Get(ctx, "stale")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisBackend_DeleteAndClear(t *testing.T) {
	mr, backend := setupRedisBackend(t)
	defer mr.Close()

	ctx := context.Background()
	entry := cache.Entry{Data: json.RawMessage(`{}`), ExpiresAt: time.Now().Add(time.Minute)}
	require.NoError(t, backend.Set(ctx, "a", entry))
	require.NoError(t, backend.Set(ctx, "b", entry))

	deleted, err := backend.Delete(ctx, "a")
	require.NoError(t, err)
	assert.True(t, deleted)

	size, err := backend.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	require.NoError(t, backend.Clear(ctx))
	size, err = backend.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, size)
}

func TestStore_WithRedisBackend_RoundTrip(t *testing.T) {
	mr, backend := setupRedisBackend(t)
	defer mr.Close()

	store := cache.New(backend)
	ctx := context.Background()
	key := cache.GenerateKey("agency.profile", "system", "user prompt", "schema desc")

	require.NoError(t, store.Set(ctx, key, json.RawMessage(`{"ok":true}`), cache.Usage{TotalTokens: 42}, time.Minute))

	entry, hit, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, 42, entry.Usage.TotalTokens)
}
