package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend is the distributed replacement for MemoryBackend, for
// deployments that want a cache shared across router processes. TTL is
// delegated to Redis key expiry rather than re-checked on Get, since Redis
// already removes the key itself.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend wraps an existing Redis client. prefix namespaces the
// cache's keys away from any other use of the same Redis database.
func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "cache:"
	}
	return &RedisBackend{client: client, prefix: prefix}
}

func (b *RedisBackend) key(k string) string { return b.prefix + k }

type redisEntry struct {
	Data      json.RawMessage `json:"data"`
	Usage     Usage           `json:"usage"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

func (b *RedisBackend) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := b.client.Get(ctx, b.key(key)).Result()
	if err == redis.Nil {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache: redis get: %w", err)
	}

	var decoded redisEntry
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return Entry{}, false, fmt.Errorf("cache: redis decode: %w", err)
	}
	return Entry{Data: decoded.Data, Usage: decoded.Usage, ExpiresAt: decoded.ExpiresAt}, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, entry Entry) error {
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(redisEntry{Data: entry.Data, Usage: entry.Usage, ExpiresAt: entry.ExpiresAt})
	if err != nil {
		return fmt.Errorf("cache: redis encode: %w", err)
	}
	if err := b.client.Set(ctx, b.key(key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("cache: redis set: %w", err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, key string) (bool, error) {
	n, err := b.client.Del(ctx, b.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("cache: redis delete: %w", err)
	}
	return n > 0, nil
}

func (b *RedisBackend) Clear(ctx context.Context) error {
	iter := b.client.Scan(ctx, 0, b.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := b.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("cache: redis clear: %w", err)
		}
	}
	return iter.Err()
}

func (b *RedisBackend) Size(ctx context.Context) (int, error) {
	keys, err := b.Keys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (b *RedisBackend) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := b.client.Scan(ctx, 0, b.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val()[len(b.prefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("cache: redis keys: %w", err)
	}
	return keys, nil
}

// ReapExpired is a no-op for Redis: expiry is enforced by the server's own
// TTL eviction, so there is nothing for the caller to sweep.
func (b *RedisBackend) ReapExpired(_ context.Context) (int, error) {
	return 0, nil
}
