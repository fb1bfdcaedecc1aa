package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// windowScript atomically advances or resets a principal's fixed window.
// KEYS[1] is the entry key. ARGV[1] is the window length in milliseconds,
// ARGV[2] is the current time in epoch milliseconds. It returns the
// resulting {count, windowStart} as a two-element array.
var windowScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
local windowMs = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local count, windowStart

if raw then
  local decoded = cjson.decode(raw)
  count = decoded.count
  windowStart = decoded.windowStart
  if now - windowStart >= windowMs then
    count = 1
    windowStart = now
  else
    count = count + 1
  end
else
  count = 1
  windowStart = now
end

local encoded = cjson.encode({count = count, windowStart = windowStart})
redis.call('SET', KEYS[1], encoded, 'PX', windowMs * 2)
return {count, windowStart}
`)

// RedisStore is the distributed replacement for MemoryStore, backing the
// limiter with an atomic-counter-with-TTL keyspace in Redis. This is the
// seam documented for deployments that run more than one router process.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing Redis client. prefix namespaces the
// limiter's keys away from any other use of the same Redis database.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(principal string) string {
	return s.prefix + principal
}

func (s *RedisStore) Increment(ctx context.Context, principal string, window time.Duration, now time.Time) (Entry, error) {
	windowMs := window.Milliseconds()
	nowMs := now.UnixMilli()

	res, err := windowScript.Run(ctx, s.client, []string{s.key(principal)}, windowMs, nowMs).Result()
	if err != nil {
		return Entry{}, fmt.Errorf("ratelimit: redis increment: %w", err)
	}

	pair, ok := res.([]interface{})
	if !ok || len(pair) != 2 {
		return Entry{}, fmt.Errorf("ratelimit: unexpected redis script result shape")
	}
	count, err := toInt64(pair[0])
	if err != nil {
		return Entry{}, fmt.Errorf("ratelimit: decode count: %w", err)
	}
	windowStartMs, err := toInt64(pair[1])
	if err != nil {
		return Entry{}, fmt.Errorf("ratelimit: decode windowStart: %w", err)
	}

	return Entry{
		Count:       int(count),
		WindowStart: time.UnixMilli(windowStartMs),
	}, nil
}

func (s *RedisStore) Clear(ctx context.Context, principal string) error {
	if err := s.client.Del(ctx, s.key(principal)).Err(); err != nil {
		return fmt.Errorf("ratelimit: redis clear: %w", err)
	}
	return nil
}

func (s *RedisStore) ClearAll(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("ratelimit: redis clearAll: %w", err)
		}
	}
	return iter.Err()
}

func (s *RedisStore) Status(ctx context.Context, principal string) (Entry, bool, error) {
	raw, err := s.client.Get(ctx, s.key(principal)).Result()
	if err == redis.Nil {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("ratelimit: redis status: %w", err)
	}

	var decoded struct {
		Count       int   `json:"count"`
		WindowStart int64 `json:"windowStart"`
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return Entry{}, false, fmt.Errorf("ratelimit: decode status: %w", err)
	}
	return Entry{Count: decoded.Count, WindowStart: time.UnixMilli(decoded.WindowStart)}, true, nil
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected numeric type %T", v)
	}
}
