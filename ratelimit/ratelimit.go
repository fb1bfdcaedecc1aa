// Package ratelimit implements the router's per-principal fixed-window rate
// limiter. The default Store is an in-process map; a Redis-backed Store is
// provided in redis.go as the documented distributed-replacement seam.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

const (
	DefaultMaxRequests = 100
	DefaultWindow      = time.Hour
)

// Entry is the per-principal counter state.
type Entry struct {
	Count       int
	WindowStart time.Time
}

// Store is the narrow backend interface the limiter depends on; the router
// never depends on a concrete store type. Increment atomically bumps the
// counter for principal, starting a new window if now is outside the
// current one, and returns the resulting entry.
type Store interface {
	Increment(ctx context.Context, principal string, window time.Duration, now time.Time) (Entry, error)
	Clear(ctx context.Context, principal string) error
	ClearAll(ctx context.Context) error
	Status(ctx context.Context, principal string) (Entry, bool, error)
}

// Decision is the outcome of a Check call.
type Decision struct {
	Allowed       bool
	CurrentCount  int
	Limit         int
	RetryAfterSec int
}

// Config configures a Limiter; the zero value resolves to the package
// defaults (100 requests / 3,600,000 ms window).
type Config struct {
	MaxRequests int
	Window      time.Duration
}

// Limiter enforces a fixed-window request quota per principal.
type Limiter struct {
	store  Store
	config Config
}

// New creates a Limiter. A nil store defaults to an in-memory map.
func New(store Store, config Config) *Limiter {
	if store == nil {
		store = NewMemoryStore()
	}
	if config.MaxRequests <= 0 {
		config.MaxRequests = DefaultMaxRequests
	}
	if config.Window <= 0 {
		config.Window = DefaultWindow
	}
	return &Limiter{store: store, config: config}
}

// Check resolves the principal (caller already applies principalId ?? userId)
// and applies the fixed-window policy. An empty principal skips the check
// entirely and is always allowed — production callers must always supply one.
func (l *Limiter) Check(ctx context.Context, principal string) (Decision, error) {
	if principal == "" {
		return Decision{Allowed: true}, nil
	}

	now := time.Now()
	entry, err := l.store.Increment(ctx, principal, l.config.Window, now)
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: increment: %w", err)
	}

	if entry.Count > l.config.MaxRequests {
		windowEnd := entry.WindowStart.Add(l.config.Window)
		retryAfterSec := int(math.Ceil(windowEnd.Sub(now).Seconds()))
		if retryAfterSec < 0 {
			retryAfterSec = 0
		}
		return Decision{
			Allowed:       false,
			CurrentCount:  entry.Count,
			Limit:         l.config.MaxRequests,
			RetryAfterSec: retryAfterSec,
		}, nil
	}

	return Decision{Allowed: true, CurrentCount: entry.Count, Limit: l.config.MaxRequests}, nil
}

// Clear resets a single principal's window, for test use.
func (l *Limiter) Clear(ctx context.Context, principal string) error {
	return l.store.Clear(ctx, principal)
}

// ClearAll resets every principal's window, for test use.
func (l *Limiter) ClearAll(ctx context.Context) error {
	return l.store.ClearAll(ctx)
}

// Status returns the current entry for principal without incrementing it.
func (l *Limiter) Status(ctx context.Context, principal string) (Entry, bool, error) {
	return l.store.Status(ctx, principal)
}

// RetryAfterPhrase converts a retry-after duration into the largest sensible
// unit, matching the router's user-facing throttle message.
func RetryAfterPhrase(retryAfterSec int) string {
	switch {
	case retryAfterSec >= 3600:
		hours := retryAfterSec / 3600
		return pluralize(hours, "hour")
	case retryAfterSec >= 60:
		minutes := retryAfterSec / 60
		return pluralize(minutes, "minute")
	default:
		return pluralize(retryAfterSec, "second")
	}
}

func pluralize(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// MemoryStore is the default in-process Store implementation.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty in-process Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Increment(_ context.Context, principal string, window time.Duration, now time.Time) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[principal]
	if !ok || now.Sub(entry.WindowStart) >= window {
		entry = Entry{Count: 1, WindowStart: now}
	} else {
		entry.Count++
	}
	s.entries[principal] = entry
	return entry, nil
}

func (s *MemoryStore) Clear(_ context.Context, principal string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, principal)
	return nil
}

func (s *MemoryStore) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]Entry)
	return nil
}

func (s *MemoryStore) Status(_ context.Context, principal string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[principal]
	return entry, ok, nil
}
