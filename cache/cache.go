// Package cache implements the router's deterministic response cache:
// stable key derivation over (taskType, prompts, schema) and a pluggable
// TTL-scoped backend. The default backend is an in-process map, valid only
// for the process lifetime; a Redis-backed backend is provided in redis.go.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

const DefaultTTL = time.Hour

// Usage mirrors the token/unit accounting persisted alongside a cached
// response, so a cache hit can report the originally recorded values.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Units            int
}

// Entry is a cached response plus its recorded usage and expiry.
type Entry struct {
	Data      json.RawMessage
	Usage     Usage
	ExpiresAt time.Time
}

// Stats summarizes a backend's current contents.
type Stats struct {
	Size int
}

// Backend is the narrow interface the router depends on; the concrete
// store (in-process map, Redis) is never visible above this package.
type Backend interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry) error
	Delete(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context) error
	Size(ctx context.Context) (int, error)
	Keys(ctx context.Context) ([]string, error)
	ReapExpired(ctx context.Context) (int, error)
}

// GenerateKey derives the cache key described by the router's cache-key
// contract: "<taskType>:<sha256(JSON{systemPrompt,userPrompt})>:<sha256(schemaDescription)>".
// JSON serialization of the prompt pair uses sorted keys via a map, so the
// key is stable across processes for identical inputs.
func GenerateKey(taskType, systemPrompt, userPrompt, schemaDescription string) string {
	promptPayload := map[string]string{
		"systemPrompt": systemPrompt,
		"userPrompt":   userPrompt,
	}
	// encoding/json marshals map[string]string keys in sorted order.
	promptJSON, err := json.Marshal(promptPayload)
	if err != nil {
		promptJSON = []byte(systemPrompt + "\x00" + userPrompt)
	}

	promptHash := sha256.Sum256(promptJSON)
	schemaHash := sha256.Sum256([]byte(schemaDescription))

	return fmt.Sprintf("%s:%s:%s", taskType, hex.EncodeToString(promptHash[:]), hex.EncodeToString(schemaHash[:]))
}

// MemoryBackend is the default in-process Backend.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryBackend creates an empty in-process Backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]Entry)}
}

func (b *MemoryBackend) Get(_ context.Context, key string) (Entry, bool, error) {
	b.mu.RLock()
	entry, ok := b.entries[key]
	b.mu.RUnlock()
	if !ok {
		return Entry{}, false, nil
	}
	if time.Now().After(entry.ExpiresAt) {
		b.mu.Lock()
		delete(b.entries, key)
		b.mu.Unlock()
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (b *MemoryBackend) Set(_ context.Context, key string, entry Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = entry
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.entries[key]
	delete(b.entries, key)
	return ok, nil
}

func (b *MemoryBackend) Clear(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make(map[string]Entry)
	return nil
}

func (b *MemoryBackend) Size(_ context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries), nil
}

func (b *MemoryBackend) Keys(_ context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.entries))
	for k := range b.entries {
		keys = append(keys, k)
	}
	return keys, nil
}

func (b *MemoryBackend) ReapExpired(_ context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	count := 0
	for k, entry := range b.entries {
		if now.After(entry.ExpiresAt) {
			delete(b.entries, k)
			count++
		}
	}
	return count, nil
}

// Store is the high-level cache API the router calls, wrapping a Backend
// with the default-TTL policy.
type Store struct {
	backend Backend
}

// New wraps backend in a Store. A nil backend defaults to an in-process map.
func New(backend Backend) *Store {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	return &Store{backend: backend}
}

// Get retrieves an unexpired entry, or ok=false on miss or expiry.
func (s *Store) Get(ctx context.Context, key string) (Entry, bool, error) {
	entry, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache: get: %w", err)
	}
	return entry, ok, nil
}

// Set writes an entry with the given TTL (DefaultTTL if ttl <= 0).
func (s *Store) Set(ctx context.Context, key string, data json.RawMessage, usage Usage, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	entry := Entry{Data: data, Usage: usage, ExpiresAt: time.Now().Add(ttl)}
	if err := s.backend.Set(ctx, key, entry); err != nil {
		return fmt.Errorf("cache: set: %w", err)
	}
	return nil
}

// Delete removes a single key.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	ok, err := s.backend.Delete(ctx, key)
	if err != nil {
		return false, fmt.Errorf("cache: delete: %w", err)
	}
	return ok, nil
}

// Clear empties the entire store.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.Clear(ctx); err != nil {
		return fmt.Errorf("cache: clear: %w", err)
	}
	return nil
}

// Stats reports the current entry count.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	size, err := s.backend.Size(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("cache: stats: %w", err)
	}
	return Stats{Size: size}, nil
}

// ReapExpired sweeps and removes expired entries, returning the count removed.
func (s *Store) ReapExpired(ctx context.Context) (int, error) {
	count, err := s.backend.ReapExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("cache: reap: %w", err)
	}
	return count, nil
}
