// Package mocks provides test doubles for the provider.Adapter and
// usage.Ledger contracts, in the builder style used across the corpus's own
// MockProvider.
package mocks

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/appdistillery/brain/providers"
	"github.com/appdistillery/brain/usage"
)

// Adapter is a configurable providers.Adapter test double.
type Adapter struct {
	mu sync.RWMutex

	name     providers.Name
	object   json.RawMessage
	usage    providers.Usage
	err      error
	genFunc  func(ctx context.Context, req providers.Request) (providers.Response, error)
	delay    int
	failAfter int
	callCount int
	calls    []AdapterCall
}

// AdapterCall records a single GenerateStructured invocation.
type AdapterCall struct {
	Request  providers.Request
	Response providers.Response
	Error    error
}

// NewAdapter constructs an Adapter test double for the given provider name.
func NewAdapter(name providers.Name) *Adapter {
	return &Adapter{
		name:   name,
		object: json.RawMessage(`{}`),
		usage:  providers.Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
	}
}

// WithObject sets the raw JSON payload returned as Response.Object.
func (a *Adapter) WithObject(raw json.RawMessage) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.object = raw
	return a
}

// WithUsage sets the Usage returned alongside the structured response.
func (a *Adapter) WithUsage(u providers.Usage) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.usage = u
	return a
}

// WithError makes every call fail with err.
func (a *Adapter) WithError(err error) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
	return a
}

// WithFailAfter fails every call after the Nth.
func (a *Adapter) WithFailAfter(n int) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failAfter = n
	return a
}

// WithGenerateFunc overrides GenerateStructured entirely.
func (a *Adapter) WithGenerateFunc(fn func(ctx context.Context, req providers.Request) (providers.Response, error)) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.genFunc = fn
	return a
}

// Name implements providers.Adapter.
func (a *Adapter) Name() providers.Name {
	return a.name
}

// GenerateStructured implements providers.Adapter.
func (a *Adapter) GenerateStructured(ctx context.Context, req providers.Request) (providers.Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.callCount++

	if a.failAfter > 0 && a.callCount > a.failAfter {
		err := errors.New("mock adapter: configured to fail after N calls")
		a.calls = append(a.calls, AdapterCall{Request: req, Error: err})
		return providers.Response{}, err
	}
	if a.err != nil {
		a.calls = append(a.calls, AdapterCall{Request: req, Error: a.err})
		return providers.Response{}, a.err
	}
	if a.genFunc != nil {
		resp, err := a.genFunc(ctx, req)
		a.calls = append(a.calls, AdapterCall{Request: req, Response: resp, Error: err})
		return resp, err
	}

	resp := providers.Response{Object: a.object, Usage: a.usage.Normalize()}
	a.calls = append(a.calls, AdapterCall{Request: req, Response: resp})
	return resp, nil
}

// HasCredential implements providers.CredentialChecker, always true unless
// overridden by wrapping in WithError/failure configuration.
func (a *Adapter) HasCredential() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return true
}

// Calls returns every recorded invocation.
func (a *Adapter) Calls() []AdapterCall {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]AdapterCall{}, a.calls...)
}

// CallCount returns the number of times GenerateStructured was invoked.
func (a *Adapter) CallCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.callCount
}

// Reset clears recorded calls and error state.
func (a *Adapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = nil
	a.callCount = 0
	a.err = nil
}

// NewSuccessAdapter returns an Adapter that always succeeds with raw.
func NewSuccessAdapter(name providers.Name, raw json.RawMessage) *Adapter {
	return NewAdapter(name).WithObject(raw)
}

// NewErrorAdapter returns an Adapter that always fails with err.
func NewErrorAdapter(name providers.Name, err error) *Adapter {
	return NewAdapter(name).WithError(err)
}

// StreamingAdapter wraps Adapter with a providers.StreamingAdapter
// implementation that replays a fixed sequence of events, letting tests
// exercise the router's real incremental-chunk path instead of its
// single-done-chunk fallback.
type StreamingAdapter struct {
	*Adapter
	events []providers.StreamEvent
	err    error
}

// NewStreamingAdapter wraps an existing Adapter so it also satisfies
// providers.StreamingAdapter, replaying events in order on every call.
func NewStreamingAdapter(adapter *Adapter, events ...providers.StreamEvent) *StreamingAdapter {
	return &StreamingAdapter{Adapter: adapter, events: events}
}

// WithStreamError makes GenerateStructuredStream fail outright, before any
// event is emitted — the pre-stream failure path.
func (s *StreamingAdapter) WithStreamError(err error) *StreamingAdapter {
	s.err = err
	return s
}

// GenerateStructuredStream implements providers.StreamingAdapter, replaying
// the configured events over a buffered channel and closing it on either
// completion or context cancellation.
func (s *StreamingAdapter) GenerateStructuredStream(ctx context.Context, req providers.Request) (<-chan providers.StreamEvent, error) {
	if s.err != nil {
		return nil, s.err
	}

	ch := make(chan providers.StreamEvent, len(s.events))
	go func() {
		defer close(ch)
		for _, ev := range s.events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// RecordingLedger is a usage.Ledger test double that records every event.
type RecordingLedger struct {
	mu     sync.Mutex
	events []usage.Event
	err    error
}

// NewRecordingLedger constructs an empty RecordingLedger.
func NewRecordingLedger() *RecordingLedger {
	return &RecordingLedger{}
}

// WithError makes RecordUsage return err on every call, without skipping
// the recording (so tests can assert the router still attempted it).
func (l *RecordingLedger) WithError(err error) *RecordingLedger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
	return l
}

// RecordUsage implements usage.Ledger.
func (l *RecordingLedger) RecordUsage(ctx context.Context, event usage.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return l.err
}

// Events returns every recorded usage event.
func (l *RecordingLedger) Events() []usage.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]usage.Event{}, l.events...)
}
