// Package usage defines the consumed usage-ledger contract: an append-only,
// best-effort recording of one event per router call. The router ships no
// concrete Ledger — callers supply their own (database-backed, a message
// queue producer, or a no-op for tests).
package usage

import "context"

// Metadata carries the per-call bookkeeping details attached to an Event.
type Metadata struct {
	Task   string
	Cached bool
	Failed bool
	Error  string
}

// Event is the record emitted once per router call (never for a cache hit
// or a rate-limit denial).
type Event struct {
	Action        string
	PrincipalID   string
	UserID        string
	ModuleID      string
	TokensInput   int
	TokensOutput  int
	Units         int
	DurationMs    int64
	Metadata      Metadata
}

// Ledger is the external collaborator the router treats as fire-and-forget:
// any error returned from RecordUsage is logged by the router, never
// surfaced to the caller of handle/handleStream.
type Ledger interface {
	RecordUsage(ctx context.Context, event Event) error
}
