// Package brain is a thin top-level convenience import for the router
// package, the way agentflow's own root package wraps quick for a shorter
// import path. Importing github.com/appdistillery/brain instead of its
// router subpackage is purely ergonomic — both produce identical results.
package brain

import (
	"context"

	"go.uber.org/zap"

	"github.com/appdistillery/brain/cache"
	"github.com/appdistillery/brain/config"
	"github.com/appdistillery/brain/providers"
	"github.com/appdistillery/brain/ratelimit"
	"github.com/appdistillery/brain/router"
	"github.com/appdistillery/brain/usage"
)

type (
	// Router brokers structured-output Tasks to provider adapters.
	Router = router.Router
	// Task describes a single structured-generation request.
	Task[T any] = router.Task[T]
	// Result is a Task's typed success/failure outcome.
	Result[T any] = router.Result[T]
	// Options configures a single Task's provider and generation limits.
	Options = router.Options
	// Provider selects which adapter a Task is routed to.
	Provider = router.Provider
	// StreamChunk is one partial or terminal chunk from a streamed Task.
	StreamChunk[T any] = router.StreamChunk[T]
	// StreamHandle exposes a streamed Task's chunk channel.
	StreamHandle[T any] = router.StreamHandle[T]
)

const (
	ProviderAnthropic = router.ProviderAnthropic
	ProviderOpenAI    = router.ProviderOpenAI
	ProviderGoogle    = router.ProviderGoogle
)

// New constructs a Router from its adapter registry and dependencies.
func New(adapters map[Provider]providers.Adapter, cacheBackend cache.Backend, limiterStore ratelimit.Store, ledger usage.Ledger, cfg config.RouterConfig, logger *zap.Logger) *Router {
	return router.New(adapters, cacheBackend, limiterStore, ledger, cfg, logger)
}

// Handle runs a Task end to end: rate limit, prompt validation, cache
// lookup, generation, and usage recording.
func Handle[T any](ctx context.Context, r *Router, task Task[T]) Result[T] {
	return router.Handle(ctx, r, task)
}

// HandleStream is Handle's streaming counterpart: the same pre-flight
// checks, followed by zero or more partial chunks and exactly one done
// chunk delivered over StreamHandle.Chunks.
func HandleStream[T any](ctx context.Context, r *Router, task Task[T]) (StreamHandle[T], error) {
	return router.HandleStream(ctx, r, task)
}
