// Package router implements the central AI request router: the Handle and
// HandleStream orchestration described by the adapter shared runtime's
// pipeline — prompt sanitisation, cache lookup, rate limiting, adapter
// dispatch, best-effort usage recording, and response caching.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/appdistillery/brain/cache"
	"github.com/appdistillery/brain/config"
	"github.com/appdistillery/brain/providers"
	"github.com/appdistillery/brain/ratelimit"
	"github.com/appdistillery/brain/rerr"
	"github.com/appdistillery/brain/sanitize"
	"github.com/appdistillery/brain/usage"
)

var taskTypePattern = regexp.MustCompile(`^[^.]+\.[^.]+$`)

// Router orchestrates every component below it; no component calls upward.
type Router struct {
	adapters map[Provider]providers.Adapter
	cache    *cache.Store
	limiter  *ratelimit.Limiter
	ledger   usage.Ledger
	config   config.RouterConfig
	logger   *zap.Logger
}

// New constructs a Router. adapters must contain at least the default
// provider (anthropic); a nil ledger defaults to a no-op. A nil logger
// defaults to zap.NewNop().
func New(adapters map[Provider]providers.Adapter, cacheBackend cache.Backend, limiterStore ratelimit.Store, ledger usage.Ledger, cfg config.RouterConfig, logger *zap.Logger) *Router {
	if ledger == nil {
		ledger = nopLedger{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		adapters: adapters,
		cache:    cache.New(cacheBackend),
		limiter:  ratelimit.New(limiterStore, ratelimit.Config{MaxRequests: cfg.RateLimit.MaxRequests, Window: cfg.RateLimit.Window}),
		ledger:   ledger,
		config:   cfg,
		logger:   logger.With(zap.String("component", "router")),
	}
}

type nopLedger struct{}

func (nopLedger) RecordUsage(context.Context, usage.Event) error { return nil }

// Handle is the observable entry point: START → CACHE_LOOKUP → RATE_LIMIT →
// VALIDATE_PROMPT → DERIVE_ACTION → SELECT_ADAPTER → GENERATE →
// RECORD_USAGE → CACHE_STORE → RETURN. It never panics and always returns
// exactly one Result with DurationMs populated.
func Handle[T any](ctx context.Context, r *Router, task Task[T]) Result[T] {
	start := time.Now()
	elapsed := func() int64 { return time.Since(start).Milliseconds() }

	// CACHE_LOOKUP
	cacheKey := ""
	if task.Options.useCache() {
		cacheKey = cache.GenerateKey(task.TaskType, task.SystemPrompt, task.UserPrompt, task.Schema.Description())
		if entry, hit, err := r.cache.Get(ctx, cacheKey); err == nil && hit {
			var data T
			if err := json.Unmarshal(entry.Data, &data); err == nil {
				return Result[T]{
					Success: true,
					Data:    data,
					Usage: ResultUsage{
						PromptTokens:     entry.Usage.PromptTokens,
						CompletionTokens: entry.Usage.CompletionTokens,
						TotalTokens:      entry.Usage.TotalTokens,
						Units:            entry.Usage.Units,
						DurationMs:       elapsed(),
					},
				}
			}
		}
	}

	principal := task.principal()

	// RATE_LIMIT
	decision, err := r.limiter.Check(ctx, principal)
	if err != nil {
		r.logger.Error("rate limit check failed", zap.Error(err))
	} else if !decision.Allowed {
		phrase := ratelimit.RetryAfterPhrase(decision.RetryAfterSec)
		return Result[T]{
			Success: false,
			Error:   fmt.Sprintf("Rate limit exceeded. Please try again in %s.", phrase),
			Usage:   ResultUsage{DurationMs: elapsed()},
		}
	}

	// VALIDATE_PROMPT
	validated := sanitize.ValidatePrompt(task.UserPrompt, sanitize.Options{}, r.logger)
	if !validated.Valid {
		msg := "Unable to process your request. Please try again later."
		if len(validated.Errors) > 0 {
			switch {
			case strings.Contains(validated.Errors[0], "cannot be empty"):
				msg = "Please provide some content for your request."
			case strings.Contains(validated.Errors[0], "exceeds maximum length"):
				msg = "Your request is too long. Please try with a shorter prompt."
			}
		}
		return Result[T]{Success: false, Error: msg, Usage: ResultUsage{DurationMs: elapsed()}}
	}
	for _, w := range validated.Warnings {
		r.logger.Warn("prompt sanitiser warning", zap.String("warning", w))
	}

	// DERIVE_ACTION
	action, ok := deriveAction(task.TaskType)
	if !ok {
		r.logger.Error("malformed taskType", zap.String("taskType", task.TaskType))
		return Result[T]{Success: false, Error: "Unable to process your request. Please try again later.", Usage: ResultUsage{DurationMs: elapsed()}}
	}

	// SELECT_ADAPTER
	adapter, ok := r.adapters[task.Options.provider()]
	if !ok {
		return Result[T]{Success: false, Error: rerr.Sanitize(rerr.New(rerr.CodeNotConfigured, "unknown provider")), Usage: ResultUsage{DurationMs: elapsed()}}
	}

	// GENERATE
	genReq := providers.Request{
		Schema:          task.Schema.JSONSchema(),
		SchemaName:      task.TaskType,
		System:          task.SystemPrompt,
		Prompt:          validated.Sanitized,
		MaxOutputTokens: task.Options.MaxOutputTokens,
		Temperature:     task.Options.Temperature,
		TimeoutMs:       task.Options.TimeoutMs,
	}

	genCtx := ctx
	var cancel context.CancelFunc
	if task.Options.TimeoutMs > 0 {
		genCtx, cancel = context.WithTimeout(ctx, time.Duration(task.Options.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	resp, genErr := adapter.GenerateStructured(genCtx, genReq)
	if genErr != nil {
		r.logger.Error("adapter generation failed", zap.String("provider", string(task.Options.provider())), zap.Error(genErr))
		recordUsageEvent(ctx, r, task, action, 0, 0, 0, elapsed(), true, genErr.Error())
		return Result[T]{Success: false, Error: rerr.Sanitize(genErr), Usage: ResultUsage{DurationMs: elapsed()}}
	}

	var data T
	if err := json.Unmarshal(resp.Object, &data); err != nil {
		r.logger.Error("structured decode failed", zap.Error(err))
		recordUsageEvent(ctx, r, task, action, 0, 0, 0, elapsed(), true, err.Error())
		return Result[T]{Success: false, Error: rerr.Sanitize(rerr.New(rerr.CodeSchemaValidation, "decode failure")), Usage: ResultUsage{DurationMs: elapsed()}}
	}

	totalTokens := resp.Usage.TotalTokens
	if totalTokens <= 0 {
		totalTokens = sanitize.EstimateTokens(task.SystemPrompt) + sanitize.EstimateTokens(validated.Sanitized)
	}
	units := r.calculateUnits(task.TaskType, totalTokens)

	// RECORD_USAGE (success)
	recordUsageEvent(ctx, r, task, action, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, units, elapsed(), false, "")

	// CACHE_STORE
	if task.Options.useCache() && cacheKey != "" {
		ttl := cache.DefaultTTL
		if task.Options.CacheTTLMs != nil {
			ttl = time.Duration(*task.Options.CacheTTLMs) * time.Millisecond
		}
		cu := cache.Usage{PromptTokens: resp.Usage.PromptTokens, CompletionTokens: resp.Usage.CompletionTokens, TotalTokens: resp.Usage.TotalTokens, Units: units}
		if err := r.cache.Set(ctx, cacheKey, resp.Object, cu, ttl); err != nil {
			r.logger.Warn("cache store failed", zap.Error(err))
		}
	}

	return Result[T]{
		Success: true,
		Data:    data,
		Usage: ResultUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
			Units:            units,
			DurationMs:       elapsed(),
		},
	}
}

// recordUsageEvent is the router's best-effort ledger call, generic over T
// so it can read principal/module/task fields directly from Task[T].
// Failure to record is logged and never surfaced to the caller.
func recordUsageEvent[T any](ctx context.Context, r *Router, task Task[T], action string, promptTokens, completionTokens, units int, durationMs int64, failed bool, errMsg string) {
	event := usage.Event{
		Action:       action,
		PrincipalID:  task.PrincipalID,
		UserID:       task.UserID,
		ModuleID:     task.ModuleID,
		TokensInput:  promptTokens,
		TokensOutput: completionTokens,
		Units:        units,
		DurationMs:   durationMs,
		Metadata:     usage.Metadata{Task: task.TaskType, Cached: false, Failed: failed, Error: errMsg},
	}
	if err := r.ledger.RecordUsage(ctx, event); err != nil {
		r.logger.Warn("usage ledger record failed", zap.Error(err))
	}
}

// deriveAction parses "<module>.<task>" into the colon-joined action
// string "<module>:<task>:generate".
func deriveAction(taskType string) (string, bool) {
	if !taskTypePattern.MatchString(taskType) {
		return "", false
	}
	idx := strings.Index(taskType, ".")
	module, task := taskType[:idx], taskType[idx+1:]
	if module == "" || task == "" || strings.Contains(task, ".") {
		return "", false
	}
	return fmt.Sprintf("%s:%s:generate", module, task), true
}

// calculateUnits applies the closed unit-cost table, falling back to
// ceil(totalTokens/100) (ceil(1000/100) when totalTokens is 0 and the
// taskType is unknown — a zero-token response from a known-cost task is 0).
func (r *Router) calculateUnits(taskType string, totalTokens int) int {
	if units, ok := r.config.UnitsFor(taskType); ok {
		return units
	}
	if totalTokens <= 0 {
		return 0
	}
	return int(math.Ceil(float64(totalTokens) / 100))
}

// --- Cache admin functions (spec §6) ---

func (r *Router) ClearCache(ctx context.Context) error { return r.cache.Clear(ctx) }

func (r *Router) ClearCacheEntry(ctx context.Context, key string) (bool, error) {
	return r.cache.Delete(ctx, key)
}

func (r *Router) CacheStats(ctx context.Context) (cache.Stats, error) { return r.cache.Stats(ctx) }

func (r *Router) CleanupExpiredCacheEntries(ctx context.Context) (int, error) {
	return r.cache.ReapExpired(ctx)
}

// --- Rate-limiter admin functions (spec §6) ---

func (r *Router) ClearRateLimit(ctx context.Context, principal string) error {
	return r.limiter.Clear(ctx, principal)
}

func (r *Router) ClearAllRateLimits(ctx context.Context) error {
	return r.limiter.ClearAll(ctx)
}

func (r *Router) RateLimitStatus(ctx context.Context, principal string) (ratelimit.Entry, bool, error) {
	return r.limiter.Status(ctx, principal)
}
