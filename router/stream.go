package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/appdistillery/brain/providers"
	"github.com/appdistillery/brain/ratelimit"
	"github.com/appdistillery/brain/rerr"
	"github.com/appdistillery/brain/sanitize"
)

// HandleStream runs the same pre-flight as Handle (rate-limit, prompt
// validation, action derivation, adapter selection and credential
// presence) and, on success, returns a StreamHandle whose channel emits
// zero or more partial chunks followed by exactly one done chunk. Caching
// and the adapter retry wrapper are not applied to the streaming path —
// partial streams are not cacheable, and retrying would require
// re-iteration semantics this contract does not offer.
func HandleStream[T any](ctx context.Context, r *Router, task Task[T]) (StreamHandle[T], error) {
	principal := task.principal()

	decision, err := r.limiter.Check(ctx, principal)
	if err != nil {
		r.logger.Error("rate limit check failed", zap.Error(err))
	} else if !decision.Allowed {
		phrase := ratelimit.RetryAfterPhrase(decision.RetryAfterSec)
		return StreamHandle[T]{}, rerr.New(rerr.CodeRateLimited, fmt.Sprintf("Rate limit exceeded. Please try again in %s.", phrase))
	}

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
		return StreamHandle[T]{}, rerr.New(rerr.CodeInvalidRequest, msg)
	}
	for _, w := range validated.Warnings {
		r.logger.Warn("prompt sanitiser warning", zap.String("warning", w))
	}

	action, ok := deriveAction(task.TaskType)
	if !ok {
		return StreamHandle[T]{}, rerr.New(rerr.CodeInvalidRequest, "Unable to process your request. Please try again later.")
	}

	adapter, ok := r.adapters[task.Options.provider()]
	if !ok {
		return StreamHandle[T]{}, rerr.New(rerr.CodeNotConfigured, "unknown provider")
	}

	streamer, supportsStreaming := adapter.(providers.StreamingAdapter)

	genReq := providers.Request{
		Schema:          task.Schema.JSONSchema(),
		SchemaName:      task.TaskType,
		System:          task.SystemPrompt,
		Prompt:          validated.Sanitized,
		MaxOutputTokens: task.Options.MaxOutputTokens,
		Temperature:     task.Options.Temperature,
		TimeoutMs:       task.Options.TimeoutMs,
	}

	// Credential presence is part of pre-flight: a missing credential must
	// resolve the outer promise to failure before any stream starts.
	if cr, ok := adapter.(providers.CredentialChecker); ok && !cr.HasCredential() {
		return StreamHandle[T]{}, rerr.New(rerr.CodeNotConfigured, "missing API credential")
	}

	out := make(chan StreamChunk[T])

	go func() {
		defer close(out)
		start := time.Now()

		emit := func(partial T, done bool) bool {
			select {
			case out <- StreamChunk[T]{Partial: partial, Done: done}:
				return true
			case <-ctx.Done():
				return false
			}
		}

		// fail delivers err to the consumer as the terminal chunk — the
		// streaming equivalent of Handle's returned Result{Success: false}
		// — before logging and best-effort recording. Best-effort delivery
		// only: if the consumer has already walked away (ctx.Done), there's
		// no one left to receive it.
		fail := func(err error) {
			select {
			case out <- StreamChunk[T]{Err: err, Done: true}:
			case <-ctx.Done():
			}
			r.logger.Error("stream generation failed", zap.Error(err))
			recordUsageEvent(ctx, r, task, action, 0, 0, 0, time.Since(start).Milliseconds(), true, err.Error())
		}

		var finalUsage providers.Usage

		if supportsStreaming {
			events, err := streamer.GenerateStructuredStream(ctx, genReq)
			if err != nil {
				fail(err)
				return
			}
			for ev := range events {
				if ev.Err != nil {
					fail(ev.Err)
					return
				}
				var partial T
				if err := json.Unmarshal(ev.Partial, &partial); err != nil {
					fail(fmt.Errorf("stream: decode partial: %w", err))
					return
				}
				if !emit(partial, ev.Done) {
					return
				}
				if ev.Done {
					finalUsage = ev.Usage.Normalize()
				}
			}
		} else {
			// Fallback: the adapter has no incremental streaming support, so
			// the full structured result is emitted as a single done chunk.
			resp, err := adapter.GenerateStructured(ctx, genReq)
			if err != nil {
				fail(err)
				return
			}
			var data T
			if err := json.Unmarshal(resp.Object, &data); err != nil {
				fail(fmt.Errorf("stream: decode response: %w", err))
				return
			}
			finalUsage = resp.Usage
			if !emit(data, true) {
				return
			}
		}

		durationMs := time.Since(start).Milliseconds()
		totalTokens := finalUsage.TotalTokens
		if totalTokens <= 0 {
			totalTokens = sanitize.EstimateTokens(task.SystemPrompt) + sanitize.EstimateTokens(validated.Sanitized)
		}
		units := r.calculateUnits(task.TaskType, totalTokens)
		recordUsageEvent(ctx, r, task, action, finalUsage.PromptTokens, finalUsage.CompletionTokens, units, durationMs, false, "")
	}()

	return StreamHandle[T]{Chunks: out}, nil
}
