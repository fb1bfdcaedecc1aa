// Package retry implements the adapter shared runtime's retry wrapper:
// sequential exponential backoff with jitter, capped at a maximum delay,
// gated by a classifier that distinguishes transient from permanent errors.
package retry

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/appdistillery/brain/rerr"
)

// Policy configures a Retryer. The zero value resolves to DefaultPolicy.
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultPolicy is the adapter shared runtime's default: up to 3 retries,
// starting at 1s, capped at 10s.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 3, InitialDelay: time.Second, MaxDelay: 10 * time.Second}
}

func (p Policy) normalized() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 10 * time.Second
	}
	return p
}

// Retryer executes an operation, retrying transient failures according to
// its policy. Retries are strictly sequential — there is no parallelism.
type Retryer struct {
	policy Policy
	logger *zap.Logger
}

// New creates a Retryer. A nil logger defaults to zap.NewNop().
func New(policy Policy, logger *zap.Logger) *Retryer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retryer{policy: policy.normalized(), logger: logger.With(zap.String("component", "retry"))}
}

// Do runs fn, retrying on retryable errors until the policy is exhausted or
// ctx is cancelled. It returns the last error encountered.
func (r *Retryer) Do(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.calculateDelay(attempt)
			r.logger.Debug("retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", r.policy.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt >= r.policy.MaxRetries {
			break
		}
	}

	r.logger.Warn("retries exhausted", zap.Int("attempts", r.policy.MaxRetries+1), zap.Error(lastErr))
	return lastErr
}

// calculateDelay computes initialDelay * 2^(attempt-1), capped at maxDelay,
// with ±25% jitter — matching the adapter shared runtime's backoff formula.
func (r *Retryer) calculateDelay(attempt int) time.Duration {
	delay := float64(r.policy.InitialDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}
	jitter := delay * 0.25
	delay += (rand.Float64()*2 - 1) * jitter
	if delay < float64(r.policy.InitialDelay) {
		delay = float64(r.policy.InitialDelay)
	}
	return time.Duration(delay)
}

var retryableSubstrings = []string{
	"rate limit",
	"timeout",
	"temporarily unavailable",
	"connection",
	"network",
}

var retryableStatusCodes = map[int]bool{
	429: true,
	502: true,
	503: true,
	504: true,
}

// IsRetryable classifies err per the adapter shared runtime's rules: a
// *rerr.Error with a known retryable status code, or any error whose
// message case-insensitively matches one of the known transient phrases.
// Schema-validation failures, non-429 4xx, and configuration errors are
// never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*rerr.Error); ok {
		if retryableStatusCodes[e.HTTPStatus] {
			return true
		}
		if e.Retryable {
			return true
		}
		return matchesRetryableMessage(e.Message)
	}
	return matchesRetryableMessage(err.Error())
}

func matchesRetryableMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, s := range retryableSubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
