// Package providers is the adapter shared runtime: a uniform Adapter
// interface, a BaseAdapter HTTP/retry/credential spine embedded by each
// concrete provider, and the error-classification and usage-normalisation
// helpers every adapter shares. No adapter imports an official provider
// SDK — each talks to its API directly over net/http + SSE, matching the
// corpus's own Anthropic/Gemini/OpenAI adapters.
package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/appdistillery/brain/rerr"
	"github.com/appdistillery/brain/retry"
	"github.com/appdistillery/brain/schema"
)

// Name identifies a provider by its configured registry key.
type Name string

const (
	Anthropic Name = "anthropic"
	OpenAI    Name = "openai"
	Google    Name = "google"
)

// Request is the uniform structured-generation request every adapter
// accepts, independent of the wire format the concrete provider expects.
type Request struct {
	Schema          *schema.JSONSchema
	SchemaName      string
	System          string
	Prompt          string
	MaxOutputTokens int
	Temperature     float64
	TimeoutMs       int
}

// Usage is the normalised token accounting returned by every adapter,
// reconciling the newer {inputTokens,outputTokens} and older
// {promptTokens,completionTokens} provider SDK shapes.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Normalize fills TotalTokens when absent and defaults every field to 0,
// per the adapter shared runtime's usage-normalisation rule.
func (u Usage) Normalize() Usage {
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u
}

// Response is the uniform successful-generation result. Object carries the
// raw structured payload; the router unmarshals it into the caller's typed
// T at the call site so Adapter itself can stay a plain, non-generic
// interface.
type Response struct {
	Object json.RawMessage
	Usage  Usage
}

// Adapter is the single operation every provider implements. Errors
// returned are *rerr.Error, classified for retry and sanitisation by the
// caller (the retry wrapper, then the router).
type Adapter interface {
	Name() Name
	GenerateStructured(ctx context.Context, req Request) (Response, error)
}

// StreamEvent is one partial (or terminal) chunk from a StreamingAdapter.
// Err, when set, ends the stream; the router records a failed usage event
// and stops emitting. Usage is only meaningful on the event with Done=true.
type StreamEvent struct {
	Partial json.RawMessage
	Done    bool
	Usage   Usage
	Err     error
}

// StreamingAdapter is the optional capability an Adapter may additionally
// implement to emit incremental partials instead of a single terminal
// result. The router falls back to wrapping GenerateStructured in a
// single done chunk when an adapter does not implement this.
type StreamingAdapter interface {
	Adapter
	GenerateStructuredStream(ctx context.Context, req Request) (<-chan StreamEvent, error)
}

// CredentialChecker lets the router verify credential presence during
// HandleStream's pre-flight, before any stream is started.
type CredentialChecker interface {
	HasCredential() bool
}

// HasCredential reports whether BaseAdapter's resolver currently returns a
// non-empty credential, satisfying CredentialChecker for embedding adapters.
func (b BaseAdapter) HasCredential() bool {
	return b.Credential() != ""
}

// CredentialResolver returns the configured API key for a provider, or ""
// if none is configured (adapters treat this as CodeNotConfigured).
type CredentialResolver func() string

// EnvCredential resolves a credential from an environment variable —
// the default resolver for all three shipped adapters.
func EnvCredential(envVar string) CredentialResolver {
	return func() string {
		return envFunc(envVar)
	}
}

// envFunc is a package-level indirection so tests can stub credential
// resolution without mutating the real process environment.
var envFunc = defaultEnvFunc

// BaseAdapter is the spine embedded by every concrete provider adapter: an
// HTTP client, a credential resolver, and a Retryer. Concrete adapters
// compose this for the transport + retry concerns and implement only their
// own wire format translation.
type BaseAdapter struct {
	Name       Name
	Client     *http.Client
	Credential CredentialResolver
	Retryer    *retry.Retryer
	Logger     *zap.Logger
}

// NewBaseAdapter constructs the shared spine. A zero timeout defaults to
// 30s; a nil logger defaults to zap.NewNop().
func NewBaseAdapter(name Name, timeout time.Duration, credential CredentialResolver, retryPolicy retry.Policy, logger *zap.Logger) BaseAdapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	scoped := logger.With(zap.String("component", "providers"), zap.String("provider", string(name)))
	return BaseAdapter{
		Name:       name,
		Client:     &http.Client{Timeout: timeout},
		Credential: credential,
		Retryer:    retry.New(retryPolicy, scoped),
		Logger:     scoped,
	}
}

// NotConfiguredError builds the "not configured" failure returned when a
// credential is absent — handled before any network call is attempted.
func (b BaseAdapter) NotConfiguredError() error {
	return rerr.New(rerr.CodeNotConfigured, "missing API credential").WithProvider(string(b.Name))
}

// MapHTTPError classifies an HTTP response into the taxonomy every adapter
// shares: auth failures are permanent, 429/502/503/504 are retryable, and
// everything else 5xx is retryable by convention.
func MapHTTPError(status int, msg string, provider Name) *rerr.Error {
	switch status {
	case http.StatusTooManyRequests:
		return rerr.New(rerr.CodeRateLimited, msg).WithHTTPStatus(status).WithRetryable(true).WithProvider(string(provider))
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return rerr.New(rerr.CodeTimeout, msg).WithHTTPStatus(status).WithRetryable(true).WithProvider(string(provider))
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return rerr.New(rerr.CodeUpstreamError, msg).WithHTTPStatus(status).WithRetryable(true).WithProvider(string(provider))
	case http.StatusUnauthorized, http.StatusForbidden:
		return rerr.New(rerr.CodeNotConfigured, msg).WithHTTPStatus(status).WithProvider(string(provider))
	case http.StatusBadRequest:
		return rerr.New(rerr.CodeInvalidRequest, msg).WithHTTPStatus(status).WithProvider(string(provider))
	default:
		return rerr.New(rerr.CodeUpstreamError, msg).WithHTTPStatus(status).WithRetryable(status >= 500).WithProvider(string(provider))
	}
}
