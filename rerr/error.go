// Package rerr defines the internal error taxonomy shared by the retry
// wrapper, the provider adapters, and the router. Only the router is
// permitted to turn one of these into the sanitised user-facing string
// that leaves the package boundary.
package rerr

import "fmt"

// Code classifies an internal error for retry and sanitisation decisions.
type Code string

const (
	CodeInvalidRequest    Code = "INVALID_REQUEST"
	CodeNotConfigured     Code = "NOT_CONFIGURED"
	CodeRateLimited       Code = "RATE_LIMITED"
	CodeTimeout           Code = "TIMEOUT"
	CodeNetwork           Code = "NETWORK"
	CodeUpstreamError     Code = "UPSTREAM_ERROR"
	CodeSchemaValidation  Code = "SCHEMA_VALIDATION"
	CodeInternal          Code = "INTERNAL"
)

// Error is a structured, classified error that flows between the provider
// adapters, the retry wrapper, and the router. It is never returned to a
// caller of the router directly — see Sanitize.
type Error struct {
	Code       Code
	Message    string
	HTTPStatus int
	Retryable  bool
	Provider   string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause attaches an underlying cause.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the originating HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks whether the error is transient.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider tags the error with the adapter that produced it.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// IsRetryable reports whether err is a retryable *Error, or matches the
// status-code / message heuristics from the spec's isRetryableError table
// when err did not originate from this package (e.g. a raw net error).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetCode extracts the Code from err, or "" if err is not an *Error.
func GetCode(err error) Code {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// Sanitize maps a classified error to the user-visible string defined by
// spec.md §4.4. The full technical error is never included; callers are
// expected to have already logged err at the call site.
func Sanitize(err error) string {
	if err == nil {
		return ""
	}
	e, ok := err.(*Error)
	if !ok {
		return "Unable to complete your request. Please try again later."
	}
	switch e.Code {
	case CodeRateLimited:
		return "Rate limit exceeded. Please try again later."
	case CodeTimeout:
		return "Request timed out. Please try again."
	case CodeNetwork:
		return "Unable to connect to the AI service. Please check your connection and try again."
	case CodeNotConfigured:
		return "AI service is not configured. Please contact support."
	default:
		return "Unable to complete your request. Please try again later."
	}
}
