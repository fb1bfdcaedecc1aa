package rerr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/appdistillery/brain/rerr"
)

func TestError_ImplementsErrorInterface(t *testing.T) {
	err := rerr.New(rerr.CodeTimeout, "upstream took too long")
	assert.Equal(t, "[TIMEOUT] upstream took too long", err.Error())
}

func TestError_WithCauseWraps(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := rerr.New(rerr.CodeNetwork, "could not reach provider").WithCause(cause)

	assert.Contains(t, err.Error(), "connection refused")
	assert.ErrorIs(t, err, cause)
}

func TestError_Builders(t *testing.T) {
	err := rerr.New(rerr.CodeUpstreamError, "boom").
		WithHTTPStatus(503).
		WithRetryable(true).
		WithProvider("openai")

	assert.Equal(t, 503, err.HTTPStatus)
	assert.True(t, err.Retryable)
	assert.Equal(t, "openai", err.Provider)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, rerr.IsRetryable(rerr.New(rerr.CodeRateLimited, "x").WithRetryable(true)))
	assert.False(t, rerr.IsRetryable(rerr.New(rerr.CodeInvalidRequest, "x")))
	assert.False(t, rerr.IsRetryable(errors.New("plain error")))
	assert.False(t, rerr.IsRetryable(nil))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, rerr.CodeSchemaValidation, rerr.GetCode(rerr.New(rerr.CodeSchemaValidation, "x")))
	assert.Equal(t, rerr.Code(""), rerr.GetCode(errors.New("plain")))
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		code rerr.Code
		want string
	}{
		{rerr.CodeRateLimited, "Rate limit exceeded. Please try again later."},
		{rerr.CodeTimeout, "Request timed out. Please try again."},
		{rerr.CodeNetwork, "Unable to connect to the AI service. Please check your connection and try again."},
		{rerr.CodeNotConfigured, "AI service is not configured. Please contact support."},
		{rerr.CodeInternal, "Unable to complete your request. Please try again later."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, rerr.Sanitize(rerr.New(tt.code, "internal detail")))
	}
}

func TestSanitize_NilAndNonRerrError(t *testing.T) {
	assert.Equal(t, "", rerr.Sanitize(nil))
	assert.Equal(t, "Unable to complete your request. Please try again later.", rerr.Sanitize(errors.New("raw")))
}
