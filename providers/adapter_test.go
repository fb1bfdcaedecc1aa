package providers_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/appdistillery/brain/providers"
	"github.com/appdistillery/brain/rerr"
	"github.com/appdistillery/brain/retry"
)

func TestMapHTTPError_StatusCodes(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		expectedCode  rerr.Code
		expectedRetry bool
	}{
		{"429 rate limited", http.StatusTooManyRequests, rerr.CodeRateLimited, true},
		{"408 timeout", http.StatusRequestTimeout, rerr.CodeTimeout, true},
		{"504 gateway timeout", http.StatusGatewayTimeout, rerr.CodeTimeout, true},
		{"502 bad gateway", http.StatusBadGateway, rerr.CodeUpstreamError, true},
		{"503 unavailable", http.StatusServiceUnavailable, rerr.CodeUpstreamError, true},
		{"401 unauthorized", http.StatusUnauthorized, rerr.CodeNotConfigured, false},
		{"403 forbidden", http.StatusForbidden, rerr.CodeNotConfigured, false},
		{"400 bad request", http.StatusBadRequest, rerr.CodeInvalidRequest, false},
		{"500 internal", http.StatusInternalServerError, rerr.CodeUpstreamError, true},
		{"418 teapot", http.StatusTeapot, rerr.CodeUpstreamError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := providers.MapHTTPError(tt.status, "boom", providers.Anthropic)
			assert.Equal(t, tt.expectedCode, err.Code)
			assert.Equal(t, tt.expectedRetry, err.Retryable)
			assert.Equal(t, tt.status, err.HTTPStatus)
			assert.Equal(t, string(providers.Anthropic), err.Provider)
		})
	}
}

func TestUsage_Normalize(t *testing.T) {
	u := providers.Usage{PromptTokens: 10, CompletionTokens: 20}.Normalize()
	assert.Equal(t, 30, u.TotalTokens)

	explicit := providers.Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 999}.Normalize()
	assert.Equal(t, 999, explicit.TotalTokens)
}

func TestReadErrorMessage_GenericShape(t *testing.T) {
	body := strings.NewReader(`{"error":{"message":"invalid api key","type":"authentication_error"}}`)
	msg := providers.ReadErrorMessage(body)
	assert.Equal(t, "invalid api key (type: authentication_error)", msg)
}

func TestReadErrorMessage_FallsBackToRawBody(t *testing.T) {
	body := strings.NewReader("not json at all")
	msg := providers.ReadErrorMessage(body)
	assert.Equal(t, "not json at all", msg)
}

func TestBaseAdapter_NotConfiguredWhenCredentialEmpty(t *testing.T) {
	base := providers.NewBaseAdapter(providers.OpenAI, 0, func() string { return "" }, retry.DefaultPolicy(), nil)
	assert.False(t, base.HasCredential())

	err := base.NotConfiguredError()
	var rerrErr *rerr.Error
	assert.ErrorAs(t, err, &rerrErr)
	assert.Equal(t, rerr.CodeNotConfigured, rerrErr.Code)
}

func TestBaseAdapter_HasCredentialWhenPresent(t *testing.T) {
	base := providers.NewBaseAdapter(providers.OpenAI, 0, func() string { return "sk-test" }, retry.DefaultPolicy(), nil)
	assert.True(t, base.HasCredential())
}
