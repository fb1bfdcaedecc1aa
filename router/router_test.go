package router_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appdistillery/brain/cache"
	"github.com/appdistillery/brain/config"
	"github.com/appdistillery/brain/providers"
	"github.com/appdistillery/brain/router"
	"github.com/appdistillery/brain/testutil/fixtures"
	"github.com/appdistillery/brain/testutil/mocks"
)

func newTestRouter(t *testing.T, adapter providers.Adapter, ledger *mocks.RecordingLedger) *router.Router {
	t.Helper()
	adapters := map[router.Provider]providers.Adapter{router.ProviderAnthropic: adapter}
	return router.New(adapters, cache.NewMemoryBackend(), nil, ledger, config.Default(), nil)
}

func TestHandle_Success(t *testing.T) {
	adapter := mocks.NewSuccessAdapter(providers.Anthropic, json.RawMessage(`{"name":"ada","age":31}`))
	ledger := mocks.NewRecordingLedger()
	r := newTestRouter(t, adapter, ledger)

	task := fixtures.DefaultTask("user-1", "Extract a profile from this text.")
	result := router.Handle(context.Background(), r, task)

	require.True(t, result.Success)
	assert.Equal(t, "ada", result.Data.Name)
	assert.Equal(t, 31, result.Data.Age)
	assert.Equal(t, 30, result.Usage.TotalTokens)
	assert.Equal(t, 1, adapter.CallCount())
	assert.Len(t, ledger.Events(), 1)
	assert.False(t, ledger.Events()[0].Metadata.Failed)
}

func TestHandle_CacheHitSkipsAdapter(t *testing.T) {
	adapter := mocks.NewSuccessAdapter(providers.Anthropic, json.RawMessage(`{"name":"ada","age":31}`))
	ledger := mocks.NewRecordingLedger()
	r := newTestRouter(t, adapter, ledger)

	task := fixtures.DefaultTask("user-1", "Extract a profile from this text.")
	first := router.Handle(context.Background(), r, task)
	require.True(t, first.Success)

	second := router.Handle(context.Background(), r, task)
	require.True(t, second.Success)
	assert.Equal(t, 1, adapter.CallCount(), "second call should be served from cache")
}

func TestHandle_UnknownProviderFails(t *testing.T) {
	adapter := mocks.NewSuccessAdapter(providers.Anthropic, json.RawMessage(`{}`))
	ledger := mocks.NewRecordingLedger()
	r := newTestRouter(t, adapter, ledger)

	task := fixtures.TaskWithProvider("user-1", "Extract a profile.", router.ProviderOpenAI)
	result := router.Handle(context.Background(), r, task)

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	assert.Equal(t, 0, adapter.CallCount())
}

func TestHandle_EmptyPromptFails(t *testing.T) {
	adapter := mocks.NewSuccessAdapter(providers.Anthropic, json.RawMessage(`{}`))
	ledger := mocks.NewRecordingLedger()
	r := newTestRouter(t, adapter, ledger)

	task := fixtures.DefaultTask("user-1", "   ")
	result := router.Handle(context.Background(), r, task)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "content")
	assert.Equal(t, 0, adapter.CallCount())
}

func TestHandle_AdapterErrorIsSanitizedAndRecorded(t *testing.T) {
	adapter := mocks.NewErrorAdapter(providers.Anthropic, errors.New("upstream exploded"))
	ledger := mocks.NewRecordingLedger()
	r := newTestRouter(t, adapter, ledger)

	task := fixtures.DefaultTask("user-1", "Extract a profile.")
	result := router.Handle(context.Background(), r, task)

	require.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	require.Len(t, ledger.Events(), 1)
	assert.True(t, ledger.Events()[0].Metadata.Failed)
}

func TestHandle_MalformedTaskTypeFails(t *testing.T) {
	adapter := mocks.NewSuccessAdapter(providers.Anthropic, json.RawMessage(`{}`))
	ledger := mocks.NewRecordingLedger()
	r := newTestRouter(t, adapter, ledger)

	task := fixtures.DefaultTask("user-1", "Extract a profile.")
	task.TaskType = "no-dot-here"
	result := router.Handle(context.Background(), r, task)

	assert.False(t, result.Success)
	assert.Equal(t, 0, adapter.CallCount())
}

func TestHandle_DecodeFailureIsReportedAsFailure(t *testing.T) {
	adapter := mocks.NewSuccessAdapter(providers.Anthropic, json.RawMessage(`not-json`))
	ledger := mocks.NewRecordingLedger()
	r := newTestRouter(t, adapter, ledger)

	task := fixtures.DefaultTask("user-1", "Extract a profile.")
	result := router.Handle(context.Background(), r, task)

	assert.False(t, result.Success)
	require.Len(t, ledger.Events(), 1)
	assert.True(t, ledger.Events()[0].Metadata.Failed)
}

func TestHandle_ZeroUsageFallsBackToEstimatedTokens(t *testing.T) {
	adapter := mocks.NewSuccessAdapter(providers.Anthropic, json.RawMessage(`{"name":"ada","age":31}`)).
		WithUsage(providers.Usage{})
	ledger := mocks.NewRecordingLedger()
	r := newTestRouter(t, adapter, ledger)

	task := fixtures.DefaultTask("user-1", "Extract a profile from a reasonably long sentence.")
	result := router.Handle(context.Background(), r, task)

	require.True(t, result.Success)
	require.Len(t, ledger.Events(), 1)
	assert.Greater(t, ledger.Events()[0].Units, 0)
}

func TestClearCache_RemovesCachedEntry(t *testing.T) {
	adapter := mocks.NewSuccessAdapter(providers.Anthropic, json.RawMessage(`{"name":"ada","age":31}`))
	ledger := mocks.NewRecordingLedger()
	r := newTestRouter(t, adapter, ledger)

	task := fixtures.DefaultTask("user-1", "Extract a profile.")
	require.True(t, router.Handle(context.Background(), r, task).Success)

	require.NoError(t, r.ClearCache(context.Background()))

	require.True(t, router.Handle(context.Background(), r, task).Success)
	assert.Equal(t, 2, adapter.CallCount(), "cache clear should force a second adapter call")
}

func TestRateLimitStatus_TracksPrincipal(t *testing.T) {
	adapter := mocks.NewSuccessAdapter(providers.Anthropic, json.RawMessage(`{"name":"ada","age":31}`))
	ledger := mocks.NewRecordingLedger()
	r := newTestRouter(t, adapter, ledger)

	task := fixtures.DefaultTask("principal-x", "Extract a profile.")
	require.True(t, router.Handle(context.Background(), r, task).Success)

	entry, ok, err := r.RateLimitStatus(context.Background(), "principal-x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, entry.Count)
}
