package router_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appdistillery/brain/providers"
	"github.com/appdistillery/brain/router"
	"github.com/appdistillery/brain/testutil/fixtures"
	"github.com/appdistillery/brain/testutil/mocks"
)

func TestHandleStream_FallsBackToSingleDoneChunk(t *testing.T) {
	adapter := mocks.NewSuccessAdapter(providers.Anthropic, json.RawMessage(`{"name":"ada","age":31}`))
	ledger := mocks.NewRecordingLedger()
	r := newTestRouter(t, adapter, ledger)

	task := fixtures.DefaultTask("user-1", "Extract a profile.")
	handle, err := router.HandleStream(context.Background(), r, task)
	require.NoError(t, err)

	var chunks []router.StreamChunk[fixtures.Profile]
	for chunk := range handle.Chunks {
		chunks = append(chunks, chunk)
	}

	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].Done)
	assert.Equal(t, "ada", chunks[0].Partial.Name)
	require.Len(t, ledger.Events(), 1)
}

func TestHandleStream_UnknownProviderFailsPreFlight(t *testing.T) {
	adapter := mocks.NewSuccessAdapter(providers.Anthropic, json.RawMessage(`{}`))
	ledger := mocks.NewRecordingLedger()
	r := newTestRouter(t, adapter, ledger)

	task := fixtures.TaskWithProvider("user-1", "Extract a profile.", router.ProviderGoogle)
	_, err := router.HandleStream(context.Background(), r, task)
	require.Error(t, err)
}

func TestHandleStream_GenerationErrorEmitsTerminalErrorChunk(t *testing.T) {
	adapter := mocks.NewErrorAdapter(providers.Anthropic, errors.New("generation failed"))
	ledger := mocks.NewRecordingLedger()
	r := newTestRouter(t, adapter, ledger)

	task := fixtures.DefaultTask("user-1", "Extract a profile.")
	handle, err := router.HandleStream(context.Background(), r, task)
	require.NoError(t, err)

	var chunks []router.StreamChunk[fixtures.Profile]
	for chunk := range handle.Chunks {
		chunks = append(chunks, chunk)
	}

	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].Done)
	require.Error(t, chunks[0].Err)
	assert.Contains(t, chunks[0].Err.Error(), "generation failed")

	require.Len(t, ledger.Events(), 1)
	assert.True(t, ledger.Events()[0].Metadata.Failed)
}

func TestHandleStream_StreamingAdapterEmitsPartialChunks(t *testing.T) {
	base := mocks.NewAdapter(providers.Anthropic)
	adapter := mocks.NewStreamingAdapter(base,
		providers.StreamEvent{Partial: json.RawMessage(`{"name":"ada"}`)},
		providers.StreamEvent{Partial: json.RawMessage(`{"name":"ada","age":0}`)},
		providers.StreamEvent{
			Partial: json.RawMessage(`{"name":"ada","age":31}`),
			Done:    true,
			Usage:   providers.Usage{PromptTokens: 5, CompletionTokens: 7, TotalTokens: 12},
		},
	)
	ledger := mocks.NewRecordingLedger()
	r := newTestRouter(t, adapter, ledger)

	task := fixtures.DefaultTask("user-1", "Extract a profile.")
	handle, err := router.HandleStream(context.Background(), r, task)
	require.NoError(t, err)

	var chunks []router.StreamChunk[fixtures.Profile]
	for chunk := range handle.Chunks {
		chunks = append(chunks, chunk)
	}
	require.Len(t, chunks, 3)

	var nonDone int
	for _, c := range chunks[:len(chunks)-1] {
		assert.False(t, c.Done)
		nonDone++
	}
	assert.GreaterOrEqual(t, nonDone, 1)

	last := chunks[len(chunks)-1]
	assert.True(t, last.Done)
	assert.Nil(t, last.Err)
	assert.Equal(t, 31, last.Partial.Age)

	require.Len(t, ledger.Events(), 1)
	assert.False(t, ledger.Events()[0].Metadata.Failed)
}

func TestHandleStream_ContextCancellationStopsEmission(t *testing.T) {
	adapter := mocks.NewSuccessAdapter(providers.Anthropic, json.RawMessage(`{"name":"ada","age":31}`))
	ledger := mocks.NewRecordingLedger()
	r := newTestRouter(t, adapter, ledger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	task := fixtures.DefaultTask("user-1", "Extract a profile.")
	handle, err := router.HandleStream(ctx, r, task)
	require.NoError(t, err)

	select {
	case <-handle.Chunks:
	case <-time.After(time.Second):
		t.Fatal("expected channel to close promptly after context cancellation")
	}
}
