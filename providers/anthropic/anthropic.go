// Package anthropic implements the Messages API adapter: x-api-key auth,
// structured output forced via a single tool_choice, raw net/http — no
// official Anthropic SDK, matching the corpus's own hand-rolled Claude
// client.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/appdistillery/brain/providers"
	"github.com/appdistillery/brain/retry"
	"github.com/appdistillery/brain/rerr"
)

const (
	defaultBaseURL    = "https://api.anthropic.com"
	defaultModel      = "claude-sonnet-4-20250514"
	apiVersion        = "2023-06-01"
	messagesPath      = "/v1/messages"
	structuredOutTool = "emit_structured_output"
)

// Models is the default model catalogue's anthropic entries.
var Models = []string{"claude-sonnet-4-20250514", "claude-opus-4-1", "claude-haiku-4-5"}

// Adapter is the Anthropic Messages API structured-output adapter.
type Adapter struct {
	providers.BaseAdapter
	baseURL string
	model   string
}

// New constructs the Anthropic adapter. model defaults to the catalogue
// default when empty.
func New(model string, retryPolicy retry.Policy, logger *zap.Logger) *Adapter {
	if model == "" {
		model = defaultModel
	}
	return &Adapter{
		BaseAdapter: providers.NewBaseAdapter(providers.Anthropic, 60*time.Second, providers.EnvCredential("ANTHROPIC_API_KEY"), retryPolicy, logger),
		baseURL: defaultBaseURL,
		model:   model,
	}
}

func (a *Adapter) Name() providers.Name { return providers.Anthropic }

type message struct {
	Role    string    `json:"role"`
	Content []content `json:"content"`
}

type content struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type toolChoice struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type request struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	System      string    `json:"system,omitempty"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature,omitempty"`
	Tools       []tool    `json:"tools"`
	ToolChoice  toolChoice `json:"tool_choice"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type response struct {
	Content    []content `json:"content"`
	StopReason string    `json:"stop_reason"`
	Usage      *usage    `json:"usage,omitempty"`
}

// GenerateStructured forces a single tool call matching req.Schema and
// extracts its input as the structured result.
func (a *Adapter) GenerateStructured(ctx context.Context, req providers.Request) (providers.Response, error) {
	apiKey := a.BaseAdapter.Credential()
	if apiKey == "" {
		return providers.Response{}, a.BaseAdapter.NotConfiguredError()
	}

	schemaJSON, err := json.Marshal(req.Schema)
	if err != nil {
		return providers.Response{}, rerr.New(rerr.CodeSchemaValidation, "invalid schema").WithCause(err).WithProvider(string(providers.Anthropic))
	}

	toolName := req.SchemaName
	if toolName == "" {
		toolName = structuredOutTool
	}

	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	body := request{
		Model:       a.model,
		System:      req.System,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Messages:    []message{{Role: "user", Content: []content{{Type: "text", Text: req.Prompt}}}},
		Tools:       []tool{{Name: toolName, InputSchema: schemaJSON}},
		ToolChoice:  toolChoice{Type: "tool", Name: toolName},
	}

	var result providers.Response
	err = a.BaseAdapter.Retryer.Do(ctx, func() error {
		resp, callErr := a.call(ctx, apiKey, body)
		if callErr != nil {
			return callErr
		}
		result = resp
		return nil
	})
	if err != nil {
		return providers.Response{}, err
	}
	return result, nil
}

func (a *Adapter) call(ctx context.Context, apiKey string, body request) (providers.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return providers.Response{}, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+messagesPath, bytes.NewReader(payload))
	if err != nil {
		return providers.Response{}, fmt.Errorf("anthropic: build request: %w", err)
	}
	httpReq.Header.Set("x-api-key", apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.BaseAdapter.Client.Do(httpReq)
	if err != nil {
		return providers.Response{}, rerr.New(rerr.CodeNetwork, err.Error()).WithRetryable(true).WithProvider(string(providers.Anthropic)).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		return providers.Response{}, providers.MapHTTPError(resp.StatusCode, msg, providers.Anthropic)
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return providers.Response{}, rerr.New(rerr.CodeUpstreamError, err.Error()).WithRetryable(true).WithProvider(string(providers.Anthropic)).WithCause(err)
	}

	var toolInput json.RawMessage
	for _, c := range out.Content {
		if c.Type == "tool_use" {
			toolInput = c.Input
			break
		}
	}
	if toolInput == nil {
		return providers.Response{}, rerr.New(rerr.CodeUpstreamError, "no structured tool_use block in response").WithProvider(string(providers.Anthropic))
	}

	u := providers.Usage{}
	if out.Usage != nil {
		u = providers.Usage{PromptTokens: out.Usage.InputTokens, CompletionTokens: out.Usage.OutputTokens}
	}

	return providers.Response{Object: toolInput, Usage: u.Normalize()}, nil
}
