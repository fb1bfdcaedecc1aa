// Package openai implements the Chat Completions structured-output adapter
// via response_format: json_schema, raw net/http — no official OpenAI SDK.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/appdistillery/brain/providers"
	"github.com/appdistillery/brain/retry"
	"github.com/appdistillery/brain/rerr"
)

const (
	defaultBaseURL      = "https://api.openai.com"
	defaultModel        = "gpt-4o-mini"
	chatCompletionsPath = "/v1/chat/completions"
)

// Models is the default model catalogue's openai entries.
var Models = []string{"gpt-4o-mini", "gpt-4o", "gpt-5.2"}

// Adapter is the OpenAI Chat Completions structured-output adapter.
type Adapter struct {
	providers.BaseAdapter
	baseURL string
	model   string
}

// New constructs the OpenAI adapter. model defaults to the catalogue
// default when empty.
func New(model string, retryPolicy retry.Policy, logger *zap.Logger) *Adapter {
	if model == "" {
		model = defaultModel
	}
	return &Adapter{
		BaseAdapter: providers.NewBaseAdapter(providers.OpenAI, 30*time.Second, providers.EnvCredential("OPENAI_API_KEY"), retryPolicy, logger),
		baseURL: defaultBaseURL,
		model:   model,
	}
}

func (a *Adapter) Name() providers.Name { return providers.OpenAI }

// WithBaseURL overrides the API base URL, for pointing the adapter at a
// test server instead of the real OpenAI endpoint.
func (a *Adapter) WithBaseURL(url string) *Adapter {
	a.baseURL = url
	return a
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

type responseFormat struct {
	Type       string           `json:"type"`
	JSONSchema jsonSchemaFormat `json:"json_schema"`
}

type request struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	Temperature    float64        `json:"temperature,omitempty"`
	ResponseFormat responseFormat `json:"response_format"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// streamRequest is request with SSE streaming turned on. OpenAI only
// returns a final usage chunk when stream_options.include_usage is set.
type streamRequest struct {
	request
	Stream        bool          `json:"stream"`
	StreamOptions streamOptions `json:"stream_options"`
}

type streamDelta struct {
	Content string `json:"content"`
}

type streamChoice struct {
	Delta        streamDelta `json:"delta"`
	FinishReason string      `json:"finish_reason"`
}

// streamChunk is one `data: {...}` line of the chat completions SSE stream.
type streamChunk struct {
	Choices []streamChoice `json:"choices"`
	Usage   *usage         `json:"usage,omitempty"`
}

type choice struct {
	Message chatMessage `json:"message"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type response struct {
	Choices []choice `json:"choices"`
	Usage   *usage   `json:"usage,omitempty"`
}

// GenerateStructured sends a single-turn chat completion constrained by
// req.Schema via response_format: json_schema, and decodes the assistant
// message's content as the structured result.
func (a *Adapter) GenerateStructured(ctx context.Context, req providers.Request) (providers.Response, error) {
	apiKey := a.BaseAdapter.Credential()
	if apiKey == "" {
		return providers.Response{}, a.BaseAdapter.NotConfiguredError()
	}

	schemaJSON, err := json.Marshal(req.Schema)
	if err != nil {
		return providers.Response{}, rerr.New(rerr.CodeSchemaValidation, "invalid schema").WithCause(err).WithProvider(string(providers.OpenAI))
	}

	schemaName := req.SchemaName
	if schemaName == "" {
		schemaName = "structured_output"
	}

	var messages []chatMessage
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body := request{
		Model:       a.model,
		Messages:    messages,
		MaxTokens:   req.MaxOutputTokens,
		Temperature: req.Temperature,
		ResponseFormat: responseFormat{
			Type:       "json_schema",
			JSONSchema: jsonSchemaFormat{Name: schemaName, Strict: true, Schema: schemaJSON},
		},
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
		return providers.Response{}, fmt.Errorf("openai: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+chatCompletionsPath, bytes.NewReader(payload))
	if err != nil {
		return providers.Response{}, fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.BaseAdapter.Client.Do(httpReq)
	if err != nil {
		return providers.Response{}, rerr.New(rerr.CodeNetwork, err.Error()).WithRetryable(true).WithProvider(string(providers.OpenAI)).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		return providers.Response{}, providers.MapHTTPError(resp.StatusCode, msg, providers.OpenAI)
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return providers.Response{}, rerr.New(rerr.CodeUpstreamError, err.Error()).WithRetryable(true).WithProvider(string(providers.OpenAI)).WithCause(err)
	}
	if len(out.Choices) == 0 {
		return providers.Response{}, rerr.New(rerr.CodeUpstreamError, "no choices in response").WithProvider(string(providers.OpenAI))
	}

	u := providers.Usage{}
	if out.Usage != nil {
		u = providers.Usage{PromptTokens: out.Usage.PromptTokens, CompletionTokens: out.Usage.CompletionTokens, TotalTokens: out.Usage.TotalTokens}
	}

	return providers.Response{
		Object: json.RawMessage(out.Choices[0].Message.Content),
		Usage:  u.Normalize(),
	}, nil
}

// GenerateStructuredStream opens a Chat Completions request with stream:
// true and emits one providers.StreamEvent per SSE data line whose
// accumulated content is itself valid JSON. Content deltas only become
// parseable JSON once the model's incremental output closes its braces, so
// most calls emit a single non-done event shortly before the terminal one;
// that is still a strictly incremental stream over the wire, unlike the
// single blocking GenerateStructured call. Satisfies providers.StreamingAdapter.
func (a *Adapter) GenerateStructuredStream(ctx context.Context, req providers.Request) (<-chan providers.StreamEvent, error) {
	apiKey := a.BaseAdapter.Credential()
	if apiKey == "" {
		return nil, a.BaseAdapter.NotConfiguredError()
	}

	schemaJSON, err := json.Marshal(req.Schema)
	if err != nil {
		return nil, rerr.New(rerr.CodeSchemaValidation, "invalid schema").WithCause(err).WithProvider(string(providers.OpenAI))
	}

	schemaName := req.SchemaName
	if schemaName == "" {
		schemaName = "structured_output"
	}

	var messages []chatMessage
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body := streamRequest{
		request: request{
			Model:       a.model,
			Messages:    messages,
			MaxTokens:   req.MaxOutputTokens,
			Temperature: req.Temperature,
			ResponseFormat: responseFormat{
				Type:       "json_schema",
				JSONSchema: jsonSchemaFormat{Name: schemaName, Strict: true, Schema: schemaJSON},
			},
		},
		Stream:        true,
		StreamOptions: streamOptions{IncludeUsage: true},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal stream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+chatCompletionsPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("openai: build stream request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := a.BaseAdapter.Client.Do(httpReq)
	if err != nil {
		return nil, rerr.New(rerr.CodeNetwork, err.Error()).WithRetryable(true).WithProvider(string(providers.OpenAI)).WithCause(err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, providers.OpenAI)
	}

	return streamSSE(ctx, resp.Body), nil
}

// streamSSE parses the Chat Completions SSE body, accumulating content
// deltas and forwarding a StreamEvent whenever the buffer so far is valid
// JSON, until a [DONE] marker closes the stream with a final Done event.
func streamSSE(ctx context.Context, body io.ReadCloser) <-chan providers.StreamEvent {
	ch := make(chan providers.StreamEvent)
	go func() {
		defer body.Close()
		defer close(ch)

		reader := bufio.NewReader(body)
		var buf bytes.Buffer
		var finalUsage providers.Usage

		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					select {
					case ch <- providers.StreamEvent{Err: fmt.Errorf("openai: read stream: %w", err)}:
					case <-ctx.Done():
					}
				}
				return
			}

			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				select {
				case ch <- providers.StreamEvent{Partial: snapshot(buf.Bytes()), Done: true, Usage: finalUsage.Normalize()}:
				case <-ctx.Done():
				}
				return
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				select {
				case ch <- providers.StreamEvent{Err: fmt.Errorf("openai: decode stream chunk: %w", err)}:
				case <-ctx.Done():
				}
				return
			}
			if chunk.Usage != nil {
				finalUsage = providers.Usage{PromptTokens: chunk.Usage.PromptTokens, CompletionTokens: chunk.Usage.CompletionTokens, TotalTokens: chunk.Usage.TotalTokens}
			}
			for _, c := range chunk.Choices {
				buf.WriteString(c.Delta.Content)
			}

			if buf.Len() > 0 && json.Valid(buf.Bytes()) {
				select {
				case ch <- providers.StreamEvent{Partial: snapshot(buf.Bytes())}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch
}

// snapshot copies b so a StreamEvent sent on the channel stays valid after
// the producer resumes writing to the accumulation buffer it came from.
func snapshot(b []byte) json.RawMessage {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
