// Package google implements the Gemini generateContent structured-output
// adapter via responseMimeType + responseSchema, raw net/http — no
// official Google SDK.
package google

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
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-2.0-flash"
)

// Models is the default model catalogue's google entries.
var Models = []string{"gemini-2.0-flash", "gemini-2.5-pro"}

// Adapter is the Gemini generateContent structured-output adapter.
type Adapter struct {
	providers.BaseAdapter
	baseURL string
	model   string
}

// New constructs the Google adapter. model defaults to the catalogue
// default when empty.
func New(model string, retryPolicy retry.Policy, logger *zap.Logger) *Adapter {
	if model == "" {
		model = defaultModel
	}
	return &Adapter{
		BaseAdapter: providers.NewBaseAdapter(providers.Google, 60*time.Second, providers.EnvCredential("GOOGLE_GENERATIVE_AI_API_KEY"), retryPolicy, logger),
		baseURL: defaultBaseURL,
		model:   model,
	}
}

func (a *Adapter) Name() providers.Name { return providers.Google }

type part struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature      float64         `json:"temperature,omitempty"`
	MaxOutputTokens  int             `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string          `json:"responseMimeType"`
	ResponseSchema   json.RawMessage `json:"responseSchema"`
}

type request struct {
	Contents          []geminiContent  `json:"contents"`
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type candidate struct {
	Content geminiContent `json:"content"`
}

type response struct {
	Candidates    []candidate    `json:"candidates"`
	UsageMetadata *usageMetadata `json:"usageMetadata,omitempty"`
}

// GenerateStructured requests generateContent with a responseSchema derived
// from req.Schema and decodes the first candidate's text as the structured
// result.
func (a *Adapter) GenerateStructured(ctx context.Context, req providers.Request) (providers.Response, error) {
	apiKey := a.BaseAdapter.Credential()
	if apiKey == "" {
		return providers.Response{}, a.BaseAdapter.NotConfiguredError()
	}

	schemaJSON, err := json.Marshal(req.Schema)
	if err != nil {
		return providers.Response{}, rerr.New(rerr.CodeSchemaValidation, "invalid schema").WithCause(err).WithProvider(string(providers.Google))
	}

	body := request{
		Contents: []geminiContent{{Role: "user", Parts: []part{{Text: req.Prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:      req.Temperature,
			MaxOutputTokens:  req.MaxOutputTokens,
			ResponseMimeType: "application/json",
			ResponseSchema:   schemaJSON,
		},
	}
	if req.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []part{{Text: req.System}}}
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
		return providers.Response{}, fmt.Errorf("google: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", a.baseURL, a.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return providers.Response{}, fmt.Errorf("google: build request: %w", err)
	}
	httpReq.Header.Set("x-goog-api-key", apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.BaseAdapter.Client.Do(httpReq)
	if err != nil {
		return providers.Response{}, rerr.New(rerr.CodeNetwork, err.Error()).WithRetryable(true).WithProvider(string(providers.Google)).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		return providers.Response{}, providers.MapHTTPError(resp.StatusCode, msg, providers.Google)
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return providers.Response{}, rerr.New(rerr.CodeUpstreamError, err.Error()).WithRetryable(true).WithProvider(string(providers.Google)).WithCause(err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return providers.Response{}, rerr.New(rerr.CodeUpstreamError, "no candidates in response").WithProvider(string(providers.Google))
	}

	u := providers.Usage{}
	if out.UsageMetadata != nil {
		u = providers.Usage{
			PromptTokens:     out.UsageMetadata.PromptTokenCount,
			CompletionTokens: out.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      out.UsageMetadata.TotalTokenCount,
		}
	}

	return providers.Response{
		Object: json.RawMessage(out.Candidates[0].Content.Parts[0].Text),
		Usage:  u.Normalize(),
	}, nil
}
