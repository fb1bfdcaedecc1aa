package router

import "github.com/appdistillery/brain/schema"

// Provider selects which adapter a Task is routed to.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGoogle    Provider = "google"
)

// Options configures a single Task beyond its prompts and schema. Pointer
// fields are optional-with-default, mirroring the corpus's convention for
// nullable configuration knobs.
type Options struct {
	Provider        Provider
	MaxOutputTokens int
	Temperature     float64
	TimeoutMs       int
	UseCache        *bool
	CacheTTLMs      *int64
}

func (o Options) useCache() bool {
	return o.UseCache == nil || *o.UseCache
}

func (o Options) provider() Provider {
	if o.Provider == "" {
		return ProviderAnthropic
	}
	return o.Provider
}

// Task is the request object submitted to Handle/HandleStream.
type Task[T any] struct {
	PrincipalID  string
	UserID       string
	ModuleID     string
	TaskType     string
	SystemPrompt string
	UserPrompt   string
	Schema       schema.Schema[T]
	Options      Options
}

func (t Task[T]) principal() string {
	if t.PrincipalID != "" {
		return t.PrincipalID
	}
	return t.UserID
}

// ResultUsage is the usage accounting attached to a Result.
type ResultUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	DurationMs       int64
	Units            int
}

// Result is the discriminated outcome of Handle: exactly one of Success or
// Failure is meaningful, selected by Success.
type Result[T any] struct {
	Success bool
	Data    T
	Error   string
	Usage   ResultUsage
}

// StreamChunk is a partial-result notification from HandleStream. Done is
// true exactly once, on the final, fully-assembled chunk.
type StreamChunk[T any] struct {
	Partial T
	Done    bool
	Err     error
}

// StreamHandle is returned by HandleStream on a successful pre-flight; the
// caller ranges over Chunks until it closes.
type StreamHandle[T any] struct {
	Chunks <-chan StreamChunk[T]
}
