// Package fixtures provides sample Task/Response values for router and
// provider package tests, in the factory-function style of the corpus's
// own response fixtures.
package fixtures

import (
	"encoding/json"

	"github.com/appdistillery/brain/providers"
)

// Profile is a minimal structured-output destination type used across
// router and schema tests.
type Profile struct {
	Name string `json:"name" jsonschema:"required"`
	Age  int    `json:"age" jsonschema:"minimum=0"`
}

// SimpleResponse returns a successful providers.Response decoding to a
// Profile{Name: name}.
func SimpleResponse(name string) providers.Response {
	raw, _ := json.Marshal(Profile{Name: name, Age: 30})
	return providers.Response{
		Object: raw,
		Usage:  SmallUsage(),
	}
}

// ResponseWithUsage is SimpleResponse with a caller-supplied token count.
func ResponseWithUsage(name string, promptTokens, completionTokens int) providers.Response {
	resp := SimpleResponse(name)
	resp.Usage = CustomUsage(promptTokens, completionTokens)
	return resp
}

// MalformedResponse returns a Response whose Object is not valid JSON for
// the destination type, exercising the router's decode-failure path.
func MalformedResponse() providers.Response {
	return providers.Response{Object: json.RawMessage(`{not-json`), Usage: SmallUsage()}
}

// SmallUsage returns a small token count, typical of a short completion.
func SmallUsage() providers.Usage {
	return providers.Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30}
}

// MediumUsage returns a mid-sized token count.
func MediumUsage() providers.Usage {
	return providers.Usage{PromptTokens: 500, CompletionTokens: 1000, TotalTokens: 1500}
}

// LargeUsage returns a token count near typical context-window ceilings.
func LargeUsage() providers.Usage {
	return providers.Usage{PromptTokens: 4000, CompletionTokens: 4096, TotalTokens: 8096}
}

// CustomUsage builds a Usage from explicit prompt/completion counts.
func CustomUsage(prompt, completion int) providers.Usage {
	return providers.Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
}
