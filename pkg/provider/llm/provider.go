// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (e.g., Google Gemini,
// OpenAI, Anthropic, or a local Ollama instance) and exposes a uniform,
// stateless completion call. Conversation state is never kept by the provider:
// the caller re-supplies the full history on every request.
//
// Implementors must be safe for concurrent use.
package llm

import (
	"context"

	"github.com/MrWong99/voxrelay/pkg/types"
)

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is the
	// new user utterance that drives the response.
	Messages []types.Message

	// SystemPrompt is an optional instruction injected before the history.
	// Backends without a dedicated system field prepend it as a "system" message.
	SystemPrompt string

	// Temperature controls output randomness in the range [0.0, 2.0]. Zero
	// leaves the provider default in place.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means provider default.
	MaxTokens int
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	//
	// Returns an error if the request fails or if ctx is cancelled before the
	// response is received.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Unconfigured returns a [Provider] whose every call fails with err, so that a
// backend which could not be constructed fails at the LLM stage instead of at
// startup.
func Unconfigured(err error) Provider {
	return unconfigured{err: err}
}

type unconfigured struct{ err error }

func (u unconfigured) Complete(context.Context, CompletionRequest) (*CompletionResponse, error) {
	return nil, u.err
}
