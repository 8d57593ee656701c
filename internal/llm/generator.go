// Package llm provides text generation clients for the author digest service.
//
// This package defines the Generator abstraction used by the digest pipeline
// for structured extraction and synthesis, along with provider adapters for
// the OpenAI, Anthropic, and Google Gemini APIs. Adapters perform a single
// API call per Generate invocation and classify failures via APIError; retry
// policy belongs to the caller, which knows the pipeline's rate budget.
package llm

import (
	"context"
)

// GenerateRequest contains parameters for a single text generation call.
type GenerateRequest struct {
	// Prompt is the user-level prompt text.
	Prompt string

	// SystemPrompt is the system-level instruction (optional).
	SystemPrompt string

	// JSONMode requests a JSON-only response from providers that support
	// enforcing it; providers without native support rely on the prompt.
	JSONMode bool

	// MaxTokens caps the response length. Zero means the provider default.
	MaxTokens int
}

// Generator defines the interface for LLM text generation.
//
// Implementations handle provider-specific API calls and response parsing
// while conforming to this unified interface.
type Generator interface {
	// Generate produces a completion for the given request and returns the
	// raw response text. The context should be used for cancellation and
	// deadline propagation.
	//
	// Implementations should:
	//   - Respect context cancellation
	//   - Perform exactly one API call (no internal retries)
	//   - Return *APIError for provider failures so callers can classify them
	Generate(ctx context.Context, req GenerateRequest) (string, error)

	// Provider returns the name of the LLM provider (e.g., "openai", "gemini").
	Provider() string

	// Model returns the model identifier being used (e.g., "gpt-4o-mini").
	Model() string
}
