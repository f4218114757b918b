// Package llm provides the AI provider clients used to classify, embed and
// summarize feedback.
package llm

import (
	"context"
)

// ChatClient generates a single completion from a prompt.
// Implemented for OpenAI-compatible endpoints and Anthropic.
type ChatClient interface {
	// GenerateResponse returns the text of one completion.
	GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64, maxTokens int) (string, error)

	// GetModel returns the configured model name.
	GetModel() string

	// Provider returns the provider name, e.g. "openai".
	Provider() string
}

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	// CreateEmbedding generates an embedding vector for the input text.
	CreateEmbedding(ctx context.Context, input string) ([]float32, error)

	// GetModel returns the configured embedding model name.
	GetModel() string

	// Provider returns the provider name, e.g. "openai".
	Provider() string
}

// Ensure clients implement the interfaces at compile time.
var (
	_ ChatClient = (*Client)(nil)
	_ Embedder   = (*Client)(nil)
	_ ChatClient = (*AnthropicClient)(nil)
)
