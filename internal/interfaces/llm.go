package interfaces

import "context"

// LLMService generates text completions. Implementations wrap one provider;
// the provider is selected at startup and never switches per call.
type LLMService interface {
	// Generate produces a completion for the prompt pair. The system prompt
	// may be empty.
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// ProviderName identifies the backing provider for logs and reports.
	ProviderName() string
	// IsAvailable probes the provider without generating.
	IsAvailable(ctx context.Context) bool
}

// Embedder produces fixed-dimension embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// MethodName identifies the embedding method for cache keys and stats.
	MethodName() string
}
