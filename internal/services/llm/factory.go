// Package llm provides text generation behind one provider-agnostic
// interface. The provider is chosen by configuration at startup.
package llm

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/common"
	"github.com/ternarybob/trutina/internal/interfaces"
)

// NewLLMService creates the configured provider.
func NewLLMService(cfg *common.Config, logger arbor.ILogger) (interfaces.LLMService, error) {
	logger.Info().Str("provider", string(cfg.LLM.Provider)).Msg("Initializing LLM service")

	switch cfg.LLM.Provider {
	case common.LLMProviderOllama:
		return NewOllamaService(&cfg.LLM, logger)
	case common.LLMProviderClaude:
		return NewClaudeService(&cfg.LLM, logger)
	case common.LLMProviderGemini:
		return NewGeminiService(&cfg.LLM, cfg.RAG.EmbeddingDim, logger)
	default:
		return nil, apperr.Validation("unsupported LLM provider %q (want ollama, claude or gemini)", cfg.LLM.Provider)
	}
}
