// Package embeddings turns text into fixed-dimension vectors. The method
// is selected once at construction: the configured LLM provider's embedding
// endpoint when it is reachable, otherwise a deterministic hashed TF-IDF
// projection. There is no per-call failover; mixing methods within one
// collection would make similarities meaningless.
package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/interfaces"
)

// Service embeds text with read-through caching keyed by text hash.
type Service struct {
	embedder interfaces.Embedder
	cache    interfaces.CacheStorage
	logger   arbor.ILogger
}

// NewService picks the embedding method. provider is the LLM service when
// it also embeds; nil or an unavailable provider selects the TF-IDF
// fallback.
func NewService(provider interfaces.LLMService, dim int, cache interfaces.CacheStorage, logger arbor.ILogger) *Service {
	var embedder interfaces.Embedder
	if candidate, ok := provider.(interfaces.Embedder); ok && provider.IsAvailable(context.Background()) {
		embedder = candidate
	} else {
		logger.Warn().Int("dim", dim).Msg("No embedding endpoint available, using hashed TF-IDF fallback")
		embedder = newTFIDFEmbedder(dim)
	}

	logger.Info().Str("method", embedder.MethodName()).Msg("Embedding pipeline initialized")
	return &Service{embedder: embedder, cache: cache, logger: logger}
}

// MethodName identifies the selected embedding method.
func (s *Service) MethodName() string {
	return s.embedder.MethodName()
}

// TextHash returns the cache key for a text: lowercase hex SHA-256.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Embed returns the embedding for one text, consulting the cache first.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	hash := TextHash(text)

	if s.cache != nil {
		if vec, hit, err := s.cache.GetEmbedding(ctx, hash); err == nil && hit {
			return vec, nil
		}
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.PutEmbedding(ctx, hash, text, s.embedder.MethodName(), vec); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to cache embedding")
		}
	}
	return vec, nil
}

// EmbedBatch embeds texts sequentially, stopping at the first failure.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

var _ interfaces.Embedder = (*Service)(nil)
