// Package rag answers natural-language questions over indexed document
// collections. The query loop is deterministic at every branch: cache
// probe, pre-retrieval analysis, embedding, vector search, post-retrieval
// shaping, generation, evaluation and cache write-back.
package rag

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/common"
	"github.com/ternarybob/trutina/internal/interfaces"
	"github.com/ternarybob/trutina/internal/models"
	"github.com/ternarybob/trutina/internal/services/embeddings"
	"github.com/ternarybob/trutina/internal/vectorstore"
)

const groundingSystemPrompt = "You are an analyst assistant for a banking ML platform. " +
	"Answer strictly from the provided context. When the context does not contain " +
	"the answer, say so plainly. Cite sources by their [Source N] header."

// Service runs the retrieval-augmented query loop.
type Service struct {
	store    vectorstore.Store
	embedder interfaces.Embedder
	llm      interfaces.LLMService
	cache    interfaces.CacheStorage
	cfg      *common.RAGConfig
	logger   arbor.ILogger
}

// NewService wires the query loop. llm may be nil; generation then falls
// back to returning the assembled context verbatim.
func NewService(store vectorstore.Store, embedder interfaces.Embedder, llm interfaces.LLMService,
	cache interfaces.CacheStorage, cfg *common.RAGConfig, logger arbor.ILogger) *Service {
	return &Service{
		store:    store,
		embedder: embedder,
		llm:      llm,
		cache:    cache,
		cfg:      cfg,
		logger:   logger,
	}
}

// Query answers one question. useCase scopes the search to a single
// collection when non-empty; otherwise every collection is searched.
func (s *Service) Query(ctx context.Context, query, useCase string) (*models.RAGResponse, error) {
	started := time.Now()
	normalized := strings.ToLower(strings.TrimSpace(query))
	queryHash := embeddings.TextHash(normalized)

	// step 1: cache probe
	if s.cache != nil {
		if cached, hit, err := s.cache.GetQuery(ctx, queryHash); err == nil && hit {
			s.logger.Debug().Str("query_hash", queryHash).Int("hits", cached.HitCount).Msg("Query cache hit")
			return &models.RAGResponse{
				Query:     query,
				Response:  cached.Response,
				Sources:   []models.SourceRef{},
				Intent:    AnalyzeQuery(query).Intent,
				Cached:    true,
				ElapsedMS: msSince(started),
			}, nil
		}
	}

	// step 2: pre-retrieval analysis
	analysis := AnalyzeQuery(query)

	// step 3: embed the rewritten query
	queryEmbedding, err := s.embedder.Embed(ctx, analysis.RewrittenQuery)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Query embedding failed")
		return &models.RAGResponse{
			Query:     query,
			Response:  "Could not generate an embedding for this query; the embedding service is unavailable.",
			Sources:   []models.SourceRef{},
			Intent:    analysis.Intent,
			Error:     "embedding_unavailable",
			ElapsedMS: msSince(started),
		}, nil
	}

	// step 4: vector search across the scoped collections
	results, err := s.search(ctx, queryEmbedding, useCase, analysis.Filters)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return &models.RAGResponse{
			Query:     query,
			Response:  "No relevant documents were found for this query.",
			Sources:   []models.SourceRef{},
			Intent:    analysis.Intent,
			NoResults: true,
			ElapsedMS: msSince(started),
		}, nil
	}

	// step 5: rerank, floor, dedupe, assemble
	shaped := dedupe(
		filterByScore(rerank(query, results), s.cfg.ScoreFloor),
		s.cfg.DedupeThreshold)
	if len(shaped) == 0 {
		return &models.RAGResponse{
			Query:     query,
			Response:  "No relevant documents were found for this query.",
			Sources:   []models.SourceRef{},
			Intent:    analysis.Intent,
			NoResults: true,
			ElapsedMS: msSince(started),
		}, nil
	}
	contextText, sources := assembleContext(shaped, s.cfg.ContextTokenLimit)

	// step 6: generate, falling back to the raw context
	response := s.generate(ctx, analysis.RewrittenQuery, contextText)

	// step 7: evaluate
	scores := Evaluate(query, response, contextText)

	// step 8: cache write-back
	if s.cache != nil {
		if err := s.cache.PutQuery(ctx, &models.CachedQuery{
			QueryHash:  queryHash,
			QueryText:  normalized,
			Response:   response,
			Embedding:  queryEmbedding,
			TTLSeconds: s.cfg.CacheTTLSeconds,
		}); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to cache query response")
		}
	}

	return &models.RAGResponse{
		Query:     query,
		Response:  response,
		Sources:   sources,
		Intent:    analysis.Intent,
		Scores:    &scores,
		ElapsedMS: msSince(started),
	}, nil
}

// search retrieves 2x top_k per collection, then unions and trims to
// top_k before reranking.
func (s *Service) search(ctx context.Context, queryEmbedding []float32, useCase string, filters map[string]string) ([]models.SearchResult, error) {
	var collections []string
	if useCase != "" {
		collections = []string{useCase}
	} else {
		var err error
		collections, err = s.store.ListCollections(ctx)
		if err != nil {
			return nil, err
		}
	}

	perCollection := 2 * s.cfg.TopK
	union := make([]models.SearchResult, 0, perCollection*len(collections))
	for _, collection := range collections {
		results, err := s.store.Search(ctx, collection, queryEmbedding, perCollection, filters)
		if err != nil {
			s.logger.Warn().Str("collection", collection).Err(err).Msg("Collection search failed, continuing with others")
			continue
		}
		union = append(union, results...)
	}

	sortBySimilarity(union)
	if len(union) > s.cfg.TopK {
		union = union[:s.cfg.TopK]
	}
	return union, nil
}

func (s *Service) generate(ctx context.Context, prompt, contextText string) string {
	if s.llm == nil || !s.llm.IsAvailable(ctx) {
		s.logger.Debug().Msg("LLM unavailable, returning assembled context verbatim")
		return contextText
	}

	userPrompt := "Context:\n" + contextText + "\n\nQuestion: " + prompt
	response, err := s.llm.Generate(ctx, groundingSystemPrompt, userPrompt)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Generation failed, returning assembled context verbatim")
		return contextText
	}
	return response
}

func sortBySimilarity(results []models.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
