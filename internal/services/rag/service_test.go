package rag

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/common"
	"github.com/ternarybob/trutina/internal/interfaces"
	"github.com/ternarybob/trutina/internal/models"
	"github.com/ternarybob/trutina/internal/services/embeddings"
	"github.com/ternarybob/trutina/internal/storage/sqlite"
	"github.com/ternarybob/trutina/internal/vectorstore"
)

type stubLLM struct {
	response  string
	available bool
	calls     int
}

func (s *stubLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	s.calls++
	return s.response, nil
}
func (s *stubLLM) ProviderName() string                 { return "stub" }
func (s *stubLLM) IsAvailable(ctx context.Context) bool { return s.available }

var _ interfaces.LLMService = (*stubLLM)(nil)

func newTestService(t *testing.T, llm interfaces.LLMService) (*Service, *embeddings.Service, vectorstore.Store) {
	t.Helper()
	logger := arbor.NewLogger()

	store, err := vectorstore.NewDenseStore(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	db, err := sqlite.NewSQLiteDB(filepath.Join(t.TempDir(), "rag_cache.db"), logger, sqlite.MigrateCache)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	cache := sqlite.NewCacheStorage(db, logger)

	embedder := embeddings.NewService(nil, 384, cache, logger)
	cfg := &common.RAGConfig{
		TopK:              5,
		ScoreFloor:        0.05,
		DedupeThreshold:   0.9,
		ContextTokenLimit: 3000,
		CacheTTLSeconds:   3600,
		EmbeddingDim:      384,
	}
	return NewService(store, embedder, llm, cache, cfg, logger), embedder, store
}

func indexChunks(t *testing.T, svc *embeddings.Service, store vectorstore.Store, collection string, texts ...string) {
	t.Helper()
	ctx := context.Background()
	records := make([]models.VectorRecord, 0, len(texts))
	for i, text := range texts {
		vec, err := svc.Embed(ctx, text)
		require.NoError(t, err)
		records = append(records, models.VectorRecord{
			ChunkID:   collection + "_" + string(rune('a'+i)),
			Text:      text,
			Metadata:  map[string]string{"source": "report.csv"},
			Embedding: vec,
		})
	}
	require.NoError(t, store.Add(ctx, collection, records))
}

func TestQueryEndToEndWithLLM(t *testing.T) {
	llm := &stubLLM{response: "Fraud losses rose because chargebacks doubled.", available: true}
	service, embedder, store := newTestService(t, llm)
	indexChunks(t, embedder, store, "fraud_detection",
		"fraud losses rose sharply as chargebacks doubled in the third quarter",
		"collections recovery rates were stable")

	resp, err := service.Query(context.Background(), "why did fraud losses rise", "fraud_detection")
	require.NoError(t, err)

	assert.Equal(t, "Fraud losses rose because chargebacks doubled.", resp.Response)
	assert.False(t, resp.Cached)
	assert.False(t, resp.NoResults)
	assert.NotEmpty(t, resp.Sources)
	assert.Equal(t, models.IntentAnalytical, resp.Intent)
	require.NotNil(t, resp.Scores)
	assert.InDelta(t, 1.0, resp.Scores.Groundedness+resp.Scores.Hallucination, 1e-9)
	assert.Equal(t, 1, llm.calls)
}

func TestQuerySecondCallHitsCache(t *testing.T) {
	llm := &stubLLM{response: "answer", available: true}
	service, embedder, store := newTestService(t, llm)
	indexChunks(t, embedder, store, "fraud_detection", "fraud losses and chargebacks")

	ctx := context.Background()
	first, err := service.Query(ctx, "fraud losses", "fraud_detection")
	require.NoError(t, err)
	require.False(t, first.Cached)

	second, err := service.Query(ctx, "Fraud Losses  ", "fraud_detection")
	require.NoError(t, err)
	assert.True(t, second.Cached, "normalization must make case and whitespace variants hit")
	assert.Equal(t, first.Response, second.Response)
	assert.Equal(t, 1, llm.calls, "a cache hit must not call the LLM")
}

func TestSearchUnionTrimsToTopK(t *testing.T) {
	service, embedder, store := newTestService(t, nil)
	service.cfg.TopK = 2

	indexChunks(t, embedder, store, "fraud_detection",
		"fraud losses rose sharply",
		"fraud chargebacks doubled",
		"fraud rings were dismantled")
	indexChunks(t, embedder, store, "credit_scoring",
		"credit approvals were flat",
		"credit limits were raised",
		"credit defaults fell")

	ctx := context.Background()
	vec, err := embedder.Embed(ctx, "fraud losses")
	require.NoError(t, err)

	results, err := service.search(ctx, vec, "", nil)
	require.NoError(t, err)
	require.Len(t, results, 2, "the cross-collection union must be trimmed to top_k")
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Similarity, results[i].Similarity)
	}
}

func TestQueryNoResultsSentinel(t *testing.T) {
	service, _, _ := newTestService(t, nil)

	resp, err := service.Query(context.Background(), "anything at all", "")
	require.NoError(t, err)
	assert.True(t, resp.NoResults)
	assert.Empty(t, resp.Sources)
}

func TestQueryFallsBackToContextWithoutLLM(t *testing.T) {
	service, embedder, store := newTestService(t, nil)
	indexChunks(t, embedder, store, "fraud_detection", "fraud losses rose sharply this quarter")

	resp, err := service.Query(context.Background(), "fraud losses", "fraud_detection")
	require.NoError(t, err)
	assert.False(t, resp.NoResults)
	assert.Contains(t, resp.Response, "[Source 1: report.csv", "without an LLM the assembled context is the answer")
	assert.Contains(t, resp.Response, "fraud losses rose sharply")
}
