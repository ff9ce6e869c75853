package embeddings

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/storage/sqlite"
)

func TestTFIDFDeterministicAndNormalized(t *testing.T) {
	e := newTFIDFEmbedder(384)
	ctx := context.Background()

	a, err := e.Embed(ctx, "fraud losses rose sharply in the third quarter")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "fraud losses rose sharply in the third quarter")
	require.NoError(t, err)
	assert.Equal(t, a, b, "same text must embed identically")
	assert.Len(t, a, 384)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)

	c, err := e.Embed(ctx, "a completely unrelated sentence about gardening")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestTFIDFSimilarTextsScoreHigher(t *testing.T) {
	e := newTFIDFEmbedder(384)
	ctx := context.Background()

	query, _ := e.Embed(ctx, "fraud detection model accuracy")
	near, _ := e.Embed(ctx, "the fraud detection model accuracy improved")
	far, _ := e.Embed(ctx, "quarterly office supply purchasing report")

	assert.Greater(t, cosine(query, near), cosine(query, far))
}

func cosine(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func TestTextHash(t *testing.T) {
	assert.Equal(t, TextHash("abc"), TextHash("abc"))
	assert.NotEqual(t, TextHash("abc"), TextHash("abd"))
	assert.Len(t, TextHash("abc"), 64)
}

func TestServiceFallsBackWithoutProvider(t *testing.T) {
	s := NewService(nil, 384, nil, arbor.NewLogger())
	assert.Equal(t, "tfidf-384", s.MethodName())

	vec, err := s.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Len(t, vec, 384)
}

func TestServiceCachesEmbeddings(t *testing.T) {
	ctx := context.Background()
	logger := arbor.NewLogger()

	db, err := sqlite.NewSQLiteDB(filepath.Join(t.TempDir(), "rag_cache.db"), logger, sqlite.MigrateCache)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	cache := sqlite.NewCacheStorage(db, logger)

	s := NewService(nil, 384, cache, logger)

	first, err := s.Embed(ctx, "cache me")
	require.NoError(t, err)

	cached, hit, err := cache.GetEmbedding(ctx, TextHash("cache me"))
	require.NoError(t, err)
	require.True(t, hit, "embedding must be written through to the cache")
	assert.Equal(t, first, cached)

	again, err := s.Embed(ctx, "cache me")
	require.NoError(t, err)
	assert.Equal(t, first, again)
}
