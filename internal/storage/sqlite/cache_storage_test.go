package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/interfaces"
	"github.com/ternarybob/trutina/internal/models"
)

func newTestCacheStorage(t *testing.T) (interfaces.CacheStorage, *SQLiteDB) {
	t.Helper()
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "rag_cache.db"), arbor.NewLogger(), MigrateCache)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewCacheStorage(db, arbor.NewLogger()), db
}

func TestQueryCacheHitIncrementsCounter(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCacheStorage(t)

	entry := &models.CachedQuery{
		QueryHash:  "abc123",
		QueryText:  "what drives charge-off risk",
		Response:   "cached answer",
		Embedding:  []float32{0.1, 0.2, 0.3},
		TTLSeconds: 3600,
	}
	require.NoError(t, cache.PutQuery(ctx, entry))

	first, hit, err := cache.GetQuery(ctx, "abc123")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "cached answer", first.Response)
	assert.Equal(t, 1, first.HitCount)
	assert.InDeltaSlice(t, []float32{0.1, 0.2, 0.3}, first.Embedding, 1e-6)

	second, hit, err := cache.GetQuery(ctx, "abc123")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, 2, second.HitCount)
}

func TestQueryCacheMiss(t *testing.T) {
	cache, _ := newTestCacheStorage(t)

	_, hit, err := cache.GetQuery(context.Background(), "never-stored")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestQueryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	cache, db := newTestCacheStorage(t)

	require.NoError(t, cache.PutQuery(ctx, &models.CachedQuery{
		QueryHash:  "stale",
		QueryText:  "q",
		Response:   "r",
		TTLSeconds: 3600,
	}))

	// backdate the entry past its TTL
	old := time.Now().UTC().Add(-2 * time.Hour).Unix()
	_, err := db.DB().Exec(`UPDATE query_cache SET created_at = ? WHERE query_hash = 'stale'`, old)
	require.NoError(t, err)

	_, hit, err := cache.GetQuery(ctx, "stale")
	require.NoError(t, err)
	assert.False(t, hit, "expired entries must read as misses")

	var remaining int
	require.NoError(t, db.DB().QueryRow(`SELECT COUNT(*) FROM query_cache`).Scan(&remaining))
	assert.Equal(t, 0, remaining, "expired entries are deleted on read")
}

func TestPurgeExpired(t *testing.T) {
	ctx := context.Background()
	cache, db := newTestCacheStorage(t)

	require.NoError(t, cache.PutQuery(ctx, &models.CachedQuery{QueryHash: "keep", QueryText: "q", Response: "r", TTLSeconds: 3600}))
	require.NoError(t, cache.PutQuery(ctx, &models.CachedQuery{QueryHash: "drop", QueryText: "q", Response: "r", TTLSeconds: 3600}))

	old := time.Now().UTC().Add(-2 * time.Hour).Unix()
	_, err := db.DB().Exec(`UPDATE query_cache SET created_at = ? WHERE query_hash = 'drop'`, old)
	require.NoError(t, err)

	purged, err := cache.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	_, hit, err := cache.GetQuery(ctx, "keep")
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestEmbeddingCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCacheStorage(t)

	vec := []float32{1.5, -2.25, 0.0, 3.125}
	require.NoError(t, cache.PutEmbedding(ctx, "hash1", "some chunk text", "nomic-embed-text", vec))

	got, hit, err := cache.GetEmbedding(ctx, "hash1")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, vec, got, "float32 blobs must round-trip exactly")

	_, hit, err = cache.GetEmbedding(ctx, "hash2")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheStatsAndClear(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCacheStorage(t)

	require.NoError(t, cache.PutQuery(ctx, &models.CachedQuery{QueryHash: "a", QueryText: "q", Response: "r", TTLSeconds: 3600}))
	require.NoError(t, cache.PutEmbedding(ctx, "h", "text", "model", []float32{1}))
	_, _, err := cache.GetQuery(ctx, "a")
	require.NoError(t, err)

	stats, err := cache.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.QueryEntries)
	assert.Equal(t, int64(1), stats.EmbeddingEntries)
	assert.Equal(t, int64(1), stats.TotalHits)

	require.NoError(t, cache.Clear(ctx))
	stats, err = cache.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.QueryEntries)
	assert.Equal(t, int64(0), stats.EmbeddingEntries)
}
