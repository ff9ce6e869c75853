package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/models"
)

// backendsUnderTest runs the same contract against every local backend.
func backendsUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	logger := arbor.NewLogger()

	dense, err := NewDenseStore(t.TempDir(), logger)
	require.NoError(t, err)
	sqlvec, err := NewSQLVecStore(t.TempDir(), logger)
	require.NoError(t, err)

	stores := map[string]Store{"dense": dense, "sqlvec": sqlvec}
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func seedRecords() []models.VectorRecord {
	return []models.VectorRecord{
		{
			ChunkID:   "report_0",
			Text:      "fraud losses rose in Q3",
			Metadata:  map[string]string{"source": "report.csv", "department": "fraud"},
			Embedding: []float32{1, 0, 0},
		},
		{
			ChunkID:   "report_1",
			Text:      "credit approvals were flat",
			Metadata:  map[string]string{"source": "report.csv", "department": "credit"},
			Embedding: []float32{0, 1, 0},
		},
		{
			ChunkID:   "memo_0",
			Text:      "fraud controls were tightened",
			Metadata:  map[string]string{"source": "memo.txt", "department": "fraud"},
			Embedding: []float32{0.9, 0.1, 0},
		},
	}
}

func TestSearchOrderingAndTopK(t *testing.T) {
	ctx := context.Background()
	for name, store := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Add(ctx, "fraud_detection", seedRecords()))

			results, err := store.Search(ctx, "fraud_detection", []float32{1, 0, 0}, 2, nil)
			require.NoError(t, err)
			require.Len(t, results, 2)
			assert.Equal(t, "report_0", results[0].Record.ChunkID)
			assert.Equal(t, "memo_0", results[1].Record.ChunkID)
			assert.GreaterOrEqual(t, results[0].Similarity, results[1].Similarity)
			assert.InDelta(t, 1.0, results[0].Similarity, 1e-5)
		})
	}
}

func TestSearchMetadataFilters(t *testing.T) {
	ctx := context.Background()
	for name, store := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Add(ctx, "c", seedRecords()))

			fraud, err := store.Search(ctx, "c", []float32{1, 0, 0}, 10, map[string]string{"department": "fraud"})
			require.NoError(t, err)
			require.Len(t, fraud, 2)
			for _, r := range fraud {
				assert.Equal(t, "fraud", r.Record.Metadata["department"])
			}

			// a filter key no record carries matches nothing
			none, err := store.Search(ctx, "c", []float32{1, 0, 0}, 10, map[string]string{"region": "emea"})
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestSearchMissingCollectionIsEmpty(t *testing.T) {
	ctx := context.Background()
	for name, store := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			results, err := store.Search(ctx, "never_indexed", []float32{1, 0, 0}, 5, nil)
			require.NoError(t, err)
			assert.Empty(t, results)
		})
	}
}

func TestDimensionMismatchRefused(t *testing.T) {
	ctx := context.Background()
	for name, store := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Add(ctx, "c", seedRecords()))

			err := store.Add(ctx, "c", []models.VectorRecord{
				{ChunkID: "bad", Text: "x", Embedding: []float32{1, 2}},
			})
			assert.True(t, apperr.IsKind(err, apperr.KindValidation))

			_, err = store.Search(ctx, "c", []float32{1, 2}, 5, nil)
			assert.True(t, apperr.IsKind(err, apperr.KindValidation))
		})
	}
}

func TestAddReplacesExistingChunk(t *testing.T) {
	ctx := context.Background()
	for name, store := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Add(ctx, "c", seedRecords()[:1]))
			require.NoError(t, store.Add(ctx, "c", []models.VectorRecord{
				{
					ChunkID:   "report_0",
					Text:      "fraud losses were revised downward",
					Metadata:  map[string]string{"source": "report.csv", "department": "fraud"},
					Embedding: []float32{0, 0, 1},
				},
			}))

			stats, err := store.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, stats["c"].Records, "re-adding a chunk_id must replace, not duplicate")

			results, err := store.Search(ctx, "c", []float32{0, 0, 1}, 10, nil)
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, "report_0", results[0].Record.ChunkID)
			assert.Equal(t, "fraud losses were revised downward", results[0].Record.Text)
			assert.InDelta(t, 1.0, results[0].Similarity, 1e-5)
		})
	}
}

// A dense collection reloaded from disk must still replace by chunk_id.
func TestDenseReplaceAfterReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	logger := arbor.NewLogger()

	first, err := NewDenseStore(dir, logger)
	require.NoError(t, err)
	require.NoError(t, first.Add(ctx, "c", seedRecords()))
	require.NoError(t, first.Close())

	second, err := NewDenseStore(dir, logger)
	require.NoError(t, err)
	defer second.Close()
	require.NoError(t, second.Add(ctx, "c", []models.VectorRecord{
		{ChunkID: "memo_0", Text: "fraud controls were relaxed", Embedding: []float32{0, 0, 1}},
	}))

	stats, err := second.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats["c"].Records)

	results, err := second.Search(ctx, "c", []float32{0, 0, 1}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "memo_0", results[0].Record.ChunkID)
	assert.Equal(t, "fraud controls were relaxed", results[0].Record.Text)
}

func TestDeleteCollectionAndStats(t *testing.T) {
	ctx := context.Background()
	for name, store := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Add(ctx, "a", seedRecords()))
			require.NoError(t, store.Add(ctx, "b", seedRecords()[:1]))

			collections, err := store.ListCollections(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, collections)

			stats, err := store.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, stats["a"].Records)
			assert.Equal(t, 3, stats["a"].Dimension)
			assert.Equal(t, 1, stats["b"].Records)

			require.NoError(t, store.DeleteCollection(ctx, "a"))
			collections, err = store.ListCollections(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"b"}, collections)

			// deleting a missing collection is a no-op
			require.NoError(t, store.DeleteCollection(ctx, "never_there"))
		})
	}
}

func TestDensePersistenceAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	logger := arbor.NewLogger()

	first, err := NewDenseStore(dir, logger)
	require.NoError(t, err)
	require.NoError(t, first.Add(ctx, "fraud_detection", seedRecords()))
	require.NoError(t, first.Close())

	second, err := NewDenseStore(dir, logger)
	require.NoError(t, err)
	defer second.Close()

	results, err := second.Search(ctx, "fraud_detection", []float32{1, 0, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "report_0", results[0].Record.ChunkID)
	assert.Equal(t, "fraud losses rose in Q3", results[0].Record.Text)
}

func TestSQLVecLegacyRowsRefused(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	logger := arbor.NewLogger()

	store, err := NewSQLVecStore(dir, logger)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Add(ctx, "c", seedRecords()))

	// simulate a row written before shape tags existed
	sv := store.(*sqlvecStore)
	_, err = sv.db.DB().Exec(`UPDATE vectors SET embedding_shape = NULL WHERE chunk_id = 'report_1'`)
	require.NoError(t, err)

	results, err := store.Search(ctx, "c", []float32{0, 1, 0}, 10, nil)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "report_1", r.Record.ChunkID, "untagged rows must not be scored")
	}
	assert.Len(t, results, 2)
}
