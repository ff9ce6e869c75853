// Package vectorstore provides semantic search over embedded chunks with
// three interchangeable backends: an in-process flat index persisted to
// disk, an embedded SQL table and a remote HTTP service.
package vectorstore

import (
	"context"
	"math"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/common"
	"github.com/ternarybob/trutina/internal/models"
)

// CollectionStats summarizes one collection.
type CollectionStats struct {
	Records   int `json:"records"`
	Dimension int `json:"dimension"`
}

// Store is the backend-independent vector store contract. All backends
// satisfy identical search semantics: cosine similarity, descending order,
// at most topK results, metadata equality filters.
type Store interface {
	Add(ctx context.Context, collection string, records []models.VectorRecord) error
	Search(ctx context.Context, collection string, query []float32, topK int, filters map[string]string) ([]models.SearchResult, error)
	DeleteCollection(ctx context.Context, collection string) error
	ListCollections(ctx context.Context) ([]string, error)
	Stats(ctx context.Context) (map[string]CollectionStats, error)
	Close() error
}

// New builds the store selected by config. Unknown backends are refused at
// startup rather than at first use.
func New(cfg *common.Config, logger arbor.ILogger) (Store, error) {
	switch cfg.Storage.VectorBackend {
	case "dense":
		return NewDenseStore(cfg.VectorStoreDir(), logger)
	case "sql":
		return NewSQLVecStore(cfg.VectorStoreDir(), logger)
	case "remote":
		return NewRemoteStore(cfg.Storage.RemoteVectorURL, logger)
	default:
		return nil, apperr.Validation("unknown vector backend %q (want dense, sql or remote)", cfg.Storage.VectorBackend)
	}
}

// normalize returns an L2-normalized copy of the vector. Zero vectors are
// returned unchanged so they match nothing instead of dividing by zero.
func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		out := make([]float32, len(vec))
		copy(out, vec)
		return out
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

// dot computes the inner product of two equal-length vectors. Over
// normalized vectors this is cosine similarity.
func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// matchesFilters applies metadata equality filters. A filter key absent
// from the record's metadata excludes the record.
func matchesFilters(metadata map[string]string, filters map[string]string) bool {
	for key, want := range filters {
		got, ok := metadata[key]
		if !ok || got != want {
			return false
		}
	}
	return true
}
