package vectorstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/models"
)

const (
	denseIndexExt   = ".faiss"
	denseMetaSuffix = "_metadata.json"
)

// denseStore is the in-process flat index. Vectors are L2-normalized on
// insert so search is a plain inner product scan. Each collection persists
// to two files: a raw float32 index and a JSON metadata sidecar.
type denseStore struct {
	dir    string
	logger arbor.ILogger

	mu          sync.RWMutex
	collections map[string]*denseCollection
}

type denseCollection struct {
	dimension int
	records   []models.VectorRecord
	vectors   [][]float32
	// index maps chunk_id to its slot so re-added chunks replace in place
	index map[string]int
}

type denseMeta struct {
	Dimension int                   `json:"dimension"`
	Records   []models.VectorRecord `json:"records"`
}

// NewDenseStore opens the flat-index backend, loading every persisted
// collection found under dir.
func NewDenseStore(dir string, logger arbor.ILogger) (Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "failed to create vector store directory")
	}

	s := &denseStore{
		dir:         dir,
		logger:      logger,
		collections: make(map[string]*denseCollection),
	}
	if err := s.loadAll(); err != nil {
		return nil, err
	}
	logger.Info().Str("dir", dir).Int("collections", len(s.collections)).Msg("Dense vector store opened")
	return s, nil
}

func (s *denseStore) loadAll() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return apperr.Wrap(err, apperr.KindData, "failed to read vector store directory")
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, denseMetaSuffix) {
			continue
		}
		collection := strings.TrimSuffix(name, denseMetaSuffix)
		if err := s.loadCollection(collection); err != nil {
			s.logger.Warn().Str("collection", collection).Err(err).Msg("Skipping unreadable collection")
		}
	}
	return nil
}

func (s *denseStore) loadCollection(collection string) error {
	metaBytes, err := os.ReadFile(filepath.Join(s.dir, collection+denseMetaSuffix))
	if err != nil {
		return err
	}
	var meta denseMeta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return fmt.Errorf("invalid metadata sidecar: %w", err)
	}

	blob, err := os.ReadFile(filepath.Join(s.dir, collection+denseIndexExt))
	if err != nil {
		return err
	}
	want := len(meta.Records) * meta.Dimension * 4
	if len(blob) != want {
		return fmt.Errorf("index file holds %d bytes, metadata expects %d", len(blob), want)
	}

	col := &denseCollection{
		dimension: meta.Dimension,
		records:   meta.Records,
		vectors:   make([][]float32, len(meta.Records)),
		index:     make(map[string]int, len(meta.Records)),
	}
	for i := range meta.Records {
		col.index[meta.Records[i].ChunkID] = i
		vec := make([]float32, meta.Dimension)
		off := i * meta.Dimension * 4
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(blob[off+j*4:]))
		}
		col.vectors[i] = vec
	}

	s.collections[collection] = col
	return nil
}

func (s *denseStore) saveCollection(collection string, col *denseCollection) error {
	blob := make([]byte, len(col.vectors)*col.dimension*4)
	for i, vec := range col.vectors {
		off := i * col.dimension * 4
		for j, v := range vec {
			binary.LittleEndian.PutUint32(blob[off+j*4:], math.Float32bits(v))
		}
	}
	if err := os.WriteFile(filepath.Join(s.dir, collection+denseIndexExt), blob, 0644); err != nil {
		return apperr.Wrap(err, apperr.KindData, "failed to write index file")
	}

	// records persist without embeddings; the index file is authoritative
	stripped := make([]models.VectorRecord, len(col.records))
	for i, r := range col.records {
		r.Embedding = nil
		stripped[i] = r
	}
	metaBytes, err := json.Marshal(denseMeta{Dimension: col.dimension, Records: stripped})
	if err != nil {
		return apperr.Wrap(err, apperr.KindData, "failed to encode metadata sidecar")
	}
	if err := os.WriteFile(filepath.Join(s.dir, collection+denseMetaSuffix), metaBytes, 0644); err != nil {
		return apperr.Wrap(err, apperr.KindData, "failed to write metadata sidecar")
	}
	return nil
}

func (s *denseStore) Add(ctx context.Context, collection string, records []models.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[collection]
	if !ok {
		col = &denseCollection{
			dimension: len(records[0].Embedding),
			index:     make(map[string]int),
		}
		s.collections[collection] = col
	}

	for _, record := range records {
		if len(record.Embedding) != col.dimension {
			return apperr.Validation("embedding dimension %d does not match collection %s dimension %d",
				len(record.Embedding), collection, col.dimension)
		}
		record.Collection = collection
		vec := normalize(record.Embedding)
		record.Embedding = nil
		if i, ok := col.index[record.ChunkID]; ok {
			col.records[i] = record
			col.vectors[i] = vec
			continue
		}
		col.index[record.ChunkID] = len(col.records)
		col.records = append(col.records, record)
		col.vectors = append(col.vectors, vec)
	}

	return s.saveCollection(collection, col)
}

func (s *denseStore) Search(ctx context.Context, collection string, query []float32, topK int, filters map[string]string) ([]models.SearchResult, error) {
	if topK <= 0 {
		return nil, apperr.Validation("top_k must be positive, got %d", topK)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.collections[collection]
	if !ok {
		return []models.SearchResult{}, nil
	}
	if len(query) != col.dimension {
		return nil, apperr.Validation("query dimension %d does not match collection %s dimension %d",
			len(query), collection, col.dimension)
	}

	normQuery := normalize(query)
	results := make([]models.SearchResult, 0, topK)
	for i, record := range col.records {
		if !matchesFilters(record.Metadata, filters) {
			continue
		}
		results = append(results, models.SearchResult{
			Record:     record,
			Similarity: dot(normQuery, col.vectors[i]),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *denseStore) DeleteCollection(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections, collection)
	for _, path := range []string{
		filepath.Join(s.dir, collection+denseIndexExt),
		filepath.Join(s.dir, collection+denseMetaSuffix),
	} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return apperr.Wrap(err, apperr.KindData, "failed to remove collection file")
		}
	}
	return nil
}

func (s *denseStore) ListCollections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *denseStore) Stats(ctx context.Context) (map[string]CollectionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]CollectionStats, len(s.collections))
	for name, col := range s.collections {
		stats[name] = CollectionStats{Records: len(col.records), Dimension: col.dimension}
	}
	return stats, nil
}

func (s *denseStore) Close() error { return nil }
