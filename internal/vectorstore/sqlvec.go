package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"math"
	"path/filepath"
	"sort"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/models"
	"github.com/ternarybob/trutina/internal/storage/sqlite"
)

// sqlvecStore keeps vectors in a dedicated SQLite database. Embeddings are
// raw little-endian float32 blobs with a JSON shape tag. Rows written by
// older builds without a shape tag are refused and reported once per
// collection so the operator knows to re-index.
type sqlvecStore struct {
	db     *sqlite.SQLiteDB
	logger arbor.ILogger
}

// NewSQLVecStore opens the embedded SQL backend at dir/vectors.db.
func NewSQLVecStore(dir string, logger arbor.ILogger) (Store, error) {
	db, err := sqlite.NewSQLiteDB(filepath.Join(dir, "vectors.db"), logger, sqlite.MigrateVectors)
	if err != nil {
		return nil, err
	}
	return &sqlvecStore{db: db, logger: logger}, nil
}

func (s *sqlvecStore) Add(ctx context.Context, collection string, records []models.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	dim, err := s.collectionDimension(ctx, collection)
	if err != nil {
		return err
	}
	if dim == 0 {
		dim = len(records[0].Embedding)
	}

	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC().Unix()
		for _, record := range records {
			if len(record.Embedding) != dim {
				return apperr.Validation("embedding dimension %d does not match collection %s dimension %d",
					len(record.Embedding), collection, dim)
			}

			metadataJSON, err := json.Marshal(record.Metadata)
			if err != nil {
				return apperr.Wrap(err, apperr.KindData, "failed to encode chunk metadata")
			}
			blob, shape := packVector(normalize(record.Embedding))

			if _, err := tx.ExecContext(ctx,
				`INSERT INTO vectors (collection, chunk_id, text, metadata_json, embedding_blob, embedding_shape, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT(collection, chunk_id) DO UPDATE SET
					text = excluded.text,
					metadata_json = excluded.metadata_json,
					embedding_blob = excluded.embedding_blob,
					embedding_shape = excluded.embedding_shape`,
				collection, record.ChunkID, record.Text, string(metadataJSON), blob, shape, now); err != nil {
				return apperr.Wrap(err, apperr.KindData, "failed to insert vector")
			}
		}
		return nil
	})
}

func (s *sqlvecStore) Search(ctx context.Context, collection string, query []float32, topK int, filters map[string]string) ([]models.SearchResult, error) {
	if topK <= 0 {
		return nil, apperr.Validation("top_k must be positive, got %d", topK)
	}

	rows, err := s.db.DB().QueryContext(ctx,
		`SELECT chunk_id, text, metadata_json, embedding_blob, embedding_shape
		 FROM vectors WHERE collection = ?`, collection)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "failed to scan collection")
	}
	defer rows.Close()

	normQuery := normalize(query)
	results := make([]models.SearchResult, 0, topK)
	legacyRows := 0
	dimChecked := false

	for rows.Next() {
		var chunkID, text, metadataJSON string
		var blob []byte
		var shape sql.NullString
		if err := rows.Scan(&chunkID, &text, &metadataJSON, &blob, &shape); err != nil {
			return nil, apperr.Wrap(err, apperr.KindData, "failed to scan vector row")
		}

		if !shape.Valid || shape.String == "" {
			legacyRows++
			continue
		}
		vec, err := unpackVector(blob, shape.String)
		if err != nil {
			s.logger.Warn().Str("chunk_id", chunkID).Err(err).Msg("Unreadable vector row skipped")
			continue
		}
		if !dimChecked {
			if len(query) != len(vec) {
				return nil, apperr.Validation("query dimension %d does not match collection %s dimension %d",
					len(query), collection, len(vec))
			}
			dimChecked = true
		}

		var metadata map[string]string
		if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
			s.logger.Warn().Str("chunk_id", chunkID).Err(err).Msg("Unreadable metadata skipped")
			continue
		}
		if !matchesFilters(metadata, filters) {
			continue
		}

		results = append(results, models.SearchResult{
			Record: models.VectorRecord{
				ChunkID:    chunkID,
				Text:       text,
				Metadata:   metadata,
				Collection: collection,
			},
			Similarity: dot(normQuery, vec),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "failed to iterate collection")
	}

	if legacyRows > 0 {
		s.logger.Warn().
			Str("collection", collection).
			Int("rows", legacyRows).
			Msg("Rows without an embedding shape tag were refused; re-index the collection")
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *sqlvecStore) DeleteCollection(ctx context.Context, collection string) error {
	if _, err := s.db.DB().ExecContext(ctx,
		`DELETE FROM vectors WHERE collection = ?`, collection); err != nil {
		return apperr.Wrap(err, apperr.KindData, "failed to delete collection")
	}
	return nil
}

func (s *sqlvecStore) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := s.db.DB().QueryContext(ctx,
		`SELECT DISTINCT collection FROM vectors ORDER BY collection`)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "failed to list collections")
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, apperr.Wrap(err, apperr.KindData, "failed to scan collection name")
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *sqlvecStore) Stats(ctx context.Context) (map[string]CollectionStats, error) {
	rows, err := s.db.DB().QueryContext(ctx,
		`SELECT collection, COUNT(*), COALESCE(MAX(LENGTH(embedding_blob)) / 4, 0)
		 FROM vectors GROUP BY collection`)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "failed to read collection stats")
	}
	defer rows.Close()

	stats := make(map[string]CollectionStats)
	for rows.Next() {
		var name string
		var cs CollectionStats
		if err := rows.Scan(&name, &cs.Records, &cs.Dimension); err != nil {
			return nil, apperr.Wrap(err, apperr.KindData, "failed to scan stats row")
		}
		stats[name] = cs
	}
	return stats, rows.Err()
}

func (s *sqlvecStore) Close() error {
	return s.db.Close()
}

func (s *sqlvecStore) collectionDimension(ctx context.Context, collection string) (int, error) {
	var bytes sql.NullInt64
	err := s.db.DB().QueryRowContext(ctx,
		`SELECT LENGTH(embedding_blob) FROM vectors WHERE collection = ? LIMIT 1`,
		collection).Scan(&bytes)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, apperr.Wrap(err, apperr.KindData, "failed to probe collection dimension")
	}
	return int(bytes.Int64) / 4, nil
}

func packVector(vec []float32) ([]byte, string) {
	blob := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	shape, _ := json.Marshal([]int{len(vec)})
	return blob, string(shape)
}

func unpackVector(blob []byte, shape string) ([]float32, error) {
	var dims []int
	if err := json.Unmarshal([]byte(shape), &dims); err != nil {
		return nil, apperr.Data("invalid embedding shape %q", shape)
	}
	if len(dims) != 1 || dims[0]*4 != len(blob) {
		return nil, apperr.Data("embedding shape %v does not match blob of %d bytes", dims, len(blob))
	}

	vec := make([]float32, dims[0])
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}
