package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/interfaces"
	"github.com/ternarybob/trutina/internal/models"
)

type cacheStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewCacheStorage creates the content-addressed cache repository over
// rag_cache.db.
func NewCacheStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.CacheStorage {
	return &cacheStorage{db: db, logger: logger}
}

// GetQuery looks up a cached response by query hash. A hit increments the
// hit counter; an expired entry is deleted and reported as a miss.
func (s *cacheStorage) GetQuery(ctx context.Context, queryHash string) (*models.CachedQuery, bool, error) {
	row := s.db.DB().QueryRowContext(ctx,
		`SELECT query_hash, query_text, response, embedding_blob, embedding_shape,
		 created_at, ttl_seconds, hit_count FROM query_cache WHERE query_hash = ?`, queryHash)

	var entry models.CachedQuery
	var blob []byte
	var shape sql.NullString
	var createdAt int64
	err := row.Scan(&entry.QueryHash, &entry.QueryText, &entry.Response, &blob, &shape,
		&createdAt, &entry.TTLSeconds, &entry.HitCount)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.Wrap(err, apperr.KindData, "failed to query cache")
	}
	entry.CreatedAt = time.Unix(createdAt, 0).UTC()

	if entry.Expired(time.Now().UTC()) {
		if _, err := s.db.DB().ExecContext(ctx,
			`DELETE FROM query_cache WHERE query_hash = ?`, queryHash); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to delete expired cache entry")
		}
		return nil, false, nil
	}

	if len(blob) > 0 {
		vec, err := decodeEmbedding(blob, shape.String)
		if err != nil {
			s.logger.Warn().Str("query_hash", queryHash).Err(err).Msg("Cached embedding is unreadable, dropping it")
		} else {
			entry.Embedding = vec
		}
	}

	if _, err := s.db.DB().ExecContext(ctx,
		`UPDATE query_cache SET hit_count = hit_count + 1 WHERE query_hash = ?`, queryHash); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to increment cache hit count")
	}
	entry.HitCount++

	return &entry, true, nil
}

// PutQuery stores or replaces a cached response. The hit counter resets on
// replace because the response is new content.
func (s *cacheStorage) PutQuery(ctx context.Context, entry *models.CachedQuery) error {
	if entry.QueryHash == "" {
		return apperr.Validation("query_hash is required")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.TTLSeconds <= 0 {
		entry.TTLSeconds = 3600
	}

	var blob []byte
	var shape interface{}
	if len(entry.Embedding) > 0 {
		var shapeStr string
		blob, shapeStr = encodeEmbedding(entry.Embedding)
		shape = shapeStr
	}

	_, err := s.db.DB().ExecContext(ctx,
		`INSERT INTO query_cache (query_hash, query_text, response, embedding_blob, embedding_shape, created_at, ttl_seconds, hit_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0)
		 ON CONFLICT(query_hash) DO UPDATE SET
			query_text = excluded.query_text,
			response = excluded.response,
			embedding_blob = excluded.embedding_blob,
			embedding_shape = excluded.embedding_shape,
			created_at = excluded.created_at,
			ttl_seconds = excluded.ttl_seconds,
			hit_count = 0`,
		entry.QueryHash, entry.QueryText, entry.Response, blob, shape,
		entry.CreatedAt.Unix(), entry.TTLSeconds)
	if err != nil {
		return apperr.Wrap(err, apperr.KindData, "failed to store cached query")
	}
	return nil
}

// PurgeExpired removes query cache rows past their TTL.
func (s *cacheStorage) PurgeExpired(ctx context.Context) (int64, error) {
	result, err := s.db.DB().ExecContext(ctx,
		`DELETE FROM query_cache WHERE created_at + ttl_seconds < ?`, time.Now().UTC().Unix())
	if err != nil {
		return 0, apperr.Wrap(err, apperr.KindData, "failed to purge expired cache entries")
	}
	purged, _ := result.RowsAffected()
	if purged > 0 {
		s.logger.Debug().Int64("purged", purged).Msg("Expired query cache entries removed")
	}
	return purged, nil
}

func (s *cacheStorage) GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error) {
	var blob []byte
	var shape sql.NullString
	err := s.db.DB().QueryRowContext(ctx,
		`SELECT embedding_blob, embedding_shape FROM embedding_cache WHERE text_hash = ?`,
		textHash).Scan(&blob, &shape)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.Wrap(err, apperr.KindData, "failed to query embedding cache")
	}

	vec, err := decodeEmbedding(blob, shape.String)
	if err != nil {
		s.logger.Warn().Str("text_hash", textHash).Err(err).Msg("Cached embedding is unreadable, treating as miss")
		return nil, false, nil
	}
	return vec, true, nil
}

func (s *cacheStorage) PutEmbedding(ctx context.Context, textHash, text, modelName string, embedding []float32) error {
	if textHash == "" {
		return apperr.Validation("text_hash is required")
	}
	if len(embedding) == 0 {
		return apperr.Validation("embedding must not be empty")
	}

	blob, shape := encodeEmbedding(embedding)
	_, err := s.db.DB().ExecContext(ctx,
		`INSERT INTO embedding_cache (text_hash, text, embedding_blob, embedding_shape, model_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(text_hash) DO UPDATE SET
			embedding_blob = excluded.embedding_blob,
			embedding_shape = excluded.embedding_shape,
			model_name = excluded.model_name`,
		textHash, text, blob, shape, modelName, time.Now().UTC().Unix())
	if err != nil {
		return apperr.Wrap(err, apperr.KindData, "failed to store cached embedding")
	}
	return nil
}

func (s *cacheStorage) Stats(ctx context.Context) (*models.CacheStats, error) {
	stats := &models.CacheStats{}
	now := time.Now().UTC().Unix()

	row := s.db.DB().QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(hit_count), 0),
		 COALESCE(SUM(CASE WHEN created_at + ttl_seconds < ? THEN 1 ELSE 0 END), 0)
		 FROM query_cache`, now)
	if err := row.Scan(&stats.QueryEntries, &stats.TotalHits, &stats.ExpiredEntries); err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "failed to read query cache stats")
	}

	if err := s.db.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM embedding_cache`).Scan(&stats.EmbeddingEntries); err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "failed to read embedding cache stats")
	}
	return stats, nil
}

func (s *cacheStorage) Clear(ctx context.Context) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM query_cache`); err != nil {
			return apperr.Wrap(err, apperr.KindData, "failed to clear query cache")
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM embedding_cache`); err != nil {
			return apperr.Wrap(err, apperr.KindData, "failed to clear embedding cache")
		}
		return nil
	})
}
