package models

import "time"

// CachedQuery is one entry of the query response cache. The hash key is the
// lowercase hex SHA-256 of the normalized query text.
type CachedQuery struct {
	QueryHash  string    `json:"query_hash"`
	QueryText  string    `json:"query_text"`
	Response   string    `json:"response"`
	Embedding  []float32 `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	TTLSeconds int       `json:"ttl_seconds"`
	HitCount   int       `json:"hit_count"`
}

// Expired reports whether the entry has outlived its TTL at the given time.
func (c *CachedQuery) Expired(now time.Time) bool {
	return now.After(c.CreatedAt.Add(time.Duration(c.TTLSeconds) * time.Second))
}

// CacheStats summarizes both cache tables for the monitoring surface.
type CacheStats struct {
	QueryEntries     int64 `json:"query_entries"`
	EmbeddingEntries int64 `json:"embedding_entries"`
	TotalHits        int64 `json:"total_hits"`
	ExpiredEntries   int64 `json:"expired_entries"`
}

// QualityPoint is one sample of the data quality trend for a use case.
type QualityPoint struct {
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}
