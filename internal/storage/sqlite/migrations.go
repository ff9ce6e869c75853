package sqlite

import "database/sql"

// MigrateAdmin creates the admin.db tables: datasets, jobs, alerts, audit
// log, integrations and text2sql history. Idempotent.
func MigrateAdmin(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS datasets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			original_filename TEXT NOT NULL,
			file_path TEXT NOT NULL UNIQUE,
			file_size INTEGER NOT NULL DEFAULT 0,
			rows INTEGER NOT NULL DEFAULT 0,
			cols INTEGER NOT NULL DEFAULT 0,
			columns_json TEXT NOT NULL DEFAULT '[]',
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_type TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'queued',
			progress INTEGER NOT NULL DEFAULT 0,
			config_json TEXT NOT NULL DEFAULT '{}',
			result_json TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			started_at INTEGER,
			completed_at INTEGER,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_type ON jobs(job_type)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			metric TEXT NOT NULL,
			threshold REAL NOT NULL,
			operator TEXT NOT NULL,
			uc_id TEXT NOT NULL DEFAULT 'all',
			severity TEXT NOT NULL DEFAULT 'warning',
			enabled INTEGER NOT NULL DEFAULT 1,
			last_triggered INTEGER,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			action TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			user TEXT NOT NULL DEFAULT 'system',
			entry_type TEXT NOT NULL DEFAULT 'info',
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS integrations (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			config_json TEXT NOT NULL DEFAULT '{}',
			status TEXT NOT NULL DEFAULT 'disconnected',
			last_sync INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS text2sql_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			natural_language TEXT NOT NULL,
			generated_sql TEXT NOT NULL,
			executed INTEGER NOT NULL DEFAULT 0,
			row_count INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
	}
	return execAll(db, statements)
}

// MigratePreprocessing creates the preprocessing_results.db tables.
// Idempotent.
func MigratePreprocessing(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS preprocessing_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			use_case_key TEXT NOT NULL,
			label TEXT NOT NULL DEFAULT '',
			data_quality_score REAL NOT NULL DEFAULT 0,
			report_json TEXT NOT NULL DEFAULT '{}',
			run_timestamp INTEGER NOT NULL,
			elapsed_seconds REAL NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_preprocessing_runs_uc ON preprocessing_runs(use_case_key)`,
		`CREATE TABLE IF NOT EXISTS quality_scores (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			use_case_key TEXT NOT NULL,
			score REAL NOT NULL,
			run_timestamp INTEGER NOT NULL
		)`,
	}
	return execAll(db, statements)
}

// MigrateCache creates the rag_cache.db tables: query cache (TTL + hit
// counts) and embedding cache (no TTL). Idempotent.
func MigrateCache(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS query_cache (
			query_hash TEXT PRIMARY KEY,
			query_text TEXT NOT NULL,
			response TEXT NOT NULL,
			embedding_blob BLOB,
			embedding_shape TEXT,
			created_at INTEGER NOT NULL,
			ttl_seconds INTEGER NOT NULL DEFAULT 3600,
			hit_count INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS embedding_cache (
			text_hash TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			embedding_blob BLOB NOT NULL,
			embedding_shape TEXT NOT NULL,
			model_name TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
	}
	return execAll(db, statements)
}

// MigrateVectors creates the embedded-SQL vector backend table. Embeddings
// are stored as raw little-endian float32 bytes with a JSON shape tag, not
// as a general object-graph serialization.
func MigrateVectors(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS vectors (
			collection TEXT NOT NULL,
			chunk_id TEXT NOT NULL,
			text TEXT NOT NULL,
			metadata_json TEXT NOT NULL DEFAULT '{}',
			embedding_blob BLOB NOT NULL,
			embedding_shape TEXT,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (collection, chunk_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_vectors_collection ON vectors(collection)`,
	}
	return execAll(db, statements)
}

func execAll(db *sql.DB, statements []string) error {
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
