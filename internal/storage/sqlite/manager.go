package sqlite

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/common"
	"github.com/ternarybob/trutina/internal/interfaces"
)

// Manager owns the per-concern SQLite databases and the repositories built
// on them. Pipeline state lives in admin.db, preprocessing reports in
// preprocessing_results.db and the RAG caches in rag_cache.db.
type Manager struct {
	adminDB         *SQLiteDB
	preprocessingDB *SQLiteDB
	cacheDB         *SQLiteDB

	datasets      interfaces.DatasetStorage
	jobs          interfaces.JobStorage
	alerts        interfaces.AlertStorage
	audit         interfaces.AuditStorage
	integrations  interfaces.IntegrationStorage
	text2sql      interfaces.Text2SQLStorage
	preprocessing interfaces.PreprocessingStorage
	cache         interfaces.CacheStorage

	logger arbor.ILogger
}

// NewManager opens the three databases, runs migrations and builds the
// repositories.
func NewManager(cfg *common.Config, logger arbor.ILogger) (*Manager, error) {
	adminDB, err := NewSQLiteDB(cfg.AdminDBPath(), logger, MigrateAdmin)
	if err != nil {
		return nil, err
	}

	preprocessingDB, err := NewSQLiteDB(cfg.PreprocessingDBPath(), logger, MigratePreprocessing)
	if err != nil {
		adminDB.Close()
		return nil, err
	}

	cacheDB, err := NewSQLiteDB(cfg.CacheDBPath(), logger, MigrateCache)
	if err != nil {
		adminDB.Close()
		preprocessingDB.Close()
		return nil, err
	}

	m := &Manager{
		adminDB:         adminDB,
		preprocessingDB: preprocessingDB,
		cacheDB:         cacheDB,
		logger:          logger,
	}

	m.datasets = NewDatasetStorage(adminDB, logger)
	m.jobs = NewJobStorage(adminDB, logger)
	m.alerts = NewAlertStorage(adminDB, logger)
	m.audit = NewAuditStorage(adminDB, logger)
	m.integrations = NewIntegrationStorage(adminDB, logger)
	m.text2sql = NewText2SQLStorage(adminDB, logger)
	m.preprocessing = NewPreprocessingStorage(preprocessingDB, logger)
	m.cache = NewCacheStorage(cacheDB, logger)

	logger.Info().
		Str("admin_db", adminDB.Path()).
		Str("preprocessing_db", preprocessingDB.Path()).
		Str("cache_db", cacheDB.Path()).
		Msg("Storage manager initialized")

	return m, nil
}

func (m *Manager) Datasets() interfaces.DatasetStorage           { return m.datasets }
func (m *Manager) Jobs() interfaces.JobStorage                   { return m.jobs }
func (m *Manager) Alerts() interfaces.AlertStorage               { return m.alerts }
func (m *Manager) Audit() interfaces.AuditStorage                { return m.audit }
func (m *Manager) Integrations() interfaces.IntegrationStorage   { return m.integrations }
func (m *Manager) Text2SQL() interfaces.Text2SQLStorage          { return m.text2sql }
func (m *Manager) Preprocessing() interfaces.PreprocessingStorage { return m.preprocessing }
func (m *Manager) Cache() interfaces.CacheStorage                { return m.cache }

// AdminDB exposes the admin database for health checks and the text2sql
// read-only executor.
func (m *Manager) AdminDB() *SQLiteDB { return m.adminDB }

// Ping verifies all database connections.
func (m *Manager) Ping(ctx context.Context) error {
	if err := m.adminDB.Ping(ctx); err != nil {
		return err
	}
	if err := m.preprocessingDB.Ping(ctx); err != nil {
		return err
	}
	return m.cacheDB.Ping(ctx)
}

// Close closes all databases.
func (m *Manager) Close() error {
	var firstErr error
	for _, db := range []*SQLiteDB{m.adminDB, m.preprocessingDB, m.cacheDB} {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
