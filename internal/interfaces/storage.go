package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/trutina/internal/models"
)

// DatasetStorage persists uploaded dataset metadata in admin.db.
type DatasetStorage interface {
	Create(ctx context.Context, dataset *models.Dataset) (int64, error)
	Get(ctx context.Context, id int64) (*models.Dataset, error)
	GetByPath(ctx context.Context, filePath string) (*models.Dataset, error)
	List(ctx context.Context) ([]*models.Dataset, error)
	Delete(ctx context.Context, id int64) error
}

// JobStorage persists job lifecycle state. Status updates enforce the
// monotonic queued -> running -> terminal progression.
type JobStorage interface {
	Create(ctx context.Context, jobType, configJSON string) (*models.Job, error)
	Get(ctx context.Context, id int64) (*models.Job, error)
	List(ctx context.Context, status string, limit int) ([]*models.Job, error)
	UpdateStatus(ctx context.Context, id int64, status models.JobStatus, errorMessage string) error
	UpdateProgress(ctx context.Context, id int64, progress int) error
	UpdateResult(ctx context.Context, id int64, resultJSON string) error
	Cancel(ctx context.Context, id int64) error
	ReconcileOrphans(ctx context.Context, grace time.Duration) (int64, error)
	Delete(ctx context.Context, id int64) error
}

// AlertStorage persists alert threshold rules.
type AlertStorage interface {
	Create(ctx context.Context, alert *models.Alert) (int64, error)
	Get(ctx context.Context, id int64) (*models.Alert, error)
	List(ctx context.Context) ([]*models.Alert, error)
	ListEnabled(ctx context.Context) ([]*models.Alert, error)
	Update(ctx context.Context, alert *models.Alert) error
	MarkTriggered(ctx context.Context, id int64, at time.Time) error
	Delete(ctx context.Context, id int64) error
}

// AuditStorage is the append-only audit trail.
type AuditStorage interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
	List(ctx context.Context, entryType string, limit, offset int) ([]*models.AuditEntry, error)
}

// IntegrationStorage persists external service connection configs. Password
// fields inside the config JSON are encrypted before they reach this layer.
type IntegrationStorage interface {
	Upsert(ctx context.Context, integration *models.Integration) error
	Get(ctx context.Context, id string) (*models.Integration, error)
	List(ctx context.Context) ([]*models.Integration, error)
	UpdateStatus(ctx context.Context, id, status string, lastSync *time.Time) error
	Delete(ctx context.Context, id string) error
}

// Text2SQLStorage records generated queries and their execution outcomes.
type Text2SQLStorage interface {
	Append(ctx context.Context, entry *models.Text2SQLEntry) (int64, error)
	History(ctx context.Context, limit int) ([]*models.Text2SQLEntry, error)
}

// PreprocessingStorage persists run-indexed preprocessing reports and the
// quality score trend.
type PreprocessingStorage interface {
	SaveRun(ctx context.Context, report *models.PreprocessingReport) (int64, error)
	LatestRun(ctx context.Context, useCaseKey string) (*models.PreprocessingReport, error)
	ListRuns(ctx context.Context, useCaseKey string, limit int) ([]*models.PreprocessingReport, error)
	QualityTrend(ctx context.Context, useCaseKey string, limit int) ([]models.QualityPoint, error)
}

// CacheStorage is the content-addressed RAG cache: query responses expire by
// TTL and count hits, embeddings are keyed by text hash and never expire.
type CacheStorage interface {
	GetQuery(ctx context.Context, queryHash string) (*models.CachedQuery, bool, error)
	PutQuery(ctx context.Context, entry *models.CachedQuery) error
	PurgeExpired(ctx context.Context) (int64, error)
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	PutEmbedding(ctx context.Context, textHash, text, modelName string, embedding []float32) error
	Stats(ctx context.Context) (*models.CacheStats, error)
	Clear(ctx context.Context) error
}
