package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/interfaces"
	"github.com/ternarybob/trutina/internal/models"
)

func newTestAdminDB(t *testing.T) *SQLiteDB {
	t.Helper()
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "admin.db"), arbor.NewLogger(), MigrateAdmin)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestJobStorage(t *testing.T) interfaces.JobStorage {
	t.Helper()
	return NewJobStorage(newTestAdminDB(t), arbor.NewLogger())
}

func TestJobLifecycle(t *testing.T) {
	ctx := context.Background()
	storage := newTestJobStorage(t)

	job, err := storage.Create(ctx, "preprocessing", `{"uc":"fraud_detection"}`)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, job.Status)
	assert.Equal(t, 0, job.Progress)

	require.NoError(t, storage.UpdateStatus(ctx, job.ID, models.JobStatusRunning, ""))
	require.NoError(t, storage.UpdateProgress(ctx, job.ID, 40))
	require.NoError(t, storage.UpdateStatus(ctx, job.ID, models.JobStatusCompleted, ""))

	got, err := storage.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress, "completing a job must force progress to 100")
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.CompletedAt)
}

func TestJobStatusIsMonotonic(t *testing.T) {
	ctx := context.Background()
	storage := newTestJobStorage(t)

	job, err := storage.Create(ctx, "training", "")
	require.NoError(t, err)

	require.NoError(t, storage.UpdateStatus(ctx, job.ID, models.JobStatusRunning, ""))
	require.NoError(t, storage.UpdateStatus(ctx, job.ID, models.JobStatusFailed, "boom"))

	// terminal states never move
	err = storage.UpdateStatus(ctx, job.ID, models.JobStatusRunning, "")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	err = storage.UpdateStatus(ctx, job.ID, models.JobStatusCompleted, "")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	got, err := storage.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, "boom", got.ErrorMessage)
}

func TestJobProgressRejectedAfterTerminal(t *testing.T) {
	ctx := context.Background()
	storage := newTestJobStorage(t)

	job, err := storage.Create(ctx, "training", "")
	require.NoError(t, err)
	require.NoError(t, storage.UpdateStatus(ctx, job.ID, models.JobStatusRunning, ""))
	require.NoError(t, storage.UpdateStatus(ctx, job.ID, models.JobStatusCompleted, ""))

	err = storage.UpdateProgress(ctx, job.ID, 50)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestJobProgressBounds(t *testing.T) {
	ctx := context.Background()
	storage := newTestJobStorage(t)

	job, err := storage.Create(ctx, "training", "")
	require.NoError(t, err)

	assert.True(t, apperr.IsKind(storage.UpdateProgress(ctx, job.ID, -1), apperr.KindValidation))
	assert.True(t, apperr.IsKind(storage.UpdateProgress(ctx, job.ID, 100), apperr.KindValidation),
		"progress 100 is reserved for the completed transition")
}

func TestJobCancel(t *testing.T) {
	ctx := context.Background()
	storage := newTestJobStorage(t)

	queued, err := storage.Create(ctx, "pipeline", "")
	require.NoError(t, err)
	require.NoError(t, storage.Cancel(ctx, queued.ID))

	got, err := storage.Get(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, got.Status)

	// cancelling twice is refused
	err = storage.Cancel(ctx, queued.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestJobGetNotFound(t *testing.T) {
	storage := newTestJobStorage(t)

	_, err := storage.Get(context.Background(), 9999)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestJobListFiltersByStatus(t *testing.T) {
	ctx := context.Background()
	storage := newTestJobStorage(t)

	a, err := storage.Create(ctx, "training", "")
	require.NoError(t, err)
	_, err = storage.Create(ctx, "preprocessing", "")
	require.NoError(t, err)
	require.NoError(t, storage.UpdateStatus(ctx, a.ID, models.JobStatusRunning, ""))

	running, err := storage.List(ctx, string(models.JobStatusRunning), 10)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, a.ID, running[0].ID)

	all, err := storage.List(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestReconcileOrphans(t *testing.T) {
	ctx := context.Background()
	db := newTestAdminDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())

	stale, err := storage.Create(ctx, "pipeline", "")
	require.NoError(t, err)
	fresh, err := storage.Create(ctx, "pipeline", "")
	require.NoError(t, err)
	require.NoError(t, storage.UpdateStatus(ctx, stale.ID, models.JobStatusRunning, ""))
	require.NoError(t, storage.UpdateStatus(ctx, fresh.ID, models.JobStatusRunning, ""))

	// age the stale job past the grace period
	old := time.Now().UTC().Add(-30 * time.Minute).Unix()
	_, err = db.DB().Exec(`UPDATE jobs SET started_at = ? WHERE id = ?`, old, stale.ID)
	require.NoError(t, err)

	count, err := storage.ReconcileOrphans(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, err := storage.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, "orphaned", got.ErrorMessage)

	untouched, err := storage.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, untouched.Status)
}
