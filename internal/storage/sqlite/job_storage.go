package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/interfaces"
	"github.com/ternarybob/trutina/internal/models"
)

type jobStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewJobStorage creates the job repository over admin.db.
func NewJobStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.JobStorage {
	return &jobStorage{db: db, logger: logger}
}

func (s *jobStorage) Create(ctx context.Context, jobType, configJSON string) (*models.Job, error) {
	if jobType == "" {
		return nil, apperr.Validation("job_type is required")
	}
	if configJSON == "" {
		configJSON = "{}"
	}
	now := time.Now().UTC()

	result, err := s.db.DB().ExecContext(ctx,
		`INSERT INTO jobs (job_type, status, progress, config_json, created_at)
		 VALUES (?, ?, 0, ?, ?)`,
		jobType, models.JobStatusQueued, configJSON, now.Unix())
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "failed to insert job")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "failed to read job id")
	}

	job := &models.Job{
		ID:         id,
		JobType:    jobType,
		Status:     models.JobStatusQueued,
		Progress:   0,
		ConfigJSON: configJSON,
		CreatedAt:  now,
	}
	s.logger.Info().Int64("job_id", id).Str("job_type", jobType).Msg("Job created")
	return job, nil
}

func (s *jobStorage) Get(ctx context.Context, id int64) (*models.Job, error) {
	row := s.db.DB().QueryRowContext(ctx, selectJob+` WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("job %d not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "failed to query job")
	}
	return job, nil
}

func (s *jobStorage) List(ctx context.Context, status string, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 100
	}

	query := selectJob
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "failed to list jobs")
	}
	defer rows.Close()

	jobs := make([]*models.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.KindData, "failed to scan job row")
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateStatus advances the job lifecycle. Transitions that would move a job
// backwards or out of a terminal state are refused with a validation error.
func (s *jobStorage) UpdateStatus(ctx context.Context, id int64, status models.JobStatus, errorMessage string) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := currentStatus(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == status {
			return nil
		}
		if !current.CanTransitionTo(status) {
			return apperr.Validation("job %d cannot transition from %s to %s", id, current, status)
		}

		now := time.Now().UTC().Unix()
		switch status {
		case models.JobStatusRunning:
			_, err = tx.ExecContext(ctx,
				`UPDATE jobs SET status = ?, started_at = ? WHERE id = ?`,
				status, now, id)
		case models.JobStatusCompleted:
			_, err = tx.ExecContext(ctx,
				`UPDATE jobs SET status = ?, progress = 100, completed_at = ? WHERE id = ?`,
				status, now, id)
		default:
			_, err = tx.ExecContext(ctx,
				`UPDATE jobs SET status = ?, error_message = ?, completed_at = ? WHERE id = ?`,
				status, errorMessage, now, id)
		}
		if err != nil {
			return apperr.Wrap(err, apperr.KindData, "failed to update job status")
		}

		s.logger.Info().
			Int64("job_id", id).
			Str("from", string(current)).
			Str("to", string(status)).
			Msg("Job status updated")
		return nil
	})
}

// UpdateProgress sets progress within [0, 99]. Progress 100 is reserved for
// the completed transition so the two never disagree.
func (s *jobStorage) UpdateProgress(ctx context.Context, id int64, progress int) error {
	if progress < 0 || progress > 99 {
		return apperr.Validation("progress must be within [0, 99], got %d", progress)
	}
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := currentStatus(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.IsTerminal() {
			return apperr.Validation("job %d is %s and no longer accepts progress", id, current)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET progress = ? WHERE id = ?`, progress, id); err != nil {
			return apperr.Wrap(err, apperr.KindData, "failed to update job progress")
		}
		return nil
	})
}

func (s *jobStorage) UpdateResult(ctx context.Context, id int64, resultJSON string) error {
	result, err := s.db.DB().ExecContext(ctx,
		`UPDATE jobs SET result_json = ? WHERE id = ?`, resultJSON, id)
	if err != nil {
		return apperr.Wrap(err, apperr.KindData, "failed to update job result")
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return apperr.NotFound("job %d not found", id)
	}
	return nil
}

// Cancel marks a queued or running job cancelled. Terminal jobs are refused.
func (s *jobStorage) Cancel(ctx context.Context, id int64) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := currentStatus(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.IsTerminal() {
			return apperr.Validation("job %d is already %s and cannot be cancelled", id, current)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, completed_at = ? WHERE id = ?`,
			models.JobStatusCancelled, time.Now().UTC().Unix(), id); err != nil {
			return apperr.Wrap(err, apperr.KindData, "failed to cancel job")
		}
		s.logger.Info().Int64("job_id", id).Msg("Job cancelled")
		return nil
	})
}

// ReconcileOrphans fails running jobs whose start time is older than the
// grace period. Called at startup to clean up after unclean shutdowns.
func (s *jobStorage) ReconcileOrphans(ctx context.Context, grace time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-grace).Unix()
	result, err := s.db.DB().ExecContext(ctx,
		`UPDATE jobs SET status = ?, error_message = 'orphaned', completed_at = ?
		 WHERE status = ? AND started_at IS NOT NULL AND started_at < ?`,
		models.JobStatusFailed, time.Now().UTC().Unix(), models.JobStatusRunning, cutoff)
	if err != nil {
		return 0, apperr.Wrap(err, apperr.KindData, "failed to reconcile orphaned jobs")
	}
	affected, _ := result.RowsAffected()
	if affected > 0 {
		s.logger.Warn().Int64("count", affected).Msg("Orphaned running jobs marked failed")
	}
	return affected, nil
}

func (s *jobStorage) Delete(ctx context.Context, id int64) error {
	result, err := s.db.DB().ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return apperr.Wrap(err, apperr.KindData, "failed to delete job")
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return apperr.NotFound("job %d not found", id)
	}
	return nil
}

const selectJob = `SELECT id, job_type, status, progress, config_json, result_json, error_message,
	started_at, completed_at, created_at FROM jobs`

func currentStatus(ctx context.Context, tx *sql.Tx, id int64) (models.JobStatus, error) {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return "", apperr.NotFound("job %d not found", id)
	}
	if err != nil {
		return "", apperr.Wrap(err, apperr.KindData, fmt.Sprintf("failed to read status of job %d", id))
	}
	return models.JobStatus(status), nil
}

func scanJob(row rowScanner) (*models.Job, error) {
	var j models.Job
	var startedAt, completedAt sql.NullInt64
	var createdAt int64

	if err := row.Scan(&j.ID, &j.JobType, &j.Status, &j.Progress, &j.ConfigJSON,
		&j.ResultJSON, &j.ErrorMessage, &startedAt, &completedAt, &createdAt); err != nil {
		return nil, err
	}

	if startedAt.Valid {
		t := time.Unix(startedAt.Int64, 0).UTC()
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0).UTC()
		j.CompletedAt = &t
	}
	j.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &j, nil
}
