package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/interfaces"
	"github.com/ternarybob/trutina/internal/models"
)

type preprocessingStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewPreprocessingStorage creates the run-indexed report repository over
// preprocessing_results.db.
func NewPreprocessingStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.PreprocessingStorage {
	return &preprocessingStorage{db: db, logger: logger}
}

// SaveRun persists a report and appends its quality score to the trend table
// in one transaction.
func (s *preprocessingStorage) SaveRun(ctx context.Context, report *models.PreprocessingReport) (int64, error) {
	if report.UseCaseKey == "" {
		return 0, apperr.Validation("use_case_key is required")
	}
	if report.RunTimestamp.IsZero() {
		report.RunTimestamp = time.Now().UTC()
	}

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return 0, apperr.Wrap(err, apperr.KindData, "failed to encode preprocessing report")
	}

	var id int64
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO preprocessing_runs (use_case_key, label, data_quality_score, report_json, run_timestamp, elapsed_seconds)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			report.UseCaseKey, report.Label, report.DataQualityScore,
			string(reportJSON), report.RunTimestamp.Unix(), report.ElapsedSeconds)
		if err != nil {
			return apperr.Wrap(err, apperr.KindData, "failed to insert preprocessing run")
		}
		id, err = result.LastInsertId()
		if err != nil {
			return apperr.Wrap(err, apperr.KindData, "failed to read run id")
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO quality_scores (use_case_key, score, run_timestamp) VALUES (?, ?, ?)`,
			report.UseCaseKey, report.DataQualityScore, report.RunTimestamp.Unix()); err != nil {
			return apperr.Wrap(err, apperr.KindData, "failed to append quality score")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *preprocessingStorage) LatestRun(ctx context.Context, useCaseKey string) (*models.PreprocessingReport, error) {
	var reportJSON string
	err := s.db.DB().QueryRowContext(ctx,
		`SELECT report_json FROM preprocessing_runs WHERE use_case_key = ?
		 ORDER BY run_timestamp DESC, id DESC LIMIT 1`, useCaseKey).Scan(&reportJSON)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("no preprocessing runs for use case %s", useCaseKey)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "failed to query latest run")
	}

	var report models.PreprocessingReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "failed to decode stored report")
	}
	return &report, nil
}

func (s *preprocessingStorage) ListRuns(ctx context.Context, useCaseKey string, limit int) ([]*models.PreprocessingReport, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.DB().QueryContext(ctx,
		`SELECT report_json FROM preprocessing_runs WHERE use_case_key = ?
		 ORDER BY run_timestamp DESC, id DESC LIMIT ?`, useCaseKey, limit)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "failed to list preprocessing runs")
	}
	defer rows.Close()

	reports := make([]*models.PreprocessingReport, 0)
	for rows.Next() {
		var reportJSON string
		if err := rows.Scan(&reportJSON); err != nil {
			return nil, apperr.Wrap(err, apperr.KindData, "failed to scan run row")
		}
		var report models.PreprocessingReport
		if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
			s.logger.Warn().Str("use_case", useCaseKey).Err(err).Msg("Skipping undecodable stored report")
			continue
		}
		reports = append(reports, &report)
	}
	return reports, rows.Err()
}

func (s *preprocessingStorage) QualityTrend(ctx context.Context, useCaseKey string, limit int) ([]models.QualityPoint, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.DB().QueryContext(ctx,
		`SELECT score, run_timestamp FROM quality_scores WHERE use_case_key = ?
		 ORDER BY run_timestamp DESC, id DESC LIMIT ?`, useCaseKey, limit)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "failed to query quality trend")
	}
	defer rows.Close()

	points := make([]models.QualityPoint, 0)
	for rows.Next() {
		var p models.QualityPoint
		var ts int64
		if err := rows.Scan(&p.Score, &ts); err != nil {
			return nil, apperr.Wrap(err, apperr.KindData, "failed to scan quality score row")
		}
		p.Timestamp = time.Unix(ts, 0).UTC()
		points = append(points, p)
	}

	// chronological order for plotting
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, rows.Err()
}
