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

type alertStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewAlertStorage creates the alert rule repository over admin.db.
func NewAlertStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.AlertStorage {
	return &alertStorage{db: db, logger: logger}
}

func (s *alertStorage) Create(ctx context.Context, alert *models.Alert) (int64, error) {
	if err := alert.Validate(); err != nil {
		return 0, apperr.Validation("invalid alert: %v", err)
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.DB().ExecContext(ctx,
		`INSERT INTO alerts (name, metric, threshold, operator, uc_id, severity, enabled, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.Name, alert.Metric, alert.Threshold, alert.Operator,
		alert.UseCase, alert.Severity, boolToInt(alert.Enabled), alert.CreatedAt.Unix())
	if err != nil {
		return 0, apperr.Wrap(err, apperr.KindData, "failed to insert alert")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, apperr.Wrap(err, apperr.KindData, "failed to read alert id")
	}
	alert.ID = id
	return id, nil
}

func (s *alertStorage) Get(ctx context.Context, id int64) (*models.Alert, error) {
	row := s.db.DB().QueryRowContext(ctx, selectAlert+` WHERE id = ?`, id)
	alert, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("alert %d not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "failed to query alert")
	}
	return alert, nil
}

func (s *alertStorage) List(ctx context.Context) ([]*models.Alert, error) {
	return s.list(ctx, selectAlert+` ORDER BY id`)
}

func (s *alertStorage) ListEnabled(ctx context.Context) ([]*models.Alert, error) {
	return s.list(ctx, selectAlert+` WHERE enabled = 1 ORDER BY id`)
}

func (s *alertStorage) list(ctx context.Context, query string) ([]*models.Alert, error) {
	rows, err := s.db.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "failed to list alerts")
	}
	defer rows.Close()

	alerts := make([]*models.Alert, 0)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.KindData, "failed to scan alert row")
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

func (s *alertStorage) Update(ctx context.Context, alert *models.Alert) error {
	if err := alert.Validate(); err != nil {
		return apperr.Validation("invalid alert: %v", err)
	}

	result, err := s.db.DB().ExecContext(ctx,
		`UPDATE alerts SET name = ?, metric = ?, threshold = ?, operator = ?,
		 uc_id = ?, severity = ?, enabled = ? WHERE id = ?`,
		alert.Name, alert.Metric, alert.Threshold, alert.Operator,
		alert.UseCase, alert.Severity, boolToInt(alert.Enabled), alert.ID)
	if err != nil {
		return apperr.Wrap(err, apperr.KindData, "failed to update alert")
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return apperr.NotFound("alert %d not found", alert.ID)
	}
	return nil
}

func (s *alertStorage) MarkTriggered(ctx context.Context, id int64, at time.Time) error {
	result, err := s.db.DB().ExecContext(ctx,
		`UPDATE alerts SET last_triggered = ? WHERE id = ?`, at.UTC().Unix(), id)
	if err != nil {
		return apperr.Wrap(err, apperr.KindData, "failed to mark alert triggered")
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return apperr.NotFound("alert %d not found", id)
	}
	return nil
}

func (s *alertStorage) Delete(ctx context.Context, id int64) error {
	result, err := s.db.DB().ExecContext(ctx, `DELETE FROM alerts WHERE id = ?`, id)
	if err != nil {
		return apperr.Wrap(err, apperr.KindData, "failed to delete alert")
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return apperr.NotFound("alert %d not found", id)
	}
	return nil
}

const selectAlert = `SELECT id, name, metric, threshold, operator, uc_id, severity, enabled,
	last_triggered, created_at FROM alerts`

func scanAlert(row rowScanner) (*models.Alert, error) {
	var a models.Alert
	var enabled int
	var lastTriggered sql.NullInt64
	var createdAt int64

	if err := row.Scan(&a.ID, &a.Name, &a.Metric, &a.Threshold, &a.Operator,
		&a.UseCase, &a.Severity, &enabled, &lastTriggered, &createdAt); err != nil {
		return nil, err
	}

	a.Enabled = enabled != 0
	if lastTriggered.Valid {
		t := time.Unix(lastTriggered.Int64, 0).UTC()
		a.LastTriggered = &t
	}
	a.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &a, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
