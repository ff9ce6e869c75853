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

type integrationStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewIntegrationStorage creates the integration config repository over
// admin.db. Config JSON arrives with password fields already encrypted.
func NewIntegrationStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.IntegrationStorage {
	return &integrationStorage{db: db, logger: logger}
}

func (s *integrationStorage) Upsert(ctx context.Context, integration *models.Integration) error {
	if integration.ID == "" {
		return apperr.Validation("integration id is required")
	}
	now := time.Now().UTC()
	if integration.CreatedAt.IsZero() {
		integration.CreatedAt = now
	}
	integration.UpdatedAt = now
	if integration.Status == "" {
		integration.Status = models.IntegrationDisconnected
	}
	if integration.ConfigJSON == "" {
		integration.ConfigJSON = "{}"
	}

	_, err := s.db.DB().ExecContext(ctx,
		`INSERT INTO integrations (id, name, config_json, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			config_json = excluded.config_json,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		integration.ID, integration.Name, integration.ConfigJSON, integration.Status,
		integration.CreatedAt.Unix(), integration.UpdatedAt.Unix())
	if err != nil {
		return apperr.Wrap(err, apperr.KindData, "failed to upsert integration")
	}
	return nil
}

func (s *integrationStorage) Get(ctx context.Context, id string) (*models.Integration, error) {
	row := s.db.DB().QueryRowContext(ctx, selectIntegration+` WHERE id = ?`, id)
	integration, err := scanIntegration(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("integration %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "failed to query integration")
	}
	return integration, nil
}

func (s *integrationStorage) List(ctx context.Context) ([]*models.Integration, error) {
	rows, err := s.db.DB().QueryContext(ctx, selectIntegration+` ORDER BY id`)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "failed to list integrations")
	}
	defer rows.Close()

	integrations := make([]*models.Integration, 0)
	for rows.Next() {
		integration, err := scanIntegration(rows)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.KindData, "failed to scan integration row")
		}
		integrations = append(integrations, integration)
	}
	return integrations, rows.Err()
}

func (s *integrationStorage) UpdateStatus(ctx context.Context, id, status string, lastSync *time.Time) error {
	var syncUnix interface{}
	if lastSync != nil {
		syncUnix = lastSync.UTC().Unix()
	}

	result, err := s.db.DB().ExecContext(ctx,
		`UPDATE integrations SET status = ?, last_sync = COALESCE(?, last_sync), updated_at = ? WHERE id = ?`,
		status, syncUnix, time.Now().UTC().Unix(), id)
	if err != nil {
		return apperr.Wrap(err, apperr.KindData, "failed to update integration status")
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return apperr.NotFound("integration %s not found", id)
	}
	return nil
}

func (s *integrationStorage) Delete(ctx context.Context, id string) error {
	result, err := s.db.DB().ExecContext(ctx, `DELETE FROM integrations WHERE id = ?`, id)
	if err != nil {
		return apperr.Wrap(err, apperr.KindData, "failed to delete integration")
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return apperr.NotFound("integration %s not found", id)
	}
	return nil
}

const selectIntegration = `SELECT id, name, config_json, status, last_sync, created_at, updated_at
	FROM integrations`

func scanIntegration(row rowScanner) (*models.Integration, error) {
	var i models.Integration
	var lastSync sql.NullInt64
	var createdAt, updatedAt int64

	if err := row.Scan(&i.ID, &i.Name, &i.ConfigJSON, &i.Status, &lastSync, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if lastSync.Valid {
		t := time.Unix(lastSync.Int64, 0).UTC()
		i.LastSync = &t
	}
	i.CreatedAt = time.Unix(createdAt, 0).UTC()
	i.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &i, nil
}
