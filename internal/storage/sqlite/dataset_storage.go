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

type datasetStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewDatasetStorage creates the dataset repository over admin.db.
func NewDatasetStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.DatasetStorage {
	return &datasetStorage{db: db, logger: logger}
}

func (s *datasetStorage) Create(ctx context.Context, dataset *models.Dataset) (int64, error) {
	columnsJSON, err := json.Marshal(dataset.Columns)
	if err != nil {
		return 0, apperr.Wrap(err, apperr.KindData, "failed to encode column profiles")
	}
	if dataset.CreatedAt.IsZero() {
		dataset.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.DB().ExecContext(ctx,
		`INSERT INTO datasets (name, original_filename, file_path, file_size, rows, cols, columns_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		dataset.Name, dataset.OriginalFilename, dataset.FilePath, dataset.FileSize,
		dataset.Rows, dataset.Cols, string(columnsJSON), dataset.CreatedAt.Unix())
	if err != nil {
		return 0, apperr.Wrap(err, apperr.KindData, "failed to insert dataset")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, apperr.Wrap(err, apperr.KindData, "failed to read dataset id")
	}
	dataset.ID = id
	return id, nil
}

func (s *datasetStorage) Get(ctx context.Context, id int64) (*models.Dataset, error) {
	row := s.db.DB().QueryRowContext(ctx,
		`SELECT id, name, original_filename, file_path, file_size, rows, cols, columns_json, created_at
		 FROM datasets WHERE id = ?`, id)
	dataset, err := scanDataset(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("dataset %d not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "failed to query dataset")
	}
	return dataset, nil
}

func (s *datasetStorage) GetByPath(ctx context.Context, filePath string) (*models.Dataset, error) {
	row := s.db.DB().QueryRowContext(ctx,
		`SELECT id, name, original_filename, file_path, file_size, rows, cols, columns_json, created_at
		 FROM datasets WHERE file_path = ?`, filePath)
	dataset, err := scanDataset(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("dataset with path %s not found", filePath)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "failed to query dataset by path")
	}
	return dataset, nil
}

func (s *datasetStorage) List(ctx context.Context) ([]*models.Dataset, error) {
	rows, err := s.db.DB().QueryContext(ctx,
		`SELECT id, name, original_filename, file_path, file_size, rows, cols, columns_json, created_at
		 FROM datasets ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "failed to list datasets")
	}
	defer rows.Close()

	datasets := make([]*models.Dataset, 0)
	for rows.Next() {
		dataset, err := scanDataset(rows)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.KindData, "failed to scan dataset row")
		}
		datasets = append(datasets, dataset)
	}
	return datasets, rows.Err()
}

func (s *datasetStorage) Delete(ctx context.Context, id int64) error {
	result, err := s.db.DB().ExecContext(ctx, `DELETE FROM datasets WHERE id = ?`, id)
	if err != nil {
		return apperr.Wrap(err, apperr.KindData, "failed to delete dataset")
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return apperr.NotFound("dataset %d not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDataset(row rowScanner) (*models.Dataset, error) {
	var d models.Dataset
	var columnsJSON string
	var createdAt int64

	if err := row.Scan(&d.ID, &d.Name, &d.OriginalFilename, &d.FilePath,
		&d.FileSize, &d.Rows, &d.Cols, &columnsJSON, &createdAt); err != nil {
		return nil, err
	}

	if columnsJSON != "" {
		if err := json.Unmarshal([]byte(columnsJSON), &d.Columns); err != nil {
			return nil, err
		}
	}
	d.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &d, nil
}
