package sqlite

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/interfaces"
	"github.com/ternarybob/trutina/internal/models"
)

type text2sqlStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewText2SQLStorage creates the text2sql history repository over admin.db.
func NewText2SQLStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.Text2SQLStorage {
	return &text2sqlStorage{db: db, logger: logger}
}

func (s *text2sqlStorage) Append(ctx context.Context, entry *models.Text2SQLEntry) (int64, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.DB().ExecContext(ctx,
		`INSERT INTO text2sql_history (natural_language, generated_sql, executed, row_count, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		entry.NaturalLanguage, entry.GeneratedSQL, boolToInt(entry.Executed),
		entry.RowCount, entry.CreatedAt.Unix())
	if err != nil {
		return 0, apperr.Wrap(err, apperr.KindData, "failed to append text2sql entry")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, apperr.Wrap(err, apperr.KindData, "failed to read text2sql entry id")
	}
	entry.ID = id
	return id, nil
}

func (s *text2sqlStorage) History(ctx context.Context, limit int) ([]*models.Text2SQLEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.DB().QueryContext(ctx,
		`SELECT id, natural_language, generated_sql, executed, row_count, created_at
		 FROM text2sql_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "failed to list text2sql history")
	}
	defer rows.Close()

	entries := make([]*models.Text2SQLEntry, 0)
	for rows.Next() {
		var e models.Text2SQLEntry
		var executed int
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.NaturalLanguage, &e.GeneratedSQL, &executed, &e.RowCount, &createdAt); err != nil {
			return nil, apperr.Wrap(err, apperr.KindData, "failed to scan text2sql row")
		}
		e.Executed = executed != 0
		e.CreatedAt = time.Unix(createdAt, 0).UTC()
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
