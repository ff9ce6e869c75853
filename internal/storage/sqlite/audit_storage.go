package sqlite

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/interfaces"
	"github.com/ternarybob/trutina/internal/models"
)

type auditStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewAuditStorage creates the append-only audit trail over admin.db.
func NewAuditStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.AuditStorage {
	return &auditStorage{db: db, logger: logger}
}

func (s *auditStorage) Append(ctx context.Context, entry *models.AuditEntry) error {
	if entry.Action == "" {
		return apperr.Validation("audit action is required")
	}
	if entry.User == "" {
		entry.User = "system"
	}
	if entry.EntryType == "" {
		entry.EntryType = models.AuditInfo
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.DB().ExecContext(ctx,
		`INSERT INTO audit_log (action, detail, user, entry_type, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		entry.Action, entry.Detail, entry.User, entry.EntryType, entry.CreatedAt.Unix())
	if err != nil {
		return apperr.Wrap(err, apperr.KindData, "failed to append audit entry")
	}
	entry.ID, _ = result.LastInsertId()
	return nil
}

func (s *auditStorage) List(ctx context.Context, entryType string, limit, offset int) ([]*models.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT id, action, detail, user, entry_type, created_at FROM audit_log`
	args := []interface{}{}
	if entryType != "" {
		query += ` WHERE entry_type = ?`
		args = append(args, entryType)
	}
	query += ` ORDER BY id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "failed to list audit entries")
	}
	defer rows.Close()

	entries := make([]*models.AuditEntry, 0)
	for rows.Next() {
		var e models.AuditEntry
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.Action, &e.Detail, &e.User, &e.EntryType, &createdAt); err != nil {
			return nil, apperr.Wrap(err, apperr.KindData, "failed to scan audit row")
		}
		e.CreatedAt = time.Unix(createdAt, 0).UTC()
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
