package models

import "time"

// AuditEntryType classifies an audit log entry.
type AuditEntryType string

const (
	AuditInfo    AuditEntryType = "info"
	AuditCreate  AuditEntryType = "create"
	AuditModify  AuditEntryType = "modify"
	AuditDelete  AuditEntryType = "delete"
	AuditError   AuditEntryType = "error"
	AuditWarning AuditEntryType = "warning"
	AuditSystem  AuditEntryType = "system"
)

// AuditEntry is an append-only record of a state-changing operation.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Action    string         `json:"action"`
	Detail    string         `json:"detail"`
	User      string         `json:"user"`
	EntryType AuditEntryType `json:"entry_type"`
	CreatedAt time.Time      `json:"created_at"`
}
