package models

import (
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of a job. Status advances monotonically
// through queued -> running -> {completed | failed | cancelled}.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether the status is a terminal state.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// CanTransitionTo enforces the monotonic lifecycle.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusQueued:
		return next == JobStatusRunning || next == JobStatusFailed || next == JobStatusCancelled
	case JobStatusRunning:
		return next.IsTerminal()
	default:
		return false
	}
}

// Job is one execution of a subtask or pipeline.
type Job struct {
	ID           int64      `json:"id"`
	JobType      string     `json:"job_type"`
	Status       JobStatus  `json:"status"`
	Progress     int        `json:"progress"`
	ConfigJSON   string     `json:"config_json,omitempty"`
	ResultJSON   string     `json:"result_json,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Validate checks job invariants: progress bounds and the progress/status
// coupling (progress == 100 iff completed).
func (j *Job) Validate() error {
	if j.JobType == "" {
		return fmt.Errorf("job_type is required")
	}
	if j.Progress < 0 || j.Progress > 100 {
		return fmt.Errorf("progress must be within [0, 100], got %d", j.Progress)
	}
	if j.Status == JobStatusCompleted && j.Progress != 100 {
		return fmt.Errorf("completed job must have progress 100, got %d", j.Progress)
	}
	if j.Progress == 100 && j.Status != JobStatusCompleted {
		return fmt.Errorf("progress 100 requires completed status, got %s", j.Status)
	}
	return nil
}
