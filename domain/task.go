package domain

import (
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "PENDING"
	TaskStatusRunning   TaskStatus = "RUNNING"
	TaskStatusSucceeded TaskStatus = "SUCCEEDED"
	TaskStatusFailed    TaskStatus = "FAILED"
)

// Claimable reports whether a worker may take the task. A FAILED task
// is claimable again because the queue redelivers it until the attempt
// budget runs out; the budget itself is checked at claim time.
func (s TaskStatus) Claimable() bool {
	return s == TaskStatusPending || s == TaskStatusFailed
}

// ProcessingTask tracks one unit of pipeline work for a video. There
// is exactly one task per video; redeliveries reuse the same row and
// bump Attempts.
type ProcessingTask struct {
	ID           uuid.UUID
	VideoID      uuid.UUID
	Status       TaskStatus
	Attempts     int
	ErrorMessage string
	StartedAt    *time.Time
	FinishedAt   *time.Time
	CreatedAt    time.Time
}
