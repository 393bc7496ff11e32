package domain

import (
	"encoding/json"
	"time"
)

// MaxPayloadBytes bounds the size of a task payload.
const MaxPayloadBytes = 256 * 1024

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusDeadLetter TaskStatus = "dead_letter"
)

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusDeadLetter
}

// Task represents one unit of work moving through the pipeline.
type Task struct {
	TaskID         string          `json:"task_id"`
	Status         TaskStatus      `json:"status"`
	Payload        json.RawMessage `json:"payload"`
	RetryCount     int             `json:"retry_count"`
	FailureDestiny bool            `json:"failure_destiny"`
	LastError      string          `json:"last_error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	FailedAt       *time.Time      `json:"failed_at,omitempty"`
}
