package domain

import "time"

// ProcessingMetrics summarizes how a task moved through its retry cycle
// before dead-lettering.
type ProcessingMetrics struct {
	FirstAttemptAt  time.Time     `json:"first_attempt_at"`
	LastAttemptAt   time.Time     `json:"last_attempt_at"`
	TotalRetryDelay time.Duration `json:"total_retry_delay"`
	PayloadSize     int           `json:"payload_size"`
}

// DLQEntry is a terminal-failure record built from a dead-lettered task
// plus transport delivery metadata.
type DLQEntry struct {
	ID             string              `json:"id"`
	TaskID         string              `json:"task_id"`
	SourceQueue    string              `json:"source_queue,omitempty"`
	LastError      string              `json:"last_error"`
	RetryCount     int                 `json:"retry_count"`
	DeliveryCount  int                 `json:"delivery_count"`
	Classification ErrorClassification `json:"classification"`
	Metrics        ProcessingMetrics   `json:"metrics"`
	CreatedAt      time.Time           `json:"created_at"`
}
