package dlq

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/vietddude/taskguard/internal/core/domain"
	"github.com/vietddude/taskguard/internal/retry"
)

func testRetryConfig() retry.Config {
	return retry.Config{
		MaxRetries:    3,
		BaseDelay:     time.Second,
		MaxDelay:      30 * time.Second,
		Multiplier:    2.0,
		JitterEnabled: true, // builder must disable this itself
		JitterMax:     500 * time.Millisecond,
	}
}

func TestBuildEntry(t *testing.T) {
	b := NewBuilder(retry.ExponentialBackoff{}, testRetryConfig())

	created := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	failedAt := created.Add(5 * time.Minute)
	task := &domain.Task{
		TaskID:     "task-1",
		Status:     domain.TaskStatusDeadLetter,
		Payload:    json.RawMessage(`{"order": 42}`),
		RetryCount: 3,
		LastError:  "connection refused",
		CreatedAt:  created,
		UpdatedAt:  failedAt,
	}
	meta := TransportMetadata{
		MessageID:       "msg-1",
		SourceQueue:     "orders-main",
		DeliveryCount:   4,
		FirstReceivedAt: created.Add(time.Second),
		LastReceivedAt:  failedAt,
	}

	entry := b.BuildEntry(task, meta)

	if entry.ID == "" {
		t.Error("entry ID not assigned")
	}
	if entry.TaskID != "task-1" || entry.SourceQueue != "orders-main" {
		t.Errorf("identity fields = %q/%q", entry.TaskID, entry.SourceQueue)
	}
	if entry.RetryCount != 3 || entry.DeliveryCount != 4 {
		t.Errorf("counts = %d/%d, want 3/4", entry.RetryCount, entry.DeliveryCount)
	}
	if entry.Classification.Category != domain.CategoryNetwork {
		t.Errorf("category = %s, want NETWORK", entry.Classification.Category)
	}
	// Deterministic reconstruction: 2s + 4s + 8s despite jitter in config.
	if want := 14 * time.Second; entry.Metrics.TotalRetryDelay != want {
		t.Errorf("total retry delay = %v, want %v", entry.Metrics.TotalRetryDelay, want)
	}
	if entry.Metrics.PayloadSize != len(task.Payload) {
		t.Errorf("payload size = %d, want %d", entry.Metrics.PayloadSize, len(task.Payload))
	}
	if !entry.Metrics.FirstAttemptAt.Equal(meta.FirstReceivedAt) {
		t.Errorf("first attempt = %v, want %v", entry.Metrics.FirstAttemptAt, meta.FirstReceivedAt)
	}
}

func TestBuildEntryFallsBackToTaskTimestamps(t *testing.T) {
	b := NewBuilder(retry.ExponentialBackoff{}, testRetryConfig())

	created := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	updated := created.Add(time.Minute)
	task := &domain.Task{
		TaskID:     "task-1",
		RetryCount: 0,
		LastError:  "invalid payload",
		CreatedAt:  created,
		UpdatedAt:  updated,
	}

	entry := b.BuildEntry(task, TransportMetadata{})
	if !entry.Metrics.FirstAttemptAt.Equal(created) {
		t.Errorf("first attempt = %v, want task created %v", entry.Metrics.FirstAttemptAt, created)
	}
	if !entry.Metrics.LastAttemptAt.Equal(updated) {
		t.Errorf("last attempt = %v, want task updated %v", entry.Metrics.LastAttemptAt, updated)
	}
	if entry.Metrics.TotalRetryDelay != 0 {
		t.Errorf("total retry delay = %v, want 0 for zero retries", entry.Metrics.TotalRetryDelay)
	}
	if entry.Classification.Category != domain.CategoryValidation {
		t.Errorf("category = %s, want VALIDATION", entry.Classification.Category)
	}
}
