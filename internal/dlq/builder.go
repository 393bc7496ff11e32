// Package dlq builds terminal-failure records and aggregates them into
// windowed operational statistics.
package dlq

import (
	"time"

	"github.com/google/uuid"
	"github.com/vietddude/taskguard/internal/classify"
	"github.com/vietddude/taskguard/internal/core/domain"
	"github.com/vietddude/taskguard/internal/retry"
)

// TransportMetadata carries queue-side delivery facts about a dead-lettered
// message.
type TransportMetadata struct {
	MessageID       string
	SourceQueue     string
	DeliveryCount   int
	FirstReceivedAt time.Time
	LastReceivedAt  time.Time
}

// Builder assembles DLQ entries from dead-lettered tasks. The retry config
// is used to reconstruct the delays the task accumulated across its cycle.
type Builder struct {
	strategy retry.Strategy
	cfg      retry.Config
}

func NewBuilder(strategy retry.Strategy, cfg retry.Config) *Builder {
	// Delay reconstruction must be deterministic.
	cfg.JitterEnabled = false
	return &Builder{strategy: strategy, cfg: cfg}
}

// BuildEntry creates a DLQ entry from a terminal task plus transport
// metadata, enriched with a classification and processing metrics.
func (b *Builder) BuildEntry(task *domain.Task, meta TransportMetadata) *domain.DLQEntry {
	var totalDelay time.Duration
	for attempt := 1; attempt <= task.RetryCount; attempt++ {
		totalDelay += b.strategy.CalculateDelay(attempt, b.cfg)
	}

	first := meta.FirstReceivedAt
	if first.IsZero() {
		first = task.CreatedAt
	}
	last := meta.LastReceivedAt
	if last.IsZero() {
		last = task.UpdatedAt
	}

	return &domain.DLQEntry{
		ID:             uuid.New().String(),
		TaskID:         task.TaskID,
		SourceQueue:    meta.SourceQueue,
		LastError:      task.LastError,
		RetryCount:     task.RetryCount,
		DeliveryCount:  meta.DeliveryCount,
		Classification: classify.Classify(task.LastError, task.RetryCount),
		Metrics: domain.ProcessingMetrics{
			FirstAttemptAt:  first,
			LastAttemptAt:   last,
			TotalRetryDelay: totalDelay,
			PayloadSize:     len(task.Payload),
		},
		CreatedAt: time.Now().UTC(),
	}
}
