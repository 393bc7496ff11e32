// Package pipeline composes the fault-tolerance core: idempotent
// submission, lifecycle transitions, retry deliberation, and dead-letter
// handling, exposed as the operations callers consume.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/taskguard/internal/classify"
	"github.com/vietddude/taskguard/internal/core/domain"
	"github.com/vietddude/taskguard/internal/destiny"
	"github.com/vietddude/taskguard/internal/dlq"
	"github.com/vietddude/taskguard/internal/idempotency"
	"github.com/vietddude/taskguard/internal/infra/queue"
	"github.com/vietddude/taskguard/internal/infra/sink"
	"github.com/vietddude/taskguard/internal/infra/storage"
	"github.com/vietddude/taskguard/internal/lifecycle"
	"github.com/vietddude/taskguard/internal/metrics"
	"github.com/vietddude/taskguard/internal/retry"
)

// SubmitStatus enumerates the outcomes of SubmitTask.
type SubmitStatus string

const (
	SubmitCreated   SubmitStatus = "created"
	SubmitDuplicate SubmitStatus = "duplicate"
	SubmitReplayed  SubmitStatus = "replayed"
	SubmitConflict  SubmitStatus = "conflict"
)

// SubmitResult is the outcome of one submission.
type SubmitResult struct {
	Status         SubmitStatus
	Task           *domain.Task
	CachedResponse json.RawMessage
}

// OutcomeType enumerates the outcomes of RecordAttemptOutcome.
type OutcomeType string

const (
	OutcomeCompleted OutcomeType = "completed"
	OutcomeRetry     OutcomeType = "retry"
	OutcomeTerminal  OutcomeType = "terminal"
)

// AttemptOutcome is the decision for one recorded attempt.
type AttemptOutcome struct {
	Type OutcomeType
	// Delay and VisibilitySeconds are set when Type is OutcomeRetry.
	Delay             time.Duration
	VisibilitySeconds int
	// DeadLetter is set when Type is OutcomeTerminal.
	DeadLetter     bool
	Classification domain.ErrorClassification
}

// TaskMessage is the queue payload referencing a task record.
type TaskMessage struct {
	TaskID string `json:"task_id"`
}

// Config holds pipeline behavior settings.
type Config struct {
	// FailureThresholdPerMille controls deterministic fault injection at
	// task creation (0 disables it).
	FailureThresholdPerMille int `yaml:"failure_threshold_per_mille"`
	// IdempotencyTTL bounds how long a submission response is replayed.
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
	// SourceQueue names the transport in DLQ entries.
	SourceQueue string `yaml:"source_queue"`
}

// Service exposes the core's operations to callers (HTTP handlers, queue
// consumers, batch jobs).
type Service struct {
	cfg         Config
	lifecycle   *lifecycle.Manager
	guard       *idempotency.Guard
	coordinator *retry.Coordinator
	builder     *dlq.Builder
	dlqRepo     storage.DLQRepository
	transport   queue.Transport
	sink        sink.Sink
	log         *slog.Logger
}

func NewService(
	cfg Config,
	lc *lifecycle.Manager,
	guard *idempotency.Guard,
	coordinator *retry.Coordinator,
	builder *dlq.Builder,
	dlqRepo storage.DLQRepository,
	transport queue.Transport,
	s sink.Sink,
	log *slog.Logger,
) *Service {
	if s == nil {
		s = sink.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		cfg:         cfg,
		lifecycle:   lc,
		guard:       guard,
		coordinator: coordinator,
		builder:     builder,
		dlqRepo:     dlqRepo,
		transport:   transport,
		sink:        s,
		log:         log,
	}
}

// SubmitTask accepts one unit of work. The task id doubles as the
// idempotency key: a replayed submission returns the cached response, a key
// reused with a different payload is a conflict, and a lost create race is
// a duplicate.
func (s *Service) SubmitTask(
	ctx context.Context,
	taskID string,
	payload json.RawMessage,
) (*SubmitResult, error) {
	fingerprint := idempotency.Fingerprint(payload)

	check, err := s.guard.Check(ctx, taskID, fingerprint)
	if errors.Is(err, idempotency.ErrConflict) {
		metrics.TasksSubmitted.WithLabelValues(string(SubmitConflict)).Inc()
		return &SubmitResult{Status: SubmitConflict}, nil
	}
	if err != nil {
		return nil, err
	}
	if !check.Proceed {
		metrics.TasksSubmitted.WithLabelValues(string(SubmitReplayed)).Inc()
		return &SubmitResult{Status: SubmitReplayed, CachedResponse: check.CachedResponse}, nil
	}

	fated := destiny.Decide(taskID, s.cfg.FailureThresholdPerMille)
	task, err := s.lifecycle.Create(ctx, taskID, payload, fated)
	if errors.Is(err, storage.ErrAlreadyExists) {
		metrics.TasksSubmitted.WithLabelValues(string(SubmitDuplicate)).Inc()
		return &SubmitResult{Status: SubmitDuplicate}, nil
	}
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(TaskMessage{TaskID: task.TaskID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode task message: %w", err)
	}
	if err := s.transport.Send(ctx, body); err != nil {
		return nil, fmt.Errorf("failed to enqueue task %s: %w", task.TaskID, err)
	}

	response, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to encode submission response: %w", err)
	}
	// Losing the store race is a no-op inside the guard.
	if err := s.guard.Store(ctx, taskID, fingerprint, response); err != nil {
		return nil, err
	}

	metrics.TasksSubmitted.WithLabelValues(string(SubmitCreated)).Inc()
	s.log.Info("task submitted", "task_id", task.TaskID, "destiny", fated)
	return &SubmitResult{Status: SubmitCreated, Task: task}, nil
}

// RecordAttemptOutcome records the result of one attempt. attemptIndex is
// 0-based (delivery count minus one). A nil attempt error completes the
// task; otherwise the coordinator decides between retry and terminal.
func (s *Service) RecordAttemptOutcome(
	ctx context.Context,
	taskID string,
	attemptIndex int,
	attemptErr error,
) (*AttemptOutcome, error) {
	if attemptErr == nil {
		now := time.Now().UTC()
		retries := attemptIndex
		_, err := s.lifecycle.Transition(ctx, taskID, lifecycle.Transition{
			Status:      domain.TaskStatusCompleted,
			RetryCount:  &retries,
			CompletedAt: &now,
		})
		if err != nil {
			return nil, err
		}
		metrics.AttemptsTotal.WithLabelValues("completed").Inc()
		return &AttemptOutcome{Type: OutcomeCompleted}, nil
	}

	decision := s.coordinator.Decide(ctx, attemptIndex, attemptErr.Error())

	if decision.Retry {
		// failedAt marks entering Failed/DeadLetter, not a retried attempt;
		// the attempt's error lives in lastError.
		retries := attemptIndex + 1
		_, err := s.lifecycle.Transition(ctx, taskID, lifecycle.Transition{
			Status:     domain.TaskStatusPending,
			RetryCount: &retries,
			LastError:  attemptErr.Error(),
		})
		if err != nil {
			return nil, err
		}

		metrics.AttemptsTotal.WithLabelValues("retry").Inc()
		metrics.RetryDelay.Observe(decision.Delay.Seconds())
		return &AttemptOutcome{
			Type:              OutcomeRetry,
			Delay:             decision.Delay,
			VisibilitySeconds: decision.VisibilitySeconds,
			Classification:    decision.Classification,
		}, nil
	}

	// Terminal: Failed first, then DeadLetter, so the record's history
	// reflects both states in order.
	now := time.Now().UTC()
	retries := attemptIndex
	if _, err := s.lifecycle.Transition(ctx, taskID, lifecycle.Transition{
		Status:     domain.TaskStatusFailed,
		RetryCount: &retries,
		LastError:  attemptErr.Error(),
		FailedAt:   &now,
	}); err != nil {
		return nil, err
	}

	task, err := s.lifecycle.Transition(ctx, taskID, lifecycle.Transition{
		Status:    domain.TaskStatusDeadLetter,
		LastError: attemptErr.Error(),
		FailedAt:  &now,
	})
	if err != nil {
		return nil, err
	}

	metrics.AttemptsTotal.WithLabelValues("terminal").Inc()
	metrics.DLQEntries.WithLabelValues(
		string(decision.Classification.Category),
		string(decision.Classification.Severity),
	).Inc()
	s.log.Warn("task dead-lettered",
		"task_id", task.TaskID,
		"retries", task.RetryCount,
		"category", decision.Classification.Category,
		"error", attemptErr)

	return &AttemptOutcome{
		Type:           OutcomeTerminal,
		DeadLetter:     true,
		Classification: decision.Classification,
	}, nil
}

// BuildDLQEntry builds a terminal-failure record from a dead-lettered task
// plus transport metadata.
func (s *Service) BuildDLQEntry(task *domain.Task, meta dlq.TransportMetadata) *domain.DLQEntry {
	if meta.SourceQueue == "" {
		meta.SourceQueue = s.cfg.SourceQueue
	}
	return s.builder.BuildEntry(task, meta)
}

// ArchiveDLQEntry persists a DLQ entry for analytics.
func (s *Service) ArchiveDLQEntry(ctx context.Context, entry *domain.DLQEntry) error {
	return s.dlqRepo.Add(ctx, entry)
}

// Aggregate reduces archived entries inside the window into a report.
func (s *Service) Aggregate(entries []*domain.DLQEntry, window time.Duration) *dlq.Report {
	return dlq.Aggregate(entries, window)
}

// Classify exposes the error classifier for callers that need
// classification without a retry decision.
func (s *Service) Classify(message string, attempts int) domain.ErrorClassification {
	return classify.Classify(message, attempts)
}
