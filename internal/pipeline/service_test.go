package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/taskguard/internal/core/domain"
	"github.com/vietddude/taskguard/internal/dlq"
	"github.com/vietddude/taskguard/internal/idempotency"
	memqueue "github.com/vietddude/taskguard/internal/infra/queue/memory"
	"github.com/vietddude/taskguard/internal/infra/storage/memory"
	"github.com/vietddude/taskguard/internal/lifecycle"
	"github.com/vietddude/taskguard/internal/retry"
)

type testEnv struct {
	svc     *Service
	queue   *memqueue.Queue
	store   *memory.MemoryStorage
	dlqRepo *memory.DLQRepo
}

func newTestEnv(t *testing.T, thresholdPerMille int) *testEnv {
	t.Helper()

	store := memory.NewMemoryStorage()
	q := memqueue.New(memqueue.Config{
		DefaultVisibility:    20 * time.Millisecond,
		MaxVisibilitySeconds: 3600,
		MaxReceiveCount:      10,
	})

	retryCfg := retry.Config{
		MaxRetries: 2,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Strategy:   retry.StrategyExponential,
	}
	registry := retry.NewRegistry()
	coordinator, err := retry.NewCoordinator(registry, retryCfg, retry.DefaultVisibilityConfig, q, nil, nil)
	if err != nil {
		t.Fatalf("NewCoordinator failed: %v", err)
	}
	strategy, err := registry.Lookup(retryCfg.Strategy)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	lc := lifecycle.NewManager(memory.NewTaskRepo(store), nil)
	guard := idempotency.NewGuard(memory.NewIdempotencyRepo(store), time.Hour, nil)
	dlqRepo := memory.NewDLQRepo(store)

	svc := NewService(
		Config{
			FailureThresholdPerMille: thresholdPerMille,
			IdempotencyTTL:           time.Hour,
			SourceQueue:              "test-main",
		},
		lc, guard, coordinator, dlq.NewBuilder(strategy, retryCfg), dlqRepo, q, nil, nil,
	)
	return &testEnv{svc: svc, queue: q, store: store, dlqRepo: dlqRepo}
}

func TestSubmitTaskCreated(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	res, err := env.svc.SubmitTask(ctx, "task-1", json.RawMessage(`{"order": 42}`))
	if err != nil {
		t.Fatalf("SubmitTask failed: %v", err)
	}
	if res.Status != SubmitCreated {
		t.Fatalf("status = %s, want created", res.Status)
	}
	if res.Task == nil || res.Task.Status != domain.TaskStatusPending {
		t.Errorf("task = %+v, want pending record", res.Task)
	}
	if env.queue.Depth() != 1 {
		t.Errorf("queue depth = %d, want 1", env.queue.Depth())
	}

	msg, err := env.queue.Receive(ctx)
	if err != nil || msg == nil {
		t.Fatalf("Receive = %v, %v", msg, err)
	}
	var ref TaskMessage
	if err := json.Unmarshal(msg.Body, &ref); err != nil {
		t.Fatalf("message body not a task reference: %v", err)
	}
	if ref.TaskID != "task-1" {
		t.Errorf("message task id = %q, want task-1", ref.TaskID)
	}
}

func TestSubmitTaskReplayed(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	payload := json.RawMessage(`{"order": 42}`)

	first, err := env.svc.SubmitTask(ctx, "task-1", payload)
	if err != nil {
		t.Fatalf("first SubmitTask failed: %v", err)
	}

	second, err := env.svc.SubmitTask(ctx, "task-1", payload)
	if err != nil {
		t.Fatalf("replayed SubmitTask failed: %v", err)
	}
	if second.Status != SubmitReplayed {
		t.Fatalf("status = %s, want replayed", second.Status)
	}

	want, err := json.Marshal(first.Task)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !bytes.Equal(second.CachedResponse, want) {
		t.Errorf("cached response = %s, want %s", second.CachedResponse, want)
	}
	// No second enqueue.
	if env.queue.Depth() != 1 {
		t.Errorf("queue depth = %d, want 1 after replay", env.queue.Depth())
	}
}

func TestSubmitTaskConflict(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	if _, err := env.svc.SubmitTask(ctx, "task-1", json.RawMessage(`{"a":1}`)); err != nil {
		t.Fatalf("first SubmitTask failed: %v", err)
	}

	res, err := env.svc.SubmitTask(ctx, "task-1", json.RawMessage(`{"a":2}`))
	if err != nil {
		t.Fatalf("conflicting SubmitTask returned transport error: %v", err)
	}
	if res.Status != SubmitConflict {
		t.Errorf("status = %s, want conflict", res.Status)
	}
}

func TestSubmitTaskDuplicate(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	// A task record without a guard record: the create race was lost after
	// the check but before the store.
	if _, err := env.svc.lifecycle.Create(ctx, "task-1", nil, false); err != nil {
		t.Fatalf("seed Create failed: %v", err)
	}

	res, err := env.svc.SubmitTask(ctx, "task-1", nil)
	if err != nil {
		t.Fatalf("SubmitTask failed: %v", err)
	}
	if res.Status != SubmitDuplicate {
		t.Errorf("status = %s, want duplicate", res.Status)
	}
}

func TestSubmitTaskDestinyThreshold(t *testing.T) {
	env := newTestEnv(t, 1000)
	ctx := context.Background()

	res, err := env.svc.SubmitTask(ctx, "task-1", nil)
	if err != nil {
		t.Fatalf("SubmitTask failed: %v", err)
	}
	if !res.Task.FailureDestiny {
		t.Error("threshold 1000 should fate every task to fail")
	}

	env = newTestEnv(t, 0)
	res, err = env.svc.SubmitTask(ctx, "task-1", nil)
	if err != nil {
		t.Fatalf("SubmitTask failed: %v", err)
	}
	if res.Task.FailureDestiny {
		t.Error("threshold 0 should disable fault injection")
	}
}

func TestRecordAttemptOutcomeCompleted(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	if _, err := env.svc.SubmitTask(ctx, "task-1", nil); err != nil {
		t.Fatalf("SubmitTask failed: %v", err)
	}

	outcome, err := env.svc.RecordAttemptOutcome(ctx, "task-1", 0, nil)
	if err != nil {
		t.Fatalf("RecordAttemptOutcome failed: %v", err)
	}
	if outcome.Type != OutcomeCompleted {
		t.Fatalf("outcome = %s, want completed", outcome.Type)
	}

	task, err := env.svc.lifecycle.Get(ctx, "task-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if task.Status != domain.TaskStatusCompleted || task.CompletedAt == nil {
		t.Errorf("task = %+v, want completed with timestamp", task)
	}
}

func TestRecordAttemptOutcomeRetry(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	if _, err := env.svc.SubmitTask(ctx, "task-1", nil); err != nil {
		t.Fatalf("SubmitTask failed: %v", err)
	}

	outcome, err := env.svc.RecordAttemptOutcome(ctx, "task-1", 0, errors.New("connection refused"))
	if err != nil {
		t.Fatalf("RecordAttemptOutcome failed: %v", err)
	}
	if outcome.Type != OutcomeRetry {
		t.Fatalf("outcome = %s, want retry", outcome.Type)
	}
	if outcome.Delay != 2*time.Second {
		t.Errorf("delay = %v, want 2s", outcome.Delay)
	}
	if outcome.VisibilitySeconds <= 0 {
		t.Errorf("visibility = %d, want positive", outcome.VisibilitySeconds)
	}
	if outcome.Classification.Category != domain.CategoryNetwork {
		t.Errorf("category = %s, want NETWORK", outcome.Classification.Category)
	}

	task, err := env.svc.lifecycle.Get(ctx, "task-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if task.Status != domain.TaskStatusPending || task.RetryCount != 1 {
		t.Errorf("task = %+v, want pending with retry=1", task)
	}
	if task.LastError != "connection refused" {
		t.Errorf("last error = %q, want attempt error", task.LastError)
	}
	// The task is still in its retry cycle, not failed.
	if task.FailedAt != nil {
		t.Errorf("failedAt = %v, want unset until a terminal failure", task.FailedAt)
	}
}

func TestRetriedThenCompletedTaskHasNoFailedAt(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	if _, err := env.svc.SubmitTask(ctx, "task-1", nil); err != nil {
		t.Fatalf("SubmitTask failed: %v", err)
	}

	if _, err := env.svc.RecordAttemptOutcome(ctx, "task-1", 0, errors.New("timeout")); err != nil {
		t.Fatalf("retry attempt failed: %v", err)
	}
	if _, err := env.svc.RecordAttemptOutcome(ctx, "task-1", 1, nil); err != nil {
		t.Fatalf("completing attempt failed: %v", err)
	}

	task, err := env.svc.lifecycle.Get(ctx, "task-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if task.Status != domain.TaskStatusCompleted || task.CompletedAt == nil {
		t.Fatalf("task = %+v, want completed", task)
	}
	if task.FailedAt != nil {
		t.Errorf("failedAt = %v on a completed task, want unset", task.FailedAt)
	}
}

func TestRecordAttemptOutcomeTerminalNonRetryable(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	if _, err := env.svc.SubmitTask(ctx, "task-1", nil); err != nil {
		t.Fatalf("SubmitTask failed: %v", err)
	}

	outcome, err := env.svc.RecordAttemptOutcome(ctx, "task-1", 0, errors.New("invalid payload"))
	if err != nil {
		t.Fatalf("RecordAttemptOutcome failed: %v", err)
	}
	if outcome.Type != OutcomeTerminal || !outcome.DeadLetter {
		t.Fatalf("outcome = %+v, want terminal dead letter", outcome)
	}

	task, err := env.svc.lifecycle.Get(ctx, "task-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if task.Status != domain.TaskStatusDeadLetter {
		t.Errorf("status = %s, want dead_letter", task.Status)
	}
}

func TestRecordAttemptOutcomeTerminalExhausted(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	if _, err := env.svc.SubmitTask(ctx, "task-1", nil); err != nil {
		t.Fatalf("SubmitTask failed: %v", err)
	}

	// maxRetries is 2: attempt indexes 0 and 1 are retried, 2 is terminal.
	for attemptIndex := 0; attemptIndex < 2; attemptIndex++ {
		outcome, err := env.svc.RecordAttemptOutcome(ctx, "task-1", attemptIndex, errors.New("timeout"))
		if err != nil {
			t.Fatalf("attempt %d failed: %v", attemptIndex, err)
		}
		if outcome.Type != OutcomeRetry {
			t.Fatalf("attempt %d outcome = %s, want retry", attemptIndex, outcome.Type)
		}
	}

	outcome, err := env.svc.RecordAttemptOutcome(ctx, "task-1", 2, errors.New("timeout"))
	if err != nil {
		t.Fatalf("final attempt failed: %v", err)
	}
	if outcome.Type != OutcomeTerminal {
		t.Fatalf("final outcome = %s, want terminal", outcome.Type)
	}
}

func TestBuildAndArchiveDLQEntry(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	task := &domain.Task{
		TaskID:     "task-1",
		Status:     domain.TaskStatusDeadLetter,
		RetryCount: 2,
		LastError:  "connection refused",
		CreatedAt:  time.Now().UTC().Add(-time.Minute),
		UpdatedAt:  time.Now().UTC(),
	}

	entry := env.svc.BuildDLQEntry(task, dlq.TransportMetadata{DeliveryCount: 3})
	if entry.SourceQueue != "test-main" {
		t.Errorf("source queue = %q, want configured default", entry.SourceQueue)
	}

	if err := env.svc.ArchiveDLQEntry(ctx, entry); err != nil {
		t.Fatalf("ArchiveDLQEntry failed: %v", err)
	}
	count, err := env.dlqRepo.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("archived entries = %d, want 1", count)
	}

	entries, err := env.dlqRepo.List(ctx, time.Time{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	report := env.svc.Aggregate(entries, time.Hour)
	if report.TotalMessages != 1 {
		t.Errorf("report total = %d, want 1", report.TotalMessages)
	}
	if report.ByCategory[domain.CategoryNetwork] != 1 {
		t.Errorf("report categories = %v", report.ByCategory)
	}
}
