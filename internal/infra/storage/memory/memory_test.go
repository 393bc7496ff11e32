package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/taskguard/internal/core/domain"
	"github.com/vietddude/taskguard/internal/infra/storage"
)

func TestTaskRepoConditionalCreate(t *testing.T) {
	repo := NewTaskRepo(NewMemoryStorage())
	ctx := context.Background()

	task := &domain.Task{TaskID: "t-1", Status: domain.TaskStatusPending}
	if err := repo.Create(ctx, task); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := repo.Create(ctx, task); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("second Create = %v, want ErrAlreadyExists", err)
	}
}

func TestTaskRepoGetReturnsCopy(t *testing.T) {
	repo := NewTaskRepo(NewMemoryStorage())
	ctx := context.Background()

	if err := repo.Create(ctx, &domain.Task{TaskID: "t-1", Status: domain.TaskStatusPending}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := repo.Get(ctx, "t-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	got.Status = domain.TaskStatusCompleted

	again, err := repo.Get(ctx, "t-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if again.Status != domain.TaskStatusPending {
		t.Error("mutating a returned record leaked into the store")
	}
}

func TestTaskRepoUpdateFailedMutatorLeavesRecordIntact(t *testing.T) {
	repo := NewTaskRepo(NewMemoryStorage())
	ctx := context.Background()

	if err := repo.Create(ctx, &domain.Task{TaskID: "t-1", Status: domain.TaskStatusPending, RetryCount: 2}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	boom := errors.New("mutator rejected")
	_, err := repo.Update(ctx, "t-1", func(task *domain.Task) error {
		task.RetryCount = 99
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update = %v, want mutator error", err)
	}

	task, err := repo.Get(ctx, "t-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if task.RetryCount != 2 {
		t.Errorf("retry count = %d, want 2 after failed mutation", task.RetryCount)
	}
}

func TestTaskRepoUpdateNotFound(t *testing.T) {
	repo := NewTaskRepo(NewMemoryStorage())
	_, err := repo.Update(context.Background(), "missing", func(*domain.Task) error { return nil })
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Update = %v, want ErrNotFound", err)
	}
}

func TestIdempotencyRepoHardExpiry(t *testing.T) {
	repo := NewIdempotencyRepo(NewMemoryStorage())
	ctx := context.Background()

	rec := &domain.IdempotencyRecord{Key: "k-1", Fingerprint: "fp"}
	if err := repo.Create(ctx, rec, 20*time.Millisecond); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Live entry blocks recreation and is readable.
	if err := repo.Create(ctx, rec, time.Hour); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("live recreate = %v, want ErrAlreadyExists", err)
	}
	if _, err := repo.Get(ctx, "k-1"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	// The TTL elapsed: the entry vanishes and the key is reusable.
	if _, err := repo.Get(ctx, "k-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expired Get = %v, want ErrNotFound", err)
	}
	if err := repo.Create(ctx, rec, time.Hour); err != nil {
		t.Fatalf("recreate after expiry failed: %v", err)
	}
}

func TestDLQRepoListFiltersAndOrders(t *testing.T) {
	repo := NewDLQRepo(NewMemoryStorage())
	ctx := context.Background()

	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	for i, offset := range []time.Duration{0, time.Hour, 2 * time.Hour} {
		entry := &domain.DLQEntry{
			ID:        string(rune('a' + i)),
			TaskID:    "t-1",
			CreatedAt: base.Add(offset),
		}
		if err := repo.Add(ctx, entry); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	entries, err := repo.List(ctx, base.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2 after since filter", len(entries))
	}
	if !entries[0].CreatedAt.After(entries[1].CreatedAt) {
		t.Error("entries not ordered newest first")
	}

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}
