package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/taskguard/internal/core/domain"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned by conditional creates when the key is
	// already present. Not an internal fault: callers surface it as a
	// duplicate submission.
	ErrAlreadyExists = errors.New("record already exists")
)

// TaskRepository persists task records keyed by task id. Writes for a
// single key are serialized by the store.
type TaskRepository interface {
	// Create stores a new task. Conditional: fails with ErrAlreadyExists
	// instead of overwriting.
	Create(ctx context.Context, task *domain.Task) error

	// Get retrieves a task, or ErrNotFound.
	Get(ctx context.Context, taskID string) (*domain.Task, error)

	// Update applies mutate to the current record under a conditional
	// write. Fails with ErrNotFound if the task was never created; an
	// error from mutate aborts the write and is returned unchanged.
	Update(ctx context.Context, taskID string, mutate func(*domain.Task) error) (*domain.Task, error)
}

// IdempotencyRepository persists idempotency records keyed by idempotency
// key. Expiry is delegated to the store (native TTL where available);
// records are never mutated after creation.
type IdempotencyRepository interface {
	// Create stores a new record with the given time-to-live. Conditional:
	// fails with ErrAlreadyExists when another writer won the race.
	Create(ctx context.Context, rec *domain.IdempotencyRecord, ttl time.Duration) error

	// Get retrieves a record, or ErrNotFound.
	Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error)
}

// DLQRepository archives terminal-failure records for analytics.
type DLQRepository interface {
	// Add archives a DLQ entry.
	Add(ctx context.Context, entry *domain.DLQEntry) error

	// List returns entries created at or after since, newest first.
	List(ctx context.Context, since time.Time) ([]*domain.DLQEntry, error)

	// Count returns the number of archived entries.
	Count(ctx context.Context) (int, error)
}
