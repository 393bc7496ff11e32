// Package lifecycle owns the task record state machine. Every mutation goes
// through a conditional store write; no other component touches task
// records directly.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/taskguard/internal/core/domain"
	"github.com/vietddude/taskguard/internal/infra/sink"
	"github.com/vietddude/taskguard/internal/infra/storage"
)

var (
	// ErrPayloadTooLarge is returned when a payload exceeds the size bound.
	ErrPayloadTooLarge = errors.New("payload exceeds size limit")

	// ErrRetryCountDecreased is returned when a transition would move
	// retry count backwards.
	ErrRetryCountDecreased = errors.New("retry count must not decrease")
)

// Transition describes one requested state change. The manager validates
// required fields per target status but does not enforce the abstract state
// graph; the retry coordinator decides which transitions are attempted.
type Transition struct {
	Status      domain.TaskStatus
	RetryCount  *int
	LastError   string
	CompletedAt *time.Time
	FailedAt    *time.Time
}

// Manager exposes lifecycle operations over a task repository.
type Manager struct {
	tasks storage.TaskRepository
	sink  sink.Sink
}

func NewManager(tasks storage.TaskRepository, s sink.Sink) *Manager {
	if s == nil {
		s = sink.Nop{}
	}
	return &Manager{tasks: tasks, sink: s}
}

// Create stores a new pending task. The write is conditional: a racing
// second create for the same id fails with storage.ErrAlreadyExists.
func (m *Manager) Create(
	ctx context.Context,
	taskID string,
	payload json.RawMessage,
	failureDestiny bool,
) (*domain.Task, error) {
	if len(payload) > domain.MaxPayloadBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	now := time.Now().UTC()
	task := &domain.Task{
		TaskID:         taskID,
		Status:         domain.TaskStatusPending,
		Payload:        payload,
		RetryCount:     0,
		FailureDestiny: failureDestiny,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := m.tasks.Create(ctx, task); err != nil {
		return nil, err
	}

	m.sink.Emit("task.created", 1, "count", map[string]string{"destiny": fmt.Sprint(failureDestiny)})
	return task, nil
}

// Transition applies tr to the task under a conditional write, failing with
// storage.ErrNotFound when the task was never created. updatedAt always
// advances; required fields are validated, never invented.
func (m *Manager) Transition(ctx context.Context, taskID string, tr Transition) (*domain.Task, error) {
	if err := validate(tr); err != nil {
		return nil, err
	}

	task, err := m.tasks.Update(ctx, taskID, func(t *domain.Task) error {
		if tr.RetryCount != nil {
			if *tr.RetryCount < t.RetryCount {
				return fmt.Errorf("%w: %d -> %d", ErrRetryCountDecreased, t.RetryCount, *tr.RetryCount)
			}
			t.RetryCount = *tr.RetryCount
		}

		t.Status = tr.Status
		t.UpdatedAt = time.Now().UTC()
		if tr.LastError != "" {
			t.LastError = tr.LastError
		}
		if tr.CompletedAt != nil && t.CompletedAt == nil {
			t.CompletedAt = tr.CompletedAt
		}
		if tr.FailedAt != nil && t.FailedAt == nil {
			t.FailedAt = tr.FailedAt
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.sink.Emit("task.transition", 1, "count", map[string]string{"status": string(tr.Status)})
	return task, nil
}

// Get retrieves a task record, or storage.ErrNotFound.
func (m *Manager) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	return m.tasks.Get(ctx, taskID)
}

func validate(tr Transition) error {
	switch tr.Status {
	case domain.TaskStatusCompleted:
		if tr.CompletedAt == nil {
			return fmt.Errorf("transition to %s requires completedAt", tr.Status)
		}
	case domain.TaskStatusFailed, domain.TaskStatusDeadLetter:
		if tr.LastError == "" {
			return fmt.Errorf("transition to %s requires lastError", tr.Status)
		}
		if tr.FailedAt == nil {
			return fmt.Errorf("transition to %s requires failedAt", tr.Status)
		}
	}
	return nil
}
