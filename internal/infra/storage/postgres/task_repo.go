package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/taskguard/internal/core/domain"
	"github.com/vietddude/taskguard/internal/infra/storage"
)

// TaskRepo implements storage.TaskRepository using PostgreSQL.
type TaskRepo struct {
	db *DB
}

func NewTaskRepo(db *DB) *TaskRepo {
	return &TaskRepo{db: db}
}

type taskRow struct {
	TaskID         string          `db:"task_id"`
	Status         string          `db:"status"`
	Payload        json.RawMessage `db:"payload"`
	RetryCount     int             `db:"retry_count"`
	FailureDestiny bool            `db:"failure_destiny"`
	LastError      sql.NullString  `db:"last_error"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
	CompletedAt    sql.NullTime    `db:"completed_at"`
	FailedAt       sql.NullTime    `db:"failed_at"`
}

func (r taskRow) toDomain() *domain.Task {
	t := &domain.Task{
		TaskID:         r.TaskID,
		Status:         domain.TaskStatus(r.Status),
		Payload:        r.Payload,
		RetryCount:     r.RetryCount,
		FailureDestiny: r.FailureDestiny,
		LastError:      r.LastError.String,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.CompletedAt.Valid {
		at := r.CompletedAt.Time
		t.CompletedAt = &at
	}
	if r.FailedAt.Valid {
		at := r.FailedAt.Time
		t.FailedAt = &at
	}
	return t
}

// Create inserts a new task. ON CONFLICT DO NOTHING keeps the write
// conditional: a racing duplicate reports ErrAlreadyExists instead of
// overwriting.
func (r *TaskRepo) Create(ctx context.Context, task *domain.Task) error {
	query := `
		INSERT INTO tasks (task_id, status, payload, retry_count, failure_destiny, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
		ON CONFLICT (task_id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		task.TaskID,
		string(task.Status),
		[]byte(task.Payload),
		task.RetryCount,
		task.FailureDestiny,
		task.LastError,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read insert result: %w", err)
	}
	if affected == 0 {
		return storage.ErrAlreadyExists
	}
	return nil
}

func (r *TaskRepo) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	query := `
		SELECT task_id, status, payload, retry_count, failure_destiny, last_error, created_at, updated_at, completed_at, failed_at
		FROM tasks
		WHERE task_id = $1
	`
	var row taskRow
	err := r.db.GetContext(ctx, &row, query, taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return row.toDomain(), nil
}

// Update runs mutate against the current row inside a transaction holding a
// row lock, serializing writes per task id.
func (r *TaskRepo) Update(
	ctx context.Context,
	taskID string,
	mutate func(*domain.Task) error,
) (*domain.Task, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		SELECT task_id, status, payload, retry_count, failure_destiny, last_error, created_at, updated_at, completed_at, failed_at
		FROM tasks
		WHERE task_id = $1
		FOR UPDATE
	`
	var row taskRow
	err = tx.GetContext(ctx, &row, query, taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock task: %w", err)
	}

	task := row.toDomain()
	if err := mutate(task); err != nil {
		return nil, err
	}

	update := `
		UPDATE tasks
		SET status = $2, retry_count = $3, last_error = NULLIF($4, ''), updated_at = $5, completed_at = $6, failed_at = $7
		WHERE task_id = $1
	`
	if _, err := tx.ExecContext(ctx, update,
		task.TaskID,
		string(task.Status),
		task.RetryCount,
		task.LastError,
		task.UpdatedAt,
		task.CompletedAt,
		task.FailedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit update: %w", err)
	}
	return task, nil
}
