package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/vietddude/taskguard/internal/core/domain"
	"github.com/vietddude/taskguard/internal/infra/storage"
)

// TaskRepo implements storage.TaskRepository using Redis.
type TaskRepo struct {
	client *Client
}

func NewTaskRepo(client *Client) *TaskRepo {
	return &TaskRepo{client: client}
}

// Create stores the task with SET NX so a racing duplicate fails instead of
// overwriting.
func (r *TaskRepo) Create(ctx context.Context, task *domain.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}

	ok, err := r.client.rdb.SetNX(ctx, taskKey(task.TaskID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("setnx failed: %w", err)
	}
	if !ok {
		return storage.ErrAlreadyExists
	}
	return nil
}

func (r *TaskRepo) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	data, err := r.client.rdb.Get(ctx, taskKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get failed: %w", err)
	}

	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	return &task, nil
}

// Update applies mutate under WATCH so a concurrent writer forces a retry
// of the whole read-mutate-write cycle (optimistic concurrency).
func (r *TaskRepo) Update(
	ctx context.Context,
	taskID string,
	mutate func(*domain.Task) error,
) (*domain.Task, error) {
	key := taskKey(taskID)
	var result *domain.Task

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get failed: %w", err)
		}

		var task domain.Task
		if err := json.Unmarshal(data, &task); err != nil {
			return fmt.Errorf("failed to decode task: %w", err)
		}
		if err := mutate(&task); err != nil {
			return err
		}

		updated, err := json.Marshal(&task)
		if err != nil {
			return fmt.Errorf("failed to encode task: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		if err != nil {
			return err
		}

		result = &task
		return nil
	}

	for i := 0; i < 5; i++ {
		err := r.client.rdb.Watch(ctx, txn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue // contended, retry the cycle
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, fmt.Errorf("update of task %s kept losing the optimistic lock", taskID)
}
