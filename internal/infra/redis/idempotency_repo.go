package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vietddude/taskguard/internal/core/domain"
	"github.com/vietddude/taskguard/internal/infra/storage"
)

// IdempotencyRepo implements storage.IdempotencyRepository using Redis.
// SET NX gives the at-most-one-winner create; the key TTL is the record's
// time-to-live, so expiry is fully delegated to the store.
type IdempotencyRepo struct {
	client *Client
}

func NewIdempotencyRepo(client *Client) *IdempotencyRepo {
	return &IdempotencyRepo{client: client}
}

func (r *IdempotencyRepo) Create(
	ctx context.Context,
	rec *domain.IdempotencyRecord,
	ttl time.Duration,
) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode idempotency record: %w", err)
	}

	ok, err := r.client.rdb.SetNX(ctx, idempotencyKey(rec.Key), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("setnx failed: %w", err)
	}
	if !ok {
		return storage.ErrAlreadyExists
	}
	return nil
}

func (r *IdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	data, err := r.client.rdb.Get(ctx, idempotencyKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get failed: %w", err)
	}

	var rec domain.IdempotencyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode idempotency record: %w", err)
	}
	return &rec, nil
}
