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

// IdempotencyRepo implements storage.IdempotencyRepository using PostgreSQL.
// Postgres has no native TTL, so Get filters on expires_at; a periodic
// sweep can prune dead rows offline.
type IdempotencyRepo struct {
	db *DB
}

func NewIdempotencyRepo(db *DB) *IdempotencyRepo {
	return &IdempotencyRepo{db: db}
}

func (r *IdempotencyRepo) Create(
	ctx context.Context,
	rec *domain.IdempotencyRecord,
	ttl time.Duration,
) error {
	// An expired row still occupies the key, so a plain DO NOTHING would
	// block the key forever. Reclaim the row when its TTL has passed; only
	// a conflict with a live row loses the race.
	query := `
		INSERT INTO idempotency_records (key, fingerprint, cached_response, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO UPDATE
		SET fingerprint = EXCLUDED.fingerprint,
		    cached_response = EXCLUDED.cached_response,
		    created_at = EXCLUDED.created_at,
		    expires_at = EXCLUDED.expires_at
		WHERE idempotency_records.expires_at <= NOW()
	`
	res, err := r.db.ExecContext(ctx, query,
		rec.Key,
		rec.Fingerprint,
		[]byte(rec.CachedResponse),
		rec.CreatedAt,
		rec.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert idempotency record: %w", err)
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

func (r *IdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	query := `
		SELECT key, fingerprint, cached_response, created_at, expires_at
		FROM idempotency_records
		WHERE key = $1 AND expires_at > NOW()
	`
	var row struct {
		Key            string          `db:"key"`
		Fingerprint    string          `db:"fingerprint"`
		CachedResponse json.RawMessage `db:"cached_response"`
		CreatedAt      time.Time       `db:"created_at"`
		ExpiresAt      time.Time       `db:"expires_at"`
	}
	err := r.db.GetContext(ctx, &row, query, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency record: %w", err)
	}

	return &domain.IdempotencyRecord{
		Key:            row.Key,
		Fingerprint:    row.Fingerprint,
		CachedResponse: row.CachedResponse,
		CreatedAt:      row.CreatedAt,
		ExpiresAt:      row.ExpiresAt,
	}, nil
}
