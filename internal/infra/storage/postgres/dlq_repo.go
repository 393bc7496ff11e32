package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vietddude/taskguard/internal/core/domain"
)

// DLQRepo implements storage.DLQRepository using PostgreSQL. The
// classification and metrics blocks are stored as JSONB: analytics reads
// whole entries, never individual fields.
type DLQRepo struct {
	db *DB
}

func NewDLQRepo(db *DB) *DLQRepo {
	return &DLQRepo{db: db}
}

func (r *DLQRepo) Add(ctx context.Context, entry *domain.DLQEntry) error {
	classification, err := json.Marshal(entry.Classification)
	if err != nil {
		return fmt.Errorf("failed to encode classification: %w", err)
	}
	metrics, err := json.Marshal(entry.Metrics)
	if err != nil {
		return fmt.Errorf("failed to encode metrics: %w", err)
	}

	query := `
		INSERT INTO dlq_entries (id, task_id, source_queue, last_error, retry_count, delivery_count, classification, metrics, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.ExecContext(ctx, query,
		entry.ID,
		entry.TaskID,
		entry.SourceQueue,
		entry.LastError,
		entry.RetryCount,
		entry.DeliveryCount,
		classification,
		metrics,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert dlq entry: %w", err)
	}
	return nil
}

func (r *DLQRepo) List(ctx context.Context, since time.Time) ([]*domain.DLQEntry, error) {
	query := `
		SELECT id, task_id, source_queue, last_error, retry_count, delivery_count, classification, metrics, created_at
		FROM dlq_entries
		WHERE created_at >= $1
		ORDER BY created_at DESC
	`
	var rows []struct {
		ID             string          `db:"id"`
		TaskID         string          `db:"task_id"`
		SourceQueue    string          `db:"source_queue"`
		LastError      string          `db:"last_error"`
		RetryCount     int             `db:"retry_count"`
		DeliveryCount  int             `db:"delivery_count"`
		Classification json.RawMessage `db:"classification"`
		Metrics        json.RawMessage `db:"metrics"`
		CreatedAt      time.Time       `db:"created_at"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, since); err != nil {
		return nil, fmt.Errorf("failed to list dlq entries: %w", err)
	}

	out := make([]*domain.DLQEntry, 0, len(rows))
	for _, row := range rows {
		entry := &domain.DLQEntry{
			ID:            row.ID,
			TaskID:        row.TaskID,
			SourceQueue:   row.SourceQueue,
			LastError:     row.LastError,
			RetryCount:    row.RetryCount,
			DeliveryCount: row.DeliveryCount,
			CreatedAt:     row.CreatedAt,
		}
		if err := json.Unmarshal(row.Classification, &entry.Classification); err != nil {
			return nil, fmt.Errorf("failed to decode classification: %w", err)
		}
		if err := json.Unmarshal(row.Metrics, &entry.Metrics); err != nil {
			return nil, fmt.Errorf("failed to decode metrics: %w", err)
		}
		out = append(out, entry)
	}
	return out, nil
}

func (r *DLQRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM dlq_entries`); err != nil {
		return 0, fmt.Errorf("failed to count dlq entries: %w", err)
	}
	return count, nil
}
