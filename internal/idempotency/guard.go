// Package idempotency deduplicates submissions keyed by an idempotency key
// plus a fingerprint of the request body.
package idempotency

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

// ErrConflict is returned when a key is reused with a different request
// body. Callers must reject the submission rather than silently process it.
var ErrConflict = errors.New("idempotency key reused with different request")

// CheckResult is the outcome of consulting the guard before processing.
type CheckResult struct {
	// Proceed is true when no live record exists; the caller processes the
	// request normally and stores the response afterwards.
	Proceed bool
	// CachedResponse is the originally stored response when the same
	// logical request was seen before; the caller returns it unchanged.
	CachedResponse json.RawMessage
}

// Guard implements check/store deduplication over a conditional store.
type Guard struct {
	records storage.IdempotencyRepository
	ttl     time.Duration
	sink    sink.Sink
}

func NewGuard(records storage.IdempotencyRepository, ttl time.Duration, s sink.Sink) *Guard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if s == nil {
		s = sink.Nop{}
	}
	return &Guard{records: records, ttl: ttl, sink: s}
}

// Check consults the record for key. Fingerprints are compared, never raw
// bodies. A missing or expired record yields Proceed; a live record with a
// different fingerprint yields ErrConflict.
func (g *Guard) Check(ctx context.Context, key, fingerprint string) (*CheckResult, error) {
	rec, err := g.records.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		g.sink.Emit("idempotency.check", 1, "count", map[string]string{"result": "proceed"})
		return &CheckResult{Proceed: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read idempotency record: %w", err)
	}

	if rec.Expired(time.Now()) {
		g.sink.Emit("idempotency.check", 1, "count", map[string]string{"result": "expired"})
		return &CheckResult{Proceed: true}, nil
	}

	if rec.Fingerprint != fingerprint {
		g.sink.Emit("idempotency.check", 1, "count", map[string]string{"result": "conflict"})
		return nil, ErrConflict
	}

	g.sink.Emit("idempotency.check", 1, "count", map[string]string{"result": "replay"})
	return &CheckResult{CachedResponse: rec.CachedResponse}, nil
}

// Store records the response for key. Losing the create race is the
// expected outcome of the at-most-one-winner contract and is a no-op: the
// record already present is authoritative.
func (g *Guard) Store(ctx context.Context, key, fingerprint string, response json.RawMessage) error {
	now := time.Now().UTC()
	rec := &domain.IdempotencyRecord{
		Key:            key,
		Fingerprint:    fingerprint,
		CachedResponse: response,
		CreatedAt:      now,
		ExpiresAt:      now.Add(g.ttl),
	}

	err := g.records.Create(ctx, rec, g.ttl)
	if errors.Is(err, storage.ErrAlreadyExists) {
		g.sink.Emit("idempotency.store", 1, "count", map[string]string{"result": "lost_race"})
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to store idempotency record: %w", err)
	}

	g.sink.Emit("idempotency.store", 1, "count", map[string]string{"result": "stored"})
	return nil
}
