package domain

import (
	"encoding/json"
	"time"
)

// IdempotencyRecord captures the outcome of a previously accepted submission.
// Created once per key; consulted, never mutated, on later submissions.
type IdempotencyRecord struct {
	Key            string          `json:"key"`
	Fingerprint    string          `json:"fingerprint"`
	CachedResponse json.RawMessage `json:"cached_response"`
	CreatedAt      time.Time       `json:"created_at"`
	ExpiresAt      time.Time       `json:"expires_at"`
}

// Expired reports whether the record should no longer be honored.
func (r *IdempotencyRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}
