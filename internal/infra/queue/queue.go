// Package queue defines the durable-transport interface the pipeline
// consumes: visibility-timeout semantics with an automatic dead-letter
// redirect after a configured number of deliveries.
package queue

import (
	"context"
	"time"
)

// Message is one delivery of a queued task reference.
type Message struct {
	// ID identifies the message across deliveries.
	ID string
	// Handle identifies this delivery; visibility extension and ack
	// operate on the handle, not the id.
	Handle string
	Body   []byte
	// DeliveryCount is 1 on first delivery and increments on each
	// redelivery. The attempt index is DeliveryCount-1.
	DeliveryCount   int
	EnqueuedAt      time.Time
	FirstReceivedAt time.Time
}

// Transport is the queue interface the core consumes.
type Transport interface {
	// Send enqueues a message body.
	Send(ctx context.Context, body []byte) error

	// Receive returns the next visible message, hiding it for the default
	// visibility window, or (nil, nil) when the queue is empty.
	Receive(ctx context.Context) (*Message, error)

	// ExtendVisibility hides the in-flight delivery for the given number
	// of seconds from now.
	ExtendVisibility(ctx context.Context, handle string, seconds int) error

	// Ack removes the message.
	Ack(ctx context.Context, handle string) error

	// MaxVisibilitySeconds reports the largest visibility value the
	// transport can represent. Best-effort: callers keep a fallback.
	MaxVisibilitySeconds(ctx context.Context) (int, error)
}
