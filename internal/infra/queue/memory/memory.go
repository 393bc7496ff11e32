// Package memory implements the transport interface in-process, with real
// visibility-timeout and dead-letter-redirect semantics, so the pipeline
// runs end-to-end without cloud wiring.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vietddude/taskguard/internal/infra/queue"
)

// Config holds queue behavior settings.
type Config struct {
	// DefaultVisibility hides a received message for this long.
	DefaultVisibility time.Duration `yaml:"default_visibility"`
	// MaxVisibilitySeconds is the largest visibility value accepted.
	MaxVisibilitySeconds int `yaml:"max_visibility_seconds"`
	// MaxReceiveCount dead-letters a message once its delivery count
	// would exceed this value.
	MaxReceiveCount int `yaml:"max_receive_count"`
}

// DefaultConfig mirrors common managed-queue defaults.
var DefaultConfig = Config{
	DefaultVisibility:    30 * time.Second,
	MaxVisibilitySeconds: 43200,
	MaxReceiveCount:      5,
}

type item struct {
	msg       queue.Message
	visibleAt time.Time
	inFlight  bool
}

// Queue is an in-memory visibility-timeout queue.
type Queue struct {
	cfg   Config
	mu    sync.Mutex
	items []*item
	dead  []*queue.Message
}

func New(cfg Config) *Queue {
	if cfg.DefaultVisibility <= 0 {
		cfg.DefaultVisibility = DefaultConfig.DefaultVisibility
	}
	if cfg.MaxVisibilitySeconds <= 0 {
		cfg.MaxVisibilitySeconds = DefaultConfig.MaxVisibilitySeconds
	}
	if cfg.MaxReceiveCount <= 0 {
		cfg.MaxReceiveCount = DefaultConfig.MaxReceiveCount
	}
	return &Queue{cfg: cfg}
}

func (q *Queue) Send(ctx context.Context, body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, &item{
		msg: queue.Message{
			ID:         uuid.New().String(),
			Body:       body,
			EnqueuedAt: time.Now().UTC(),
		},
	})
	return nil
}

// Receive returns the oldest visible message. A message whose delivery
// count would exceed the receive limit is redirected to the dead-letter
// drain instead of being delivered again.
func (q *Queue) Receive(ctx context.Context) (*queue.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now().UTC()
	for i := 0; i < len(q.items); i++ {
		it := q.items[i]
		if now.Before(it.visibleAt) {
			continue
		}

		if it.msg.DeliveryCount >= q.cfg.MaxReceiveCount {
			dead := it.msg
			q.dead = append(q.dead, &dead)
			q.items = append(q.items[:i], q.items[i+1:]...)
			i--
			continue
		}

		it.msg.DeliveryCount++
		if it.msg.FirstReceivedAt.IsZero() {
			it.msg.FirstReceivedAt = now
		}
		it.msg.Handle = uuid.New().String()
		it.inFlight = true
		it.visibleAt = now.Add(q.cfg.DefaultVisibility)

		out := it.msg
		return &out, nil
	}
	return nil, nil
}

func (q *Queue) ExtendVisibility(ctx context.Context, handle string, seconds int) error {
	if seconds > q.cfg.MaxVisibilitySeconds {
		seconds = q.cfg.MaxVisibilitySeconds
	}
	if seconds < 1 {
		seconds = 1
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range q.items {
		if it.inFlight && it.msg.Handle == handle {
			it.visibleAt = time.Now().UTC().Add(time.Duration(seconds) * time.Second)
			return nil
		}
	}
	return nil
}

func (q *Queue) Ack(ctx context.Context, handle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, it := range q.items {
		if it.inFlight && it.msg.Handle == handle {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (q *Queue) MaxVisibilitySeconds(ctx context.Context) (int, error) {
	return q.cfg.MaxVisibilitySeconds, nil
}

// Depth returns the number of queued (not dead-lettered) messages.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// DrainDeadLetters returns and clears the dead-lettered messages.
func (q *Queue) DrainDeadLetters() []*queue.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.dead
	q.dead = nil
	return out
}
