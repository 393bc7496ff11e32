package retry

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/vietddude/taskguard/internal/classify"
	"github.com/vietddude/taskguard/internal/core/domain"
	"github.com/vietddude/taskguard/internal/infra/sink"
)

// VisibilityTransport exposes the transport attribute the coordinator needs
// to translate delays into visibility-timeout extensions.
type VisibilityTransport interface {
	MaxVisibilitySeconds(ctx context.Context) (int, error)
}

// VisibilityConfig controls how computed delays map onto a
// visibility-timeout transport.
type VisibilityConfig struct {
	// DefaultWindow is the transport's default visibility window. Delays
	// are capped to 80% of it before scaling.
	DefaultWindow time.Duration `yaml:"default_window"`
	// SafetyMultiplier scales the capped delay to build in margin before
	// handing it to the transport. Valid range is 1.2-1.5.
	SafetyMultiplier float64 `yaml:"safety_multiplier"`
	// FallbackMaxSeconds is used when the transport cannot report its
	// maximum visibility window.
	FallbackMaxSeconds int `yaml:"fallback_max_seconds"`
}

// DefaultVisibilityConfig mirrors common queue defaults (30s window,
// 12h maximum).
var DefaultVisibilityConfig = VisibilityConfig{
	DefaultWindow:      30 * time.Second,
	SafetyMultiplier:   1.3,
	FallbackMaxSeconds: 43200,
}

// Decision is the outcome of one retry deliberation.
type Decision struct {
	Retry bool
	// Delay is the computed backoff delay; zero when Retry is false.
	Delay time.Duration
	// VisibilitySeconds is the visibility-timeout extension to request on
	// the in-flight message; zero when no visibility transport is attached.
	VisibilitySeconds int
	// DeadLetter instructs the caller to transition the task to Failed
	// then DeadLetter and emit a DLQ entry.
	DeadLetter     bool
	Classification domain.ErrorClassification
}

// Coordinator decides whether and when a failed attempt is retried.
type Coordinator struct {
	strategy  Strategy
	cfg       Config
	vis       VisibilityConfig
	transport VisibilityTransport

	// cachedMaxVis holds the last successfully fetched transport maximum.
	// Attribute lookups degrade to this value so the retry path stays
	// available when the transport is unreachable.
	mu           sync.Mutex
	cachedMaxVis int

	sink sink.Sink
	log  *slog.Logger
}

// NewCoordinator resolves the configured strategy against the registry and
// fails fast with ErrUnknownStrategy if it is absent. transport may be nil
// when the caller does not use visibility-timeout semantics.
func NewCoordinator(
	registry *Registry,
	cfg Config,
	vis VisibilityConfig,
	transport VisibilityTransport,
	s sink.Sink,
	log *slog.Logger,
) (*Coordinator, error) {
	strategy, err := registry.Lookup(cfg.Strategy)
	if err != nil {
		return nil, err
	}

	if vis.SafetyMultiplier < 1.2 || vis.SafetyMultiplier > 1.5 {
		vis.SafetyMultiplier = DefaultVisibilityConfig.SafetyMultiplier
	}
	if vis.DefaultWindow <= 0 {
		vis.DefaultWindow = DefaultVisibilityConfig.DefaultWindow
	}
	if vis.FallbackMaxSeconds <= 0 {
		vis.FallbackMaxSeconds = DefaultVisibilityConfig.FallbackMaxSeconds
	}
	if s == nil {
		s = sink.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}

	return &Coordinator{
		strategy:     strategy,
		cfg:          cfg,
		vis:          vis,
		transport:    transport,
		cachedMaxVis: vis.FallbackMaxSeconds,
		sink:         s,
		log:          log,
	}, nil
}

// Decide evaluates one failed attempt. attemptIndex is 0-based, derived
// from the transport delivery count minus one.
func (c *Coordinator) Decide(ctx context.Context, attemptIndex int, errMsg string) Decision {
	classification := classify.Classify(errMsg, attemptIndex+1)

	if !classification.Retryable {
		c.sink.Emit("retry.refused", 1, "count", map[string]string{
			"reason":   "non_retryable",
			"category": string(classification.Category),
		})
		return Decision{DeadLetter: true, Classification: classification}
	}

	if attemptIndex >= c.cfg.MaxRetries {
		c.sink.Emit("retry.refused", 1, "count", map[string]string{
			"reason":   "exhausted",
			"category": string(classification.Category),
		})
		return Decision{DeadLetter: true, Classification: classification}
	}

	delay := c.strategy.CalculateDelay(attemptIndex+1, c.cfg)

	decision := Decision{
		Retry:          true,
		Delay:          delay,
		Classification: classification,
	}
	if c.transport != nil {
		decision.VisibilitySeconds = c.visibilityTimeout(ctx, delay)
	}

	c.sink.Emit("retry.granted", float64(delay.Milliseconds()), "ms", map[string]string{
		"category": string(classification.Category),
	})
	return decision
}

// visibilityTimeout converts a backoff delay into a visibility-timeout
// value the transport can represent: cap to 80% of the default window,
// scale by the safety multiplier, then clamp to [1, transport max].
func (c *Coordinator) visibilityTimeout(ctx context.Context, delay time.Duration) int {
	capped := delay
	if limit := c.vis.DefaultWindow * 8 / 10; capped > limit {
		capped = limit
	}
	scaled := time.Duration(float64(capped) * c.vis.SafetyMultiplier)

	seconds := int(math.Ceil(scaled.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	if max := c.maxVisibilitySeconds(ctx); seconds > max {
		seconds = max
	}
	return seconds
}

// maxVisibilitySeconds queries the transport, degrading to the cached value
// on failure; availability of the retry path wins over timing precision.
func (c *Coordinator) maxVisibilitySeconds(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	max, err := c.transport.MaxVisibilitySeconds(ctx)
	if err != nil || max <= 0 {
		if err != nil {
			c.log.Debug("transport attribute lookup failed, using cached maximum",
				"cached", c.cachedMaxVis, "error", err)
		}
		return c.cachedMaxVis
	}
	c.cachedMaxVis = max
	return max
}
