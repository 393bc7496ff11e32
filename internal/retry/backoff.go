package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// Config defines retry behavior for one task type.
type Config struct {
	MaxRetries    int           `yaml:"max_retries"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	Multiplier    float64       `yaml:"multiplier"`
	JitterEnabled bool          `yaml:"jitter_enabled"`
	JitterMax     time.Duration `yaml:"jitter_max"`
	Strategy      string        `yaml:"strategy"`
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	MaxRetries:    3,
	BaseDelay:     1 * time.Second,
	MaxDelay:      30 * time.Second,
	Multiplier:    2.0,
	JitterEnabled: true,
	JitterMax:     500 * time.Millisecond,
	Strategy:      StrategyExponential,
}

// Strategy computes the delay before a given attempt.
type Strategy interface {
	// CalculateDelay returns the delay for attempt (0-indexed),
	// always within [0, cfg.MaxDelay].
	CalculateDelay(attempt int, cfg Config) time.Duration
}

// ExponentialBackoff implements delay = min(base * multiplier^attempt, max),
// with optional uniform jitter in [0, JitterMax] re-clamped to max.
type ExponentialBackoff struct{}

func (ExponentialBackoff) CalculateDelay(attempt int, cfg Config) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	d := time.Duration(delay)
	if cfg.JitterEnabled && cfg.JitterMax > 0 {
		d += rand.N(cfg.JitterMax)
		if d > cfg.MaxDelay {
			d = cfg.MaxDelay
		}
	}
	return d
}
