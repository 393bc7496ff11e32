package retry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// StrategyExponential is the only built-in strategy.
const StrategyExponential = "exponential"

// ErrUnknownStrategy is returned when a config names a strategy that was
// never registered. This is a configuration error and should fail fast.
var ErrUnknownStrategy = errors.New("unknown retry strategy")

// Registry maps strategy names to implementations. It is an explicit value
// passed to the coordinator at construction time, not a package-level map,
// so callers control exactly which strategies exist.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates a registry with the exponential strategy pre-registered.
func NewRegistry() *Registry {
	r := &Registry{strategies: make(map[string]Strategy)}
	r.Register(StrategyExponential, ExponentialBackoff{})
	return r
}

// Register adds or replaces a strategy under the given name.
func (r *Registry) Register(name string, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[name] = s
}

// Lookup returns the strategy registered under name.
func (r *Registry) Lookup(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return s, nil
}

// Names returns the registered strategy names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
