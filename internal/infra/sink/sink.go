// Package sink defines the fire-and-forget metrics/log sink consumed by the
// fault-tolerance core. Implementations must never let an emission failure
// propagate into the caller's control flow.
package sink

// Sink receives telemetry emissions.
type Sink interface {
	Emit(name string, value float64, unit string, tags map[string]string)
}

// Nop discards every emission.
type Nop struct{}

func (Nop) Emit(name string, value float64, unit string, tags map[string]string) {}

// Multi fans one emission out to several sinks.
type Multi []Sink

func (m Multi) Emit(name string, value float64, unit string, tags map[string]string) {
	for _, s := range m {
		s.Emit(name, value, unit, tags)
	}
}
