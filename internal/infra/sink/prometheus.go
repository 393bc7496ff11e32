package sink

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus maps emissions onto a pair of labeled collectors exposed on
// the /metrics endpoint.
type Prometheus struct {
	counts *prometheus.CounterVec
	values *prometheus.HistogramVec
}

// NewPrometheus registers the sink collectors on the given registerer,
// defaulting to the process-wide one served on /metrics (promauto.With
// panics on duplicate registration, so construct once per registry).
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Prometheus{
		counts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskguard_emissions_total",
				Help: "Total sink emissions by name",
			},
			[]string{"name", "unit"},
		),
		values: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskguard_emission_value",
				Help:    "Observed emission values by name",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			},
			[]string{"name", "unit"},
		),
	}
}

// Emit records the emission. Failures are swallowed: telemetry must never
// disturb the core's control flow.
func (p *Prometheus) Emit(name string, value float64, unit string, tags map[string]string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("prometheus sink emission dropped", "name", name, "panic", r)
		}
	}()

	p.counts.WithLabelValues(name, unit).Inc()
	p.values.WithLabelValues(name, unit).Observe(value)
}
