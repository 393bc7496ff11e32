package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TasksSubmitted tracks submissions by outcome
	TasksSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskguard_tasks_submitted_total",
			Help: "Total task submissions by outcome",
		},
		[]string{"outcome"},
	)

	// AttemptsTotal tracks attempt outcomes
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskguard_attempts_total",
			Help: "Total task attempts by outcome",
		},
		[]string{"outcome"},
	)

	// RetryDelay tracks computed backoff delays
	RetryDelay = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taskguard_retry_delay_seconds",
			Help:    "Computed backoff delay before a retry",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	// DLQEntries tracks dead-lettered tasks by category
	DLQEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskguard_dlq_entries_total",
			Help: "Total dead-lettered tasks by error category",
		},
		[]string{"category", "severity"},
	)

	// VisibilityExtensions tracks visibility-timeout extensions issued
	VisibilityExtensions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taskguard_visibility_extensions_total",
			Help: "Total visibility-timeout extensions issued",
		},
	)

	// QueueDepth tracks the current transport backlog
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskguard_queue_depth",
			Help: "Current number of queued messages",
		},
	)
)
