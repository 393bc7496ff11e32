package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/taskguard/internal/infra/storage"
	"github.com/vietddude/taskguard/internal/metrics"
)

type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Health(ctx context.Context) error
}

// DepthReporter reports the transport backlog.
type DepthReporter interface {
	Depth() int
}

// Report is one health snapshot.
type Report struct {
	Status       Status `json:"status"`
	StoreHealthy bool   `json:"store_healthy"`
	QueueDepth   int    `json:"queue_depth"`
	DLQCount     int    `json:"dlq_count"`
	CheckedAt    int64  `json:"checked_at"`
}

// Monitor aggregates health status from the store, transport, and DLQ.
type Monitor struct {
	store      Pinger // may be nil for the in-memory backend
	transport  DepthReporter
	dlqRepo    storage.DLQRepository
	lastCheck  time.Time
	lastReport Report
	mu         sync.Mutex
}

func NewMonitor(store Pinger, transport DepthReporter, dlqRepo storage.DLQRepository) *Monitor {
	return &Monitor{store: store, transport: transport, dlqRepo: dlqRepo}
}

// Check performs a health check. Results are cached briefly to keep the
// endpoint cheap under scraping.
func (m *Monitor) Check(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCheck) < 10*time.Second && !m.lastCheck.IsZero() {
		return m.lastReport
	}

	report := Report{
		Status:       StatusHealthy,
		StoreHealthy: true,
		CheckedAt:    time.Now().Unix(),
	}

	if m.store != nil {
		if err := m.store.Health(ctx); err != nil {
			report.StoreHealthy = false
			report.Status = StatusCritical
		}
	}

	if m.transport != nil {
		report.QueueDepth = m.transport.Depth()
		metrics.QueueDepth.Set(float64(report.QueueDepth))
	}

	if m.dlqRepo != nil {
		count, err := m.dlqRepo.Count(ctx)
		if err != nil {
			if report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
		} else {
			report.DLQCount = count
		}
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}
