package dlq

import (
	"sort"
	"time"

	"github.com/vietddude/taskguard/internal/core/domain"
)

// DefaultWindow is the aggregation window when callers pass zero.
const DefaultWindow = time.Hour

// maxTopErrors caps the frequent-error list.
const maxTopErrors = 10

// errorMessageLimit truncates messages in the report.
const errorMessageLimit = 100

// ErrorFrequency is one row of the top-errors breakdown.
type ErrorFrequency struct {
	Message string  `json:"message"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// Report is the windowed aggregation of a batch of DLQ entries.
type Report struct {
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`

	TotalMessages int `json:"total_messages"`
	UniqueTasks   int `json:"unique_tasks"`

	AvgRetryCount float64 `json:"avg_retry_count"`
	MaxRetryCount int     `json:"max_retry_count"`

	AvgPayloadSize   float64 `json:"avg_payload_size"`
	TotalPayloadSize int64   `json:"total_payload_size"`

	ByCategory   map[domain.ErrorCategory]int `json:"by_category"`
	BySeverity   map[domain.ErrorSeverity]int `json:"by_severity"`
	ByRetryCount map[int]int                  `json:"by_retry_count"`

	TopErrors []ErrorFrequency `json:"top_errors"`
}

// Aggregate reduces entries within the window ending now. It is a pure
// reduction: the same batch and window always produce the same report.
func Aggregate(entries []*domain.DLQEntry, window time.Duration) *Report {
	return AggregateAt(entries, window, time.Now().UTC())
}

// AggregateAt aggregates entries inside [end-window, end]. Entries outside
// the window are excluded before any statistic is computed.
func AggregateAt(entries []*domain.DLQEntry, window time.Duration, end time.Time) *Report {
	if window <= 0 {
		window = DefaultWindow
	}
	start := end.Add(-window)

	report := &Report{
		WindowStart:  start,
		WindowEnd:    end,
		ByCategory:   make(map[domain.ErrorCategory]int),
		BySeverity:   make(map[domain.ErrorSeverity]int),
		ByRetryCount: make(map[int]int),
	}

	tasks := make(map[string]struct{})
	messages := make(map[string]int)
	var retrySum int

	for _, e := range entries {
		if e.CreatedAt.Before(start) || e.CreatedAt.After(end) {
			continue
		}

		report.TotalMessages++
		tasks[e.TaskID] = struct{}{}

		retrySum += e.RetryCount
		if e.RetryCount > report.MaxRetryCount {
			report.MaxRetryCount = e.RetryCount
		}
		report.ByRetryCount[e.RetryCount]++

		report.TotalPayloadSize += int64(e.Metrics.PayloadSize)

		report.ByCategory[e.Classification.Category]++
		report.BySeverity[e.Classification.Severity]++

		messages[truncate(e.LastError)]++
	}

	if report.TotalMessages > 0 {
		report.UniqueTasks = len(tasks)
		report.AvgRetryCount = float64(retrySum) / float64(report.TotalMessages)
		report.AvgPayloadSize = float64(report.TotalPayloadSize) / float64(report.TotalMessages)
		report.TopErrors = topErrors(messages, report.TotalMessages)
	}

	return report
}

func topErrors(messages map[string]int, total int) []ErrorFrequency {
	out := make([]ErrorFrequency, 0, len(messages))
	for msg, count := range messages {
		out = append(out, ErrorFrequency{
			Message: msg,
			Count:   count,
			Percent: float64(count) / float64(total) * 100,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Message < out[j].Message
	})

	if len(out) > maxTopErrors {
		out = out[:maxTopErrors]
	}
	return out
}

// truncate cuts msg to the message limit in characters, never mid-rune.
func truncate(msg string) string {
	runes := []rune(msg)
	if len(runes) > errorMessageLimit {
		return string(runes[:errorMessageLimit])
	}
	return msg
}
