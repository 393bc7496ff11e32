package classify

import (
	"strings"

	"github.com/vietddude/taskguard/internal/core/domain"
)

// rule maps message keywords to a classification. Rules are evaluated in
// order; the first match wins, so keyword precedence is encoded by position
// (e.g. "internal timeout" classifies as NETWORK, not SYSTEM).
type rule struct {
	keywords  []string
	category  domain.ErrorCategory
	severity  func(attempts int) domain.ErrorSeverity
	retryable func(attempts int) bool
	action    string
}

var rules = []rule{
	{
		keywords:  []string{"validation", "invalid", "malformed"},
		category:  domain.CategoryValidation,
		severity:  fixed(domain.SeverityMedium),
		retryable: never,
		action:    "review input data",
	},
	{
		keywords:  []string{"network", "connection", "timeout"},
		category:  domain.CategoryNetwork,
		severity:  highAfter(2),
		retryable: always,
		action:    "check connectivity and retry",
	},
	{
		keywords:  []string{"throttl", "rate", "limit"},
		category:  domain.CategoryRateLimit,
		severity:  fixed(domain.SeverityMedium),
		retryable: always,
		action:    "reduce request rate",
	},
	{
		keywords:  []string{"system", "internal", "server"},
		category:  domain.CategorySystem,
		severity:  fixed(domain.SeverityHigh),
		retryable: always,
		action:    "investigate service health",
	},
}

var unknownRule = rule{
	category: domain.CategoryUnknown,
	severity: highAfter(1),
	retryable: func(attempts int) bool {
		return attempts < 3
	},
	action: "inspect logs for details",
}

// Classify maps a failure message and attempt count to a classification.
// Matching is case-insensitive and deterministic: the same inputs always
// yield the same result.
func Classify(message string, attempts int) domain.ErrorClassification {
	lower := strings.ToLower(message)

	matched := unknownRule
	for _, r := range rules {
		if r.matches(lower) {
			matched = r
			break
		}
	}

	return domain.ErrorClassification{
		Category:        matched.category,
		Severity:        matched.severity(attempts),
		Retryable:       matched.retryable(attempts),
		SuggestedAction: matched.action,
	}
}

func (r rule) matches(lower string) bool {
	for _, kw := range r.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func fixed(s domain.ErrorSeverity) func(int) domain.ErrorSeverity {
	return func(int) domain.ErrorSeverity { return s }
}

func highAfter(n int) func(int) domain.ErrorSeverity {
	return func(attempts int) domain.ErrorSeverity {
		if attempts > n {
			return domain.SeverityHigh
		}
		return domain.SeverityMedium
	}
}

func always(int) bool { return true }
func never(int) bool  { return false }
