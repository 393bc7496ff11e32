package retry

import "github.com/vietddude/taskguard/internal/core/domain"

// SelectStrategy picks a strategy name for a failure category. Every
// category currently resolves to the exponential default; the seam exists
// so category-specific strategies can be registered and selected later
// without touching callers.
func SelectStrategy(category domain.ErrorCategory) string {
	return StrategyExponential
}
