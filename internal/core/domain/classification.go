package domain

type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "VALIDATION"
	CategoryNetwork    ErrorCategory = "NETWORK"
	CategoryRateLimit  ErrorCategory = "RATE_LIMIT"
	CategorySystem     ErrorCategory = "SYSTEM"
	CategoryUnknown    ErrorCategory = "UNKNOWN"
)

type ErrorSeverity string

const (
	SeverityMedium ErrorSeverity = "MEDIUM"
	SeverityHigh   ErrorSeverity = "HIGH"
)

// ErrorClassification is the result of classifying a failure message.
type ErrorClassification struct {
	Category        ErrorCategory `json:"category"`
	Severity        ErrorSeverity `json:"severity"`
	Retryable       bool          `json:"retryable"`
	SuggestedAction string        `json:"suggested_action"`
}
