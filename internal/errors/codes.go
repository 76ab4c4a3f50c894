// Package errors provides structured error handling for vana.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (index, disk)
//   - 3XX: Backend errors (network, circuit, outage)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates index and disk errors.
	CategoryStorage Category = "STORAGE"
	// CategoryBackend indicates backend call and availability errors.
	CategoryBackend Category = "BACKEND"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"
	ErrCodeWeightsInvalid = "ERR_103_WEIGHTS_INVALID"

	// Storage errors (200-299)
	ErrCodeStoreLocked  = "ERR_201_STORE_LOCKED"
	ErrCodeStoreCorrupt = "ERR_202_STORE_CORRUPT"

	// Backend errors (300-399)
	ErrCodeBackendCall        = "ERR_301_BACKEND_CALL"
	ErrCodeCircuitOpen        = "ERR_302_CIRCUIT_OPEN"
	ErrCodeAllBackendsDown    = "ERR_303_ALL_BACKENDS_DOWN"
	ErrCodeBackendTimeout     = "ERR_304_BACKEND_TIMEOUT"
	ErrCodeBackendUnavailable = "ERR_305_BACKEND_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty   = "ERR_402_QUERY_EMPTY"

	// Internal errors (500-599)
	ErrCodeInternal = "ERR_501_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryBackend
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeConfigInvalid, ErrCodeWeightsInvalid, ErrCodeStoreCorrupt:
		return SeverityFatal
	case ErrCodeBackendCall, ErrCodeBackendTimeout, ErrCodeCircuitOpen:
		// A single backend failing degrades results but does not fail the search.
		return SeverityWarning
	default:
		return SeverityError
	}
}

// isRetryableCode reports whether an error code represents a failure the
// circuit breaker may recover from via its half-open probe.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeBackendCall, ErrCodeBackendTimeout, ErrCodeBackendUnavailable:
		return true
	default:
		return false
	}
}
