package errors

import (
	"fmt"
)

// Error is the structured error type for vana.
// It provides rich context for error handling, logging, and user presentation.
type Error struct {
	// Code is the unique error code (e.g., "ERR_301_BACKEND_CALL").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Backend, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates whether the breaker may recover the operation later.
	Retryable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with *Error sentinels.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new Error with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an Error from an existing error.
// The error's message becomes the Error message.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinel errors for the retrieval pipeline's failure taxonomy.
// Matching is by code, so wrapped instances created with the same code
// satisfy errors.Is against these.
var (
	// ErrCircuitOpen is returned when a breaker rejects a call without
	// invoking the backend.
	ErrCircuitOpen = New(ErrCodeCircuitOpen, "circuit breaker is open", nil)

	// ErrAllBackendsUnavailable is returned when every configured backend
	// failed or was circuit-open for one search.
	ErrAllBackendsUnavailable = New(ErrCodeAllBackendsDown, "all backends unavailable", nil)

	// ErrQueryEmpty is returned for blank query text.
	ErrQueryEmpty = New(ErrCodeQueryEmpty, "query text is empty", nil)
)

// BackendError creates a backend call error. These count toward the
// owning circuit breaker's failure threshold.
func BackendError(backend string, cause error) *Error {
	e := New(ErrCodeBackendCall, fmt.Sprintf("%s backend call failed", backend), cause)
	return e.WithDetail("backend", backend)
}

// TimeoutError creates a backend timeout error. Counted toward the
// breaker threshold identically to call errors unless configured otherwise.
func TimeoutError(backend string, cause error) *Error {
	e := New(ErrCodeBackendTimeout, fmt.Sprintf("%s backend call timed out", backend), cause)
	return e.WithDetail("backend", backend)
}

// CircuitOpenError creates a fail-fast error for an open circuit.
func CircuitOpenError(backend string) *Error {
	e := New(ErrCodeCircuitOpen, fmt.Sprintf("%s backend circuit is open", backend), nil)
	return e.WithDetail("backend", backend)
}

// AllBackendsError creates the terminal per-search outage error.
func AllBackendsError(cause error) *Error {
	return New(ErrCodeAllBackendsDown, "all backends unavailable", cause)
}

// ConfigError creates a configuration-related error. Configuration is
// validated eagerly at construction, never at call time.
func ConfigError(message string, cause error) *Error {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates an input validation error.
func ValidationError(message string, cause error) *Error {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *Error {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ve, ok := err.(*Error); ok {
		return ve.Retryable
	}
	return false
}

// GetCode extracts the error code from an Error.
// Returns empty string if not an Error.
func GetCode(err error) string {
	if ve, ok := err.(*Error); ok {
		return ve.Code
	}
	return ""
}

// GetCategory extracts the category from an Error.
// Returns empty string if not an Error.
func GetCategory(err error) Category {
	if ve, ok := err.(*Error); ok {
		return ve.Category
	}
	return ""
}
