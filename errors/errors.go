package errors

import (
	"fmt"
)

// AppError is the uniform error envelope used for logging and reporting.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the failed work can be retried as-is.
	Retryable bool `json:"retryable"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Retryable: IsRetryableCode(code),
	}
}

// --- Common Error Constructors ---

// OperationFailed wraps an error returned by an operation implementation.
// The result is retryable when the cause itself is a retryable AppError.
func OperationFailed(operation string, cause error) *AppError {
	retryable := false
	if appErr, ok := AsAppError(cause); ok {
		retryable = appErr.Retryable
	}
	return &AppError{
		Code: ErrCodeOperationFailed, Message: fmt.Sprintf("operation %s failed", operation),
		Retryable: retryable, Cause: cause,
		Details: map[string]any{"operation": operation},
	}
}

// InvalidInput creates a new AppError for a value that does not fit a port.
func InvalidInput(port, reason string) *AppError {
	details := make(map[string]any)
	if port != "" {
		details["port"] = port
	}
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("invalid input: %s", reason),
		Details: details,
	}
}

// Timeout creates a new AppError for an operation that exceeded its deadline.
func Timeout(operation string) *AppError {
	return &AppError{
		Code: ErrCodeTimeout, Message: fmt.Sprintf("operation %s timed out", operation),
		Retryable: true,
		Details:   map[string]any{"operation": operation},
	}
}

// Cancelled creates a new AppError for a run stopped by its context.
func Cancelled(cause error) *AppError {
	return &AppError{
		Code: ErrCodeCancelled, Message: "run cancelled", Cause: cause,
	}
}

// ExpansionFailed creates a new AppError for a macro template that could not be expanded.
func ExpansionFailed(macro, reason string) *AppError {
	return &AppError{
		Code: ErrCodeExpansionFailed, Message: fmt.Sprintf("macro %s: %s", macro, reason),
		Details: map[string]any{"macro": macro},
	}
}

// Internal creates a new AppError for an unexpected engine error.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "an unexpected engine error occurred",
		Cause: cause,
	}
}
