// Package errors defines the error taxonomy of the flowkit engine.
// Each failure class (load, validation, cycle, resolution miss, node
// execution, scheduling, recursion) has its own type carrying a
// machine-readable ErrorCode, and every error can be rendered as an
// AppError envelope for logs and CLI output.
package errors
