package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Registry errors
const (
	// ErrCodeLoadFailed indicates a source root or module file could not be read or parsed.
	ErrCodeLoadFailed ErrorCode = "LOAD_FAILED"
	// ErrCodeValidationFailed indicates loaded modules are structurally inconsistent.
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrCodeResolutionMiss indicates no block, graph or macro matched a lookup.
	ErrCodeResolutionMiss ErrorCode = "RESOLUTION_MISS"
)

// Scheduling errors
const (
	// ErrCodeCycleDetected indicates a graph's dependencies are not acyclic.
	ErrCodeCycleDetected ErrorCode = "CYCLE_DETECTED"
	// ErrCodeNodeExecutionFailed indicates a single node failed.
	ErrCodeNodeExecutionFailed ErrorCode = "NODE_EXECUTION_FAILED"
	// ErrCodeSchedulingFailed indicates a graph run failed.
	ErrCodeSchedulingFailed ErrorCode = "SCHEDULING_FAILED"
	// ErrCodeRecursionLimit indicates nested runs exceeded the depth limit or a macro expanded into itself.
	ErrCodeRecursionLimit ErrorCode = "RECURSION_LIMIT"
	// ErrCodeExpansionFailed indicates a macro template could not be expanded.
	ErrCodeExpansionFailed ErrorCode = "EXPANSION_FAILED"
	// ErrCodeCancelled indicates the run context was cancelled.
	ErrCodeCancelled ErrorCode = "CANCELLED"
)

// Operation errors
const (
	// ErrCodeOperationFailed indicates an operation returned an error.
	ErrCodeOperationFailed ErrorCode = "OPERATION_FAILED"
	// ErrCodeInvalidInput indicates a value did not fit the declared port.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeTimeout indicates an operation exceeded its deadline.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
)

// Internal errors
const (
	// ErrCodeInternal indicates an unexpected engine error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeTimeout:  true,
	ErrCodeInternal: false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
