package errors

import (
	stderrors "errors"
)

// ErrorResponse is the JSON structure printed for a failed run.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody contains the error details of an ErrorResponse.
type ErrorBody struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Retryable bool                   `json:"retryable"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Chain     []ErrorCode            `json:"chain,omitempty"`
}

// ToResponse converts an AppError to an ErrorResponse for JSON serialization.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:      e.Code,
			Message:   e.Message,
			Retryable: e.Retryable,
			Details:   e.Details,
		},
	}
}

// IsAppError checks if an error is an AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

type coder interface {
	Code() ErrorCode
}

func codeOf(err error) (ErrorCode, bool) {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code, true
	}
	if c, ok := err.(coder); ok {
		return c.Code(), true
	}
	return "", false
}

// CodeOf returns the code of the outermost coded error in err's chain,
// or ErrCodeInternal when none is coded.
func CodeOf(err error) ErrorCode {
	for e := err; e != nil; e = stderrors.Unwrap(e) {
		if code, ok := codeOf(e); ok {
			return code
		}
	}
	return ErrCodeInternal
}

// Chain returns the codes of every coded error in err's chain, outermost first.
func Chain(err error) []ErrorCode {
	var codes []ErrorCode
	for e := err; e != nil; e = stderrors.Unwrap(e) {
		if code, ok := codeOf(e); ok {
			codes = append(codes, code)
		}
	}
	return codes
}

// RootCode returns the innermost code in err's chain, which names the
// original failure beneath any wrapping.
func RootCode(err error) ErrorCode {
	codes := Chain(err)
	if len(codes) == 0 {
		return ErrCodeInternal
	}
	return codes[len(codes)-1]
}

// ToAppError converts any error to an AppError envelope. AppErrors pass
// through unchanged; taxonomy errors keep their code and gain details.
func ToAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}

	appErr := New(CodeOf(err), err.Error()).WithCause(err)
	var nodeErr *NodeExecutionError
	if stderrors.As(err, &nodeErr) {
		appErr.WithDetail("node", nodeErr.NodeID)
	}
	var cycleErr *CycleError
	if stderrors.As(err, &cycleErr) {
		appErr.WithDetail("cycle", cycleErr.Path)
	}
	var miss *ResolutionMiss
	if stderrors.As(err, &miss) {
		appErr.WithDetails(map[string]any{
			"module":      miss.Module,
			"name":        miss.Name,
			"requirement": miss.Requirement,
		})
	}
	var schedErr *SchedulingError
	if stderrors.As(err, &schedErr) && schedErr.RunID != "" {
		appErr.WithDetail("run_id", schedErr.RunID)
	}
	if inner, ok := AsAppError(err); ok {
		appErr.Retryable = inner.Retryable
	}
	return appErr
}

// Describe renders err as an ErrorResponse including its code chain.
func Describe(err error) ErrorResponse {
	resp := ToAppError(err).ToResponse()
	resp.Error.Chain = Chain(err)
	return resp
}
