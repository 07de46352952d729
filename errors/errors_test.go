package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestAppError_New_Success(t *testing.T) {
	err := New(ErrCodeResolutionMiss, "not found")
	if err.Code != ErrCodeResolutionMiss {
		t.Errorf("expected code %s, got %s", ErrCodeResolutionMiss, err.Code)
	}
	if err.Message != "not found" {
		t.Errorf("expected message 'not found', got %q", err.Message)
	}
	if err.Retryable {
		t.Error("RESOLUTION_MISS should not be retryable")
	}
}

func TestAppError_New_Retryable(t *testing.T) {
	err := New(ErrCodeTimeout, "timed out")
	if !err.Retryable {
		t.Error("TIMEOUT should be retryable")
	}
}

func TestAppError_WithCause_Chain(t *testing.T) {
	cause := fmt.Errorf("disk gone")
	err := Internal(nil).WithCause(cause)
	if !stderrors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	if !strings.Contains(err.Error(), "disk gone") {
		t.Errorf("expected cause in message, got %q", err.Error())
	}
}

func TestAppError_WithDetails_Merge(t *testing.T) {
	err := InvalidInput("x", "must be a number")
	err.WithDetails(map[string]any{"node": "a"})
	err.WithDetail("index", 0)
	if err.Details["port"] != "x" || err.Details["node"] != "a" || err.Details["index"] != 0 {
		t.Errorf("unexpected details: %v", err.Details)
	}
}

func TestAppError_OperationFailed_InheritsRetryable(t *testing.T) {
	retryable := OperationFailed("http.get", Timeout("http.get"))
	if !retryable.Retryable {
		t.Error("expected retryable when cause is a retryable AppError")
	}
	plain := OperationFailed("math.divide", fmt.Errorf("division by zero"))
	if plain.Retryable {
		t.Error("expected plain causes to be non-retryable")
	}
}

func TestValidationError_Aggregates(t *testing.T) {
	verr := NewValidationError("registry")
	if verr.ErrorOrNil() != nil {
		t.Fatal("expected nil for an empty ValidationError")
	}
	verr.Addf("duplicate module %s@%s", "std.math", "1.0.0")
	verr.Append(fmt.Errorf("graph %q has no output", "g"))

	nested := NewValidationError("graph g")
	nested.Addf("unknown node %q", "b")
	verr.Append(nested)

	if verr.Len() != 3 {
		t.Fatalf("expected 3 problems, got %d", verr.Len())
	}
	msg := verr.ErrorOrNil().Error()
	if !strings.Contains(msg, "registry") || !strings.Contains(msg, "3 problems") {
		t.Errorf("unexpected message %q", msg)
	}
}

func TestCycleError_Message(t *testing.T) {
	err := &CycleError{Graph: "g", Nodes: []string{"a", "b"}, Path: []string{"a", "b", "a"}}
	if got := err.Error(); got != `dependency cycle in graph "g": a -> b -> a` {
		t.Errorf("unexpected message %q", got)
	}
}

func TestCodeOf_Table(t *testing.T) {
	nodeErr := &NodeExecutionError{NodeID: "a", Kind: "block", Cause: &ResolutionMiss{Kind: "block", Module: "m", Name: "b"}}
	schedErr := &SchedulingError{Graph: "g", Cause: nodeErr}

	tests := []struct {
		name string
		err  error
		want ErrorCode
		root ErrorCode
	}{
		{"plain", fmt.Errorf("boom"), ErrCodeInternal, ErrCodeInternal},
		{"app error", Timeout("op"), ErrCodeTimeout, ErrCodeTimeout},
		{"load", &LoadError{Path: "x.hcl", Cause: fmt.Errorf("eof")}, ErrCodeLoadFailed, ErrCodeLoadFailed},
		{"wrapped scheduling", fmt.Errorf("run: %w", schedErr), ErrCodeSchedulingFailed, ErrCodeResolutionMiss},
		{"node", nodeErr, ErrCodeNodeExecutionFailed, ErrCodeResolutionMiss},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CodeOf(tc.err); got != tc.want {
				t.Errorf("expected code %s, got %s", tc.want, got)
			}
			if got := RootCode(tc.err); got != tc.root {
				t.Errorf("expected root code %s, got %s", tc.root, got)
			}
		})
	}
}

func TestToAppError_CarriesDetails(t *testing.T) {
	err := &SchedulingError{
		Graph: "g",
		RunID: "run-1",
		Cause: &NodeExecutionError{NodeID: "y", Kind: "block", Cause: OperationFailed("op", Timeout("op"))},
	}
	appErr := ToAppError(err)
	if appErr.Code != ErrCodeSchedulingFailed {
		t.Errorf("expected SCHEDULING_FAILED, got %s", appErr.Code)
	}
	if appErr.Details["node"] != "y" {
		t.Errorf("expected node=y, got %v", appErr.Details["node"])
	}
	if appErr.Details["run_id"] != "run-1" {
		t.Errorf("expected run_id=run-1, got %v", appErr.Details["run_id"])
	}
	if !appErr.Retryable {
		t.Error("expected retryable from inner operation error")
	}
	if ToAppError(nil) != nil {
		t.Error("ToAppError(nil) should return nil")
	}
}

func TestDescribe_Chain(t *testing.T) {
	err := &SchedulingError{Cause: &CycleError{Path: []string{"a", "a"}}}
	resp := Describe(err)
	if resp.Error.Code != ErrCodeSchedulingFailed {
		t.Errorf("expected SCHEDULING_FAILED, got %s", resp.Error.Code)
	}
	if len(resp.Error.Chain) != 2 || resp.Error.Chain[1] != ErrCodeCycleDetected {
		t.Errorf("unexpected chain %v", resp.Error.Chain)
	}
}

func TestAppError_AsAppError_Success(t *testing.T) {
	wrapped := fmt.Errorf("wrap: %w", Internal(nil))
	got, ok := AsAppError(wrapped)
	if !ok {
		t.Fatal("expected AsAppError to succeed for wrapped AppError")
	}
	if got.Code != ErrCodeInternal {
		t.Errorf("expected INTERNAL_ERROR, got %s", got.Code)
	}
	if _, ok := AsAppError(fmt.Errorf("not an app error")); ok {
		t.Error("expected AsAppError to return false for non-AppError")
	}
	if !IsAppError(wrapped) {
		t.Error("expected IsAppError to be true")
	}
}
