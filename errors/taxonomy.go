package errors

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// LoadError reports an I/O or parse failure while reading module sources.
// It is fatal to registry construction.
type LoadError struct {
	Root  string
	Path  string
	Cause error
}

func (e *LoadError) Error() string {
	switch {
	case e.Path != "":
		return fmt.Sprintf("load %s: %v", e.Path, e.Cause)
	case e.Root != "":
		return fmt.Sprintf("load root %s: %v", e.Root, e.Cause)
	default:
		return fmt.Sprintf("load: %v", e.Cause)
	}
}

func (e *LoadError) Unwrap() error   { return e.Cause }
func (e *LoadError) Code() ErrorCode { return ErrCodeLoadFailed }

// ValidationError collects every structural problem found in one pass.
// Problems are aggregated, never reported one at a time.
type ValidationError struct {
	Subject string
	errs    *multierror.Error
}

// NewValidationError creates an empty ValidationError for subject.
func NewValidationError(subject string) *ValidationError {
	return &ValidationError{
		Subject: subject,
		errs:    &multierror.Error{ErrorFormat: listFormat},
	}
}

// Addf records a formatted problem.
func (e *ValidationError) Addf(format string, args ...any) {
	e.errs = multierror.Append(e.errs, fmt.Errorf(format, args...))
}

// Append records problems from err. A nested ValidationError is flattened.
func (e *ValidationError) Append(err error) {
	if err == nil {
		return
	}
	if nested, ok := err.(*ValidationError); ok {
		e.errs = multierror.Append(e.errs, nested.Problems()...)
		return
	}
	e.errs = multierror.Append(e.errs, err)
}

// Problems returns the recorded problems in insertion order.
func (e *ValidationError) Problems() []error {
	if e.errs == nil {
		return nil
	}
	return e.errs.Errors
}

// Len returns the number of recorded problems.
func (e *ValidationError) Len() int { return len(e.Problems()) }

// ErrorOrNil returns e when it holds problems and an untyped nil otherwise.
func (e *ValidationError) ErrorOrNil() error {
	if e.Len() == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	if e.Len() == 0 {
		return "validation failed"
	}
	if e.Subject == "" {
		return "validation failed: " + e.errs.Error()
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Subject, e.errs.Error())
}

func (e *ValidationError) Unwrap() error   { return e.errs.ErrorOrNil() }
func (e *ValidationError) Code() ErrorCode { return ErrCodeValidationFailed }

func listFormat(errs []error) string {
	if len(errs) == 1 {
		return errs[0].Error()
	}
	parts := make([]string, len(errs))
	for i, err := range errs {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("%d problems: %s", len(errs), strings.Join(parts, "; "))
}

// CycleError reports that a graph's dependencies are not acyclic.
// Nodes lists every node left unsorted; Path is one concrete cycle.
type CycleError struct {
	Graph string
	Nodes []string
	Path  []string
}

func (e *CycleError) Error() string {
	var b strings.Builder
	b.WriteString("dependency cycle")
	if e.Graph != "" {
		fmt.Fprintf(&b, " in graph %q", e.Graph)
	}
	if len(e.Path) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Path, " -> "))
	} else if len(e.Nodes) > 0 {
		fmt.Fprintf(&b, " among %v", e.Nodes)
	}
	return b.String()
}

func (e *CycleError) Code() ErrorCode { return ErrCodeCycleDetected }

// ResolutionMiss reports that no item matched a (module, name, requirement)
// lookup. Registry lookups return it only from the Resolve* helpers.
type ResolutionMiss struct {
	Kind        string
	Module      string
	Name        string
	Requirement string
}

func (e *ResolutionMiss) Error() string {
	if e.Requirement == "" {
		return fmt.Sprintf("no %s %s/%s found", e.Kind, e.Module, e.Name)
	}
	return fmt.Sprintf("no %s %s/%s matching %q", e.Kind, e.Module, e.Name, e.Requirement)
}

func (e *ResolutionMiss) Code() ErrorCode { return ErrCodeResolutionMiss }

// NodeExecutionError tags a failure with the node that produced it.
type NodeExecutionError struct {
	NodeID string
	Kind   string
	Cause  error
}

func (e *NodeExecutionError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("node %q: %v", e.NodeID, e.Cause)
	}
	return fmt.Sprintf("node %q (%s): %v", e.NodeID, e.Kind, e.Cause)
}

func (e *NodeExecutionError) Unwrap() error   { return e.Cause }
func (e *NodeExecutionError) Code() ErrorCode { return ErrCodeNodeExecutionFailed }

// SchedulingError is returned by a failed graph run. Its cause is a
// CycleError, a ValidationError, a NodeExecutionError or a context error.
type SchedulingError struct {
	Graph string
	RunID string
	Cause error
}

func (e *SchedulingError) Error() string {
	if e.Graph == "" {
		return fmt.Sprintf("schedule: %v", e.Cause)
	}
	return fmt.Sprintf("schedule %q: %v", e.Graph, e.Cause)
}

func (e *SchedulingError) Unwrap() error   { return e.Cause }
func (e *SchedulingError) Code() ErrorCode { return ErrCodeSchedulingFailed }

// Recursion reasons.
const (
	RecursionDepth = "depth"
	RecursionMacro = "macro"
)

// RecursionError reports unbounded nesting: either the depth limit was
// exceeded or a macro expanded into itself.
type RecursionError struct {
	Reason string
	Limit  int
	Chain  []string
}

func (e *RecursionError) Error() string {
	if e.Reason == RecursionMacro {
		return fmt.Sprintf("macro expands into itself: %s", strings.Join(e.Chain, " -> "))
	}
	return fmt.Sprintf("nesting depth limit %d exceeded: %s", e.Limit, strings.Join(e.Chain, " -> "))
}

func (e *RecursionError) Code() ErrorCode { return ErrCodeRecursionLimit }
