package validation

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/util"
)

// Validator collects validation problems for one subject.
type Validator struct {
	subject string
	errors  []FieldError
}

// FieldError represents a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// New creates a new Validator for subject (e.g. "std.math@1.0.0").
func New(subject string) *Validator {
	return &Validator{
		subject: subject,
		errors:  make([]FieldError, 0),
	}
}

// AddError adds a field error.
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, FieldError{
		Field:   field,
		Message: message,
	})
}

// AddErrorf adds a formatted field error.
func (v *Validator) AddErrorf(field, format string, args ...any) {
	v.AddError(field, fmt.Sprintf(format, args...))
}

// Merge records every problem of err under field. Nested ValidationErrors
// are flattened problem by problem.
func (v *Validator) Merge(field string, err error) *Validator {
	if err == nil {
		return v
	}
	if verr, ok := err.(*errors.ValidationError); ok {
		for _, p := range verr.Problems() {
			v.AddError(field, p.Error())
		}
		return v
	}
	v.AddError(field, err.Error())
	return v
}

// HasErrors returns true if there are validation errors.
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors.
func (v *Validator) Errors() []FieldError {
	return v.errors
}

// Validate returns an *errors.ValidationError if problems were recorded
// and nil otherwise.
func (v *Validator) Validate() error {
	if !v.HasErrors() {
		return nil
	}
	verr := errors.NewValidationError(v.subject)
	for _, e := range v.errors {
		verr.Append(e)
	}
	return verr
}

// Required checks if a string is non-empty.
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "is required")
	}
	return v
}

// RequiredUUID checks if a string is a valid non-nil UUID.
func (v *Validator) RequiredUUID(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "is required")
		return v
	}

	parsed, err := uuid.Parse(value)
	if err != nil {
		v.AddError(field, "must be a valid UUID")
		return v
	}

	if parsed == uuid.Nil {
		v.AddError(field, "must not be empty")
	}

	return v
}

// ModuleName checks a dotted module or block name.
func (v *Validator) ModuleName(field, value string) *Validator {
	if !ModuleNamePattern.MatchString(value) {
		v.AddErrorf(field, "invalid name %q: must be lowercase dotted segments of [a-z0-9_]", value)
	}
	return v
}

// NodeID checks a node id or entry point name.
func (v *Validator) NodeID(field, value string) *Validator {
	if !NodeIDPattern.MatchString(value) {
		v.AddErrorf(field, "invalid id %q: must match [A-Za-z0-9_]+", value)
	}
	return v
}

// Semver checks a strict semantic version.
func (v *Validator) Semver(field, value string) *Validator {
	if !IsSemver(value) {
		v.AddErrorf(field, "invalid version %q: must be a semantic version", value)
	}
	return v
}

// VersionRequirement checks an optional version requirement.
func (v *Validator) VersionRequirement(field, value string) *Validator {
	if value != "" && !IsVersionRequirement(value) {
		v.AddErrorf(field, "invalid version requirement %q", value)
	}
	return v
}

// Unique records an error for every value seen more than once.
func (v *Validator) Unique(field string, values []string) *Validator {
	for _, dup := range util.Duplicates(values) {
		v.AddErrorf(field, "duplicate %q", dup)
	}
	return v
}

// OneOf checks if a value is one of the allowed values.
func (v *Validator) OneOf(field, value string, allowed []string) *Validator {
	if value == "" {
		return v
	}
	for _, a := range allowed {
		if value == a {
			return v
		}
	}
	v.AddError(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")))
	return v
}

// Custom applies a custom validation condition.
func (v *Validator) Custom(condition bool, field, message string) *Validator {
	if !condition {
		v.AddError(field, message)
	}
	return v
}
