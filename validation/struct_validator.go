package validation

import (
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/apparentlymart/go-versions/versions"
	"github.com/apparentlymart/go-versions/versions/constraints"
	"github.com/go-playground/validator/v10"

	"github.com/kbukum/flowkit/errors"
)

var (
	// ModuleNamePattern matches dotted lowercase module and block names.
	ModuleNamePattern = regexp.MustCompile(`^[a-z0-9_]+(?:\.[a-z0-9_]+)*$`)
	// NodeIDPattern matches node ids and entry point names.
	NodeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

var (
	validate *validator.Validate
	once     sync.Once
)

// getValidator returns the singleton validator instance.
func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// Use yaml tag names for field names in error messages
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
			if name == "-" || name == "" {
				return toSnakeCase(fld.Name)
			}
			return name
		})

		mustRegister("semver_version", func(fl validator.FieldLevel) bool {
			return IsSemver(fl.Field().String())
		})
		mustRegister("version_req", func(fl validator.FieldLevel) bool {
			return IsVersionRequirement(fl.Field().String())
		})
		mustRegister("module_name", func(fl validator.FieldLevel) bool {
			return ModuleNamePattern.MatchString(fl.Field().String())
		})
		mustRegister("node_id", func(fl validator.FieldLevel) bool {
			return NodeIDPattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

func mustRegister(tag string, fn validator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic("validation: register " + tag + ": " + err.Error())
	}
}

// IsSemver reports whether s is a strict semantic version: all three of
// major, minor and patch are present.
func IsSemver(s string) bool {
	spec, err := constraints.ParseExactVersion(s)
	if err != nil {
		return false
	}
	return !spec.Major.Unconstrained && !spec.Minor.Unconstrained && !spec.Patch.Unconstrained
}

// IsVersionRequirement reports whether s parses as a version constraint.
func IsVersionRequirement(s string) bool {
	_, err := versions.MeetingConstraintsString(s)
	return err == nil
}

// Validate validates a struct using struct tags and returns an
// *errors.ValidationError listing every failing field.
func Validate(s any) error {
	return ValidateAs("", s)
}

// ValidateAs is Validate with a subject naming what was validated.
func ValidateAs(subject string, s any) error {
	v := getValidator()
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	verr := errors.NewValidationError(subject)
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		verr.Append(err)
		return verr
	}

	for _, e := range validationErrors {
		verr.Addf("%s: %s", fieldPath(e), formatValidationError(e))
	}
	return verr
}

// fieldPath strips the root struct name from the namespace so
// "manifest.blocks[0].name" reads "blocks[0].name".
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if idx := strings.Index(ns, "."); idx != -1 {
		return ns[idx+1:]
	}
	return toSnakeCase(e.Field())
}

// formatValidationError creates a human-readable error message.
func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "oneof":
		return "must be one of: " + e.Param()
	case "semver_version":
		return "must be a semantic version (got " + quote(e.Value()) + ")"
	case "version_req":
		return "must be a version requirement (got " + quote(e.Value()) + ")"
	case "module_name":
		return "must be lowercase dotted segments of [a-z0-9_] (got " + quote(e.Value()) + ")"
	case "node_id":
		return "must match [A-Za-z0-9_]+ (got " + quote(e.Value()) + ")"
	default:
		return "is invalid"
	}
}

func quote(v any) string {
	if s, ok := v.(string); ok {
		return `"` + s + `"`
	}
	return "?"
}

// toSnakeCase converts a field name to snake_case.
func toSnakeCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result.WriteRune('_')
		}
		if r >= 'A' && r <= 'Z' {
			result.WriteRune(r + 32) // lowercase
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
