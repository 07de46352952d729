// Package validation provides the structural checks used when building a
// registry and loading configuration.
//
// It supports struct tag validation (go-playground/validator) with the
// engine's own tags, and programmatic validation with problem collection.
//
// # Struct Tag Validation
//
//	type manifest struct {
//	    Name    string `validate:"required,module_name"`
//	    Version string `validate:"required,semver_version"`
//	    Engine  string `validate:"omitempty,version_req"`
//	}
//	err := validation.Validate(m)
//
// # Programmatic Validation
//
//	v := validation.New("graph pipeline")
//	v.NodeID("nodes[0].id", id).Custom(len(nodes) > 0, "nodes", "must not be empty")
//	err := v.Validate()
package validation
