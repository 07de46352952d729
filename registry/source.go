package registry

import (
	"context"
	"fmt"

	"github.com/kbukum/flowkit/graph"
)

// ModuleSource is one module version as handed over by a loader:
// structured, but not yet validated.
type ModuleSource struct {
	Name        string   `yaml:"name" validate:"required,module_name"`
	Version     string   `yaml:"version" validate:"required,semver_version"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Authors     []string `yaml:"authors"`
	Engine      string   `yaml:"engine" validate:"omitempty,version_req"`

	// Declared item names. Every declared name needs a definition and
	// every definition must be declared.
	Blocks []string `yaml:"blocks"`
	Graphs []string `yaml:"graphs"`
	Macros []string `yaml:"macros"`

	BlockDefs []*BlockDef        `yaml:"-" validate:"-"`
	GraphDefs []*graph.GraphSpec `yaml:"-" validate:"-"`
	MacroDefs []*graph.MacroSpec `yaml:"-" validate:"-"`

	// Origin records where the source was read from.
	Origin string `yaml:"-"`
}

// ID returns "name@version".
func (s *ModuleSource) ID() string {
	return fmt.Sprintf("%s@%s", s.Name, s.Version)
}

// Loader reads module sources from source roots.
// Any I/O or parse failure is returned as an *errors.LoadError.
type Loader interface {
	Load(ctx context.Context, roots []string) ([]*ModuleSource, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, roots []string) ([]*ModuleSource, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, roots []string) ([]*ModuleSource, error) {
	return f(ctx, roots)
}
