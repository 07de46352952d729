package registry

import (
	"slices"

	"github.com/apparentlymart/go-versions/versions"

	"github.com/kbukum/flowkit/graph"
	"github.com/kbukum/flowkit/util"
)

// ModuleVersion is one validated version of a module.
type ModuleVersion struct {
	Module      string
	Version     versions.Version
	Title       string
	Description string
	Authors     []string
	Engine      string
	Origin      string

	raw    string
	blocks map[string]*BlockDef
	graphs map[string]*graph.GraphSpec
	macros map[string]*graph.MacroSpec
}

func newModuleVersion(src *ModuleSource, v versions.Version) *ModuleVersion {
	mv := &ModuleVersion{
		Module:      src.Name,
		Version:     v,
		Title:       src.Title,
		Description: src.Description,
		Authors:     slices.Clone(src.Authors),
		Engine:      src.Engine,
		Origin:      src.Origin,
		raw:         src.Version,
		blocks:      make(map[string]*BlockDef, len(src.BlockDefs)),
		graphs:      make(map[string]*graph.GraphSpec, len(src.GraphDefs)),
		macros:      make(map[string]*graph.MacroSpec, len(src.MacroDefs)),
	}
	for _, b := range src.BlockDefs {
		if b != nil {
			mv.blocks[b.Name] = b
		}
	}
	for _, g := range src.GraphDefs {
		if g != nil {
			mv.graphs[g.Name] = g
		}
	}
	for _, m := range src.MacroDefs {
		if m != nil {
			mv.macros[m.Name] = m
		}
	}
	return mv
}

// String returns "module@version".
func (mv *ModuleVersion) String() string { return mv.Module + "@" + mv.Version.String() }

// matchesExact reports whether s names this version literally.
func (mv *ModuleVersion) matchesExact(s string) bool {
	return s == mv.raw || s == mv.Version.String()
}

// BlockNames returns the block names, sorted.
func (mv *ModuleVersion) BlockNames() []string { return util.SortedKeys(mv.blocks) }

// GraphNames returns the graph names, sorted.
func (mv *ModuleVersion) GraphNames() []string { return util.SortedKeys(mv.graphs) }

// MacroNames returns the macro names, sorted.
func (mv *ModuleVersion) MacroNames() []string { return util.SortedKeys(mv.macros) }

// HasBlock reports whether the version defines block name.
func (mv *ModuleVersion) HasBlock(name string) bool { _, ok := mv.blocks[name]; return ok }

// HasGraph reports whether the version defines graph name.
func (mv *ModuleVersion) HasGraph(name string) bool { _, ok := mv.graphs[name]; return ok }

// HasMacro reports whether the version defines macro name.
func (mv *ModuleVersion) HasMacro(name string) bool { _, ok := mv.macros[name]; return ok }

// Module is a named set of versions.
type Module struct {
	Name string
	// versions are sorted ascending.
	versions []*ModuleVersion
}

// Versions returns the module's versions in ascending semver order.
func (m *Module) Versions() []*ModuleVersion { return slices.Clone(m.versions) }

// Latest returns the highest version.
func (m *Module) Latest() *ModuleVersion {
	if len(m.versions) == 0 {
		return nil
	}
	return m.versions[len(m.versions)-1]
}

func (m *Module) sort() {
	slices.SortStableFunc(m.versions, func(a, b *ModuleVersion) int {
		switch {
		case a.Version.LessThan(b.Version):
			return -1
		case b.Version.LessThan(a.Version):
			return 1
		}
		return 0
	})
}
