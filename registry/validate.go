package registry

import (
	"fmt"

	"github.com/apparentlymart/go-versions/versions"

	"github.com/kbukum/flowkit/graph"
	"github.com/kbukum/flowkit/validation"
	"github.com/kbukum/flowkit/version"
)

// builder validates sources and assembles modules.
type builder struct {
	opts     options
	v        *validation.Validator
	modules  map[string]*Module
	warnings []string
}

func (b *builder) build(sources []*ModuleSource) error {
	b.v = validation.New("registry")

	// Keyed without build metadata: versions of equal precedence would
	// make resolution ambiguous.
	seen := make(map[string]*ModuleVersion, len(sources))
	var accepted []*ModuleVersion
	for i, src := range sources {
		if src == nil {
			b.v.AddErrorf(fmt.Sprintf("sources[%d]", i), "nil module source")
			continue
		}
		mv, ok := b.checkSource(src)
		if !ok {
			continue
		}
		key := mv.Module + "@" + mv.Version.Comparable().String()
		if prev, dup := seen[key]; dup {
			if prev.Version.Metadata != mv.Version.Metadata {
				b.v.AddErrorf(mv.String(), "version differs from %s only in build metadata (defined in %s and %s)",
					prev, originOf(prev.Origin), originOf(src.Origin))
				continue
			}
			b.v.AddErrorf(key, "duplicate module version (defined in %s and %s)", originOf(prev.Origin), originOf(src.Origin))
			continue
		}
		seen[key] = mv
		accepted = append(accepted, mv)
	}

	for _, mv := range accepted {
		m, ok := b.modules[mv.Module]
		if !ok {
			m = &Module{Name: mv.Module}
			b.modules[mv.Module] = m
		}
		m.versions = append(m.versions, mv)
	}
	for _, m := range b.modules {
		m.sort()
	}

	for _, mv := range accepted {
		b.checkReferences(mv)
	}

	return b.v.Validate()
}

func originOf(path string) string {
	if path == "" {
		return "<memory>"
	}
	return path
}

// checkSource validates one source in isolation. It reports false when the
// source cannot be keyed by (name, version).
func (b *builder) checkSource(src *ModuleSource) (*ModuleVersion, bool) {
	id := src.ID()
	if err := validation.ValidateAs(id, src); err != nil {
		b.v.Merge(id, err)
	}
	v, err := versions.ParseVersion(src.Version)
	if err != nil || !validation.ModuleNamePattern.MatchString(src.Name) {
		return nil, false
	}

	b.checkEngine(id, src.Engine)
	b.checkDeclared(id, "block", src.Blocks, names(src.BlockDefs, func(d *BlockDef) string { return d.Name }))
	b.checkDeclared(id, "graph", src.Graphs, names(src.GraphDefs, func(g *graph.GraphSpec) string { return g.Name }))
	b.checkDeclared(id, "macro", src.Macros, names(src.MacroDefs, func(m *graph.MacroSpec) string { return m.Name }))

	for _, def := range src.BlockDefs {
		if def == nil {
			b.v.AddError(id, "nil block definition")
			continue
		}
		def.normalize()
		b.checkBlock(id, def)
	}
	for _, g := range src.GraphDefs {
		if g == nil {
			b.v.AddError(id, "nil graph definition")
			continue
		}
		field := fmt.Sprintf("%s graph %q", id, g.Name)
		b.v.Merge(field, g.Validate())
		if cerr := g.CycleError(); cerr != nil {
			b.v.Merge(field, cerr)
		}
	}
	for _, m := range src.MacroDefs {
		if m == nil {
			b.v.AddError(id, "nil macro definition")
			continue
		}
		b.v.Merge(fmt.Sprintf("%s macro %q", id, m.Name), m.Validate())
	}

	return newModuleVersion(src, v), true
}

func names[T any](defs []*T, name func(*T) string) []string {
	out := make([]string, 0, len(defs))
	for _, d := range defs {
		if d == nil {
			continue
		}
		out = append(out, name(d))
	}
	return out
}

// checkDeclared matches declared names against definitions both ways.
func (b *builder) checkDeclared(id, kind string, declared, defined []string) {
	field := id + " " + kind + "s"
	b.v.Unique(field, declared)
	b.v.Unique(field, defined)

	def := make(map[string]bool, len(defined))
	for _, n := range defined {
		def[n] = true
		b.v.ModuleName(field, n)
	}
	decl := make(map[string]bool, len(declared))
	for _, n := range declared {
		decl[n] = true
		if !def[n] {
			b.v.AddErrorf(field, "declared %s %q has no definition", kind, n)
		}
	}
	for _, n := range defined {
		if !decl[n] {
			b.v.AddErrorf(field, "%s %q is defined but not declared by the module", kind, n)
		}
	}
}

func (b *builder) checkBlock(id string, def *BlockDef) {
	field := fmt.Sprintf("%s block %q", id, def.Name)
	b.v.OneOf(field+".purity", string(def.Purity), []string{string(PurityPure), string(PurityImpure)})
	b.v.OneOf(field+".determinism", string(def.Determinism), []string{string(Deterministic), string(Nondeterministic)})
	if def.Purity == PurityPure && len(def.Effects) > 0 {
		b.v.AddErrorf(field, "pure block declares effects %v", def.Effects)
	}

	ports := make([]string, 0, len(def.Inputs))
	for i, p := range def.Inputs {
		b.v.NodeID(fmt.Sprintf("%s.inputs[%d]", field, i), p.Name)
		ports = append(ports, p.Name)
	}
	b.v.Unique(field+".inputs", ports)
	if def.Variadic && len(def.Inputs) == 0 {
		b.v.AddError(field, "variadic block needs at least one input port")
	}
}

func (b *builder) checkEngine(id, req string) {
	ok, err := version.SatisfiesEngine(req)
	if err != nil {
		// Reported by the version_req struct tag.
		return
	}
	if ok {
		return
	}
	msg := fmt.Sprintf("engine %s does not satisfy requirement %q", version.EngineVersion(), req)
	if b.opts.strictEngine {
		b.v.AddError(id+".engine", msg)
		return
	}
	b.warnings = append(b.warnings, id+": "+msg)
}

// checkReferences rejects node refs naming modules the registry does not
// hold. Refs to a known module with no matching item surface as
// resolution misses when the node runs.
func (b *builder) checkReferences(mv *ModuleVersion) {
	for _, name := range mv.GraphNames() {
		g := mv.graphs[name]
		for _, n := range g.Nodes {
			b.checkRef(fmt.Sprintf("%s graph %q node %q", mv, name, n.ID), n.Ref)
		}
	}
	for _, name := range mv.MacroNames() {
		m := mv.macros[name]
		for _, n := range m.Nodes {
			b.checkRef(fmt.Sprintf("%s macro %q node %q", mv, name, n.ID), n.Ref)
		}
	}
}

func (b *builder) checkRef(field string, ref graph.Ref) {
	if ref.Module == "" {
		return
	}
	if _, ok := b.modules[ref.Module]; !ok {
		b.v.AddErrorf(field, "dangling reference %s: unknown module %q", ref, ref.Module)
	}
}
