package registry

import (
	"context"

	"github.com/apparentlymart/go-versions/versions"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/graph"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/util"
)

// Item kinds used in ResolutionMiss.
const (
	KindBlock = "block"
	KindGraph = "graph"
	KindMacro = "macro"
)

// Registry is an immutable, validated set of modules. It is safe for
// concurrent use.
type Registry struct {
	modules  map[string]*Module
	warnings []string
}

type options struct {
	strictEngine bool
	log          *logger.Logger
}

// Option configures New and Load.
type Option func(*options)

// WithStrictEngine rejects modules whose engine requirement the running
// engine does not meet. Without it the mismatch is logged as a warning.
func WithStrictEngine(strict bool) Option {
	return func(o *options) { o.strictEngine = strict }
}

// WithLogger sets the logger used to report warnings and load summaries.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// New validates sources and builds a Registry. All structural problems are
// collected into one *errors.ValidationError; nothing is partially loaded.
// New takes ownership of sources.
func New(sources []*ModuleSource, opts ...Option) (*Registry, error) {
	o := options{log: logger.Get(logger.ComponentRegistry)}
	for _, opt := range opts {
		opt(&o)
	}

	b := &builder{opts: o, modules: make(map[string]*Module)}
	if err := b.build(sources); err != nil {
		o.log.WithError(err).Error("registry validation failed")
		return nil, err
	}

	r := &Registry{modules: b.modules, warnings: b.warnings}
	for _, w := range r.warnings {
		o.log.Warn(w)
	}
	s := r.Stats()
	o.log.Info("registry loaded", logger.Fields(
		"modules", s.Modules,
		"versions", s.Versions,
		"blocks", s.Blocks,
		"graphs", s.Graphs,
		"macros", s.Macros,
	))
	return r, nil
}

// Load reads sources from roots with l and builds a Registry. Loader
// failures are returned unchanged.
func Load(ctx context.Context, l Loader, roots []string, opts ...Option) (*Registry, error) {
	sources, err := l.Load(ctx, roots)
	if err != nil {
		return nil, err
	}
	return New(sources, opts...)
}

// Stats counts the registry's contents.
type Stats struct {
	Modules  int
	Versions int
	Blocks   int
	Graphs   int
	Macros   int
}

// Stats counts modules, versions and definitions across all versions.
func (r *Registry) Stats() Stats {
	var s Stats
	s.Modules = len(r.modules)
	for _, m := range r.modules {
		s.Versions += len(m.versions)
		for _, mv := range m.versions {
			s.Blocks += len(mv.blocks)
			s.Graphs += len(mv.graphs)
			s.Macros += len(mv.macros)
		}
	}
	return s
}

// Warnings returns non-fatal problems found while building the registry.
func (r *Registry) Warnings() []string { return append([]string(nil), r.warnings...) }

// ListModules returns the module names, sorted.
func (r *Registry) ListModules() []string { return util.SortedKeys(r.modules) }

// ModuleVersions returns the versions of module in ascending order.
func (r *Registry) ModuleVersions(module string) []string {
	m, ok := r.modules[module]
	if !ok {
		return nil
	}
	out := make([]string, len(m.versions))
	for i, mv := range m.versions {
		out[i] = mv.Version.String()
	}
	return out
}

// ListBlocks returns the distinct block names across every version of
// module, sorted.
func (r *Registry) ListBlocks(module string) []string {
	return r.listNames(module, (*ModuleVersion).BlockNames)
}

// ListGraphs returns the distinct graph names across every version of
// module, sorted.
func (r *Registry) ListGraphs(module string) []string {
	return r.listNames(module, (*ModuleVersion).GraphNames)
}

// ListMacros returns the distinct macro names across every version of
// module, sorted.
func (r *Registry) ListMacros(module string) []string {
	return r.listNames(module, (*ModuleVersion).MacroNames)
}

func (r *Registry) listNames(module string, names func(*ModuleVersion) []string) []string {
	m, ok := r.modules[module]
	if !ok {
		return nil
	}
	set := make(map[string]struct{})
	for _, mv := range m.versions {
		for _, n := range names(mv) {
			set[n] = struct{}{}
		}
	}
	return util.SortedKeys(set)
}

// FindBlock resolves a block. An empty req selects the highest version.
func (r *Registry) FindBlock(module, name, req string) (BlockHandle, bool) {
	mv, ok := r.find(module, name, req, (*ModuleVersion).HasBlock)
	if !ok {
		return BlockHandle{}, false
	}
	return BlockHandle{Module: module, Version: mv.Version.String(), Name: name}, true
}

// FindGraph resolves a graph. An empty req selects the highest version.
func (r *Registry) FindGraph(module, name, req string) (GraphHandle, bool) {
	mv, ok := r.find(module, name, req, (*ModuleVersion).HasGraph)
	if !ok {
		return GraphHandle{}, false
	}
	return GraphHandle{Module: module, Version: mv.Version.String(), Name: name}, true
}

// FindMacro resolves a macro. An empty req selects the highest version.
func (r *Registry) FindMacro(module, name, req string) (MacroHandle, bool) {
	mv, ok := r.find(module, name, req, (*ModuleVersion).HasMacro)
	if !ok {
		return MacroHandle{}, false
	}
	return MacroHandle{Module: module, Version: mv.Version.String(), Name: name}, true
}

// find implements resolution: collect the versions defining name, then
// pick the highest one satisfying req as a range, or the one matching req
// exactly when req is not a range.
func (r *Registry) find(module, name, req string, has func(*ModuleVersion, string) bool) (*ModuleVersion, bool) {
	m, ok := r.modules[module]
	if !ok {
		return nil, false
	}

	var candidates []*ModuleVersion
	for _, mv := range m.versions {
		if has(mv, name) {
			candidates = append(candidates, mv)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}

	if req == "" {
		return candidates[len(candidates)-1], true
	}

	allowed, err := versions.MeetingConstraintsString(req)
	if err == nil {
		for i := len(candidates) - 1; i >= 0; i-- {
			if allowed.Has(candidates[i].Version) {
				return candidates[i], true
			}
		}
		return nil, false
	}

	for _, mv := range candidates {
		if mv.matchesExact(req) {
			return mv, true
		}
	}
	return nil, false
}

// ResolveBlock is FindBlock for a graph.Ref that reports a miss as
// *errors.ResolutionMiss.
func (r *Registry) ResolveBlock(ref graph.Ref) (BlockHandle, error) {
	h, ok := r.FindBlock(ref.Module, ref.Name, ref.Version)
	if !ok {
		return BlockHandle{}, miss(KindBlock, ref)
	}
	return h, nil
}

// ResolveGraph is FindGraph for a graph.Ref that reports a miss as
// *errors.ResolutionMiss.
func (r *Registry) ResolveGraph(ref graph.Ref) (GraphHandle, error) {
	h, ok := r.FindGraph(ref.Module, ref.Name, ref.Version)
	if !ok {
		return GraphHandle{}, miss(KindGraph, ref)
	}
	return h, nil
}

// ResolveMacro is FindMacro for a graph.Ref that reports a miss as
// *errors.ResolutionMiss.
func (r *Registry) ResolveMacro(ref graph.Ref) (MacroHandle, error) {
	h, ok := r.FindMacro(ref.Module, ref.Name, ref.Version)
	if !ok {
		return MacroHandle{}, miss(KindMacro, ref)
	}
	return h, nil
}

func miss(kind string, ref graph.Ref) *errors.ResolutionMiss {
	return &errors.ResolutionMiss{Kind: kind, Module: ref.Module, Name: ref.Name, Requirement: ref.Version}
}

// Module returns a module version by name and exact version.
func (r *Registry) Module(name, version string) (*ModuleVersion, bool) {
	m, ok := r.modules[name]
	if !ok {
		return nil, false
	}
	for _, mv := range m.versions {
		if mv.matchesExact(version) {
			return mv, true
		}
	}
	return nil, false
}

// Lookup returns the module with the given name.
func (r *Registry) Lookup(name string) (*Module, bool) {
	m, ok := r.modules[name]
	return m, ok
}

// Block returns the definition behind h.
func (r *Registry) Block(h BlockHandle) (*BlockDef, bool) {
	mv, ok := r.Module(h.Module, h.Version)
	if !ok {
		return nil, false
	}
	b, ok := mv.blocks[h.Name]
	return b, ok
}

// Graph returns the definition behind h.
func (r *Registry) Graph(h GraphHandle) (*graph.GraphSpec, bool) {
	mv, ok := r.Module(h.Module, h.Version)
	if !ok {
		return nil, false
	}
	g, ok := mv.graphs[h.Name]
	return g, ok
}

// Macro returns the definition behind h.
func (r *Registry) Macro(h MacroHandle) (*graph.MacroSpec, bool) {
	mv, ok := r.Module(h.Module, h.Version)
	if !ok {
		return nil, false
	}
	m, ok := mv.macros[h.Name]
	return m, ok
}
