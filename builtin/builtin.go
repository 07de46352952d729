package builtin

import (
	"github.com/zclconf/go-cty/cty"

	"github.com/kbukum/flowkit/operation"
	"github.com/kbukum/flowkit/registry"
)

// Version is the version of every builtin module.
const Version = "1.0.0"

// Module names.
const (
	ModuleMath       = "std.math"
	ModuleString     = "std.string"
	ModuleCollection = "std.collection"
)

type block struct {
	def registry.BlockDef
	op  operation.Operation
}

type module struct {
	name   string
	title  string
	blocks []block
}

func modules() []module {
	return []module{
		{name: ModuleMath, title: "Arithmetic on numbers", blocks: mathBlocks()},
		{name: ModuleString, title: "String manipulation", blocks: stringBlocks()},
		{name: ModuleCollection, title: "Lists, sets and tuples", blocks: collectionBlocks()},
	}
}

// Sources returns the builtin module sources. Each call returns fresh
// values.
func Sources() []*registry.ModuleSource {
	mods := modules()
	out := make([]*registry.ModuleSource, 0, len(mods))
	for _, m := range mods {
		src := &registry.ModuleSource{
			Name:    m.name,
			Version: Version,
			Title:   m.title,
			Authors: []string{"flowkit"},
			Origin:  "builtin",
		}
		for _, b := range m.blocks {
			def := b.def
			src.Blocks = append(src.Blocks, def.Name)
			src.BlockDefs = append(src.BlockDefs, &def)
		}
		out = append(out, src)
	}
	return out
}

// Register binds the builtin operations to their exact module version,
// so other versions of a std.* module may bring their own.
func Register(r *operation.Registry) {
	for _, m := range modules() {
		for _, b := range m.blocks {
			r.RegisterVersion(m.name, Version, b.def.Name, b.op)
		}
	}
}

func port(name string, ty cty.Type) registry.Port {
	return registry.Port{Name: name, Type: ty}
}

func def(name, description string, output cty.Type, inputs ...registry.Port) registry.BlockDef {
	return registry.BlockDef{
		Name:        name,
		Description: description,
		Purity:      registry.PurityPure,
		Determinism: registry.Deterministic,
		Inputs:      inputs,
		Output:      port("result", output),
	}
}

func variadic(d registry.BlockDef) registry.BlockDef {
	d.Variadic = true
	return d
}
