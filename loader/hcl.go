package loader

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/spf13/afero"

	"github.com/kbukum/flowkit/graph"
	"github.com/kbukum/flowkit/registry"
)

type hclDocument struct {
	Modules []*hclModule `hcl:"module,block"`
	Blocks  []*hclBlock  `hcl:"block,block"`
	Graphs  []*hclGraph  `hcl:"graph,block"`
	Macros  []*hclMacro  `hcl:"macro,block"`
}

type hclModule struct {
	Name        string   `hcl:"name,label"`
	Version     string   `hcl:"version"`
	Title       string   `hcl:"title,optional"`
	Description string   `hcl:"description,optional"`
	Authors     []string `hcl:"authors,optional"`
	Engine      string   `hcl:"engine,optional"`
	Blocks      []string `hcl:"blocks,optional"`
	Graphs      []string `hcl:"graphs,optional"`
	Macros      []string `hcl:"macros,optional"`
}

type hclBlock struct {
	Name        string     `hcl:"name,label"`
	Title       string     `hcl:"title,optional"`
	Description string     `hcl:"description,optional"`
	Purity      string     `hcl:"purity,optional"`
	Determinism string     `hcl:"determinism,optional"`
	Effects     []string   `hcl:"effects,optional"`
	Variadic    bool       `hcl:"variadic,optional"`
	Inputs      []*hclPort `hcl:"input,block"`
	Output      *hclPort   `hcl:"output,block"`
}

type hclPort struct {
	Name string         `hcl:"name,label"`
	Type *hcl.Attribute `hcl:"type,optional"`
}

type hclGraph struct {
	Name    string     `hcl:"name,label"`
	Entries []string   `hcl:"entries,optional"`
	Output  string     `hcl:"output,optional"`
	Nodes   []*hclNode `hcl:"node,block"`
}

type hclMacro struct {
	Name   string     `hcl:"name,label"`
	Params []string   `hcl:"params,optional"`
	Output string     `hcl:"output"`
	Nodes  []*hclNode `hcl:"node,block"`
}

type hclNode struct {
	ID     string         `hcl:"id,label"`
	Kind   string         `hcl:"kind,optional"`
	Use    string         `hcl:"use"`
	Inputs *hcl.Attribute `hcl:"inputs,optional"`
}

// loadHCLModule parses every HCL file in the manifest's directory as one
// module body.
func loadHCLModule(fs afero.Fs, manifest string) (*registry.ModuleSource, error) {
	dir := path.Dir(manifest)
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && isHCL(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	parser := hclparse.NewParser()
	var (
		files []*hcl.File
		diags hcl.Diagnostics
	)
	for _, name := range names {
		filename := path.Join(dir, name)
		src, err := afero.ReadFile(fs, filename)
		if err != nil {
			return nil, err
		}
		var (
			f     *hcl.File
			fdiag hcl.Diagnostics
		)
		if strings.HasSuffix(name, ".json") {
			f, fdiag = parser.ParseJSON(src, filename)
		} else {
			f, fdiag = parser.ParseHCL(src, filename)
		}
		diags = append(diags, fdiag...)
		if f != nil {
			files = append(files, f)
		}
	}
	if diags.HasErrors() {
		return nil, diags
	}

	var doc hclDocument
	if diags := gohcl.DecodeBody(hcl.MergeFiles(files), nil, &doc); diags.HasErrors() {
		return nil, diags
	}
	return doc.source()
}

func (d *hclDocument) source() (*registry.ModuleSource, error) {
	switch len(d.Modules) {
	case 0:
		return nil, fmt.Errorf("no module block")
	case 1:
	default:
		return nil, fmt.Errorf("%d module blocks, want exactly one", len(d.Modules))
	}

	m := d.Modules[0]
	src := &registry.ModuleSource{
		Name:        m.Name,
		Version:     m.Version,
		Title:       m.Title,
		Description: m.Description,
		Authors:     m.Authors,
		Engine:      m.Engine,
		Blocks:      m.Blocks,
		Graphs:      m.Graphs,
		Macros:      m.Macros,
	}

	var errs *multierror.Error
	for _, b := range d.Blocks {
		def, err := b.definition()
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("block %q: %w", b.Name, err))
			continue
		}
		src.BlockDefs = append(src.BlockDefs, def)
	}
	for _, g := range d.Graphs {
		spec, err := g.spec()
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("graph %q: %w", g.Name, err))
			continue
		}
		src.GraphDefs = append(src.GraphDefs, spec)
	}
	for _, mc := range d.Macros {
		spec, err := mc.spec()
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("macro %q: %w", mc.Name, err))
			continue
		}
		src.MacroDefs = append(src.MacroDefs, spec)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return src, nil
}

func (b *hclBlock) definition() (*registry.BlockDef, error) {
	def := &registry.BlockDef{
		Name:        b.Name,
		Title:       b.Title,
		Description: b.Description,
		Purity:      registry.Purity(b.Purity),
		Determinism: registry.Determinism(b.Determinism),
		Effects:     b.Effects,
		Variadic:    b.Variadic,
	}
	for _, in := range b.Inputs {
		p, err := in.port()
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", in.Name, err)
		}
		def.Inputs = append(def.Inputs, p)
	}
	if b.Output != nil {
		p, err := b.Output.port()
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", b.Output.Name, err)
		}
		def.Output = p
	}
	return def, nil
}

func (p *hclPort) port() (registry.Port, error) {
	var expr hcl.Expression
	if p.Type != nil {
		expr = p.Type.Expr
	}
	ty, err := portType(expr)
	if err != nil {
		return registry.Port{}, err
	}
	return registry.Port{Name: p.Name, Type: ty}, nil
}

func (g *hclGraph) spec() (*graph.GraphSpec, error) {
	spec := &graph.GraphSpec{Name: g.Name, Entries: g.Entries, Output: g.Output}
	for _, n := range g.Nodes {
		kind, ref, err := n.header()
		if err != nil {
			return nil, err
		}
		node := graph.Node{ID: n.ID, Kind: kind, Ref: ref}
		exprs, err := n.inputs()
		if err != nil {
			return nil, err
		}
		for i, expr := range exprs {
			in, err := graphInput(expr)
			if err != nil {
				return nil, fmt.Errorf("node %q input %d: %w", n.ID, i, err)
			}
			node.Inputs = append(node.Inputs, in)
		}
		spec.Nodes = append(spec.Nodes, node)
	}
	return spec, nil
}

func (m *hclMacro) spec() (*graph.MacroSpec, error) {
	spec := &graph.MacroSpec{Name: m.Name, Params: m.Params, Output: m.Output}
	for _, n := range m.Nodes {
		kind, ref, err := n.header()
		if err != nil {
			return nil, err
		}
		node := graph.MacroNode{ID: n.ID, Kind: kind, Ref: ref}
		exprs, err := n.inputs()
		if err != nil {
			return nil, err
		}
		for i, expr := range exprs {
			in, err := macroInput(expr)
			if err != nil {
				return nil, fmt.Errorf("node %q input %d: %w", n.ID, i, err)
			}
			node.Inputs = append(node.Inputs, in)
		}
		spec.Nodes = append(spec.Nodes, node)
	}
	return spec, nil
}

func (n *hclNode) header() (graph.NodeKind, graph.Ref, error) {
	kind, err := parseNodeKind(n.Kind)
	if err != nil {
		return "", graph.Ref{}, fmt.Errorf("node %q: %w", n.ID, err)
	}
	ref, err := graph.ParseRef(n.Use)
	if err != nil {
		return "", graph.Ref{}, fmt.Errorf("node %q: %w", n.ID, err)
	}
	return kind, ref, nil
}

func (n *hclNode) inputs() ([]hcl.Expression, error) {
	if n.Inputs == nil {
		return nil, nil
	}
	exprs, diags := hcl.ExprList(n.Inputs.Expr)
	if diags.HasErrors() {
		return nil, fmt.Errorf("node %q: %w", n.ID, diags)
	}
	return exprs, nil
}
