package loader

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/spf13/afero"
	ctyyaml "github.com/zclconf/go-cty-yaml"
	"github.com/zclconf/go-cty/cty"
	"go.yaml.in/yaml/v3"

	"github.com/kbukum/flowkit/graph"
	"github.com/kbukum/flowkit/registry"
)

type yamlModule struct {
	Name        string      `yaml:"name"`
	Version     string      `yaml:"version"`
	Title       string      `yaml:"title"`
	Description string      `yaml:"description"`
	Authors     []string    `yaml:"authors"`
	Engine      string      `yaml:"engine"`
	Blocks      []yamlBlock `yaml:"blocks"`
	Graphs      []yamlGraph `yaml:"graphs"`
	Macros      []yamlMacro `yaml:"macros"`
}

type yamlBlock struct {
	Name        string     `yaml:"name"`
	Title       string     `yaml:"title"`
	Description string     `yaml:"description"`
	Purity      string     `yaml:"purity"`
	Determinism string     `yaml:"determinism"`
	Effects     []string   `yaml:"effects"`
	Variadic    bool       `yaml:"variadic"`
	Inputs      []yamlPort `yaml:"inputs"`
	Output      *yamlPort  `yaml:"output"`
}

type yamlPort struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type yamlGraph struct {
	Name    string     `yaml:"name"`
	Entries []string   `yaml:"entries"`
	Output  string     `yaml:"output"`
	Nodes   []yamlNode `yaml:"nodes"`
}

type yamlMacro struct {
	Name   string     `yaml:"name"`
	Params []string   `yaml:"params"`
	Output string     `yaml:"output"`
	Nodes  []yamlNode `yaml:"nodes"`
}

type yamlNode struct {
	ID     string      `yaml:"id"`
	Kind   string      `yaml:"kind"`
	Use    string      `yaml:"use"`
	Inputs []yamlInput `yaml:"inputs"`
}

// yamlInput sets exactly one of ref, value or expr.
type yamlInput struct {
	Ref   string    `yaml:"ref"`
	Value yaml.Node `yaml:"value"`
	Expr  string    `yaml:"expr"`
}

// loadYAMLModule parses a self-contained YAML module. Declared names are
// taken from the definitions.
func loadYAMLModule(fs afero.Fs, manifest string) (*registry.ModuleSource, error) {
	src, err := afero.ReadFile(fs, manifest)
	if err != nil {
		return nil, err
	}

	var m yamlModule
	dec := yaml.NewDecoder(bytes.NewReader(src))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty manifest")
		}
		return nil, err
	}
	return m.source(manifest)
}

func (m *yamlModule) source(filename string) (*registry.ModuleSource, error) {
	src := &registry.ModuleSource{
		Name:        m.Name,
		Version:     m.Version,
		Title:       m.Title,
		Description: m.Description,
		Authors:     m.Authors,
		Engine:      m.Engine,
	}

	var errs *multierror.Error
	for i := range m.Blocks {
		b := &m.Blocks[i]
		src.Blocks = append(src.Blocks, b.Name)
		def, err := b.definition(filename)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("block %q: %w", b.Name, err))
			continue
		}
		src.BlockDefs = append(src.BlockDefs, def)
	}
	for i := range m.Graphs {
		g := &m.Graphs[i]
		src.Graphs = append(src.Graphs, g.Name)
		spec, err := g.spec(filename)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("graph %q: %w", g.Name, err))
			continue
		}
		src.GraphDefs = append(src.GraphDefs, spec)
	}
	for i := range m.Macros {
		mc := &m.Macros[i]
		src.Macros = append(src.Macros, mc.Name)
		spec, err := mc.spec(filename)
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

func (b *yamlBlock) definition(filename string) (*registry.BlockDef, error) {
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
		ty, err := parseType(in.Type, filename)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", in.Name, err)
		}
		def.Inputs = append(def.Inputs, registry.Port{Name: in.Name, Type: ty})
	}
	if b.Output != nil {
		ty, err := parseType(b.Output.Type, filename)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", b.Output.Name, err)
		}
		def.Output = registry.Port{Name: b.Output.Name, Type: ty}
	}
	return def, nil
}

func (g *yamlGraph) spec(filename string) (*graph.GraphSpec, error) {
	spec := &graph.GraphSpec{Name: g.Name, Entries: g.Entries, Output: g.Output}
	for _, n := range g.Nodes {
		kind, ref, err := n.header()
		if err != nil {
			return nil, err
		}
		node := graph.Node{ID: n.ID, Kind: kind, Ref: ref}
		for i, in := range n.Inputs {
			b, err := in.binding(filename)
			if err != nil {
				return nil, fmt.Errorf("node %q input %d: %w", n.ID, i, err)
			}
			node.Inputs = append(node.Inputs, b)
		}
		spec.Nodes = append(spec.Nodes, node)
	}
	return spec, nil
}

func (m *yamlMacro) spec(filename string) (*graph.MacroSpec, error) {
	spec := &graph.MacroSpec{Name: m.Name, Params: m.Params, Output: m.Output}
	for _, n := range m.Nodes {
		kind, ref, err := n.header()
		if err != nil {
			return nil, err
		}
		node := graph.MacroNode{ID: n.ID, Kind: kind, Ref: ref}
		for i, in := range n.Inputs {
			t, err := in.template(filename)
			if err != nil {
				return nil, fmt.Errorf("node %q input %d: %w", n.ID, i, err)
			}
			node.Inputs = append(node.Inputs, t)
		}
		spec.Nodes = append(spec.Nodes, node)
	}
	return spec, nil
}

func (n *yamlNode) header() (graph.NodeKind, graph.Ref, error) {
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

func (in *yamlInput) check() error {
	set := 0
	if in.Ref != "" {
		set++
	}
	if in.Value.Kind != 0 {
		set++
	}
	if in.Expr != "" {
		set++
	}
	if set != 1 {
		return fmt.Errorf("input needs exactly one of ref, value or expr")
	}
	return nil
}

func (in *yamlInput) binding(filename string) (graph.InputBinding, error) {
	if err := in.check(); err != nil {
		return graph.InputBinding{}, err
	}
	switch {
	case in.Ref != "":
		id, err := refID(in.Ref, filename)
		if err != nil {
			return graph.InputBinding{}, err
		}
		return graph.NodeRef(id), nil
	case in.Expr != "":
		expr, err := parseExpr(in.Expr, filename)
		if err != nil {
			return graph.InputBinding{}, err
		}
		return graphInput(expr)
	default:
		v, err := yamlValue(&in.Value)
		if err != nil {
			return graph.InputBinding{}, err
		}
		return graph.Literal(v), nil
	}
}

func (in *yamlInput) template(filename string) (graph.TemplateInput, error) {
	if err := in.check(); err != nil {
		return graph.TemplateInput{}, err
	}
	switch {
	case in.Ref != "":
		id, err := refID(in.Ref, filename)
		if err != nil {
			return graph.TemplateInput{}, err
		}
		return graph.TemplateRef(id), nil
	case in.Expr != "":
		expr, err := parseExpr(in.Expr, filename)
		if err != nil {
			return graph.TemplateInput{}, err
		}
		return macroInput(expr)
	default:
		v, err := yamlValue(&in.Value)
		if err != nil {
			return graph.TemplateInput{}, err
		}
		return graph.TemplateLiteral(v), nil
	}
}

// refID accepts "node.<id>", "input.<entry>" or a bare id.
func refID(s, filename string) (string, error) {
	tr, diags := hclsyntax.ParseTraversalAbs([]byte(s), filename, hcl.InitialPos)
	if diags.HasErrors() {
		return "", diags
	}
	if len(tr) == 1 {
		return tr.RootName(), nil
	}
	if len(tr) == 2 && (tr.RootName() == rootNode || tr.RootName() == rootInput) {
		if attr, ok := tr[1].(hcl.TraverseAttr); ok {
			return attr.Name, nil
		}
	}
	return "", fmt.Errorf("invalid reference %q (want node.<id>, input.<entry> or <id>)", s)
}

// yamlValue converts a YAML node to a cty value with its implied type.
func yamlValue(n *yaml.Node) (cty.Value, error) {
	src, err := yaml.Marshal(n)
	if err != nil {
		return cty.NilVal, err
	}
	ty, err := ctyyaml.ImpliedType(src)
	if err != nil {
		return cty.NilVal, err
	}
	return ctyyaml.Unmarshal(src, ty)
}
