package dag

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"github.com/kbukum/flowkit/graph"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/operation"
	"github.com/kbukum/flowkit/registry"
)

const testModule = "t"

var errBoom = stderrors.New("boom")

// fixture holds a registry with module "t" and the operations for its
// blocks. Block "custom" dispatches to the behavior registered for the
// executing node id.
type fixture struct {
	reg *registry.Registry
	ops *operation.Registry

	mu        sync.Mutex
	behaviors map[string]operation.ExecuteFunc
}

type fixtureConfig struct {
	graphs  []*graph.GraphSpec
	macros  []*graph.MacroSpec
	sources []*registry.ModuleSource
}

type fixtureOption func(*fixtureConfig)

func withGraphs(g ...*graph.GraphSpec) fixtureOption {
	return func(c *fixtureConfig) { c.graphs = append(c.graphs, g...) }
}

func withMacros(m ...*graph.MacroSpec) fixtureOption {
	return func(c *fixtureConfig) { c.macros = append(c.macros, m...) }
}

func withSources(src ...*registry.ModuleSource) fixtureOption {
	return func(c *fixtureConfig) { c.sources = append(c.sources, src...) }
}

func port(name string, ty cty.Type) registry.Port {
	return registry.Port{Name: name, Type: ty}
}

func blockDef(name string, variadic bool, out cty.Type, inputs ...registry.Port) *registry.BlockDef {
	return &registry.BlockDef{
		Name:        name,
		Purity:      registry.PurityPure,
		Determinism: registry.Deterministic,
		Inputs:      inputs,
		Variadic:    variadic,
		Output:      port("out", out),
	}
}

func testSource(cfg *fixtureConfig) *registry.ModuleSource {
	src := &registry.ModuleSource{
		Name:    testModule,
		Version: "1.0.0",
		BlockDefs: []*registry.BlockDef{
			blockDef("add", false, cty.Number, port("a", cty.Number), port("b", cty.Number)),
			blockDef("inc", false, cty.Number, port("a", cty.Number)),
			blockDef("fail", true, cty.DynamicPseudoType, port("v", cty.DynamicPseudoType)),
			blockDef("custom", true, cty.DynamicPseudoType, port("v", cty.DynamicPseudoType)),
			blockDef("unimplemented", false, cty.Number),
		},
		GraphDefs: cfg.graphs,
		MacroDefs: cfg.macros,
	}
	for _, d := range src.BlockDefs {
		src.Blocks = append(src.Blocks, d.Name)
	}
	for _, g := range cfg.graphs {
		src.Graphs = append(src.Graphs, g.Name)
	}
	for _, m := range cfg.macros {
		src.Macros = append(src.Macros, m.Name)
	}
	return src
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	var cfg fixtureConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	reg, err := registry.New(append([]*registry.ModuleSource{testSource(&cfg)}, cfg.sources...),
		registry.WithLogger(logger.Nop()))
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	f := &fixture{reg: reg, ops: operation.NewRegistry(), behaviors: map[string]operation.ExecuteFunc{}}
	f.ops.Register(testModule, "add", operation.FromFunction("add", stdlib.AddFunc))
	f.ops.Register(testModule, "inc", operation.Func("inc", func(_ context.Context, inv operation.Invocation) (cty.Value, error) {
		return inv.Args[0].Add(cty.NumberIntVal(1)), nil
	}))
	f.ops.Register(testModule, "fail", operation.Func("fail", func(context.Context, operation.Invocation) (cty.Value, error) {
		return cty.NilVal, errBoom
	}))
	f.ops.Register(testModule, "custom", operation.Func("custom", func(ctx context.Context, inv operation.Invocation) (cty.Value, error) {
		f.mu.Lock()
		fn, ok := f.behaviors[inv.NodeID]
		f.mu.Unlock()
		if !ok {
			return cty.True, nil
		}
		return fn(ctx, inv)
	}))
	return f
}

// on sets the behavior of custom nodes with the given id.
func (f *fixture) on(nodeID string, fn operation.ExecuteFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.behaviors[nodeID] = fn
}

func (f *fixture) scheduler(opts ...Option) *Scheduler {
	return NewScheduler(f.reg, f.ops, append([]Option{WithLogger(logger.Nop())}, opts...)...)
}

func node(id, block string, inputs ...graph.InputBinding) graph.Node {
	return graph.Node{ID: id, Kind: graph.KindBlock, Ref: graph.MustParseRef(testModule + "/" + block), Inputs: inputs}
}

func subgraphNode(id, name string, inputs ...graph.InputBinding) graph.Node {
	return graph.Node{ID: id, Kind: graph.KindSubgraph, Ref: graph.MustParseRef(testModule + "/" + name), Inputs: inputs}
}

func macroNode(id, name string, inputs ...graph.InputBinding) graph.Node {
	return graph.Node{ID: id, Kind: graph.KindMacro, Ref: graph.MustParseRef(testModule + "/" + name), Inputs: inputs}
}

func ref(id string) graph.InputBinding { return graph.NodeRef(id) }

func lit(n int64) graph.InputBinding { return graph.Literal(cty.NumberIntVal(n)) }

func paramExpr(t *testing.T, src string) hcl.Expression {
	t.Helper()
	expr, diags := hclsyntax.ParseExpression([]byte(src), "test.hcl", hcl.InitialPos)
	if diags.HasErrors() {
		t.Fatalf("parse %q: %s", src, diags.Error())
	}
	return expr
}

// diamond: a=1+2, b=a+1, c=a+10, d=b+c.
func diamond() *graph.GraphSpec {
	return &graph.GraphSpec{
		Name: "diamond",
		Nodes: []graph.Node{
			node("a", "add", lit(1), lit(2)),
			node("b", "inc", ref("a")),
			node("c", "add", ref("a"), lit(10)),
			node("d", "add", ref("b"), ref("c")),
		},
	}
}

func num(t *testing.T, v cty.Value) int64 {
	t.Helper()
	if v.IsNull() || !v.Type().Equals(cty.Number) {
		t.Fatalf("expected a number, got %#v", v)
	}
	n, _ := v.AsBigFloat().Int64()
	return n
}
