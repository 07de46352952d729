package dag

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/zclconf/go-cty/cty"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/graph"
	"github.com/kbukum/flowkit/operation"
	"github.com/kbukum/flowkit/registry"
)

func runOne(t *testing.T, s *Scheduler, n graph.Node) (cty.Value, error) {
	t.Helper()
	ec, err := s.Schedule(context.Background(), &graph.GraphSpec{Name: "single", Output: n.ID, Nodes: []graph.Node{n}})
	if err != nil {
		return cty.NilVal, err
	}
	v, _ := ec.Result()
	return v, nil
}

func TestBlock_CoercesArguments(t *testing.T) {
	s := newFixture(t).scheduler()
	v, err := runOne(t, s, node("sum", "add", graph.Literal(cty.StringVal("2")), lit(3)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num(t, v) != 5 {
		t.Errorf("expected 5, got %#v", v)
	}
}

func TestBlock_Errors(t *testing.T) {
	tests := []struct {
		name     string
		node     graph.Node
		wantCode errors.ErrorCode
		check    func(t *testing.T, err error)
	}{
		{
			name:     "arity",
			node:     node("n", "add", lit(1)),
			wantCode: errors.ErrCodeInvalidInput,
		},
		{
			name:     "port type",
			node:     node("n", "add", graph.Literal(cty.StringVal("x")), lit(1)),
			wantCode: errors.ErrCodeInvalidInput,
			check: func(t *testing.T, err error) {
				appErr, ok := errors.AsAppError(err)
				if !ok || appErr.Details["port"] != "a" {
					t.Errorf("expected the failing port in details, got %v", err)
				}
			},
		},
		{
			name:     "unknown block",
			node:     node("n", "ghost"),
			wantCode: errors.ErrCodeResolutionMiss,
			check: func(t *testing.T, err error) {
				var miss *errors.ResolutionMiss
				if !stderrors.As(err, &miss) || miss.Kind != registry.KindBlock || miss.Name != "ghost" {
					t.Errorf("expected a block ResolutionMiss, got %v", err)
				}
			},
		},
		{
			name:     "missing operation",
			node:     node("n", "unimplemented"),
			wantCode: errors.ErrCodeResolutionMiss,
			check: func(t *testing.T, err error) {
				var miss *errors.ResolutionMiss
				if !stderrors.As(err, &miss) || miss.Kind != "operation" {
					t.Errorf("expected an operation ResolutionMiss, got %v", err)
				}
			},
		},
		{
			name:     "operation failure",
			node:     node("n", "fail"),
			wantCode: errors.ErrCodeOperationFailed,
			check: func(t *testing.T, err error) {
				if !stderrors.Is(err, errBoom) {
					t.Errorf("expected the operation error as cause, got %v", err)
				}
			},
		},
	}

	s := newFixture(t).scheduler()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := runOne(t, s, tc.node)
			var nodeErr *errors.NodeExecutionError
			if !stderrors.As(err, &nodeErr) || nodeErr.NodeID != "n" || nodeErr.Kind != "block" {
				t.Fatalf("expected NodeExecutionError for n, got %v", err)
			}
			if got := errors.CodeOf(nodeErr.Cause); got != tc.wantCode {
				t.Errorf("expected %s, got %s (%v)", tc.wantCode, got, err)
			}
			if tc.check != nil {
				tc.check(t, err)
			}
		})
	}
}

func TestBlock_Invocation(t *testing.T) {
	f := newFixture(t)
	var got operation.Invocation
	f.on("target", func(_ context.Context, inv operation.Invocation) (cty.Value, error) {
		got = inv
		return cty.StringVal("ok"), nil
	})

	ec, err := f.scheduler().Schedule(context.Background(), &graph.GraphSpec{Nodes: []graph.Node{
		node("target", "custom", lit(1), graph.Literal(cty.StringVal("two"))),
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.RunID != ec.RunID || got.NodeID != "target" {
		t.Errorf("unexpected invocation identity: %+v", got)
	}
	if got.Block != (registry.BlockHandle{Module: testModule, Version: "1.0.0", Name: "custom"}) {
		t.Errorf("unexpected block handle %s", got.Block)
	}
	if len(got.Args) != 2 || !got.Args[1].RawEquals(cty.StringVal("two")) {
		t.Errorf("unexpected args %#v", got.Args)
	}
}

func TestBlock_NoValueFailsProducer(t *testing.T) {
	f := newFixture(t)
	f.on("x", func(context.Context, operation.Invocation) (cty.Value, error) {
		return cty.NilVal, nil
	})

	ec, err := f.scheduler().Schedule(context.Background(), &graph.GraphSpec{Name: "empty", Nodes: []graph.Node{
		node("x", "custom"),
		node("y", "inc", ref("x")),
	}})
	var nodeErr *errors.NodeExecutionError
	if !stderrors.As(err, &nodeErr) || nodeErr.NodeID != "x" {
		t.Fatalf("expected the producing node to fail, got %v", err)
	}
	if got := errors.CodeOf(nodeErr.Cause); got != errors.ErrCodeOperationFailed {
		t.Errorf("expected OPERATION_FAILED, got %s (%v)", got, err)
	}
	if !stderrors.Is(err, errNoValue) {
		t.Errorf("expected errNoValue as cause, got %v", err)
	}
	if ec == nil {
		t.Fatal("expected the partial execution context")
	}
	if _, ok := ec.Output("x"); ok {
		t.Error("x must not be committed")
	}
	if _, ok := ec.Output("y"); ok {
		t.Error("y must not run")
	}
}

// plus adds its two entry points.
func plusGraph() *graph.GraphSpec {
	return &graph.GraphSpec{
		Name:    "plus",
		Entries: []string{"x", "y"},
		Output:  "s",
		Nodes:   []graph.Node{node("s", "add", ref("x"), ref("y"))},
	}
}

func TestSubgraph(t *testing.T) {
	s := newFixture(t, withGraphs(plusGraph())).scheduler()

	v, err := runOne(t, s, subgraphNode("sub", "plus", lit(2), lit(3)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num(t, v) != 5 {
		t.Errorf("expected 5, got %#v", v)
	}

	_, err = runOne(t, s, subgraphNode("sub", "plus", lit(2)))
	if errors.RootCode(err) != errors.ErrCodeInvalidInput {
		t.Errorf("expected INVALID_INPUT for an entry count mismatch, got %v", err)
	}

	_, err = runOne(t, s, subgraphNode("sub", "nowhere"))
	var miss *errors.ResolutionMiss
	if !stderrors.As(err, &miss) || miss.Kind != registry.KindGraph {
		t.Errorf("expected a graph ResolutionMiss, got %v", err)
	}
}

func TestSubgraph_NestedFailureTaggedOnCallingNode(t *testing.T) {
	broken := &graph.GraphSpec{
		Name:    "broken",
		Entries: []string{"x"},
		Nodes:   []graph.Node{node("inner", "fail", ref("x"))},
	}
	s := newFixture(t, withGraphs(broken)).scheduler()

	_, err := runOne(t, s, subgraphNode("outer", "broken", lit(1)))

	var outer *errors.NodeExecutionError
	if !stderrors.As(err, &outer) || outer.NodeID != "outer" || outer.Kind != "subgraph" {
		t.Fatalf("expected the calling node to be tagged, got %v", err)
	}
	var nested *errors.SchedulingError
	if !stderrors.As(outer.Cause, &nested) || nested.Graph != "broken" {
		t.Fatalf("expected the nested SchedulingError as cause, got %v", outer.Cause)
	}
	var inner *errors.NodeExecutionError
	if !stderrors.As(nested.Cause, &inner) || inner.NodeID != "inner" {
		t.Fatalf("expected the nested node failure, got %v", nested.Cause)
	}
	if !stderrors.Is(err, errBoom) {
		t.Error("expected the original failure at the bottom of the chain")
	}
}

func TestSubgraph_DepthLimit(t *testing.T) {
	deep := &graph.GraphSpec{
		Name:    "deep",
		Entries: []string{"x"},
		Output:  "r",
		Nodes:   []graph.Node{subgraphNode("r", "deep", ref("x"))},
	}
	s := newFixture(t, withGraphs(deep)).scheduler(WithMaxDepth(3))

	_, err := runOne(t, s, subgraphNode("top", "deep", lit(1)))
	var rec *errors.RecursionError
	if !stderrors.As(err, &rec) {
		t.Fatalf("expected RecursionError, got %v", err)
	}
	if rec.Reason != errors.RecursionDepth || rec.Limit != 3 {
		t.Errorf("expected depth limit 3, got %+v", rec)
	}
	if len(rec.Chain) != 4 || rec.Chain[0] != "t@1.0.0:deep" {
		t.Errorf("expected the four nested graphs in the chain, got %v", rec.Chain)
	}
	if errors.RootCode(err) != errors.ErrCodeRecursionLimit {
		t.Errorf("expected RECURSION_LIMIT, got %s", errors.RootCode(err))
	}
}

// snapshotRecorder keeps the snapshot handed to every block of a nested run.
type snapshotRecorder struct {
	inner executor

	mu   sync.Mutex
	seen map[string]Snapshot
}

func recordSnapshots(s *Scheduler) *snapshotRecorder {
	r := &snapshotRecorder{inner: s.block, seen: map[string]Snapshot{}}
	s.block = r
	return r
}

func (r *snapshotRecorder) execute(ctx context.Context, call *nodeCall) (cty.Value, error) {
	if call.frame.depth > 0 {
		r.mu.Lock()
		r.seen[call.node.ID] = call.snapshot
		r.mu.Unlock()
	}
	return r.inner.execute(ctx, call)
}

func (r *snapshotRecorder) visible(t *testing.T, id string) []string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	snap, ok := r.seen[id]
	if !ok {
		t.Fatalf("node %s did not run in a nested run", id)
	}
	ids := make([]string, 0, snap.Len())
	for k := range snap.values {
		ids = append(ids, k)
	}
	sort.Strings(ids)
	return ids
}

func TestSubgraph_SeesOnlyEntries(t *testing.T) {
	view := &graph.GraphSpec{
		Name:    "view",
		Entries: []string{"a", "b"},
		Output:  "after",
		Nodes: []graph.Node{
			node("look", "custom", ref("a")),
			node("sum", "add", ref("a"), ref("b")),
			node("after", "inc", ref("sum")),
		},
	}
	f := newFixture(t, withGraphs(view))
	s := f.scheduler()
	rec := recordSnapshots(s)

	ec, err := s.Schedule(context.Background(), &graph.GraphSpec{Name: "outer", Nodes: []graph.Node{
		node("seed", "add", lit(1), lit(2)),
		node("other", "inc", lit(10)),
		subgraphNode("sub", "view", ref("seed"), lit(4)),
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := ec.Output("sub"); num(t, v) != 8 {
		t.Errorf("expected 8, got %#v", v)
	}

	if diff := cmp.Diff([]string{"a", "b"}, rec.visible(t, "look")); diff != "" {
		t.Errorf("first level visibility mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "b", "look", "sum"}, rec.visible(t, "after")); diff != "" {
		t.Errorf("second level visibility mismatch (-want +got):\n%s", diff)
	}
	rec.mu.Lock()
	a, _ := rec.seen["look"].Get("a")
	rec.mu.Unlock()
	if num(t, a) != 3 {
		t.Errorf("expected entry a bound to seed's value, got %#v", a)
	}
}

func TestMacro_SeesOnlyExpansion(t *testing.T) {
	wrap := &graph.MacroSpec{
		Name:   "wrap",
		Params: []string{"v"},
		Output: "after",
		Nodes: []graph.MacroNode{
			{ID: "look", Kind: graph.KindBlock, Ref: graph.MustParseRef("t/custom"), Inputs: []graph.TemplateInput{
				graph.TemplateExpr(paramExpr(t, "param.v")),
			}},
			{ID: "first", Kind: graph.KindBlock, Ref: graph.MustParseRef("t/add"), Inputs: []graph.TemplateInput{
				graph.TemplateExpr(paramExpr(t, "param.v")),
				graph.TemplateExpr(paramExpr(t, "param.v")),
			}},
			{ID: "after", Kind: graph.KindBlock, Ref: graph.MustParseRef("t/inc"), Inputs: []graph.TemplateInput{
				graph.TemplateRef("first"),
			}},
		},
	}
	f := newFixture(t, withMacros(wrap))
	s := f.scheduler()
	rec := recordSnapshots(s)

	ec, err := s.Schedule(context.Background(), &graph.GraphSpec{Name: "outer", Nodes: []graph.Node{
		node("seed", "add", lit(1), lit(2)),
		node("other", "inc", lit(10)),
		macroNode("m", "wrap", ref("seed")),
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := ec.Output("m"); num(t, v) != 7 {
		t.Errorf("expected 7, got %#v", v)
	}

	if got := rec.visible(t, "look"); len(got) != 0 {
		t.Errorf("expected an empty first level snapshot, got %v", got)
	}
	if diff := cmp.Diff([]string{"first", "look"}, rec.visible(t, "after")); diff != "" {
		t.Errorf("second level visibility mismatch (-want +got):\n%s", diff)
	}
}

func TestMacro(t *testing.T) {
	twice := &graph.MacroSpec{
		Name:   "twice",
		Params: []string{"v"},
		Output: "d",
		Nodes: []graph.MacroNode{
			{ID: "d", Kind: graph.KindBlock, Ref: graph.MustParseRef("t/add"), Inputs: []graph.TemplateInput{
				graph.TemplateExpr(paramExpr(t, "param.v")),
				graph.TemplateExpr(paramExpr(t, "param.v")),
			}},
		},
	}
	s := newFixture(t, withMacros(twice)).scheduler()

	ec, err := s.Schedule(context.Background(), &graph.GraphSpec{Nodes: []graph.Node{
		node("seed", "add", lit(20), lit(1)),
		macroNode("m", "twice", ref("seed")),
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, _ := ec.Output("m")
	if num(t, v) != 42 {
		t.Errorf("expected 42, got %#v", v)
	}

	_, err = runOne(t, s, macroNode("m", "twice"))
	if errors.RootCode(err) != errors.ErrCodeExpansionFailed {
		t.Errorf("expected EXPANSION_FAILED, got %v", err)
	}
	var nodeErr *errors.NodeExecutionError
	if !stderrors.As(err, &nodeErr) || nodeErr.NodeID != "m" {
		t.Errorf("expected the macro node tagged, got %v", err)
	}
}

func TestMacro_SelfExpansion(t *testing.T) {
	loop := &graph.MacroSpec{
		Name:   "loop",
		Params: []string{"v"},
		Output: "again",
		Nodes: []graph.MacroNode{
			{ID: "again", Kind: graph.KindMacro, Ref: graph.MustParseRef("t/loop"), Inputs: []graph.TemplateInput{
				graph.TemplateExpr(paramExpr(t, "param.v")),
			}},
		},
	}
	s := newFixture(t, withMacros(loop)).scheduler()

	_, err := runOne(t, s, macroNode("m", "loop", lit(1)))
	var rec *errors.RecursionError
	if !stderrors.As(err, &rec) {
		t.Fatalf("expected RecursionError, got %v", err)
	}
	if rec.Reason != errors.RecursionMacro {
		t.Errorf("expected the macro reason, got %q", rec.Reason)
	}
	if diff := cmp.Diff([]string{"t@1.0.0:loop", "t@1.0.0:loop"}, rec.Chain); diff != "" {
		t.Errorf("chain mismatch (-want +got):\n%s", diff)
	}
}

func TestAsOperation(t *testing.T) {
	composite := &registry.ModuleSource{
		Name:    "composite",
		Version: "1.0.0",
		Blocks:  []string{"plus"},
		BlockDefs: []*registry.BlockDef{
			blockDef("plus", false, cty.Number, port("x", cty.Number), port("y", cty.Number)),
		},
	}
	f := newFixture(t, withGraphs(plusGraph()), withSources(composite))
	s := f.scheduler()

	h, ok := f.reg.FindGraph(testModule, "plus", "")
	if !ok {
		t.Fatal("graph plus not found")
	}
	op, err := AsOperation(s, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op.Name() != "t@1.0.0:plus" {
		t.Errorf("expected the handle as name, got %q", op.Name())
	}
	f.ops.Register("composite", "plus", op)

	ec, err := s.Schedule(context.Background(), &graph.GraphSpec{Output: "p", Nodes: []graph.Node{
		{ID: "p", Kind: graph.KindBlock, Ref: graph.MustParseRef("composite/plus"), Inputs: []graph.InputBinding{lit(40), lit(2)}},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, _ := ec.Result()
	if num(t, v) != 42 {
		t.Errorf("expected 42, got %#v", v)
	}

	if _, err := AsOperation(s, registry.GraphHandle{Module: testModule, Version: "1.0.0", Name: "ghost"}); err == nil {
		t.Error("expected an unknown graph to be rejected")
	}
}
