package dag

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/kbukum/flowkit/concurrency"
	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/graph"
	"github.com/kbukum/flowkit/operation"
	"github.com/kbukum/flowkit/registry"
	"github.com/kbukum/flowkit/value"
)

// nodeCall carries one node dispatch through the executor chain.
type nodeCall struct {
	node     *graph.Node
	level    int
	snapshot Snapshot
	args     []cty.Value
	frame    frame
}

// executor runs one kind of node. Executors return values and never write
// to the ExecutionContext.
type executor interface {
	execute(ctx context.Context, call *nodeCall) (cty.Value, error)
}

// blockExecutor invokes the operation implementing a block.
type blockExecutor struct {
	s *Scheduler
}

func (e *blockExecutor) execute(ctx context.Context, call *nodeCall) (cty.Value, error) {
	reg := e.s.registry
	h, err := reg.ResolveBlock(call.node.Ref)
	if err != nil {
		return cty.NilVal, err
	}
	def, ok := reg.Block(h)
	if !ok {
		return cty.NilVal, &errors.ResolutionMiss{Kind: registry.KindBlock, Module: h.Module, Name: h.Name, Requirement: h.Version}
	}
	op, ok := e.s.lib.Resolve(h)
	if !ok {
		return cty.NilVal, &errors.ResolutionMiss{Kind: "operation", Module: h.Module, Name: h.Name, Requirement: h.Version}
	}

	args, err := bindPorts(def, call.args)
	if err != nil {
		return cty.NilVal, err
	}

	inv := operation.Invocation{
		RunID:  call.frame.runID,
		NodeID: call.node.ID,
		Block:  h,
		Def:    def,
		Args:   args,
	}
	admitted := false
	out, err := concurrency.Do(e.s.ctrl, ctx, func() (cty.Value, error) {
		admitted = true
		return op.Execute(ctx, inv)
	})
	if err != nil {
		if !admitted {
			return cty.NilVal, admissionError(err)
		}
		return cty.NilVal, errors.OperationFailed(op.Name(), err)
	}
	if out.Type() == cty.NilType {
		return cty.NilVal, errors.OperationFailed(op.Name(), errNoValue)
	}

	out, err = value.Coerce(out, def.Output.Type)
	if err != nil {
		return cty.NilVal, errors.OperationFailed(op.Name(), fmt.Errorf("output: %w", err))
	}
	return out, nil
}

// errNoValue is the cause of a block whose operation returned neither a
// value nor an error.
var errNoValue = stderrors.New("operation returned no value")

// bindPorts checks the argument count against def and converts every
// argument to its port type.
func bindPorts(def *registry.BlockDef, args []cty.Value) ([]cty.Value, error) {
	if !def.AcceptsArgs(len(args)) {
		min, variadic := def.Arity()
		want := fmt.Sprintf("%d", min)
		if variadic {
			want = fmt.Sprintf("at least %d", min)
		}
		return nil, errors.InvalidInput(def.Name, fmt.Sprintf("expected %s argument(s), got %d", want, len(args)))
	}

	out := make([]cty.Value, len(args))
	for i, arg := range args {
		port, _ := def.InputPort(i)
		v, err := value.Coerce(arg, port.Type)
		if err != nil {
			return nil, errors.InvalidInput(port.Name, err.Error()).WithCause(err)
		}
		out[i] = v
	}
	return out, nil
}

func admissionError(err error) error {
	if stderrors.Is(err, concurrency.ErrAdmissionTimeout) {
		return errors.Timeout("admission").WithCause(err)
	}
	return errors.Cancelled(err)
}

// subgraphExecutor runs a registered graph as a nested run.
type subgraphExecutor struct {
	s *Scheduler
}

func (e *subgraphExecutor) execute(ctx context.Context, call *nodeCall) (cty.Value, error) {
	reg := e.s.registry
	h, err := reg.ResolveGraph(call.node.Ref)
	if err != nil {
		return cty.NilVal, err
	}
	spec, ok := reg.Graph(h)
	if !ok {
		return cty.NilVal, &errors.ResolutionMiss{Kind: registry.KindGraph, Module: h.Module, Name: h.Name, Requirement: h.Version}
	}

	inputs, err := bindEntries(h.String(), spec, call.args)
	if err != nil {
		return cty.NilVal, err
	}

	child := call.frame.nested(h.String(), false)
	if err := e.s.checkDepth(child); err != nil {
		return cty.NilVal, err
	}
	return e.s.nestedResult(ctx, spec, inputs, child)
}

// bindEntries maps args positionally onto spec's entry points.
func bindEntries(name string, spec *graph.GraphSpec, args []cty.Value) (map[string]cty.Value, error) {
	if len(args) != len(spec.Entries) {
		return nil, errors.InvalidInput(name,
			fmt.Sprintf("expected %d argument(s) for entries %v, got %d", len(spec.Entries), spec.Entries, len(args)))
	}
	inputs := make(map[string]cty.Value, len(args))
	for i, entry := range spec.Entries {
		inputs[entry] = args[i]
	}
	return inputs, nil
}

// macroExecutor expands a macro and runs the expansion as a nested run.
type macroExecutor struct {
	s *Scheduler
}

func (e *macroExecutor) execute(ctx context.Context, call *nodeCall) (cty.Value, error) {
	reg := e.s.registry
	h, err := reg.ResolveMacro(call.node.Ref)
	if err != nil {
		return cty.NilVal, err
	}
	m, ok := reg.Macro(h)
	if !ok {
		return cty.NilVal, &errors.ResolutionMiss{Kind: registry.KindMacro, Module: h.Module, Name: h.Name, Requirement: h.Version}
	}

	name := h.String()
	if call.frame.expanding(name) {
		chain := append(append([]string(nil), call.frame.macros...), name)
		return cty.NilVal, &errors.RecursionError{Reason: errors.RecursionMacro, Limit: e.s.maxDepth, Chain: chain}
	}
	child := call.frame.nested(name, true)
	if err := e.s.checkDepth(child); err != nil {
		return cty.NilVal, err
	}

	spec, err := m.Expand(call.args)
	if err != nil {
		return cty.NilVal, err
	}
	return e.s.nestedResult(ctx, spec, nil, child)
}

// nestedResult runs spec under f and returns its designated output.
func (s *Scheduler) nestedResult(ctx context.Context, spec *graph.GraphSpec, inputs map[string]cty.Value, f frame) (cty.Value, error) {
	ec, err := s.run(ctx, spec, inputs, f)
	if err != nil {
		return cty.NilVal, err
	}
	v, ok := ec.Result()
	if !ok {
		return cty.NilVal, fmt.Errorf("graph %q produced no result", spec.Name)
	}
	return v, nil
}
