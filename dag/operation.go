package dag

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/graph"
	"github.com/kbukum/flowkit/operation"
	"github.com/kbukum/flowkit/registry"
)

// AsOperation exposes a registered graph as an operation, so host code can
// publish composite graphs as blocks of another module. Arguments bind
// positionally to the graph's entry points; the graph's result is the
// operation's output.
//
// The operation runs inside the caller's block admission and its graph
// needs further slots, so the controller must have spare capacity for
// every such operation that can run at once.
func AsOperation(s *Scheduler, h registry.GraphHandle) (operation.Operation, error) {
	spec, ok := s.registry.Graph(h)
	if !ok {
		return nil, &errors.ResolutionMiss{Kind: registry.KindGraph, Module: h.Module, Name: h.Name, Requirement: h.Version}
	}
	return &graphOperation{s: s, handle: h, spec: spec}, nil
}

type graphOperation struct {
	s      *Scheduler
	handle registry.GraphHandle
	spec   *graph.GraphSpec
}

func (g *graphOperation) Name() string { return g.handle.String() }

func (g *graphOperation) Execute(ctx context.Context, inv operation.Invocation) (cty.Value, error) {
	inputs, err := bindEntries(g.Name(), g.spec, inv.Args)
	if err != nil {
		return cty.NilVal, err
	}
	ec, err := g.s.Schedule(ctx, g.spec, WithInputs(inputs))
	if err != nil {
		return cty.NilVal, err
	}
	v, ok := ec.Result()
	if !ok {
		return cty.NilVal, fmt.Errorf("graph %s produced no result", g.handle)
	}
	return v, nil
}
