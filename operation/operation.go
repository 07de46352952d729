package operation

import (
	"context"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"

	"github.com/kbukum/flowkit/registry"
)

// Invocation is one call of a block operation.
type Invocation struct {
	RunID  string
	NodeID string
	Block  registry.BlockHandle
	Def    *registry.BlockDef
	// Args are already coerced to the declared port types.
	Args []cty.Value
}

// Operation executes a block.
type Operation interface {
	Name() string
	Execute(ctx context.Context, inv Invocation) (cty.Value, error)
}

// Library resolves the Operation implementing a block.
type Library interface {
	Resolve(h registry.BlockHandle) (Operation, bool)
}

// ExecuteFunc is the signature of a function-backed Operation.
type ExecuteFunc func(ctx context.Context, inv Invocation) (cty.Value, error)

// Func adapts a function to Operation.
func Func(name string, fn ExecuteFunc) Operation {
	return &funcOp{name: name, fn: fn}
}

type funcOp struct {
	name string
	fn   ExecuteFunc
}

func (f *funcOp) Name() string { return f.name }

func (f *funcOp) Execute(ctx context.Context, inv Invocation) (cty.Value, error) {
	return f.fn(ctx, inv)
}

// FromFunction adapts a cty function. The invocation arguments are passed
// positionally.
func FromFunction(name string, fn function.Function) Operation {
	return Func(name, func(_ context.Context, inv Invocation) (cty.Value, error) {
		return fn.Call(inv.Args)
	})
}
