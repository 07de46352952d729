package registry

import (
	"github.com/zclconf/go-cty/cty"
)

// Purity declares whether a block has side effects.
type Purity string

// Purity values.
const (
	PurityPure   Purity = "pure"
	PurityImpure Purity = "impure"
)

// Determinism declares whether a block returns the same output for the
// same inputs.
type Determinism string

// Determinism values.
const (
	Deterministic    Determinism = "deterministic"
	Nondeterministic Determinism = "nondeterministic"
)

// Port is a typed, named input or output slot.
type Port struct {
	Name string
	Type cty.Type
}

// BlockDef declares a block: its metadata and port signature.
type BlockDef struct {
	Name        string
	Title       string
	Description string
	Purity      Purity
	Determinism Determinism
	Effects     []string
	Inputs      []Port
	// Variadic lets the last input repeat any number of times, zero included.
	Variadic bool
	Output   Port
}

// Arity returns the minimum argument count and whether more are accepted.
func (b *BlockDef) Arity() (min int, variadic bool) {
	if b.Variadic && len(b.Inputs) > 0 {
		return len(b.Inputs) - 1, true
	}
	return len(b.Inputs), false
}

// AcceptsArgs reports whether n arguments fit the signature.
func (b *BlockDef) AcceptsArgs(n int) bool {
	min, variadic := b.Arity()
	if variadic {
		return n >= min
	}
	return n == min
}

// InputPort returns the port argument i binds to. Variadic blocks map
// every trailing argument onto the last port.
func (b *BlockDef) InputPort(i int) (Port, bool) {
	if i < 0 || len(b.Inputs) == 0 {
		return Port{}, false
	}
	if i < len(b.Inputs) {
		return b.Inputs[i], true
	}
	if b.Variadic {
		return b.Inputs[len(b.Inputs)-1], true
	}
	return Port{}, false
}

// normalize fills defaults: pure, deterministic, dynamic port types.
func (b *BlockDef) normalize() {
	if b.Purity == "" {
		b.Purity = PurityPure
	}
	if b.Determinism == "" {
		b.Determinism = Deterministic
	}
	for i := range b.Inputs {
		if b.Inputs[i].Type == cty.NilType {
			b.Inputs[i].Type = cty.DynamicPseudoType
		}
	}
	if b.Output.Type == cty.NilType {
		b.Output.Type = cty.DynamicPseudoType
	}
	if b.Output.Name == "" {
		b.Output.Name = "result"
	}
}
