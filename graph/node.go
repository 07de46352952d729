package graph

import (
	"fmt"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/kbukum/flowkit/value"
)

// NodeKind selects the executor that runs a node.
type NodeKind string

// Node kinds.
const (
	KindBlock    NodeKind = "block"
	KindSubgraph NodeKind = "subgraph"
	KindMacro    NodeKind = "macro"
)

// Kinds lists every valid NodeKind.
var Kinds = []NodeKind{KindBlock, KindSubgraph, KindMacro}

// ParseKind parses a kind name.
func ParseKind(s string) (NodeKind, error) {
	k := NodeKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown node kind %q (want block, subgraph or macro)", s)
	}
	return k, nil
}

// Valid reports whether k is one of Kinds.
func (k NodeKind) Valid() bool {
	switch k {
	case KindBlock, KindSubgraph, KindMacro:
		return true
	}
	return false
}

func (k NodeKind) String() string { return string(k) }

// Ref names a registry item with an optional version requirement.
type Ref struct {
	Module  string
	Name    string
	Version string
}

// ParseRef parses "module/name" or "module/name@requirement".
func ParseRef(s string) (Ref, error) {
	var r Ref
	body := strings.TrimSpace(s)
	if at := strings.Index(body, "@"); at != -1 {
		r.Version = strings.TrimSpace(body[at+1:])
		body = body[:at]
		if r.Version == "" {
			return Ref{}, fmt.Errorf("invalid reference %q: empty version requirement", s)
		}
	}
	slash := strings.LastIndex(body, "/")
	if slash <= 0 || slash == len(body)-1 {
		return Ref{}, fmt.Errorf("invalid reference %q: want module/name[@requirement]", s)
	}
	r.Module, r.Name = body[:slash], body[slash+1:]
	return r, nil
}

// MustParseRef is ParseRef that panics on error.
func MustParseRef(s string) Ref {
	r, err := ParseRef(s)
	if err != nil {
		panic(err)
	}
	return r
}

func (r Ref) String() string {
	if r.Version == "" {
		return r.Module + "/" + r.Name
	}
	return r.Module + "/" + r.Name + "@" + r.Version
}

// IsZero reports whether r names nothing.
func (r Ref) IsZero() bool { return r.Module == "" && r.Name == "" }

// InputBinding is a node input: a literal value or a reference to the
// output of another node (or an entry point) in the same graph.
type InputBinding struct {
	source string
	value  cty.Value
}

// Literal binds a constant value.
func Literal(v cty.Value) InputBinding {
	if v == cty.NilVal {
		v = cty.NullVal(cty.DynamicPseudoType)
	}
	return InputBinding{value: v}
}

// NodeRef binds the output of the node (or entry point) with the given id.
func NodeRef(id string) InputBinding {
	return InputBinding{source: id}
}

// IsRef reports whether b references another node.
func (b InputBinding) IsRef() bool { return b.source != "" }

// Source returns the referenced id, or "" for a literal.
func (b InputBinding) Source() string { return b.source }

// Value returns the literal value, or cty.NilVal for a reference.
func (b InputBinding) Value() cty.Value { return b.value }

func (b InputBinding) String() string {
	if b.IsRef() {
		return "ref(" + b.source + ")"
	}
	return value.String(b.value)
}

// Node is one step of a graph.
type Node struct {
	ID     string
	Kind   NodeKind
	Ref    Ref
	Inputs []InputBinding
}

// References returns the ids referenced by n's inputs, in input order and
// without duplicates.
func (n *Node) References() []string {
	var refs []string
	seen := make(map[string]bool, len(n.Inputs))
	for _, in := range n.Inputs {
		if in.IsRef() && !seen[in.source] {
			seen[in.source] = true
			refs = append(refs, in.source)
		}
	}
	return refs
}
