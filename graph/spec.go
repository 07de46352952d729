package graph

import (
	"fmt"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/validation"
)

// GraphSpec is an ordered set of nodes wired by data dependencies.
type GraphSpec struct {
	Name string
	// Entries names the graph's entry points. Nested runs seed them with
	// the caller's arguments; nodes reference them like node ids.
	Entries []string
	// Output names the node (or entry) whose value is the graph's result.
	Output string
	Nodes  []Node
}

// Node returns the node with the given id.
func (g *GraphSpec) Node(id string) (*Node, bool) {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}

// NodeIDs returns the node ids in declaration order.
func (g *GraphSpec) NodeIDs() []string {
	ids := make([]string, len(g.Nodes))
	for i := range g.Nodes {
		ids[i] = g.Nodes[i].ID
	}
	return ids
}

// IsEntry reports whether id names an entry point.
func (g *GraphSpec) IsEntry(id string) bool {
	for _, e := range g.Entries {
		if e == id {
			return true
		}
	}
	return false
}

func (g *GraphSpec) subject() string {
	if g.Name == "" {
		return "graph"
	}
	return fmt.Sprintf("graph %q", g.Name)
}

// Validate checks node ids, kinds, refs, references and the output node.
// Every problem is reported in one *errors.ValidationError.
func (g *GraphSpec) Validate() error {
	v := validation.New(g.subject())

	nodes := make(map[string]bool, len(g.Nodes))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		field := fmt.Sprintf("nodes[%d]", i)
		if n.ID == "" {
			v.AddError(field+".id", "is required")
		} else {
			v.NodeID(field+".id", n.ID)
			if nodes[n.ID] {
				v.AddErrorf(field+".id", "duplicate node id %q", n.ID)
			}
			nodes[n.ID] = true
			field = fmt.Sprintf("node %q", n.ID)
		}
		if !n.Kind.Valid() {
			v.AddErrorf(field+".kind", "unknown node kind %q", n.Kind)
		}
		if n.Ref.Module == "" || n.Ref.Name == "" {
			v.AddErrorf(field+".ref", "incomplete reference %q", n.Ref.String())
		} else {
			v.ModuleName(field+".ref.module", n.Ref.Module)
		}
	}

	entries := make(map[string]bool, len(g.Entries))
	for i, e := range g.Entries {
		field := fmt.Sprintf("entries[%d]", i)
		v.NodeID(field, e)
		if entries[e] {
			v.AddErrorf(field, "duplicate entry %q", e)
		}
		if nodes[e] {
			v.AddErrorf(field, "entry %q collides with a node id", e)
		}
		entries[e] = true
	}

	for i := range g.Nodes {
		n := &g.Nodes[i]
		for j, in := range n.Inputs {
			if !in.IsRef() {
				continue
			}
			if !nodes[in.source] && !entries[in.source] {
				v.AddErrorf(fmt.Sprintf("node %q.inputs[%d]", n.ID, j), "references unknown node %q", in.source)
			}
		}
	}

	if g.Output != "" && !nodes[g.Output] && !entries[g.Output] {
		v.AddErrorf("output", "unknown output node %q", g.Output)
	}

	return v.Validate()
}

// FindCycle returns one dependency cycle among g's nodes as a closed path
// (first id repeated last), or nil when g is acyclic. Entry references
// create no edges.
func (g *GraphSpec) FindCycle() []string {
	ids := g.NodeIDs()
	deps := make(map[string][]string, len(ids))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		for _, ref := range n.References() {
			if _, ok := g.Node(ref); ok {
				deps[n.ID] = append(deps[n.ID], ref)
			}
		}
	}
	return CyclePath(ids, func(id string) []string { return deps[id] })
}

// CyclePath searches the graph given by ids and deps depth first, visiting
// ids in order, and returns the first cycle found as a closed path, or nil.
func CyclePath(ids []string, deps func(id string) []string) []string {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(ids))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		state[id] = visiting
		stack = append(stack, id)
		for _, dep := range deps(id) {
			switch state[dep] {
			case visiting:
				start := len(stack) - 1
				for stack[start] != dep {
					start--
				}
				cycle = append(append([]string{}, stack[start:]...), dep)
				return true
			case unvisited:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return false
	}

	for _, id := range ids {
		if state[id] == unvisited && visit(id) {
			return cycle
		}
	}
	return nil
}

// CycleError builds the error reported for g's cycle, or nil when g is
// acyclic.
func (g *GraphSpec) CycleError() *errors.CycleError {
	path := g.FindCycle()
	if path == nil {
		return nil
	}
	return &errors.CycleError{Graph: g.Name, Nodes: path[:len(path)-1], Path: path}
}
