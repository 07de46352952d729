package dag

import (
	"container/heap"
	"sort"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/graph"
	"github.com/kbukum/flowkit/util"
)

// NodeSet is a set of node ids.
type NodeSet map[string]struct{}

// Has reports whether id is in the set.
func (s NodeSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the ids in lexical order.
func (s NodeSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// DependencyGraph maps every node id to the node ids it reads from.
type DependencyGraph map[string]NodeSet

// BuildDependencyGraph derives the dependencies of spec's nodes from their
// input references. Every node appears as a key. References to entry
// points are satisfied before the run starts and create no edge. A node
// referencing itself keeps the self edge.
func BuildDependencyGraph(spec *graph.GraphSpec) DependencyGraph {
	deps := make(DependencyGraph, len(spec.Nodes))
	for i := range spec.Nodes {
		deps[spec.Nodes[i].ID] = NodeSet{}
	}
	for i := range spec.Nodes {
		n := &spec.Nodes[i]
		for _, ref := range n.References() {
			if _, ok := deps[ref]; ok {
				deps[n.ID][ref] = struct{}{}
			}
		}
	}
	return deps
}

// TopologicalSort orders nodes so every node follows its dependencies.
// Among ready nodes the one declared first goes first, which makes the
// order reproducible. A cycle fails with *errors.CycleError listing the
// nodes left unsorted and one concrete cycle path.
func TopologicalSort(deps DependencyGraph, nodes []string) ([]string, error) {
	index := util.IndexMap(nodes)

	inDegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	for _, id := range nodes {
		for dep := range deps[id] {
			if _, ok := index[dep]; !ok {
				continue
			}
			inDegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	ready := &readyQueue{index: index}
	for _, id := range nodes {
		if inDegree[id] == 0 {
			heap.Push(ready, id)
		}
	}

	order := make([]string, 0, len(nodes))
	for ready.Len() > 0 {
		id := heap.Pop(ready).(string)
		order = append(order, id)
		for _, next := range dependents[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				heap.Push(ready, next)
			}
		}
	}

	if len(order) == len(nodes) {
		return order, nil
	}

	sorted := make(map[string]bool, len(order))
	for _, id := range order {
		sorted[id] = true
	}
	var unsorted []string
	for _, id := range nodes {
		if !sorted[id] {
			unsorted = append(unsorted, id)
		}
	}
	path := graph.CyclePath(unsorted, func(id string) []string {
		out := make([]string, 0, len(deps[id]))
		for dep := range deps[id] {
			if !sorted[dep] {
				out = append(out, dep)
			}
		}
		sort.Slice(out, func(i, j int) bool { return index[out[i]] < index[out[j]] })
		return out
	})
	return nil, &errors.CycleError{Nodes: unsorted, Path: path}
}

// AssignLevels groups a topological order into levels. A node's level is
// one more than the highest level among its dependencies; nodes without
// dependencies are at level 0. Each level keeps the topological order.
func AssignLevels(order []string, deps DependencyGraph) [][]string {
	level := make(map[string]int, len(order))
	var levels [][]string
	for _, id := range order {
		l := 0
		for dep := range deps[id] {
			if dl, ok := level[dep]; ok && dl+1 > l {
				l = dl + 1
			}
		}
		level[id] = l
		for len(levels) <= l {
			levels = append(levels, nil)
		}
		levels[l] = append(levels[l], id)
	}
	return levels
}

// readyQueue is a min-heap of node ids by declaration index.
type readyQueue struct {
	ids   []string
	index map[string]int
}

func (q *readyQueue) Len() int           { return len(q.ids) }
func (q *readyQueue) Less(i, j int) bool { return q.index[q.ids[i]] < q.index[q.ids[j]] }
func (q *readyQueue) Swap(i, j int)      { q.ids[i], q.ids[j] = q.ids[j], q.ids[i] }
func (q *readyQueue) Push(x any)         { q.ids = append(q.ids, x.(string)) }

func (q *readyQueue) Pop() any {
	last := q.ids[len(q.ids)-1]
	q.ids = q.ids[:len(q.ids)-1]
	return last
}
