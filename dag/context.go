package dag

import (
	"time"

	"github.com/zclconf/go-cty/cty"

	"github.com/kbukum/flowkit/graph"
)

// NodeStatus is the outcome of one node in a run.
type NodeStatus string

// Node statuses.
const (
	// StatusCompleted: the node's output was committed.
	StatusCompleted NodeStatus = "completed"
	// StatusFailed: the node's executor returned an error.
	StatusFailed NodeStatus = "failed"
	// StatusDiscarded: the node succeeded in a level that failed, so its
	// output was not committed.
	StatusDiscarded NodeStatus = "discarded"
)

// NodeReport records how one dispatched node fared.
type NodeReport struct {
	NodeID   string
	Kind     graph.NodeKind
	Level    int
	Status   NodeStatus
	Duration time.Duration
	Err      error
}

// ExecutionContext holds the outputs and completion order of one graph
// run. Only the scheduler writes to it, between levels.
type ExecutionContext struct {
	RunID string
	Graph string
	Depth int
	// Inputs holds the entry point values the run was seeded with.
	Inputs map[string]cty.Value
	// Outputs maps every committed node id to its value.
	Outputs map[string]cty.Value
	// Order lists committed node ids level by level, each level in
	// topological order.
	Order []string
	// Levels is the level assignment of the run.
	Levels [][]string
	// Reports lists every dispatched node in dispatch order.
	Reports []NodeReport

	output string
}

func newExecutionContext(runID string, spec *graph.GraphSpec, depth int, inputs map[string]cty.Value) *ExecutionContext {
	ec := &ExecutionContext{
		RunID:   runID,
		Graph:   spec.Name,
		Depth:   depth,
		Inputs:  make(map[string]cty.Value, len(inputs)),
		Outputs: make(map[string]cty.Value, len(spec.Nodes)),
		output:  spec.Output,
	}
	for k, v := range inputs {
		ec.Inputs[k] = v
	}
	return ec
}

// Output returns the committed value of a node.
func (c *ExecutionContext) Output(id string) (cty.Value, bool) {
	v, ok := c.Outputs[id]
	return v, ok
}

// Result returns the run's designated output. Without one it is the value
// of the last committed node.
func (c *ExecutionContext) Result() (cty.Value, bool) {
	if c.output != "" {
		if v, ok := c.Outputs[c.output]; ok {
			return v, true
		}
		v, ok := c.Inputs[c.output]
		return v, ok
	}
	if len(c.Order) == 0 {
		return cty.NilVal, false
	}
	return c.Output(c.Order[len(c.Order)-1])
}

// Report returns the report of a dispatched node.
func (c *ExecutionContext) Report(id string) (NodeReport, bool) {
	for _, r := range c.Reports {
		if r.NodeID == id {
			return r, true
		}
	}
	return NodeReport{}, false
}

// Snapshot returns a read-only copy of the values visible to the next
// level: entry inputs and committed outputs.
func (c *ExecutionContext) Snapshot() Snapshot {
	values := make(map[string]cty.Value, len(c.Inputs)+len(c.Outputs))
	for k, v := range c.Inputs {
		values[k] = v
	}
	for k, v := range c.Outputs {
		values[k] = v
	}
	return Snapshot{values: values}
}

// Snapshot is an immutable view of a run's values. Executors read their
// references from it.
type Snapshot struct {
	values map[string]cty.Value
}

// Get returns the value of a node or entry point.
func (s Snapshot) Get(id string) (cty.Value, bool) {
	v, ok := s.values[id]
	return v, ok
}

// Len returns the number of visible values.
func (s Snapshot) Len() int { return len(s.values) }
