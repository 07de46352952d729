// Package dag executes GraphSpecs.
//
// A run derives the dependency graph from node input references, sorts it
// topologically (Kahn's algorithm, ties broken by declaration order) and
// groups the order into levels: a node's level is one more than the
// highest level of its dependencies.
//
// Levels run one after another. Every node of a level is dispatched
// concurrently against a read-only snapshot of the values committed so
// far; block executions are admitted by a shared concurrency.Controller.
// The scheduler joins the level and commits its outputs only if every
// node succeeded. Otherwise the run stops and returns the partial
// ExecutionContext with a *errors.SchedulingError wrapping the first
// failure in level order.
//
// Three executors cover the node kinds:
//   - block: resolves the block and its operation, checks arity, coerces
//     arguments to the declared ports and invokes the operation
//   - subgraph: runs a registered graph nested, its entry points seeded
//     with the node's arguments
//   - macro: expands a macro with the node's arguments and runs the
//     expansion nested
//
// Nested runs are bounded by a maximum depth, and a macro that expands
// into itself is rejected before its nested run starts.
package dag
