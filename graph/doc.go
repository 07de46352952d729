// Package graph is the in-memory model of flowkit graphs.
//
// A GraphSpec is an ordered list of Nodes. Each Node has a stable id, a
// NodeKind selecting its executor, a Ref naming the registry item it runs,
// and ordered InputBindings that are either literal values or references
// to another node's output (or to one of the graph's entry points).
//
// A MacroSpec is a template whose inputs may be HCL expressions over its
// parameters. Expand turns it into a transient GraphSpec.
package graph
