// Package registry holds the versioned modules a flowkit engine runs.
//
// A Registry is built once from loader output with New (or Load), is fully
// validated before it is returned, and is immutable afterwards. Lookups
// resolve a (module, name, requirement) triple to a handle:
//
//	h, ok := reg.FindBlock("std.math", "add", "^1")
//	def, _ := reg.Block(h)
//
// A requirement is parsed as a version range first. When it does not parse
// as a range it must match a version string exactly. An empty requirement
// selects the highest version defining the item. A miss is not an error.
package registry
