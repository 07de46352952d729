// Package builtin provides the std.* modules: std.math, std.string and
// std.collection, all at version 1.0.0.
//
// Sources returns their declarations for the registry and Register binds
// the matching operations, which are backed by the cty function library.
//
//	reg, _ := registry.New(append(loaded, builtin.Sources()...))
//	ops := operation.NewRegistry()
//	builtin.Register(ops)
package builtin
