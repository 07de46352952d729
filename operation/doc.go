// Package operation supplies the executable implementations of blocks.
//
// A block in the registry is only a declaration. The scheduler asks a
// Library for the Operation behind a resolved BlockHandle and calls it
// with the coerced arguments.
//
//	ops := operation.NewRegistry()
//	ops.Register("std.math", "add", operation.FromFunction("add", stdlib.AddFunc))
//	ops.Use(
//	    operation.WithLogging(log),
//	    operation.WithTimeout(5*time.Second),
//	)
//
// Registrations for a specific module version win over version-less
// ones. Middleware wraps every resolved operation, first outermost.
package operation
