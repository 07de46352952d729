// Package concurrency bounds how many block operations run at once.
//
// A Controller is a counting semaphore with scoped admission: Execute
// acquires a slot, runs the function and releases the slot on every exit
// path, panics included.
//
//	ctrl := concurrency.New(concurrency.Config{Name: "engine", MaxConcurrent: 8})
//	err := ctrl.Execute(ctx, func() error {
//	    return op.Execute(ctx, inv)
//	})
//
// Admission blocks until a slot frees, ctx is done, or the optional
// MaxWait elapses.
package concurrency
