// Package logger provides structured logging for flowkit using zerolog.
//
// It supports JSON and console output, level configuration, component
// scoped loggers and run-scoped context fields (run id, graph, node,
// nesting depth) carried through context.Context.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.Get("scheduler")
//	log.Info("level dispatched", logger.Fields(logger.FieldLevel, 0, "nodes", 3))
package logger
