// Package engine assembles a ready-to-run flowkit engine from
// configuration: logging, optional OTLP telemetry, the module registry
// (source roots plus the builtin std.* modules), the operation library
// with its middleware, one concurrency controller and the scheduler.
//
//	cfg, _ := config.Load("flowrun")
//	eng, err := engine.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer eng.Shutdown(ctx)
//
//	ec, err := eng.Run(ctx, "app", "pipeline", "^1", map[string]cty.Value{
//	    "x": cty.NumberIntVal(4),
//	})
package engine
