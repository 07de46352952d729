package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"github.com/zclconf/go-cty/cty"

	"github.com/kbukum/flowkit/builtin"
	"github.com/kbukum/flowkit/concurrency"
	"github.com/kbukum/flowkit/config"
	"github.com/kbukum/flowkit/dag"
	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/graph"
	"github.com/kbukum/flowkit/loader"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/observability"
	"github.com/kbukum/flowkit/operation"
	"github.com/kbukum/flowkit/registry"
	"github.com/kbukum/flowkit/version"
)

// Engine wires a loaded registry, an operation library and a scheduler
// sharing one concurrency controller.
type Engine struct {
	cfg       *config.Config
	log       *logger.Logger
	registry  *registry.Registry
	ops       *operation.Registry
	ctrl      *concurrency.Controller
	breakers  *operation.Breakers
	scheduler *dag.Scheduler
	metrics   *observability.Metrics

	shutdown []func(context.Context) error
}

// Option configures New.
type Option func(*options)

type options struct {
	fs         afero.Fs
	log        *logger.Logger
	sources    []*registry.ModuleSource
	operations []func(*operation.Registry)
}

// WithFileSystem reads source roots from fs instead of the OS filesystem.
func WithFileSystem(fs afero.Fs) Option {
	return func(o *options) { o.fs = fs }
}

// WithLogger uses l instead of a logger built from the configuration.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithSources adds module sources next to the loaded and builtin ones.
func WithSources(sources ...*registry.ModuleSource) Option {
	return func(o *options) { o.sources = append(o.sources, sources...) }
}

// WithOperations registers host operations. fn runs after the builtin
// operations are registered.
func WithOperations(fn func(*operation.Registry)) Option {
	return func(o *options) { o.operations = append(o.operations, fn) }
}

// New builds an engine from cfg. A nil cfg uses config.Default.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.fs == nil {
		o.fs = afero.NewOsFs()
	}

	e := &Engine{cfg: cfg}
	e.initLogger(o)

	start := time.Now()
	if err := e.initTelemetry(ctx); err != nil {
		_ = e.Shutdown(ctx)
		return nil, err
	}
	if err := e.initRegistry(ctx, o); err != nil {
		_ = e.Shutdown(ctx)
		return nil, err
	}
	e.initOperations(o)
	e.initScheduler()

	stats := e.registry.Stats()
	e.log.Info("engine ready", logger.Fields(
		logger.FieldVersion, version.GetShortVersion(),
		"modules", stats.Modules,
		"blocks", stats.Blocks,
		"graphs", stats.Graphs,
		"macros", stats.Macros,
		"operations", len(e.ops.List()),
		"max_concurrency", e.ctrl.Limit(),
		logger.FieldDuration, time.Since(start).Milliseconds(),
	))
	for _, w := range e.registry.Warnings() {
		e.log.Warn("registry warning", logger.Fields("warning", w))
	}
	return e, nil
}

func (e *Engine) initLogger(o *options) {
	base := o.log
	if base == nil {
		base = logger.New(&e.cfg.Logging, e.cfg.Name)
	}
	logger.SetGlobalLogger(base)
	logger.RegisterDefaults(base)
	e.log = logger.Get(logger.ComponentEngine)
}

func (e *Engine) initTelemetry(ctx context.Context) error {
	if e.cfg.Tracing.Enabled {
		tc := observability.DefaultTracerConfig(e.cfg.Name)
		tc.Environment = e.cfg.Environment
		tc.Endpoint = e.cfg.Tracing.Endpoint
		tc.Insecure = e.cfg.Tracing.Insecure
		tc.SampleRate = e.cfg.Tracing.SampleRate
		tp, err := observability.InitTracer(ctx, &tc)
		if err != nil {
			return errors.Internal(err).WithDetail("component", "tracing")
		}
		e.shutdown = append(e.shutdown, tp.Shutdown)
	}

	if e.cfg.Metrics.Enabled {
		mc := observability.DefaultMeterConfig(e.cfg.Name)
		mc.Environment = e.cfg.Environment
		mc.Endpoint = e.cfg.Metrics.Endpoint
		mc.Insecure = e.cfg.Metrics.Insecure
		mc.Interval = e.cfg.Metrics.Interval
		mp, err := observability.InitMeter(ctx, &mc)
		if err != nil {
			return errors.Internal(err).WithDetail("component", "metrics")
		}
		e.shutdown = append(e.shutdown, mp.Shutdown)

		m, err := observability.NewMetrics(observability.Meter(e.cfg.Name))
		if err != nil {
			return errors.Internal(err).WithDetail("component", "metrics")
		}
		e.metrics = m
	}
	return nil
}

func (e *Engine) initRegistry(ctx context.Context, o *options) error {
	var sources []*registry.ModuleSource
	if e.cfg.Registry.IncludeBuiltin {
		sources = append(sources, builtin.Sources()...)
	}

	roots := e.sourceRoots(o.fs)
	if len(roots) > 0 {
		l := loader.New(o.fs,
			loader.WithPatterns(e.cfg.Registry.Patterns...),
			loader.WithLogger(logger.Get(logger.ComponentLoader)),
		)
		loaded, err := l.Load(ctx, roots)
		if err != nil {
			return err
		}
		sources = append(sources, loaded...)
	}
	sources = append(sources, o.sources...)

	reg, err := registry.New(sources,
		registry.WithLogger(logger.Get(logger.ComponentRegistry)),
		registry.WithStrictEngine(e.cfg.Registry.StrictEngine),
	)
	if err != nil {
		return err
	}
	e.registry = reg
	return nil
}

// sourceRoots returns the configured roots. The default root is optional
// and skipped when it does not exist; any other root must exist.
func (e *Engine) sourceRoots(fs afero.Fs) []string {
	roots := make([]string, 0, len(e.cfg.Registry.SourceRoots))
	for _, root := range e.cfg.Registry.SourceRoots {
		if root == config.DefaultSourceRoot {
			if ok, _ := afero.DirExists(fs, root); !ok {
				e.log.Debug("default source root not found, skipping", logger.Fields(logger.FieldRoot, root))
				continue
			}
		}
		roots = append(roots, root)
	}
	return roots
}

func (e *Engine) initOperations(o *options) {
	e.ops = operation.NewRegistry()
	if e.cfg.Registry.IncludeBuiltin {
		builtin.Register(e.ops)
	}
	for _, fn := range o.operations {
		fn(e.ops)
	}

	var mw []operation.Middleware
	if e.cfg.Tracing.Enabled {
		mw = append(mw, operation.WithTracing())
	}
	mw = append(mw,
		operation.WithMetrics(e.metrics),
		operation.WithLogging(logger.Get(logger.ComponentOperation)),
	)
	if e.cfg.Engine.OperationRetries > 0 {
		rc := operation.DefaultRetryConfig()
		rc.MaxAttempts = e.cfg.Engine.OperationRetries + 1
		mw = append(mw, operation.WithRetry(rc))
	}
	if e.cfg.Engine.BreakerFailures > 0 {
		bc := operation.DefaultBreakerConfig()
		bc.MaxFailures = e.cfg.Engine.BreakerFailures
		if e.cfg.Engine.BreakerCooldown > 0 {
			bc.Cooldown = e.cfg.Engine.BreakerCooldown
		}
		log := logger.Get(logger.ComponentOperation)
		bc.OnStateChange = func(block string, from, to operation.State) {
			log.Warn("circuit breaker state changed", logger.Fields(
				logger.FieldBlock, block,
				"from", from.String(),
				"to", to.String(),
			))
		}
		e.breakers = operation.NewBreakers(bc)
		mw = append(mw, operation.WithCircuitBreaker(e.breakers))
	}
	e.ops.Use(mw...)
}

func (e *Engine) initScheduler() {
	cc := concurrency.Config{
		Name:          logger.ComponentEngine,
		MaxConcurrent: e.cfg.Engine.MaxConcurrency,
	}
	if e.metrics != nil {
		m := e.metrics
		cc.OnAcquire = func(string) { m.AddInflight(context.Background(), 1) }
		cc.OnRelease = func(string) { m.AddInflight(context.Background(), -1) }
	}
	e.ctrl = concurrency.New(cc)

	e.scheduler = dag.NewScheduler(e.registry, e.ops,
		dag.WithController(e.ctrl),
		dag.WithMaxDepth(e.cfg.Engine.MaxDepth),
		dag.WithCancelOnFailure(e.cfg.Engine.CancelOnFailure),
		dag.WithOperationTimeout(e.cfg.Engine.OperationTimeout),
		dag.WithLogger(logger.Get(logger.ComponentScheduler)),
		dag.WithMetrics(e.metrics),
		dag.WithTracing(e.cfg.Tracing.Enabled),
	)
}

// Run resolves module/name against versionReq and schedules the graph with
// inputs seeding its entry points. A graph that cannot be resolved fails
// with *errors.ResolutionMiss and a nil context.
func (e *Engine) Run(ctx context.Context, module, name, versionReq string, inputs map[string]cty.Value) (*dag.ExecutionContext, error) {
	h, err := e.registry.ResolveGraph(graph.Ref{Module: module, Name: name, Version: versionReq})
	if err != nil {
		return nil, err
	}
	spec, ok := e.registry.Graph(h)
	if !ok {
		return nil, errors.Internal(fmt.Errorf("graph %s resolved but not found", h))
	}
	e.log.Debug("running graph", logger.Fields(
		logger.FieldModule, h.Module,
		logger.FieldVersion, h.Version,
		logger.FieldGraph, h.Name,
	))
	return e.scheduler.Schedule(ctx, spec, dag.WithInputs(inputs))
}

// RunRef is Run for a "module/name[@requirement]" reference.
func (e *Engine) RunRef(ctx context.Context, ref string, inputs map[string]cty.Value) (*dag.ExecutionContext, error) {
	r, err := graph.ParseRef(ref)
	if err != nil {
		return nil, errors.InvalidInput("graph", err.Error())
	}
	return e.Run(ctx, r.Module, r.Name, r.Version, inputs)
}

// Config returns the engine configuration.
func (e *Engine) Config() *config.Config { return e.cfg }

// Registry returns the loaded registry.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Operations returns the operation library. Operations registered after
// New are visible to later runs.
func (e *Engine) Operations() *operation.Registry { return e.ops }

// Breakers returns the per-block circuit breakers, or nil when circuit
// breaking is disabled.
func (e *Engine) Breakers() *operation.Breakers { return e.breakers }

// Scheduler returns the engine's scheduler.
func (e *Engine) Scheduler() *dag.Scheduler { return e.scheduler }

// Shutdown flushes and stops telemetry providers in reverse start order.
func (e *Engine) Shutdown(ctx context.Context) error {
	var result *multierror.Error
	for i := len(e.shutdown) - 1; i >= 0; i-- {
		if err := e.shutdown[i](ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	e.shutdown = nil
	if err := result.ErrorOrNil(); err != nil {
		e.log.Error("engine shutdown failed", logger.ErrorFields("shutdown", err))
		return err
	}
	e.log.Debug("engine stopped")
	return nil
}
