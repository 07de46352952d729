package dag

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zclconf/go-cty/cty"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/flowkit/concurrency"
	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/graph"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/observability"
	"github.com/kbukum/flowkit/operation"
	"github.com/kbukum/flowkit/registry"
	"github.com/kbukum/flowkit/validation"
)

// DefaultMaxDepth bounds nested Subgraph and Macro runs.
const DefaultMaxDepth = 16

// Scheduler runs GraphSpecs level by level. A Scheduler is safe for
// concurrent use; every run gets its own ExecutionContext.
type Scheduler struct {
	registry        *registry.Registry
	lib             operation.Library
	ctrl            *concurrency.Controller
	maxDepth        int
	cancelOnFailure bool
	opTimeout       time.Duration
	log             *logger.Logger
	metrics         *observability.Metrics
	tracing         bool

	block    executor
	subgraph executor
	macro    executor
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithController sets the controller that admits block executions.
func WithController(c *concurrency.Controller) Option {
	return func(s *Scheduler) { s.ctrl = c }
}

// WithMaxDepth sets the nesting limit for Subgraph and Macro runs.
func WithMaxDepth(depth int) Option {
	return func(s *Scheduler) { s.maxDepth = depth }
}

// WithCancelOnFailure cancels a level's remaining nodes once one of them
// fails. Operations must honor ctx for this to have an effect.
func WithCancelOnFailure(enabled bool) Option {
	return func(s *Scheduler) { s.cancelOnFailure = enabled }
}

// WithLogger sets the scheduler logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithMetrics records run and node metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithTracing creates a span per run and per node.
func WithTracing(enabled bool) Option {
	return func(s *Scheduler) { s.tracing = enabled }
}

// WithOperationTimeout bounds every block invocation. Zero disables it.
func WithOperationTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.opTimeout = d }
}

// NewScheduler creates a scheduler resolving nodes against reg and block
// operations against lib.
func NewScheduler(reg *registry.Registry, lib operation.Library, opts ...Option) *Scheduler {
	s := &Scheduler{
		registry: reg,
		lib:      lib,
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ctrl == nil {
		s.ctrl = concurrency.New(concurrency.DefaultConfig(logger.ComponentScheduler))
	}
	if s.log == nil {
		s.log = logger.Get(logger.ComponentScheduler)
	}
	if s.maxDepth <= 0 {
		s.maxDepth = DefaultMaxDepth
	}
	if s.opTimeout > 0 {
		s.lib = &timeoutLibrary{inner: s.lib, timeout: operation.WithTimeout(s.opTimeout)}
	}

	s.block = s.instrument(&blockExecutor{s: s})
	s.subgraph = s.instrument(&subgraphExecutor{s: s})
	s.macro = s.instrument(&macroExecutor{s: s})
	return s
}

// Registry returns the registry nodes are resolved against.
func (s *Scheduler) Registry() *registry.Registry { return s.registry }

// Controller returns the controller admitting block executions.
func (s *Scheduler) Controller() *concurrency.Controller { return s.ctrl }

// MaxDepth returns the nesting limit.
func (s *Scheduler) MaxDepth() int { return s.maxDepth }

// RunOption configures a single Schedule call.
type RunOption func(*runOptions)

type runOptions struct {
	inputs map[string]cty.Value
	runID  string
}

// WithInputs seeds the run's entry points.
func WithInputs(inputs map[string]cty.Value) RunOption {
	return func(o *runOptions) { o.inputs = inputs }
}

// WithRunID sets the run id instead of generating one. It must be a UUID.
func WithRunID(id string) RunOption {
	return func(o *runOptions) { o.runID = id }
}

// Schedule runs spec to completion or to its first failing level. The
// returned context is never nil: on failure it holds every level committed
// before the failure, and the error is a *errors.SchedulingError.
//
// Called from inside an operation of another run, Schedule continues that
// run's nesting depth and run id.
func (s *Scheduler) Schedule(ctx context.Context, spec *graph.GraphSpec, opts ...RunOption) (*ExecutionContext, error) {
	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}

	f := frame{}
	if parent, ok := frameFrom(ctx); ok {
		f = parent.nested(spec.Name, false)
	}
	switch {
	case ro.runID != "":
		if err := validation.New("run").RequiredUUID("run_id", ro.runID).Validate(); err != nil {
			return newExecutionContext(ro.runID, spec, f.depth, ro.inputs),
				&errors.SchedulingError{Graph: spec.Name, RunID: ro.runID, Cause: err}
		}
		f.runID = ro.runID
	case f.runID == "":
		f.runID = uuid.NewString()
	}

	if err := s.checkDepth(f); err != nil {
		return newExecutionContext(f.runID, spec, f.depth, ro.inputs),
			&errors.SchedulingError{Graph: spec.Name, RunID: f.runID, Cause: err}
	}
	return s.run(ctx, spec, ro.inputs, f)
}

// run executes spec under frame f and records run telemetry.
func (s *Scheduler) run(ctx context.Context, spec *graph.GraphSpec, inputs map[string]cty.Value, f frame) (*ExecutionContext, error) {
	start := time.Now()
	ctx = logger.ContextWithRun(ctx, f.runID, spec.Name)
	ctx = logger.ContextWithDepth(ctx, f.depth)

	if s.tracing {
		var span trace.Span
		ctx, span = observability.StartSpan(ctx, observability.SpanSchedule)
		defer span.End()
		ctx = withSpanIDs(ctx, span)
		observability.SetSpanAttribute(ctx, observability.AttrRunID, f.runID)
		observability.SetSpanAttribute(ctx, observability.AttrGraph, spec.Name)
		observability.SetSpanAttribute(ctx, observability.AttrDepth, f.depth)
		observability.SetSpanAttribute(ctx, observability.AttrNodeCount, len(spec.Nodes))
	}

	ec := newExecutionContext(f.runID, spec, f.depth, inputs)
	err := s.execute(ctx, spec, ec, f)
	duration := time.Since(start)

	if s.tracing {
		observability.SetSpanAttribute(ctx, observability.AttrLevelCount, len(ec.Levels))
		if err != nil {
			observability.SetSpanError(ctx, err)
		}
	}
	if s.metrics != nil {
		s.metrics.RecordRun(ctx, spec.Name, observability.StatusFor(err), f.depth, duration)
		if err != nil && f.depth == 0 {
			s.metrics.RecordError(ctx, string(errors.RootCode(err)), logger.ComponentScheduler)
		}
	}

	log := s.log.WithContext(ctx)
	fields := logger.Fields(
		logger.FieldDuration, duration.Milliseconds(),
		"nodes", len(ec.Order),
		"levels", len(ec.Levels),
	)
	switch {
	case err != nil:
		log.Error("graph run failed", logger.MergeWithError(fields, err))
	case f.depth > 0:
		log.Debug("nested graph run completed", fields)
	default:
		log.Info("graph run completed", fields)
	}
	return ec, err
}

func (s *Scheduler) execute(ctx context.Context, spec *graph.GraphSpec, ec *ExecutionContext, f frame) error {
	fail := func(cause error) error {
		return &errors.SchedulingError{Graph: spec.Name, RunID: ec.RunID, Cause: cause}
	}

	if err := spec.Validate(); err != nil {
		return fail(err)
	}
	if err := checkInputs(spec, ec.Inputs); err != nil {
		return fail(err)
	}

	deps := BuildDependencyGraph(spec)
	order, err := TopologicalSort(deps, spec.NodeIDs())
	if err != nil {
		var cycle *errors.CycleError
		if stderrors.As(err, &cycle) {
			cycle.Graph = spec.Name
		}
		return fail(err)
	}
	ec.Levels = AssignLevels(order, deps)

	for i, level := range ec.Levels {
		if err := ctx.Err(); err != nil {
			return fail(errors.Cancelled(err))
		}
		if err := s.runLevel(ctx, spec, ec, f, i, level); err != nil {
			return fail(err)
		}
	}
	return nil
}

// checkInputs requires a value for every entry point and nothing else.
func checkInputs(spec *graph.GraphSpec, inputs map[string]cty.Value) error {
	for _, entry := range spec.Entries {
		if _, ok := inputs[entry]; !ok {
			return errors.InvalidInput(entry, "no value for entry point")
		}
	}
	for name := range inputs {
		if !spec.IsEntry(name) {
			return errors.InvalidInput(name, "not an entry point of the graph")
		}
	}
	return nil
}

type outcome struct {
	value    cty.Value
	err      error
	duration time.Duration
}

// runLevel dispatches every node of a level concurrently and joins them.
// Outputs are committed only if all of them succeed.
func (s *Scheduler) runLevel(ctx context.Context, spec *graph.GraphSpec, ec *ExecutionContext, f frame, index int, level []string) error {
	snap := ec.Snapshot()

	levelCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make([]outcome, len(level))
	var wg sync.WaitGroup
	for i, id := range level {
		node, _ := spec.Node(id)
		wg.Add(1)
		go func(i int, node *graph.Node) {
			defer wg.Done()
			start := time.Now()
			v, err := s.dispatch(levelCtx, &nodeCall{node: node, level: index, snapshot: snap, frame: f})
			outcomes[i] = outcome{value: v, err: err, duration: time.Since(start)}
			if err != nil && s.cancelOnFailure {
				cancel()
			}
		}(i, node)
	}
	wg.Wait()

	failed := firstFailure(outcomes, ctx)
	for i, id := range level {
		node, _ := spec.Node(id)
		report := NodeReport{
			NodeID:   id,
			Kind:     node.Kind,
			Level:    index,
			Status:   StatusCompleted,
			Duration: outcomes[i].duration,
			Err:      outcomes[i].err,
		}
		switch {
		case outcomes[i].err != nil:
			report.Status = StatusFailed
		case failed >= 0:
			report.Status = StatusDiscarded
		}
		ec.Reports = append(ec.Reports, report)
	}
	if failed >= 0 {
		return outcomes[failed].err
	}

	for i, id := range level {
		ec.Outputs[id] = outcomes[i].value
		ec.Order = append(ec.Order, id)
	}
	return nil
}

// firstFailure returns the index of the first failed outcome in level
// order, or -1. Failures caused only by the level's own cancellation rank
// behind the failure that triggered it.
func firstFailure(outcomes []outcome, parent context.Context) int {
	first := -1
	for i := range outcomes {
		err := outcomes[i].err
		if err == nil {
			continue
		}
		if first < 0 {
			first = i
		}
		if parent.Err() != nil || !stderrors.Is(err, context.Canceled) {
			return i
		}
	}
	return first
}

// dispatch runs one node and tags any failure with the node's id. A
// panicking executor fails its node instead of the process.
func (s *Scheduler) dispatch(ctx context.Context, call *nodeCall) (v cty.Value, err error) {
	node := call.node
	defer func() {
		if r := recover(); r != nil {
			v = cty.NilVal
			err = &errors.NodeExecutionError{
				NodeID: node.ID,
				Kind:   node.Kind.String(),
				Cause:  errors.Internal(fmt.Errorf("panic: %v", r)),
			}
		}
	}()

	args, err := gatherArgs(node, call.snapshot)
	if err != nil {
		return cty.NilVal, &errors.NodeExecutionError{NodeID: node.ID, Kind: node.Kind.String(), Cause: err}
	}
	call.args = args

	exec, err := s.executorFor(node.Kind)
	if err != nil {
		return cty.NilVal, &errors.NodeExecutionError{NodeID: node.ID, Kind: node.Kind.String(), Cause: err}
	}

	ctx = logger.ContextWithNode(withFrame(ctx, call.frame), node.ID)
	v, err = exec.execute(ctx, call)
	if err != nil {
		return cty.NilVal, &errors.NodeExecutionError{NodeID: node.ID, Kind: node.Kind.String(), Cause: err}
	}
	return v, nil
}

// gatherArgs resolves a node's inputs, in order, against the snapshot.
func gatherArgs(node *graph.Node, snap Snapshot) ([]cty.Value, error) {
	args := make([]cty.Value, len(node.Inputs))
	for i, in := range node.Inputs {
		if !in.IsRef() {
			args[i] = in.Value()
			continue
		}
		v, ok := snap.Get(in.Source())
		if !ok {
			return nil, errors.InvalidInput(fmt.Sprintf("inputs[%d]", i),
				fmt.Sprintf("no value for reference %q", in.Source()))
		}
		args[i] = v
	}
	return args, nil
}

// executorFor selects the executor for a node kind.
func (s *Scheduler) executorFor(kind graph.NodeKind) (executor, error) {
	switch kind {
	case graph.KindBlock:
		return s.block, nil
	case graph.KindSubgraph:
		return s.subgraph, nil
	case graph.KindMacro:
		return s.macro, nil
	default:
		return nil, errors.New(errors.ErrCodeInternal, fmt.Sprintf("no executor for node kind %q", kind))
	}
}

func (s *Scheduler) checkDepth(f frame) error {
	if f.depth > s.maxDepth {
		return &errors.RecursionError{Reason: errors.RecursionDepth, Limit: s.maxDepth, Chain: f.chain}
	}
	return nil
}

// frame describes where a run sits in a nesting of runs.
type frame struct {
	runID string
	depth int
	// chain lists the graphs and macros entered to reach this run.
	chain []string
	// macros lists the macro handles being expanded around this run.
	macros []string
}

func (f frame) nested(name string, macro bool) frame {
	n := frame{
		runID:  f.runID,
		depth:  f.depth + 1,
		chain:  append(append([]string(nil), f.chain...), name),
		macros: f.macros,
	}
	if macro {
		n.macros = append(append([]string(nil), f.macros...), name)
	}
	return n
}

func (f frame) expanding(macro string) bool {
	for _, m := range f.macros {
		if m == macro {
			return true
		}
	}
	return false
}

type frameKey struct{}

func withFrame(ctx context.Context, f frame) context.Context {
	return context.WithValue(ctx, frameKey{}, f)
}

func frameFrom(ctx context.Context) (frame, bool) {
	f, ok := ctx.Value(frameKey{}).(frame)
	return f, ok
}

// timeoutLibrary wraps every resolved operation with a deadline.
type timeoutLibrary struct {
	inner   operation.Library
	timeout operation.Middleware
}

func (l *timeoutLibrary) Resolve(h registry.BlockHandle) (operation.Operation, bool) {
	op, ok := l.inner.Resolve(h)
	if !ok {
		return nil, false
	}
	return l.timeout(op), true
}
