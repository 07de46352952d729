// Command flowrun loads module sources and runs one graph, printing the
// run outputs as JSON.
//
//	flowrun -graph app/pipeline@^1 -input x=4 -input name='"ada"'
//	flowrun -list
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/zclconf/go-cty/cty"

	"github.com/kbukum/flowkit/config"
	"github.com/kbukum/flowkit/dag"
	"github.com/kbukum/flowkit/engine"
	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/value"
	"github.com/kbukum/flowkit/version"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// inputFlags collects repeated -input key=value flags.
type inputFlags map[string]cty.Value

func (f inputFlags) String() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	return strings.Join(keys, ",")
}

// Set parses key=value. The value is read as JSON and falls back to a
// plain string when it is not valid JSON.
func (f inputFlags) Set(s string) error {
	key, raw, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	if _, dup := f[key]; dup {
		return fmt.Errorf("input %q given twice", key)
	}
	v, err := value.FromJSON([]byte(raw))
	if err != nil {
		v = cty.StringVal(raw)
	}
	f[key] = v
	return nil
}

type rootFlags []string

func (f *rootFlags) String() string { return strings.Join(*f, ",") }

func (f *rootFlags) Set(s string) error {
	*f = append(*f, s)
	return nil
}

type runOutput struct {
	RunID   string                     `json:"run_id"`
	Graph   string                     `json:"graph"`
	Order   []string                   `json:"order"`
	Outputs map[string]json.RawMessage `json:"outputs"`
	Result  json.RawMessage            `json:"result,omitempty"`
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("flowrun", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configFile  = fs.String("config", "", "configuration file")
		ref         = fs.String("graph", "", "graph to run as module/name[@requirement]")
		list        = fs.Bool("list", false, "list loaded modules and exit")
		showVersion = fs.Bool("version", false, "print the version and exit")
		inputs      = inputFlags{}
		roots       rootFlags
	)
	fs.Var(inputs, "input", "entry point value as key=value, repeatable")
	fs.Var(&roots, "root", "module source root, repeatable; replaces the configured roots")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		_, _ = fmt.Fprintln(stdout, version.GetShortVersion())
		return 0
	}
	if *ref == "" && !*list {
		_, _ = fmt.Fprintln(stderr, "flowrun: -graph or -list is required")
		fs.Usage()
		return 2
	}

	var opts []config.LoaderOption
	if *configFile != "" {
		opts = append(opts, config.WithConfigFile(*configFile))
	}
	cfg, err := config.Load(config.DefaultName, opts...)
	if err != nil {
		return fail(stderr, err)
	}
	if len(roots) > 0 {
		cfg.Registry.SourceRoots = roots
	}

	eng, err := engine.New(ctx, cfg)
	if err != nil {
		return fail(stderr, err)
	}
	defer func() { _ = eng.Shutdown(context.Background()) }()

	if *list {
		return listModules(eng, stdout)
	}

	ctx, cancel := signalContext(ctx)
	defer cancel()

	ec, err := eng.RunRef(ctx, *ref, inputs)
	if err != nil {
		return fail(stderr, err)
	}
	if err := writeResult(stdout, ec); err != nil {
		return fail(stderr, err)
	}
	return 0
}

// signalContext cancels the returned context on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, cancelling run", logger.Fields("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

func listModules(eng *engine.Engine, w io.Writer) int {
	reg := eng.Registry()
	for _, m := range reg.ListModules() {
		_, _ = fmt.Fprintf(w, "%s %s\n", m, strings.Join(reg.ModuleVersions(m), " "))
		for _, g := range reg.ListGraphs(m) {
			_, _ = fmt.Fprintf(w, "  graph %s\n", g)
		}
		for _, mc := range reg.ListMacros(m) {
			_, _ = fmt.Fprintf(w, "  macro %s\n", mc)
		}
		for _, b := range reg.ListBlocks(m) {
			_, _ = fmt.Fprintf(w, "  block %s\n", b)
		}
	}
	return 0
}

func writeResult(w io.Writer, ec *dag.ExecutionContext) error {
	out := runOutput{
		RunID:   ec.RunID,
		Graph:   ec.Graph,
		Order:   ec.Order,
		Outputs: make(map[string]json.RawMessage, len(ec.Outputs)),
	}
	for id, v := range ec.Outputs {
		b, err := value.JSON(v)
		if err != nil {
			return errors.Internal(fmt.Errorf("output %q: %w", id, err))
		}
		out.Outputs[id] = b
	}
	if result, ok := ec.Result(); ok {
		b, err := value.JSON(result)
		if err != nil {
			return errors.Internal(fmt.Errorf("result: %w", err))
		}
		out.Result = b
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func fail(w io.Writer, err error) int {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(errors.Describe(err))
	return 1
}
