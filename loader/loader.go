package loader

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/registry"
)

// Manifest file names.
const (
	ManifestHCL     = "module.hcl"
	ManifestHCLJSON = "module.hcl.json"
	ManifestYAML    = "module.yaml"
	ManifestYML     = "module.yml"
)

// DefaultPatterns are the glob patterns used to discover manifests below
// a source root.
var DefaultPatterns = []string{
	"**/" + ManifestHCL,
	"**/" + ManifestHCLJSON,
	"**/" + ManifestYAML,
	"**/" + ManifestYML,
}

// Loader discovers and parses module sources on a filesystem.
type Loader struct {
	fs       afero.Fs
	patterns []string
	log      *logger.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithPatterns replaces the manifest discovery patterns.
func WithPatterns(patterns ...string) Option {
	return func(l *Loader) {
		if len(patterns) > 0 {
			l.patterns = patterns
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(l *Loader) {
		if log != nil {
			l.log = log
		}
	}
}

// New creates a Loader reading from fs. A nil fs reads the OS filesystem.
func New(fs afero.Fs, opts ...Option) *Loader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	l := &Loader{
		fs:       fs,
		patterns: DefaultPatterns,
		log:      logger.Get(logger.ComponentLoader),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var _ registry.Loader = (*Loader)(nil)

// Load reads every module found below roots, in root order and then in
// manifest path order. The first failing root aborts the load.
func (l *Loader) Load(ctx context.Context, roots []string) ([]*registry.ModuleSource, error) {
	var sources []*registry.ModuleSource
	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		found, err := l.loadRoot(ctx, root)
		if err != nil {
			l.log.WithError(err).Error("source root failed", logger.Fields(logger.FieldRoot, root))
			return nil, err
		}
		l.log.Info("source root loaded", logger.Fields(
			logger.FieldRoot, root,
			"modules", len(found),
			logger.FieldDuration, time.Since(start).Milliseconds(),
		))
		sources = append(sources, found...)
	}
	return sources, nil
}

func (l *Loader) loadRoot(ctx context.Context, root string) ([]*registry.ModuleSource, error) {
	ok, err := afero.DirExists(l.fs, root)
	if err != nil {
		return nil, &errors.LoadError{Root: root, Cause: err}
	}
	if !ok {
		return nil, &errors.LoadError{Root: root, Cause: fmt.Errorf("not a directory")}
	}

	base := afero.NewBasePathFs(l.fs, root)
	manifests, err := l.discover(base)
	if err != nil {
		return nil, &errors.LoadError{Root: root, Cause: err}
	}

	var (
		sources []*registry.ModuleSource
		failed  *multierror.Error
	)
	for _, manifest := range manifests {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		origin := filepath.Join(root, filepath.FromSlash(manifest))
		l.log.Debug("reading manifest", logger.Fields(logger.FieldPath, origin))

		src, err := l.loadManifest(base, manifest)
		if err != nil {
			failed = multierror.Append(failed, &errors.LoadError{Root: root, Path: origin, Cause: err})
			continue
		}
		src.Origin = origin
		sources = append(sources, src)
	}

	switch {
	case failed == nil:
		return sources, nil
	case len(failed.Errors) == 1:
		return nil, failed.Errors[0]
	default:
		failed.ErrorFormat = listFormat
		return nil, &errors.LoadError{Root: root, Cause: failed}
	}
}

// discover returns manifest paths relative to the root, sorted and
// deduplicated. A directory holding more than one manifest keeps the
// first in DefaultPatterns order.
func (l *Loader) discover(base afero.Fs) ([]string, error) {
	fsys := afero.NewIOFS(base)
	byDir := make(map[string]string)
	for _, pattern := range l.patterns {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			dir := path.Dir(m)
			if prev, ok := byDir[dir]; ok && manifestRank(prev) <= manifestRank(m) {
				continue
			}
			byDir[dir] = m
		}
	}

	manifests := make([]string, 0, len(byDir))
	for _, m := range byDir {
		manifests = append(manifests, m)
	}
	sort.Strings(manifests)
	return manifests, nil
}

func manifestRank(p string) int {
	switch path.Base(p) {
	case ManifestHCL:
		return 0
	case ManifestHCLJSON:
		return 1
	case ManifestYAML:
		return 2
	case ManifestYML:
		return 3
	default:
		return 4
	}
}

func (l *Loader) loadManifest(base afero.Fs, manifest string) (*registry.ModuleSource, error) {
	switch name := path.Base(manifest); {
	case name == ManifestYAML || name == ManifestYML || isYAML(name):
		return loadYAMLModule(base, manifest)
	case name == ManifestHCL || name == ManifestHCLJSON || isHCL(name):
		return loadHCLModule(base, manifest)
	default:
		return nil, fmt.Errorf("unsupported manifest %q", name)
	}
}

func isHCL(name string) bool {
	return strings.HasSuffix(name, ".hcl") || strings.HasSuffix(name, ".hcl.json")
}

func isYAML(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

// listFormat renders aggregated file errors one per line.
func listFormat(errs []error) string {
	lines := make([]string, len(errs))
	for i, err := range errs {
		lines[i] = "  - " + err.Error()
	}
	return fmt.Sprintf("%d files failed:\n%s", len(errs), strings.Join(lines, "\n"))
}
