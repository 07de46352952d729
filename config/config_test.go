package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func memFS(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range files {
		if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	return fs
}

func TestConfigApplyDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Name != DefaultName {
		t.Errorf("expected name %q, got %q", DefaultName, cfg.Name)
	}
	if cfg.Environment != "development" {
		t.Errorf("expected 'development', got %q", cfg.Environment)
	}
	if cfg.Engine.MaxConcurrency != 8 || cfg.Engine.MaxDepth != 16 {
		t.Errorf("unexpected engine defaults: %+v", cfg.Engine)
	}
	if len(cfg.Registry.SourceRoots) != 1 || cfg.Registry.SourceRoots[0] != "./modules" {
		t.Errorf("unexpected source roots: %v", cfg.Registry.SourceRoots)
	}
	if !cfg.Registry.IncludeBuiltin {
		t.Error("expected builtins included by default")
	}
	if cfg.Metrics.Interval != 15*time.Second {
		t.Errorf("expected 15s interval, got %s", cfg.Metrics.Interval)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"bad environment", func(c *Config) { c.Environment = "qa" }, "environment"},
		{"zero concurrency", func(c *Config) { c.Engine.MaxConcurrency = -1 }, "engine.max_concurrency"},
		{"zero depth", func(c *Config) { c.Engine.MaxDepth = -2 }, "engine.max_depth"},
		{"sample rate", func(c *Config) { c.Tracing.SampleRate = 2 }, "tracing.sample_rate"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging"},
		{"tracing endpoint", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Endpoint = "" }, "tracing.endpoint"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.errMsg) {
				t.Errorf("expected error containing %q, got %q", tc.errMsg, err.Error())
			}
		})
	}
}

func TestLoadConfigWithYAML(t *testing.T) {
	fs := memFS(t, map[string]string{
		"./flowrun.yml": `
name: pipeline-runner
environment: staging
engine:
  max_concurrency: 2
  operation_timeout: 250ms
registry:
  source_roots: ["./defs", "./vendor/defs"]
  include_builtin: false
logging:
  level: debug
  format: json
`,
	})

	cfg := Default()
	if err := LoadConfig("flowrun", cfg, WithFileSystem(fs)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Name != "pipeline-runner" || cfg.Environment != "staging" {
		t.Errorf("unexpected base fields: %q %q", cfg.Name, cfg.Environment)
	}
	if cfg.Engine.MaxConcurrency != 2 {
		t.Errorf("expected max_concurrency 2, got %d", cfg.Engine.MaxConcurrency)
	}
	if cfg.Engine.MaxDepth != 16 {
		t.Errorf("expected untouched max_depth 16, got %d", cfg.Engine.MaxDepth)
	}
	if cfg.Engine.OperationTimeout != 250*time.Millisecond {
		t.Errorf("expected 250ms timeout, got %s", cfg.Engine.OperationTimeout)
	}
	if len(cfg.Registry.SourceRoots) != 2 || cfg.Registry.SourceRoots[1] != "./vendor/defs" {
		t.Errorf("unexpected source roots %v", cfg.Registry.SourceRoots)
	}
	if cfg.Registry.IncludeBuiltin {
		t.Error("expected include_builtin false from file")
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging %+v", cfg.Logging)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := Default()
	err := LoadConfig("flowrun", cfg, WithFileSystem(fs), WithConfigFile("./nope.yml"))
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
	if !strings.Contains(err.Error(), "nope.yml") {
		t.Errorf("expected path in error, got %q", err.Error())
	}
}

func TestLoadConfigNoFileKeepsDefaults(t *testing.T) {
	cfg, err := Load("flowrun", WithFileSystem(afero.NewMemMapFs()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.MaxConcurrency != DefaultMaxConcurrency {
		t.Errorf("expected default concurrency, got %d", cfg.Engine.MaxConcurrency)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("FLOWRUN_ENGINE_MAX_CONCURRENCY", "3")
	t.Setenv("FLOWRUN_ENGINE_CANCEL_ON_FAILURE", "true")

	fs := memFS(t, map[string]string{
		"./config/flowrun.yaml": "engine:\n  max_concurrency: 5\n",
	})
	cfg, err := Load("flowrun", WithFileSystem(fs))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.MaxConcurrency != 3 {
		t.Errorf("expected env to win with 3, got %d", cfg.Engine.MaxConcurrency)
	}
	if !cfg.Engine.CancelOnFailure {
		t.Error("expected cancel_on_failure from env")
	}
}

func TestLoadConfigEnvFile(t *testing.T) {
	const key = "FLOWRUN_ENGINE_MAX_DEPTH"
	os.Unsetenv(key)
	t.Cleanup(func() { os.Unsetenv(key) })

	fs := memFS(t, map[string]string{
		"./.env": key + "=4\n",
	})
	cfg, err := Load("flowrun", WithFileSystem(fs))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.MaxDepth != 4 {
		t.Errorf("expected max_depth 4 from .env, got %d", cfg.Engine.MaxDepth)
	}
}

func TestLoadInvalidConfig(t *testing.T) {
	fs := memFS(t, map[string]string{
		"./flowrun.yml": "environment: moon\n",
	})
	if _, err := Load("flowrun", WithFileSystem(fs)); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestResolverSearchOrder(t *testing.T) {
	fs := memFS(t, map[string]string{
		"./config.yml":         "name: fallback\n",
		"./config/flowrun.yml": "name: specific\n",
		"./cmd/flowrun/.env":   "A=1\n",
		"./.env":               "A=2\n",
	})

	r := &Resolver{Fs: fs}
	files := r.ResolveFiles("flowrun", LoaderConfig{})
	if files.ConfigFile != "./config/flowrun.yml" {
		t.Errorf("expected ./config/flowrun.yml, got %q", files.ConfigFile)
	}
	if files.EnvFile != "./cmd/flowrun/.env" {
		t.Errorf("expected ./cmd/flowrun/.env, got %q", files.EnvFile)
	}

	explicit := r.ResolveFiles("flowrun", LoaderConfig{ConfigFile: "/etc/x.yml", EnvFile: "/etc/x.env"})
	if explicit.ConfigFile != "/etc/x.yml" || explicit.EnvFile != "/etc/x.env" {
		t.Errorf("expected explicit paths kept, got %+v", explicit)
	}
}

func TestLoaderOptions(t *testing.T) {
	fs := afero.NewMemMapFs()
	var lc LoaderConfig
	for _, opt := range []LoaderOption{
		WithFileSystem(fs),
		WithConfigFile("/path/to/config.yml"),
		WithEnvFile("/path/to/.env"),
		WithEnvPrefix("APP"),
	} {
		opt(&lc)
	}
	if lc.Fs != fs {
		t.Error("expected custom filesystem")
	}
	if lc.ConfigFile != "/path/to/config.yml" || lc.EnvFile != "/path/to/.env" || lc.EnvPrefix != "APP" {
		t.Errorf("unexpected loader config %+v", lc)
	}
}

func TestGenerateEnvKeyVariants(t *testing.T) {
	got := generateEnvKeyVariants("ENGINE_MAX_CONCURRENCY")
	want := map[string]bool{
		"engine_max_concurrency": true,
		"engine.max.concurrency": true,
		"engine.max_concurrency": true,
	}
	for _, v := range got {
		delete(want, v)
	}
	if len(want) != 0 {
		t.Errorf("missing variants %v in %v", want, got)
	}
	if single := generateEnvKeyVariants("NAME"); len(single) != 1 || single[0] != "name" {
		t.Errorf("expected [name], got %v", single)
	}
}

func TestEnvPrefix(t *testing.T) {
	if got := envPrefix("flow-run.dev"); got != "FLOW_RUN_DEV" {
		t.Errorf("expected FLOW_RUN_DEV, got %q", got)
	}
}
