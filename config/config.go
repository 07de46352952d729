package config

import (
	"fmt"
	"time"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/validation"
)

// Defaults applied by Config.ApplyDefaults.
const (
	DefaultName           = "flowrun"
	DefaultEnvironment    = "development"
	DefaultMaxConcurrency = 8
	DefaultMaxDepth       = 16
	DefaultSourceRoot     = "./modules"
	DefaultOTLPEndpoint   = "localhost:4318"
	DefaultMetricInterval = 15 * time.Second
)

// Config is the engine configuration.
type Config struct {
	Name        string         `yaml:"name" mapstructure:"name" validate:"required"`
	Environment string         `yaml:"environment" mapstructure:"environment" validate:"oneof=development staging production"`
	Engine      EngineConfig   `yaml:"engine" mapstructure:"engine"`
	Registry    RegistryConfig `yaml:"registry" mapstructure:"registry"`
	Logging     logger.Config  `yaml:"logging" mapstructure:"logging"`
	Tracing     TracingConfig  `yaml:"tracing" mapstructure:"tracing"`
	Metrics     MetricsConfig  `yaml:"metrics" mapstructure:"metrics"`
}

// EngineConfig tunes the scheduler.
type EngineConfig struct {
	// MaxConcurrency is the number of Concurrency Controller slots.
	MaxConcurrency int `yaml:"max_concurrency" mapstructure:"max_concurrency" validate:"min=1"`
	// MaxDepth bounds nested Subgraph and Macro runs.
	MaxDepth        int  `yaml:"max_depth" mapstructure:"max_depth" validate:"min=1"`
	CancelOnFailure bool `yaml:"cancel_on_failure" mapstructure:"cancel_on_failure"`
	// OperationTimeout bounds a single block invocation. Zero disables it.
	OperationTimeout time.Duration `yaml:"operation_timeout" mapstructure:"operation_timeout" validate:"min=0"`
	// OperationRetries retries invocations of pure blocks that fail with
	// a retryable error. Zero disables retries.
	OperationRetries int `yaml:"operation_retries" mapstructure:"operation_retries" validate:"min=0"`
	// BreakerFailures opens a block's circuit after that many consecutive
	// failures. Zero disables circuit breaking.
	BreakerFailures int           `yaml:"breaker_failures" mapstructure:"breaker_failures" validate:"min=0"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown" mapstructure:"breaker_cooldown" validate:"min=0"`
}

// RegistryConfig controls where modules are loaded from.
type RegistryConfig struct {
	SourceRoots    []string `yaml:"source_roots" mapstructure:"source_roots"`
	Patterns       []string `yaml:"patterns" mapstructure:"patterns"`
	IncludeBuiltin bool     `yaml:"include_builtin" mapstructure:"include_builtin"`
	StrictEngine   bool     `yaml:"strict_engine" mapstructure:"strict_engine"`
}

// TracingConfig configures the OTLP trace exporter.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure   bool    `yaml:"insecure" mapstructure:"insecure"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate" validate:"min=0,max=1"`
}

// MetricsConfig configures the OTLP metric exporter.
type MetricsConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Endpoint string        `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure bool          `yaml:"insecure" mapstructure:"insecure"`
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

// knownKeys lists the config keys environment variables may set even when
// the config file does not mention them.
var knownKeys = map[string]struct{}{
	"name":                     {},
	"environment":              {},
	"engine.max_concurrency":   {},
	"engine.max_depth":         {},
	"engine.cancel_on_failure": {},
	"engine.operation_timeout": {},
	"engine.operation_retries": {},
	"engine.breaker_failures":  {},
	"engine.breaker_cooldown":  {},
	"registry.source_roots":    {},
	"registry.patterns":        {},
	"registry.include_builtin": {},
	"registry.strict_engine":   {},
	"logging.level":            {},
	"logging.format":           {},
	"logging.output":           {},
	"logging.no_color":         {},
	"tracing.enabled":          {},
	"tracing.endpoint":         {},
	"tracing.insecure":         {},
	"tracing.sample_rate":      {},
	"metrics.enabled":          {},
	"metrics.endpoint":         {},
	"metrics.insecure":         {},
	"metrics.interval":         {},
}

// Default returns a Config with every default applied.
// IncludeBuiltin is only defaulted here; ApplyDefaults cannot tell an
// explicit false from an unset field.
func Default() *Config {
	cfg := &Config{Registry: RegistryConfig{IncludeBuiltin: true}}
	cfg.ApplyDefaults()
	return cfg
}

// Load reads the configuration for serviceName on top of Default, then
// applies defaults and validates.
func Load(serviceName string, opts ...LoaderOption) (*Config, error) {
	cfg := Default()
	if err := LoadConfig(serviceName, cfg, opts...); err != nil {
		return nil, errors.New(errors.ErrCodeLoadFailed, "failed to load configuration").WithCause(err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.Environment == "" {
		c.Environment = DefaultEnvironment
	}
	c.Engine.ApplyDefaults()
	c.Registry.ApplyDefaults()
	c.Logging.ApplyDefaults()
	c.Tracing.ApplyDefaults()
	c.Metrics.ApplyDefaults()
}

// Validate checks struct tags and the nested sections.
func (c *Config) Validate() error {
	v := validation.New("config")
	v.Merge("", validation.ValidateAs("config", c))
	v.Merge("logging", c.Logging.Validate())
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		v.AddError("tracing.endpoint", "is required when tracing is enabled")
	}
	if c.Metrics.Enabled && c.Metrics.Interval <= 0 {
		v.AddError("metrics.interval", fmt.Sprintf("must be positive when metrics are enabled (got %s)", c.Metrics.Interval))
	}
	return v.Validate()
}

// ApplyDefaults fills zero values with defaults.
func (c *EngineConfig) ApplyDefaults() {
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}
	if c.MaxDepth == 0 {
		c.MaxDepth = DefaultMaxDepth
	}
}

// ApplyDefaults fills zero values with defaults.
func (c *RegistryConfig) ApplyDefaults() {
	if len(c.SourceRoots) == 0 {
		c.SourceRoots = []string{DefaultSourceRoot}
	}
}

// ApplyDefaults fills zero values with defaults.
func (c *TracingConfig) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultOTLPEndpoint
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
}

// ApplyDefaults fills zero values with defaults.
func (c *MetricsConfig) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultOTLPEndpoint
	}
	if c.Interval == 0 {
		c.Interval = DefaultMetricInterval
	}
}
