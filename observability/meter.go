package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/version"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// ServiceName is the name of the service.
	ServiceName string
	// ServiceVersion is the version of the service.
	ServiceVersion string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	// Insecure allows insecure connections (for development).
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// DefaultMeterConfig returns sensible defaults for development.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: version.GetShortVersion(),
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter initializes the OpenTelemetry meter provider.
// Returns a MeterProvider that should be shut down on application exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Status values recorded on engine metrics.
const (
	StatusOK        = "ok"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// Metrics holds the engine's metric instruments.
type Metrics struct {
	nodeTotal         metric.Int64Counter
	nodeDuration      metric.Float64Histogram
	nodeInflight      metric.Int64UpDownCounter
	runTotal          metric.Int64Counter
	runDuration       metric.Float64Histogram
	operationTotal    metric.Int64Counter
	operationDuration metric.Float64Histogram
	errorTotal        metric.Int64Counter
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	nodeTotal, err := meter.Int64Counter("flowkit.node.executions",
		metric.WithDescription("Node executions by kind and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating flowkit.node.executions counter: %w", err)
	}

	nodeDuration, err := meter.Float64Histogram("flowkit.node.duration",
		metric.WithDescription("Duration of node executions in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating flowkit.node.duration histogram: %w", err)
	}

	nodeInflight, err := meter.Int64UpDownCounter("flowkit.node.inflight",
		metric.WithDescription("Block executions currently holding a concurrency slot"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating flowkit.node.inflight gauge: %w", err)
	}

	runTotal, err := meter.Int64Counter("flowkit.run.total",
		metric.WithDescription("Graph runs by status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating flowkit.run.total counter: %w", err)
	}

	runDuration, err := meter.Float64Histogram("flowkit.run.duration",
		metric.WithDescription("Duration of graph runs in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating flowkit.run.duration histogram: %w", err)
	}

	operationTotal, err := meter.Int64Counter("flowkit.operation.total",
		metric.WithDescription("Operation invocations by name and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating flowkit.operation.total counter: %w", err)
	}

	operationDuration, err := meter.Float64Histogram("flowkit.operation.duration",
		metric.WithDescription("Duration of operation invocations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating flowkit.operation.duration histogram: %w", err)
	}

	errorTotal, err := meter.Int64Counter("flowkit.error.total",
		metric.WithDescription("Errors by code and component"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating flowkit.error.total counter: %w", err)
	}

	return &Metrics{
		nodeTotal:         nodeTotal,
		nodeDuration:      nodeDuration,
		nodeInflight:      nodeInflight,
		runTotal:          runTotal,
		runDuration:       runDuration,
		operationTotal:    operationTotal,
		operationDuration: operationDuration,
		errorTotal:        errorTotal,
	}, nil
}

// AddInflight adjusts the in-flight block count by delta.
func (m *Metrics) AddInflight(ctx context.Context, delta int64) {
	m.nodeInflight.Add(ctx, delta)
}

// RecordNode records a completed node execution.
func (m *Metrics) RecordNode(ctx context.Context, kind, status string, duration time.Duration) {
	m.nodeTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrNodeKind, kind),
		attribute.String(AttrStatus, status),
	))
	m.nodeDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(AttrNodeKind, kind),
	))
}

// RecordRun records a completed graph run.
func (m *Metrics) RecordRun(ctx context.Context, graph, status string, depth int, duration time.Duration) {
	m.runTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrGraph, graph),
		attribute.String(AttrStatus, status),
		attribute.Bool("nested", depth > 0),
	))
	m.runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(AttrGraph, graph),
	))
}

// RecordOperation records an operation invocation.
func (m *Metrics) RecordOperation(ctx context.Context, operation, status string, duration time.Duration) {
	m.operationTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrOperation, operation),
		attribute.String(AttrStatus, status),
	))
	m.operationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(AttrOperation, operation),
	))
}

// RecordError records an error by code and component.
func (m *Metrics) RecordError(ctx context.Context, code, component string) {
	m.errorTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrErrorCode, code),
		attribute.String(AttrComponent, component),
	))
}

// StatusFor maps an execution error to a status value.
func StatusFor(err error) string {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusCancelled
	default:
		return StatusError
	}
}
