package operation

import (
	"bytes"
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/observability"
	"github.com/kbukum/flowkit/registry"
)

var addHandle = registry.BlockHandle{Module: "std.math", Version: "1.0.0", Name: "add"}

var addDef = &registry.BlockDef{Name: "add", Purity: registry.PurityPure, Determinism: registry.Deterministic}

func invocation(args ...cty.Value) Invocation {
	return Invocation{RunID: "run-1", NodeID: "n", Block: addHandle, Def: addDef, Args: args}
}

func constant(name string, v cty.Value) Operation {
	return Func(name, func(context.Context, Invocation) (cty.Value, error) { return v, nil })
}

func TestFromFunction(t *testing.T) {
	op := FromFunction("add", stdlib.AddFunc)
	assert.Equal(t, "add", op.Name())

	got, err := op.Execute(context.Background(), invocation(cty.NumberIntVal(2), cty.NumberIntVal(3)))
	require.NoError(t, err)
	assert.True(t, got.RawEquals(cty.NumberIntVal(5)))

	_, err = op.Execute(context.Background(), invocation(cty.NumberIntVal(2)))
	assert.Error(t, err)
}

func TestRegistry_Resolve(t *testing.T) {
	r := NewRegistry()
	r.Register("std.math", "add", constant("generic", cty.NumberIntVal(1)))
	r.RegisterVersion("std.math", "2.0.0", "add", constant("v2", cty.NumberIntVal(2)))

	op, ok := r.Resolve(addHandle)
	require.True(t, ok)
	assert.Equal(t, "generic", op.Name())

	op, ok = r.Resolve(registry.BlockHandle{Module: "std.math", Version: "2.0.0", Name: "add"})
	require.True(t, ok)
	assert.Equal(t, "v2", op.Name())

	_, ok = r.Resolve(registry.BlockHandle{Module: "std.math", Version: "1.0.0", Name: "sub"})
	assert.False(t, ok)

	assert.Equal(t, []string{"std.math/add", "std.math@2.0.0/add"}, r.List())
}

func TestChain_Order(t *testing.T) {
	var trail []string
	mark := func(tag string) Middleware {
		return func(inner Operation) Operation {
			return Func(inner.Name(), func(ctx context.Context, inv Invocation) (cty.Value, error) {
				trail = append(trail, tag+">")
				v, err := inner.Execute(ctx, inv)
				trail = append(trail, "<"+tag)
				return v, err
			})
		}
	}

	op := Chain(mark("a"), mark("b"))(constant("c", cty.True))
	_, err := op.Execute(context.Background(), invocation())
	require.NoError(t, err)
	assert.Equal(t, []string{"a>", "b>", "<b", "<a"}, trail)
}

func TestRegistry_UseWrapsResolved(t *testing.T) {
	r := NewRegistry()
	r.Register("std.math", "add", constant("add", cty.NumberIntVal(1)))

	var calls atomic.Int32
	r.Use(func(inner Operation) Operation {
		return Func(inner.Name(), func(ctx context.Context, inv Invocation) (cty.Value, error) {
			calls.Add(1)
			return inner.Execute(ctx, inv)
		})
	})

	op, ok := r.Resolve(addHandle)
	require.True(t, ok)
	_, err := op.Execute(context.Background(), invocation())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWithTimeout(t *testing.T) {
	slow := Func("slow", func(ctx context.Context, _ Invocation) (cty.Value, error) {
		select {
		case <-ctx.Done():
			return cty.NilVal, ctx.Err()
		case <-time.After(time.Second):
			return cty.True, nil
		}
	})

	_, err := WithTimeout(10*time.Millisecond)(slow).Execute(context.Background(), invocation())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeTimeout, errors.CodeOf(err))
	assert.True(t, stderrors.Is(err, context.DeadlineExceeded))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = WithTimeout(time.Second)(slow).Execute(ctx, invocation())
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotEqual(t, errors.ErrCodeTimeout, errors.CodeOf(err))

	fast := constant("fast", cty.True)
	assert.Same(t, fast, WithTimeout(0)(fast))
}

func TestWithRetry(t *testing.T) {
	var attempts atomic.Int32
	flaky := Func("flaky", func(context.Context, Invocation) (cty.Value, error) {
		if attempts.Add(1) < 3 {
			return cty.NilVal, errors.Timeout("flaky")
		}
		return cty.StringVal("ok"), nil
	})

	var retries []int
	op := WithRetry(RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		OnRetry:        func(attempt int, _ error, _ time.Duration) { retries = append(retries, attempt) },
	})(flaky)

	got, err := op.Execute(context.Background(), invocation())
	require.NoError(t, err)
	assert.True(t, got.RawEquals(cty.StringVal("ok")))
	assert.Equal(t, []int{1, 2}, retries)
}

func TestWithRetry_SkipsPermanentFailures(t *testing.T) {
	var attempts atomic.Int32
	broken := Func("broken", func(context.Context, Invocation) (cty.Value, error) {
		attempts.Add(1)
		return cty.NilVal, errors.InvalidInput("a", "not a number")
	})

	_, err := WithRetry(RetryConfig{MaxAttempts: 5, InitialBackoff: time.Millisecond})(broken).
		Execute(context.Background(), invocation())
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestWithRetry_OnlyPureBlocks(t *testing.T) {
	var attempts atomic.Int32
	timingOut := Func("send", func(context.Context, Invocation) (cty.Value, error) {
		attempts.Add(1)
		return cty.NilVal, errors.Timeout("send")
	})
	op := WithRetry(RetryConfig{MaxAttempts: 4, InitialBackoff: time.Millisecond})(timingOut)

	impure := invocation()
	impure.Def = &registry.BlockDef{Name: "send", Purity: registry.PurityImpure, Determinism: registry.Nondeterministic}
	_, err := op.Execute(context.Background(), impure)
	assert.Equal(t, errors.ErrCodeTimeout, errors.CodeOf(err))
	assert.Equal(t, int32(1), attempts.Load(), "impure blocks run once")

	attempts.Store(0)
	undeclared := invocation()
	undeclared.Def = nil
	_, err = op.Execute(context.Background(), undeclared)
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load(), "undeclared blocks run once")

	attempts.Store(0)
	_, err = op.Execute(context.Background(), invocation())
	require.Error(t, err)
	assert.Equal(t, int32(4), attempts.Load(), "pure blocks use every attempt")
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.Timeout("x")))
	assert.True(t, IsRetryable(errors.OperationFailed("x", errors.Timeout("x"))))
	assert.False(t, IsRetryable(errors.OperationFailed("x", stderrors.New("eof"))))
	assert.False(t, IsRetryable(stderrors.New("plain")))
}

func TestCalculateBackoff(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 10 * time.Millisecond, MaxBackoff: 25 * time.Millisecond, BackoffFactor: 2}
	assert.Equal(t, 10*time.Millisecond, calculateBackoff(1, cfg))
	assert.Equal(t, 20*time.Millisecond, calculateBackoff(2, cfg))
	assert.Equal(t, 25*time.Millisecond, calculateBackoff(3, cfg))
}

func TestWithLogging(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, &logger.Config{Level: "debug", Format: "json"}, "")

	failing := Func("div", func(context.Context, Invocation) (cty.Value, error) {
		return cty.NilVal, stderrors.New("division by zero")
	})
	_, err := WithLogging(log)(failing).Execute(context.Background(), invocation())
	require.Error(t, err)
	assert.Contains(t, buf.String(), "operation failed")
	assert.Contains(t, buf.String(), "division by zero")
	assert.Contains(t, buf.String(), addHandle.String())
}

func TestWithTracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(context.Background())
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	_, err := WithTracing()(constant("add", cty.True)).Execute(context.Background(), invocation())
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, observability.SpanOperation+".add", spans[0].Name)
}

func TestWithMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())
	m, err := observability.NewMetrics(mp.Meter("test"))
	require.NoError(t, err)

	failing := Func("div", func(context.Context, Invocation) (cty.Value, error) {
		return cty.NilVal, errors.InvalidInput("b", "zero")
	})
	op := WithMetrics(m)(failing)
	_, _ = op.Execute(context.Background(), invocation())
	_, _ = WithMetrics(m)(constant("add", cty.True)).Execute(context.Background(), invocation())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			if sum, ok := metric.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					totals[metric.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(2), totals["flowkit.operation.total"])
	assert.Equal(t, int64(1), totals["flowkit.error.total"])

	assert.Same(t, failing, WithMetrics(nil)(failing))
}
