package operation

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/zclconf/go-cty/cty"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/registry"
)

// RetryConfig configures WithRetry.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, the first included.
	MaxAttempts int
	// InitialBackoff is the delay before the second attempt.
	InitialBackoff time.Duration
	// MaxBackoff caps the delay between attempts.
	MaxBackoff time.Duration
	// BackoffFactor is the multiplier for exponential backoff.
	BackoffFactor float64
	// Jitter adds randomness to backoff (0.0 to 1.0).
	Jitter float64
	// RetryIf reports whether an error may be retried.
	RetryIf func(error) bool
	// OnRetry is called before each retry.
	OnRetry func(attempt int, err error, backoff time.Duration)
}

// DefaultRetryConfig retries retryable failures three times in total.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         0.1,
		RetryIf:        IsRetryable,
	}
}

// IsRetryable reports whether err carries a retryable *errors.AppError.
func IsRetryable(err error) bool {
	appErr, ok := errors.AsAppError(err)
	return ok && appErr.Retryable
}

func (c *RetryConfig) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 50 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 2 * time.Second
	}
	if c.BackoffFactor <= 0 {
		c.BackoffFactor = 2.0
	}
	if c.RetryIf == nil {
		c.RetryIf = IsRetryable
	}
}

// WithRetry re-invokes an operation whose failure RetryIf accepts. Only
// invocations of blocks declared pure are retried. Impure blocks and
// invocations without a declaration run once.
func WithRetry(cfg RetryConfig) Middleware {
	cfg.applyDefaults()
	return func(inner Operation) Operation {
		if cfg.MaxAttempts <= 1 {
			return inner
		}
		return &retryOp{wrapped{inner}, cfg}
	}
}

type retryOp struct {
	wrapped
	cfg RetryConfig
}

func (r *retryOp) Execute(ctx context.Context, inv Invocation) (cty.Value, error) {
	if !repeatable(inv) {
		return r.inner.Execute(ctx, inv)
	}
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return cty.NilVal, err
		}

		v, err := r.inner.Execute(ctx, inv)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if !r.cfg.RetryIf(err) || attempt == r.cfg.MaxAttempts {
			break
		}

		backoff := calculateBackoff(attempt, r.cfg)
		if r.cfg.OnRetry != nil {
			r.cfg.OnRetry(attempt, err, backoff)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return cty.NilVal, ctx.Err()
		case <-timer.C:
		}
	}
	return cty.NilVal, lastErr
}

func repeatable(inv Invocation) bool {
	return inv.Def != nil && inv.Def.Purity == registry.PurityPure
}

// calculateBackoff returns initial * factor^(attempt-1) with jitter,
// capped at MaxBackoff.
func calculateBackoff(attempt int, cfg RetryConfig) time.Duration {
	backoff := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffFactor, float64(attempt-1))
	if cfg.Jitter > 0 {
		backoff += (rand.Float64()*2 - 1) * backoff * cfg.Jitter
	}
	if backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}
	if backoff < 0 {
		backoff = 0
	}
	return time.Duration(backoff)
}
