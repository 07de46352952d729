package concurrency

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrent is the slot count used when none is configured.
const DefaultMaxConcurrent = 8

// ErrAdmissionTimeout is returned when MaxWait elapses before a slot frees.
var ErrAdmissionTimeout = errors.New("concurrency: admission wait timeout")

// Config configures a Controller.
type Config struct {
	// Name identifies the controller in hooks and logs.
	Name string
	// MaxConcurrent is the number of slots.
	MaxConcurrent int
	// MaxWait bounds how long admission may wait. 0 waits until a slot
	// frees or the context ends.
	MaxWait time.Duration
	// OnAcquire is called after a slot is taken.
	OnAcquire func(name string)
	// OnRelease is called after a slot is returned.
	OnRelease func(name string)
	// OnReject is called when admission fails.
	OnReject func(name string, err error)
}

// DefaultConfig returns a Config with DefaultMaxConcurrent slots.
func DefaultConfig(name string) Config {
	return Config{Name: name, MaxConcurrent: DefaultMaxConcurrent}
}

// Controller limits concurrent executions. It is safe for concurrent use.
type Controller struct {
	cfg   Config
	sem   *semaphore.Weighted
	inUse atomic.Int64
}

// New creates a Controller. A non-positive MaxConcurrent falls back to
// DefaultMaxConcurrent.
func New(cfg Config) *Controller {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	return &Controller{
		cfg: cfg,
		sem: semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}
}

// Execute runs fn while holding one slot.
// Returns ctx.Err() or ErrAdmissionTimeout if no slot could be taken.
func (c *Controller) Execute(ctx context.Context, fn func() error) error {
	if err := c.acquire(ctx); err != nil {
		if c.cfg.OnReject != nil {
			c.cfg.OnReject(c.cfg.Name, err)
		}
		return err
	}
	c.inUse.Add(1)
	if c.cfg.OnAcquire != nil {
		c.cfg.OnAcquire(c.cfg.Name)
	}

	defer func() {
		c.inUse.Add(-1)
		c.sem.Release(1)
		if c.cfg.OnRelease != nil {
			c.cfg.OnRelease(c.cfg.Name)
		}
	}()

	return fn()
}

// Do runs a function that returns a value while holding one slot.
func Do[T any](c *Controller, ctx context.Context, fn func() (T, error)) (T, error) {
	var result T
	err := c.Execute(ctx, func() error {
		var fnErr error
		result, fnErr = fn()
		return fnErr
	})
	return result, err
}

func (c *Controller) acquire(ctx context.Context) error {
	if c.sem.TryAcquire(1) {
		return nil
	}
	if c.cfg.MaxWait <= 0 {
		return c.sem.Acquire(ctx, 1)
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.MaxWait)
	defer cancel()
	if err := c.sem.Acquire(waitCtx, 1); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return ErrAdmissionTimeout
	}
	return nil
}

// Name returns the configured name.
func (c *Controller) Name() string { return c.cfg.Name }

// Limit returns the number of slots.
func (c *Controller) Limit() int { return c.cfg.MaxConcurrent }

// InUse returns the number of slots currently held.
func (c *Controller) InUse() int { return int(c.inUse.Load()) }

// Available returns the number of free slots.
func (c *Controller) Available() int { return c.cfg.MaxConcurrent - c.InUse() }
