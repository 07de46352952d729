package operation

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/zclconf/go-cty/cty"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/registry"
)

// State is the state of a circuit breaker.
type State int

const (
	// StateClosed lets invocations through.
	StateClosed State = iota
	// StateOpen fails invocations without calling the operation.
	StateOpen
	// StateHalfOpen lets a limited number of trial invocations through.
	StateHalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is the cause of an invocation rejected by an open breaker.
var ErrCircuitOpen = stderrors.New("circuit breaker is open")

// BreakerConfig configures WithCircuitBreaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that open the
	// circuit. Zero disables the breaker.
	MaxFailures int
	// Cooldown is how long an open circuit waits before letting a trial call through.
	Cooldown time.Duration
	// HalfOpenMaxCalls is the number of trial calls allowed while half-open.
	HalfOpenMaxCalls int
	// OnStateChange is called on every transition.
	OnStateChange func(block string, from, to State)
}

// DefaultBreakerConfig opens after five consecutive failures.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures:      5,
		Cooldown:         30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// Breakers holds one circuit breaker per block version. Operations are
// re-wrapped on every Resolve, so breaker state lives here rather than
// on the wrapped operation.
type Breakers struct {
	cfg BreakerConfig

	mu       sync.Mutex
	breakers map[registry.BlockHandle]*breaker
}

// NewBreakers returns an empty breaker set.
func NewBreakers(cfg BreakerConfig) *Breakers {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}
	return &Breakers{cfg: cfg, breakers: make(map[registry.BlockHandle]*breaker)}
}

// State returns the breaker state of h. Blocks never invoked are closed.
func (b *Breakers) State(h registry.BlockHandle) State {
	b.mu.Lock()
	br, ok := b.breakers[h]
	b.mu.Unlock()
	if !ok {
		return StateClosed
	}
	br.mu.Lock()
	defer br.mu.Unlock()
	return br.currentState()
}

// Reset closes every breaker.
func (b *Breakers) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.breakers = make(map[registry.BlockHandle]*breaker)
}

func (b *Breakers) get(h registry.BlockHandle) *breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	br, ok := b.breakers[h]
	if !ok {
		br = &breaker{name: h.String(), cfg: &b.cfg}
		b.breakers[h] = br
	}
	return br
}

// WithCircuitBreaker fails invocations of a block fast once it has failed
// MaxFailures times in a row. Rejected calls fail with OPERATION_FAILED
// wrapping ErrCircuitOpen. Invalid input and cancellation do not count
// as failures.
func WithCircuitBreaker(b *Breakers) Middleware {
	return func(inner Operation) Operation {
		if b == nil || b.cfg.MaxFailures <= 0 {
			return inner
		}
		return &breakerOp{wrapped{inner}, b}
	}
}

type breakerOp struct {
	wrapped
	set *Breakers
}

func (o *breakerOp) Execute(ctx context.Context, inv Invocation) (cty.Value, error) {
	br := o.set.get(inv.Block)
	if !br.allow() {
		return cty.NilVal, errors.OperationFailed(o.Name(), ErrCircuitOpen).WithDetail("block", inv.Block.String())
	}
	v, err := o.inner.Execute(ctx, inv)
	br.record(countsAsFailure(ctx, err))
	return v, err
}

func countsAsFailure(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	switch errors.CodeOf(err) {
	case errors.ErrCodeInvalidInput, errors.ErrCodeCancelled:
		return false
	}
	return true
}

type breaker struct {
	name string
	cfg  *BreakerConfig

	mu            sync.Mutex
	state         State
	failures      int
	successes     int
	halfOpenCalls int
	openedAt      time.Time
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.currentState() {
	case StateClosed:
		return true
	case StateHalfOpen:
		if b.halfOpenCalls < b.cfg.HalfOpenMaxCalls {
			b.halfOpenCalls++
			return true
		}
	}
	return false
}

func (b *breaker) record(failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.currentState()
	if failed {
		b.failures++
		if state == StateHalfOpen || b.failures >= b.cfg.MaxFailures {
			b.openedAt = time.Now()
			b.toState(StateOpen)
		}
		return
	}

	switch state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.HalfOpenMaxCalls {
			b.toState(StateClosed)
		}
	}
}

// currentState moves an open breaker to half-open once the cooldown has
// passed. Callers hold mu.
func (b *breaker) currentState() State {
	if b.state == StateOpen && time.Since(b.openedAt) >= b.cfg.Cooldown {
		b.toState(StateHalfOpen)
	}
	return b.state
}

func (b *breaker) toState(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.successes = 0
	b.halfOpenCalls = 0
	if to == StateClosed {
		b.failures = 0
	}
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, from, to)
	}
}
