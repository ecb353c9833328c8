package ridinglookup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

/*
BreakerBackend is where breaker state lives. CircuitBreaker only ever talks to this
interface, so the algorithm in Execute is the same whether the state is held in this
process (LocalBreakers), in a SharedBreakerCoordinator actor, or in a coordinator in
another process (RemoteBreakerBackend).
*/
type BreakerBackend interface {
	Check(ctx context.Context, key string) (BreakerDecision, error)
	ReportSuccess(ctx context.Context, key string) (BreakerState, error)
	ReportFailure(ctx context.Context, key string) (BreakerState, error)
	State(ctx context.Context, key string) (BreakerState, error)
	States(ctx context.Context) ([]BreakerState, error)
	Reset(ctx context.Context, key string) error
	UpdateConfig(ctx context.Context, update BreakerConfig) (BreakerConfig, error)
}

/*
LocalBreakers keeps breaker state in process memory. It is the local mode backend
and the fallback the shared mode drops to when the coordinator cannot be reached.
*/
type LocalBreakers struct {
	mu    sync.Mutex
	table *breakerTable
	now   func() time.Time
}

// NewLocalBreakers creates an in-memory backend.
func NewLocalBreakers(config BreakerConfig, clock func() time.Time) *LocalBreakers {
	if clock == nil {
		clock = time.Now
	}
	return &LocalBreakers{
		table: newBreakerTable(config),
		now:   clock,
	}
}

func (lb *LocalBreakers) Check(_ context.Context, key string) (BreakerDecision, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.table.allow(key, lb.now()), nil
}

func (lb *LocalBreakers) ReportSuccess(_ context.Context, key string) (BreakerState, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.table.recordSuccess(key), nil
}

func (lb *LocalBreakers) ReportFailure(_ context.Context, key string) (BreakerState, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.table.recordFailure(key, lb.now()), nil
}

func (lb *LocalBreakers) State(_ context.Context, key string) (BreakerState, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	st, ok := lb.table.snapshot(key)
	if !ok {
		return BreakerState{}, fmt.Errorf("%w: breaker %s", ErrNotFound, key)
	}
	return st, nil
}

func (lb *LocalBreakers) States(_ context.Context) ([]BreakerState, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.table.all(), nil
}

func (lb *LocalBreakers) Reset(_ context.Context, key string) error {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.table.reset(key)
	return nil
}

func (lb *LocalBreakers) UpdateConfig(_ context.Context, update BreakerConfig) (BreakerConfig, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	next := lb.table.config.merge(update)
	if err := next.Validate(); err != nil {
		return lb.table.config, err
	}
	lb.table.config = next
	return next, nil
}

/*
CircuitBreaker isolates failing upstream dependencies, one independent state machine
per key.

In shared mode every check and report goes to the backend; when the backend errors,
that single call is evaluated against the local fallback instead, so the breaker's
own availability never fails the caller's operation.
*/
type CircuitBreaker struct {
	backend  BreakerBackend
	fallback *LocalBreakers
	isFault  func(error) bool
}

// BreakerOption configures a CircuitBreaker.
type BreakerOption func(*breakerOptions)

type breakerOptions struct {
	config  BreakerConfig
	clock   func() time.Time
	isFault func(error) bool
}

// WithBreakerConfig sets the thresholds of the local state.
func WithBreakerConfig(config BreakerConfig) BreakerOption {
	return func(o *breakerOptions) {
		o.config = config
	}
}

// WithBreakerClock replaces time.Now for the local state.
func WithBreakerClock(clock func() time.Time) BreakerOption {
	return func(o *breakerOptions) {
		o.clock = clock
	}
}

/*
WithFailureFilter decides which errors from op count against the breaker. Errors it
rejects are answers from a healthy dependency (a miss, a bad request) and are
recorded as successes. The default is IsFault.
*/
func WithFailureFilter(isFault func(error) bool) BreakerOption {
	return func(o *breakerOptions) {
		o.isFault = isFault
	}
}

// IsFault reports whether err says something about the dependency's health.
func IsFault(err error) bool {
	return !errors.Is(err, ErrNotFound) &&
		!errors.Is(err, ErrInvalidInput) &&
		!errors.Is(err, context.Canceled)
}

func collectBreakerOptions(opts []BreakerOption) breakerOptions {
	o := breakerOptions{config: DefaultBreakerConfig(), clock: time.Now, isFault: IsFault}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewCircuitBreaker creates a breaker whose state lives in this process only.
func NewCircuitBreaker(opts ...BreakerOption) *CircuitBreaker {
	o := collectBreakerOptions(opts)
	local := NewLocalBreakers(o.config, o.clock)
	return &CircuitBreaker{backend: local, fallback: local, isFault: o.isFault}
}

// NewSharedCircuitBreaker creates a breaker that proxies state through backend.
func NewSharedCircuitBreaker(backend BreakerBackend, opts ...BreakerOption) *CircuitBreaker {
	o := collectBreakerOptions(opts)
	return &CircuitBreaker{
		backend:  backend,
		fallback: NewLocalBreakers(o.config, o.clock),
		isFault:  o.isFault,
	}
}

// Shared reports whether the breaker proxies its state to a coordinator.
func (cb *CircuitBreaker) Shared() bool {
	return BreakerBackend(cb.fallback) != cb.backend
}

/*
Execute runs op under the breaker for key. When the key is OPEN and its recovery
timeout has not elapsed, op is not invoked and a *BreakerOpenError is returned.

Only faults count as failures. A call abandoned by its caller is not reported at all;
a half-open trial call lost that way goes stale after RecoveryTimeout.
*/
func (cb *CircuitBreaker) Execute(ctx context.Context, key string, op Operation) (any, error) {
	backend := cb.backend

	decision, err := backend.Check(ctx, key)
	if err != nil {
		Logger().Warn("breaker coordinator unreachable, using local state", "key", key, "err", err)
		backend = cb.fallback
		decision, _ = backend.Check(ctx, key)
	}

	if !decision.Allowed {
		Logger().Debug("call rejected by open breaker", "key", key)
		return nil, &BreakerOpenError{Key: key, NextAttemptTime: decision.State.NextAttemptTime}
	}

	result, opErr := op(ctx)

	switch {
	case opErr == nil:
		cb.report(ctx, backend, key, true)
		return result, nil
	case ctx.Err() != nil || errors.Is(opErr, context.Canceled):
		return nil, opErr
	case !cb.isFault(opErr):
		cb.report(ctx, backend, key, true)
	default:
		cb.report(ctx, backend, key, false)
	}

	return nil, opErr
}

func (cb *CircuitBreaker) report(ctx context.Context, backend BreakerBackend, key string, success bool) {
	var err error
	if success {
		_, err = backend.ReportSuccess(ctx, key)
	} else {
		_, err = backend.ReportFailure(ctx, key)
	}

	if err == nil || backend == BreakerBackend(cb.fallback) {
		return
	}

	Logger().Warn("breaker report failed, recording locally", "key", key, "err", err)
	if success {
		cb.fallback.ReportSuccess(ctx, key)
	} else {
		cb.fallback.ReportFailure(ctx, key)
	}
}

// GetStateInfo returns the current state of key.
func (cb *CircuitBreaker) GetStateInfo(ctx context.Context, key string) (BreakerState, error) {
	return cb.backend.State(ctx, key)
}

// GetAllStates returns the state of every known key, sorted by key.
func (cb *CircuitBreaker) GetAllStates(ctx context.Context) ([]BreakerState, error) {
	return cb.backend.States(ctx)
}

// Reset forgets key, or every key when key is empty. The local fallback is reset too.
func (cb *CircuitBreaker) Reset(ctx context.Context, key string) error {
	if cb.Shared() {
		cb.fallback.Reset(ctx, key)
	}
	return cb.backend.Reset(ctx, key)
}

// UpdateConfig overlays the positive fields of update onto the current thresholds.
func (cb *CircuitBreaker) UpdateConfig(ctx context.Context, update BreakerConfig) (BreakerConfig, error) {
	if cb.Shared() {
		if _, err := cb.fallback.UpdateConfig(ctx, update); err != nil {
			return BreakerConfig{}, err
		}
	}
	return cb.backend.UpdateConfig(ctx, update)
}
