package ridinglookup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/theapemachine/errnie"
)

// BreakerCoordinatorName is the fixed address of the shared breaker actor in a Store.
const BreakerCoordinatorName = "circuit-breaker-coordinator"

type breakerBlob struct {
	Config BreakerConfig            `json:"config"`
	States map[string]*BreakerState `json:"states"`
}

/*
SharedBreakerCoordinator owns the authoritative breaker state for every key of a
deployment. All operations run on one actor goroutine, so instances sharing it see a
single ordering of checks and reports. State is loaded from the Store on start and
saved after every mutation.

It implements BreakerBackend, so in-process callers can hand it straight to
NewSharedCircuitBreaker; other processes reach it through the HTTP server and a
RemoteBreakerBackend.
*/
type SharedBreakerCoordinator struct {
	actor *actor
	store Store
	table *breakerTable
	now   func() time.Time
}

// NewSharedBreakerCoordinator loads persisted state from store and starts the actor.
func NewSharedBreakerCoordinator(
	ctx context.Context, store Store, config BreakerConfig, opts ...BreakerOption,
) (*SharedBreakerCoordinator, error) {
	if store == nil {
		store = NewMemoryStore()
	}

	o := collectBreakerOptions(append([]BreakerOption{WithBreakerConfig(config)}, opts...))
	if err := o.config.Validate(); err != nil {
		return nil, err
	}

	sbc := &SharedBreakerCoordinator{
		store: store,
		table: newBreakerTable(o.config),
		now:   o.clock,
	}

	if err := sbc.load(ctx); err != nil {
		return nil, err
	}

	sbc.actor = newActor(64)
	return sbc, nil
}

func (sbc *SharedBreakerCoordinator) load(ctx context.Context) error {
	raw, err := sbc.store.Load(ctx, BreakerCoordinatorName)
	if err != nil {
		return fmt.Errorf("loading %s: %w", BreakerCoordinatorName, err)
	}
	if raw == nil {
		errnie.Info("SharedBreakerCoordinator - cold start with no persisted state")
		return nil
	}

	var blob breakerBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return fmt.Errorf("decoding %s: %w", BreakerCoordinatorName, err)
	}

	if blob.Config.Validate() == nil {
		sbc.table.config = blob.Config
	}
	if blob.States != nil {
		sbc.table.states = blob.States
	}

	errnie.Info("SharedBreakerCoordinator - restored %d breaker keys", len(sbc.table.states))
	return nil
}

// persist runs on the actor goroutine.
func (sbc *SharedBreakerCoordinator) persist(ctx context.Context) {
	raw, err := json.Marshal(breakerBlob{Config: sbc.table.config, States: sbc.table.states})
	if err != nil {
		Logger().Error("encoding breaker state", "err", err)
		return
	}
	if err := sbc.store.Save(ctx, BreakerCoordinatorName, raw); err != nil {
		Logger().Error("persisting breaker state", "err", err)
	}
}

// Check performs the OPEN -> HALF_OPEN transition check for key and reports whether a call may proceed.
func (sbc *SharedBreakerCoordinator) Check(ctx context.Context, key string) (BreakerDecision, error) {
	var decision BreakerDecision

	err := sbc.actor.call(ctx, func() {
		before, existed := sbc.table.snapshot(key)
		decision = sbc.table.allow(key, sbc.now())
		if !existed || before != decision.State {
			sbc.persist(ctx)
		}
	})

	return decision, err
}

func (sbc *SharedBreakerCoordinator) ReportSuccess(ctx context.Context, key string) (BreakerState, error) {
	var st BreakerState

	err := sbc.actor.call(ctx, func() {
		before, existed := sbc.table.snapshot(key)
		st = sbc.table.recordSuccess(key)
		if !existed || before != st {
			sbc.persist(ctx)
		}
	})

	return st, err
}

func (sbc *SharedBreakerCoordinator) ReportFailure(ctx context.Context, key string) (BreakerState, error) {
	var st BreakerState

	err := sbc.actor.call(ctx, func() {
		st = sbc.table.recordFailure(key, sbc.now())
		sbc.persist(ctx)
	})

	return st, err
}

func (sbc *SharedBreakerCoordinator) State(ctx context.Context, key string) (BreakerState, error) {
	var (
		st BreakerState
		ok bool
	)

	if err := sbc.actor.call(ctx, func() {
		st, ok = sbc.table.snapshot(key)
	}); err != nil {
		return BreakerState{}, err
	}

	if !ok {
		return BreakerState{}, fmt.Errorf("%w: breaker %s", ErrNotFound, key)
	}
	return st, nil
}

func (sbc *SharedBreakerCoordinator) States(ctx context.Context) ([]BreakerState, error) {
	var states []BreakerState

	err := sbc.actor.call(ctx, func() {
		states = sbc.table.all()
	})

	return states, err
}

// Reset forgets key, or every key when key is empty.
func (sbc *SharedBreakerCoordinator) Reset(ctx context.Context, key string) error {
	return sbc.actor.call(ctx, func() {
		sbc.table.reset(key)
		sbc.persist(ctx)
		Logger().Info("breaker reset", "key", key)
	})
}

func (sbc *SharedBreakerCoordinator) UpdateConfig(ctx context.Context, update BreakerConfig) (BreakerConfig, error) {
	var (
		next     BreakerConfig
		validErr error
	)

	if err := sbc.actor.call(ctx, func() {
		next = sbc.table.config.merge(update)
		if validErr = next.Validate(); validErr != nil {
			next = sbc.table.config
			return
		}
		sbc.table.config = next
		sbc.persist(ctx)
	}); err != nil {
		return BreakerConfig{}, err
	}

	return next, validErr
}

// Config returns the current thresholds.
func (sbc *SharedBreakerCoordinator) Config(ctx context.Context) (BreakerConfig, error) {
	var config BreakerConfig
	err := sbc.actor.call(ctx, func() {
		config = sbc.table.config
	})
	return config, err
}

// Close stops the actor. Pending calls return ErrClosed.
func (sbc *SharedBreakerCoordinator) Close() {
	sbc.actor.stop()
	errnie.Info("SharedBreakerCoordinator - closed")
}
