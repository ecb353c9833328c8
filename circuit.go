package ridinglookup

import (
	"fmt"
	"sort"
	"time"
)

// CircuitState represents the state of one breaker key.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"    // Normal operation
	CircuitOpen     CircuitState = "OPEN"      // Rejecting calls
	CircuitHalfOpen CircuitState = "HALF_OPEN" // Admitting probes
)

// BreakerConfig holds the thresholds shared by every key of a breaker.
type BreakerConfig struct {
	FailureThreshold int           `json:"failureThreshold"`
	RecoveryTimeout  time.Duration `json:"recoveryTimeout"`
	SuccessThreshold int           `json:"successThreshold"`
}

// DefaultBreakerConfig returns the thresholds used when none are given.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		SuccessThreshold: 2,
	}
}

// Validate rejects non-positive thresholds.
func (c BreakerConfig) Validate() error {
	if c.FailureThreshold < 1 || c.SuccessThreshold < 1 || c.RecoveryTimeout <= 0 {
		return fmt.Errorf("%w: breaker thresholds must be positive: %+v", ErrInvalidInput, c)
	}
	return nil
}

// merge overlays the positive fields of update onto c.
func (c BreakerConfig) merge(update BreakerConfig) BreakerConfig {
	if update.FailureThreshold > 0 {
		c.FailureThreshold = update.FailureThreshold
	}
	if update.RecoveryTimeout > 0 {
		c.RecoveryTimeout = update.RecoveryTimeout
	}
	if update.SuccessThreshold > 0 {
		c.SuccessThreshold = update.SuccessThreshold
	}
	return c
}

/*
BreakerState is the persisted state of one breaker key.

ProbeStartedAt marks the HALF_OPEN probe currently in flight; a second caller is
rejected until that probe reports or goes stale after RecoveryTimeout.
*/
type BreakerState struct {
	Key             string       `json:"key"`
	State           CircuitState `json:"state"`
	FailureCount    int          `json:"failureCount"`
	SuccessCount    int          `json:"successCount"`
	LastFailureTime time.Time    `json:"lastFailureTime"`
	NextAttemptTime time.Time    `json:"nextAttemptTime"`
	ProbeStartedAt  time.Time    `json:"probeStartedAt"`
}

// BreakerDecision is the answer to a check.
type BreakerDecision struct {
	Allowed bool         `json:"allowed"`
	State   BreakerState `json:"state"`
}

/*
breakerTable is the single implementation of the breaker state machine. It holds no
lock: LocalBreakers wraps it in a mutex and SharedBreakerCoordinator confines it to
its actor goroutine.
*/
type breakerTable struct {
	config BreakerConfig
	states map[string]*BreakerState
}

func newBreakerTable(config BreakerConfig) *breakerTable {
	return &breakerTable{
		config: config,
		states: make(map[string]*BreakerState),
	}
}

// get returns the state for key, creating it CLOSED on first use.
func (t *breakerTable) get(key string) *BreakerState {
	st, ok := t.states[key]
	if !ok {
		st = &BreakerState{Key: key, State: CircuitClosed}
		t.states[key] = st
	}
	return st
}

/*
allow decides whether a call for key may proceed at now. It performs the
OPEN -> HALF_OPEN transition as a side effect once the recovery timeout has
elapsed since the last failure.
*/
func (t *breakerTable) allow(key string, now time.Time) BreakerDecision {
	st := t.get(key)

	switch st.State {
	case CircuitClosed:
		return BreakerDecision{Allowed: true, State: *st}
	case CircuitOpen:
		if now.Sub(st.LastFailureTime) > t.config.RecoveryTimeout {
			st.State = CircuitHalfOpen
			st.SuccessCount = 0
			st.ProbeStartedAt = now
			Logger().Info("circuit breaker half-open", "key", key)
			return BreakerDecision{Allowed: true, State: *st}
		}
		return BreakerDecision{Allowed: false, State: *st}
	case CircuitHalfOpen:
		if st.ProbeStartedAt.IsZero() || now.Sub(st.ProbeStartedAt) > t.config.RecoveryTimeout {
			st.ProbeStartedAt = now
			return BreakerDecision{Allowed: true, State: *st}
		}
		return BreakerDecision{Allowed: false, State: *st}
	default:
		return BreakerDecision{Allowed: false, State: *st}
	}
}

// recordSuccess applies a successful call outcome.
func (t *breakerTable) recordSuccess(key string) BreakerState {
	st := t.get(key)

	switch st.State {
	case CircuitHalfOpen:
		st.SuccessCount++
		st.ProbeStartedAt = time.Time{}
		if st.SuccessCount >= t.config.SuccessThreshold {
			st.State = CircuitClosed
			st.FailureCount = 0
			st.SuccessCount = 0
			st.NextAttemptTime = time.Time{}
			Logger().Info("circuit breaker closed", "key", key)
		}
	case CircuitClosed:
		st.FailureCount = 0
	}

	return *st
}

// recordFailure applies a failed call outcome at now.
func (t *breakerTable) recordFailure(key string, now time.Time) BreakerState {
	st := t.get(key)

	st.FailureCount++
	st.LastFailureTime = now
	st.ProbeStartedAt = time.Time{}

	switch st.State {
	case CircuitHalfOpen:
		t.open(st, now)
		Logger().Warn("circuit breaker reopened from half-open", "key", key)
	case CircuitClosed:
		if st.FailureCount >= t.config.FailureThreshold {
			t.open(st, now)
			Logger().Warn("circuit breaker opened", "key", key, "failures", st.FailureCount)
		}
	case CircuitOpen:
		// A straggler finishing after the trip pushes recovery back.
		st.NextAttemptTime = now.Add(t.config.RecoveryTimeout)
	}

	return *st
}

func (t *breakerTable) open(st *BreakerState, now time.Time) {
	st.State = CircuitOpen
	st.SuccessCount = 0
	st.NextAttemptTime = now.Add(t.config.RecoveryTimeout)
}

// snapshot returns the state for key without creating it.
func (t *breakerTable) snapshot(key string) (BreakerState, bool) {
	st, ok := t.states[key]
	if !ok {
		return BreakerState{}, false
	}
	return *st, true
}

func (t *breakerTable) all() []BreakerState {
	out := make([]BreakerState, 0, len(t.states))
	for _, st := range t.states {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// reset drops key, or every key when key is empty.
func (t *breakerTable) reset(key string) {
	if key == "" {
		t.states = make(map[string]*BreakerState)
		return
	}
	delete(t.states, key)
}
