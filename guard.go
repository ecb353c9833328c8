package ridinglookup

import (
	"context"
	"time"
)

/*
Guard is the standard way to call an upstream dependency: retries on the outside,
the breaker in the middle, the deadline innermost so a timed-out call counts as a
breaker failure. Once the breaker opens, the retry loop stops instead of burning
attempts against it.
*/
type Guard struct {
	Breaker *CircuitBreaker
	Policy  RetryPolicy
	Timeout time.Duration
}

// NewGuard builds a Guard. A nil breaker gets a local one with default thresholds.
func NewGuard(breaker *CircuitBreaker, policy RetryPolicy, timeout time.Duration) *Guard {
	if breaker == nil {
		breaker = NewCircuitBreaker()
	}
	return &Guard{Breaker: breaker, Policy: policy, Timeout: timeout}
}

// Do runs op for the dependency identified by key.
func (g *Guard) Do(ctx context.Context, key, label string, op Operation) (any, error) {
	return RunWithRetry(ctx, g.Policy, label, func(ctx context.Context) (any, error) {
		return g.Breaker.Execute(ctx, key, func(ctx context.Context) (any, error) {
			return RunWithTimeout(ctx, g.Timeout, label, op)
		})
	})
}
