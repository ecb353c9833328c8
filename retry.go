package ridinglookup

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// Operation is any fallible call to an upstream dependency.
type Operation func(ctx context.Context) (any, error)

// maxJitter bounds the random delay added when RetryPolicy.Jitter is set.
const maxJitter = time.Second

/*
RetryPolicy defines retry behavior for RunWithRetry.

Delays grow as BaseDelay * BackoffMultiplier^(attempt-1) and are capped at MaxDelay.
Filter, when set, decides whether an error is worth another attempt. Breaker
rejections, invalid input and context cancellation are never retried regardless
of Filter.
*/
type RetryPolicy struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	Jitter            bool
	Filter            func(error) bool
}

// DefaultRetryPolicy is used for upstream calls when nothing is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		BaseDelay:         time.Second,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2,
		Jitter:            true,
	}
}

// NextDelay returns the pre-jitter delay after the given failed attempt (1-based).
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	multiplier := p.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 1
	}

	delay := float64(p.BaseDelay) * math.Pow(multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	// Guards against float overflow when MaxDelay is unset.
	if delay > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}

	return time.Duration(delay)
}

func (p RetryPolicy) jittered(attempt int) time.Duration {
	delay := p.NextDelay(attempt)
	if p.Jitter {
		delay += rand.N(maxJitter)
	}
	return delay
}

func (p RetryPolicy) retryable(err error) bool {
	if IsBreakerOpen(err) || errors.Is(err, context.Canceled) || errors.Is(err, ErrInvalidInput) {
		return false
	}
	if p.Filter != nil {
		return p.Filter(err)
	}
	return true
}

/*
RunWithRetry runs op up to policy.MaxAttempts times, sleeping between attempts.
It returns the last attempt's error when every attempt fails.

A breaker-open error aborts the loop at once, since another attempt would be
rejected the same way. The inter-attempt sleep honors ctx.
*/
func RunWithRetry(ctx context.Context, policy RetryPolicy, label string, op Operation) (any, error) {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == attempts || !policy.retryable(err) {
			break
		}

		delay := policy.jittered(attempt)
		Logger().Warn(
			"attempt failed",
			"label", label,
			"attempt", attempt,
			"max", attempts,
			"delay", delay,
			"err", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, lastErr
}
