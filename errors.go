package ridinglookup

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidInput is returned for malformed requests. It is never retried.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when a batch, job or breaker key is unknown.
	ErrNotFound = errors.New("not found")
	// ErrBreakerOpen is the distinguished error for calls rejected by an open breaker.
	ErrBreakerOpen = errors.New("circuit breaker open")
	// ErrTimeout is returned by RunWithTimeout when the deadline wins the race.
	ErrTimeout = errors.New("operation timed out")
	// ErrClosed is returned when an actor has been shut down.
	ErrClosed = errors.New("coordinator closed")
)

/*
BreakerOpenError is returned by CircuitBreaker.Execute when the key is OPEN and the
recovery timeout has not elapsed. The wrapped operation was not invoked.

NextAttemptTime is the earliest moment a probe will be admitted, which lets callers
(the job queue in particular) schedule their own retry no earlier than that.
*/
type BreakerOpenError struct {
	Key             string
	NextAttemptTime time.Time
}

func (e *BreakerOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open for %s until %s", e.Key, e.NextAttemptTime.Format(time.RFC3339))
}

func (e *BreakerOpenError) Is(target error) bool {
	return target == ErrBreakerOpen
}

// TimeoutError is returned by RunWithTimeout.
type TimeoutError struct {
	Label   string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v", e.Label, e.Timeout)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// IsBreakerOpen reports whether err, or anything it wraps, is a breaker rejection.
func IsBreakerOpen(err error) bool {
	return errors.Is(err, ErrBreakerOpen)
}
