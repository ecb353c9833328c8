package ridinglookup

import (
	"context"
	"time"
)

type outcome struct {
	value any
	err   error
}

/*
RunWithTimeout races op against a timer and returns a *TimeoutError when the timer
wins. The losing op is not stopped: it keeps running in its own goroutine and its
result is dropped into a buffered channel nobody reads. The ctx handed to op is the
caller's ctx, not one derived from the timer, so side effects of a straggler may
still land after the caller has moved on.

A non-positive timeout runs op inline with no deadline.
*/
func RunWithTimeout(ctx context.Context, timeout time.Duration, label string, op Operation) (any, error) {
	if timeout <= 0 {
		return op(ctx)
	}

	done := make(chan outcome, 1)
	go func() {
		value, err := op(ctx)
		done <- outcome{value: value, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res.value, res.err
	case <-timer.C:
		Logger().Warn("operation timed out", "label", label, "timeout", timeout)
		return nil, &TimeoutError{Label: label, Timeout: timeout}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
