package ridinglookup

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestNextDelay(t *testing.T) {
	Convey("Given the default retry policy", t, func() {
		policy := DefaultRetryPolicy()

		Convey("Delays should double and cap at MaxDelay", func() {
			So(policy.NextDelay(1), ShouldEqual, time.Second)
			So(policy.NextDelay(2), ShouldEqual, 2*time.Second)
			So(policy.NextDelay(3), ShouldEqual, 4*time.Second)
			So(policy.NextDelay(4), ShouldEqual, 5*time.Second)
			So(policy.NextDelay(5), ShouldEqual, 5*time.Second)
		})

		Convey("Jitter should add less than a second", func() {
			for i := 0; i < 20; i++ {
				delay := policy.jittered(1)
				So(delay, ShouldBeGreaterThanOrEqualTo, time.Second)
				So(delay, ShouldBeLessThan, 2*time.Second)
			}
		})
	})

	Convey("Given the queue's backoff", t, func() {
		policy := RetryPolicy{BaseDelay: time.Second, MaxDelay: 30 * time.Second, BackoffMultiplier: 2}

		Convey("It should cap at thirty seconds", func() {
			So(policy.NextDelay(5), ShouldEqual, 16*time.Second)
			So(policy.NextDelay(6), ShouldEqual, 30*time.Second)
			So(policy.NextDelay(60), ShouldEqual, 30*time.Second)
		})
	})
}

func TestRunWithRetry(t *testing.T) {
	Convey("Given a fast policy without jitter", t, func() {
		ctx := context.Background()
		policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffMultiplier: 2}
		calls := 0

		Convey("An operation that recovers should succeed", func() {
			result, err := RunWithRetry(ctx, policy, "flaky", func(context.Context) (any, error) {
				calls++
				if calls < 3 {
					return nil, errors.New("transient")
				}
				return "ok", nil
			})

			So(err, ShouldBeNil)
			So(result, ShouldEqual, "ok")
			So(calls, ShouldEqual, 3)
		})

		Convey("An operation that never recovers should return the last error", func() {
			_, err := RunWithRetry(ctx, policy, "broken", func(context.Context) (any, error) {
				calls++
				return nil, fmt.Errorf("failure %d", calls)
			})

			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldEqual, "failure 3")
			So(calls, ShouldEqual, 3)
		})

		Convey("A breaker rejection should stop the loop at once", func() {
			_, err := RunWithRetry(ctx, policy, "rejected", func(context.Context) (any, error) {
				calls++
				return nil, &BreakerOpenError{Key: "geocoding:google"}
			})

			So(IsBreakerOpen(err), ShouldBeTrue)
			So(calls, ShouldEqual, 1)
		})

		Convey("Invalid input should not be retried", func() {
			_, err := RunWithRetry(ctx, policy, "invalid", func(context.Context) (any, error) {
				calls++
				return nil, fmt.Errorf("%w: bad point", ErrInvalidInput)
			})

			So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)
			So(calls, ShouldEqual, 1)
		})

		Convey("A filter that rejects the error should stop the loop", func() {
			permanent := errors.New("permanent")
			policy.Filter = func(err error) bool { return !errors.Is(err, permanent) }

			_, err := RunWithRetry(ctx, policy, "filtered", func(context.Context) (any, error) {
				calls++
				return nil, permanent
			})

			So(err, ShouldEqual, permanent)
			So(calls, ShouldEqual, 1)
		})

		Convey("Cancelling during the backoff sleep should return the context error", func() {
			policy.BaseDelay = time.Hour
			policy.MaxDelay = time.Hour
			ctx, cancel := context.WithCancel(ctx)
			time.AfterFunc(10*time.Millisecond, cancel)

			_, err := RunWithRetry(ctx, policy, "slow", func(context.Context) (any, error) {
				calls++
				return nil, errors.New("transient")
			})

			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			So(calls, ShouldEqual, 1)
		})

		Convey("A non-positive attempt budget should still run once", func() {
			policy.MaxAttempts = 0
			_, err := RunWithRetry(ctx, policy, "once", func(context.Context) (any, error) {
				calls++
				return nil, errors.New("nope")
			})

			So(err, ShouldNotBeNil)
			So(calls, ShouldEqual, 1)
		})
	})
}
