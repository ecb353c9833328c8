package ridinglookup

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLocalBreakers(t *testing.T) {
	Convey("Given local breakers with a threshold of 3", t, func() {
		ctx := context.Background()
		clock := newFakeClock()
		config := BreakerConfig{FailureThreshold: 3, RecoveryTimeout: time.Minute, SuccessThreshold: 2}
		breakers := NewLocalBreakers(config, clock.Now)
		key := "geocoding:google"

		Convey("An unseen key should be closed and allowed", func() {
			decision, err := breakers.Check(ctx, key)
			So(err, ShouldBeNil)
			So(decision.Allowed, ShouldBeTrue)
			So(decision.State.State, ShouldEqual, CircuitClosed)
		})

		Convey("Failures below the threshold should keep it closed", func() {
			breakers.ReportFailure(ctx, key)
			st, _ := breakers.ReportFailure(ctx, key)
			So(st.State, ShouldEqual, CircuitClosed)
			So(st.FailureCount, ShouldEqual, 2)

			Convey("And a success should reset the count", func() {
				st, _ := breakers.ReportSuccess(ctx, key)
				So(st.FailureCount, ShouldEqual, 0)
			})
		})

		Convey("Reaching the threshold should open it", func() {
			t0 := clock.Now()
			for i := 0; i < 3; i++ {
				breakers.ReportFailure(ctx, key)
			}

			st, err := breakers.State(ctx, key)
			So(err, ShouldBeNil)
			So(st.State, ShouldEqual, CircuitOpen)
			So(st.NextAttemptTime, ShouldEqual, t0.Add(time.Minute))

			Convey("Calls should be rejected until the recovery timeout has passed", func() {
				clock.Advance(time.Minute)
				decision, _ := breakers.Check(ctx, key)
				So(decision.Allowed, ShouldBeFalse)
				So(decision.State.State, ShouldEqual, CircuitOpen)
			})

			Convey("Just past the recovery timeout one probe should be admitted", func() {
				clock.Advance(time.Minute + time.Millisecond)

				decision, _ := breakers.Check(ctx, key)
				So(decision.Allowed, ShouldBeTrue)
				So(decision.State.State, ShouldEqual, CircuitHalfOpen)

				second, _ := breakers.Check(ctx, key)
				So(second.Allowed, ShouldBeFalse)

				Convey("Enough successful probes should close it", func() {
					st, _ := breakers.ReportSuccess(ctx, key)
					So(st.State, ShouldEqual, CircuitHalfOpen)
					So(st.SuccessCount, ShouldEqual, 1)

					next, _ := breakers.Check(ctx, key)
					So(next.Allowed, ShouldBeTrue)

					st, _ = breakers.ReportSuccess(ctx, key)
					So(st.State, ShouldEqual, CircuitClosed)
					So(st.FailureCount, ShouldEqual, 0)
				})

				Convey("A failed probe should reopen it", func() {
					st, _ := breakers.ReportFailure(ctx, key)
					So(st.State, ShouldEqual, CircuitOpen)
					So(st.NextAttemptTime, ShouldEqual, clock.Now().Add(time.Minute))
				})

				Convey("A probe that never reports should go stale", func() {
					clock.Advance(time.Minute + time.Millisecond)
					decision, _ := breakers.Check(ctx, key)
					So(decision.Allowed, ShouldBeTrue)
				})
			})
		})

		Convey("Reset should forget a key", func() {
			breakers.ReportFailure(ctx, "a")
			breakers.ReportFailure(ctx, "b")

			So(breakers.Reset(ctx, "a"), ShouldBeNil)
			states, _ := breakers.States(ctx)
			So(len(states), ShouldEqual, 1)
			So(states[0].Key, ShouldEqual, "b")

			So(breakers.Reset(ctx, ""), ShouldBeNil)
			states, _ = breakers.States(ctx)
			So(states, ShouldBeEmpty)
		})

		Convey("States should be sorted by key", func() {
			breakers.Check(ctx, "resolver:districts")
			breakers.Check(ctx, "blob:riding-db")
			breakers.Check(ctx, "geocoding:google")

			states, _ := breakers.States(ctx)
			So(len(states), ShouldEqual, 3)
			So(states[0].Key, ShouldEqual, "blob:riding-db")
			So(states[2].Key, ShouldEqual, "resolver:districts")
		})

		Convey("UpdateConfig should only overlay positive fields", func() {
			next, err := breakers.UpdateConfig(ctx, BreakerConfig{FailureThreshold: 10})
			So(err, ShouldBeNil)
			So(next.FailureThreshold, ShouldEqual, 10)
			So(next.RecoveryTimeout, ShouldEqual, time.Minute)
			So(next.SuccessThreshold, ShouldEqual, 2)
		})
	})
}

func TestBreakerConfig(t *testing.T) {
	Convey("Given breaker thresholds", t, func() {
		Convey("The defaults should be valid", func() {
			So(DefaultBreakerConfig().Validate(), ShouldBeNil)
		})

		Convey("Non-positive values should be rejected", func() {
			So(BreakerConfig{FailureThreshold: 0, RecoveryTimeout: time.Second, SuccessThreshold: 1}.Validate(), ShouldNotBeNil)
			So(BreakerConfig{FailureThreshold: 1, RecoveryTimeout: 0, SuccessThreshold: 1}.Validate(), ShouldNotBeNil)
			So(BreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Second, SuccessThreshold: 0}.Validate(), ShouldNotBeNil)
		})
	})
}
