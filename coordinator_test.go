package ridinglookup

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSharedBreakerCoordinator(t *testing.T) {
	Convey("Given a coordinator over a memory store", t, func() {
		ctx := context.Background()
		store := NewMemoryStore()
		clock := newFakeClock()
		config := BreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Minute, SuccessThreshold: 1}

		coordinator, err := NewSharedBreakerCoordinator(ctx, store, config, WithBreakerClock(clock.Now))
		So(err, ShouldBeNil)

		Convey("An unknown key should not be found", func() {
			_, err := coordinator.State(ctx, "nope")
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			coordinator.Close()
		})

		Convey("A repeated check on a closed key should not rewrite the store", func() {
			coordinator.Check(ctx, "k")
			saves := store.Saves()

			coordinator.Check(ctx, "k")
			coordinator.Check(ctx, "k")
			So(store.Saves(), ShouldEqual, saves)
			coordinator.Close()
		})

		Convey("An opened breaker should survive a restart", func() {
			coordinator.ReportFailure(ctx, "geocoding:google")
			coordinator.ReportFailure(ctx, "geocoding:google")
			_, err := coordinator.UpdateConfig(ctx, BreakerConfig{SuccessThreshold: 3})
			So(err, ShouldBeNil)
			coordinator.Close()

			restarted, err := NewSharedBreakerCoordinator(ctx, store, DefaultBreakerConfig(), WithBreakerClock(clock.Now))
			So(err, ShouldBeNil)
			defer restarted.Close()

			st, err := restarted.State(ctx, "geocoding:google")
			So(err, ShouldBeNil)
			So(st.State, ShouldEqual, CircuitOpen)
			So(st.FailureCount, ShouldEqual, 2)
			So(st.NextAttemptTime.Equal(clock.Now().Add(time.Minute)), ShouldBeTrue)

			current, _ := restarted.Config(ctx)
			So(current.FailureThreshold, ShouldEqual, 2)
			So(current.SuccessThreshold, ShouldEqual, 3)

			decision, _ := restarted.Check(ctx, "geocoding:google")
			So(decision.Allowed, ShouldBeFalse)
		})

		Convey("Reset of every key should persist an empty table", func() {
			coordinator.ReportFailure(ctx, "a")
			So(coordinator.Reset(ctx, ""), ShouldBeNil)
			coordinator.Close()

			restarted, err := NewSharedBreakerCoordinator(ctx, store, config)
			So(err, ShouldBeNil)
			defer restarted.Close()

			states, _ := restarted.States(ctx)
			So(states, ShouldBeEmpty)
		})

		Convey("Calls after Close should fail with ErrClosed", func() {
			coordinator.Close()
			_, err := coordinator.Check(ctx, "k")
			So(errors.Is(err, ErrClosed), ShouldBeTrue)
		})
	})

	Convey("Given invalid thresholds", t, func() {
		_, err := NewSharedBreakerCoordinator(context.Background(), nil, BreakerConfig{})

		Convey("The coordinator should refuse to start", func() {
			So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)
		})
	})
}
