package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	. "github.com/smartystreets/goconvey/convey"

	ridinglookup "github.com/wra-sol/ridingLookup-sub000"
)

func TestLoad(t *testing.T) {
	Convey("Given no config file and no environment", t, func() {
		cfg, err := Load("")

		Convey("It should fall back to the defaults", func() {
			So(err, ShouldBeNil)
			So(cfg.HTTP.Addr, ShouldEqual, ":8080")
			So(cfg.Store.Driver, ShouldEqual, "memory")
			So(cfg.Breaker.Mode, ShouldEqual, BreakerLocal)
			So(cfg.Breaker.FailureThreshold, ShouldEqual, 5)
			So(cfg.Breaker.RecoveryTimeout, ShouldEqual, 60*time.Second)
			So(cfg.Breaker.SuccessThreshold, ShouldEqual, 2)
			So(cfg.Queue.MaxAttempts, ShouldEqual, ridinglookup.DefaultMaxAttempts)
			So(cfg.Queue.JobTimeout, ShouldEqual, 30*time.Second)
			So(cfg.Retry.MaxAttempts, ShouldEqual, 3)
			So(cfg.Retry.MaxDelay, ShouldEqual, 5*time.Second)
		})
	})

	Convey("Given environment overrides", t, func() {
		t.Setenv("RIDING_STORE_DRIVER", "SQLite")
		t.Setenv("RIDING_STORE_DSN", "/tmp/riding.db")
		t.Setenv("RIDING_BREAKER_FAILURE_THRESHOLD", "3")
		t.Setenv("RIDING_QUEUE_JOB_TIMEOUT", "5s")

		cfg, err := Load("")

		Convey("It should pick them up", func() {
			So(err, ShouldBeNil)
			So(cfg.Store.Driver, ShouldEqual, "sqlite")
			So(cfg.Store.DSN, ShouldEqual, "/tmp/riding.db")
			So(cfg.Breaker.FailureThreshold, ShouldEqual, 3)
			So(cfg.Queue.JobTimeout, ShouldEqual, 5*time.Second)
		})
	})

	Convey("Given a yaml file", t, func() {
		path := filepath.Join(t.TempDir(), "config.yaml")
		So(os.WriteFile(path, []byte("breaker:\n  mode: shared\nqueue:\n  workers: 4\n"), 0o600), ShouldBeNil)

		cfg, err := Load(path)

		Convey("It should overlay the file on the defaults", func() {
			So(err, ShouldBeNil)
			So(cfg.Breaker.Mode, ShouldEqual, BreakerShared)
			So(cfg.Queue.Workers, ShouldEqual, 4)
			So(cfg.Queue.BatchSize, ShouldEqual, 10)
		})
	})

	Convey("Given a missing config file", t, func() {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))

		Convey("It should fail", func() {
			So(err, ShouldNotBeNil)
		})
	})
}

func TestValidate(t *testing.T) {
	Convey("Given a loaded config", t, func() {
		cfg, err := Load("")
		So(err, ShouldBeNil)

		Convey("An unknown driver should be rejected", func() {
			cfg.Store.Driver = "etcd"
			So(errors.Is(cfg.Validate(), ridinglookup.ErrInvalidInput), ShouldBeTrue)
		})

		Convey("Remote mode should require a coordinator url", func() {
			cfg.Breaker.Mode = BreakerRemote
			So(errors.Is(cfg.Validate(), ridinglookup.ErrInvalidInput), ShouldBeTrue)

			cfg.Breaker.CoordinatorURL = "http://coordinator:8080"
			So(cfg.Validate(), ShouldBeNil)
		})

		Convey("A zero failure threshold should be rejected", func() {
			cfg.Breaker.FailureThreshold = 0
			So(errors.Is(cfg.Validate(), ridinglookup.ErrInvalidInput), ShouldBeTrue)
		})

		Convey("Zero workers should be rejected", func() {
			cfg.Queue.Workers = 0
			So(errors.Is(cfg.Validate(), ridinglookup.ErrInvalidInput), ShouldBeTrue)
		})
	})
}

func TestLogger(t *testing.T) {
	Convey("Given a log section", t, func() {
		Convey("A known level and format should build a logger", func() {
			logger, err := LogConfig{Level: "debug", Format: "json"}.Logger()
			So(err, ShouldBeNil)
			So(logger.GetLevel(), ShouldEqual, log.DebugLevel)
		})

		Convey("An unknown format should fail", func() {
			_, err := LogConfig{Level: "info", Format: "xml"}.Logger()
			So(errors.Is(err, ridinglookup.ErrInvalidInput), ShouldBeTrue)
		})

		Convey("An unknown level should fail", func() {
			_, err := LogConfig{Level: "loud"}.Logger()
			So(err, ShouldNotBeNil)
		})
	})
}
