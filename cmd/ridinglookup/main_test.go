package main

import (
	"bytes"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func run(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	Convey("Given the root command", t, func() {
		Convey("config show should print the effective configuration", func() {
			t.Setenv("RIDING_STORE_PREFIX", "cli-test")

			out, err := run("config", "show")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, `"driver": "memory"`)
			So(out, ShouldContainSubstring, `"prefix": "cli-test"`)
		})

		Convey("inspect should report an empty memory store", func() {
			out, err := run("inspect", "queue")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "nothing persisted")
		})

		Convey("inspect should reject unknown coordinators", func() {
			_, err := run("inspect", "workers")
			So(err, ShouldNotBeNil)
		})

		Convey("process should require a resolver", func() {
			_, err := run("process", "--max", "1")
			So(err, ShouldNotBeNil)
		})

		Convey("An invalid breaker mode should fail before running", func() {
			t.Setenv("RIDING_BREAKER_MODE", "sideways")
			_, err := run("config", "show")
			So(err, ShouldNotBeNil)
		})
	})
}
