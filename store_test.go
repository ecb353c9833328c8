package ridinglookup

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMemoryStore(t *testing.T) {
	Convey("Given a memory store", t, func() {
		ctx := context.Background()
		store := NewMemoryStore()

		Convey("Loading an unknown name should return nothing", func() {
			raw, err := store.Load(ctx, QueueCoordinatorName)
			So(err, ShouldBeNil)
			So(raw, ShouldBeNil)
		})

		Convey("A saved blob should not alias the caller's slice", func() {
			blob := []byte(`{"states":{}}`)
			So(store.Save(ctx, BreakerCoordinatorName, blob), ShouldBeNil)
			blob[0] = 'x'

			raw, _ := store.Load(ctx, BreakerCoordinatorName)
			So(string(raw), ShouldEqual, `{"states":{}}`)
			So(store.Saves(), ShouldEqual, 1)
		})
	})
}
