package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	ridinglookup "github.com/wra-sol/ridingLookup-sub000"
)

func TestHTTPGeocoder(t *testing.T) {
	Convey("Given a geocoding service", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Query().Get("q") {
			case "1 Main St":
				fmt.Fprint(w, `{"lat": 45.42, "lon": -75.69}`)
			case "boom":
				http.Error(w, "upstream exploded", http.StatusBadGateway)
			default:
				http.NotFound(w, r)
			}
		}))
		defer srv.Close()

		geocoder := NewHTTPGeocoder("test", srv.URL, time.Second)

		Convey("It should decode a match", func() {
			point, err := geocoder.Geocode(context.Background(), "1 Main St")
			So(err, ShouldBeNil)
			So(point, ShouldResemble, ridinglookup.Point{Lat: 45.42, Lon: -75.69})
			So(geocoder.Name(), ShouldEqual, "test")
		})

		Convey("A miss should be not found and not retryable", func() {
			_, err := geocoder.Geocode(context.Background(), "nowhere")
			So(errors.Is(err, ridinglookup.ErrNotFound), ShouldBeTrue)
			So(Retryable(err), ShouldBeFalse)
		})

		Convey("A 5xx should surface as a retryable StatusError", func() {
			_, err := geocoder.Geocode(context.Background(), "boom")

			var status *StatusError
			So(errors.As(err, &status), ShouldBeTrue)
			So(status.Status, ShouldEqual, http.StatusBadGateway)
			So(Retryable(err), ShouldBeTrue)
		})
	})
}

func TestHTTPResolver(t *testing.T) {
	Convey("Given a district service", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			switch r.URL.Query().Get("lat") {
			case "45.42":
				fmt.Fprint(w, `{"district": "Ottawa Centre", "code": 35075}`)
			case "0":
				fmt.Fprint(w, `null`)
			default:
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"error": "bad point"}`)
			}
		}))
		defer srv.Close()

		resolver := NewHTTPResolver("districts", srv.URL, time.Second)

		Convey("It should return the attributes of the containing district", func() {
			attrs, err := resolver.Resolve(context.Background(), ridinglookup.Point{Lat: 45.42, Lon: -75.69})
			So(err, ShouldBeNil)
			So(attrs["district"], ShouldEqual, "Ottawa Centre")
		})

		Convey("A null body should mean no district", func() {
			attrs, err := resolver.Resolve(context.Background(), ridinglookup.Point{})
			So(err, ShouldBeNil)
			So(attrs, ShouldBeNil)
		})

		Convey("A 4xx should not be retried", func() {
			_, err := resolver.Resolve(context.Background(), ridinglookup.Point{Lat: 10, Lon: 10})
			So(err, ShouldNotBeNil)
			So(Retryable(err), ShouldBeFalse)
		})
	})
}

func TestGeocoderMissesKeepBreakerClosed(t *testing.T) {
	Convey("Given a healthy geocoder behind a guarded lookup", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Query().Get("q") {
			case "Parliament Hill":
				fmt.Fprint(w, `{"lat": 45.42, "lon": -75.70}`)
			case "outage":
				http.Error(w, "down", http.StatusServiceUnavailable)
			default:
				http.NotFound(w, r)
			}
		}))
		defer srv.Close()

		resolver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"district": "Ottawa Centre"}`)
		}))
		defer resolver.Close()

		breaker := ridinglookup.NewCircuitBreaker(
			ridinglookup.WithBreakerConfig(ridinglookup.BreakerConfig{
				FailureThreshold: 2,
				RecoveryTimeout:  time.Minute,
				SuccessThreshold: 1,
			}),
			ridinglookup.WithFailureFilter(Fault),
		)
		policy := ridinglookup.RetryPolicy{MaxAttempts: 1, Filter: Retryable}
		service := ridinglookup.NewLookupService(
			ridinglookup.NewGuard(breaker, policy, time.Second),
			NewHTTPGeocoder("http", srv.URL, time.Second),
			NewHTTPResolver("districts", resolver.URL, time.Second),
		)
		ctx := context.Background()

		Convey("Repeated misses should leave real queries working", func() {
			for i := 0; i < 5; i++ {
				_, err := service.Lookup(ctx, ridinglookup.LookupRequest{Query: "nowhere"})
				So(errors.Is(err, ridinglookup.ErrNotFound), ShouldBeTrue)
			}

			result, err := service.Lookup(ctx, ridinglookup.LookupRequest{Query: "Parliament Hill"})
			So(err, ShouldBeNil)
			So(result.Attributes["district"], ShouldEqual, "Ottawa Centre")
		})

		Convey("Upstream outages should still open it", func() {
			for i := 0; i < 2; i++ {
				service.Lookup(ctx, ridinglookup.LookupRequest{Query: "outage"})
			}

			_, err := service.Lookup(ctx, ridinglookup.LookupRequest{Query: "Parliament Hill"})
			So(ridinglookup.IsBreakerOpen(err), ShouldBeTrue)
		})

		Convey("Fault should single out transient failures", func() {
			So(Fault(ridinglookup.ErrNotFound), ShouldBeFalse)
			So(Fault(&StatusError{Service: "geocoder", Status: http.StatusBadRequest}), ShouldBeFalse)
			So(Fault(&StatusError{Service: "geocoder", Status: http.StatusBadGateway}), ShouldBeTrue)
			So(Fault(errors.New("dial tcp: connection refused")), ShouldBeTrue)
		})
	})
}
