package ridinglookup

import (
	"context"
	"encoding/json"
	"fmt"
)

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate rejects coordinates outside the valid ranges.
func (p Point) Validate() error {
	if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("%w: point out of range: %v,%v", ErrInvalidInput, p.Lat, p.Lon)
	}
	return nil
}

// Attributes describe the district a point resolved to.
type Attributes map[string]any

// Geocoder turns a free-form query into a point.
type Geocoder interface {
	Name() string
	Geocode(ctx context.Context, query string) (Point, error)
}

// Resolver finds the district containing a point; nil attributes mean none does.
type Resolver interface {
	Name() string
	Resolve(ctx context.Context, point Point) (Attributes, error)
}

// LookupRequest is the payload of a lookup job: either a query or a point.
type LookupRequest struct {
	Query string   `json:"query,omitempty"`
	Lat   *float64 `json:"lat,omitempty"`
	Lon   *float64 `json:"lon,omitempty"`
}

// LookupResult is what a lookup job stores as its result.
type LookupResult struct {
	Query      string     `json:"query,omitempty"`
	Point      Point      `json:"point"`
	Attributes Attributes `json:"attributes"`
}

/*
LookupService resolves requests to districts, calling the geocoder and the resolver
through a Guard keyed per dependency ("geocoding:<name>", "resolver:<name>").
*/
type LookupService struct {
	guard    *Guard
	geocoder Geocoder
	resolver Resolver
}

// NewLookupService wires the collaborators. geocoder may be nil when only points are looked up.
func NewLookupService(guard *Guard, geocoder Geocoder, resolver Resolver) *LookupService {
	return &LookupService{guard: guard, geocoder: geocoder, resolver: resolver}
}

// Lookup geocodes the request when it carries no point, then resolves the point.
func (ls *LookupService) Lookup(ctx context.Context, req LookupRequest) (*LookupResult, error) {
	point, err := ls.point(ctx, req)
	if err != nil {
		return nil, err
	}

	key := "resolver:" + ls.resolver.Name()
	raw, err := ls.guard.Do(ctx, key, "resolve", func(ctx context.Context) (any, error) {
		return ls.resolver.Resolve(ctx, point)
	})
	if err != nil {
		return nil, fmt.Errorf("resolving %v,%v: %w", point.Lat, point.Lon, err)
	}

	attrs, _ := raw.(Attributes)
	return &LookupResult{Query: req.Query, Point: point, Attributes: attrs}, nil
}

func (ls *LookupService) point(ctx context.Context, req LookupRequest) (Point, error) {
	if req.Lat != nil && req.Lon != nil {
		point := Point{Lat: *req.Lat, Lon: *req.Lon}
		return point, point.Validate()
	}

	if req.Query == "" {
		return Point{}, fmt.Errorf("%w: lookup needs a query or lat and lon", ErrInvalidInput)
	}
	if ls.geocoder == nil {
		return Point{}, fmt.Errorf("%w: no geocoder configured for query lookups", ErrInvalidInput)
	}

	key := "geocoding:" + ls.geocoder.Name()
	raw, err := ls.guard.Do(ctx, key, "geocode", func(ctx context.Context) (any, error) {
		return ls.geocoder.Geocode(ctx, req.Query)
	})
	if err != nil {
		return Point{}, fmt.Errorf("geocoding %q: %w", req.Query, err)
	}

	point, ok := raw.(Point)
	if !ok {
		return Point{}, fmt.Errorf("geocoder %s returned %T", ls.geocoder.Name(), raw)
	}
	return point, point.Validate()
}

// Executor adapts the service to the job queue: each job payload is a LookupRequest.
func (ls *LookupService) Executor() Executor {
	return func(ctx context.Context, job *Job) (any, error) {
		var req LookupRequest
		if err := json.Unmarshal(job.Payload, &req); err != nil {
			return nil, fmt.Errorf("%w: job %s payload: %v", ErrInvalidInput, job.ID, err)
		}
		return ls.Lookup(ctx, req)
	}
}
