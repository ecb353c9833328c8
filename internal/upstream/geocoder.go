package upstream

import (
	"context"
	"fmt"
	"net/url"
	"time"

	ridinglookup "github.com/wra-sol/ridingLookup-sub000"
)

/*
HTTPGeocoder calls GET <baseURL>?q=<query> and expects {"lat": .., "lon": ..}.
A 404 means the provider has no match for the query.
*/
type HTTPGeocoder struct {
	client
}

func NewHTTPGeocoder(name, baseURL string, timeout time.Duration) *HTTPGeocoder {
	return &HTTPGeocoder{client: newClient(name, baseURL, timeout)}
}

func (g *HTTPGeocoder) Name() string {
	return g.name
}

func (g *HTTPGeocoder) Geocode(ctx context.Context, query string) (ridinglookup.Point, error) {
	var point ridinglookup.Point

	found, err := g.getJSON(ctx, g.baseURL+"?q="+url.QueryEscape(query), &point)
	if err != nil {
		return ridinglookup.Point{}, err
	}
	if !found {
		return ridinglookup.Point{}, fmt.Errorf("%w: no geocoding match for %q", ridinglookup.ErrNotFound, query)
	}
	return point, nil
}
