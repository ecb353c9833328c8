package upstream

import (
	"context"
	"strconv"
	"time"

	ridinglookup "github.com/wra-sol/ridingLookup-sub000"
)

/*
HTTPResolver calls GET <baseURL>?lat=..&lon=.. on the district service. The body is
the attribute object of the containing district, or null (or a 404) when no
district contains the point.
*/
type HTTPResolver struct {
	client
}

func NewHTTPResolver(name, baseURL string, timeout time.Duration) *HTTPResolver {
	return &HTTPResolver{client: newClient(name, baseURL, timeout)}
}

func (r *HTTPResolver) Name() string {
	return r.name
}

func (r *HTTPResolver) Resolve(ctx context.Context, point ridinglookup.Point) (ridinglookup.Attributes, error) {
	var attrs ridinglookup.Attributes

	url := r.baseURL +
		"?lat=" + strconv.FormatFloat(point.Lat, 'f', -1, 64) +
		"&lon=" + strconv.FormatFloat(point.Lon, 'f', -1, 64)

	if _, err := r.getJSON(ctx, url, &attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}
