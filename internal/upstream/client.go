// Package upstream adapts HTTP geocoding and district services to the lookup collaborators.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	ridinglookup "github.com/wra-sol/ridingLookup-sub000"
)

// StatusError is returned for any non-2xx upstream response.
type StatusError struct {
	Service string
	Status  int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s responded %d: %s", e.Service, e.Status, e.Body)
}

// Temporary reports whether the failure is worth retrying. 4xx responses other than 429 are not.
func (e *StatusError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Retryable is a RetryPolicy filter: misses and client errors are final.
func Retryable(err error) bool {
	if errors.Is(err, ridinglookup.ErrNotFound) {
		return false
	}

	var status *StatusError
	if errors.As(err, &status) {
		return status.Temporary()
	}
	return true
}

// Fault is a breaker failure filter: only errors that are also worth retrying count.
func Fault(err error) bool {
	return ridinglookup.IsFault(err) && Retryable(err)
}

type client struct {
	name    string
	baseURL string
	http    *http.Client
}

func newClient(name, baseURL string, timeout time.Duration) client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return client{
		name:    name,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// getJSON fetches url and decodes the body into out. found is false on 404.
func (c client) getJSON(ctx context.Context, url string, out any) (found bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("%s: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, &StatusError{Service: c.name, Status: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("%s: decoding response: %w", c.name, err)
	}
	return true, nil
}
