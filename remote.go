package ridinglookup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

/*
RemoteBreakerBackend reaches a SharedBreakerCoordinator served by another process
over its HTTP routes. Every method returns an error when the coordinator cannot be
reached, which CircuitBreaker turns into a local-state fallback for that call.
*/
type RemoteBreakerBackend struct {
	baseURL string
	client  *http.Client
}

// NewRemoteBreakerBackend targets the server at baseURL, e.g. "http://10.0.0.5:8080".
func NewRemoteBreakerBackend(baseURL string, client *http.Client) *RemoteBreakerBackend {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Second}
	}
	return &RemoteBreakerBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

type remoteError struct {
	Status int
	Body   string
}

func (e remoteError) Error() string {
	return fmt.Sprintf("breaker coordinator responded %d: %s", e.Status, e.Body)
}

func (rb *RemoteBreakerBackend) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, rb.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := rb.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return remoteError{Status: resp.StatusCode, Body: e.Error}
		}
		return remoteError{Status: resp.StatusCode, Body: string(raw)}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func breakerPath(key string, action string) string {
	p := "/breakers/" + url.PathEscape(key)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (rb *RemoteBreakerBackend) Check(ctx context.Context, key string) (BreakerDecision, error) {
	var decision BreakerDecision
	err := rb.do(ctx, http.MethodPost, breakerPath(key, "check"), nil, &decision)
	return decision, err
}

func (rb *RemoteBreakerBackend) ReportSuccess(ctx context.Context, key string) (BreakerState, error) {
	var st BreakerState
	err := rb.do(ctx, http.MethodPost, breakerPath(key, "success"), nil, &st)
	return st, err
}

func (rb *RemoteBreakerBackend) ReportFailure(ctx context.Context, key string) (BreakerState, error) {
	var st BreakerState
	err := rb.do(ctx, http.MethodPost, breakerPath(key, "failure"), nil, &st)
	return st, err
}

func (rb *RemoteBreakerBackend) State(ctx context.Context, key string) (BreakerState, error) {
	var st BreakerState
	err := rb.do(ctx, http.MethodGet, breakerPath(key, ""), nil, &st)
	return st, err
}

func (rb *RemoteBreakerBackend) States(ctx context.Context) ([]BreakerState, error) {
	var states []BreakerState
	err := rb.do(ctx, http.MethodGet, "/breakers", nil, &states)
	return states, err
}

func (rb *RemoteBreakerBackend) Reset(ctx context.Context, key string) error {
	if key == "" {
		return rb.do(ctx, http.MethodDelete, "/breakers", nil, nil)
	}
	return rb.do(ctx, http.MethodDelete, breakerPath(key, ""), nil, nil)
}

// BreakerConfigRequest is the wire form of a threshold update; zero fields are left unchanged.
type BreakerConfigRequest struct {
	FailureThreshold  int   `json:"failureThreshold,omitempty"`
	RecoveryTimeoutMs int64 `json:"recoveryTimeoutMs,omitempty"`
	SuccessThreshold  int   `json:"successThreshold,omitempty"`
}

// BreakerConfigFromRequest converts the wire form.
func BreakerConfigFromRequest(req BreakerConfigRequest) BreakerConfig {
	return BreakerConfig{
		FailureThreshold: req.FailureThreshold,
		RecoveryTimeout:  time.Duration(req.RecoveryTimeoutMs) * time.Millisecond,
		SuccessThreshold: req.SuccessThreshold,
	}
}

// BreakerConfigToRequest converts to the wire form.
func BreakerConfigToRequest(config BreakerConfig) BreakerConfigRequest {
	return BreakerConfigRequest{
		FailureThreshold:  config.FailureThreshold,
		RecoveryTimeoutMs: config.RecoveryTimeout.Milliseconds(),
		SuccessThreshold:  config.SuccessThreshold,
	}
}

func (rb *RemoteBreakerBackend) UpdateConfig(ctx context.Context, update BreakerConfig) (BreakerConfig, error) {
	var out BreakerConfigRequest
	if err := rb.do(ctx, http.MethodPut, "/breakers/config", BreakerConfigToRequest(update), &out); err != nil {
		return BreakerConfig{}, err
	}
	return BreakerConfigFromRequest(out), nil
}
