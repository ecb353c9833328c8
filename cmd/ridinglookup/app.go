package main

import (
	"context"
	"fmt"

	"github.com/theapemachine/errnie"

	ridinglookup "github.com/wra-sol/ridingLookup-sub000"
	"github.com/wra-sol/ridingLookup-sub000/internal/config"
	"github.com/wra-sol/ridingLookup-sub000/internal/upstream"
	"github.com/wra-sol/ridingLookup-sub000/store"
)

// app is everything serve and process share.
type app struct {
	store       ridinglookup.Store
	coordinator *ridinglookup.SharedBreakerCoordinator
	breaker     *ridinglookup.CircuitBreaker
	lookup      *ridinglookup.LookupService
	queue       *ridinglookup.JobQueueCoordinator
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if cfg.Upstream.ResolverURL == "" {
		return nil, fmt.Errorf("%w: upstream.resolver_url is required", ridinglookup.ErrInvalidInput)
	}

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN, cfg.Store.Prefix)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Store.Driver, err)
	}

	a := &app{store: st}
	thresholds := cfg.BreakerThresholds()
	breakerOpts := []ridinglookup.BreakerOption{
		ridinglookup.WithBreakerConfig(thresholds),
		ridinglookup.WithFailureFilter(upstream.Fault),
	}

	switch cfg.Breaker.Mode {
	case config.BreakerShared:
		a.coordinator, err = ridinglookup.NewSharedBreakerCoordinator(ctx, st, thresholds)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.breaker = ridinglookup.NewSharedCircuitBreaker(a.coordinator, breakerOpts...)
	case config.BreakerRemote:
		remote := ridinglookup.NewRemoteBreakerBackend(cfg.Breaker.CoordinatorURL, nil)
		a.breaker = ridinglookup.NewSharedCircuitBreaker(remote, breakerOpts...)
	default:
		a.breaker = ridinglookup.NewCircuitBreaker(breakerOpts...)
	}

	policy := cfg.RetryPolicy()
	policy.Filter = upstream.Retryable
	guard := ridinglookup.NewGuard(a.breaker, policy, cfg.Upstream.Timeout)

	var geocoder ridinglookup.Geocoder
	if cfg.Upstream.GeocoderURL != "" {
		geocoder = upstream.NewHTTPGeocoder("http", cfg.Upstream.GeocoderURL, cfg.Upstream.Timeout)
	}
	resolver := upstream.NewHTTPResolver("districts", cfg.Upstream.ResolverURL, cfg.Upstream.Timeout)
	a.lookup = ridinglookup.NewLookupService(guard, geocoder, resolver)

	a.queue, err = ridinglookup.NewJobQueueCoordinator(
		ctx,
		a.lookup.Executor(),
		ridinglookup.WithStore(st),
		ridinglookup.WithMaxAttempts(cfg.Queue.MaxAttempts),
		ridinglookup.WithJobTimeout(cfg.Queue.JobTimeout),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	errnie.Info("app - store=%s breaker=%s", cfg.Store.Driver, cfg.Breaker.Mode)
	return a, nil
}

// Close stops the actors before the store they persist into.
func (a *app) Close() {
	if a.queue != nil {
		a.queue.Close()
	}
	if a.coordinator != nil {
		a.coordinator.Close()
	}
	if err := a.store.Close(); err != nil {
		ridinglookup.Logger().Error("closing store", "err", err)
	}
}
