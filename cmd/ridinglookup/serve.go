package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	ridinglookup "github.com/wra-sol/ridingLookup-sub000"
	"github.com/wra-sol/ridingLookup-sub000/internal/config"
	"github.com/wra-sol/ridingLookup-sub000/internal/server"
)

func serveCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and drain the job queue in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			scheduler := ridinglookup.NewScheduler(ctx, a.queue, cfg.Scheduler())
			defer scheduler.Close()

			deps := server.Deps{Queue: a.queue, Lookup: a.lookup}
			if a.coordinator != nil {
				deps.Breakers = a.coordinator
			}

			srv := &http.Server{
				Addr:              cfg.HTTP.Addr,
				Handler:           server.NewRouter(deps),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errs := make(chan error, 1)
			go func() {
				ridinglookup.Logger().Info("listening", "addr", cfg.HTTP.Addr, "breaker", cfg.Breaker.Mode)
				errs <- srv.ListenAndServe()
			}()

			select {
			case err := <-errs:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
			}

			ridinglookup.Logger().Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}
