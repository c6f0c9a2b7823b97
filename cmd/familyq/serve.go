package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/familyq/internal/config"
	"github.com/dukerupert/familyq/internal/insight"
	"github.com/dukerupert/familyq/internal/server"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the daily scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

// newGenerator returns the remote insight client when an API key is
// configured and the local heuristic otherwise.
func newGenerator(cfg config.Config) insight.Generator {
	if cfg.InsightEnabled() {
		return insight.NewClient(cfg.Insight)
	}
	return insight.Heuristic{}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	logger := opts.logger

	db, err := opts.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	if !opts.cfg.InsightEnabled() {
		logger.Warn("insight API key not set, using heuristic insights")
	}
	srv := server.New(db, opts.cfg, newGenerator(opts.cfg), nil, logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv.Start(ctx)
	defer srv.Stop()

	httpServer := &http.Server{
		Addr:         ":" + opts.cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("familyq listening", "addr", httpServer.Addr, "timezone", opts.cfg.Timezone)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
