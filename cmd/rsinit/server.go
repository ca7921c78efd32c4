package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the rsinit HTTP API server",
	Long: `Start the rsinit HTTP server on the configured port (default :8082).

The server runs one bootstrap in the background at startup and exposes
endpoints to trigger further runs, read the last result and the live
replica set status, and probe health. It shuts down cleanly on SIGTERM
or SIGINT.`,
	RunE: runServer,
}

func runServer(cmd *cobra.Command, args []string) error {
	defer app.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      app.router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start the server in a goroutine so we can listen for shutdown signals.
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("rsinit server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		runCtx, cancel := context.WithTimeout(ctx, cfg.Bootstrap.Timeout)
		defer cancel()
		if _, err := app.initiator.Run(runCtx); err != nil {
			slog.Error("startup bootstrap failed", "target", app.describe(), "err", err)
		}
	}()

	select {
	case err := <-serverErr:
		stop()
		<-runDone
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	<-runDone

	slog.Info("server stopped cleanly")
	return nil
}
