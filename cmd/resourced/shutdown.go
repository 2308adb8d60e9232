package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vyrodovalexey/resourcesync/internal/config"
	"github.com/vyrodovalexey/resourcesync/internal/observability"
)

// runServer serves the API until SIGINT or SIGTERM, then shuts down.
func runServer(app *application, flags cliFlags, logger observability.Logger) error {
	addr, err := app.server.Listen()
	if err != nil {
		return err
	}
	logger.Info("resource API listening", observability.String("address", addr.String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.server.Serve()
	}()

	var watcher *config.Watcher
	if flags.watch {
		if _, statErr := os.Stat(flags.configPath); statErr == nil {
			watcher = startConfigWatcher(app, flags.configPath, logger)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", observability.String("signal", sig.String()))
	case err = <-errCh:
		logger.Error("server stopped unexpectedly", observability.Error(err))
	}

	if watcher != nil {
		_ = watcher.Stop()
	}
	app.shutdown()
	return err
}

// shutdown stops every component, the HTTP server first.
func (app *application) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout.Duration())
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("failed to stop server gracefully", observability.Error(err))
	}

	if app.rateLimiter != nil {
		app.rateLimiter.Stop()
	}

	if app.cache != nil {
		if err := app.cache.Close(); err != nil {
			app.logger.Error("failed to close query cache", observability.Error(err))
		}
	}

	if err := app.tracer.Shutdown(ctx); err != nil {
		app.logger.Error("failed to shutdown tracer", observability.Error(err))
	}

	app.logger.Info("resourced stopped")
}
