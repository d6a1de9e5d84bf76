package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/haasonsaas/charlotte/internal/app"
	"github.com/haasonsaas/charlotte/internal/config"
)

// runServe loads configuration, assembles the instance and serves until a
// shutdown signal arrives.
func runServe(ctx context.Context, opts *rootOptions, watch bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	path, cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := opts.logger(cfg)
	logger.Info("starting charlotte",
		"version", version,
		"commit", commit,
		"config", path,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, app.Options{Version: version, Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := a.Close(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	srv, err := a.Server()
	if err != nil {
		return err
	}

	if watch && path != "" {
		go func() {
			err := config.Watch(ctx, path, logger, func(next *config.Config) {
				a.Reload(next)
			})
			if err != nil {
				logger.Warn("config watcher stopped", "error", err)
			}
		}()
	}

	logger.Info("charlotte started", "addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	if err := srv.Serve(ctx); err != nil {
		return err
	}
	logger.Info("charlotte stopped gracefully")
	return nil
}
