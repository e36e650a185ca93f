// Package main provides the HTTP API server for the Helicone integration
// service.
//
// The server exposes endpoints to start integrations, submit review
// decisions, and query instance status. All durable state lives in the
// workflow engine; this process holds none.
//
// Usage:
//
//	TEMPORAL_HOST_PORT=localhost:7233 \
//	SERVER_PORT=8350 \
//	./integration-server -config config.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Helicone/temporal-integration/internal/config"
	ihttp "github.com/Helicone/temporal-integration/internal/http"
	"github.com/Helicone/temporal-integration/internal/logging"
	"github.com/Helicone/temporal-integration/internal/orchestrate"
	"github.com/Helicone/temporal-integration/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info(ctx, "integration server starting",
		zap.String("temporal_host", cfg.Temporal.HostPort),
		zap.Int("port", cfg.Server.Port),
	)

	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer flushCancel()
		if err := tel.Shutdown(flushCtx); err != nil {
			logger.Warn(context.Background(), "telemetry shutdown failed", zap.Error(err))
		}
	}()

	orchestrator, err := orchestrate.Dial(cfg.Temporal)
	if err != nil {
		return err
	}
	defer orchestrator.Close()

	srv, err := ihttp.NewServer(orchestrator, logger.Underlying(), &ihttp.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	logger.Info(ctx, "server stopped gracefully")
	return nil
}

func newLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	level, err := logging.LevelFromString(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	logCfg := logging.NewDefaultConfig()
	logCfg.Level = level
	logCfg.Format = cfg.Format
	return logging.NewLogger(logCfg)
}
