// Package main provides the Temporal worker for Helicone integration
// workflows.
//
// The worker hosts the integration workflow and all of its activities: the
// GitHub gateway, the git workspace manager, the Claude coding agent, and
// the status reporter.
//
// Usage:
//
//	TEMPORAL_HOST_PORT=localhost:7233 \
//	GITHUB_TOKEN=ghp_xxx \
//	ANTHROPIC_API_KEY=sk-ant-xxx \
//	./integration-worker -config config.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/Helicone/temporal-integration/internal/agent"
	"github.com/Helicone/temporal-integration/internal/config"
	"github.com/Helicone/temporal-integration/internal/githost"
	"github.com/Helicone/temporal-integration/internal/logging"
	"github.com/Helicone/temporal-integration/internal/status"
	"github.com/Helicone/temporal-integration/internal/workflows"
	"github.com/Helicone/temporal-integration/internal/workspace"
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
	if err := cfg.ValidateWorker(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info(ctx, "integration worker starting",
		zap.String("temporal_host", cfg.Temporal.HostPort),
		zap.String("task_queue", cfg.Temporal.TaskQueue),
	)

	// Leaf dependencies for the activities.
	gateway, err := githost.NewGateway(ctx, cfg.GitHub.Token)
	if err != nil {
		return fmt.Errorf("creating github gateway: %w", err)
	}

	workspaces, err := workspace.NewManager(cfg.Workspace.BaseDir, cfg.GitHub.BotIdentity)
	if err != nil {
		return fmt.Errorf("creating workspace manager: %w", err)
	}

	runner := agent.NewClaudeRunner(cfg.Anthropic, logger)

	reporter := status.MultiReporter{status.NewLogReporter(logger)}
	if cfg.Status.NATSURL != "" {
		natsReporter, err := status.NewNATSReporter(cfg.Status.NATSURL, cfg.Status.SubjectPrefix)
		if err != nil {
			return fmt.Errorf("connecting status reporter: %w", err)
		}
		defer func() { _ = natsReporter.Close() }()
		reporter = append(reporter, natsReporter)
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		return fmt.Errorf("unable to create Temporal client: %w", err)
	}
	defer c.Close()

	logger.Info(ctx, "temporal client connected", zap.String("host", cfg.Temporal.HostPort))

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	w.RegisterWorkflow(workflows.IntegrationWorkflow)
	w.RegisterActivity(&workflows.Activities{
		Gateway:   gateway,
		Workspace: workspaces,
		Runner:    runner,
		Reporter:  reporter,
		Token:     cfg.GitHub.Token,
	})

	workerErrors := make(chan error, 1)
	go func() {
		logger.Info(ctx, "worker starting")
		workerErrors <- w.Run(worker.InterruptCh())
	}()

	select {
	case err := <-workerErrors:
		if err != nil {
			return fmt.Errorf("worker error: %w", err)
		}
	case <-ctx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	logger.Info(ctx, "worker stopped gracefully")
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
