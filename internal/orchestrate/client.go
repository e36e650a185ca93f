// Package orchestrate wraps the Temporal client for integration instances.
// Both the HTTP API and the CLI drive integrations through this package, so
// neither needs to know workflow ids, task queues, or signal names.
package orchestrate

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/Helicone/temporal-integration/internal/config"
	"github.com/Helicone/temporal-integration/internal/workflows"
)

// ErrInstanceNotFound marks an integration id with no known instance.
var ErrInstanceNotFound = errors.New("integration instance not found")

// Client drives integration instances on the workflow engine. The
// integration id doubles as the workflow id, which makes starting the same
// integration twice a no-op instead of a duplicate.
type Client struct {
	temporal  client.Client
	taskQueue string
}

// Dial connects to the workflow engine.
func Dial(cfg config.TemporalConfig) (*Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to temporal at %s: %w", cfg.HostPort, err)
	}
	return &Client{temporal: c, taskQueue: cfg.TaskQueue}, nil
}

// NewWithClient wraps an existing Temporal client. Tests use this.
func NewWithClient(c client.Client, taskQueue string) *Client {
	return &Client{temporal: c, taskQueue: taskQueue}
}

// Start launches a new integration instance and returns immediately.
func (c *Client) Start(ctx context.Context, input workflows.IntegrationInput) (runID string, err error) {
	if err := input.Validate(); err != nil {
		return "", err
	}
	run, err := c.temporal.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        input.IntegrationID,
		TaskQueue: c.taskQueue,
	}, workflows.IntegrationWorkflow, input)
	if err != nil {
		return "", fmt.Errorf("starting integration %s: %w", input.IntegrationID, err)
	}
	return run.GetRunID(), nil
}

// SubmitReview delivers a reviewer decision to a running instance.
func (c *Client) SubmitReview(ctx context.Context, integrationID string, decision workflows.ReviewDecision) error {
	err := c.temporal.SignalWorkflow(ctx, integrationID, "", workflows.SignalReviewDecision, decision)
	if err != nil {
		return mapNotFound(integrationID, err)
	}
	return nil
}

// Status queries the instance's current state without blocking on the
// workflow.
func (c *Client) Status(ctx context.Context, integrationID string) (*workflows.IntegrationResult, error) {
	value, err := c.temporal.QueryWorkflow(ctx, integrationID, "", workflows.QueryStatus)
	if err != nil {
		return nil, mapNotFound(integrationID, err)
	}
	var result workflows.IntegrationResult
	if err := value.Get(&result); err != nil {
		return nil, fmt.Errorf("decoding status of %s: %w", integrationID, err)
	}
	return &result, nil
}

// Result blocks until the instance reaches a terminal phase.
func (c *Client) Result(ctx context.Context, integrationID string) (*workflows.IntegrationResult, error) {
	run := c.temporal.GetWorkflow(ctx, integrationID, "")
	var result workflows.IntegrationResult
	if err := run.Get(ctx, &result); err != nil {
		return nil, mapNotFound(integrationID, err)
	}
	return &result, nil
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.temporal.Close()
}

// mapNotFound translates the engine's not-found error into the package
// sentinel so callers can branch without importing Temporal types.
func mapNotFound(integrationID string, err error) error {
	var notFound *serviceerror.NotFound
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %s", ErrInstanceNotFound, integrationID)
	}
	return err
}
