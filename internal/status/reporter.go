// Package status delivers integration lifecycle events to external
// consumers. Delivery is best effort: the orchestration never fails because
// a status event could not be published.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Helicone/temporal-integration/internal/logging"
)

// Event is one lifecycle notification for an integration instance.
type Event struct {
	IntegrationID string `json:"integrationId"`
	Status        string `json:"status"`
	Message       string `json:"message"`
	StagingURL    string `json:"stagingUrl,omitempty"`
	PRURL         string `json:"prUrl,omitempty"`
}

// Reporter publishes integration status events.
type Reporter interface {
	Report(ctx context.Context, event Event) error
}

// LogReporter writes events to the structured log. It is always wired so
// every transition is observable even without a message broker.
type LogReporter struct {
	log *logging.Logger
}

// NewLogReporter returns a reporter backed by the given logger.
func NewLogReporter(log *logging.Logger) *LogReporter {
	return &LogReporter{log: log.Named("status")}
}

func (r *LogReporter) Report(ctx context.Context, event Event) error {
	r.log.Info(ctx, "integration status",
		zap.String("integration_id", event.IntegrationID),
		zap.String("status", event.Status),
		zap.String("message", event.Message),
		zap.String("staging_url", event.StagingURL),
		zap.String("pr_url", event.PRURL))
	return nil
}

// NATSReporter publishes events as JSON on a per-integration subject.
type NATSReporter struct {
	conn          *nats.Conn
	subjectPrefix string
}

// NewNATSReporter connects to the broker. The connection reconnects
// indefinitely so a broker restart does not wedge the worker.
func NewNATSReporter(url, subjectPrefix string) (*NATSReporter, error) {
	conn, err := nats.Connect(url,
		nats.Name("helicone-integration"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return &NATSReporter{conn: conn, subjectPrefix: subjectPrefix}, nil
}

func (r *NATSReporter) Report(_ context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding status event: %w", err)
	}
	subject := r.subjectPrefix + "." + event.IntegrationID
	if err := r.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection.
func (r *NATSReporter) Close() error {
	return r.conn.Drain()
}

// MultiReporter fans one event out to several reporters. All reporters see
// the event; errors are joined.
type MultiReporter []Reporter

func (m MultiReporter) Report(ctx context.Context, event Event) error {
	var errs []error
	for _, r := range m {
		if err := r.Report(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
