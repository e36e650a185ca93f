// internal/logging/context.go
package logging

import (
	"context"

	"go.uber.org/zap"
)

type integrationCtxKey struct{}
type requestCtxKey struct{}

// WithIntegrationID attaches an integration id to the context so every log
// line emitted under it carries the correlation field.
func WithIntegrationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, integrationCtxKey{}, id)
}

// IntegrationIDFromContext returns the integration id, or "" if unset.
func IntegrationIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(integrationCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// WithRequestID attaches an HTTP request id to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, id)
}

// RequestIDFromContext returns the request id, or "" if unset.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 2)

	if id := IntegrationIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("integration.id", id))
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}

	return fields
}
