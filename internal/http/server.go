// Package http provides the HTTP API for starting and reviewing
// integrations.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/Helicone/temporal-integration/internal/orchestrate"
	"github.com/Helicone/temporal-integration/internal/workflows"
)

// Orchestrator is the slice of the orchestration client the API needs.
type Orchestrator interface {
	Start(ctx context.Context, input workflows.IntegrationInput) (string, error)
	SubmitReview(ctx context.Context, integrationID string, decision workflows.ReviewDecision) error
	Status(ctx context.Context, integrationID string) (*workflows.IntegrationResult, error)
}

// Server provides HTTP endpoints for the integration service.
type Server struct {
	echo         *echo.Echo
	orchestrator Orchestrator
	logger       *zap.Logger
	config       *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(orchestrator Orchestrator, logger *zap.Logger, cfg *Config) (*Server, error) {
	if orchestrator == nil {
		return nil, fmt.Errorf("orchestrator cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8350,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:         e,
		orchestrator: orchestrator,
		logger:       logger,
		config:       cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/integrations", s.handleStartIntegration)
	v1.POST("/integrations/:id/review", s.handleReview)
	v1.GET("/integrations/:id/status", s.handleStatus)
}

// StartIntegrationRequest is the request body for POST /api/v1/integrations.
type StartIntegrationRequest struct {
	RepoURL       string `json:"repoUrl"`
	IntegrationID string `json:"integrationId,omitempty"`
}

// StartIntegrationResponse is the response body for POST /api/v1/integrations.
type StartIntegrationResponse struct {
	IntegrationID string `json:"integrationId"`
	RunID         string `json:"runId"`
}

// ReviewRequest is the request body for POST /api/v1/integrations/:id/review.
type ReviewRequest struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback,omitempty"`
}

// StatusResponse is the response body for GET /api/v1/integrations/:id/status.
type StatusResponse struct {
	IntegrationID string `json:"integrationId"`
	Status        string `json:"status"`
	Message       string `json:"message"`
	Attempts      int    `json:"attempts"`
	StagingURL    string `json:"stagingUrl,omitempty"`
	PRURL         string `json:"prUrl,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleStartIntegration launches a new integration instance. The caller may
// supply its own integration id; a generated one is returned otherwise.
func (s *Server) handleStartIntegration(c echo.Context) error {
	var req StartIntegrationRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid start request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.RepoURL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "repoUrl field is required")
	}

	owner, name, err := ParseRepoURL(req.RepoURL)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	integrationID := req.IntegrationID
	if integrationID == "" {
		integrationID = uuid.NewString()
	}

	runID, err := s.orchestrator.Start(c.Request().Context(), workflows.IntegrationInput{
		RepoURL:       req.RepoURL,
		RepoOwner:     owner,
		RepoName:      name,
		IntegrationID: integrationID,
	})
	if err != nil {
		s.logger.Error("failed to start integration",
			zap.String("integration_id", integrationID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to start integration")
	}

	return c.JSON(http.StatusAccepted, StartIntegrationResponse{
		IntegrationID: integrationID,
		RunID:         runID,
	})
}

// handleReview forwards a reviewer decision to the running instance.
func (s *Server) handleReview(c echo.Context) error {
	integrationID := c.Param("id")

	var req ReviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err := s.orchestrator.SubmitReview(c.Request().Context(), integrationID, workflows.ReviewDecision{
		Approved: req.Approved,
		Feedback: req.Feedback,
	})
	if errors.Is(err, orchestrate.ErrInstanceNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "integration not found")
	}
	if err != nil {
		s.logger.Error("failed to submit review",
			zap.String("integration_id", integrationID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to submit review")
	}

	return c.NoContent(http.StatusAccepted)
}

// handleStatus reports the instance's current phase.
func (s *Server) handleStatus(c echo.Context) error {
	integrationID := c.Param("id")

	result, err := s.orchestrator.Status(c.Request().Context(), integrationID)
	if errors.Is(err, orchestrate.ErrInstanceNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "integration not found")
	}
	if err != nil {
		s.logger.Error("failed to query status",
			zap.String("integration_id", integrationID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to query status")
	}

	return c.JSON(http.StatusOK, StatusResponse{
		IntegrationID: integrationID,
		Status:        string(result.Phase),
		Message:       result.Message,
		Attempts:      result.Attempts,
		StagingURL:    result.ReviewPRURL,
		PRURL:         result.FinalPRURL,
	})
}

// ParseRepoURL extracts owner and repository name from a GitHub URL.
func ParseRepoURL(repoURL string) (owner, name string, err error) {
	u, err := url.Parse(repoURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid repository URL: %q", repoURL)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository URL must contain owner and name: %q", repoURL)
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
