// Package config provides configuration loading for the Helicone integration
// service.
//
// Configuration is loaded from an optional YAML file and overridden by
// environment variables. All credentials are carried as Secret values so they
// never leak through logs or serialized config dumps.
package config

import (
	"fmt"
	"time"
)

// Config holds the complete integration service configuration.
type Config struct {
	Temporal  TemporalConfig  `koanf:"temporal"`
	GitHub    GitHubConfig    `koanf:"github"`
	Anthropic AnthropicConfig `koanf:"anthropic"`
	Workspace WorkspaceConfig `koanf:"workspace"`
	Status    StatusConfig    `koanf:"status"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// TemporalConfig holds connection settings for the workflow engine.
type TemporalConfig struct {
	HostPort  string `koanf:"host_port"`
	Namespace string `koanf:"namespace"`
	TaskQueue string `koanf:"task_queue"`
}

// GitHubConfig holds source-host API settings.
type GitHubConfig struct {
	Token Secret `koanf:"token"`
	// BotIdentity is the commit author recorded on integration commits.
	BotIdentity string `koanf:"bot_identity"`
}

// AnthropicConfig holds coding-agent settings.
type AnthropicConfig struct {
	APIKey    Secret `koanf:"api_key"`
	Model     string `koanf:"model"`
	MaxTokens int64  `koanf:"max_tokens"`
}

// WorkspaceConfig holds local working-copy settings.
type WorkspaceConfig struct {
	// BaseDir is where repository clones are created. Empty means the
	// system temp directory.
	BaseDir string `koanf:"base_dir"`
}

// StatusConfig holds status-event delivery settings.
type StatusConfig struct {
	// NATSURL enables publishing status events to NATS when set.
	NATSURL string `koanf:"nats_url"`
	// Subject prefix for status events; the integration id is appended.
	SubjectPrefix string `koanf:"subject_prefix"`
}

// ServerConfig holds HTTP API server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds OpenTelemetry metrics export settings. Metrics are
// collected in-process either way; export only happens when enabled.
type TelemetryConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Endpoint string `koanf:"endpoint"`
	Protocol string `koanf:"protocol"`
	Insecure bool   `koanf:"insecure"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Temporal.HostPort == "" {
		cfg.Temporal.HostPort = "localhost:7233"
	}
	if cfg.Temporal.Namespace == "" {
		cfg.Temporal.Namespace = "default"
	}
	if cfg.Temporal.TaskQueue == "" {
		cfg.Temporal.TaskQueue = "helicone-integration-queue"
	}

	if cfg.GitHub.BotIdentity == "" {
		cfg.GitHub.BotIdentity = "helicone-integration[bot]"
	}

	if cfg.Anthropic.Model == "" {
		cfg.Anthropic.Model = "claude-sonnet-4-20250514"
	}
	if cfg.Anthropic.MaxTokens == 0 {
		cfg.Anthropic.MaxTokens = 8192
	}

	if cfg.Status.SubjectPrefix == "" {
		cfg.Status.SubjectPrefix = "helicone.integration.status"
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8350
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Temporal.HostPort == "" {
		return fmt.Errorf("temporal.host_port is required")
	}
	if c.Temporal.TaskQueue == "" {
		return fmt.Errorf("temporal.task_queue is required")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	if c.Anthropic.MaxTokens < 0 {
		return fmt.Errorf("anthropic.max_tokens cannot be negative")
	}
	if c.Telemetry.Protocol != "grpc" && c.Telemetry.Protocol != "http" {
		return fmt.Errorf("telemetry.protocol must be 'grpc' or 'http', got %q", c.Telemetry.Protocol)
	}
	return nil
}

// ValidateWorker checks fields the worker binary requires beyond Validate.
// The API server can run without leaf credentials; the worker cannot.
func (c *Config) ValidateWorker() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if !c.GitHub.Token.IsSet() {
		return fmt.Errorf("github.token is required (GITHUB_TOKEN)")
	}
	if !c.Anthropic.APIKey.IsSet() {
		return fmt.Errorf("anthropic.api_key is required (ANTHROPIC_API_KEY)")
	}
	return nil
}
