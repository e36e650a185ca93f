package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "localhost:7233", cfg.Temporal.HostPort)
	assert.Equal(t, "helicone-integration-queue", cfg.Temporal.TaskQueue)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
temporal:
  host_port: temporal.internal:7233
  task_queue: custom-queue
github:
  bot_identity: integrations@helicone.ai
server:
  port: 9000
  shutdown_timeout: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "temporal.internal:7233", cfg.Temporal.HostPort)
	assert.Equal(t, "custom-queue", cfg.Temporal.TaskQueue)
	assert.Equal(t, "integrations@helicone.ai", cfg.GitHub.BotIdentity)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, Duration(30*time.Second), cfg.Server.ShutdownTimeout)

	// untouched sections keep defaults
	assert.Equal(t, "default", cfg.Temporal.Namespace)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("temporal:\n  host_port: from-file:7233\n"), 0600))

	t.Setenv("TEMPORAL_HOST_PORT", "from-env:7233")
	t.Setenv("GITHUB_TOKEN", "ghp_env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env:7233", cfg.Temporal.HostPort)
	assert.Equal(t, "ghp_env", cfg.GitHub.Token.Value())
}

func TestEnvTransform(t *testing.T) {
	assert.Equal(t, "temporal.host_port", envTransform("TEMPORAL_HOST_PORT"))
	assert.Equal(t, "github.token", envTransform("GITHUB_TOKEN"))
	assert.Equal(t, "anthropic.api_key", envTransform("ANTHROPIC_API_KEY"))
	assert.Equal(t, "logging.level", envTransform("LOGGING_LEVEL"))

	// unrelated process environment is ignored
	assert.Equal(t, "", envTransform("PATH"))
	assert.Equal(t, "", envTransform("HOME"))
	assert.Equal(t, "", envTransform("XDG_CONFIG_HOME"))
}

func TestLoadRejectsOversizeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	big := make([]byte, maxConfigFileSize+1)
	for i := range big {
		big[i] = '#'
	}
	require.NoError(t, os.WriteFile(path, big, 0600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}
