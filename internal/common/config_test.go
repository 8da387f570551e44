package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, 8085, config.Server.Port)
	assert.Equal(t, 10, config.Orchestrator.QueueScanLimit)
	assert.Equal(t, 30*time.Minute, config.Orchestrator.LeaseTTL)
	assert.Equal(t, "*/5 * * * *", config.Maintenance.SweepSchedule)
	assert.Equal(t, 5*time.Minute, config.Maintenance.PublishWindow)
	assert.Equal(t, "vendo", config.Catalog.Namespace)
	assert.Equal(t, 5, config.Catalog.MaxAttempts)
	require.NoError(t, config.Validate())
}

func TestLoadFromFiles_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vendo.toml")
	content := `
environment = "production"

[server]
port = 9090

[orchestrator]
workers = 8

[catalog]
namespace = "custom"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, "production", config.Environment)
	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, 8, config.Orchestrator.Workers)
	assert.Equal(t, "custom", config.Catalog.Namespace)
	// Untouched values keep their defaults
	assert.Equal(t, 10, config.Orchestrator.QueueScanLimit)
}

func TestLoadFromFiles_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vendo.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 9090\n"), 0644))

	t.Setenv("VENDO_PORT", "7070")

	config, err := LoadFromFiles(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, config.Server.Port)
}

func TestLoadFromFiles_MissingFile(t *testing.T) {
	_, err := LoadFromFiles("/does/not/exist.toml")
	assert.Error(t, err)
}

func TestApplyFlagOverrides(t *testing.T) {
	config := DefaultConfig()
	ApplyFlagOverrides(config, 6060, "0.0.0.0")
	assert.Equal(t, 6060, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)

	// Zero values leave the config untouched
	ApplyFlagOverrides(config, 0, "")
	assert.Equal(t, 6060, config.Server.Port)
}

func TestIsRunID(t *testing.T) {
	assert.True(t, IsRunID(NewRunID()))
	assert.False(t, IsRunID(NewTemplateID()))
	assert.False(t, IsRunID("run_not-a-uuid"))
	assert.False(t, IsRunID(""))
}
