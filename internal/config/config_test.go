package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "sqlite", cfg.Session.Store)
	assert.Equal(t, 0.7, cfg.Engine.ConfidenceThreshold)
	assert.Equal(t, "EUR", cfg.Tools.HomeCurrency)
	assert.Equal(t, 10, cfg.Tools.CacheTTLMin["flight"])
}

func TestLoadFromPathCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, Default().LLM.Model, cfg.LLM.Model)
	assert.Equal(t, Default().Tools.MaxConcurrent, cfg.Tools.MaxConcurrent)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.LLM.Model = "gpt-4o"
	cfg.Tools.HomeCurrency = "JPY"
	cfg.Session.Store = "memory"
	require.NoError(t, cfg.SaveToPath(path))

	reloaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", reloaded.LLM.Model)
	assert.Equal(t, "JPY", reloaded.Tools.HomeCurrency)
	assert.Equal(t, "memory", reloaded.Session.Store)
}

func TestEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Default().SaveToPath(path))

	os.Setenv("WAYFARER_LLM_API_KEY", "sk-test-123")
	defer os.Unsetenv("WAYFARER_LLM_API_KEY")

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", cfg.LLM.APIKey)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty endpoint", func(c *Config) { c.LLM.Endpoint = "" }},
		{"empty model", func(c *Config) { c.LLM.Model = "" }},
		{"confidence above one", func(c *Config) { c.Engine.ConfidenceThreshold = 1.5 }},
		{"negative present threshold", func(c *Config) { c.Engine.PresentThreshold = -0.1 }},
		{"zero concurrency", func(c *Config) { c.Tools.MaxConcurrent = 0 }},
		{"bad currency code", func(c *Config) { c.Tools.HomeCurrency = "EURO" }},
		{"unknown store", func(c *Config) { c.Session.Store = "redis" }},
		{"sqlite without path", func(c *Config) { c.Session.Store = "sqlite"; c.Session.DBPath = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 60*time.Second, cfg.Engine.TurnTimeout())
	assert.Equal(t, 8*time.Second, cfg.Tools.PerToolTimeout())
	assert.Equal(t, 20*time.Second, cfg.Tools.Ceiling())
	assert.Equal(t, 30*time.Minute, cfg.Session.Inactivity())
	assert.Equal(t, 10*time.Second, cfg.Safety.Timeout())

	// Zero values fall back to defaults rather than disabling timeouts.
	var zero Config
	assert.Equal(t, 60*time.Second, zero.Engine.TurnTimeout())
	assert.Equal(t, 30*time.Second, zero.LLM.Timeout())
	assert.Equal(t, 5*time.Minute, zero.Session.SweepInterval())
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Logging.File = filepath.Join(dir, "logs", "wayfarer.log")
	cfg.Session.DBPath = filepath.Join(dir, "data", "sessions.db")
	cfg.Safety.IncidentLog = filepath.Join(dir, "data", "incidents.jsonl")

	require.NoError(t, cfg.EnsureDirectories())
	assert.DirExists(t, filepath.Join(dir, "logs"))
	assert.DirExists(t, filepath.Join(dir, "data"))
}
