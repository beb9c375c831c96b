package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reliefmatch/reliefmatch/internal/config"
)

func TestLoadAppliesFileValuesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
log:
  level: debug
  json: true
reasoning:
  provider: http
  base_url: https://reasoning.example.org
  max_retries: 4
orgs:
  base_url: https://search.example.org
database:
  path: assistant.db
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, "http", cfg.Reasoning.Provider)
	assert.Equal(t, "https://reasoning.example.org", cfg.Reasoning.BaseURL)
	assert.Equal(t, 4, cfg.Reasoning.MaxRetries)
	assert.Equal(t, "https://search.example.org", cfg.Orgs.BaseURL)
	assert.Equal(t, "assistant.db", cfg.Database.Path)

	// Unset fields keep their defaults.
	assert.Equal(t, 2*time.Minute, cfg.Reasoning.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Orgs.Timeout)
	assert.False(t, cfg.Scheduler.Enabled)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: loud\n"), 0o600))

	_, err := config.Load(path)
	assert.Error(t, err)
}
