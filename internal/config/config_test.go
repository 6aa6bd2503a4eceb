package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limmutable/orchestrator/orchestrator"
)

func duplicatePriorityProviders() []orchestrator.ProviderConfig {
	return []orchestrator.ProviderConfig{
		{ProviderName: "gemini", Enabled: true, Priority: 1},
		{ProviderName: "claude", Enabled: true, Priority: 1},
	}
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 2, cfg.Orchestration.ConsensusMinAgreement)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orch.yaml")
	yamlContent := `
data_dir: /var/orchestrator
log:
  level: debug
providers:
  - provider_name: gemini
    enabled: true
    priority: 1
  - provider_name: claude
    enabled: true
    priority: 2
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "/var/orchestrator", cfg.DataDir)
	assert.Equal(t, "debug", cfg.Log.Level)
	require.Len(t, cfg.Providers, 2)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: /from-yaml\n"), 0o644))
	t.Setenv("ORCH_DATA_DIR", "/from-env")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "/from-env", cfg.DataDir)
}

func TestLoad_EnvDurationField(t *testing.T) {
	t.Setenv("ORCH_REDIS_CACHE_TTL", "30s")
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Redis.CacheTTL)
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/orch.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().DataDir, cfg.DataDir)
}

func TestValidate_RejectsDuplicatePriority(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers = duplicatePriorityProviders()
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidate_RejectsNoProviders(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidate_RejectsOutOfRangeFuzzyThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers = duplicatePriorityProviders()[:1]
	cfg.Orchestration.FuzzyThreshold = 1.5
	assert.Error(t, cfg.Validate())
}
