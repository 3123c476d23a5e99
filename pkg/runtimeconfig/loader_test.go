package runtimeconfig

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "coreflow.yaml"), []byte(contents), 0o644))
	return dir
}

func TestLoad_AppliesBuiltinDefaultsForUnsetFields(t *testing.T) {
	dir := writeConfigFile(t, `
store:
  password: ${TEST_STORE_PASSWORD}
`)
	t.Setenv("TEST_STORE_PASSWORD", "secret")

	cfg, err := Load(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Store.Host)
	assert.Equal(t, "secret", cfg.Store.Password)
	assert.Equal(t, 25, cfg.Store.MaxOpenConns)
	assert.Equal(t, 5, cfg.Workpool.WorkerCount)
	assert.Equal(t, 500, cfg.Replay.DefaultChunkSize)
	assert.Equal(t, ":9091", cfg.Admin.ListenAddr)
}

func TestLoad_UserValuesOverrideDefaults(t *testing.T) {
	dir := writeConfigFile(t, `
store:
  password: ${TEST_STORE_PASSWORD}
  max_open_conns: 50
workpool:
  worker_count: 12
admin:
  listen_addr: ":8080"
  test_mode: true
agents:
  remediation-agent:
    confidence_threshold: 0.75
    daily_budget: 100
`)
	t.Setenv("TEST_STORE_PASSWORD", "secret")

	cfg, err := Load(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Store.MaxOpenConns)
	assert.Equal(t, 12, cfg.Workpool.WorkerCount)
	assert.Equal(t, ":8080", cfg.Admin.ListenAddr)
	assert.True(t, cfg.Admin.TestMode)

	agentCfg, ok := cfg.GetAgent("remediation-agent")
	require.True(t, ok)
	assert.Equal(t, 0.75, agentCfg.ConfidenceThreshold)
	assert.Equal(t, 100.0, agentCfg.DailyBudget)
	// unset fields still fall back to the agent defaults
	assert.Equal(t, "24h", agentCfg.ApprovalTimeout)
}

func TestLoad_MissingFileIsLoadError(t *testing.T) {
	_, err := Load(context.Background(), t.TempDir())
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.ErrorIs(t, loadErr.Unwrap(), ErrConfigNotFound)
}

func TestLoad_InvalidYAMLIsLoadError(t *testing.T) {
	dir := writeConfigFile(t, "store: [this is not a mapping")
	_, err := Load(context.Background(), dir)
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
}

func TestLoad_MissingPasswordFailsValidation(t *testing.T) {
	dir := writeConfigFile(t, "store: {}\n")
	_, err := Load(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password")
}

func TestLoad_ExpandsEnvironmentVariables(t *testing.T) {
	dir := writeConfigFile(t, `
store:
  password: ${TEST_STORE_PASSWORD}
  host: ${TEST_STORE_HOST}
`)
	t.Setenv("TEST_STORE_PASSWORD", "hunter2")
	t.Setenv("TEST_STORE_HOST", "db.internal")

	cfg, err := Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", cfg.Store.Password)
	assert.Equal(t, "db.internal", cfg.Store.Host)
}

func TestLoad_ConfigDirIsRecorded(t *testing.T) {
	dir := writeConfigFile(t, "store:\n  password: x\n")
	cfg, err := Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.ConfigDir())
}

func TestDefaultWorkpoolConfig_MatchesPoolZeroValueFallbacks(t *testing.T) {
	d := DefaultWorkpoolConfig()
	assert.Equal(t, 5, d.WorkerCount)
	assert.Equal(t, 250*time.Millisecond, d.PollInterval)
}
