package runtimeconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Store:    DefaultStoreConfig(),
		Workpool: DefaultWorkpoolConfig(),
		Replay:   DefaultReplayConfig(),
		Admin:    DefaultAdminConfig(),
		Agents:   map[string]AgentConfig{},
	}
}

func TestValidate_BuiltinDefaultsAreValid(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Password = "secret"
	require.NoError(t, Validate(cfg))
}

func TestValidate_StoreFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing host", func(c *Config) { c.Store.Host = "" }},
		{"missing password", func(c *Config) { c.Store.Password = "" }},
		{"zero max open conns", func(c *Config) { c.Store.MaxOpenConns = 0 }},
		{"idle exceeds open", func(c *Config) { c.Store.MaxIdleConns = c.Store.MaxOpenConns + 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Store.Password = "secret"
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestValidate_WorkpoolFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero worker count", func(c *Config) { c.Workpool.WorkerCount = 0 }},
		{"too many workers", func(c *Config) { c.Workpool.WorkerCount = 500 }},
		{"jitter exceeds interval", func(c *Config) { c.Workpool.PollIntervalJitter = c.Workpool.PollInterval }},
		{"zero lease ttl", func(c *Config) { c.Workpool.LeaseTTL = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Store.Password = "secret"
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestValidate_AdminRequiresListenAddrAndCron(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Password = "secret"
	cfg.Admin.ListenAddr = ""
	assert.Error(t, Validate(cfg))

	cfg = validConfig()
	cfg.Store.Password = "secret"
	cfg.Admin.ApprovalSweepCron = ""
	assert.Error(t, Validate(cfg))
}

func TestValidate_AgentConfidenceThresholdMustBeAFraction(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Password = "secret"
	cfg.Agents["remediation-agent"] = AgentConfig{ConfidenceThreshold: 1.5}
	require.Error(t, Validate(cfg))
}

func TestValidate_AgentDurationShorthandMustParse(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Password = "secret"
	cfg.Agents["remediation-agent"] = AgentConfig{
		PatternWindowDuration: "not-a-duration",
		ApprovalTimeout:       "24h",
	}
	require.Error(t, Validate(cfg))
}

func TestValidate_AgentDurationShorthandAcceptsDayUnit(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Password = "secret"
	cfg.Agents["remediation-agent"] = AgentConfig{
		PatternWindowDuration: "2d",
		ApprovalTimeout:       "24h",
	}
	require.NoError(t, Validate(cfg))
}

func TestValidate_AgentNegativeBudgetIsInvalid(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Password = "secret"
	cfg.Agents["remediation-agent"] = AgentConfig{DailyBudget: -1, ApprovalTimeout: "24h"}
	require.Error(t, Validate(cfg))
}

func TestDefaultReplayConfig(t *testing.T) {
	assert.Equal(t, 500, DefaultReplayConfig().DefaultChunkSize)
}
