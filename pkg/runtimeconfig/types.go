// Package runtimeconfig loads and validates the coreflow runtime's YAML
// configuration: store connection settings, workpool concurrency/backoff,
// replay chunk sizing, agent subscription policy, circuit-breaker
// thresholds, and the admin surface's bind address and test-mode guard.
package runtimeconfig

import "time"

// Config is the umbrella configuration object returned by Load.
type Config struct {
	configDir string

	Store    StoreConfig            `yaml:"store"`
	Workpool WorkpoolConfig         `yaml:"workpool"`
	Replay   ReplayConfig           `yaml:"replay"`
	Admin    AdminConfig            `yaml:"admin"`
	Agents   map[string]AgentConfig `yaml:"agents"`
}

// ConfigDir returns the directory Config was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// GetAgent retrieves one agent's policy by agentId.
func (c *Config) GetAgent(agentID string) (AgentConfig, bool) {
	a, ok := c.Agents[agentID]
	return a, ok
}

// StoreConfig mirrors internal/store.Config's connection and pool-sizing
// fields, so the same settings can come from coreflow.yaml instead of
// (or alongside) internal/store.LoadConfigFromEnv's env vars. Password is
// always expected via ${STORE_DB_PASSWORD} expansion, never committed.
type StoreConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// WorkpoolConfig mirrors pkg/workpool.Config's tunables.
type WorkpoolConfig struct {
	WorkerCount        int           `yaml:"worker_count"`
	MaxParallelism     int           `yaml:"max_parallelism"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`
	LeaseTTL           time.Duration `yaml:"lease_ttl"`
	OrphanThreshold    time.Duration `yaml:"orphan_threshold"`
	OrphanScanInterval time.Duration `yaml:"orphan_scan_interval"`

	// RedisAddr, when set, backs the per-partition lease with Redis SET NX
	// PX instead of in-process locking, so multiple pods can share leases.
	RedisAddr string `yaml:"redis_addr,omitempty"`
}

// ReplayConfig holds a default rebuild chunk size. Nothing in this module
// passes it to pkg/replay, whose TriggerRebuild falls back to its own
// default of 100 when no chunk size is given.
type ReplayConfig struct {
	DefaultChunkSize int `yaml:"default_chunk_size"`
}

// AdminConfig is the admin HTTP surface's bind address and test-mode guard
// flags (spec.md §6).
type AdminConfig struct {
	ListenAddr string `yaml:"listen_addr"`

	// TestMode, when true, is an explicit override of the test-only guard
	// regardless of the production marker env var.
	TestMode bool `yaml:"test_mode"`

	ApprovalSweepCron string `yaml:"approval_sweep_cron"`
}

// AgentConfig is one agent's subscription policy, loaded from YAML and
// handed to agentbc.Manager.Register as agentbc.Config.
type AgentConfig struct {
	PatternWindowDuration   string `yaml:"pattern_window_duration"`
	PatternWindowMinEvents  int    `yaml:"pattern_window_min_events"`
	PatternWindowEventLimit int    `yaml:"pattern_window_event_limit"`

	ApprovalTimeout     string  `yaml:"approval_timeout"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	RequiresApproval []string `yaml:"requires_approval"`
	AutoApprove      []string `yaml:"auto_approve"`

	DailyBudget    float64 `yaml:"daily_budget"`
	AlertThreshold float64 `yaml:"alert_threshold"`

	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig tunes gobreaker.Settings per agent (pkg/agentbc's
// NewCircuitBreaker defaults are used for any zero field).
type CircuitBreakerConfig struct {
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
	OpenTimeout         time.Duration `yaml:"open_timeout"`
	HalfOpenMaxRequests uint32        `yaml:"half_open_max_requests"`
}
