package runtimeconfig

import "time"

// DefaultStoreConfig returns the built-in store defaults, matching
// internal/store.LoadConfigFromEnv's own fallbacks.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "coreflow",
		Database:        "coreflow",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 1 * time.Hour,
		ConnMaxIdleTime: 15 * time.Minute,
	}
}

// DefaultWorkpoolConfig returns the built-in workpool defaults, matching
// pkg/workpool.Config's own zero-value fallbacks except PollIntervalJitter,
// which the pool leaves at zero when unset.
func DefaultWorkpoolConfig() WorkpoolConfig {
	return WorkpoolConfig{
		WorkerCount:        5,
		MaxParallelism:     5,
		PollInterval:       250 * time.Millisecond,
		PollIntervalJitter: 100 * time.Millisecond,
		LeaseTTL:           30 * time.Second,
		OrphanThreshold:    60 * time.Second,
		OrphanScanInterval: 30 * time.Second,
	}
}

// DefaultReplayConfig returns the built-in replay defaults.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{DefaultChunkSize: 500}
}

// DefaultAdminConfig returns the built-in admin surface defaults.
func DefaultAdminConfig() AdminConfig {
	return AdminConfig{
		ListenAddr:        ":9091",
		ApprovalSweepCron: "* * * * *",
	}
}

// DefaultAgentConfig returns the built-in per-agent policy defaults.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		PatternWindowDuration:  "1h",
		PatternWindowMinEvents: 1,
		ApprovalTimeout:        "24h",
		ConfidenceThreshold:    0.9,
		AlertThreshold:         0.8,
	}
}
