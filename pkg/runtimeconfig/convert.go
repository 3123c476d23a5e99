package runtimeconfig

import (
	"github.com/coreflow/runtime/internal/store"
	"github.com/coreflow/runtime/pkg/agentbc"
	"github.com/coreflow/runtime/pkg/workpool"
)

// ToStoreConfig converts StoreConfig into internal/store.Config.
func (c *Config) ToStoreConfig() store.Config {
	return store.Config{
		Host:            c.Store.Host,
		Port:            c.Store.Port,
		User:            c.Store.User,
		Password:        c.Store.Password,
		Database:        c.Store.Database,
		SSLMode:         c.Store.SSLMode,
		MaxOpenConns:    c.Store.MaxOpenConns,
		MaxIdleConns:    c.Store.MaxIdleConns,
		ConnMaxLifetime: c.Store.ConnMaxLifetime,
		ConnMaxIdleTime: c.Store.ConnMaxIdleTime,
	}
}

// ToAgentbcConfig converts a loaded AgentConfig into the agentbc.Config
// Manager.Register expects, so main wiring never hand-assembles it field
// by field.
func (a AgentConfig) ToAgentbcConfig() agentbc.Config {
	return agentbc.Config{
		PatternWindow: agentbc.PatternWindow{
			Duration:   a.PatternWindowDuration,
			MinEvents:  a.PatternWindowMinEvents,
			EventLimit: a.PatternWindowEventLimit,
		},
		HumanInLoop: agentbc.HumanInLoopPolicy{
			RequiresApproval: a.RequiresApproval,
			AutoApprove:      a.AutoApprove,
		},
		ApprovalTimeout:     a.ApprovalTimeout,
		ConfidenceThreshold: a.ConfidenceThreshold,
		CircuitBreaker: agentbc.CircuitBreakerPolicy{
			ConsecutiveFailures: a.CircuitBreaker.ConsecutiveFailures,
			OpenTimeout:         a.CircuitBreaker.OpenTimeout,
			HalfOpenMaxRequests: a.CircuitBreaker.HalfOpenMaxRequests,
		},
	}
}

// ToWorkpoolConfig converts WorkpoolConfig into pkg/workpool.Config.
func (c *Config) ToWorkpoolConfig(podID string) workpool.Config {
	return workpool.Config{
		PodID:              podID,
		WorkerCount:        c.Workpool.WorkerCount,
		MaxParallelism:     c.Workpool.MaxParallelism,
		PollInterval:       c.Workpool.PollInterval,
		PollIntervalJitter: c.Workpool.PollIntervalJitter,
		LeaseTTL:           c.Workpool.LeaseTTL,
		OrphanThreshold:    c.Workpool.OrphanThreshold,
		OrphanScanInterval: c.Workpool.OrphanScanInterval,
	}
}
