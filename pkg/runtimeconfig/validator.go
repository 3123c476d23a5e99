package runtimeconfig

import (
	"fmt"

	"github.com/coreflow/runtime/pkg/agentbc"
)

// Validate performs comprehensive validation with clear, field-level
// error messages, failing fast at the first problem found.
func Validate(cfg *Config) error {
	if err := validateStore(cfg.Store); err != nil {
		return NewValidationError("store", "", err)
	}
	if err := validateWorkpool(cfg.Workpool); err != nil {
		return NewValidationError("workpool", "", err)
	}
	if err := validateReplay(cfg.Replay); err != nil {
		return NewValidationError("replay", "", err)
	}
	if err := validateAdmin(cfg.Admin); err != nil {
		return NewValidationError("admin", "", err)
	}
	for agentID, agentCfg := range cfg.Agents {
		if err := validateAgent(agentCfg); err != nil {
			return NewValidationError(fmt.Sprintf("agents.%s", agentID), "", err)
		}
	}
	return nil
}

func validateStore(s StoreConfig) error {
	if s.Host == "" {
		return fmt.Errorf("host is required")
	}
	if s.Password == "" {
		return fmt.Errorf("password is required")
	}
	if s.MaxOpenConns < 1 {
		return fmt.Errorf("max_open_conns must be at least 1, got %d", s.MaxOpenConns)
	}
	if s.MaxIdleConns < 0 {
		return fmt.Errorf("max_idle_conns must be non-negative, got %d", s.MaxIdleConns)
	}
	if s.MaxIdleConns > s.MaxOpenConns {
		return fmt.Errorf("max_idle_conns (%d) must not exceed max_open_conns (%d)", s.MaxIdleConns, s.MaxOpenConns)
	}
	return nil
}

func validateWorkpool(w WorkpoolConfig) error {
	if w.WorkerCount < 1 || w.WorkerCount > 200 {
		return fmt.Errorf("worker_count must be between 1 and 200, got %d", w.WorkerCount)
	}
	if w.MaxParallelism < 1 {
		return fmt.Errorf("max_parallelism must be at least 1, got %d", w.MaxParallelism)
	}
	if w.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %v", w.PollInterval)
	}
	if w.PollIntervalJitter < 0 {
		return fmt.Errorf("poll_interval_jitter must be non-negative, got %v", w.PollIntervalJitter)
	}
	if w.PollIntervalJitter >= w.PollInterval {
		return fmt.Errorf("poll_interval_jitter (%v) must be less than poll_interval (%v)", w.PollIntervalJitter, w.PollInterval)
	}
	if w.LeaseTTL <= 0 {
		return fmt.Errorf("lease_ttl must be positive, got %v", w.LeaseTTL)
	}
	if w.OrphanThreshold <= 0 {
		return fmt.Errorf("orphan_threshold must be positive, got %v", w.OrphanThreshold)
	}
	if w.OrphanScanInterval <= 0 {
		return fmt.Errorf("orphan_scan_interval must be positive, got %v", w.OrphanScanInterval)
	}
	return nil
}

func validateReplay(r ReplayConfig) error {
	if r.DefaultChunkSize < 1 {
		return fmt.Errorf("default_chunk_size must be at least 1, got %d", r.DefaultChunkSize)
	}
	return nil
}

func validateAdmin(a AdminConfig) error {
	if a.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if a.ApprovalSweepCron == "" {
		return fmt.Errorf("approval_sweep_cron is required")
	}
	return nil
}

func validateAgent(a AgentConfig) error {
	if a.PatternWindowDuration != "" {
		if _, err := agentbc.ParseDuration(a.PatternWindowDuration); err != nil {
			return fmt.Errorf("pattern_window_duration %q is not a valid duration: %w", a.PatternWindowDuration, err)
		}
	}
	if a.ApprovalTimeout != "" {
		if _, err := agentbc.ParseDuration(a.ApprovalTimeout); err != nil {
			return fmt.Errorf("approval_timeout %q is not a valid duration: %w", a.ApprovalTimeout, err)
		}
	}
	if a.ConfidenceThreshold < 0 || a.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be between 0 and 1, got %v", a.ConfidenceThreshold)
	}
	if a.AlertThreshold < 0 || a.AlertThreshold > 1 {
		return fmt.Errorf("alert_threshold must be between 0 and 1, got %v", a.AlertThreshold)
	}
	if a.DailyBudget < 0 {
		return fmt.Errorf("daily_budget must be non-negative, got %v", a.DailyBudget)
	}
	return nil
}
