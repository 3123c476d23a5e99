package runtimeconfig

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// yamlConfig is the on-disk coreflow.yaml shape. Every section is optional;
// Load merges whatever is present onto the built-in defaults.
type yamlConfig struct {
	Store    *StoreConfig           `yaml:"store"`
	Workpool *WorkpoolConfig        `yaml:"workpool"`
	Replay   *ReplayConfig          `yaml:"replay"`
	Admin    *AdminConfig           `yaml:"admin"`
	Agents   map[string]AgentConfig `yaml:"agents"`
}

// Load reads coreflow.yaml from configDir, expands environment variables,
// merges it onto the built-in defaults, validates the result, and returns
// a ready-to-use Config.
func Load(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("runtimeconfig: loading configuration")

	raw, err := loadYAML(configDir, "coreflow.yaml")
	if err != nil {
		return nil, NewLoadError("coreflow.yaml", err)
	}

	cfg := &Config{
		configDir: configDir,
		Store:     DefaultStoreConfig(),
		Workpool:  DefaultWorkpoolConfig(),
		Replay:    DefaultReplayConfig(),
		Admin:     DefaultAdminConfig(),
		Agents:    make(map[string]AgentConfig),
	}

	if raw.Store != nil {
		if err := mergo.Merge(&cfg.Store, raw.Store, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("runtimeconfig: merge store config: %w", err)
		}
	}
	if raw.Workpool != nil {
		if err := mergo.Merge(&cfg.Workpool, raw.Workpool, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("runtimeconfig: merge workpool config: %w", err)
		}
	}
	if raw.Replay != nil {
		if err := mergo.Merge(&cfg.Replay, raw.Replay, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("runtimeconfig: merge replay config: %w", err)
		}
	}
	if raw.Admin != nil {
		if err := mergo.Merge(&cfg.Admin, raw.Admin, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("runtimeconfig: merge admin config: %w", err)
		}
	}

	for agentID, userAgentCfg := range raw.Agents {
		merged := DefaultAgentConfig()
		if err := mergo.Merge(&merged, userAgentCfg, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("runtimeconfig: merge agent %q config: %w", agentID, err)
		}
		cfg.Agents[agentID] = merged
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("runtimeconfig: validation failed: %w", err)
	}

	log.Info("runtimeconfig: configuration loaded", "agents", len(cfg.Agents))
	return cfg, nil
}

func loadYAML(configDir, filename string) (*yamlConfig, error) {
	path := filepath.Join(configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, err
	}

	data = expandEnv(data)

	var cfg yamlConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return &cfg, nil
}
