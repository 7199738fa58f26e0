package main

import (
	"go.uber.org/zap"

	"github.com/dongwonkwak/ironpost/internal/config"
)

// resolveConfigPath returns the -c flag value or the package default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath
}

// loadConfig loads and validates the config at the resolved path,
// applying the --log-level override if the caller passed one. It uses
// a quiet no-op logger for env-override warnings since the CLI's own
// --output mode governs what reaches the terminal, not zap.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath(), zap.NewNop())
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.General.LogLevel = logLevel
	}
	return cfg, nil
}
