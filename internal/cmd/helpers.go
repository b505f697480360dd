package cmd

import (
	"fmt"

	"github.com/forgeops/sprintmux/internal/config"
	"github.com/forgeops/sprintmux/internal/coordinator"
	"github.com/forgeops/sprintmux/internal/logging"
)

// newLogger builds the engine logger from configuration.
func newLogger(cfg *config.Config) *logging.Logger {
	if !cfg.Logging.Enabled {
		return logging.NopLogger()
	}
	dir := cfg.Logging.Dir
	if dir == "" {
		dir = cfg.Paths.ResolveStateDir()
	}
	log, err := logging.NewLogger(dir, cfg.Logging.Level)
	if err != nil {
		return logging.NopLogger()
	}
	return log
}

// newCoordinator loads configuration and builds a wired Coordinator.
// The caller decides whether to start the background loops or just use
// the API surface.
func newCoordinator() (*coordinator.Coordinator, *config.Config, *logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log := newLogger(cfg)
	coord, err := coordinator.New(cfg, log)
	if err != nil {
		_ = log.Close()
		return nil, nil, nil, fmt.Errorf("failed to create coordinator: %w", err)
	}
	return coord, cfg, log, nil
}
