// Package config defines the sprintmux configuration schema and loading.
// Configuration is read from a YAML file via viper, with environment
// variable overrides (SPRINTMUX_ prefix) and registered defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the orchestration engine.
type Config struct {
	Paths       PathsConfig       `mapstructure:"paths"`
	Coders      CodersConfig      `mapstructure:"coders"`
	Branch      BranchConfig      `mapstructure:"branch"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Merge       MergeConfig       `mapstructure:"merge"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// PathsConfig holds filesystem locations used by the engine.
type PathsConfig struct {
	// SprintRoot is the directory whose subdirectories are sprint folders.
	// Each sprint folder carries a STATUS.md status document.
	SprintRoot string `mapstructure:"sprint_root"`

	// RepoParent is the directory containing the per-coder clones
	// (Coder-A, Coder-B, ...). Individual clones can be overridden via
	// coders.repos.
	RepoParent string `mapstructure:"repo_parent"`

	// StateDir is where the engine keeps its own state: the merge queue
	// JSON document, its lock file, and debug logs.
	// Empty means <sprint_root>/.sprintmux.
	StateDir string `mapstructure:"state_dir"`
}

// CodersConfig describes the fixed set of coders.
type CodersConfig struct {
	// IDs is the ordered list of coder identifiers. Assignment prefers
	// earlier entries when several coders are free.
	IDs []string `mapstructure:"ids"`

	// Repos maps a coder ID to its clone path, overriding the
	// <repo_parent>/Coder-<ID> convention.
	Repos map[string]string `mapstructure:"repos"`
}

// BranchConfig holds git branch settings.
type BranchConfig struct {
	// Trunk is the integration branch sprint branches merge into.
	Trunk string `mapstructure:"trunk"`

	// Prefix is the leading path segment of sprint branch names.
	Prefix string `mapstructure:"prefix"`
}

// CoordinatorConfig tunes the background promotion loop.
type CoordinatorConfig struct {
	// PromoteIntervalSeconds is how often ready sprints are swept into
	// the merge queue.
	PromoteIntervalSeconds int `mapstructure:"promote_interval_seconds"`

	// ErrorBackoffSeconds is the pause after a sweep fails before the
	// loop resumes.
	ErrorBackoffSeconds int `mapstructure:"error_backoff_seconds"`
}

// MergeConfig tunes the merge coordinator.
type MergeConfig struct {
	// MaxRepairAttempts is how many conflict-repair cycles a merge
	// request gets before it is parked for human review.
	MaxRepairAttempts int `mapstructure:"max_repair_attempts"`
}

// LoggingConfig controls the debug log.
type LoggingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Level   string `mapstructure:"level"`

	// Dir overrides where debug.log is written. Empty means the state dir.
	Dir string `mapstructure:"dir"`
}

// Default returns a Config populated with default values.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			SprintRoot: ".",
			RepoParent: "..",
			StateDir:   "", // resolved against sprint_root
		},
		Coders: CodersConfig{
			IDs:   []string{"A", "B", "C"},
			Repos: map[string]string{},
		},
		Branch: BranchConfig{
			Trunk:  "main",
			Prefix: "sprint",
		},
		Coordinator: CoordinatorConfig{
			PromoteIntervalSeconds: 10,
			ErrorBackoffSeconds:    30,
		},
		Merge: MergeConfig{
			MaxRepairAttempts: 3,
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
		},
	}
}

// PromoteInterval returns the promotion sweep interval as a time.Duration.
func (c *CoordinatorConfig) PromoteInterval() time.Duration {
	return time.Duration(c.PromoteIntervalSeconds) * time.Second
}

// ErrorBackoff returns the post-error pause as a time.Duration.
func (c *CoordinatorConfig) ErrorBackoff() time.Duration {
	return time.Duration(c.ErrorBackoffSeconds) * time.Second
}

// ResolveStateDir returns the state directory, applying the
// <sprint_root>/.sprintmux default when unset.
func (p *PathsConfig) ResolveStateDir() string {
	if p.StateDir != "" {
		return p.StateDir
	}
	return filepath.Join(p.SprintRoot, ".sprintmux")
}

// CoderName returns the conventional directory name for a coder ID.
func CoderName(id string) string {
	return "Coder-" + id
}

// RepoPath returns the clone path for a coder, honoring per-coder overrides.
func (c *Config) RepoPath(coderID string) string {
	if path, ok := c.Coders.Repos[coderID]; ok && path != "" {
		return path
	}
	return filepath.Join(c.Paths.RepoParent, CoderName(coderID))
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() []error {
	var errs []error

	if len(c.Coders.IDs) == 0 {
		errs = append(errs, fmt.Errorf("coders.ids must list at least one coder"))
	}
	seen := make(map[string]bool)
	for _, id := range c.Coders.IDs {
		if id == "" {
			errs = append(errs, fmt.Errorf("coders.ids contains an empty ID"))
			continue
		}
		if seen[id] {
			errs = append(errs, fmt.Errorf("coders.ids contains duplicate ID %q", id))
		}
		seen[id] = true
	}
	for id := range c.Coders.Repos {
		if !seen[id] {
			errs = append(errs, fmt.Errorf("coders.repos references unknown coder %q", id))
		}
	}

	if c.Branch.Trunk == "" {
		errs = append(errs, fmt.Errorf("branch.trunk must not be empty"))
	}
	if c.Branch.Prefix == "" {
		errs = append(errs, fmt.Errorf("branch.prefix must not be empty"))
	}
	if c.Coordinator.PromoteIntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("coordinator.promote_interval_seconds must be positive"))
	}
	if c.Merge.MaxRepairAttempts < 0 {
		errs = append(errs, fmt.Errorf("merge.max_repair_attempts must not be negative"))
	}

	return errs
}

// ValidationErrors aggregates multiple validation failures into one error.
type ValidationErrors []error

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, err := range v {
		msgs[i] = err.Error()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// SetDefaults registers default values with viper.
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("paths.sprint_root", defaults.Paths.SprintRoot)
	viper.SetDefault("paths.repo_parent", defaults.Paths.RepoParent)
	viper.SetDefault("paths.state_dir", defaults.Paths.StateDir)

	viper.SetDefault("coders.ids", defaults.Coders.IDs)
	viper.SetDefault("coders.repos", defaults.Coders.Repos)

	viper.SetDefault("branch.trunk", defaults.Branch.Trunk)
	viper.SetDefault("branch.prefix", defaults.Branch.Prefix)

	viper.SetDefault("coordinator.promote_interval_seconds", defaults.Coordinator.PromoteIntervalSeconds)
	viper.SetDefault("coordinator.error_backoff_seconds", defaults.Coordinator.ErrorBackoffSeconds)

	viper.SetDefault("merge.max_repair_attempts", defaults.Merge.MaxRepairAttempts)

	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
}

// Load reads the configuration from viper into a Config struct and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory.
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "sprintmux")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sprintmux"
	}
	return filepath.Join(home, ".config", "sprintmux")
}

// ConfigFile returns the path to the config file.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
