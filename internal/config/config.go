// Package config loads the project configuration file and the environment
// surface of the broker process.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Environment variables understood by the broker.
const (
	EnvHost       = "GSD_BROKER_HOST"
	EnvPort       = "GSD_BROKER_PORT"
	EnvRepoRoot   = "GSD_REPO_ROOT"
	EnvConfigPath = "GSD_CONFIG_PATH"
	EnvLogDir     = "GSD_LOG_DIR"
)

const (
	// DefaultHost binds the broker to loopback; all connections are
	// trusted, so nothing else is ever safe.
	DefaultHost = "127.0.0.1"

	// DefaultPort is the broker's listen port.
	DefaultPort = 8321
)

// Granularity selects how the orchestrator scopes reviews.
type Granularity string

const (
	GranularityPerTask Granularity = "per_task"
	GranularityPerPlan Granularity = "per_plan"
)

// ExecutionMode selects whether the orchestrator blocks on verdicts.
type ExecutionMode string

const (
	ExecutionBlocking   ExecutionMode = "blocking"
	ExecutionOptimistic ExecutionMode = "optimistic"
)

// ReviewConfig is the review section of the project config. ReviewerPool is
// opaque to the broker; the reviewer spawner owns its shape.
type ReviewConfig struct {
	Enabled       bool           `yaml:"enabled"`
	Granularity   Granularity    `yaml:"review_granularity"`
	ExecutionMode ExecutionMode  `yaml:"execution_mode"`
	ReviewerPool  map[string]any `yaml:"reviewer_pool"`
}

// FileConfig is the on-disk project config.
type FileConfig struct {
	Review ReviewConfig `yaml:"review"`
}

// Config is the fully resolved runtime configuration.
type Config struct {
	Host     string
	Port     int
	RepoRoot string
	LogDir   string

	Review ReviewConfig
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// defaultFileConfig is used when no config file exists.
func defaultFileConfig() FileConfig {
	return FileConfig{
		Review: ReviewConfig{
			Enabled:       true,
			Granularity:   GranularityPerTask,
			ExecutionMode: ExecutionBlocking,
		},
	}
}

// LoadFile reads and validates a project config file. A missing file yields
// the defaults; a malformed one is an error.
func LoadFile(path string) (FileConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return defaultFileConfig(), nil
	}
	if err != nil {
		return FileConfig{}, fmt.Errorf(
			"failed to read config %s: %w", path, err,
		)
	}

	cfg := defaultFileConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf(
			"failed to parse config %s: %w", path, err,
		)
	}

	if err := cfg.Review.validate(); err != nil {
		return FileConfig{}, fmt.Errorf("invalid config %s: %w",
			path, err)
	}

	return cfg, nil
}

func (r ReviewConfig) validate() error {
	switch r.Granularity {
	case GranularityPerTask, GranularityPerPlan, "":
	default:
		return fmt.Errorf("unknown review_granularity %q",
			r.Granularity)
	}

	switch r.ExecutionMode {
	case ExecutionBlocking, ExecutionOptimistic, "":
	default:
		return fmt.Errorf("unknown execution_mode %q",
			r.ExecutionMode)
	}

	return nil
}

// Load resolves the runtime config from the environment and the project
// config file.
func Load() (*Config, error) {
	repoRoot := os.Getenv(EnvRepoRoot)
	if repoRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf(
				"failed to resolve repo root: %w", err,
			)
		}
		repoRoot = wd
	}

	host := os.Getenv(EnvHost)
	if host == "" {
		host = DefaultHost
	}

	port := DefaultPort
	if raw := os.Getenv(EnvPort); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p <= 0 || p > 65535 {
			return nil, fmt.Errorf("invalid %s %q", EnvPort, raw)
		}
		port = p
	}

	configPath := os.Getenv(EnvConfigPath)
	if configPath == "" {
		configPath = filepath.Join(repoRoot, ".planning", "config.yml")
	}

	fileCfg, err := LoadFile(configPath)
	if err != nil {
		return nil, err
	}

	logDir := os.Getenv(EnvLogDir)
	if logDir == "" {
		logDir = defaultLogDir()
	}

	return &Config{
		Host:     host,
		Port:     port,
		RepoRoot: repoRoot,
		LogDir:   logDir,
		Review:   fileCfg.Review,
	}, nil
}

// defaultLogDir places logs under the user config directory, alongside the
// reviewer logs the dashboard tails.
func defaultLogDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "gsd-review-broker")
	}

	return filepath.Join(base, "gsd", "gsd-review-broker", "logs")
}
