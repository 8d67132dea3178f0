package app

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Config holds everything an invocation needs.
type Config struct {
	// Root is the project root. Every relative path resolves against it.
	Root string
	// DefinitionPath is a .hcl file or a directory of them, relative to Root
	// unless absolute. Empty means Root.
	DefinitionPath string
	Vars           map[string]string

	// Variants and Targets restrict the run to a subgraph.
	Variants []string
	Targets  []string

	// VersionCode overrides the time-derived version code.
	VersionCode string
	// SigningFile overrides the credentials path of the build definition.
	SigningFile string

	WorkerCount  int
	FetchRetries int
	Progress     bool

	HealthcheckPort int

	LogFormat string
	LogLevel  string
}

// NewConfig validates cfg and fills in defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.Root == "" {
		return nil, errors.New("Root is a required configuration field and cannot be empty")
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = runtime.NumCPU()
	}
	if cfg.FetchRetries < 0 {
		return nil, fmt.Errorf("fetch retries must not be negative, got %d", cfg.FetchRetries)
	}
	if cfg.HealthcheckPort < 0 {
		return nil, fmt.Errorf("invalid healthcheck port %d", cfg.HealthcheckPort)
	}

	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	switch cfg.LogFormat {
	case "":
		cfg.LogFormat = "text"
	case "text", "json":
	default:
		return nil, errors.New("invalid log-format: must be 'text' or 'json'")
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	switch cfg.LogLevel {
	case "":
		cfg.LogLevel = "info"
	case "debug", "info", "warn", "error":
	default:
		return nil, errors.New("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}
	return &cfg, nil
}
