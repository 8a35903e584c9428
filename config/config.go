// Package config loads dispatcher settings from a YAML file and environment
// variables.
//
// Settings and their defaults:
//
//	discovery:
//	  conflict_resolution: FAIL_FAST   # FAIL_FAST, FIRST_WINS, LAST_WINS, MERGE_ALL
//	  detector: core                   # core or enhanced
//	middleware:
//	  logging_enabled: false
//	  correlation_enabled: false
//	async:
//	  max_concurrency: <2 x NumCPU>    # 0 or less starts a goroutine per call
//
// Every key can be overridden from the environment, e.g.
// CQRS_DISCOVERY_CONFLICT_RESOLUTION=MERGE_ALL.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"github.com/bjaus/cqrs"
	"github.com/bjaus/cqrs/logger"
)

// Detector names.
const (
	DetectorCore     = "core"
	DetectorEnhanced = "enhanced"
)

// Options configures Load.
type Options struct {
	// WorkDir is the directory searched for the config file (default: ".").
	WorkDir string

	// ConfigBaseName is the file name without extension (default: "cqrs").
	ConfigBaseName string

	// ConfigType is the file type, yaml or json (default: "yaml").
	ConfigType string

	// EnvPrefix is the prefix of environment variables (default: "CQRS").
	EnvPrefix string
}

// DefaultOptions returns the default Options.
func DefaultOptions() Options {
	return Options{
		WorkDir:        ".",
		ConfigBaseName: "cqrs",
		ConfigType:     "yaml",
		EnvPrefix:      "CQRS",
	}
}

// Config holds the dispatcher settings.
type Config struct {
	Discovery struct {
		ConflictResolution string `mapstructure:"conflict_resolution" yaml:"conflict_resolution"`
		Detector           string `mapstructure:"detector" yaml:"detector"`
	} `mapstructure:"discovery" yaml:"discovery"`
	Middleware struct {
		LoggingEnabled     bool `mapstructure:"logging_enabled" yaml:"logging_enabled"`
		CorrelationEnabled bool `mapstructure:"correlation_enabled" yaml:"correlation_enabled"`
	} `mapstructure:"middleware" yaml:"middleware"`
	Async struct {
		MaxConcurrency int `mapstructure:"max_concurrency" yaml:"max_concurrency"`
	} `mapstructure:"async" yaml:"async"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("discovery.conflict_resolution", cqrs.FailFast.String())
	v.SetDefault("discovery.detector", DetectorCore)
	v.SetDefault("middleware.logging_enabled", false)
	v.SetDefault("middleware.correlation_enabled", false)
	v.SetDefault("async.max_concurrency", runtime.NumCPU()*2)
}

// Load reads <WorkDir>/<ConfigBaseName>.<ConfigType> if it exists, applies
// environment overrides and returns the validated result.
func Load(options Options) (*Config, error) {
	defaults := DefaultOptions()
	if options.WorkDir == "" {
		options.WorkDir = defaults.WorkDir
	}
	if options.ConfigBaseName == "" {
		options.ConfigBaseName = defaults.ConfigBaseName
	}
	if options.ConfigType == "" {
		options.ConfigType = defaults.ConfigType
	}
	if options.EnvPrefix == "" {
		options.EnvPrefix = defaults.EnvPrefix
	}

	v := viper.New()
	v.SetEnvPrefix(options.EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	path := filepath.Join(options.WorkDir, options.ConfigBaseName+"."+options.ConfigType)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType(options.ConfigType)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: stat %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	if _, err := cqrs.ParseConflictPolicy(c.Discovery.ConflictResolution); err != nil {
		return fmt.Errorf("config: discovery.conflict_resolution: %w", err)
	}
	if _, err := c.detector(); err != nil {
		return err
	}
	return nil
}

func (c *Config) detector() (cqrs.Detector, error) {
	switch strings.ToLower(c.Discovery.Detector) {
	case "", DetectorCore:
		return cqrs.CoreDetector{}, nil
	case DetectorEnhanced:
		return cqrs.EnhancedDetector{}, nil
	default:
		return nil, fmt.Errorf("config: discovery.detector: unknown detector %q", c.Discovery.Detector)
	}
}

// Options turns the settings into dispatcher options. l is used by the
// dispatcher and, when enabled, the logging middleware.
//
// Example:
//
//	cfg, err := config.Load(config.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	opts, err := cfg.Options(log)
//	if err != nil {
//	    return err
//	}
//	d := cqrs.New(opts...)
func (c *Config) Options(l logger.Logger) ([]cqrs.Option, error) {
	policy, err := cqrs.ParseConflictPolicy(c.Discovery.ConflictResolution)
	if err != nil {
		return nil, fmt.Errorf("config: discovery.conflict_resolution: %w", err)
	}
	detector, err := c.detector()
	if err != nil {
		return nil, err
	}

	opts := []cqrs.Option{
		cqrs.WithLogger(l),
		cqrs.WithConflictPolicy(policy),
		cqrs.WithDetector(detector),
	}

	// correlation first so the logging middleware sees the id
	if c.Middleware.CorrelationEnabled {
		opts = append(opts, cqrs.WithMiddleware(cqrs.NewCorrelationMiddleware()))
	}
	if c.Middleware.LoggingEnabled {
		opts = append(opts, cqrs.WithMiddleware(cqrs.NewLoggingMiddleware(l)))
	}

	if c.Async.MaxConcurrency > 0 {
		opts = append(opts, cqrs.WithExecutor(cqrs.NewPoolExecutor(c.Async.MaxConcurrency)))
	}

	return opts, nil
}
