// Package config loads the optional configuration file. Everything has a
// working default; the file is where users tune logging or pin the transfer
// chunk size, and where the generated instance id is persisted on first load.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// InstanceID identifies this installation in logs. Generated on first
	// load and persisted.
	InstanceID string `yaml:"instance_id"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// MaxTransferSize pins the selection transfer chunk size in bytes.
	// Zero means negotiate with the X server.
	MaxTransferSize int `yaml:"max_transfer_size"`
}

// LogConfig holds logging-related configuration.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // "json" or "console"
}

// DefaultPath returns the default config file location under the user config
// directory.
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "xclipper", "config.yaml"), nil
}

func defaults() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the config file at path, or the default location when path is
// empty. A missing file at the default location yields the defaults; a
// missing file at an explicit path is an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return defaults(), nil
		}
	}

	cfg := defaults()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// no config file is the normal case
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.New().String()
		// best-effort: a read-only config dir just means a fresh id per run
		_ = save(path, cfg)
	}
	return cfg, nil
}

func save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
