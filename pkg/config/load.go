// Package config handles configuration loading and validation
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/quizforge/offline-kit/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix is the prefix for all environment variables.
	EnvPrefix = "OFFLINE_KIT_"
	// EnvConfigPath overrides the config file location.
	EnvConfigPath = "OFFLINE_KIT_CONFIG"
)

// Default config file names to search for
var defaultConfigFiles = []string{
	".offline-kit.yaml",
	".offline-kit.yml",
	"offline-kit.yaml",
	"offline-kit.yml",
}

// Load loads configuration from a specific file path. Fields absent from the
// file keep their defaults; environment variables override both.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("failed to read config file: %s", path), err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("failed to parse config file: %s", path), err)
	}

	return finish(cfg)
}

// LoadDefault searches for and loads configuration from default locations
// Search order:
// 1. Current directory
// 2. Parent directories (up to root)
// 3. User config directory (.config/offline-kit/)
func LoadDefault() (*Config, error) {
	if path, ok := findInParents("."); ok {
		return Load(path)
	}

	if path := GetDefaultConfigPath(); fileExists(path) {
		return Load(path)
	}

	// No config found - defaults plus environment
	return finish(DefaultConfig())
}

// LoadFromEnv loads config from environment variable path
// OFFLINE_KIT_CONFIG can override the config file path
func LoadFromEnv() (*Config, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return Load(path)
	}
	return LoadDefault()
}

// ApplyEnv overrides cfg with any OFFLINE_KIT_* variables that are set.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return errors.ConfigError("failed to parse environment overrides", err)
	}
	return nil
}

func finish(cfg *Config) (*Config, error) {
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := NewValidator().Validate(cfg); err != nil {
		return nil, errors.ConfigError("config validation failed", err)
	}
	return cfg, nil
}

// findInParents searches for config file in current directory and parent directories
func findInParents(startDir string) (string, bool) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false
	}

	for {
		for _, filename := range defaultConfigFiles {
			configPath := filepath.Join(dir, filename)
			if fileExists(configPath) {
				return configPath, true
			}
		}

		parentDir := filepath.Dir(dir)
		if parentDir == dir {
			// Reached root
			break
		}
		dir = parentDir
	}

	return "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
