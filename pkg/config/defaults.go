// Copyright 2026 QuizForge. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package config

import (
	"os"
	"path/filepath"
	"time"
)

// DefaultConfig returns the default configuration.
// These values are used when no config file is present.
func DefaultConfig() *Config {
	return &Config{
		Cache:    DefaultCacheConfig(),
		Fallback: DefaultFallbackConfig(),
		Retry:    DefaultRetryConfig(),
		Privacy:  PrivacyConfig{},
		Global:   DefaultGlobalConfig(),
	}
}

// DefaultCacheConfig returns default CacheStore configuration.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Capacity:      500,
		SweepInterval: 5 * time.Minute,
	}
}

// DefaultFallbackConfig returns default TTLs and breaker settings.
func DefaultFallbackConfig() FallbackConfig {
	return FallbackConfig{
		TTL: TTLConfig{
			Subjects:    24 * time.Hour,
			Questions:   12 * time.Hour,
			Profiles:    time.Hour,
			CustomMixes: time.Hour,
		},
		ProviderTimeout: 10 * time.Second,
		Breaker: BreakerConfig{
			MaxRequests:      1,
			Interval:         30 * time.Second,
			Timeout:          30 * time.Second,
			FailureThreshold: 0.6,
			MinRequests:      5,
		},
		CheckInterval: time.Minute,
		ReportWindow:  24 * time.Hour,
	}
}

// DefaultRetryConfig returns default RetryQueue configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		FlushInterval: 30 * time.Second,
		Concurrency:   1,
	}
}

// DefaultGlobalConfig returns default global configuration.
func DefaultGlobalConfig() GlobalConfig {
	return GlobalConfig{
		LogLevel:         "info",
		LogFormat:        "json",
		MetricsNamespace: "offline_kit",
	}
}

// GetDefaultSnapshotPath returns the default cache image location.
func GetDefaultSnapshotPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".offline-kit", "cache.db")
}

// GetDefaultConfigPath returns the default user config file path.
func GetDefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "offline-kit", "config.yaml")
}
