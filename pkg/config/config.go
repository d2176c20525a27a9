// Copyright 2026 QuizForge. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package config provides configuration management for offline-kit.
//
// Configuration Loading Order (later overrides earlier):
// 1. Defaults (hardcoded)
// 2. Config file: ./offline-kit.yaml, parents, then $HOME/.config/offline-kit/config.yaml
// 3. Environment Variables: OFFLINE_KIT_*
package config

import (
	"time"
)

// Config represents the complete application configuration.
type Config struct {
	Cache    CacheConfig    `yaml:"cache" envPrefix:"CACHE_"`
	Fallback FallbackConfig `yaml:"fallback" envPrefix:"FALLBACK_"`
	Retry    RetryConfig    `yaml:"retry" envPrefix:"RETRY_"`
	Privacy  PrivacyConfig  `yaml:"privacy" envPrefix:"PRIVACY_"`
	Global   GlobalConfig   `yaml:"global" envPrefix:"GLOBAL_"`
}

// CacheConfig contains CacheStore settings.
type CacheConfig struct {
	// Capacity of 0 disables caching entirely.
	Capacity      int           `yaml:"capacity" env:"CAPACITY" validate:"gte=0"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL" validate:"gt=0"`
	// SnapshotPath enables the sqlite cache image when non-empty.
	SnapshotPath string `yaml:"snapshot_path" env:"SNAPSHOT_PATH"`
}

// FallbackConfig contains per-operation TTLs and provider protection.
type FallbackConfig struct {
	TTL             TTLConfig     `yaml:"ttl" envPrefix:"TTL_"`
	ProviderTimeout time.Duration `yaml:"provider_timeout" env:"PROVIDER_TIMEOUT" validate:"gte=0"`
	Breaker         BreakerConfig `yaml:"breaker" envPrefix:"BREAKER_"`
	// CheckInterval of 0 disables background reachability checks.
	CheckInterval time.Duration `yaml:"check_interval" env:"CHECK_INTERVAL" validate:"gte=0"`
	// ReportWindow bounds the connectivity report.
	ReportWindow time.Duration `yaml:"report_window" env:"REPORT_WINDOW" validate:"gte=0"`
}

// TTLConfig holds cache lifetimes per provider operation.
type TTLConfig struct {
	Subjects    time.Duration `yaml:"subjects" env:"SUBJECTS" validate:"gte=0"`
	Questions   time.Duration `yaml:"questions" env:"QUESTIONS" validate:"gte=0"`
	Profiles    time.Duration `yaml:"profiles" env:"PROFILES" validate:"gte=0"`
	CustomMixes time.Duration `yaml:"custom_mixes" env:"CUSTOM_MIXES" validate:"gte=0"`
}

// BreakerConfig configures the circuit breaker around provider calls.
type BreakerConfig struct {
	MaxRequests      uint32        `yaml:"max_requests" env:"MAX_REQUESTS"`
	Interval         time.Duration `yaml:"interval" env:"INTERVAL" validate:"gte=0"`
	Timeout          time.Duration `yaml:"timeout" env:"TIMEOUT" validate:"gte=0"`
	FailureThreshold float64       `yaml:"failure_threshold" env:"FAILURE_THRESHOLD" validate:"gte=0,lte=1"`
	MinRequests      uint32        `yaml:"min_requests" env:"MIN_REQUESTS"`
}

// RetryConfig contains RetryQueue settings.
type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries" env:"MAX_RETRIES" validate:"gte=1"`
	FlushInterval time.Duration `yaml:"flush_interval" env:"FLUSH_INTERVAL" validate:"gt=0"`
	Concurrency   int           `yaml:"concurrency" env:"CONCURRENCY" validate:"gte=1,lte=16"`
}

// PrivacyConfig contains PrivacyGuard settings.
type PrivacyConfig struct {
	// AllowedOperations may only narrow the built-in allow-list.
	AllowedOperations []string `yaml:"allowed_operations" env:"ALLOWED_OPERATIONS" envSeparator:","`
	// PersonalFields are redacted in addition to the built-in set.
	PersonalFields []string `yaml:"personal_fields" env:"PERSONAL_FIELDS" envSeparator:","`
	// NetworkOperations lists provider operations served over the network.
	// Each must pass the allow-list or the call is refused.
	NetworkOperations []string `yaml:"network_operations" env:"NETWORK_OPERATIONS" envSeparator:","`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel         string `yaml:"log_level" env:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn error"`
	LogFormat        string `yaml:"log_format" env:"LOG_FORMAT" validate:"omitempty,oneof=json console"`
	MetricsNamespace string `yaml:"metrics_namespace" env:"METRICS_NAMESPACE"`
}
