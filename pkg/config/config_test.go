// Copyright 2026 QuizForge. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/quizforge/offline-kit/pkg/config"
	"github.com/quizforge/offline-kit/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultConfig tests the default configuration.
func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	assert.Equal(t, 500, cfg.Cache.Capacity)
	assert.Equal(t, 24*time.Hour, cfg.Fallback.TTL.Subjects)
	assert.Equal(t, 12*time.Hour, cfg.Fallback.TTL.Questions)
	assert.Equal(t, time.Minute, cfg.Fallback.CheckInterval)
	assert.Equal(t, 24*time.Hour, cfg.Fallback.ReportWindow)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Retry.FlushInterval)
	assert.Equal(t, "info", cfg.Global.LogLevel)

	require.NoError(t, config.NewValidator().Validate(cfg))
}

// TestLoadFromPath tests loading config from a file.
func TestLoadFromPath(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "offline-kit.yaml")
	configContent := `
cache:
  capacity: 3
  sweep_interval: 1m
fallback:
  ttl:
    questions: 1h
retry:
  max_retries: 5
global:
  log_level: debug
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0600))

	cfg, err := config.Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Cache.Capacity)
	assert.Equal(t, time.Minute, cfg.Cache.SweepInterval)
	assert.Equal(t, time.Hour, cfg.Fallback.TTL.Questions)
	// untouched keys keep defaults
	assert.Equal(t, 24*time.Hour, cfg.Fallback.TTL.Subjects)
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, "debug", cfg.Global.LogLevel)
}

func TestLoadFromPathInvalid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "offline-kit.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("cache: [not, a, map"), 0600))

	_, err := config.Load(configPath)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.IsKind(err, errors.KindConfig))
}

func TestLoadWithEnvOverrides(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "offline-kit.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("cache:\n  capacity: 10\n"), 0600))

	t.Setenv("OFFLINE_KIT_CACHE_CAPACITY", "42")
	t.Setenv("OFFLINE_KIT_RETRY_FLUSH_INTERVAL", "5s")
	t.Setenv("OFFLINE_KIT_FALLBACK_TTL_SUBJECTS", "2h")
	t.Setenv("OFFLINE_KIT_PRIVACY_PERSONAL_FIELDS", "nickname,school")

	cfg, err := config.Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 42, cfg.Cache.Capacity)
	assert.Equal(t, 5*time.Second, cfg.Retry.FlushInterval)
	assert.Equal(t, 2*time.Hour, cfg.Fallback.TTL.Subjects)
	assert.Equal(t, []string{"nickname", "school"}, cfg.Privacy.PersonalFields)
}

func TestLoadWithEnvInvalidDuration(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "offline-kit.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("{}"), 0600))
	t.Setenv("OFFLINE_KIT_RETRY_FLUSH_INTERVAL", "soon")

	_, err := config.Load(configPath)
	assert.True(t, errors.IsKind(err, errors.KindConfig))
}

func TestLoadFromEnvPath(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("retry:\n  max_retries: 7\n"), 0600))
	t.Setenv(config.EnvConfigPath, configPath)

	cfg, err := config.LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Retry.MaxRetries)
}

func TestValidator(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		field  string
	}{
		{name: "negative capacity", mutate: func(c *config.Config) { c.Cache.Capacity = -1 }, field: "cache.capacity"},
		{name: "zero max retries", mutate: func(c *config.Config) { c.Retry.MaxRetries = 0 }, field: "retry.maxretries"},
		{name: "bad log level", mutate: func(c *config.Config) { c.Global.LogLevel = "loud" }, field: "global.loglevel"},
		{name: "threshold above one", mutate: func(c *config.Config) { c.Fallback.Breaker.FailureThreshold = 1.5 }, field: "fallback.breaker.failurethreshold"},
		{name: "negative ttl", mutate: func(c *config.Config) { c.Fallback.TTL.Questions = -time.Second }, field: "fallback.ttl.questions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.mutate(cfg)

			err := config.NewValidator().Validate(cfg)
			require.Error(t, err)

			var vErr *config.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestZeroCapacityIsValid(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Cache.Capacity = 0
	assert.NoError(t, config.NewValidator().Validate(cfg))
}

func TestValidationError(t *testing.T) {
	err := &config.ValidationError{Field: "cache.capacity", Value: -1, Message: "must be >= 0"}
	assert.Equal(t, "validation error for cache.capacity: must be >= 0 (got: -1)", err.Error())
}
