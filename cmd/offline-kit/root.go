// Copyright 2026 QuizForge. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quizforge/offline-kit/pkg/config"
	"github.com/quizforge/offline-kit/pkg/observability"
	"github.com/quizforge/offline-kit/pkg/output"
	"github.com/quizforge/offline-kit/pkg/version"
)

// rootFlags holds the persistent flags shared by every command
type rootFlags struct {
	config   string
	output   string
	logLevel string
}

var rootOpts rootFlags

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "offline-kit",
	Short: "Offline-first resilience layer toolkit",
	Long: `offline-kit drives the offline-first resilience layer of the quiz
application: cache, fallback chain, retry queue and privacy guard.

Use it to simulate an offline session, verify privacy compliance of a
persisted cache image and inspect that image.`,
	Version:       version.FullString(),
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootOpts.config, "config", "c", "", "Path to configuration file (default: search ./offline-kit.yaml, then $HOME/.config/offline-kit/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootOpts.output, "output", "o", output.FormatYAML, "Output format: yaml or json")
	rootCmd.PersistentFlags().StringVar(&rootOpts.logLevel, "log-level", "", "Override the configured log level")
}

// loadConfig resolves the configuration the way every command needs it.
func loadConfig() (*config.Config, error) {
	if rootOpts.config != "" {
		return config.Load(rootOpts.config)
	}
	return config.LoadFromEnv()
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level := cfg.Global.LogLevel
	if rootOpts.logLevel != "" {
		level = rootOpts.logLevel
	}
	return observability.NewLogger(level, cfg.Global.LogFormat)
}

func render(cmd *cobra.Command, v any) error {
	f, err := output.NewFormatter(rootOpts.output)
	if err != nil {
		return err
	}
	return f.Write(cmd.OutOrStdout(), v)
}
