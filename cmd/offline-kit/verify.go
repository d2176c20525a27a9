// Copyright 2026 QuizForge. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quizforge/offline-kit/pkg/cache/sqlite"
	"github.com/quizforge/offline-kit/pkg/content"
	kiterrors "github.com/quizforge/offline-kit/pkg/errors"
	"github.com/quizforge/offline-kit/pkg/privacy"
	"github.com/quizforge/offline-kit/pkg/service"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [snapshot-path]",
	Short: "Report privacy compliance of a persisted cache image",
	Long: `Verify restores a cache image, checks its file permissions and reports
how many profiles, custom mixes, cache entries and pending writes are held
locally, together with every privacy violation found.

The command exits with status 3 when the report is not compliant and 4
when the image cannot be read.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	path := cfg.Cache.SnapshotPath
	if len(args) == 1 {
		path = args[0]
	}

	// no provider is contacted; the report covers local state only
	provider := content.NewMemoryProvider(nil, nil, nil)
	provider.SetOnline(false)
	svc, err := service.New(service.Deps{Provider: provider, Config: cfg, Logger: logger})
	if err != nil {
		return err
	}

	if path != "" && fileExists(path) {
		if err := svc.Guard().CheckStoragePath(path); err != nil {
			return err
		}
		store, err := sqlite.Open(path)
		if err != nil {
			return err
		}
		_, err = svc.Cache().LoadFrom(cmd.Context(), store)
		_ = store.Close()
		if err != nil {
			return err
		}
	}

	report := svc.Verify()
	if err := render(cmd, report); err != nil {
		return err
	}
	if !report.Compliant {
		return kiterrors.PrivacyError(fmt.Sprintf("%d privacy violation(s), %d critical",
			len(report.Violations), report.BySeverity()[privacy.SeverityCritical]), nil)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
