// Copyright 2026 QuizForge. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quizforge/offline-kit/pkg/cache/sqlite"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Work with persisted cache images",
}

var cacheInspectCmd = &cobra.Command{
	Use:   "inspect [snapshot-path]",
	Short: "List the entries of a cache image",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCacheInspect,
}

var inspectPrefix string

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheInspectCmd)

	cacheInspectCmd.Flags().StringVar(&inspectPrefix, "prefix", "", "Only list keys with this prefix (e.g. get_questions)")
}

type inspectedEntry struct {
	Key         string    `yaml:"key" json:"key"`
	Size        int       `yaml:"size" json:"size"`
	AccessCount int64     `yaml:"accessCount" json:"accessCount"`
	CreatedAt   time.Time `yaml:"createdAt" json:"createdAt"`
	ExpiresAt   time.Time `yaml:"expiresAt" json:"expiresAt"`
	Expired     bool      `yaml:"expired" json:"expired"`
}

type inspectReport struct {
	Path    string           `yaml:"path" json:"path"`
	Entries []inspectedEntry `yaml:"entries" json:"entries"`
	Expired int              `yaml:"expired" json:"expired"`
	Bytes   int64            `yaml:"bytes" json:"bytes"`
}

func runCacheInspect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := cfg.Cache.SnapshotPath
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		return fmt.Errorf("no snapshot path given and cache.snapshot_path is not set")
	}

	store, err := sqlite.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.Load(cmd.Context())
	if err != nil {
		return err
	}

	now := time.Now()
	report := inspectReport{Path: path, Entries: make([]inspectedEntry, 0, len(entries))}
	for i := range entries {
		e := &entries[i]
		if inspectPrefix != "" && !strings.HasPrefix(e.Key, inspectPrefix) {
			continue
		}
		expired := e.Expired(now)
		if expired {
			report.Expired++
		}
		report.Bytes += int64(e.Size)
		report.Entries = append(report.Entries, inspectedEntry{
			Key:         e.Key,
			Size:        e.Size,
			AccessCount: e.AccessCount,
			CreatedAt:   e.CreatedAt,
			ExpiresAt:   e.ExpiresAt,
			Expired:     expired,
		})
	}
	sort.Slice(report.Entries, func(i, j int) bool {
		return report.Entries[i].Key < report.Entries[j].Key
	})

	return render(cmd, report)
}
