// Copyright 2026 QuizForge. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kiterrors "github.com/quizforge/offline-kit/pkg/errors"
	"github.com/quizforge/offline-kit/pkg/fallback"
)

func execute(t *testing.T, args ...string) []byte {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.Bytes()
}

func TestSimulateThenInspectAndVerify(t *testing.T) {
	t.Setenv("OFFLINE_KIT_CONFIG", "")
	snapshot := filepath.Join(t.TempDir(), "cache.db")

	var report simulateReport
	require.NoError(t, json.Unmarshal(execute(t, "simulate", "-o", "json", "--snapshot", snapshot), &report))

	assert.Equal(t, 3, report.Prefetch.Subjects)
	assert.Equal(t, 60, report.Prefetch.Questions)
	assert.Zero(t, report.Prefetch.Failed)

	sources := make(map[string]fallback.Source)
	for _, r := range report.Reads {
		assert.Empty(t, r.Error, r.Operation)
		sources[r.Operation+" "+r.Query] = r.Source
	}
	assert.Equal(t, fallback.SourceCache, sources["get_subjects "])
	assert.Equal(t, fallback.SourceCache, sources["get_questions Mathematics"])
	assert.Equal(t, fallback.SourceBroadened, sources["get_questions Mathematics KS2 difficulty 2-3 x5"])
	assert.Equal(t, fallback.SourceDefault, sources["get_questions History KS3 x5"])
	assert.Equal(t, fallback.SourceCache, sources["get_profiles "])

	require.Len(t, report.Writes, 2)
	for _, w := range report.Writes {
		assert.True(t, w.Pending, w.Operation)
	}
	assert.Equal(t, 2, report.Replay.Succeeded)
	assert.True(t, report.Compliance.Compliant)
	assert.Equal(t, snapshot, report.Snapshot)

	var inspected inspectReport
	require.NoError(t, json.Unmarshal(execute(t, "cache", "inspect", "-o", "json", snapshot), &inspected))
	assert.Equal(t, report.Cache.Entries, len(inspected.Entries))

	var compliance struct {
		Compliant bool `json:"compliant"`
		Counts    struct {
			Profiles      int `json:"profiles"`
			CachedEntries int `json:"cachedEntries"`
		} `json:"counts"`
	}
	require.NoError(t, json.Unmarshal(execute(t, "verify", "-o", "json", snapshot), &compliance))
	assert.True(t, compliance.Compliant)
	assert.Equal(t, 2, compliance.Counts.Profiles)
	assert.Equal(t, report.Cache.Entries, compliance.Counts.CachedEntries)
}

func TestVersionCommand(t *testing.T) {
	out := execute(t, "version")
	assert.Contains(t, string(out), "offline-kit version:")
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"privacy", kiterrors.PrivacyError("2 privacy violation(s), 0 critical", nil), 3},
		{"storage", fmt.Errorf("verify: %w", kiterrors.StorageError("open snapshot", errors.New("locked"))), 4},
		{"other", errors.New("unknown command"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}
