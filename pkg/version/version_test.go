// Copyright 2026 QuizForge. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package version

import (
	"runtime"
	"testing"
)

func TestFullString(t *testing.T) {
	old := Version
	defer func() { Version = old }()

	Version = "dev"
	if got := FullString(); got != "offline-kit development version" {
		t.Errorf("unexpected dev string %q", got)
	}
	Version = "1.2.0"
	if got := FullString(); got != "offline-kit 1.2.0" {
		t.Errorf("unexpected release string %q", got)
	}
}

func TestInfo(t *testing.T) {
	info := Info()
	if info["goVersion"] != runtime.Version() {
		t.Errorf("goVersion = %q, want %q", info["goVersion"], runtime.Version())
	}
	for _, k := range []string{"version", "buildDate", "gitCommit"} {
		if info[k] == "" {
			t.Errorf("missing %s", k)
		}
	}
}
