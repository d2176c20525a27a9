// Copyright 2026 QuizForge. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package main is the entry point for the offline-kit CLI.
package main

import (
	"errors"
	"os"

	kiterrors "github.com/quizforge/offline-kit/pkg/errors"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode lets scripts tell a privacy failure or an unusable cache image
// apart from other errors.
func exitCode(err error) int {
	switch {
	case errors.Is(err, kiterrors.ErrPrivacy):
		return 3
	case errors.Is(err, kiterrors.ErrStorage):
		return 4
	default:
		return 1
	}
}
