// Copyright 2026 QuizForge. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package retry

import (
	"context"

	"github.com/quizforge/offline-kit/pkg/content"
)

// Mutation is a queued write. The set of variants is closed: ProgressUpdate
// and CustomMixCreate.
type Mutation interface {
	// Operation returns the provider operation the mutation replays.
	Operation() string
	mutation()
}

// ProgressUpdate replays content.Provider.UpdateProgress.
type ProgressUpdate struct {
	ProfileID string             `json:"profileId" yaml:"profileId"`
	Result    content.QuizResult `json:"result" yaml:"result"`
}

// Operation implements Mutation.
func (ProgressUpdate) Operation() string { return content.OpUpdateProgress }
func (ProgressUpdate) mutation()         {}

// CustomMixCreate replays content.Provider.CreateCustomMix.
type CustomMixCreate struct {
	Request content.CustomMixRequest `json:"request" yaml:"request"`
}

// Operation implements Mutation.
func (CustomMixCreate) Operation() string { return content.OpCreateCustomMix }
func (CustomMixCreate) mutation()         {}

// Executor re-invokes a queued mutation against the provider.
type Executor interface {
	Execute(ctx context.Context, m Mutation) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, m Mutation) error

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, m Mutation) error {
	return f(ctx, m)
}
