// Copyright 2026 QuizForge. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package fallback

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/sony/gobreaker"

	kiterrors "github.com/quizforge/offline-kit/pkg/errors"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      string
		transient bool
	}{
		{"deadline", fmt.Errorf("get_questions: %w", context.DeadlineExceeded), CodeTimeout, true},
		{"timeout text", errors.New("request timeout after 10s"), CodeTimeout, true},
		{"rate limit", errors.New("HTTP 429 Too Many Requests"), CodeRateLimited, true},
		{"unauthorized", errors.New("401 unauthorized"), CodeUnauthorized, false},
		{"server", errors.New("503 service unavailable"), CodeServerError, true},
		{"offline", errors.New("provider unreachable: network is offline"), CodeOffline, true},
		{"dial", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, CodeOffline, true},
		{"breaker", gobreaker.ErrOpenState, CodeBreakerOpen, true},
		{"half open", gobreaker.ErrTooManyRequests, CodeBreakerOpen, true},
		{"validation", kiterrors.ValidationError("bad request", nil), CodeValidation, false},
		{"storage", kiterrors.StorageError("disk full", nil), CodeStorage, false},
		{"privacy", kiterrors.PrivacyError("blocked", nil), CodePrivacy, false},
		{"unknown", errors.New("something odd"), CodeUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err)
			if got.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, got.Code)
			}
			if got.Transient != tt.transient {
				t.Errorf("Expected transient=%v, got %v", tt.transient, got.Transient)
			}
		})
	}

	if ClassifyError(nil) != nil {
		t.Error("nil error should classify as nil")
	}
}
