// Copyright 2026 QuizForge. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package fallback

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/sony/gobreaker"

	kiterrors "github.com/quizforge/offline-kit/pkg/errors"
)

// Error codes assigned by ClassifyError.
const (
	CodeTimeout      = "TIMEOUT"
	CodeRateLimited  = "RATE_LIMITED"
	CodeServerError  = "SERVER_ERROR"
	CodeOffline      = "OFFLINE"
	CodeBreakerOpen  = "BREAKER_OPEN"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeValidation   = "VALIDATION"
	CodeStorage      = "STORAGE"
	CodePrivacy      = "PRIVACY"
	CodeUnknown      = "UNKNOWN"
)

// ProviderError is a provider failure with its classification.
// Transient failures walk the fallback chain on reads and are queued on
// writes; the rest propagate to the caller unchanged.
type ProviderError struct {
	Code      string
	Message   string
	Transient bool
}

func (e *ProviderError) Error() string {
	return e.Code + ": " + e.Message
}

// ClassifyError classifies a provider error.
func ClassifyError(err error) *ProviderError {
	if err == nil {
		return nil
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	// Local failures are never resolved by serving older data
	var kerr *kiterrors.Error
	if errors.As(err, &kerr) {
		switch kerr.Kind {
		case kiterrors.KindValidation, kiterrors.KindConfig:
			return &ProviderError{Code: CodeValidation, Message: msg}
		case kiterrors.KindStorage:
			return &ProviderError{Code: CodeStorage, Message: msg}
		case kiterrors.KindPrivacy:
			return &ProviderError{Code: CodePrivacy, Message: msg}
		}
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &ProviderError{Code: CodeBreakerOpen, Message: msg, Transient: true}
	}

	// Timeout errors
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) ||
		strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded") {
		return &ProviderError{Code: CodeTimeout, Message: msg, Transient: true}
	}

	// Rate limiting
	if strings.Contains(lower, "rate limit") || strings.Contains(lower, "429") {
		return &ProviderError{Code: CodeRateLimited, Message: msg, Transient: true}
	}

	// Authentication errors are not fixed by retrying
	if strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "authentication") {
		return &ProviderError{Code: CodeUnauthorized, Message: msg}
	}

	// Server errors
	if strings.Contains(lower, "500") || strings.Contains(lower, "502") ||
		strings.Contains(lower, "503") || strings.Contains(lower, "504") ||
		strings.Contains(lower, "unavailable") {
		return &ProviderError{Code: CodeServerError, Message: msg, Transient: true}
	}

	// No connectivity
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) ||
		strings.Contains(lower, "offline") || strings.Contains(lower, "unreachable") ||
		strings.Contains(lower, "connection refused") || strings.Contains(lower, "no route to host") ||
		strings.Contains(lower, "no such host") {
		return &ProviderError{Code: CodeOffline, Message: msg, Transient: true}
	}

	// Default: anything else from the provider is treated as transient
	return &ProviderError{Code: CodeUnknown, Message: msg, Transient: true}
}
