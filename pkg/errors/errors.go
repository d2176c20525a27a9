// Copyright 2026 QuizForge. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package errors provides typed errors for offline-kit.
package errors

import (
	"errors"
	"fmt"
)

// Kind represents the category of error.
type Kind int

const (
	// KindTransient indicates a network or timeout failure talking to the provider.
	KindTransient Kind = iota
	// KindNoData indicates no fallback tier produced data.
	KindNoData
	// KindPrivacy indicates an operation was blocked by the privacy guard.
	KindPrivacy
	// KindQueueExhausted indicates a queued mutation ran out of retries.
	KindQueueExhausted
	// KindConfig indicates a configuration error
	KindConfig
	// KindValidation indicates an input validation error
	KindValidation
	// KindStorage indicates local storage is broken; never resolved by fallback.
	KindStorage
)

// Error is the base error type for all offline-kit errors.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Context map[string]any
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports kind equality so errors.Is(err, errors.New(KindNoData, "", nil))
// style sentinels match regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// New creates a new Error.
func New(kind Kind, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value any) *Error {
	e.Context[key] = value
	return e
}

// Sentinels for errors.Is checks.
var (
	ErrTransient      = &Error{Kind: KindTransient}
	ErrNoData         = &Error{Kind: KindNoData}
	ErrPrivacy        = &Error{Kind: KindPrivacy}
	ErrQueueExhausted = &Error{Kind: KindQueueExhausted}
	ErrStorage        = &Error{Kind: KindStorage}
)

// IsKind checks if an error is of a specific kind
func IsKind(err error, kind Kind) bool {
	var e *Error
	if err == nil {
		return false
	}
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsTransient returns true if the error is a provider failure the fallback
// chain or the retry queue can absorb.
func IsTransient(err error) bool {
	return IsKind(err, KindTransient)
}

// String returns the upper-case label used in messages and logs.
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "TRANSIENT"
	case KindNoData:
		return "NO_DATA"
	case KindPrivacy:
		return "PRIVACY"
	case KindQueueExhausted:
		return "QUEUE_EXHAUSTED"
	case KindConfig:
		return "CONFIG"
	case KindValidation:
		return "VALIDATION"
	case KindStorage:
		return "STORAGE"
	default:
		return "UNKNOWN"
	}
}

// Convenience functions for common errors

// TransientError creates a transient provider failure.
func TransientError(message string, cause error) *Error {
	return New(KindTransient, message, cause)
}

// NoDataError creates an unavailable error after fallback exhaustion.
func NoDataError(message string, cause error) *Error {
	return New(KindNoData, message, cause)
}

// PrivacyError creates a privacy violation error.
func PrivacyError(message string, cause error) *Error {
	return New(KindPrivacy, message, cause)
}

// QueueExhaustedError creates an exhausted retry error.
func QueueExhaustedError(message string, cause error) *Error {
	return New(KindQueueExhausted, message, cause)
}

// ConfigError creates a configuration error
func ConfigError(message string, cause error) *Error {
	return New(KindConfig, message, cause)
}

// ValidationError creates a validation error
func ValidationError(message string, cause error) *Error {
	return New(KindValidation, message, cause)
}

// StorageError creates a local storage error.
func StorageError(message string, cause error) *Error {
	return New(KindStorage, message, cause)
}
