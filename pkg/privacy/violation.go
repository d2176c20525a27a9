// Copyright 2026 QuizForge. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package privacy

import (
	"fmt"
	"strings"
	"time"
)

// Severity represents how serious a violation is. Critical violations abort
// the operation that caused them; the rest are recorded only.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "low":
		*s = SeverityLow
	case "medium":
		*s = SeverityMedium
	case "high":
		*s = SeverityHigh
	case "critical":
		*s = SeverityCritical
	default:
		return fmt.Errorf("unknown severity %q", b)
	}
	return nil
}

// ViolationKind classifies a violation.
type ViolationKind string

const (
	KindNetworkTransmission   ViolationKind = "network_transmission"
	KindStorageLeak           ViolationKind = "storage_leak"
	KindUnauthorizedOperation ViolationKind = "unauthorized_operation"
)

// Violation is one entry of the guard's append-only log.
type Violation struct {
	Kind        ViolationKind `json:"kind" yaml:"kind"`
	Description string        `json:"description" yaml:"description"`
	Severity    Severity      `json:"severity" yaml:"severity"`
	ObservedAt  time.Time     `json:"observedAt" yaml:"observedAt"`
	Operation   string        `json:"operation,omitempty" yaml:"operation,omitempty"`
}

// Counts are the locally held entities a compliance report covers.
type Counts struct {
	Profiles         int `json:"profiles" yaml:"profiles"`
	CustomMixes      int `json:"customMixes" yaml:"customMixes"`
	CachedEntries    int `json:"cachedEntries" yaml:"cachedEntries"`
	PendingMutations int `json:"pendingMutations" yaml:"pendingMutations"`
}

// Add returns the field-wise sum of c and o.
func (c Counts) Add(o Counts) Counts {
	return Counts{
		Profiles:         c.Profiles + o.Profiles,
		CustomMixes:      c.CustomMixes + o.CustomMixes,
		CachedEntries:    c.CachedEntries + o.CachedEntries,
		PendingMutations: c.PendingMutations + o.PendingMutations,
	}
}

// StateSource contributes counts to a compliance report.
type StateSource interface {
	ComplianceCounts() Counts
}

// CountsFunc adapts a function to StateSource.
type CountsFunc func() Counts

// ComplianceCounts implements StateSource.
func (f CountsFunc) ComplianceCounts() Counts { return f() }

// ComplianceReport is the result of Guard.Verify.
type ComplianceReport struct {
	Compliant   bool        `json:"compliant" yaml:"compliant"`
	Violations  []Violation `json:"violations" yaml:"violations"`
	Counts      Counts      `json:"counts" yaml:"counts"`
	GeneratedAt time.Time   `json:"generatedAt" yaml:"generatedAt"`
}

// BySeverity returns how many violations of each severity the report holds.
func (r ComplianceReport) BySeverity() map[Severity]int {
	out := make(map[Severity]int)
	for _, v := range r.Violations {
		out[v.Severity]++
	}
	return out
}
