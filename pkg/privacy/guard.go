// Copyright 2026 QuizForge. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package privacy keeps personal data on the device. It strips personal
// fields from outbound payloads, restricts which operations may use the
// network and reports on what is held locally.
package privacy

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/quizforge/offline-kit/pkg/content"
	kiterrors "github.com/quizforge/offline-kit/pkg/errors"
	"github.com/quizforge/offline-kit/pkg/observability"
	"github.com/quizforge/offline-kit/pkg/retry"
)

// DefaultAllowedOperations are the only operation classes that may touch the
// network. A trailing ".*" matches any suffix.
var DefaultAllowedOperations = []string{
	"content.update.*",
	"signature.verify.*",
}

// DefaultPersonalFields are field names never allowed off the device.
// Matching ignores case and the separators '_', '-', '.' and ' '.
var DefaultPersonalFields = []string{
	"profileId", "profile", "profiles", "userId", "childId",
	"name", "firstName", "lastName", "fullName", "displayName", "username",
	"avatar", "email", "dateOfBirth",
	"progress", "score", "scores", "totalScore", "results", "quizResult",
	"achievements",
	"mix", "mixes", "customMix", "customMixes", "mixContents",
}

// NarrowAllowList keeps the patterns that fall inside the default
// allow-list, so configuration can restrict network access but never widen
// it.
func NarrowAllowList(patterns []string) []string {
	defaults := NewGuard()
	var out []string
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p != "" && defaults.IsOperationAllowed(strings.TrimSuffix(p, ".*")) {
			out = append(out, p)
		}
	}
	return out
}

// Checker is the write-path view of the guard.
type Checker interface {
	CheckNetworkOperation(op string, payload map[string]any) (map[string]any, error)
	SanitizeMutation(m retry.Mutation) map[string]any
}

// Guard enforces the outbound data policy and keeps the violation log.
type Guard struct {
	mu         sync.Mutex
	clock      clockwork.Clock
	logger     *zap.Logger
	metrics    *observability.Collector
	allowed    []string
	personal   map[string]struct{}
	violations []Violation
	sources    []StateSource
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock sets the time source for violation timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(g *Guard) { g.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// WithMetrics sets the Prometheus collector.
func WithMetrics(m *observability.Collector) Option {
	return func(g *Guard) { g.metrics = m }
}

// WithAllowedOperations replaces the network allow-list.
func WithAllowedOperations(patterns ...string) Option {
	return func(g *Guard) { g.allowed = append([]string(nil), patterns...) }
}

// WithPersonalFields adds field names to the personal-data set.
func WithPersonalFields(fields ...string) Option {
	return func(g *Guard) {
		for _, f := range fields {
			g.personal[normalizeField(f)] = struct{}{}
		}
	}
}

// WithStateSource adds a source of counts for Verify.
func WithStateSource(src StateSource) Option {
	return func(g *Guard) { g.sources = append(g.sources, src) }
}

// NewGuard creates a guard with the default allow-list and field set.
func NewGuard(opts ...Option) *Guard {
	g := &Guard{
		clock:    clockwork.NewRealClock(),
		allowed:  append([]string(nil), DefaultAllowedOperations...),
		personal: make(map[string]struct{}, len(DefaultPersonalFields)),
	}
	for _, f := range DefaultPersonalFields {
		g.personal[normalizeField(f)] = struct{}{}
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = observability.OrNop(g.logger).Named("privacy")
	g.metrics = observability.OrNew(g.metrics)
	return g
}

// AddStateSource registers a source of counts after construction.
func (g *Guard) AddStateSource(src StateSource) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sources = append(g.sources, src)
}

// IsOperationAllowed reports whether op may use the network.
func (g *Guard) IsOperationAllowed(op string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	op = strings.ToLower(strings.TrimSpace(op))
	for _, pattern := range g.allowed {
		pattern = strings.ToLower(pattern)
		if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
			if op == prefix || strings.HasPrefix(op, prefix+".") {
				return true
			}
			continue
		}
		if op == pattern {
			return true
		}
	}
	return false
}

// SanitizeForNetwork returns a copy of payload with every personal field
// removed, at any depth. Each removal is recorded as a medium violation.
// The input is not modified.
func (g *Guard) SanitizeForNetwork(payload map[string]any) map[string]any {
	return g.sanitize("", payload)
}

func (g *Guard) sanitize(op string, payload map[string]any) map[string]any {
	var removed []string
	out := g.sanitizeMap(payload, "", &removed)
	for _, p := range removed {
		g.Record(Violation{
			Kind:        KindNetworkTransmission,
			Description: fmt.Sprintf("personal field %q removed from outbound payload", p),
			Severity:    SeverityMedium,
			Operation:   op,
		})
	}
	return out
}

func (g *Guard) sanitizeMap(in map[string]any, prefix string, removed *[]string) map[string]any {
	if in == nil {
		return nil
	}
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(in))
	for _, k := range keys {
		p := path.Join(prefix, k)
		if g.isPersonal(k) {
			*removed = append(*removed, p)
			continue
		}
		out[k] = g.sanitizeValue(in[k], p, removed)
	}
	return out
}

func (g *Guard) sanitizeValue(v any, p string, removed *[]string) any {
	switch v := v.(type) {
	case map[string]any:
		return g.sanitizeMap(v, p, removed)
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = g.sanitizeValue(elem, fmt.Sprintf("%s[%d]", p, i), removed)
		}
		return out
	case []map[string]any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = g.sanitizeMap(elem, fmt.Sprintf("%s[%d]", p, i), removed)
		}
		return out
	default:
		return v
	}
}

func (g *Guard) isPersonal(field string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.personal[normalizeField(field)]
	return ok
}

// SanitizeMutation returns the network-safe projection of a queued write.
func (g *Guard) SanitizeMutation(m retry.Mutation) map[string]any {
	return g.sanitize(m.Operation(), mutationPayload(m))
}

func mutationPayload(m retry.Mutation) map[string]any {
	switch m := m.(type) {
	case retry.ProgressUpdate:
		return map[string]any{
			"profileId": m.ProfileID,
			"result": map[string]any{
				"subject":     m.Result.Subject,
				"score":       m.Result.Score,
				"total":       m.Result.Total,
				"completedAt": m.Result.CompletedAt,
			},
		}
	case retry.CustomMixCreate:
		req := m.Request
		out := map[string]any{
			"profileId":     req.ProfileID,
			"name":          req.Name,
			"subjects":      toAny(req.Subjects),
			"questionCount": req.QuestionCount,
		}
		if req.KeyStage != "" {
			out["keyStage"] = string(req.KeyStage)
		}
		if req.Difficulty != nil {
			out["difficulty"] = req.Difficulty.String()
		}
		return out
	default:
		panic("privacy: unknown mutation variant " + m.Operation())
	}
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// CheckNetworkOperation is the gate every network-bound call passes through.
// An operation outside the allow-list records a critical violation and
// returns a privacy error; the call must not proceed. Otherwise the
// sanitized payload is returned.
func (g *Guard) CheckNetworkOperation(op string, payload map[string]any) (map[string]any, error) {
	if !g.IsOperationAllowed(op) {
		v := g.Record(Violation{
			Kind:        KindUnauthorizedOperation,
			Description: fmt.Sprintf("operation %q is local-only and may not use the network", op),
			Severity:    SeverityCritical,
			Operation:   op,
		})
		return nil, kiterrors.PrivacyError(v.Description, nil).
			WithContext("operation", op).
			WithContext("severity", v.Severity.String())
	}
	return g.sanitize(op, payload), nil
}

// CheckStoragePath records a high storage_leak violation when the local
// data file at p, or one of the -wal, -shm or -journal files sqlite keeps
// beside it, is readable or writable by other users. Missing files are not
// violations.
func (g *Guard) CheckStoragePath(p string) error {
	for _, f := range []string{p, p + "-wal", p + "-shm", p + "-journal"} {
		info, err := os.Stat(f)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return kiterrors.StorageError("stat local data file", err)
		}
		if perm := info.Mode().Perm(); perm&fs.FileMode(0o077) != 0 {
			g.Record(Violation{
				Kind:        KindStorageLeak,
				Description: fmt.Sprintf("local data file %s has permissions %s", f, perm),
				Severity:    SeverityHigh,
			})
		}
	}
	return nil
}

// Record appends v to the log and returns it with its timestamp set.
func (g *Guard) Record(v Violation) Violation {
	g.mu.Lock()
	if v.ObservedAt.IsZero() {
		v.ObservedAt = g.clock.Now()
	}
	g.violations = append(g.violations, v)
	g.mu.Unlock()

	g.metrics.PrivacyViolations.WithLabelValues(string(v.Kind), v.Severity.String()).Inc()

	fields := []zap.Field{
		zap.String("kind", string(v.Kind)),
		zap.String("severity", v.Severity.String()),
		zap.String("operation", v.Operation),
	}
	if v.Severity >= SeverityHigh {
		g.logger.Warn(v.Description, fields...)
	} else {
		g.logger.Info(v.Description, fields...)
	}
	return v
}

// Violations returns a copy of the log.
func (g *Guard) Violations() []Violation {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Violation(nil), g.violations...)
}

// Reset clears the log.
func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.violations = nil
}

// Verify builds a compliance report. The report is compliant only when no
// violation has been recorded since the last Reset.
func (g *Guard) Verify() ComplianceReport {
	g.mu.Lock()
	sources := append([]StateSource(nil), g.sources...)
	violations := append([]Violation(nil), g.violations...)
	now := g.clock.Now()
	g.mu.Unlock()

	var counts Counts
	for _, src := range sources {
		counts = counts.Add(src.ComplianceCounts())
	}

	return ComplianceReport{
		Compliant:   len(violations) == 0,
		Violations:  violations,
		Counts:      counts,
		GeneratedAt: now,
	}
}

// ProfileCounts is a StateSource over locally held profiles and mixes.
func ProfileCounts(profiles func() []content.Profile, mixes func() []content.CustomMix) StateSource {
	return CountsFunc(func() Counts {
		var c Counts
		if profiles != nil {
			c.Profiles = len(profiles())
		}
		if mixes != nil {
			c.CustomMixes = len(mixes())
		}
		return c
	})
}

func normalizeField(f string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', '.', ' ':
			return -1
		}
		return r
	}, strings.ToLower(f))
}

var _ Checker = (*Guard)(nil)
