// Copyright 2026 QuizForge. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package content

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrOffline is returned by MemoryProvider while it is switched offline.
var ErrOffline = errors.New("provider unreachable: network is offline")

// MemoryProvider is an in-process Provider used by the CLI simulator and by
// tests. It can be switched offline to exercise the fallback paths.
type MemoryProvider struct {
	mu        sync.Mutex
	online    bool
	failures  int
	subjects  []Subject
	questions []Question
	profiles  map[string]Profile
	mixes     []CustomMix
	calls     map[string]int
	rng       *rand.Rand
	now       func() time.Time
}

// NewMemoryProvider creates an online provider seeded with the given data.
func NewMemoryProvider(subjects []Subject, questions []Question, profiles []Profile) *MemoryProvider {
	p := &MemoryProvider{
		online:    true,
		subjects:  append([]Subject(nil), subjects...),
		questions: append([]Question(nil), questions...),
		profiles:  make(map[string]Profile, len(profiles)),
		calls:     make(map[string]int),
		now:       time.Now,
	}
	for _, prof := range profiles {
		p.profiles[prof.ID] = prof
	}
	return p
}

// SetOnline switches the provider between reachable and unreachable.
func (p *MemoryProvider) SetOnline(online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online = online
}

// FailNext makes the next n calls fail even while online.
func (p *MemoryProvider) FailNext(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = n
}

// SetRand fixes the sampling source for deterministic results.
func (p *MemoryProvider) SetRand(rng *rand.Rand) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rng = rng
}

// Calls returns how many times op was invoked, failures included.
func (p *MemoryProvider) Calls(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

// enter records the call and reports whether it must fail. Caller holds mu.
func (p *MemoryProvider) enter(ctx context.Context, op string) error {
	p.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.online {
		return fmt.Errorf("%s: %w", op, ErrOffline)
	}
	if p.failures > 0 {
		p.failures--
		return fmt.Errorf("%s: 503 service unavailable", op)
	}
	return nil
}

// GetSubjects implements Provider.
func (p *MemoryProvider) GetSubjects(ctx context.Context) ([]Subject, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, OpGetSubjects); err != nil {
		return nil, err
	}
	return append([]Subject(nil), p.subjects...), nil
}

// GetQuestions implements Provider.
func (p *MemoryProvider) GetQuestions(ctx context.Context, q QuestionQuery) ([]Question, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, OpGetQuestions); err != nil {
		return nil, err
	}
	return q.Select(p.questions, p.rng), nil
}

// GetProfiles implements Provider.
func (p *MemoryProvider) GetProfiles(ctx context.Context) ([]Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, OpGetProfiles); err != nil {
		return nil, err
	}
	out := make([]Profile, 0, len(p.profiles))
	for _, prof := range p.profiles {
		out = append(out, prof)
	}
	slices.SortFunc(out, func(a, b Profile) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// UpdateProgress implements Provider.
func (p *MemoryProvider) UpdateProgress(ctx context.Context, profileID string, result QuizResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, OpUpdateProgress); err != nil {
		return err
	}
	prof, ok := p.profiles[profileID]
	if !ok {
		return fmt.Errorf("profile %q not found", profileID)
	}
	p.profiles[profileID] = prof.Apply(result)
	return nil
}

// GetCustomMixes implements Provider.
func (p *MemoryProvider) GetCustomMixes(ctx context.Context) ([]CustomMix, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, OpGetCustomMixes); err != nil {
		return nil, err
	}
	return append([]CustomMix(nil), p.mixes...), nil
}

// CreateCustomMix implements Provider.
func (p *MemoryProvider) CreateCustomMix(ctx context.Context, req CustomMixRequest) (CustomMix, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, OpCreateCustomMix); err != nil {
		return CustomMix{}, err
	}
	if err := req.Validate(); err != nil {
		return CustomMix{}, err
	}
	mix := CustomMix{
		ID:            uuid.NewString(),
		ProfileID:     req.ProfileID,
		Name:          req.Name,
		Subjects:      append([]string(nil), req.Subjects...),
		KeyStage:      req.KeyStage,
		Difficulty:    req.Difficulty,
		QuestionCount: req.QuestionCount,
		CreatedAt:     p.now().UTC(),
	}
	p.mixes = append(p.mixes, mix)
	return mix, nil
}
