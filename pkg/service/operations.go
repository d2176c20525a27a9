// Copyright 2026 QuizForge. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quizforge/offline-kit/pkg/cache"
	"github.com/quizforge/offline-kit/pkg/content"
	kiterrors "github.com/quizforge/offline-kit/pkg/errors"
	"github.com/quizforge/offline-kit/pkg/fallback"
	"github.com/quizforge/offline-kit/pkg/retry"
)

// GetSubjects returns the subject list. It falls back to the cached list and
// then to the built-in subjects.
func (s *ContentService) GetSubjects(ctx context.Context) ([]content.Subject, fallback.Source, error) {
	return fallback.Read(ctx, s.orch, fallback.ReadRequest[[]content.Subject]{
		Operation: content.OpGetSubjects,
		Key:       subjectsKey(),
		TTL:       s.cfg.Fallback.TTL.Subjects,
		Fetch: func(ctx context.Context, _ map[string]any) ([]content.Subject, error) {
			return s.provider.GetSubjects(ctx)
		},
		Default: func() ([]content.Subject, bool) {
			return content.DefaultSubjects(), true
		},
		Network: s.network[content.OpGetSubjects],
	})
}

// GetQuestions returns questions for q. When the provider fails it serves
// the cached answer to the same query, then a subject-wide cached set
// filtered to q, then built-in sample questions.
func (s *ContentService) GetQuestions(ctx context.Context, q content.QuestionQuery) ([]content.Question, fallback.Source, error) {
	q, err := normalizeQuery(q)
	if err != nil {
		return nil, fallback.SourceNone, err
	}

	return fallback.Read(ctx, s.orch, fallback.ReadRequest[[]content.Question]{
		Operation: content.OpGetQuestions,
		Key:       questionsKey(q),
		TTL:       s.cfg.Fallback.TTL.Questions,
		Fetch: func(ctx context.Context, _ map[string]any) ([]content.Question, error) {
			return s.provider.GetQuestions(ctx, q)
		},
		Broaden: &fallback.Broadening[[]content.Question]{
			Key: questionsKey(q.Broaden()),
			Narrow: func(all []content.Question, rng *rand.Rand) ([]content.Question, bool) {
				selected := q.Select(all, rng)
				return selected, len(selected) > 0
			},
		},
		Default: func() ([]content.Question, bool) {
			questions := content.DefaultQuestions(q)
			if q.Count > 0 && len(questions) > q.Count {
				questions = questions[:q.Count]
			}
			return questions, len(questions) > 0
		},
		Network: s.network[content.OpGetQuestions],
		Payload: queryPayload(q),
	})
}

func normalizeQuery(q content.QuestionQuery) (content.QuestionQuery, error) {
	q.Subject = strings.TrimSpace(q.Subject)
	if q.Subject == "" {
		return q, kiterrors.ValidationError("subject is required", nil)
	}
	ks, err := content.ParseKeyStage(string(q.KeyStage))
	if err != nil {
		return q, kiterrors.ValidationError("invalid key stage", err)
	}
	q.KeyStage = ks
	if d := q.Difficulty; d != nil && d.Min > d.Max {
		return q, kiterrors.ValidationError(fmt.Sprintf("difficulty range %s is inverted", d), nil)
	}
	return q, nil
}

func queryPayload(q content.QuestionQuery) map[string]any {
	payload := map[string]any{"subject": q.Subject}
	if q.KeyStage != "" {
		payload["keyStage"] = string(q.KeyStage)
	}
	if q.Difficulty != nil {
		payload["difficulty"] = q.Difficulty.String()
	}
	if q.Count > 0 {
		payload["count"] = q.Count
	}
	return payload
}

// GetProfiles returns the learner profiles. There is no built-in default:
// with neither provider nor cache available the call fails with NO_DATA.
func (s *ContentService) GetProfiles(ctx context.Context) ([]content.Profile, fallback.Source, error) {
	return fallback.Read(ctx, s.orch, fallback.ReadRequest[[]content.Profile]{
		Operation: content.OpGetProfiles,
		Key:       profilesKey(),
		TTL:       s.cfg.Fallback.TTL.Profiles,
		Fetch: func(ctx context.Context, _ map[string]any) ([]content.Profile, error) {
			return s.provider.GetProfiles(ctx)
		},
		Network: s.network[content.OpGetProfiles],
	})
}

// GetCustomMixes returns saved custom mixes.
func (s *ContentService) GetCustomMixes(ctx context.Context) ([]content.CustomMix, fallback.Source, error) {
	return fallback.Read(ctx, s.orch, fallback.ReadRequest[[]content.CustomMix]{
		Operation: content.OpGetCustomMixes,
		Key:       mixesKey(),
		TTL:       s.cfg.Fallback.TTL.CustomMixes,
		Fetch: func(ctx context.Context, _ map[string]any) ([]content.CustomMix, error) {
			return s.provider.GetCustomMixes(ctx)
		},
		Network: s.network[content.OpGetCustomMixes],
	})
}

// UpdateProgress records a quiz result. A provider failure queues the update
// and still returns nil.
func (s *ContentService) UpdateProgress(ctx context.Context, profileID string, result content.QuizResult) error {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return kiterrors.ValidationError("profile id is required", nil)
	}

	return s.orch.Write(ctx, fallback.WriteRequest{
		Operation: content.OpUpdateProgress,
		Mutation:  retry.ProgressUpdate{ProfileID: profileID, Result: result},
		Apply: func(ctx context.Context, _ map[string]any) error {
			return s.provider.UpdateProgress(ctx, profileID, result)
		},
		OnSuccess: func() { s.mirrorProgress(profileID, result) },
		Network:   s.network[content.OpUpdateProgress],
	})
}

// CreateCustomMix saves a new mix. If the provider is unreachable the
// request is queued and a pending local copy is returned.
func (s *ContentService) CreateCustomMix(ctx context.Context, req content.CustomMixRequest) (content.CustomMix, error) {
	if err := req.Validate(); err != nil {
		return content.CustomMix{}, kiterrors.ValidationError("invalid custom mix", err)
	}

	var created content.CustomMix
	var applied bool
	err := s.orch.Write(ctx, fallback.WriteRequest{
		Operation: content.OpCreateCustomMix,
		Mutation:  retry.CustomMixCreate{Request: req},
		Apply: func(ctx context.Context, _ map[string]any) error {
			mix, err := s.provider.CreateCustomMix(ctx, req)
			if err != nil {
				return err
			}
			created = mix
			return nil
		},
		OnSuccess: func() {
			applied = true
			s.mirrorMix(created)
		},
		Network: s.network[content.OpCreateCustomMix],
	})
	if err != nil {
		return content.CustomMix{}, err
	}
	if applied {
		return created, nil
	}

	return content.CustomMix{
		ID:            uuid.NewString(),
		ProfileID:     req.ProfileID,
		Name:          req.Name,
		Subjects:      append([]string(nil), req.Subjects...),
		KeyStage:      req.KeyStage,
		Difficulty:    req.Difficulty,
		QuestionCount: req.QuestionCount,
		CreatedAt:     s.clock.Now().UTC(),
		Pending:       true,
	}, nil
}

// Execute replays a queued write. It implements retry.Executor.
func (s *ContentService) Execute(ctx context.Context, m retry.Mutation) error {
	if d := s.cfg.Fallback.ProviderTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	var err error
	switch m := m.(type) {
	case retry.ProgressUpdate:
		if err = s.provider.UpdateProgress(ctx, m.ProfileID, m.Result); err == nil {
			s.mirrorProgress(m.ProfileID, m.Result)
		}
	case retry.CustomMixCreate:
		var mix content.CustomMix
		if mix, err = s.provider.CreateCustomMix(ctx, m.Request); err == nil {
			s.mirrorMix(mix)
		}
	default:
		return kiterrors.ValidationError(fmt.Sprintf("unknown mutation %T", m), nil)
	}

	if perr := fallback.ClassifyError(err); perr == nil {
		s.monitor.RecordSuccess()
	} else if perr.Transient {
		s.monitor.RecordFailure(perr.Message)
	}
	return err
}

// mirrorProgress folds result into the cached profile list.
func (s *ContentService) mirrorProgress(profileID string, result content.QuizResult) {
	profiles, ok := cache.PeekAs[[]content.Profile](s.cache, profilesKey())
	if !ok {
		return
	}
	updated := make([]content.Profile, len(profiles))
	copy(updated, profiles)
	for i := range updated {
		if updated[i].ID == profileID {
			updated[i] = updated[i].Apply(result)
			s.cache.Set(profilesKey(), updated, s.cfg.Fallback.TTL.Profiles)
			return
		}
	}
	s.logger.Debug("progress for uncached profile", zap.String("profile_id", profileID))
}

// mirrorMix appends mix to the cached mix list.
func (s *ContentService) mirrorMix(mix content.CustomMix) {
	mixes, ok := cache.PeekAs[[]content.CustomMix](s.cache, mixesKey())
	if !ok {
		return
	}
	updated := make([]content.CustomMix, 0, len(mixes)+1)
	updated = append(updated, mixes...)
	updated = append(updated, mix)
	s.cache.Set(mixesKey(), updated, s.cfg.Fallback.TTL.CustomMixes)
}

func (s *ContentService) localProfiles() []content.Profile {
	profiles, _ := cache.PeekAs[[]content.Profile](s.cache, profilesKey())
	return profiles
}

func (s *ContentService) localMixes() []content.CustomMix {
	mixes, _ := cache.PeekAs[[]content.CustomMix](s.cache, mixesKey())
	return mixes
}

// PrefetchResult reports what Prefetch stored.
type PrefetchResult struct {
	Subjects  int `json:"subjects" yaml:"subjects"`
	Questions int `json:"questions" yaml:"questions"`
	Profiles  int `json:"profiles" yaml:"profiles"`
	Mixes     int `json:"mixes" yaml:"mixes"`
	Failed    int `json:"failed" yaml:"failed"`
}

// Prefetch warms the cache for offline use: the subject list, every
// subject's full question set (the entries broadened reads fall back to),
// profiles and mixes. Individual failures are counted, not returned.
func (s *ContentService) Prefetch(ctx context.Context) (PrefetchResult, error) {
	var res PrefetchResult

	subjects, _, err := s.GetSubjects(ctx)
	if err != nil {
		return res, err
	}
	res.Subjects = len(subjects)

	counts := make([]int, len(subjects))
	failed := make([]bool, len(subjects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, subject := range subjects {
		g.Go(func() error {
			questions, src, err := s.GetQuestions(gctx, content.QuestionQuery{Subject: subject.Name})
			if err != nil || src != fallback.SourceProvider {
				failed[i] = true
				return nil
			}
			counts[i] = len(questions)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	for i := range subjects {
		res.Questions += counts[i]
		if failed[i] {
			res.Failed++
		}
	}

	if profiles, src, err := s.GetProfiles(ctx); err == nil && src == fallback.SourceProvider {
		res.Profiles = len(profiles)
	} else {
		res.Failed++
	}
	if mixes, src, err := s.GetCustomMixes(ctx); err == nil && src == fallback.SourceProvider {
		res.Mixes = len(mixes)
	} else {
		res.Failed++
	}

	s.logger.Info("prefetch complete",
		zap.Int("subjects", res.Subjects),
		zap.Int("questions", res.Questions),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}
