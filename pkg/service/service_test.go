// Copyright 2026 QuizForge. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizforge/offline-kit/pkg/config"
	"github.com/quizforge/offline-kit/pkg/content"
	kiterrors "github.com/quizforge/offline-kit/pkg/errors"
	"github.com/quizforge/offline-kit/pkg/fallback"
	"github.com/quizforge/offline-kit/pkg/observability"
	"github.com/quizforge/offline-kit/pkg/privacy"
	"github.com/quizforge/offline-kit/pkg/retry"
)

type fixture struct {
	clock    *clockwork.FakeClock
	provider *content.MemoryProvider
	svc      *ContentService
	dropped  []retry.FailedOperation
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	// keep the breaker closed; these tests toggle the provider freely
	cfg.Fallback.Breaker.FailureThreshold = 0
	return cfg
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}

	questions := make([]content.Question, 0, 20)
	for i := range 20 {
		ks := content.KS1
		if i%2 == 1 {
			ks = content.KS2
		}
		questions = append(questions, content.Question{
			ID:         fmt.Sprintf("maths-%d", i),
			Subject:    "Mathematics",
			KeyStage:   ks,
			Difficulty: i%5 + 1,
			Text:       "q",
			Options:    []string{"a", "b"},
		})
	}
	provider := content.NewMemoryProvider(
		[]content.Subject{{ID: "mathematics", Name: "Mathematics"}},
		questions,
		[]content.Profile{{ID: "p1", Name: "Ada"}, {ID: "p2", Name: "Tom"}},
	)
	provider.SetRand(rand.New(rand.NewPCG(3, 4)))

	f := &fixture{
		clock:    clockwork.NewFakeClockAt(time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)),
		provider: provider,
	}
	svc, err := New(Deps{
		Provider: provider,
		Config:   cfg,
		Clock:    f.clock,
		Metrics:  observability.NewCollector("test"),
		Rand:     rand.New(rand.NewPCG(1, 2)),
		OnDropped: func(fo retry.FailedOperation, _ error) {
			f.dropped = append(f.dropped, fo)
		},
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func TestNewRequiresProvider(t *testing.T) {
	_, err := New(Deps{})
	require.Error(t, err)
	assert.True(t, kiterrors.IsKind(err, kiterrors.KindConfig))
}

func TestGetSubjectsFallsBackToDefaults(t *testing.T) {
	f := newFixture(t, nil)
	f.provider.SetOnline(false)

	subjects, src, err := f.svc.GetSubjects(context.Background())

	require.NoError(t, err)
	assert.Equal(t, fallback.SourceDefault, src)
	assert.Equal(t, content.DefaultSubjects(), subjects)
	assert.False(t, f.svc.Monitor().Online())
}

func TestGetSubjectsServesCacheWhenOffline(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, src, err := f.svc.GetSubjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, fallback.SourceProvider, src)

	f.provider.SetOnline(false)
	subjects, src, err := f.svc.GetSubjects(ctx)

	require.NoError(t, err)
	assert.Equal(t, fallback.SourceCache, src)
	require.Len(t, subjects, 1)
	assert.Equal(t, "Mathematics", subjects[0].Name)
}

func TestGetQuestionsStaleAfterExpiry(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	q := content.QuestionQuery{Subject: "Mathematics", KeyStage: content.KS1}

	first, src, err := f.svc.GetQuestions(ctx, q)
	require.NoError(t, err)
	require.Equal(t, fallback.SourceProvider, src)
	require.Len(t, first, 10)

	f.clock.Advance(13 * time.Hour)
	f.provider.SetOnline(false)

	got, src, err := f.svc.GetQuestions(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, fallback.SourceCache, src, "expired data is still served while offline")
	assert.Equal(t, first, got)
}

func TestGetQuestionsBroadenedAfterPrefetch(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.Prefetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, PrefetchResult{Subjects: 1, Questions: 20, Profiles: 2}, res)

	f.provider.SetOnline(false)
	difficulty := &content.DifficultyRange{Min: 2, Max: 3}
	got, src, err := f.svc.GetQuestions(ctx, content.QuestionQuery{
		Subject:    "mathematics",
		KeyStage:   content.KS2,
		Difficulty: difficulty,
		Count:      3,
	})

	require.NoError(t, err)
	assert.Equal(t, fallback.SourceBroadened, src)
	require.Len(t, got, 3)
	for _, question := range got {
		assert.Equal(t, content.KS2, question.KeyStage)
		assert.True(t, difficulty.Contains(question.Difficulty))
	}
}

func TestGetQuestionsDefaultTruncatedToCount(t *testing.T) {
	f := newFixture(t, nil)
	f.provider.SetOnline(false)

	got, src, err := f.svc.GetQuestions(context.Background(), content.QuestionQuery{Subject: "English", Count: 1})

	require.NoError(t, err)
	assert.Equal(t, fallback.SourceDefault, src)
	require.Len(t, got, 1)
	assert.Equal(t, "English", got[0].Subject)
}

func TestGetQuestionsValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		q    content.QuestionQuery
	}{
		{"no subject", content.QuestionQuery{Subject: "  "}},
		{"bad key stage", content.QuestionQuery{Subject: "Science", KeyStage: "KS9"}},
		{"inverted difficulty", content.QuestionQuery{Subject: "Science", Difficulty: &content.DifficultyRange{Min: 4, Max: 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, src, err := f.svc.GetQuestions(ctx, tt.q)
			require.Error(t, err)
			assert.Equal(t, fallback.SourceNone, src)
			assert.True(t, kiterrors.IsKind(err, kiterrors.KindValidation))
		})
	}
	assert.Zero(t, f.provider.Calls(content.OpGetQuestions))
}

func TestGetProfilesWithoutDataFails(t *testing.T) {
	f := newFixture(t, nil)
	f.provider.SetOnline(false)

	_, src, err := f.svc.GetProfiles(context.Background())

	require.Error(t, err)
	assert.Equal(t, fallback.SourceNone, src)
	assert.ErrorIs(t, err, kiterrors.ErrNoData)
	assert.ErrorIs(t, err, content.ErrOffline)
}

func TestUpdateProgressQueuedWhileOfflineAndReplayed(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, _, err := f.svc.GetProfiles(ctx)
	require.NoError(t, err)

	f.provider.SetOnline(false)
	result := content.QuizResult{Subject: "Mathematics", Score: 7, Total: 10, CompletedAt: f.clock.Now()}
	require.NoError(t, f.svc.UpdateProgress(ctx, "p1", result), "offline writes look successful")

	pending := f.svc.Queue().Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, content.OpUpdateProgress, pending[0].OperationName)
	assert.Equal(t, retry.ProgressUpdate{ProfileID: "p1", Result: result}, pending[0].Payload)

	f.provider.SetOnline(true)
	res := f.svc.Queue().Flush(ctx)
	assert.Equal(t, retry.FlushResult{Attempted: 1, Succeeded: 1}, res)
	assert.Zero(t, f.svc.Queue().Size())
	assert.True(t, f.svc.Monitor().Online())

	// the replay refreshed the local mirror without a provider read
	reads := f.provider.Calls(content.OpGetProfiles)
	f.provider.SetOnline(false)
	profiles, src, err := f.svc.GetProfiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, fallback.SourceCache, src)
	assert.Equal(t, reads+1, f.provider.Calls(content.OpGetProfiles))
	require.Len(t, profiles, 2)
	assert.Equal(t, 7, profiles[0].Progress["Mathematics"].TotalScore)
	assert.Empty(t, profiles[1].Progress)
}

func TestUpdateProgressOnlineMirrors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, _, err := f.svc.GetProfiles(ctx)
	require.NoError(t, err)

	require.NoError(t, f.svc.UpdateProgress(ctx, "p2", content.QuizResult{Subject: "Science", Score: 3, Total: 5}))
	assert.Zero(t, f.svc.Queue().Size())

	profiles := f.svc.localProfiles()
	require.Len(t, profiles, 2)
	assert.Equal(t, 1, profiles[1].Progress["Science"].QuizzesTaken)
}

func TestUpdateProgressRequiresProfile(t *testing.T) {
	f := newFixture(t, nil)
	err := f.svc.UpdateProgress(context.Background(), "", content.QuizResult{})
	assert.True(t, kiterrors.IsKind(err, kiterrors.KindValidation))
	assert.Zero(t, f.svc.Queue().Size())
}

func TestQueuedWriteDroppedAfterMaxRetries(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.provider.SetOnline(false)

	require.NoError(t, f.svc.UpdateProgress(ctx, "p1", content.QuizResult{Subject: "Science"}))

	for range 3 {
		f.svc.Queue().Flush(ctx)
	}

	assert.Zero(t, f.svc.Queue().Size())
	assert.Equal(t, int64(1), f.svc.Dropped())
	require.Len(t, f.dropped, 1)
	assert.Equal(t, 3, f.dropped[0].RetryCount)
}

func TestCreateCustomMix(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	req := content.CustomMixRequest{
		ProfileID:     "p1",
		Name:          "Times tables",
		Subjects:      []string{"Mathematics"},
		QuestionCount: 10,
	}

	_, _, err := f.svc.GetCustomMixes(ctx)
	require.NoError(t, err)

	f.provider.SetOnline(false)
	local, err := f.svc.CreateCustomMix(ctx, req)
	require.NoError(t, err)
	assert.True(t, local.Pending)
	assert.NotEmpty(t, local.ID)
	assert.Equal(t, f.clock.Now(), local.CreatedAt)
	assert.Equal(t, 1, f.svc.Queue().Size())
	assert.Empty(t, f.svc.localMixes(), "pending mixes are not mirrored")

	f.provider.SetOnline(true)
	created, err := f.svc.CreateCustomMix(ctx, req)
	require.NoError(t, err)
	assert.False(t, created.Pending)
	assert.NotEqual(t, local.ID, created.ID)

	res := f.svc.Queue().Flush(ctx)
	assert.Equal(t, 1, res.Succeeded)

	mixes := f.svc.localMixes()
	require.Len(t, mixes, 2)
	for _, m := range mixes {
		assert.False(t, m.Pending)
		assert.Equal(t, "Times tables", m.Name)
	}
}

func TestCreateCustomMixValidation(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.CreateCustomMix(context.Background(), content.CustomMixRequest{Name: "empty"})
	assert.True(t, kiterrors.IsKind(err, kiterrors.KindValidation))
	assert.Zero(t, f.provider.Calls(content.OpCreateCustomMix))
}

func TestNetworkOperationRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Privacy.NetworkOperations = []string{content.OpGetProfiles, content.OpUpdateProgress}
	f := newFixture(t, cfg)
	ctx := context.Background()

	_, _, err := f.svc.GetProfiles(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, kiterrors.ErrPrivacy)

	err = f.svc.UpdateProgress(ctx, "p1", content.QuizResult{Subject: "Science"})
	assert.ErrorIs(t, err, kiterrors.ErrPrivacy)

	assert.Zero(t, f.provider.Calls(content.OpGetProfiles))
	assert.Zero(t, f.provider.Calls(content.OpUpdateProgress))
	assert.Zero(t, f.svc.Queue().Size())

	report := f.svc.Verify()
	assert.False(t, report.Compliant)
	assert.Equal(t, 2, report.BySeverity()[privacy.SeverityCritical])

	// local operations are unaffected
	_, src, err := f.svc.GetSubjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, fallback.SourceProvider, src)
}

func TestVerifyCounts(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Prefetch(ctx)
	require.NoError(t, err)

	f.provider.SetOnline(false)
	require.NoError(t, f.svc.UpdateProgress(ctx, "p1", content.QuizResult{Subject: "Mathematics"}))

	report := f.svc.Verify()
	assert.True(t, report.Compliant)
	assert.Equal(t, privacy.Counts{
		Profiles:         2,
		CustomMixes:      0,
		CachedEntries:    4,
		PendingMutations: 1,
	}, report.Counts)
}

func TestReconnectWakesQueue(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.provider.SetOnline(false)
	require.NoError(t, f.svc.UpdateProgress(ctx, "p1", content.QuizResult{Subject: "Science"}))
	require.False(t, f.svc.Monitor().Online())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.svc.Run(ctx)
	}()

	// a successful read flips the monitor online, which wakes the queue
	// without waiting for the flush tick
	f.provider.SetOnline(true)
	_, _, err := f.svc.GetSubjects(ctx)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return f.svc.Queue().Size() == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestRunChecksReachability(t *testing.T) {
	cfg := testConfig()
	cfg.Fallback.CheckInterval = 10 * time.Second
	f := newFixture(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.svc.Run(ctx)
	}()
	// sweep, flush and reachability tickers
	require.NoError(t, f.clock.BlockUntilContext(ctx, 3))

	f.provider.SetOnline(false)
	f.clock.Advance(10 * time.Second)
	assert.Eventually(t, func() bool { return !f.svc.Monitor().Online() }, time.Second, 5*time.Millisecond)

	require.NoError(t, f.svc.UpdateProgress(ctx, "p1", content.QuizResult{Subject: "Science"}))
	require.Equal(t, 1, f.svc.Queue().Size())

	// no app traffic: the periodic check alone notices the provider is back
	f.provider.SetOnline(true)
	f.clock.Advance(10 * time.Second)
	assert.Eventually(t, func() bool { return f.svc.Queue().Size() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, f.svc.Monitor().Online())

	cancel()
	<-done
}

func TestMonitorUsesReportWindow(t *testing.T) {
	cfg := testConfig()
	cfg.Fallback.ReportWindow = time.Hour
	f := newFixture(t, cfg)

	f.clock.Advance(3 * time.Hour)
	report := f.svc.Monitor().Report()
	assert.Equal(t, f.clock.Now().Add(-time.Hour), report.PeriodStart)
}
