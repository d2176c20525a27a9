// Copyright 2026 QuizForge. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quizforge/offline-kit/pkg/cache"
	"github.com/quizforge/offline-kit/pkg/cache/sqlite"
	"github.com/quizforge/offline-kit/pkg/connectivity"
	"github.com/quizforge/offline-kit/pkg/content"
	"github.com/quizforge/offline-kit/pkg/fallback"
	"github.com/quizforge/offline-kit/pkg/observability"
	"github.com/quizforge/offline-kit/pkg/privacy"
	"github.com/quizforge/offline-kit/pkg/retry"
	"github.com/quizforge/offline-kit/pkg/service"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run an offline session against an in-memory provider",
	Long: `Simulate warms the cache while online, advances virtual time, takes the
provider offline, serves reads and accepts writes from the fallback chain,
then reconnects and replays the retry queue.

The resulting cache image can be written with --snapshot and examined with
"offline-kit cache inspect".`,
	RunE: runSimulate,
}

type simulateFlags struct {
	advance  time.Duration
	snapshot string
	seed     uint64
}

var simulateOpts simulateFlags

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().DurationVar(&simulateOpts.advance, "advance", 13*time.Hour, "Virtual time spent offline")
	simulateCmd.Flags().StringVar(&simulateOpts.snapshot, "snapshot", "", "Write the cache image here (default: cache.snapshot_path from config)")
	simulateCmd.Flags().Uint64Var(&simulateOpts.seed, "seed", 1, "Seed for question sampling")
}

type readOutcome struct {
	Operation string          `yaml:"operation" json:"operation"`
	Query     string          `yaml:"query,omitempty" json:"query,omitempty"`
	Source    fallback.Source `yaml:"source" json:"source"`
	Items     int             `yaml:"items" json:"items"`
	Error     string          `yaml:"error,omitempty" json:"error,omitempty"`
}

type writeOutcome struct {
	Operation string `yaml:"operation" json:"operation"`
	Pending   bool   `yaml:"pending" json:"pending"`
	Error     string `yaml:"error,omitempty" json:"error,omitempty"`
}

type simulateReport struct {
	Prefetch     service.PrefetchResult   `yaml:"prefetch" json:"prefetch"`
	Reads        []readOutcome            `yaml:"reads" json:"reads"`
	Writes       []writeOutcome           `yaml:"writes" json:"writes"`
	Replay       retry.FlushResult        `yaml:"replay" json:"replay"`
	Cache        cache.Stats              `yaml:"cache" json:"cache"`
	Fallback     *fallback.Metrics        `yaml:"fallback" json:"fallback"`
	Connectivity *connectivity.Report     `yaml:"connectivity" json:"connectivity"`
	Compliance   privacy.ComplianceReport `yaml:"compliance" json:"compliance"`
	Snapshot     string                   `yaml:"snapshot,omitempty" json:"snapshot,omitempty"`
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	clock := clockwork.NewFakeClockAt(time.Now().UTC().Truncate(time.Second))
	provider := content.NewMemoryProvider(content.DefaultSubjects(), seedQuestions(), seedProfiles())
	provider.SetRand(rand.New(rand.NewPCG(simulateOpts.seed, simulateOpts.seed+1)))

	svc, err := service.New(service.Deps{
		Provider: provider,
		Config:   cfg,
		Clock:    clock,
		Logger:   logger,
		Metrics:  observability.NewCollector(cfg.Global.MetricsNamespace),
		Rand:     rand.New(rand.NewPCG(simulateOpts.seed, simulateOpts.seed)),
		OnDropped: func(fo retry.FailedOperation, err error) {
			logger.Warn("simulated write lost", zap.String("operation", fo.OperationName), zap.Error(err))
		},
	})
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	var report simulateReport
	if report.Prefetch, err = svc.Prefetch(ctx); err != nil {
		return err
	}

	clock.Advance(simulateOpts.advance)
	provider.SetOnline(false)
	logger.Info("provider offline", zap.Duration("advanced", simulateOpts.advance))

	report.Reads = offlineReads(ctx, svc)
	report.Writes = offlineWrites(ctx, svc, clock)

	provider.SetOnline(true)
	if _, _, err := svc.GetSubjects(ctx); err != nil {
		return err
	}
	report.Replay = svc.Queue().Flush(ctx)

	path := simulateOpts.snapshot
	if path == "" {
		path = cfg.Cache.SnapshotPath
	}
	if path != "" {
		if err := saveSnapshot(ctx, svc, path); err != nil {
			return err
		}
		report.Snapshot = path
	}

	report.Cache = svc.Cache().Stats()
	report.Fallback = svc.Orchestrator().Metrics()
	report.Connectivity = svc.Monitor().Report()
	report.Compliance = svc.Verify()
	return render(cmd, report)
}

func offlineReads(ctx context.Context, svc *service.ContentService) []readOutcome {
	var out []readOutcome
	add := func(op, query string, n int, src fallback.Source, err error) {
		r := readOutcome{Operation: op, Query: query, Source: src, Items: n}
		if err != nil {
			r.Error = err.Error()
		}
		out = append(out, r)
	}

	subjects, src, err := svc.GetSubjects(ctx)
	add(content.OpGetSubjects, "", len(subjects), src, err)

	queries := []content.QuestionQuery{
		{Subject: "Mathematics"},
		{Subject: "Mathematics", KeyStage: content.KS2, Difficulty: &content.DifficultyRange{Min: 2, Max: 3}, Count: 5},
		{Subject: "History", KeyStage: content.KS3, Count: 5},
	}
	for _, q := range queries {
		questions, src, err := svc.GetQuestions(ctx, q)
		add(content.OpGetQuestions, describeQuery(q), len(questions), src, err)
	}

	profiles, src, err := svc.GetProfiles(ctx)
	add(content.OpGetProfiles, "", len(profiles), src, err)
	mixes, src, err := svc.GetCustomMixes(ctx)
	add(content.OpGetCustomMixes, "", len(mixes), src, err)
	return out
}

func offlineWrites(ctx context.Context, svc *service.ContentService, clock clockwork.Clock) []writeOutcome {
	var out []writeOutcome

	err := svc.UpdateProgress(ctx, "learner-1", content.QuizResult{
		Subject: "Mathematics", Score: 4, Total: 5, CompletedAt: clock.Now(),
	})
	w := writeOutcome{Operation: content.OpUpdateProgress, Pending: err == nil && svc.Queue().Size() > 0}
	if err != nil {
		w.Error = err.Error()
	}
	out = append(out, w)

	mix, err := svc.CreateCustomMix(ctx, content.CustomMixRequest{
		ProfileID:     "learner-1",
		Name:          "Weekend revision",
		Subjects:      []string{"Mathematics", "Science"},
		KeyStage:      content.KS2,
		QuestionCount: 10,
	})
	w = writeOutcome{Operation: content.OpCreateCustomMix, Pending: mix.Pending}
	if err != nil {
		w.Error = err.Error()
	}
	return append(out, w)
}

func describeQuery(q content.QuestionQuery) string {
	s := q.Subject
	if q.KeyStage != "" {
		s += " " + string(q.KeyStage)
	}
	if q.Difficulty != nil {
		s += " difficulty " + q.Difficulty.String()
	}
	if q.Count > 0 {
		s += fmt.Sprintf(" x%d", q.Count)
	}
	return s
}

func saveSnapshot(ctx context.Context, svc *service.ContentService, path string) error {
	store, err := sqlite.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := svc.Cache().SaveTo(ctx, store); err != nil {
		return err
	}
	return svc.Guard().CheckStoragePath(path)
}

// seedQuestions builds a question bank covering every built-in subject, key
// stage and difficulty.
func seedQuestions() []content.Question {
	stages := []content.KeyStage{content.KS1, content.KS2, content.KS3, content.KS4}
	var out []content.Question
	for _, subject := range content.DefaultSubjects() {
		for _, ks := range stages {
			for d := 1; d <= 5; d++ {
				out = append(out, content.Question{
					ID:         fmt.Sprintf("%s-%s-%d", subject.ID, ks, d),
					Subject:    subject.Name,
					KeyStage:   ks,
					Difficulty: d,
					Text:       fmt.Sprintf("%s %s question at difficulty %d", subject.Name, ks, d),
					Options:    []string{"A", "B", "C", "D"},
					Answer:     d % 4,
				})
			}
		}
	}
	return out
}

func seedProfiles() []content.Profile {
	return []content.Profile{
		{ID: "learner-1", Name: "Learner One", Avatar: "owl"},
		{ID: "learner-2", Name: "Learner Two", Avatar: "fox"},
	}
}
