// Copyright 2026 QuizForge. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package service exposes the provider operations to the application with
// caching, fallback, retry and privacy gating applied.
package service

import (
	"context"
	"math/rand/v2"
	"strconv"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quizforge/offline-kit/pkg/cache"
	"github.com/quizforge/offline-kit/pkg/config"
	"github.com/quizforge/offline-kit/pkg/connectivity"
	"github.com/quizforge/offline-kit/pkg/content"
	kiterrors "github.com/quizforge/offline-kit/pkg/errors"
	"github.com/quizforge/offline-kit/pkg/fallback"
	"github.com/quizforge/offline-kit/pkg/observability"
	"github.com/quizforge/offline-kit/pkg/privacy"
	"github.com/quizforge/offline-kit/pkg/retry"
)

// Deps are the collaborators of a ContentService. Only Provider is required.
type Deps struct {
	Provider content.Provider
	Config   *config.Config
	Clock    clockwork.Clock
	Logger   *zap.Logger
	Metrics  *observability.Collector
	// Rand fixes question sampling for the broadened fallback.
	Rand *rand.Rand
	// OnDropped is called for every queued write given up on.
	OnDropped func(retry.FailedOperation, error)
}

// ContentService is the composition root of the resilience layer.
type ContentService struct {
	provider  content.Provider
	cfg       config.Config
	clock     clockwork.Clock
	logger    *zap.Logger
	cache     *cache.Store
	queue     *retry.Queue
	guard     *privacy.Guard
	monitor   *connectivity.Monitor
	orch      *fallback.Orchestrator
	network   map[string]bool
	onDropped func(retry.FailedOperation, error)
	dropped   atomic.Int64
}

// New wires the cache, retry queue, privacy guard, connectivity monitor and
// fallback orchestrator around d.Provider.
func New(d Deps) (*ContentService, error) {
	if d.Provider == nil {
		return nil, kiterrors.ConfigError("content provider is required", nil)
	}
	cfg := d.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	clock := d.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := observability.OrNop(d.Logger)
	metrics := d.Metrics
	if metrics == nil {
		metrics = observability.NewCollector(cfg.Global.MetricsNamespace)
	}

	s := &ContentService{
		provider:  d.Provider,
		cfg:       *cfg,
		clock:     clock,
		logger:    logger.Named("service"),
		network:   make(map[string]bool),
		onDropped: d.OnDropped,
	}
	for _, op := range cfg.Privacy.NetworkOperations {
		s.network[op] = true
	}

	s.cache = cache.New(cfg.Cache.Capacity,
		cache.WithClock(clock),
		cache.WithLogger(logger),
		cache.WithMetrics(metrics),
		cache.WithSweepInterval(cfg.Cache.SweepInterval),
	)

	s.queue = retry.New(s,
		retry.WithClock(clock),
		retry.WithLogger(logger),
		retry.WithMetrics(metrics),
		retry.WithMaxRetries(cfg.Retry.MaxRetries),
		retry.WithFlushInterval(cfg.Retry.FlushInterval),
		retry.WithConcurrency(cfg.Retry.Concurrency),
		retry.WithOnDropped(s.handleDropped),
	)

	guardOpts := []privacy.Option{
		privacy.WithClock(clock),
		privacy.WithLogger(logger),
		privacy.WithMetrics(metrics),
		privacy.WithPersonalFields(cfg.Privacy.PersonalFields...),
		privacy.WithStateSource(privacy.CountsFunc(func() privacy.Counts {
			return privacy.Counts{CachedEntries: s.cache.Len(), PendingMutations: s.queue.Size()}
		})),
		privacy.WithStateSource(privacy.ProfileCounts(s.localProfiles, s.localMixes)),
	}
	if len(cfg.Privacy.AllowedOperations) > 0 {
		guardOpts = append(guardOpts, privacy.WithAllowedOperations(
			privacy.NarrowAllowList(cfg.Privacy.AllowedOperations)...))
	}
	s.guard = privacy.NewGuard(guardOpts...)

	s.monitor = connectivity.NewMonitor(clock, logger)
	s.monitor.SetWindow(cfg.Fallback.ReportWindow)
	s.monitor.OnOnline(s.queue.NotifyOnline)

	b := cfg.Fallback.Breaker
	orchOpts := []fallback.Option{
		fallback.WithLogger(logger),
		fallback.WithMetrics(metrics),
		fallback.WithPrivacy(s.guard),
		fallback.WithConnectivity(s.monitor),
		fallback.WithProviderTimeout(cfg.Fallback.ProviderTimeout),
		fallback.WithMaxRetries(cfg.Retry.MaxRetries),
		fallback.WithBreaker(fallback.BreakerSettings{
			Name:             "provider",
			MaxRequests:      b.MaxRequests,
			Interval:         b.Interval,
			Timeout:          b.Timeout,
			FailureThreshold: b.FailureThreshold,
			MinRequests:      b.MinRequests,
		}),
	}
	if d.Rand != nil {
		orchOpts = append(orchOpts, fallback.WithRand(d.Rand))
	}
	s.orch = fallback.New(s.cache, s.queue, orchOpts...)

	return s, nil
}

// Cache returns the cache store.
func (s *ContentService) Cache() *cache.Store { return s.cache }

// Queue returns the retry queue.
func (s *ContentService) Queue() *retry.Queue { return s.queue }

// Guard returns the privacy guard.
func (s *ContentService) Guard() *privacy.Guard { return s.guard }

// Monitor returns the connectivity monitor.
func (s *ContentService) Monitor() *connectivity.Monitor { return s.monitor }

// Orchestrator returns the fallback orchestrator.
func (s *ContentService) Orchestrator() *fallback.Orchestrator { return s.orch }

// Dropped returns how many queued writes were given up on.
func (s *ContentService) Dropped() int64 { return s.dropped.Load() }

// Verify returns the privacy compliance report.
func (s *ContentService) Verify() privacy.ComplianceReport {
	return s.guard.Verify()
}

// Run drives the background loops until ctx is done: the cache sweep, the
// retry flush and, when Fallback.CheckInterval is set, a periodic
// reachability check against the provider.
func (s *ContentService) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.cache.Run(ctx)
		return nil
	})
	g.Go(func() error {
		s.queue.Run(ctx)
		return nil
	})
	if d := s.cfg.Fallback.CheckInterval; d > 0 {
		g.Go(func() error {
			s.monitor.Poll(ctx, d, s.checkProvider)
			return nil
		})
	}
	return g.Wait()
}

// checkProvider asks the provider for the subject list. Only transient
// failures count as unreachable.
func (s *ContentService) checkProvider(ctx context.Context) error {
	if d := s.cfg.Fallback.ProviderTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	_, err := s.provider.GetSubjects(ctx)
	if perr := fallback.ClassifyError(err); perr != nil && !perr.Transient {
		return nil
	}
	return err
}

func (s *ContentService) handleDropped(fo retry.FailedOperation, err error) {
	s.dropped.Add(1)
	if s.onDropped != nil {
		s.onDropped(fo, err)
	}
}

// Cache keys

func subjectsKey() string {
	return cache.NewKey(content.OpGetSubjects).String()
}

func profilesKey() string {
	return cache.NewKey(content.OpGetProfiles).String()
}

func mixesKey() string {
	return cache.NewKey(content.OpGetCustomMixes).String()
}

// questionsKey renders q. The broad form of any query (subject only, every
// other field "*") is questionsKey(q.Broaden()).
func questionsKey(q content.QuestionQuery) string {
	k := cache.NewKey(content.OpGetQuestions).
		With("subject", q.Subject).
		With("key_stage", string(q.KeyStage)).
		With("difficulty", "").
		With("count", "")
	if q.Difficulty != nil {
		k = k.With("difficulty", q.Difficulty.String())
	}
	if q.Count > 0 {
		k = k.With("count", strconv.Itoa(q.Count))
	}
	return k.String()
}
