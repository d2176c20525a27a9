// Copyright 2026 QuizForge. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package fallback serves reads from the best available tier and turns
// failed writes into queued retries.
//
// A read tries, in order: the provider, the exact cache entry (even if
// expired), a broader cache entry narrowed to the request, and a built-in
// default. A write that fails transiently is queued and reported to the
// caller as a success.
package fallback

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/quizforge/offline-kit/pkg/cache"
	kiterrors "github.com/quizforge/offline-kit/pkg/errors"
	"github.com/quizforge/offline-kit/pkg/observability"
	"github.com/quizforge/offline-kit/pkg/privacy"
	"github.com/quizforge/offline-kit/pkg/retry"
)

// Source names the tier that answered a read.
type Source string

const (
	SourceNone      Source = ""
	SourceProvider  Source = "provider"
	SourceCache     Source = "cache"
	SourceBroadened Source = "broadened"
	SourceDefault   Source = "default"
)

// ConnectivityReporter receives the outcome of every provider call.
type ConnectivityReporter interface {
	RecordSuccess()
	RecordFailure(reason string)
}

// BreakerSettings configures the circuit breaker around provider calls.
type BreakerSettings struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	// The breaker opens once at least MinRequests calls were made in the
	// current interval and the failure ratio reaches FailureThreshold.
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerSettings returns the breaker configuration used by New.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Name:             "provider",
		MaxRequests:      1,
		Interval:         30 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// Orchestrator runs reads and writes against the provider with local
// fallbacks. It is safe for concurrent use.
type Orchestrator struct {
	cache      cache.Cache
	queue      retry.Enqueuer
	guard      privacy.Checker
	monitor    ConnectivityReporter
	breaker    *gobreaker.CircuitBreaker
	settings   BreakerSettings
	flight     singleflight.Group
	timeout    time.Duration
	maxRetries int
	logger     *zap.Logger
	metrics    *observability.Collector
	tracer     trace.Tracer

	rngMu sync.Mutex
	rng   *rand.Rand

	mu           sync.Mutex
	reads        map[Source]int64
	byErrorCode  map[string]int64
	totalReads   int64
	writes       int64
	writesQueued int64
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics sets the Prometheus collector.
func WithMetrics(m *observability.Collector) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithPrivacy gates network-bound requests through the guard.
func WithPrivacy(g privacy.Checker) Option {
	return func(o *Orchestrator) { o.guard = g }
}

// WithConnectivity reports provider outcomes to r.
func WithConnectivity(r ConnectivityReporter) Option {
	return func(o *Orchestrator) { o.monitor = r }
}

// WithBreaker replaces the default breaker settings.
func WithBreaker(s BreakerSettings) Option {
	return func(o *Orchestrator) { o.settings = s }
}

// WithProviderTimeout bounds every provider call. Zero means no bound.
func WithProviderTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithMaxRetries sets the retry bound for queued writes. Zero leaves the
// queue default.
func WithMaxRetries(n int) Option {
	return func(o *Orchestrator) { o.maxRetries = n }
}

// WithRand fixes the source used to subsample broadened results.
func WithRand(r *rand.Rand) Option {
	return func(o *Orchestrator) { o.rng = r }
}

// New creates an orchestrator over the given cache and retry queue.
func New(c cache.Cache, q retry.Enqueuer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cache:       c,
		queue:       q,
		settings:    DefaultBreakerSettings(),
		reads:       make(map[Source]int64),
		byErrorCode: make(map[string]int64),
		tracer:      observability.Tracer(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = observability.OrNop(o.logger).Named("fallback")
	o.metrics = observability.OrNew(o.metrics)
	if o.rng == nil {
		o.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	o.breaker = o.newBreaker(o.settings)
	return o
}

func (o *Orchestrator) newBreaker(s BreakerSettings) *gobreaker.CircuitBreaker {
	if s.Name == "" {
		s.Name = "provider"
	}
	o.metrics.BreakerState.WithLabelValues(s.Name).Set(float64(gobreaker.StateClosed))

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests || s.FailureThreshold <= 0 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= s.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			o.metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			o.logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// Only failures the fallback chain absorbs count against the provider.
		IsSuccessful: func(err error) bool {
			return err == nil || !ClassifyError(err).Transient
		},
	})
}

// BreakerState returns the current circuit breaker state.
func (o *Orchestrator) BreakerState() gobreaker.State {
	return o.breaker.State()
}

// Broadening describes tier 2: a broader cache entry and how to cut it down
// to what the request asked for.
type Broadening[T any] struct {
	Key string
	// Narrow filters the broad value to the request. It reports false when
	// nothing in the broad value satisfies the request.
	Narrow func(broad T, rng *rand.Rand) (T, bool)
}

// ReadRequest describes one logical read.
type ReadRequest[T any] struct {
	Operation string
	Key       string
	TTL       time.Duration
	// Fetch calls the provider with the request payload. For network reads
	// the payload has already been stripped of personal fields.
	Fetch   func(ctx context.Context, payload map[string]any) (T, error)
	Broaden *Broadening[T]
	Default func() (T, bool)

	// Network marks reads that leave the device. They must pass the
	// privacy gate with Payload before the provider is called.
	Network bool
	Payload map[string]any
}

// Read runs req through the tier chain. Only a non-transient provider
// failure, a privacy refusal, caller cancellation or exhaustion of every
// tier returns an error; exhaustion is a NO_DATA error wrapping the provider
// failure.
//
// The provider call runs detached from ctx and is shared by concurrent
// reads of the same key. A caller whose ctx ends first gets ctx.Err(); the
// call and its cache write still complete.
func Read[T any](ctx context.Context, o *Orchestrator, req ReadRequest[T]) (T, Source, error) {
	var zero T

	ctx, span := o.tracer.Start(ctx, "fallback.Read", trace.WithAttributes(
		attribute.String("operation", req.Operation),
		attribute.String("cache.key", req.Key),
	))
	defer span.End()

	if req.Network && o.guard != nil {
		payload, err := o.guard.CheckNetworkOperation(req.Operation, req.Payload)
		if err != nil {
			span.SetStatus(codes.Error, "privacy")
			return zero, SourceNone, err
		}
		req.Payload = payload
	}

	val, err := fetch(ctx, o, req)
	if err == nil {
		o.served(span, req.Operation, SourceProvider)
		return val, SourceProvider, nil
	}
	if ctx.Err() != nil {
		span.SetStatus(codes.Error, "caller cancelled")
		return zero, SourceNone, ctx.Err()
	}

	perr := ClassifyError(err)
	o.providerFailed(req.Operation, perr)
	span.RecordError(err)
	if !perr.Transient {
		span.SetStatus(codes.Error, perr.Code)
		return zero, SourceNone, err
	}

	// Tier 1: the exact entry, expired or not
	if v, ok := cache.GetStaleAs[T](o.cache, req.Key); ok {
		o.served(span, req.Operation, SourceCache)
		return v, SourceCache, nil
	}

	// Tier 2: a broader entry narrowed to the request
	if b := req.Broaden; b != nil && b.Key != req.Key {
		if broad, ok := cache.GetStaleAs[T](o.cache, b.Key); ok {
			o.rngMu.Lock()
			v, ok := b.Narrow(broad, o.rng)
			o.rngMu.Unlock()
			if ok {
				o.served(span, req.Operation, SourceBroadened)
				return v, SourceBroadened, nil
			}
		}
	}

	// Tier 3: built-in default
	if req.Default != nil {
		if v, ok := req.Default(); ok {
			o.served(span, req.Operation, SourceDefault)
			return v, SourceDefault, nil
		}
	}

	o.served(span, req.Operation, SourceNone)
	span.SetStatus(codes.Error, "no data")
	return zero, SourceNone, kiterrors.NoDataError(
		fmt.Sprintf("no data available for %s", req.Operation),
		kiterrors.TransientError(perr.Code, err),
	).WithContext("operation", req.Operation)
}

func fetch[T any](ctx context.Context, o *Orchestrator, req ReadRequest[T]) (T, error) {
	var zero T
	detached := context.WithoutCancel(ctx)

	ch := o.flight.DoChan(req.Key, func() (any, error) {
		v, err := o.call(detached, func(ctx context.Context) (any, error) {
			return req.Fetch(ctx, req.Payload)
		})
		if err != nil {
			return nil, err
		}
		o.cache.Set(req.Key, v, req.TTL)
		return v, nil
	})
	o.metrics.ReadsWaiting.Inc()
	defer o.metrics.ReadsWaiting.Dec()

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, ok := res.Val.(T)
		if !ok {
			return zero, kiterrors.ValidationError(
				fmt.Sprintf("%s returned %T", req.Operation, res.Val), nil)
		}
		return v, nil
	}
}

// call runs fn through the breaker with the provider timeout and reports
// the outcome to the connectivity monitor.
func (o *Orchestrator) call(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	v, err := o.breaker.Execute(func() (any, error) {
		return fn(ctx)
	})

	if o.monitor != nil {
		switch perr := ClassifyError(err); {
		case perr == nil:
			o.monitor.RecordSuccess()
		case perr.Transient && perr.Code != CodeBreakerOpen:
			o.monitor.RecordFailure(perr.Message)
		}
	}
	return v, err
}

// WriteRequest describes one mutation.
type WriteRequest struct {
	Operation string
	Mutation  retry.Mutation
	// Apply performs the mutation against the provider. Network writes get
	// the sanitized projection of Mutation; local writes get nil.
	Apply func(ctx context.Context, payload map[string]any) error
	// OnSuccess refreshes local mirrors after the provider accepted the write.
	OnSuccess func()
	// Network marks writes that leave the device; see ReadRequest.Network.
	Network bool
}

// Write applies req. A transient provider failure queues req.Mutation for
// retry and returns nil. A privacy refusal aborts before the provider is
// called; non-transient provider errors are returned as is.
func (o *Orchestrator) Write(ctx context.Context, req WriteRequest) error {
	ctx, span := o.tracer.Start(ctx, "fallback.Write", trace.WithAttributes(
		attribute.String("operation", req.Operation),
	))
	defer span.End()

	if req.Mutation == nil {
		return kiterrors.ValidationError("write without a mutation", nil)
	}
	if req.Operation == "" {
		req.Operation = req.Mutation.Operation()
	}

	var payload map[string]any
	if req.Network && o.guard != nil {
		if _, err := o.guard.CheckNetworkOperation(req.Operation, nil); err != nil {
			span.SetStatus(codes.Error, "privacy")
			return err
		}
		payload = o.guard.SanitizeMutation(req.Mutation)
	}

	o.mu.Lock()
	o.writes++
	o.mu.Unlock()

	_, err := o.call(context.WithoutCancel(ctx), func(ctx context.Context) (any, error) {
		return nil, req.Apply(ctx, payload)
	})
	if err == nil {
		if req.OnSuccess != nil {
			req.OnSuccess()
		}
		return nil
	}

	perr := ClassifyError(err)
	o.providerFailed(req.Operation, perr)
	span.RecordError(err)
	if !perr.Transient {
		span.SetStatus(codes.Error, perr.Code)
		return err
	}

	fo, qerr := o.queue.Enqueue(req.Operation, req.Mutation, o.maxRetries)
	if qerr != nil {
		span.SetStatus(codes.Error, "enqueue")
		return qerr
	}

	o.mu.Lock()
	o.writesQueued++
	o.mu.Unlock()

	span.SetAttributes(attribute.String("retry.id", fo.ID))
	o.logger.Info("write deferred to retry queue",
		zap.String("operation", req.Operation),
		zap.String("id", fo.ID),
		zap.String("code", perr.Code),
	)
	return nil
}

func (o *Orchestrator) served(span trace.Span, op string, src Source) {
	label := string(src)
	if src == SourceNone {
		label = "none"
	}
	span.SetAttributes(attribute.String("fallback.source", label))
	o.metrics.Reads.WithLabelValues(op, label).Inc()

	o.mu.Lock()
	o.totalReads++
	o.reads[src]++
	o.mu.Unlock()

	if src != SourceProvider {
		o.logger.Debug("read served by fallback", zap.String("operation", op), zap.String("source", label))
	}
}

func (o *Orchestrator) providerFailed(op string, perr *ProviderError) {
	o.metrics.ProviderErrors.WithLabelValues(op, perr.Code).Inc()

	o.mu.Lock()
	o.byErrorCode[perr.Code]++
	o.mu.Unlock()

	o.logger.Debug("provider call failed",
		zap.String("operation", op),
		zap.String("code", perr.Code),
		zap.Bool("transient", perr.Transient),
		zap.String("error", perr.Message),
	)
}

// Metrics contains fallback statistics.
type Metrics struct {
	TotalReads   int64            `json:"totalReads" yaml:"totalReads"`
	BySource     map[Source]int64 `json:"bySource" yaml:"bySource"`
	ByErrorCode  map[string]int64 `json:"byErrorCode" yaml:"byErrorCode"`
	Writes       int64            `json:"writes" yaml:"writes"`
	WritesQueued int64            `json:"writesQueued" yaml:"writesQueued"`
	FallbackRate float64          `json:"fallbackRate" yaml:"fallbackRate"`
	BreakerState string           `json:"breakerState" yaml:"breakerState"`
}

// Metrics returns the fallback metrics (safe copy).
func (o *Orchestrator) Metrics() *Metrics {
	o.mu.Lock()
	bySource := make(map[Source]int64, len(o.reads))
	for k, v := range o.reads {
		bySource[k] = v
	}
	byErrorCode := make(map[string]int64, len(o.byErrorCode))
	for k, v := range o.byErrorCode {
		byErrorCode[k] = v
	}
	m := &Metrics{
		TotalReads:   o.totalReads,
		BySource:     bySource,
		ByErrorCode:  byErrorCode,
		Writes:       o.writes,
		WritesQueued: o.writesQueued,
	}
	o.mu.Unlock()

	if m.TotalReads > 0 {
		m.FallbackRate = float64(m.TotalReads-bySource[SourceProvider]) / float64(m.TotalReads)
	}
	m.BreakerState = o.breaker.State().String()
	return m
}
