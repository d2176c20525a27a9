// Copyright 2026 QuizForge. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package retry holds writes that failed against the provider and replays
// them later with a bounded number of attempts.
package retry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	kiterrors "github.com/quizforge/offline-kit/pkg/errors"
	"github.com/quizforge/offline-kit/pkg/observability"
)

const (
	// DefaultMaxRetries is used when Enqueue is given maxRetries <= 0.
	DefaultMaxRetries = 3
	// DefaultFlushInterval is the timer period of Run.
	DefaultFlushInterval = 30 * time.Second
)

// FailedOperation is a mutation waiting to be replayed.
// RetryCount < MaxRetries holds for every operation still in the queue.
type FailedOperation struct {
	ID            string    `json:"id" yaml:"id"`
	OperationName string    `json:"operationName" yaml:"operationName"`
	Payload       Mutation  `json:"payload" yaml:"payload"`
	EnqueuedAt    time.Time `json:"enqueuedAt" yaml:"enqueuedAt"`
	RetryCount    int       `json:"retryCount" yaml:"retryCount"`
	MaxRetries    int       `json:"maxRetries" yaml:"maxRetries"`
	LastError     string    `json:"lastError,omitempty" yaml:"lastError,omitempty"`
}

// FlushResult summarizes one Flush pass.
type FlushResult struct {
	Attempted int `json:"attempted" yaml:"attempted"`
	Succeeded int `json:"succeeded" yaml:"succeeded"`
	Retrying  int `json:"retrying" yaml:"retrying"`
	Dropped   int `json:"dropped" yaml:"dropped"`

	// Interrupted attempts ended with the flush context; they stay pending
	// and do not count towards MaxRetries.
	Interrupted int `json:"interrupted,omitempty" yaml:"interrupted,omitempty"`
}

// Enqueuer is the write-path view of the queue.
type Enqueuer interface {
	Enqueue(op string, payload Mutation, maxRetries int) (FailedOperation, error)
}

// Queue is a FIFO of failed mutations. All methods are safe for concurrent
// use; Flush passes never overlap.
type Queue struct {
	mu          sync.Mutex
	ops         []*FailedOperation
	executor    Executor
	clock       clockwork.Clock
	logger      *zap.Logger
	metrics     *observability.Collector
	maxRetries  int
	interval    time.Duration
	concurrency int
	onDropped   func(FailedOperation, error)

	flushing atomic.Bool
	wake     chan struct{}
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock sets the time source for EnqueuedAt and the Run ticker.
func WithClock(c clockwork.Clock) Option {
	return func(q *Queue) { q.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithMetrics sets the Prometheus collector.
func WithMetrics(m *observability.Collector) Option {
	return func(q *Queue) { q.metrics = m }
}

// WithMaxRetries sets the default retry bound.
func WithMaxRetries(n int) Option {
	return func(q *Queue) { q.maxRetries = n }
}

// WithFlushInterval sets the Run timer period.
func WithFlushInterval(d time.Duration) Option {
	return func(q *Queue) { q.interval = d }
}

// WithConcurrency bounds how many replays a Flush runs at once.
func WithConcurrency(n int) Option {
	return func(q *Queue) { q.concurrency = n }
}

// WithOnDropped registers a hook called, outside the queue lock, for every
// operation dropped after its last allowed attempt.
func WithOnDropped(fn func(FailedOperation, error)) Option {
	return func(q *Queue) { q.onDropped = fn }
}

// New creates a queue replaying through executor.
func New(executor Executor, opts ...Option) *Queue {
	q := &Queue{
		executor:    executor,
		clock:       clockwork.NewRealClock(),
		maxRetries:  DefaultMaxRetries,
		interval:    DefaultFlushInterval,
		concurrency: 1,
		wake:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.maxRetries <= 0 {
		q.maxRetries = DefaultMaxRetries
	}
	if q.concurrency <= 0 {
		q.concurrency = 1
	}
	q.logger = observability.OrNop(q.logger).Named("retry")
	q.metrics = observability.OrNew(q.metrics)
	return q
}

// Enqueue adds a failed mutation. An empty op defaults to the mutation's own
// operation name; maxRetries <= 0 uses the queue default.
func (q *Queue) Enqueue(op string, payload Mutation, maxRetries int) (FailedOperation, error) {
	if payload == nil {
		return FailedOperation{}, kiterrors.ValidationError("cannot enqueue a nil mutation", nil)
	}
	if op == "" {
		op = payload.Operation()
	}
	if maxRetries <= 0 {
		maxRetries = q.maxRetries
	}

	fo := &FailedOperation{
		ID:            uuid.NewString(),
		OperationName: op,
		Payload:       payload,
		EnqueuedAt:    q.clock.Now(),
		MaxRetries:    maxRetries,
	}

	q.mu.Lock()
	q.ops = append(q.ops, fo)
	size := len(q.ops)
	q.mu.Unlock()

	q.metrics.RetryEnqueued.WithLabelValues(op).Inc()
	q.metrics.RetryPending.Set(float64(size))
	q.logger.Info("mutation queued for retry",
		zap.String("id", fo.ID),
		zap.String("operation", op),
		zap.Int("max_retries", maxRetries),
		zap.Int("pending", size),
	)
	return *fo, nil
}

// Size returns the number of pending operations.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Pending returns copies of the pending operations, oldest first.
func (q *Queue) Pending() []FailedOperation {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]FailedOperation, len(q.ops))
	for i, fo := range q.ops {
		out[i] = *fo
	}
	return out
}

// Flush replays every operation pending when the pass starts. Success
// removes an operation; failure counts an attempt and drops the operation
// once it has been attempted MaxRetries times. A Flush called while another
// is running returns a zero result immediately. Operations not started
// before ctx is done are left untouched.
func (q *Queue) Flush(ctx context.Context) FlushResult {
	if !q.flushing.CompareAndSwap(false, true) {
		return FlushResult{}
	}
	defer q.flushing.Store(false)

	q.mu.Lock()
	batch := make([]*FailedOperation, len(q.ops))
	copy(batch, q.ops)
	q.mu.Unlock()

	if len(batch) == 0 {
		return FlushResult{}
	}

	var (
		resMu   sync.Mutex
		result  FlushResult
		dropped []FailedOperation
		reasons []error
	)

	var g errgroup.Group
	g.SetLimit(q.concurrency)
	for _, fo := range batch {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			err := q.executor.Execute(ctx, fo.Payload)
			if err != nil && ctx.Err() != nil {
				// cut short by the caller, not rejected by the provider
				resMu.Lock()
				result.Interrupted++
				resMu.Unlock()
				return nil
			}

			q.mu.Lock()
			snapshot, outcome := q.settle(fo, err)
			size := len(q.ops)
			q.mu.Unlock()

			q.metrics.RetryPending.Set(float64(size))

			resMu.Lock()
			defer resMu.Unlock()
			result.Attempted++
			switch outcome {
			case outcomeSucceeded:
				result.Succeeded++
				q.metrics.RetrySucceeded.WithLabelValues(fo.OperationName).Inc()
			case outcomeRetrying:
				result.Retrying++
				q.logger.Debug("retry attempt failed",
					zap.String("id", snapshot.ID),
					zap.String("operation", snapshot.OperationName),
					zap.Int("retry_count", snapshot.RetryCount),
					zap.Error(err),
				)
			case outcomeDropped:
				result.Dropped++
				dropped = append(dropped, snapshot)
				reasons = append(reasons, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, fo := range dropped {
		q.drop(fo, reasons[i])
	}

	if result.Attempted > 0 || result.Interrupted > 0 {
		q.logger.Info("retry queue flushed",
			zap.Int("attempted", result.Attempted),
			zap.Int("succeeded", result.Succeeded),
			zap.Int("retrying", result.Retrying),
			zap.Int("dropped", result.Dropped),
			zap.Int("interrupted", result.Interrupted),
		)
	}
	return result
}

type outcome int

const (
	outcomeSucceeded outcome = iota
	outcomeRetrying
	outcomeDropped
)

// settle applies the result of one attempt. Caller holds mu.
func (q *Queue) settle(fo *FailedOperation, err error) (FailedOperation, outcome) {
	if err == nil {
		q.remove(fo.ID)
		return *fo, outcomeSucceeded
	}
	fo.RetryCount++
	fo.LastError = err.Error()
	if fo.RetryCount >= fo.MaxRetries {
		q.remove(fo.ID)
		return *fo, outcomeDropped
	}
	return *fo, outcomeRetrying
}

// remove deletes id from the queue. Caller holds mu.
func (q *Queue) remove(id string) {
	for i, fo := range q.ops {
		if fo.ID == id {
			q.ops = append(q.ops[:i], q.ops[i+1:]...)
			return
		}
	}
}

func (q *Queue) drop(fo FailedOperation, cause error) {
	err := kiterrors.QueueExhaustedError(
		fmt.Sprintf("%s dropped after %d attempts", fo.OperationName, fo.RetryCount), cause).
		WithContext("id", fo.ID)

	q.metrics.RetryDropped.WithLabelValues(fo.OperationName).Inc()
	q.logger.Warn("mutation dropped",
		zap.String("id", fo.ID),
		zap.String("operation", fo.OperationName),
		zap.Time("enqueued_at", fo.EnqueuedAt),
		zap.Error(err),
	)
	if q.onDropped != nil {
		q.onDropped(fo, err)
	}
}

// NotifyOnline asks Run for an immediate flush. It never blocks; repeated
// notifications before the flush starts collapse into one.
func (q *Queue) NotifyOnline() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Run flushes on every tick of the flush interval and whenever NotifyOnline
// is called, until ctx is done.
func (q *Queue) Run(ctx context.Context) {
	ticker := q.clock.NewTicker(q.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			q.Flush(ctx)
		case <-q.wake:
			q.Flush(ctx)
		}
	}
}
