// Copyright 2026 QuizForge. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package connectivity tracks whether the content provider is reachable,
// based on the outcome of real provider calls.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/quizforge/offline-kit/pkg/observability"
)

// Monitor records provider call outcomes and notifies subscribers when the
// provider becomes reachable again. The signal is advisory: nothing in the
// layer depends on it for correctness.
type Monitor struct {
	mu               sync.Mutex
	clock            clockwork.Clock
	logger           *zap.Logger
	startedAt        time.Time
	downtimePeriods  []*DowntimePeriod
	totalChecks      int
	successfulChecks int
	failedChecks     int
	lastCheck        time.Time
	online           bool
	window           time.Duration
	subscribers      []func()
}

// DowntimePeriod represents a period of provider unavailability.
type DowntimePeriod struct {
	Start    time.Time     `json:"start" yaml:"start"`
	End      time.Time     `json:"end,omitempty" yaml:"end,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Reason   string        `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Report summarizes reachability over the monitor's window.
type Report struct {
	Online          bool              `json:"online" yaml:"online"`
	UptimePercent   float64           `json:"uptime_percent" yaml:"uptime_percent"`
	TotalDowntime   time.Duration     `json:"total_downtime" yaml:"total_downtime"`
	DowntimePeriods []*DowntimePeriod `json:"downtime_periods" yaml:"downtime_periods"`
	TotalChecks     int               `json:"total_checks" yaml:"total_checks"`
	FailedChecks    int               `json:"failed_checks" yaml:"failed_checks"`
	PeriodStart     time.Time         `json:"period_start" yaml:"period_start"`
	PeriodEnd       time.Time         `json:"period_end" yaml:"period_end"`
}

// NewMonitor creates a monitor that assumes the provider starts online.
func NewMonitor(clock clockwork.Clock, logger *zap.Logger) *Monitor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	now := clock.Now()
	return &Monitor{
		clock:     clock,
		logger:    observability.OrNop(logger).Named("connectivity"),
		startedAt: now,
		lastCheck: now,
		online:    true,
		window:    24 * time.Hour,
	}
}

// OnOnline registers fn to be called after every offline -> online
// transition. Callbacks run outside the monitor lock.
func (m *Monitor) OnOnline(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// RecordSuccess records a successful provider call.
func (m *Monitor) RecordSuccess() {
	m.record(true, "")
}

// RecordFailure records a transient provider failure.
func (m *Monitor) RecordFailure(reason string) {
	m.record(false, reason)
}

func (m *Monitor) record(success bool, reason string) {
	m.mu.Lock()

	now := m.clock.Now()
	m.totalChecks++
	m.lastCheck = now
	wasOnline := m.online

	if success {
		m.successfulChecks++
		if n := len(m.downtimePeriods); n > 0 {
			last := m.downtimePeriods[n-1]
			if last.End.IsZero() {
				last.End = now
				last.Duration = now.Sub(last.Start)
			}
		}
	} else {
		m.failedChecks++
		if wasOnline {
			m.downtimePeriods = append(m.downtimePeriods, &DowntimePeriod{
				Start:  now,
				Reason: reason,
			})
		}
	}
	m.online = success

	var notify []func()
	if success && !wasOnline {
		notify = append(notify, m.subscribers...)
	}
	m.mu.Unlock()

	switch {
	case success && !wasOnline:
		m.logger.Info("provider reachable again")
	case !success && wasOnline:
		m.logger.Warn("provider unreachable, serving local data", zap.String("reason", reason))
	}
	for _, fn := range notify {
		fn()
	}
}

// Online reports the last observed state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Report generates a reachability report for the window.
func (m *Monitor) Report() *Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	windowStart := now.Add(-m.window)
	if windowStart.Before(m.startedAt) {
		windowStart = m.startedAt
	}

	var totalDowntime time.Duration
	periods := make([]*DowntimePeriod, 0, len(m.downtimePeriods))
	for _, period := range m.downtimePeriods {
		p := *period
		end := p.End
		if end.IsZero() {
			end = now
			p.Duration = now.Sub(p.Start)
		}
		if !end.After(windowStart) || !p.Start.Before(now) {
			continue
		}
		periods = append(periods, &p)
		// only the part inside the window counts against uptime
		start := p.Start
		if start.Before(windowStart) {
			start = windowStart
		}
		totalDowntime += end.Sub(start)
	}

	totalTime := now.Sub(windowStart)
	uptimePercent := float64(100)
	if totalTime > 0 {
		uptimePercent = float64(totalTime-totalDowntime) / float64(totalTime) * 100
	}

	return &Report{
		Online:          m.online,
		UptimePercent:   uptimePercent,
		TotalDowntime:   totalDowntime,
		DowntimePeriods: periods,
		TotalChecks:     m.totalChecks,
		FailedChecks:    m.failedChecks,
		PeriodStart:     windowStart,
		PeriodEnd:       now,
	}
}

// SetWindow sets how far back Report looks. Non-positive values are ignored.
func (m *Monitor) SetWindow(window time.Duration) {
	if window <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.window = window
}

// Poll calls check every interval and records the result, so reachability
// is noticed even when the app makes no provider calls. Returns when ctx is
// done.
func (m *Monitor) Poll(ctx context.Context, interval time.Duration, check func(context.Context) error) {
	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := check(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				m.RecordFailure(err.Error())
			} else {
				m.RecordSuccess()
			}
		}
	}
}
