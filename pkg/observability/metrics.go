// Copyright 2026 QuizForge. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the Prometheus metrics for the resilience layer. Each
// collector owns its own registry so several instances can coexist in tests.
type Collector struct {
	registry *prometheus.Registry

	// Cache metrics
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	CacheStaleHits   prometheus.Counter
	CacheEvictions   prometheus.Counter
	CacheExpirations prometheus.Counter
	CacheEntries     prometheus.Gauge

	// Fallback metrics
	Reads          *prometheus.CounterVec
	ProviderErrors *prometheus.CounterVec
	BreakerState   *prometheus.GaugeVec
	ReadsWaiting   prometheus.Gauge

	// Retry queue metrics
	RetryEnqueued  *prometheus.CounterVec
	RetrySucceeded *prometheus.CounterVec
	RetryDropped   *prometheus.CounterVec
	RetryPending   prometheus.Gauge

	// Privacy metrics
	PrivacyViolations *prometheus.CounterVec
}

// NewCollector creates a collector with the given namespace.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of fresh cache hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		}),
		CacheStaleHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_stale_hits_total",
			Help:      "Total number of reads served from expired entries",
		}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Total number of LRU evictions",
		}),
		CacheExpirations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_expirations_total",
			Help:      "Total number of entries removed by the expiry sweep",
		}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Current number of cache entries",
		}),
		Reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reads_total",
			Help:      "Reads by operation and the tier that served them",
		}, []string{"operation", "source"}),
		ProviderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider failures by operation and classified code",
		}, []string{"operation", "code"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"name"}),
		ReadsWaiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reads_waiting",
			Help:      "Reads waiting on a provider call, shared ones included",
		}),
		RetryEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_enqueued_total",
			Help:      "Failed mutations handed to the retry queue",
		}, []string{"operation"}),
		RetrySucceeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_succeeded_total",
			Help:      "Queued mutations that eventually succeeded",
		}, []string{"operation"}),
		RetryDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_dropped_total",
			Help:      "Queued mutations dropped after exhausting retries",
		}, []string{"operation"}),
		RetryPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "retry_pending",
			Help:      "Mutations waiting in the retry queue",
		}),
		PrivacyViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "privacy_violations_total",
			Help:      "Privacy violations by kind and severity",
		}, []string{"kind", "severity"}),
	}

	registry.MustRegister(
		c.CacheHits,
		c.CacheMisses,
		c.CacheStaleHits,
		c.CacheEvictions,
		c.CacheExpirations,
		c.CacheEntries,
		c.Reads,
		c.ProviderErrors,
		c.BreakerState,
		c.ReadsWaiting,
		c.RetryEnqueued,
		c.RetrySucceeded,
		c.RetryDropped,
		c.RetryPending,
		c.PrivacyViolations,
	)

	return c
}

// Registry returns the registry the collector's metrics live in.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// OrNew returns c, or a fresh unnamespaced collector when c is nil.
func OrNew(c *Collector) *Collector {
	if c == nil {
		return NewCollector("")
	}
	return c
}
