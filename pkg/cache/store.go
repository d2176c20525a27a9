// Copyright 2026 QuizForge. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package cache provides the time-bounded, capacity-bounded store that backs
// offline reads.
package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/quizforge/offline-kit/pkg/observability"
)

// DefaultSweepInterval is used by Run when no interval was configured.
const DefaultSweepInterval = 5 * time.Minute

// Cache is the contract the fallback orchestrator and privacy guard depend on.
type Cache interface {
	Get(key string) (any, bool)
	GetStale(key string) (any, bool)
	Set(key string, data any, ttl time.Duration)
	Has(key string) bool
	Delete(key string) bool
	SweepExpired() int
	Stats() Stats
}

// Entry is one cached value and its bookkeeping.
type Entry struct {
	Key            string    `json:"key"`
	Data           any       `json:"data"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	AccessCount    int64     `json:"accessCount"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`
	Size           int       `json:"size"`
}

// Expired reports whether the entry's TTL has elapsed at now, i.e. whether
// Get treats it as a miss.
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// RemovalReason tells an eviction callback why an entry left the store.
type RemovalReason string

const (
	RemovedEvicted RemovalReason = "evicted"
	RemovedExpired RemovalReason = "expired"
	RemovedDeleted RemovalReason = "deleted"
)

// Stats is a point-in-time view of store activity.
type Stats struct {
	Hits           int64 `json:"hits" yaml:"hits"`
	Misses         int64 `json:"misses" yaml:"misses"`
	StaleHits      int64 `json:"staleHits" yaml:"stale_hits"`
	Evictions      int64 `json:"evictions" yaml:"evictions"`
	Expirations    int64 `json:"expirations" yaml:"expirations"`
	Entries        int   `json:"entries" yaml:"entries"`
	Capacity       int   `json:"capacity" yaml:"capacity"`
	EstimatedBytes int64 `json:"estimatedBytes" yaml:"estimated_bytes"`
}

// HitRate returns the fresh hit rate (0-1)
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Store is a mutex-guarded LRU cache with per-entry TTL.
//
// The list is ordered by last access, front = most recent, so the back element
// always has the oldest LastAccessedAt.
type Store struct {
	mu        sync.Mutex
	items     map[string]*list.Element
	lru       *list.List
	capacity  int
	bytes     int64
	interval  time.Duration
	clock     clockwork.Clock
	logger    *zap.Logger
	metrics   *observability.Collector
	onRemoved func(Entry, RemovalReason)

	hits        int64
	misses      int64
	staleHits   int64
	evictions   int64
	expirations int64
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source. Tests pass a clockwork fake clock.
func WithClock(c clockwork.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics sets the Prometheus collector.
func WithMetrics(m *observability.Collector) Option {
	return func(s *Store) { s.metrics = m }
}

// WithSweepInterval sets how often Run removes expired entries.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) { s.interval = d }
}

// WithOnRemoved registers a callback invoked, under the store lock, whenever
// an entry is evicted, swept or deleted.
func WithOnRemoved(fn func(Entry, RemovalReason)) Option {
	return func(s *Store) { s.onRemoved = fn }
}

// New creates a store holding at most capacity entries. A capacity of 0
// disables caching: every Set is a no-op.
func New(capacity int, opts ...Option) *Store {
	if capacity < 0 {
		capacity = 0
	}
	s := &Store{
		items:    make(map[string]*list.Element),
		lru:      list.New(),
		capacity: capacity,
		interval: DefaultSweepInterval,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = observability.OrNop(s.logger).Named("cache")
	s.metrics = observability.OrNew(s.metrics)
	return s
}

// Get returns the entry's data if present and not expired. A hit bumps the
// entry's access metadata; an expired entry is a miss but stays in place for
// GetStale until the sweep or eviction removes it.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	elem, ok := s.items[key]
	if !ok || elem.Value.(*Entry).Expired(now) {
		s.misses++
		s.metrics.CacheMisses.Inc()
		return nil, false
	}

	s.touch(elem, now)
	s.hits++
	s.metrics.CacheHits.Inc()
	return elem.Value.(*Entry).Data, true
}

// GetStale returns the last known value for key whether or not it has
// expired. Reads of expired data are counted as stale hits.
func (s *Store) GetStale(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	elem, ok := s.items[key]
	if !ok {
		s.misses++
		s.metrics.CacheMisses.Inc()
		return nil, false
	}

	entry := elem.Value.(*Entry)
	if entry.Expired(now) {
		s.staleHits++
		s.metrics.CacheStaleHits.Inc()
	} else {
		s.hits++
		s.metrics.CacheHits.Inc()
	}
	s.touch(elem, now)
	return entry.Data, true
}

// Set writes or overwrites key with expiresAt = now + ttl. A ttl <= 0 means
// "do not cache". When the insert pushes the store over capacity the least
// recently accessed entries are evicted before Set returns.
func (s *Store) Set(key string, data any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capacity == 0 {
		return
	}

	now := s.clock.Now()
	size := estimateSize(data)

	if elem, exists := s.items[key]; exists {
		entry := elem.Value.(*Entry)
		s.bytes += int64(size - entry.Size)
		entry.Data = data
		entry.CreatedAt = now
		entry.ExpiresAt = now.Add(ttl)
		entry.LastAccessedAt = now
		entry.Size = size
		s.lru.MoveToFront(elem)
		return
	}

	entry := &Entry{
		Key:            key,
		Data:           data,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
		LastAccessedAt: now,
		Size:           size,
	}
	s.items[key] = s.lru.PushFront(entry)
	s.bytes += int64(size)

	for s.lru.Len() > s.capacity {
		s.evictOldest()
	}
	s.metrics.CacheEntries.Set(float64(s.lru.Len()))
}

// Has reports whether key holds fresh data. It does not count as an access.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	return ok && !elem.Value.(*Entry).Expired(s.clock.Now())
}

// Delete removes key and reports whether it was present.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		return false
	}
	s.removeElement(elem, RemovedDeleted)
	s.metrics.CacheEntries.Set(float64(s.lru.Len()))
	return true
}

// SweepExpired removes every entry with ExpiresAt before now and returns how
// many were removed. An entry expiring exactly now is already a Get miss but
// survives the sweep. It is independent of LRU eviction.
func (s *Store) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	removed := 0
	for elem := s.lru.Back(); elem != nil; {
		prev := elem.Prev()
		if now.After(elem.Value.(*Entry).ExpiresAt) {
			s.removeElement(elem, RemovedExpired)
			s.expirations++
			s.metrics.CacheExpirations.Inc()
			removed++
		}
		elem = prev
	}
	if removed > 0 {
		s.logger.Debug("swept expired entries", zap.Int("removed", removed), zap.Int("remaining", s.lru.Len()))
	}
	s.metrics.CacheEntries.Set(float64(s.lru.Len()))
	return removed
}

// Run sweeps expired entries on every tick of the configured interval until
// ctx is cancelled. The sweep never runs on the read path.
func (s *Store) Run(ctx context.Context) {
	interval := s.interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			s.SweepExpired()
		case <-ctx.Done():
			return
		}
	}
}

// Stats returns the current cache statistics.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Hits:           s.hits,
		Misses:         s.misses,
		StaleHits:      s.staleHits,
		Evictions:      s.evictions,
		Expirations:    s.expirations,
		Entries:        s.lru.Len(),
		Capacity:       s.capacity,
		EstimatedBytes: s.bytes,
	}
}

// Len returns the number of entries, expired ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

// Keys returns all keys, most recently used first.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, s.lru.Len())
	for elem := s.lru.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*Entry).Key)
	}
	return keys
}

// CountPrefix counts entries whose key starts with prefix.
func (s *Store) CountPrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key := range s.items {
		if strings.HasPrefix(key, prefix) {
			n++
		}
	}
	return n
}

// Peek returns a copy of the entry without touching access metadata.
func (s *Store) Peek(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		return Entry{}, false
	}
	return *elem.Value.(*Entry), true
}

// Clear removes all entries without invoking the removal callback and resets
// the counters.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*list.Element)
	s.lru.Init()
	s.bytes = 0
	s.hits, s.misses, s.staleHits, s.evictions, s.expirations = 0, 0, 0, 0, 0
	s.metrics.CacheEntries.Set(0)
}

// touch marks elem as accessed at now. Caller holds mu.
func (s *Store) touch(elem *list.Element, now time.Time) {
	entry := elem.Value.(*Entry)
	entry.AccessCount++
	entry.LastAccessedAt = now
	s.lru.MoveToFront(elem)
}

// evictOldest evicts the least recently accessed entry. Caller holds mu.
func (s *Store) evictOldest() {
	elem := s.lru.Back()
	if elem == nil {
		return
	}
	entry := elem.Value.(*Entry)
	s.removeElement(elem, RemovedEvicted)
	s.evictions++
	s.metrics.CacheEvictions.Inc()
	s.logger.Debug("evicted entry",
		zap.String("key", entry.Key),
		zap.Time("last_accessed_at", entry.LastAccessedAt))
}

// removeElement unlinks elem and fires the callback. Caller holds mu.
func (s *Store) removeElement(elem *list.Element, reason RemovalReason) {
	s.lru.Remove(elem)
	entry := elem.Value.(*Entry)
	delete(s.items, entry.Key)
	s.bytes -= int64(entry.Size)

	if s.onRemoved != nil {
		s.onRemoved(*entry, reason)
	}
}

// estimateSize is the JSON-encoded length of data; 0 if it cannot be encoded.
// Only used for reporting, never for eviction.
func estimateSize(data any) int {
	b, err := json.Marshal(data)
	if err != nil {
		return 0
	}
	return len(b)
}
