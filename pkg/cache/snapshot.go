// Copyright 2026 QuizForge. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package cache

import (
	"container/list"
	"context"
	"encoding/json"
)

// Snapshot returns copies of all entries, least recently used first, so that
// restoring them in order reproduces the LRU order.
func (s *Store) Snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, s.lru.Len())
	for elem := s.lru.Back(); elem != nil; elem = elem.Prev() {
		out = append(out, *elem.Value.(*Entry))
	}
	return out
}

// Restore loads entries, keeping their timestamps and access counters.
// Expired entries are restored too: they still serve stale reads. Each entry
// takes its place in the LRU order by LastAccessedAt (clamped to now), so
// live and restored entries are evicted oldest access first. Existing keys
// are overwritten and capacity is enforced as for Set. It returns the number
// of entries loaded.
func (s *Store) Restore(entries []Entry) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capacity == 0 {
		return 0
	}

	now := s.clock.Now()
	loaded := 0
	for i := range entries {
		entry := entries[i]
		if entry.Key == "" || entry.ExpiresAt.Before(entry.CreatedAt) {
			continue
		}
		if elem, ok := s.items[entry.Key]; ok {
			s.removeElement(elem, RemovedDeleted)
		}
		if entry.Size == 0 {
			entry.Size = estimateSize(entry.Data)
		}
		if entry.LastAccessedAt.After(now) {
			entry.LastAccessedAt = now
		}
		s.items[entry.Key] = s.insertByAccess(&entry)
		s.bytes += int64(entry.Size)
		loaded++

		for s.lru.Len() > s.capacity {
			s.evictOldest()
		}
	}
	s.metrics.CacheEntries.Set(float64(s.lru.Len()))
	return loaded
}

// insertByAccess links entry so the list stays ordered by LastAccessedAt,
// newest at the front. Caller holds mu.
func (s *Store) insertByAccess(entry *Entry) *list.Element {
	if front := s.lru.Front(); front == nil || !front.Value.(*Entry).LastAccessedAt.After(entry.LastAccessedAt) {
		return s.lru.PushFront(entry)
	}
	elem := s.lru.Back()
	for !elem.Value.(*Entry).LastAccessedAt.After(entry.LastAccessedAt) {
		elem = elem.Prev()
	}
	return s.lru.InsertAfter(entry, elem)
}

// Persister stores and loads cache images. The sqlite subpackage provides
// the on-disk implementation.
type Persister interface {
	Save(ctx context.Context, entries []Entry) error
	Load(ctx context.Context) ([]Entry, error)
}

// SaveTo writes the current image through p.
func (s *Store) SaveTo(ctx context.Context, p Persister) error {
	return p.Save(ctx, s.Snapshot())
}

// LoadFrom restores the image held by p. Data comes back as json.RawMessage
// and is decoded on first typed read (see GetAs).
func (s *Store) LoadFrom(ctx context.Context, p Persister) (int, error) {
	entries, err := p.Load(ctx)
	if err != nil {
		return 0, err
	}
	return s.Restore(entries), nil
}

// EncodeData marshals an entry's data for persistence.
func EncodeData(e Entry) (json.RawMessage, error) {
	if raw, ok := e.Data.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(e.Data)
}
