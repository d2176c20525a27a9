// Package cache tests
package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func newTestStore(capacity int) (*Store, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC))
	return New(capacity, WithClock(clock)), clock
}

func TestStoreSetGet(t *testing.T) {
	store, _ := newTestStore(5)

	store.Set("key1", 100, time.Hour)
	val, ok := store.Get("key1")

	if !ok {
		t.Fatal("Key not found")
	}

	if val != 100 {
		t.Errorf("Expected 100, got %v", val)
	}
}

func TestStoreTTL(t *testing.T) {
	store, clock := newTestStore(5)

	store.Set("key1", 100, time.Hour)

	clock.Advance(59 * time.Minute)
	if _, ok := store.Get("key1"); !ok {
		t.Error("Key should exist before TTL elapses")
	}

	clock.Advance(time.Minute)
	if _, ok := store.Get("key1"); ok {
		t.Error("Key should be missing once TTL elapsed")
	}
	if store.Has("key1") {
		t.Error("Has should be false for expired entry")
	}

	// stale read still returns the last known value
	val, ok := store.GetStale("key1")
	if !ok || val != 100 {
		t.Errorf("Expected stale value 100, got %v (ok=%v)", val, ok)
	}

	stats := store.Stats()
	if stats.StaleHits != 1 {
		t.Errorf("Expected 1 stale hit, got %d", stats.StaleHits)
	}
}

func TestStoreNonPositiveTTLIsNotCached(t *testing.T) {
	store, _ := newTestStore(5)

	store.Set("zero", 1, 0)
	store.Set("negative", 1, -time.Second)

	if store.Len() != 0 {
		t.Errorf("Expected no entries, got %d", store.Len())
	}
}

func TestStoreZeroCapacityDisablesCaching(t *testing.T) {
	store, _ := newTestStore(0)

	store.Set("key1", 1, time.Hour)

	if _, ok := store.GetStale("key1"); ok {
		t.Error("Zero-capacity store must not hold entries")
	}
	if n := store.Restore([]Entry{{Key: "x", Data: 1}}); n != 0 {
		t.Errorf("Restore into zero-capacity store loaded %d entries", n)
	}
}

func TestStoreLRU(t *testing.T) {
	store, clock := newTestStore(3)

	store.Set("key1", 1, time.Hour)
	clock.Advance(time.Second)
	store.Set("key2", 2, time.Hour)
	clock.Advance(time.Second)
	store.Set("key3", 3, time.Hour)
	clock.Advance(time.Second)

	// key1 becomes the most recently used
	if _, ok := store.Get("key1"); !ok {
		t.Fatal("key1 should exist")
	}
	clock.Advance(time.Second)

	// Add 4th item, should evict key2 (oldest access)
	store.Set("key4", 4, time.Hour)

	if store.Len() != 3 {
		t.Errorf("Expected 3 entries, got %d", store.Len())
	}
	if _, ok := store.GetStale("key2"); ok {
		t.Error("key2 should have been evicted")
	}
	for _, k := range []string{"key1", "key3", "key4"} {
		if _, ok := store.Get(k); !ok {
			t.Errorf("%s should exist", k)
		}
	}
	if store.Stats().Evictions != 1 {
		t.Errorf("Expected exactly 1 eviction, got %d", store.Stats().Evictions)
	}
}

func TestStoreCapacityInvariant(t *testing.T) {
	store, clock := newTestStore(4)

	for i := 0; i < 50; i++ {
		store.Set("key"+strconv.Itoa(i), i, time.Hour)
		if i%3 == 0 {
			store.Get("key" + strconv.Itoa(i/2))
		}
		clock.Advance(time.Millisecond)

		if store.Len() > 4 {
			t.Fatalf("size %d exceeds capacity after set %d", store.Len(), i)
		}
	}
}

func TestStoreEvictsOldestLastAccessed(t *testing.T) {
	var victims []string
	clock := clockwork.NewFakeClock()
	store := New(3, WithClock(clock), WithOnRemoved(func(e Entry, reason RemovalReason) {
		if reason == RemovedEvicted {
			victims = append(victims, e.Key)
		}
	}))

	store.Set("a", 1, time.Hour)
	clock.Advance(time.Second)
	store.Set("b", 2, time.Hour)
	clock.Advance(time.Second)
	store.Set("c", 3, time.Hour)
	clock.Advance(time.Second)
	store.GetStale("a")
	clock.Advance(time.Second)
	store.Get("b")
	clock.Advance(time.Second)

	var oldest Entry
	for _, k := range store.Keys() {
		e, _ := store.Peek(k)
		if oldest.Key == "" || e.LastAccessedAt.Before(oldest.LastAccessedAt) {
			oldest = e
		}
	}

	store.Set("d", 4, time.Hour)

	if len(victims) != 1 || victims[0] != oldest.Key {
		t.Errorf("Expected victim %q, got %v", oldest.Key, victims)
	}
}

func TestStoreOverwrite(t *testing.T) {
	store, clock := newTestStore(2)

	store.Set("key1", "old", time.Minute)
	clock.Advance(2 * time.Minute)
	store.Set("key1", "new", time.Hour)

	val, ok := store.Get("key1")
	if !ok || val != "new" {
		t.Errorf("Expected fresh overwritten value, got %v (ok=%v)", val, ok)
	}
	if store.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", store.Len())
	}
}

func TestStoreAccessMetadata(t *testing.T) {
	store, clock := newTestStore(2)

	store.Set("key1", 1, time.Hour)
	created, _ := store.Peek("key1")

	clock.Advance(time.Minute)
	store.Get("key1")
	store.Get("key1")
	store.Has("key1")

	e, _ := store.Peek("key1")
	if e.AccessCount != 2 {
		t.Errorf("Expected access count 2, got %d", e.AccessCount)
	}
	if !e.LastAccessedAt.Equal(created.CreatedAt.Add(time.Minute)) {
		t.Errorf("LastAccessedAt not updated: %v", e.LastAccessedAt)
	}
	if e.ExpiresAt.Before(e.CreatedAt) {
		t.Error("ExpiresAt must not precede CreatedAt")
	}
}

func TestStoreDelete(t *testing.T) {
	store, _ := newTestStore(5)

	store.Set("key1", 100, time.Hour)
	if !store.Delete("key1") {
		t.Error("Delete should report the key was present")
	}
	if store.Delete("key1") {
		t.Error("Second delete should report absence")
	}
	if _, ok := store.GetStale("key1"); ok {
		t.Error("Key should have been deleted")
	}
}

func TestStoreSweepExpired(t *testing.T) {
	store, clock := newTestStore(5)

	store.Set("short", 1, time.Minute)
	store.Set("long", 2, time.Hour)
	clock.Advance(2 * time.Minute)

	if n := store.SweepExpired(); n != 1 {
		t.Errorf("Expected 1 swept entry, got %d", n)
	}
	if _, ok := store.GetStale("short"); ok {
		t.Error("short should be gone after sweep")
	}
	if _, ok := store.Get("long"); !ok {
		t.Error("long should survive sweep")
	}
	if store.Stats().Expirations != 1 {
		t.Errorf("Expected 1 expiration, got %d", store.Stats().Expirations)
	}
}

func TestStoreRunSweepsOnTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := New(5, WithClock(clock), WithSweepInterval(time.Minute))
	store.Set("key1", 1, 30*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.Run(ctx)
		close(done)
	}()

	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Minute)

	deadline := time.Now().Add(2 * time.Second)
	for store.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if store.Len() != 0 {
		t.Error("Run should have swept the expired entry")
	}

	cancel()
	<-done
}

func TestStoreStats(t *testing.T) {
	store, _ := newTestStore(5)

	store.Get("missing")
	store.Set("key1", "abc", time.Hour)
	store.Get("key1")

	stats := store.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Expected 1 hit / 1 miss, got %d / %d", stats.Hits, stats.Misses)
	}
	if stats.HitRate() != 0.5 {
		t.Errorf("Expected hit rate 0.5, got %f", stats.HitRate())
	}
	// "abc" encodes as 5 JSON bytes
	if stats.EstimatedBytes != 5 {
		t.Errorf("Expected 5 estimated bytes, got %d", stats.EstimatedBytes)
	}

	store.Delete("key1")
	if store.Stats().EstimatedBytes != 0 {
		t.Errorf("Expected 0 bytes after delete, got %d", store.Stats().EstimatedBytes)
	}
}

func TestStoreClear(t *testing.T) {
	store, _ := newTestStore(5)

	store.Set("key1", 100, time.Hour)
	store.Get("key1")
	store.Clear()

	if store.Len() != 0 {
		t.Errorf("Expected length 0 after clear, got %d", store.Len())
	}
	if store.Stats().Hits != 0 {
		t.Error("Clear should reset counters")
	}
}

func TestStoreCountPrefix(t *testing.T) {
	store, _ := newTestStore(5)

	store.Set(NewKey("get_questions").With("subject", "Maths").String(), 1, time.Hour)
	store.Set(NewKey("get_questions").With("subject", "English").String(), 1, time.Hour)
	store.Set(NewKey("get_subjects").String(), 1, time.Hour)

	if n := store.CountPrefix("get_questions"); n != 2 {
		t.Errorf("Expected 2 question entries, got %d", n)
	}
}

func TestStoreSnapshotRestore(t *testing.T) {
	src, clock := newTestStore(3)
	src.Set("a", []string{"x"}, time.Hour)
	clock.Advance(time.Second)
	src.Set("b", []string{"y"}, time.Minute)
	clock.Advance(2 * time.Minute)

	entries := src.Snapshot()
	if len(entries) != 2 || entries[0].Key != "a" {
		t.Fatalf("Snapshot should list LRU first, got %+v", entries)
	}

	// simulate a persisted round trip: data comes back as raw JSON
	for i := range entries {
		raw, err := EncodeData(entries[i])
		if err != nil {
			t.Fatal(err)
		}
		entries[i].Data = json.RawMessage(raw)
	}

	dst, _ := newTestStore(3)
	if n := dst.Restore(entries); n != 2 {
		t.Fatalf("Expected 2 restored entries, got %d", n)
	}

	got, ok := GetStaleAs[[]string](dst, "b")
	if !ok || len(got) != 1 || got[0] != "y" {
		t.Errorf("Expected restored stale value [y], got %v (ok=%v)", got, ok)
	}
}

func TestStoreRestoreKeepsAccessOrder(t *testing.T) {
	store, clock := newTestStore(2)
	now := clock.Now()

	store.Set("fresh", 1, time.Hour)
	store.Restore([]Entry{{
		Key:            "old",
		Data:           2,
		CreatedAt:      now.Add(-240 * time.Hour),
		ExpiresAt:      now.Add(-239 * time.Hour),
		LastAccessedAt: now.Add(-240 * time.Hour),
	}})
	store.Set("new", 3, time.Hour)

	if _, ok := store.Peek("old"); ok {
		t.Error("the restored entry with the oldest access should be evicted")
	}
	for _, key := range []string{"fresh", "new"} {
		if _, ok := store.Peek(key); !ok {
			t.Errorf("%s should survive eviction", key)
		}
	}
}

func TestStoreRestoreEvictsByAccessTime(t *testing.T) {
	store, clock := newTestStore(2)
	now := clock.Now()

	entry := func(key string, age time.Duration) Entry {
		return Entry{
			Key:            key,
			Data:           key,
			CreatedAt:      now.Add(-age),
			ExpiresAt:      now.Add(time.Hour),
			LastAccessedAt: now.Add(-age),
		}
	}
	// snapshot order does not match access order
	n := store.Restore([]Entry{entry("b", time.Minute), entry("a", time.Hour), entry("c", time.Second)})
	if n != 3 {
		t.Fatalf("Expected 3 loaded entries, got %d", n)
	}

	if _, ok := store.Peek("a"); ok {
		t.Error("a has the oldest access and should be evicted")
	}
	if got := store.Keys(); len(got) != 2 {
		t.Errorf("Expected 2 entries, got %v", got)
	}

	// a future access time is clamped, so live writes still rank newer
	store.Restore([]Entry{entry("future", -time.Hour)})
	store.Set("live", 1, time.Hour)
	if _, ok := store.Peek("live"); !ok {
		t.Error("live entry should survive")
	}
	if _, ok := store.Peek("future"); !ok {
		t.Error("clamped entry accessed now should survive over older ones")
	}
}

func TestStoreSweepKeepsEntryExpiringNow(t *testing.T) {
	store, clock := newTestStore(5)

	store.Set("edge", 1, time.Minute)
	clock.Advance(time.Minute)

	if _, ok := store.Get("edge"); ok {
		t.Error("Get should miss once the TTL has elapsed")
	}
	if n := store.SweepExpired(); n != 0 {
		t.Errorf("Expected no swept entries at the expiry instant, got %d", n)
	}

	clock.Advance(time.Nanosecond)
	if n := store.SweepExpired(); n != 1 {
		t.Errorf("Expected 1 swept entry after expiry, got %d", n)
	}
}

func TestGetAsWrongType(t *testing.T) {
	store, _ := newTestStore(2)
	store.Set("key1", 42, time.Hour)

	if _, ok := GetAs[string](store, "key1"); ok {
		t.Error("GetAs should miss on type mismatch")
	}
	if v, ok := GetAs[int](store, "key1"); !ok || v != 42 {
		t.Errorf("Expected 42, got %v", v)
	}
}
