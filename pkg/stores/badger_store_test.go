package stores

import (
	"bytes"
	"context"
	"testing"
	"time"
)

// setupBadgerStore creates an in-memory Badger store for testing
func setupBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()

	store, err := NewBadgerStore(InMemoryBadgerConfig())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	return store
}

// TestBadgerLifecycle tests database initialization and closure
func TestBadgerLifecycle(t *testing.T) {
	store := setupBadgerStore(t)

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	if err := store.HealthCheck(ctx); err == nil {
		t.Error("expected health check to fail after close")
	}
}

// TestBadgerConfigValidation tests constructor validation
func TestBadgerConfigValidation(t *testing.T) {
	if _, err := NewBadgerStore(BadgerConfig{}); err == nil {
		t.Error("expected error for persistent store without path")
	}

	store, err := NewBadgerStore(BadgerConfig{InMemory: true})
	if err != nil {
		t.Fatalf("unexpected error for in-memory store: %v", err)
	}
	if store.cfg.GCDiscardRatio != 0.5 {
		t.Errorf("expected default GCDiscardRatio 0.5, got %v", store.cfg.GCDiscardRatio)
	}
}

// TestBadgerRoundTrip tests Put followed by Get
func TestBadgerRoundTrip(t *testing.T) {
	store := setupBadgerStore(t)
	defer store.Close()

	ctx := context.Background()
	rec := testRecord("fetch-users", "abc123", []byte(`{"rows":42}`))

	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("failed to put record: %v", err)
	}

	retrieved, err := store.Get(ctx, rec.Key)
	if err != nil {
		t.Fatalf("failed to get record: %v", err)
	}
	if retrieved == nil {
		t.Fatal("expected record, got nil")
	}

	if retrieved.Key != rec.Key {
		t.Errorf("expected Key %s, got %s", rec.Key, retrieved.Key)
	}
	if retrieved.ComponentID != rec.ComponentID {
		t.Errorf("expected ComponentID %s, got %s", rec.ComponentID, retrieved.ComponentID)
	}
	if !bytes.Equal(retrieved.Value, rec.Value) {
		t.Errorf("expected Value %s, got %s", rec.Value, retrieved.Value)
	}
	if retrieved.AccessCount != rec.AccessCount {
		t.Errorf("expected AccessCount %d, got %d", rec.AccessCount, retrieved.AccessCount)
	}
}

// TestBadgerGetAbsentKey tests that an absent key returns (nil, nil)
func TestBadgerGetAbsentKey(t *testing.T) {
	store := setupBadgerStore(t)
	defer store.Close()

	rec, err := store.Get(context.Background(), "no-such:key")
	if err != nil {
		t.Fatalf("unexpected error for absent key: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil record for absent key, got %+v", rec)
	}
}

// TestBadgerTTLRoundTrip tests that expiry metadata survives the round trip
func TestBadgerTTLRoundTrip(t *testing.T) {
	store := setupBadgerStore(t)
	defer store.Close()

	ctx := context.Background()
	rec := testRecord("compile", "ttl1", []byte("v"))
	expiresAt := time.Now().UTC().Add(1 * time.Hour)
	rec.TTLSeconds = 3600
	rec.ExpiresAt = &expiresAt

	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("failed to put record: %v", err)
	}

	retrieved, err := store.Get(ctx, rec.Key)
	if err != nil {
		t.Fatalf("failed to get record: %v", err)
	}
	if retrieved == nil {
		t.Fatal("expected record, got nil")
	}
	if retrieved.TTLSeconds != 3600 {
		t.Errorf("expected TTLSeconds 3600, got %d", retrieved.TTLSeconds)
	}
	if retrieved.ExpiresAt == nil || !retrieved.ExpiresAt.Equal(expiresAt) {
		t.Errorf("expected ExpiresAt %v, got %v", expiresAt, retrieved.ExpiresAt)
	}
}

// TestBadgerTouch tests access bookkeeping updates
func TestBadgerTouch(t *testing.T) {
	store := setupBadgerStore(t)
	defer store.Close()

	ctx := context.Background()
	rec := testRecord("fetch-users", "t1", []byte("v"))
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("failed to put record: %v", err)
	}

	later := rec.LastAccessedAt.Add(10 * time.Second)
	if err := store.Touch(ctx, rec.Key, later, 5); err != nil {
		t.Fatalf("failed to touch record: %v", err)
	}

	retrieved, err := store.Get(ctx, rec.Key)
	if err != nil {
		t.Fatalf("failed to get record: %v", err)
	}
	if retrieved.AccessCount != 5 {
		t.Errorf("expected AccessCount 5, got %d", retrieved.AccessCount)
	}
	if !retrieved.LastAccessedAt.Equal(later) {
		t.Errorf("expected LastAccessedAt %v, got %v", later, retrieved.LastAccessedAt)
	}

	// Touching an absent key is not an error
	if err := store.Touch(ctx, "no-such:key", later, 1); err != nil {
		t.Errorf("unexpected error touching absent key: %v", err)
	}
}

// TestBadgerDelete tests single-key deletion
func TestBadgerDelete(t *testing.T) {
	store := setupBadgerStore(t)
	defer store.Close()

	ctx := context.Background()
	rec := testRecord("render", "gone", []byte("v"))
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("failed to put record: %v", err)
	}

	if err := store.Delete(ctx, rec.Key); err != nil {
		t.Fatalf("failed to delete record: %v", err)
	}

	retrieved, err := store.Get(ctx, rec.Key)
	if err != nil {
		t.Fatalf("failed to get record: %v", err)
	}
	if retrieved != nil {
		t.Error("expected nil after delete")
	}

	// Deleting an absent key is a no-op
	if err := store.Delete(ctx, rec.Key); err != nil {
		t.Errorf("unexpected error deleting absent key: %v", err)
	}
}

// TestBadgerDeleteByComponent tests component-scoped invalidation
func TestBadgerDeleteByComponent(t *testing.T) {
	store := setupBadgerStore(t)
	defer store.Close()

	ctx := context.Background()
	for _, rec := range []*Record{
		testRecord("fetch-users", "d1", []byte("a")),
		testRecord("fetch-users", "d2", []byte("b")),
		testRecord("render", "d1", []byte("c")),
	} {
		if err := store.Put(ctx, rec); err != nil {
			t.Fatalf("failed to put record: %v", err)
		}
	}

	removed, err := store.DeleteByComponent(ctx, "fetch-users")
	if err != nil {
		t.Fatalf("failed to delete by component: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}

	n, err := store.Len(ctx)
	if err != nil {
		t.Fatalf("failed to count records: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 surviving record, got %d", n)
	}

	survivor, err := store.Get(ctx, "render:d1")
	if err != nil || survivor == nil {
		t.Errorf("expected render:d1 to survive, got rec=%v err=%v", survivor, err)
	}
}

// TestBadgerDeleteAll tests full invalidation
func TestBadgerDeleteAll(t *testing.T) {
	store := setupBadgerStore(t)
	defer store.Close()

	ctx := context.Background()
	for _, rec := range []*Record{
		testRecord("a", "1", []byte("x")),
		testRecord("b", "2", []byte("y")),
	} {
		if err := store.Put(ctx, rec); err != nil {
			t.Fatalf("failed to put record: %v", err)
		}
	}

	removed, err := store.DeleteAll(ctx)
	if err != nil {
		t.Fatalf("failed to delete all: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}

	n, err := store.Len(ctx)
	if err != nil {
		t.Fatalf("failed to count records: %v", err)
	}
	if n != 0 {
		t.Errorf("expected empty store, got %d records", n)
	}
}

// TestBadgerPurgeExpired tests that purge catches meta rows whose expiry
// passed without native TTL reclaiming them
func TestBadgerPurgeExpired(t *testing.T) {
	store := setupBadgerStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	// TTLSeconds 0 keeps native TTL off, so only the meta carries expiry.
	stale := testRecord("fetch-users", "stale", []byte("b"))
	staleExpiry := now.Add(-1 * time.Hour)
	stale.ExpiresAt = &staleExpiry

	fresh := testRecord("fetch-users", "fresh", []byte("a"))
	freshExpiry := now.Add(1 * time.Hour)
	fresh.ExpiresAt = &freshExpiry

	forever := testRecord("fetch-users", "forever", []byte("c"))

	for _, rec := range []*Record{stale, fresh, forever} {
		if err := store.Put(ctx, rec); err != nil {
			t.Fatalf("failed to put record: %v", err)
		}
	}

	purged, err := store.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("failed to purge: %v", err)
	}
	if purged != 1 {
		t.Errorf("expected 1 purged, got %d", purged)
	}

	gone, err := store.Get(ctx, stale.Key)
	if err != nil {
		t.Fatalf("failed to get record: %v", err)
	}
	if gone != nil {
		t.Error("expected stale record to be purged")
	}

	for _, key := range []string{fresh.Key, forever.Key} {
		kept, err := store.Get(ctx, key)
		if err != nil || kept == nil {
			t.Errorf("expected %s to survive purge, got rec=%v err=%v", key, kept, err)
		}
	}
}

// TestBadgerReindex tests index reconstruction from surviving blobs
func TestBadgerReindex(t *testing.T) {
	store := setupBadgerStore(t)
	defer store.Close()

	ctx := context.Background()
	rec := testRecord("fetch-users", "r1", []byte("payload"))
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("failed to put record: %v", err)
	}

	// Simulate a lost meta entry
	if err := store.db.DropPrefix([]byte(badgerMetaPrefix + rec.Key)); err != nil {
		t.Fatalf("failed to drop meta entry: %v", err)
	}

	// The blob is still readable with synthesized metadata
	orphan, err := store.Get(ctx, rec.Key)
	if err != nil {
		t.Fatalf("failed to get orphaned record: %v", err)
	}
	if orphan == nil {
		t.Fatal("expected orphaned blob to be readable")
	}
	if orphan.ComponentID != "fetch-users" {
		t.Errorf("expected synthesized ComponentID fetch-users, got %s", orphan.ComponentID)
	}
	if orphan.SizeBytes != int64(len(rec.Value)) {
		t.Errorf("expected synthesized size %d, got %d", len(rec.Value), orphan.SizeBytes)
	}

	recreated, err := store.Reindex(ctx)
	if err != nil {
		t.Fatalf("failed to reindex: %v", err)
	}
	if recreated != 1 {
		t.Errorf("expected 1 recreated entry, got %d", recreated)
	}

	// Reindex is idempotent
	recreated, err = store.Reindex(ctx)
	if err != nil {
		t.Fatalf("failed to reindex twice: %v", err)
	}
	if recreated != 0 {
		t.Errorf("expected 0 recreated entries on second pass, got %d", recreated)
	}
}

// TestGCRunnerLifecycle tests GC runner construction and shutdown
func TestGCRunnerLifecycle(t *testing.T) {
	store := setupBadgerStore(t)
	defer store.Close()

	if _, err := NewGCRunner(nil, time.Second); err == nil {
		t.Error("expected error for nil store")
	}
	if _, err := NewGCRunner(store, 0); err == nil {
		t.Error("expected error for non-positive interval")
	}

	runner, err := NewGCRunner(store, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("failed to create GC runner: %v", err)
	}

	runner.Start()
	time.Sleep(25 * time.Millisecond)
	runner.Stop()
	runner.Stop() // stopping an already stopped runner is a no-op
}
