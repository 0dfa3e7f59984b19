package stores

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
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

// testRecord builds a populated record for the given component and digest
func testRecord(componentID, digest string, value []byte) *Record {
	now := time.Now().UTC().Truncate(time.Second)
	return &Record{
		Key:            componentID + ":" + digest,
		ComponentID:    componentID,
		Value:          value,
		CreatedAt:      now,
		LastAccessedAt: now,
		AccessCount:    1,
		SizeBytes:      int64(len(value)),
	}
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	// Check that tables exist by querying them
	tables := []string{"cache_blobs", "cache_index"}
	for _, table := range tables {
		query := "SELECT COUNT(*) FROM " + table
		var count int
		err := store.db.QueryRowContext(ctx, query).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

// TestRecordRoundTrip tests Put followed by Get
func TestRecordRoundTrip(t *testing.T) {
	store := setupTestStore(t)
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
	if retrieved.SizeBytes != rec.SizeBytes {
		t.Errorf("expected SizeBytes %d, got %d", rec.SizeBytes, retrieved.SizeBytes)
	}
	if retrieved.ExpiresAt != nil {
		t.Errorf("expected no expiry, got %v", retrieved.ExpiresAt)
	}
}

// TestGetAbsentKey tests that an absent key returns (nil, nil)
func TestGetAbsentKey(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	rec, err := store.Get(context.Background(), "no-such:key")
	if err != nil {
		t.Fatalf("unexpected error for absent key: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil record for absent key, got %+v", rec)
	}
}

// TestPutReplacesExisting tests that Put on the same key replaces the record
func TestPutReplacesExisting(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	rec := testRecord("render", "d1", []byte("first"))
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("failed to put record: %v", err)
	}

	rec2 := testRecord("render", "d1", []byte("second"))
	rec2.AccessCount = 7
	if err := store.Put(ctx, rec2); err != nil {
		t.Fatalf("failed to replace record: %v", err)
	}

	retrieved, err := store.Get(ctx, rec.Key)
	if err != nil {
		t.Fatalf("failed to get record: %v", err)
	}
	if string(retrieved.Value) != "second" {
		t.Errorf("expected replaced value, got %s", retrieved.Value)
	}
	if retrieved.AccessCount != 7 {
		t.Errorf("expected AccessCount 7, got %d", retrieved.AccessCount)
	}

	n, err := store.Len(ctx)
	if err != nil {
		t.Fatalf("failed to count records: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 record after replace, got %d", n)
	}
}

// TestExpiredRecordStillReturned tests that Get does not filter expired
// records; expiry is decided by the cache, not the store
func TestExpiredRecordStillReturned(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	rec := testRecord("compile", "old", []byte("stale"))
	expiredAt := time.Now().UTC().Add(-1 * time.Hour)
	rec.TTLSeconds = 60
	rec.ExpiresAt = &expiredAt

	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("failed to put record: %v", err)
	}

	retrieved, err := store.Get(ctx, rec.Key)
	if err != nil {
		t.Fatalf("failed to get record: %v", err)
	}
	if retrieved == nil {
		t.Fatal("expected expired record to still be returned")
	}
	if retrieved.ExpiresAt == nil {
		t.Fatal("expected ExpiresAt to survive the round trip")
	}
	if retrieved.TTLSeconds != 60 {
		t.Errorf("expected TTLSeconds 60, got %d", retrieved.TTLSeconds)
	}
}

// TestTouch tests access bookkeeping updates
func TestTouch(t *testing.T) {
	store := setupTestStore(t)
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

// TestDelete tests single-key deletion
func TestDelete(t *testing.T) {
	store := setupTestStore(t)
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

	// Index row must be gone too (cascade)
	var count int
	err = store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cache_index WHERE key = ?", rec.Key).Scan(&count)
	if err != nil {
		t.Fatalf("failed to count index rows: %v", err)
	}
	if count != 0 {
		t.Errorf("expected index row to cascade, found %d", count)
	}

	// Deleting an absent key is a no-op
	if err := store.Delete(ctx, rec.Key); err != nil {
		t.Errorf("unexpected error deleting absent key: %v", err)
	}
}

// TestDeleteByComponent tests component-scoped invalidation
func TestDeleteByComponent(t *testing.T) {
	store := setupTestStore(t)
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

// TestDeleteByPrefix tests prefix deletion without LIKE escaping issues
func TestDeleteByPrefix(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	for _, rec := range []*Record{
		testRecord("job_a", "d1", []byte("a")),
		testRecord("job_a", "d2", []byte("b")),
		testRecord("jobxa", "d1", []byte("c")),
	} {
		if err := store.Put(ctx, rec); err != nil {
			t.Fatalf("failed to put record: %v", err)
		}
	}

	// Underscore is a LIKE metacharacter; substr matching must treat it
	// literally and leave jobxa alone.
	removed, err := store.DeleteByPrefix(ctx, "job_a:")
	if err != nil {
		t.Fatalf("failed to delete by prefix: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}

	survivor, err := store.Get(ctx, "jobxa:d1")
	if err != nil || survivor == nil {
		t.Errorf("expected jobxa:d1 to survive, got rec=%v err=%v", survivor, err)
	}
}

// TestDeleteAll tests full invalidation
func TestDeleteAll(t *testing.T) {
	store := setupTestStore(t)
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

// TestPurgeExpired tests that only past-expiry records are purged
func TestPurgeExpired(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	fresh := testRecord("fetch-users", "fresh", []byte("a"))
	freshExpiry := now.Add(1 * time.Hour)
	fresh.TTLSeconds = 3600
	fresh.ExpiresAt = &freshExpiry

	stale := testRecord("fetch-users", "stale", []byte("b"))
	staleExpiry := now.Add(-1 * time.Hour)
	stale.TTLSeconds = 60
	stale.ExpiresAt = &staleExpiry

	forever := testRecord("fetch-users", "forever", []byte("c"))

	for _, rec := range []*Record{fresh, stale, forever} {
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

// TestReindex tests index reconstruction from surviving blobs
func TestReindex(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	rec := testRecord("fetch-users", "r1", []byte("payload"))
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("failed to put record: %v", err)
	}

	// Simulate a lost index row
	if _, err := store.db.ExecContext(ctx, "DELETE FROM cache_index WHERE key = ?", rec.Key); err != nil {
		t.Fatalf("failed to drop index row: %v", err)
	}

	// The blob is still readable with zero-value metadata
	orphan, err := store.Get(ctx, rec.Key)
	if err != nil {
		t.Fatalf("failed to get orphaned record: %v", err)
	}
	if orphan == nil {
		t.Fatal("expected orphaned blob to be readable")
	}
	if orphan.SizeBytes != int64(len(rec.Value)) {
		t.Errorf("expected fallback size %d, got %d", len(rec.Value), orphan.SizeBytes)
	}

	recreated, err := store.Reindex(ctx)
	if err != nil {
		t.Fatalf("failed to reindex: %v", err)
	}
	if recreated != 1 {
		t.Errorf("expected 1 recreated row, got %d", recreated)
	}

	// Reindex is idempotent
	recreated, err = store.Reindex(ctx)
	if err != nil {
		t.Fatalf("failed to reindex twice: %v", err)
	}
	if recreated != 0 {
		t.Errorf("expected 0 recreated rows on second pass, got %d", recreated)
	}

	restored, err := store.Get(ctx, rec.Key)
	if err != nil {
		t.Fatalf("failed to get restored record: %v", err)
	}
	if restored.CreatedAt.IsZero() {
		t.Error("expected recreated index row to carry a creation time")
	}
}

// TestTransactions tests transaction support
func TestTransactions(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("failed to begin transaction: %v", err)
	}

	query := `INSERT INTO cache_blobs (key, component_id, value) VALUES (?, ?, ?)`
	_, err = tx.ExecContext(ctx, query, "tx:1", "tx", []byte("v"))
	if err != nil {
		_ = tx.Rollback()
		t.Fatalf("failed to insert in transaction: %v", err)
	}

	if err := tx.Rollback(); err != nil {
		t.Fatalf("failed to rollback transaction: %v", err)
	}

	rec, err := store.Get(ctx, "tx:1")
	if err != nil {
		t.Fatalf("failed to get record: %v", err)
	}
	if rec != nil {
		t.Error("expected rolled back record to be absent")
	}
}

// TestMain sets up and tears down test environment
func TestMain(m *testing.M) {
	// Run tests
	code := m.Run()

	// Exit
	os.Exit(code)
}
