package stores_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/openweft/weft/pkg/stores"
)

// ExampleNewSQLiteStore demonstrates creating and initializing a new SQLite store.
func ExampleNewSQLiteStore() {
	// Create store configuration
	store, err := stores.NewSQLiteStore(stores.Config{
		Path:            ":memory:", // Use in-memory database for example
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		log.Fatal(err)
	}

	// Initialize the database connection
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}

	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	defer store.Close()

	// Store is now ready to use
	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleSQLiteStore_Put demonstrates storing and retrieving a cache record.
func ExampleSQLiteStore_Put() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	now := time.Now().UTC()
	rec := &stores.Record{
		Key:            "fetch-users:9f2c41",
		ComponentID:    "fetch-users",
		Value:          []byte(`{"rows":42}`),
		CreatedAt:      now,
		LastAccessedAt: now,
		AccessCount:    1,
		SizeBytes:      11,
	}

	if err := store.Put(ctx, rec); err != nil {
		log.Fatal(err)
	}

	// Retrieve the record
	retrieved, err := store.Get(ctx, "fetch-users:9f2c41")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Component: %s, Value: %s\n", retrieved.ComponentID, retrieved.Value)
	// Output: Component: fetch-users, Value: {"rows":42}
}

// ExampleSQLiteStore_DeleteByComponent demonstrates component-scoped invalidation.
func ExampleSQLiteStore_DeleteByComponent() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	now := time.Now().UTC()
	for _, key := range []string{"fetch-users:d1", "fetch-users:d2", "render:d1"} {
		rec := &stores.Record{
			Key:            key,
			ComponentID:    key[:len(key)-3],
			Value:          []byte("result"),
			CreatedAt:      now,
			LastAccessedAt: now,
			AccessCount:    1,
			SizeBytes:      6,
		}
		if err := store.Put(ctx, rec); err != nil {
			log.Fatal(err)
		}
	}

	// Drop every cached result the fetch-users component produced
	removed, err := store.DeleteByComponent(ctx, "fetch-users")
	if err != nil {
		log.Fatal(err)
	}

	remaining, err := store.Len(ctx)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Removed: %d, Remaining: %d\n", removed, remaining)
	// Output: Removed: 2, Remaining: 1
}

// ExampleNewBadgerStore demonstrates the BadgerDB backend with an
// in-memory database.
func ExampleNewBadgerStore() {
	store, err := stores.NewBadgerStore(stores.InMemoryBadgerConfig())
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	now := time.Now().UTC()
	rec := &stores.Record{
		Key:            "compile:77ab10",
		ComponentID:    "compile",
		Value:          []byte("binary"),
		CreatedAt:      now,
		LastAccessedAt: now,
		AccessCount:    1,
		SizeBytes:      6,
	}

	if err := store.Put(ctx, rec); err != nil {
		log.Fatal(err)
	}

	retrieved, err := store.Get(ctx, "compile:77ab10")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Component: %s, Size: %d\n", retrieved.ComponentID, retrieved.SizeBytes)
	// Output: Component: compile, Size: 6
}
