package cache_test

import (
	"context"
	"fmt"
	"time"

	"github.com/openweft/weft/pkg/cache"
	"github.com/openweft/weft/pkg/fingerprint"
)

// ExampleNewTieredCache demonstrates basic cache usage without a
// persistent slow tier.
func ExampleNewTieredCache() {
	ctx := context.Background()

	c, err := cache.NewTieredCache(cache.Config{
		Capacity: 128,
		Eviction: cache.EvictionLRU,
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	key := fingerprint.Key{ComponentID: "fetch-users", Digest: "9f2c41"}
	c.Put(ctx, key, map[string]int{"rows": 42})

	if data, ok := c.Get(ctx, key); ok {
		fmt.Printf("Cached: %s\n", data)
	}

	// Output: Cached: {"rows":42}
}

// ExampleTieredCache_PutTTL demonstrates storing an entry with an
// explicit time-to-live.
func ExampleTieredCache_PutTTL() {
	ctx := context.Background()

	c, _ := cache.NewTieredCache(cache.Config{Capacity: 128})

	key := fingerprint.Key{ComponentID: "render", Digest: "77ab10"}
	c.PutTTL(ctx, key, "report.html", 30*time.Minute)

	_, ok := c.Get(ctx, key)
	fmt.Printf("Live: %v\n", ok)

	// Output: Live: true
}

// ExampleTieredCache_Stats demonstrates the cache statistics snapshot.
func ExampleTieredCache_Stats() {
	ctx := context.Background()

	c, _ := cache.NewTieredCache(cache.Config{Capacity: 128})

	key := fingerprint.Key{ComponentID: "compile", Digest: "3e8f02"}
	c.Put(ctx, key, []string{"a.o", "b.o"})

	c.Get(ctx, key) // fast hit
	c.Get(ctx, fingerprint.Key{ComponentID: "compile", Digest: "ffff"}) // miss

	stats := c.Stats()
	fmt.Printf("Requests: %d\n", stats.Requests)
	fmt.Printf("Fast hits: %d\n", stats.FastHits)
	fmt.Printf("Misses: %d\n", stats.Misses)
	fmt.Printf("Hit rate: %.2f\n", stats.HitRate())

	// Output:
	// Requests: 2
	// Fast hits: 1
	// Misses: 1
	// Hit rate: 0.50
}

// ExampleTieredCache_InvalidateComponent demonstrates dropping all
// cached results for one component.
func ExampleTieredCache_InvalidateComponent() {
	ctx := context.Background()

	c, _ := cache.NewTieredCache(cache.Config{Capacity: 128})

	c.Put(ctx, fingerprint.Key{ComponentID: "fetch-users", Digest: "d1"}, "v1")
	c.Put(ctx, fingerprint.Key{ComponentID: "fetch-users", Digest: "d2"}, "v2")
	c.Put(ctx, fingerprint.Key{ComponentID: "render", Digest: "d3"}, "v3")

	removed, _ := c.InvalidateComponent(ctx, "fetch-users")
	fmt.Printf("Removed: %d, Remaining: %d\n", removed, c.Len())

	// Output: Removed: 2, Remaining: 1
}
