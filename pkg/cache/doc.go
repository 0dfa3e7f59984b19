// Package cache implements Weft's tiered execution result cache.
//
// The cache has two tiers. The fast tier is a bounded in-memory map
// with a pluggable eviction strategy (LRU, LFU, or FIFO); the slow tier
// is an optional persistent stores.SlowStore backend such as SQLite or
// Badger. Values are serialized to JSON exactly once on Put and the
// same bytes flow to both tiers, so a value that cannot be serialized
// is rejected before any tier is touched.
//
// Lookups check the fast tier first. A slow-tier hit promotes the
// record back into the fast tier, preserving its creation time and TTL
// so promotion never extends an entry's lifetime. Expired entries
// behave as absent and are removed lazily on access; Sweep performs
// bulk expiry, and the Sweeper runs it on an interval for callers that
// want background cleanup.
//
// Entries may carry a per-entry TTL via PutTTL or inherit the
// cache-wide default. Expiry is always evaluated against the cache's
// own clock, which is injectable for tests.
//
// The slow tier is strictly best-effort: when a store operation fails,
// the cache logs the failure, records it in statistics, and degrades to
// fast-only operation rather than failing lookups. Sweep runs the
// store's health check while degraded and restores two-tier operation
// once the check passes.
//
// Usage:
//
//	store, _ := stores.NewSQLiteStore(stores.Config{Path: "cache.db"})
//	_ = store.Init(ctx)
//	_ = store.Migrate(ctx)
//
//	c, err := cache.NewTieredCache(cache.Config{
//		Capacity:   1024,
//		Eviction:   cache.EvictionLRU,
//		DefaultTTL: time.Hour,
//		Slow:       store,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	key := fingerprint.Key{ComponentID: "fetch-users", Digest: "9f2c41"}
//	c.Put(ctx, key, map[string]int{"rows": 42})
//	if data, ok := c.Get(ctx, key); ok {
//		fmt.Println(string(data))
//	}
package cache
