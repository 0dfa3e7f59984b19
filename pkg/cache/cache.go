package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openweft/weft/pkg/fingerprint"
	"github.com/openweft/weft/pkg/stores"
	"github.com/openweft/weft/pkg/telemetry"
)

// Config holds tiered cache configuration
type Config struct {
	// Capacity is the maximum number of fast-tier entries. Must be positive.
	Capacity int

	// MaxBytes is the optional fast-tier payload budget in bytes.
	// Zero means no byte limit.
	MaxBytes int64

	// Eviction selects the fast-tier eviction strategy: "lru", "lfu",
	// or "fifo". Empty selects LRU.
	Eviction string

	// DefaultTTL applies to entries stored via Put. Zero means entries
	// do not expire unless PutTTL sets an explicit TTL.
	DefaultTTL time.Duration

	// Slow is the optional persistent tier. Nil disables the slow tier.
	Slow stores.SlowStore

	// Logger receives cache log events. The zero value is silent.
	Logger zerolog.Logger

	// Metrics receives cache and store instrumentation. May be nil.
	Metrics *telemetry.Metrics

	// Clock returns the current time for TTL decisions. Nil uses
	// time.Now. Tests inject a fake clock here.
	Clock func() time.Time
}

// TieredCache is a two-tier execution result cache. The fast tier is a
// bounded in-memory map with pluggable eviction; the slow tier is an
// optional persistent SlowStore. Values are serialized to JSON once on
// Put and the same bytes are handed to both tiers.
//
// A single mutex guards all state, including slow-tier calls, so
// concurrent operations on the same key cannot interleave between
// tiers. When a slow-tier operation fails the cache degrades to
// fast-only operation; Sweep checks the store's health and restores
// two-tier operation once it recovers.
type TieredCache struct {
	mu       sync.Mutex
	cfg      Config
	entries  map[string]*entry
	strategy Strategy
	bytes    int64
	stats    Statistics
	degraded bool
	clock    func() time.Time
	logger   zerolog.Logger
	metrics  *telemetry.Metrics
}

// NewTieredCache creates a tiered cache from the given configuration.
func NewTieredCache(cfg Config) (*TieredCache, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("fast tier capacity must be positive, got %d", cfg.Capacity)
	}
	if cfg.MaxBytes < 0 {
		return nil, fmt.Errorf("fast tier byte budget must not be negative, got %d", cfg.MaxBytes)
	}
	if cfg.DefaultTTL < 0 {
		return nil, fmt.Errorf("default TTL must not be negative, got %s", cfg.DefaultTTL)
	}

	strategy, err := NewStrategy(cfg.Eviction)
	if err != nil {
		return nil, err
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &TieredCache{
		cfg:      cfg,
		entries:  make(map[string]*entry),
		strategy: strategy,
		clock:    clock,
		logger:   cfg.Logger.With().Str("component", "cache").Logger(),
		metrics:  cfg.Metrics,
	}, nil
}

// Tier names reported by GetWithTier.
const (
	TierFast = "fast"
	TierSlow = "slow"
)

// Get returns the cached bytes for the given key. The second return
// value reports whether a live entry was found in either tier. Expired
// entries behave as absent and are removed lazily. A slow-tier hit
// promotes the record into the fast tier, preserving its creation time
// and TTL. The returned slice is shared; callers must treat it as
// read-only.
func (c *TieredCache) Get(ctx context.Context, key fingerprint.Key) ([]byte, bool) {
	value, _, ok := c.GetWithTier(ctx, key)
	return value, ok
}

// GetWithTier behaves like Get and additionally reports which tier
// served the hit, TierFast or TierSlow. The tier is empty on a miss.
func (c *TieredCache) GetWithTier(ctx context.Context, key fingerprint.Key) ([]byte, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Requests++
	now := c.clock()
	ks := key.String()

	if e, ok := c.entries[ks]; ok {
		if e.expired(now) {
			c.removeLocked(e)
			c.stats.Expirations++
			c.recordEviction("expired")
			c.syncGauges()
		} else {
			e.lastAccessedAt = now
			e.accessCount++
			c.strategy.Touch(e)
			c.stats.FastHits++
			c.recordRequest("fast_hit")
			return e.value, TierFast, true
		}
	}

	if c.cfg.Slow != nil && !c.degraded {
		start := time.Now()
		rec, err := c.cfg.Slow.Get(ctx, ks)
		c.recordStoreCall("get", start)
		switch {
		case err != nil:
			c.slowFailureLocked("get", err)
		case rec != nil:
			if recordExpired(rec, now) {
				start := time.Now()
				err := c.cfg.Slow.Delete(ctx, ks)
				c.recordStoreCall("delete", start)
				if err != nil {
					c.slowFailureLocked("delete", err)
				} else {
					c.stats.Expirations++
				}
			} else {
				c.promoteLocked(rec, now)
				start := time.Now()
				err := c.cfg.Slow.Touch(ctx, ks, now, rec.AccessCount+1)
				c.recordStoreCall("touch", start)
				if err != nil {
					c.slowFailureLocked("touch", err)
				}
				c.stats.SlowHits++
				c.recordRequest("slow_hit")
				c.syncGauges()
				return rec.Value, TierSlow, true
			}
		}
	}

	c.stats.Misses++
	c.recordRequest("miss")
	return nil, "", false
}

// Put stores a value under the given key with the cache-wide default
// TTL. It returns false if the value cannot be serialized, in which
// case no tier is modified.
func (c *TieredCache) Put(ctx context.Context, key fingerprint.Key, value any) bool {
	return c.PutTTL(ctx, key, value, c.cfg.DefaultTTL)
}

// PutTTL stores a value under the given key with an explicit TTL. A
// zero TTL means the entry does not expire. The value is serialized to
// JSON before either tier is touched; a serialization failure returns
// false and leaves both tiers unchanged. Storing an existing key
// replaces the value and restarts its TTL window. A slow-tier write
// failure degrades the cache but never unwinds the fast-tier write.
func (c *TieredCache) PutTTL(ctx context.Context, key fingerprint.Key, value any, ttl time.Duration) bool {
	data, err := json.Marshal(value)
	if err != nil {
		c.mu.Lock()
		c.stats.SerializationFailures++
		c.mu.Unlock()
		c.logger.Warn().
			Err(err).
			Str("cache_key", key.String()).
			Msg("Value serialization failed, entry not cached")
		if c.metrics != nil {
			c.metrics.RecordError("permanent", "SERIALIZATION_FAILURE")
		}
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	ks := key.String()
	size := int64(len(data))

	e := &entry{
		key:            ks,
		componentID:    key.ComponentID,
		value:          data,
		createdAt:      now,
		lastAccessedAt: now,
		accessCount:    1,
		sizeBytes:      size,
		ttl:            ttl,
	}
	if old, ok := c.entries[ks]; ok {
		e.accessCount = old.accessCount + 1
		c.removeLocked(old)
	}
	c.insertLocked(e)
	c.stats.Puts++
	if c.metrics != nil {
		c.metrics.RecordCachePut()
	}
	c.syncGauges()

	if c.cfg.Slow != nil && !c.degraded {
		rec := &stores.Record{
			Key:            ks,
			ComponentID:    key.ComponentID,
			Value:          data,
			CreatedAt:      now,
			LastAccessedAt: now,
			AccessCount:    e.accessCount,
			SizeBytes:      size,
		}
		if ttl > 0 {
			rec.TTLSeconds = int64((ttl + time.Second - 1) / time.Second)
			exp := now.Add(ttl)
			rec.ExpiresAt = &exp
		}
		start := time.Now()
		err := c.cfg.Slow.Put(ctx, rec)
		c.recordStoreCall("put", start)
		if err != nil {
			c.slowFailureLocked("put", err)
		}
	}
	return true
}

// Invalidate removes all entries from both tiers and returns the number
// of entries removed. When the slow tier is healthy its count is
// authoritative, since it holds a superset of the fast tier.
func (c *TieredCache) Invalidate(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := int64(len(c.entries))
	c.entries = make(map[string]*entry)
	c.strategy.Reset()
	c.bytes = 0
	c.syncGauges()

	if c.cfg.Slow != nil && !c.degraded {
		start := time.Now()
		n, err := c.cfg.Slow.DeleteAll(ctx)
		c.recordStoreCall("delete_all", start)
		if err != nil {
			c.slowFailureLocked("delete_all", err)
			return removed, fmt.Errorf("invalidate slow tier: %w", err)
		}
		if n > removed {
			removed = n
		}
	}
	return removed, nil
}

// InvalidateComponent removes all entries belonging to the given
// component from both tiers and returns the number removed.
func (c *TieredCache) InvalidateComponent(ctx context.Context, componentID string) (int64, error) {
	prefix := componentID + ":"
	return c.invalidate(ctx, prefix, func(ctx context.Context) (int64, error) {
		return c.cfg.Slow.DeleteByComponent(ctx, componentID)
	})
}

// InvalidatePrefix removes all entries whose key starts with the given
// prefix from both tiers and returns the number removed.
func (c *TieredCache) InvalidatePrefix(ctx context.Context, prefix string) (int64, error) {
	return c.invalidate(ctx, prefix, func(ctx context.Context) (int64, error) {
		return c.cfg.Slow.DeleteByPrefix(ctx, prefix)
	})
}

// invalidate removes matching fast-tier entries and delegates the
// slow-tier removal to slowDelete. Both removals happen under the cache
// mutex so no concurrent operation observes a half-invalidated state.
func (c *TieredCache) invalidate(ctx context.Context, prefix string, slowDelete func(context.Context) (int64, error)) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed int64
	for k, e := range c.entries {
		if strings.HasPrefix(k, prefix) {
			c.removeLocked(e)
			removed++
		}
	}
	c.syncGauges()

	if c.cfg.Slow != nil && !c.degraded {
		start := time.Now()
		n, err := slowDelete(ctx)
		c.recordStoreCall("delete_prefix", start)
		if err != nil {
			c.slowFailureLocked("delete_prefix", err)
			return removed, fmt.Errorf("invalidate slow tier: %w", err)
		}
		if n > removed {
			removed = n
		}
	}
	return removed, nil
}

// Sweep removes expired entries from both tiers and returns the number
// removed. When the cache is degraded, Sweep first runs the slow
// store's health check and, if it passes, restores two-tier operation
// before purging.
func (c *TieredCache) Sweep(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	removed := 0
	for _, e := range c.entries {
		if e.expired(now) {
			c.removeLocked(e)
			c.stats.Expirations++
			c.recordEviction("expired")
			removed++
		}
	}

	if c.cfg.Slow != nil {
		if c.degraded {
			if err := c.cfg.Slow.HealthCheck(ctx); err == nil {
				c.degraded = false
				c.logger.Info().Msg("Slow tier recovered, resuming two-tier operation")
			}
		}
		if !c.degraded {
			start := time.Now()
			n, err := c.cfg.Slow.PurgeExpired(ctx)
			c.recordStoreCall("purge_expired", start)
			if err != nil {
				c.slowFailureLocked("purge_expired", err)
			} else {
				removed += int(n)
			}
		}
	}

	c.syncGauges()
	return removed
}

// Stats returns a snapshot of the cache counters and current state.
func (c *TieredCache) Stats() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Entries = int64(len(c.entries))
	s.SizeBytes = c.bytes
	s.Degraded = c.degraded
	return s
}

// Len returns the current number of fast-tier entries.
func (c *TieredCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Bytes returns the current fast-tier payload size in bytes.
func (c *TieredCache) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// Degraded reports whether the cache is currently bypassing the slow tier.
func (c *TieredCache) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// insertLocked places an entry into the fast tier, evicting victims
// until both the entry count and the byte budget allow it. A value
// larger than the whole byte budget is not admitted at all; the caller
// may still have written it to the slow tier.
func (c *TieredCache) insertLocked(e *entry) {
	if c.cfg.MaxBytes > 0 && e.sizeBytes > c.cfg.MaxBytes {
		c.logger.Debug().
			Str("cache_key", e.key).
			Int64("size_bytes", e.sizeBytes).
			Msg("Value exceeds fast tier byte budget, slow tier only")
		return
	}

	for len(c.entries) >= c.cfg.Capacity || (c.cfg.MaxBytes > 0 && c.bytes+e.sizeBytes > c.cfg.MaxBytes) {
		victim := c.strategy.Victim()
		if victim == nil {
			break
		}
		c.removeLocked(victim)
		c.stats.Evictions++
		c.recordEviction("capacity")
		c.logger.Debug().
			Str("cache_key", victim.key).
			Str("strategy", c.strategy.Name()).
			Msg("Evicted fast tier entry")
	}

	c.entries[e.key] = e
	c.strategy.Add(e)
	c.bytes += e.sizeBytes
}

// promoteLocked admits a slow-tier record into the fast tier, keeping
// its creation time and TTL and refreshing its access metadata.
func (c *TieredCache) promoteLocked(rec *stores.Record, now time.Time) {
	e := &entry{
		key:            rec.Key,
		componentID:    rec.ComponentID,
		value:          rec.Value,
		createdAt:      rec.CreatedAt,
		lastAccessedAt: now,
		accessCount:    rec.AccessCount + 1,
		sizeBytes:      rec.SizeBytes,
		ttl:            recordTTL(rec),
	}
	if e.sizeBytes == 0 {
		e.sizeBytes = int64(len(rec.Value))
	}
	c.insertLocked(e)
}

// removeLocked detaches an entry from the map, the strategy, and the
// byte accounting. Callers update the relevant counters.
func (c *TieredCache) removeLocked(e *entry) {
	delete(c.entries, e.key)
	c.strategy.Remove(e)
	c.bytes -= e.sizeBytes
}

// slowFailureLocked records a slow-tier failure and degrades the cache
// to fast-only operation. Context cancellation is the caller giving up,
// not a store fault, so it does not degrade the cache.
func (c *TieredCache) slowFailureLocked(operation string, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	c.stats.StorageFailures++
	if c.metrics != nil {
		c.metrics.RecordStoreError(operation)
	}
	if !c.degraded {
		c.degraded = true
		c.logger.Warn().
			Err(err).
			Str("operation", operation).
			Msg("Slow tier failure, degrading to fast tier only")
	} else {
		c.logger.Debug().
			Err(err).
			Str("operation", operation).
			Msg("Slow tier still failing")
	}
}

func (c *TieredCache) recordRequest(outcome string) {
	if c.metrics != nil {
		c.metrics.RecordCacheRequest(outcome)
	}
}

func (c *TieredCache) recordEviction(reason string) {
	if c.metrics != nil {
		c.metrics.RecordCacheEviction(reason)
	}
}

func (c *TieredCache) recordStoreCall(operation string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordStoreCall(operation, time.Since(start))
	}
}

func (c *TieredCache) syncGauges() {
	if c.metrics != nil {
		c.metrics.SetCacheSize(len(c.entries), c.bytes)
	}
}

// recordExpired reports whether a slow-tier record has expired at the
// given instant, judged by the cache's clock. The persisted expiry
// instant is exact; the whole-second TTLSeconds is only a fallback for
// records whose rebuilt metadata lost it.
func recordExpired(rec *stores.Record, now time.Time) bool {
	if rec.ExpiresAt != nil {
		return now.After(*rec.ExpiresAt)
	}
	return rec.TTLSeconds > 0 && now.Sub(rec.CreatedAt) > rec.TTL()
}

// recordTTL returns the TTL a promoted record carries into the fast
// tier, preferring the exact persisted expiry window over the
// whole-second TTLSeconds.
func recordTTL(rec *stores.Record) time.Duration {
	if rec.ExpiresAt != nil {
		return rec.ExpiresAt.Sub(rec.CreatedAt)
	}
	return rec.TTL()
}
