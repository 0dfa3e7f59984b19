package stores

import (
	"context"
	"time"
)

// Record is one persisted slow-tier cache entry: the opaque value blob
// plus the index metadata kept beside it. The index half (everything but
// Value) is non-critical bookkeeping; Reindex can rebuild it from the
// blobs alone with default metadata.
type Record struct {
	// Key is the full cache key string, "<component-id>:<digest>".
	Key string `json:"key"`

	// ComponentID is the component the cached result belongs to. It is
	// also the prefix of Key, kept separately so component-wide deletes
	// stay an indexed operation.
	ComponentID string `json:"component_id"`

	// Value is the serialized cached value.
	Value []byte `json:"value"`

	// CreatedAt is when the entry was first written.
	CreatedAt time.Time `json:"created_at"`

	// LastAccessedAt is when the entry was last read or promoted.
	LastAccessedAt time.Time `json:"last_accessed_at"`

	// AccessCount is the number of times the entry has been touched.
	AccessCount int64 `json:"access_count"`

	// SizeBytes is the serialized size, computed once at insertion.
	SizeBytes int64 `json:"size_bytes"`

	// TTLSeconds is the entry's time-to-live in seconds. 0 = no expiry.
	TTLSeconds int64 `json:"ttl_seconds"`

	// ExpiresAt is the precomputed expiry instant, nil when TTLSeconds
	// is 0. Kept denormalized so stores can purge with one comparison.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// TTL returns the record's time-to-live as a duration.
func (r *Record) TTL() time.Duration {
	return time.Duration(r.TTLSeconds) * time.Second
}

// SlowStore defines the persistence contract for the cache's slow tier.
// Implementations must be safe for concurrent use; the cache serializes
// its own calls but sweepers and GC runners may run alongside.
//
// Get returns (nil, nil) for absent keys: a miss is a normal outcome,
// not an error. Expiry is not filtered on Get. The cache owns the
// expiry decision so one clock governs both tiers; PurgeExpired is the
// only method that consults wall-clock time.
type SlowStore interface {
	// Lifecycle
	Init(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error

	// Entry operations
	Get(ctx context.Context, key string) (*Record, error)
	Put(ctx context.Context, rec *Record) error
	Touch(ctx context.Context, key string, accessedAt time.Time, accessCount int64) error
	Delete(ctx context.Context, key string) error

	// Bulk invalidation
	DeleteByComponent(ctx context.Context, componentID string) (int64, error)
	DeleteByPrefix(ctx context.Context, prefix string) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)

	// Maintenance
	PurgeExpired(ctx context.Context) (int64, error)
	Reindex(ctx context.Context) (int64, error)

	// Utility
	Len(ctx context.Context) (int64, error)
	HealthCheck(ctx context.Context) error
}
