package cache

// Statistics is a point-in-time snapshot of cache counters. Counters are
// monotonically increasing for the lifetime of the cache; Entries,
// SizeBytes, and Degraded reflect the state at snapshot time.
//
// Every Get increments Requests and exactly one of FastHits, SlowHits,
// or Misses, so FastHits+SlowHits+Misses always equals Requests.
type Statistics struct {
	// Requests is the total number of Get calls.
	Requests int64 `json:"requests"`

	// FastHits counts Gets served from the fast tier.
	FastHits int64 `json:"fast_hits"`

	// SlowHits counts Gets served from the slow tier.
	SlowHits int64 `json:"slow_hits"`

	// Misses counts Gets that found no live entry in either tier.
	Misses int64 `json:"misses"`

	// Puts counts successful Put and PutTTL calls.
	Puts int64 `json:"puts"`

	// Evictions counts entries removed from the fast tier to make room.
	Evictions int64 `json:"evictions"`

	// Expirations counts entries removed because their TTL elapsed.
	Expirations int64 `json:"expirations"`

	// SerializationFailures counts Put values that could not be encoded.
	SerializationFailures int64 `json:"serialization_failures"`

	// StorageFailures counts slow-tier operations that returned an error.
	StorageFailures int64 `json:"storage_failures"`

	// Entries is the current number of fast-tier entries.
	Entries int64 `json:"entries"`

	// SizeBytes is the current fast-tier payload size in bytes.
	SizeBytes int64 `json:"size_bytes"`

	// Degraded reports whether the slow tier is currently bypassed.
	Degraded bool `json:"degraded"`
}

// HitRate returns the fraction of requests served from either tier,
// or 0 when no requests have been made.
func (s Statistics) HitRate() float64 {
	if s.Requests == 0 {
		return 0
	}
	return float64(s.FastHits+s.SlowHits) / float64(s.Requests)
}
