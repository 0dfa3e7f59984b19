package cache

import (
	"container/list"
	"time"
)

// entry is a fast-tier cache entry. All fields are guarded by the cache
// mutex; element is owned by the list-backed LRU strategy and is nil
// while the entry is not resident.
type entry struct {
	key            string
	componentID    string
	value          []byte
	createdAt      time.Time
	lastAccessedAt time.Time
	accessCount    int64
	sizeBytes      int64
	ttl            time.Duration
	element        *list.Element
}

// expired reports whether the entry's TTL has elapsed at the given
// instant. Entries without a TTL never expire.
func (e *entry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.createdAt) > e.ttl
}
