package cache

import (
	"container/list"
	"fmt"
)

// Eviction strategy names accepted by NewStrategy.
const (
	// EvictionLRU evicts the least recently used entry.
	EvictionLRU = "lru"
	// EvictionLFU evicts the least frequently used entry.
	EvictionLFU = "lfu"
	// EvictionFIFO evicts the entry with the oldest creation time.
	EvictionFIFO = "fifo"
)

// Strategy decides which fast-tier entry to evict when the tier is full.
// Implementations keep their own bookkeeping per entry and are not safe
// for concurrent use; the cache serializes all calls under its mutex.
type Strategy interface {
	// Name returns the strategy identifier.
	Name() string

	// Add registers a newly inserted entry.
	Add(e *entry)

	// Touch records an access to a resident entry.
	Touch(e *entry)

	// Remove forgets an entry that is leaving the tier for any reason.
	Remove(e *entry)

	// Victim returns the entry that should be evicted next, or nil when
	// the strategy tracks no entries. The entry stays registered until
	// Remove is called.
	Victim() *entry

	// Reset discards all bookkeeping.
	Reset()
}

// NewStrategy returns the eviction strategy for the given name. An empty
// name selects LRU.
func NewStrategy(name string) (Strategy, error) {
	switch name {
	case EvictionLRU, "":
		return newLRUStrategy(), nil
	case EvictionLFU:
		return newLFUStrategy(), nil
	case EvictionFIFO:
		return newFIFOStrategy(), nil
	default:
		return nil, fmt.Errorf("unknown eviction strategy: %q", name)
	}
}

// lruStrategy keeps entries in a doubly linked list ordered by recency.
// The front holds the most recently used entry, the back the victim.
type lruStrategy struct {
	order *list.List
}

func newLRUStrategy() *lruStrategy {
	return &lruStrategy{order: list.New()}
}

func (s *lruStrategy) Name() string { return EvictionLRU }

func (s *lruStrategy) Add(e *entry) {
	e.element = s.order.PushFront(e)
}

func (s *lruStrategy) Touch(e *entry) {
	if e.element != nil {
		s.order.MoveToFront(e.element)
	}
}

func (s *lruStrategy) Remove(e *entry) {
	if e.element != nil {
		s.order.Remove(e.element)
		e.element = nil
	}
}

func (s *lruStrategy) Victim() *entry {
	back := s.order.Back()
	if back == nil {
		return nil
	}
	return back.Value.(*entry)
}

func (s *lruStrategy) Reset() {
	s.order.Init()
}

// fifoStrategy evicts by creation time: the entry created first goes
// first, no matter how often it is accessed. Entries can re-enter the
// tier out of age order (a slow-tier promotion keeps its original
// creation time), so the victim comes from a map scan, not a queue.
type fifoStrategy struct {
	entries map[string]*entry
}

func newFIFOStrategy() *fifoStrategy {
	return &fifoStrategy{entries: make(map[string]*entry)}
}

func (s *fifoStrategy) Name() string { return EvictionFIFO }

func (s *fifoStrategy) Add(e *entry) {
	s.entries[e.key] = e
}

func (s *fifoStrategy) Touch(e *entry) {}

func (s *fifoStrategy) Remove(e *entry) {
	delete(s.entries, e.key)
}

func (s *fifoStrategy) Victim() *entry {
	var victim *entry
	for _, e := range s.entries {
		if victim == nil || olderCreated(e, victim) {
			victim = e
		}
	}
	return victim
}

func (s *fifoStrategy) Reset() {
	s.entries = make(map[string]*entry)
}

// olderCreated reports whether a should be evicted before b under FIFO
// ordering: earlier creation time first, the lexicographically smaller
// key on ties, so the victim is deterministic regardless of map
// iteration order.
func olderCreated(a, b *entry) bool {
	if !a.createdAt.Equal(b.createdAt) {
		return a.createdAt.Before(b.createdAt)
	}
	return a.key < b.key
}

// lfuStrategy tracks entries in a map and scans for the minimum access
// count on eviction. Ties are broken by creation time, then by key, so
// the victim is deterministic regardless of map iteration order.
type lfuStrategy struct {
	entries map[string]*entry
}

func newLFUStrategy() *lfuStrategy {
	return &lfuStrategy{entries: make(map[string]*entry)}
}

func (s *lfuStrategy) Name() string { return EvictionLFU }

func (s *lfuStrategy) Add(e *entry) {
	s.entries[e.key] = e
}

func (s *lfuStrategy) Touch(e *entry) {}

func (s *lfuStrategy) Remove(e *entry) {
	delete(s.entries, e.key)
}

func (s *lfuStrategy) Victim() *entry {
	var victim *entry
	for _, e := range s.entries {
		if victim == nil || lessFrequent(e, victim) {
			victim = e
		}
	}
	return victim
}

func (s *lfuStrategy) Reset() {
	s.entries = make(map[string]*entry)
}

// lessFrequent reports whether a should be evicted before b under LFU
// ordering: lower access count first, older creation time next, and the
// lexicographically smaller key last.
func lessFrequent(a, b *entry) bool {
	if a.accessCount != b.accessCount {
		return a.accessCount < b.accessCount
	}
	if !a.createdAt.Equal(b.createdAt) {
		return a.createdAt.Before(b.createdAt)
	}
	return a.key < b.key
}
