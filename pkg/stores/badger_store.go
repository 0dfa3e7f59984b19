package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// Key prefixes separating the two record halves inside one Badger
// keyspace: blobs are the source of truth, meta rows are the index.
const (
	badgerBlobPrefix = "b/"
	badgerMetaPrefix = "m/"
)

// BadgerStore implements SlowStore on an embedded BadgerDB. Each cache
// key owns two Badger entries: "b/<key>" holding the opaque value and
// "m/<key>" holding the JSON index metadata. Entries with a TTL are also
// written with Badger's native TTL, so the engine reclaims them at expiry
// even if no purge pass runs.
type BadgerStore struct {
	db     *badger.DB
	cfg    BadgerConfig
	logger zerolog.Logger
}

// BadgerConfig holds BadgerDB store configuration.
type BadgerConfig struct {
	// Path is the directory for BadgerDB files. Required unless InMemory.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// GCDiscardRatio is the minimum ratio of discardable data before the
	// value log GC rewrites a file. Default 0.5.
	GCDiscardRatio float64

	// Logger receives store and BadgerDB internal logs.
	Logger zerolog.Logger
}

// DefaultBadgerConfig returns production defaults for a persistent store
// at the given path.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:           path,
		SyncWrites:     true,
		GCDiscardRatio: 0.5,
		Logger:         zerolog.Nop(),
	}
}

// InMemoryBadgerConfig returns configuration for tests: in-memory, no
// sync, no disk I/O.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{
		InMemory:       true,
		GCDiscardRatio: 0.5,
		Logger:         zerolog.Nop(),
	}
}

// NewBadgerStore creates a new Badger store instance. The database is not
// opened until Init.
func NewBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("database path is required for persistent store")
	}
	if cfg.GCDiscardRatio == 0 {
		cfg.GCDiscardRatio = 0.5
	}

	return &BadgerStore{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "badger_store").Logger(),
	}, nil
}

// badgerLogger adapts zerolog to BadgerDB's Logger interface.
type badgerLogger struct {
	logger zerolog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(strings.TrimSpace(format), args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(strings.TrimSpace(format), args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug().Msgf(strings.TrimSpace(format), args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug().Msgf(strings.TrimSpace(format), args...)
}

// Init opens the BadgerDB database.
func (s *BadgerStore) Init(_ context.Context) error {
	var opts badger.Options
	if s.cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(s.cfg.Path, 0o750); err != nil {
			return fmt.Errorf("failed to create database directory %s: %w", s.cfg.Path, err)
		}
		opts = badger.DefaultOptions(s.cfg.Path)
	}

	opts = opts.WithSyncWrites(s.cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	opts = opts.WithLogger(&badgerLogger{logger: s.logger})

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("failed to open badger database: %w", err)
	}

	s.db = db
	return nil
}

// Migrate is a no-op: Badger is schemaless.
func (s *BadgerStore) Migrate(_ context.Context) error {
	return nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Get retrieves a record by key. Absent keys return (nil, nil). A blob
// whose meta entry was lost comes back with synthesized metadata until
// Reindex runs.
func (s *BadgerStore) Get(ctx context.Context, key string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec *Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerBlobPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read blob: %w", err)
		}

		value, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("failed to copy blob value: %w", err)
		}

		metaItem, err := txn.Get([]byte(badgerMetaPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			rec = synthesizeRecord(key, value)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read meta: %w", err)
		}

		return metaItem.Value(func(metaVal []byte) error {
			r := &Record{}
			if err := json.Unmarshal(metaVal, r); err != nil {
				// Corrupt meta is recoverable the same way a lost one is.
				rec = synthesizeRecord(key, value)
				return nil
			}
			r.Value = value
			rec = r
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return rec, nil
}

// synthesizeRecord builds default metadata for a blob whose index entry
// is missing: size from the blob, component id from the key prefix, no
// TTL until Reindex or the next Put.
func synthesizeRecord(key string, value []byte) *Record {
	componentID := key
	if i := strings.IndexByte(key, ':'); i >= 0 {
		componentID = key[:i]
	}
	return &Record{
		Key:         key,
		ComponentID: componentID,
		Value:       value,
		SizeBytes:   int64(len(value)),
	}
}

// Put inserts or replaces a record. Blob and meta entries are written in
// one transaction; entries with a TTL also get Badger's native TTL.
func (s *BadgerStore) Put(ctx context.Context, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	meta := *rec
	meta.Value = nil
	metaBytes, err := json.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("failed to marshal record meta: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		blobEntry := badger.NewEntry([]byte(badgerBlobPrefix+rec.Key), rec.Value)
		metaEntry := badger.NewEntry([]byte(badgerMetaPrefix+rec.Key), metaBytes)
		if rec.TTLSeconds > 0 {
			ttl := rec.TTL()
			blobEntry = blobEntry.WithTTL(ttl)
			metaEntry = metaEntry.WithTTL(ttl)
		}
		if err := txn.SetEntry(blobEntry); err != nil {
			return fmt.Errorf("failed to write blob: %w", err)
		}
		if err := txn.SetEntry(metaEntry); err != nil {
			return fmt.Errorf("failed to write meta: %w", err)
		}
		return nil
	})
}

// Touch updates access bookkeeping for a key. Missing meta entries are
// ignored; Reindex recreates them.
func (s *BadgerStore) Touch(ctx context.Context, key string, accessedAt time.Time, accessCount int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerMetaPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read meta: %w", err)
		}

		rec := &Record{}
		err = item.Value(func(metaVal []byte) error {
			return json.Unmarshal(metaVal, rec)
		})
		if err != nil {
			return nil
		}

		rec.LastAccessedAt = accessedAt
		rec.AccessCount = accessCount
		metaBytes, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record meta: %w", err)
		}

		entry := badger.NewEntry([]byte(badgerMetaPrefix+key), metaBytes)
		if rec.ExpiresAt != nil {
			remaining := time.Until(*rec.ExpiresAt)
			if remaining <= 0 {
				// Already expired; the engine will reclaim it.
				return nil
			}
			entry = entry.WithTTL(remaining)
		}
		return txn.SetEntry(entry)
	})
}

// Delete removes a record by key. Deleting an absent key is a no-op.
func (s *BadgerStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(badgerBlobPrefix + key)); err != nil {
			return fmt.Errorf("failed to delete blob: %w", err)
		}
		if err := txn.Delete([]byte(badgerMetaPrefix + key)); err != nil {
			return fmt.Errorf("failed to delete meta: %w", err)
		}
		return nil
	})
}

// DeleteByComponent removes every record a component produced. Component
// ids prefix the key string, so this is a prefix delete.
func (s *BadgerStore) DeleteByComponent(ctx context.Context, componentID string) (int64, error) {
	return s.DeleteByPrefix(ctx, componentID+":")
}

// DeleteByPrefix removes every record whose key starts with prefix and
// returns how many were removed.
func (s *BadgerStore) DeleteByPrefix(ctx context.Context, prefix string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	keys, err := s.collectKeys(prefix)
	if err != nil {
		return 0, err
	}

	var removed int64
	for _, key := range keys {
		if err := s.Delete(ctx, key); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// DeleteAll removes every record and returns how many were removed.
func (s *BadgerStore) DeleteAll(ctx context.Context) (int64, error) {
	n, err := s.Len(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.db.DropAll(); err != nil {
		return 0, fmt.Errorf("failed to drop all records: %w", err)
	}
	return n, nil
}

// PurgeExpired deletes records whose expiry instant has passed. Badger's
// native TTL usually gets there first; this pass catches meta entries
// written without TTL propagation and keeps the two backends equivalent.
func (s *BadgerStore) PurgeExpired(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	now := time.Now()
	var expired []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerMetaPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := strings.TrimPrefix(string(item.Key()), badgerMetaPrefix)
			err := item.Value(func(metaVal []byte) error {
				rec := &Record{}
				if err := json.Unmarshal(metaVal, rec); err != nil {
					return nil
				}
				if rec.ExpiresAt != nil && !rec.ExpiresAt.After(now) {
					expired = append(expired, key)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan for expired records: %w", err)
	}

	var removed int64
	for _, key := range expired {
		if err := s.Delete(ctx, key); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Reindex scans the blobs and recreates meta entries for keys whose
// bookkeeping was lost, using default metadata. Returns the number of
// entries recreated.
func (s *BadgerStore) Reindex(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	type orphan struct {
		key  string
		size int64
	}
	var orphans []orphan
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerBlobPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := strings.TrimPrefix(string(item.Key()), badgerBlobPrefix)
			if _, err := txn.Get([]byte(badgerMetaPrefix + key)); errors.Is(err, badger.ErrKeyNotFound) {
				orphans = append(orphans, orphan{key: key, size: item.ValueSize()})
			} else if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan blobs: %w", err)
	}

	now := time.Now().UTC()
	var recreated int64
	for _, o := range orphans {
		rec := synthesizeRecord(o.key, nil)
		rec.SizeBytes = o.size
		rec.CreatedAt = now
		rec.LastAccessedAt = now
		metaBytes, err := json.Marshal(rec)
		if err != nil {
			return recreated, fmt.Errorf("failed to marshal record meta: %w", err)
		}
		err = s.db.Update(func(txn *badger.Txn) error {
			return txn.Set([]byte(badgerMetaPrefix+o.key), metaBytes)
		})
		if err != nil {
			return recreated, fmt.Errorf("failed to recreate meta: %w", err)
		}
		recreated++
	}

	s.logger.Debug().Int64("recreated", recreated).Msg("Reindex completed")
	return recreated, nil
}

// Len returns the number of stored records.
func (s *BadgerStore) Len(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var n int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerBlobPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// HealthCheck verifies the database is open.
func (s *BadgerStore) HealthCheck(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	if s.db.IsClosed() {
		return fmt.Errorf("database is closed")
	}
	return nil
}

// collectKeys gathers all cache keys (without the blob prefix) whose key
// string starts with prefix.
func (s *BadgerStore) collectKeys(prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerBlobPrefix + prefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, strings.TrimPrefix(string(it.Item().Key()), badgerBlobPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to collect keys: %w", err)
	}
	return keys, nil
}

// GCRunner runs periodic value log garbage collection on a BadgerStore.
// It is caller-started: nothing runs until Start, and Stop blocks until
// the loop exits.
type GCRunner struct {
	store    *BadgerStore
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	logger   zerolog.Logger
}

// NewGCRunner creates a garbage collection runner for the store.
func NewGCRunner(store *BadgerStore, interval time.Duration) (*GCRunner, error) {
	if store == nil {
		return nil, fmt.Errorf("store must not be nil")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}

	return &GCRunner{
		store:    store,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   store.logger.With().Str("component", "badger_gc").Logger(),
	}, nil
}

// Start begins periodic garbage collection.
func (r *GCRunner) Start() {
	go r.run()
}

// Stop halts garbage collection and waits for the loop to exit. It is
// safe to call more than once; later calls are no-ops.
func (r *GCRunner) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		<-r.doneCh
	})
}

func (r *GCRunner) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.runGC()
		}
	}
}

func (r *GCRunner) runGC() {
	// ErrNoRewrite means nothing needed collecting, not a failure.
	err := r.store.db.RunValueLogGC(r.store.cfg.GCDiscardRatio)
	if err == nil {
		r.logger.Debug().Msg("value log GC completed")
	} else if !errors.Is(err, badger.ErrNoRewrite) {
		r.logger.Warn().Err(err).Msg("value log GC failed")
	}
}
