package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements SlowStore on a single SQLite database: one row
// per key in cache_blobs (the opaque values) and one in cache_index (the
// bookkeeping). Losing index rows degrades metadata, not data: Get falls
// back to zero-value metadata and Reindex recreates the missing rows.
type SQLiteStore struct {
	db   *sql.DB
	path string
	cfg  Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		path: cfg.Path,
		cfg:  cfg,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	// Open database with SQLite-specific connection parameters
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	// Verify connection and set PRAGMAs
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// Create database driver
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	// Create migration instance
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	// Run migrations
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

// CommitTx commits a transaction
func (s *SQLiteStore) CommitTx(tx *sql.Tx) error {
	return tx.Commit()
}

// RollbackTx rolls back a transaction
func (s *SQLiteStore) RollbackTx(tx *sql.Tx) error {
	return tx.Rollback()
}

// Get retrieves a record by key. Absent keys return (nil, nil). Expired
// entries are still returned; expiry is the cache's decision, not the
// store's. A blob whose index row was lost comes back with zero-value
// metadata until Reindex runs.
func (s *SQLiteStore) Get(ctx context.Context, key string) (*Record, error) {
	query := `
		SELECT b.key, b.component_id, b.value,
		       i.created_at, i.last_accessed_at, i.access_count, i.size_bytes, i.ttl_seconds, i.expires_at
		FROM cache_blobs b
		LEFT JOIN cache_index i ON i.key = b.key
		WHERE b.key = ?
	`

	rec := &Record{}
	var (
		createdAt    sql.NullTime
		lastAccessed sql.NullTime
		accessCount  sql.NullInt64
		sizeBytes    sql.NullInt64
		ttlSeconds   sql.NullInt64
		expiresAt    sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, key).Scan(
		&rec.Key,
		&rec.ComponentID,
		&rec.Value,
		&createdAt,
		&lastAccessed,
		&accessCount,
		&sizeBytes,
		&ttlSeconds,
		&expiresAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache record: %w", err)
	}

	if createdAt.Valid {
		rec.CreatedAt = createdAt.Time
	}
	if lastAccessed.Valid {
		rec.LastAccessedAt = lastAccessed.Time
	}
	rec.AccessCount = accessCount.Int64
	if sizeBytes.Valid {
		rec.SizeBytes = sizeBytes.Int64
	} else {
		rec.SizeBytes = int64(len(rec.Value))
	}
	rec.TTLSeconds = ttlSeconds.Int64
	if expiresAt.Valid {
		t := expiresAt.Time
		rec.ExpiresAt = &t
	}

	return rec, nil
}

// Put inserts or replaces a record. Blob and index rows are written in
// one transaction so a reader never sees one without the other.
func (s *SQLiteStore) Put(ctx context.Context, rec *Record) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	blobQuery := `
		INSERT INTO cache_blobs (key, component_id, value)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			component_id = excluded.component_id,
			value = excluded.value
	`
	if _, err := tx.ExecContext(ctx, blobQuery, rec.Key, rec.ComponentID, rec.Value); err != nil {
		return fmt.Errorf("failed to upsert cache blob: %w", err)
	}

	indexQuery := `
		INSERT INTO cache_index (key, created_at, last_accessed_at, access_count, size_bytes, ttl_seconds, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			created_at = excluded.created_at,
			last_accessed_at = excluded.last_accessed_at,
			access_count = excluded.access_count,
			size_bytes = excluded.size_bytes,
			ttl_seconds = excluded.ttl_seconds,
			expires_at = excluded.expires_at
	`

	// Format expires_at to a SQLite-comparable datetime string so
	// PurgeExpired can use datetime() on it.
	var expiresAtStr *string
	if rec.ExpiresAt != nil {
		formatted := rec.ExpiresAt.UTC().Format("2006-01-02 15:04:05")
		expiresAtStr = &formatted
	}

	if _, err := tx.ExecContext(ctx, indexQuery,
		rec.Key,
		rec.CreatedAt.UTC(),
		rec.LastAccessedAt.UTC(),
		rec.AccessCount,
		rec.SizeBytes,
		rec.TTLSeconds,
		expiresAtStr,
	); err != nil {
		return fmt.Errorf("failed to upsert cache index: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cache record: %w", err)
	}

	return nil
}

// Touch updates access bookkeeping for a key. A missing index row is not
// an error; Reindex recreates lost rows.
func (s *SQLiteStore) Touch(ctx context.Context, key string, accessedAt time.Time, accessCount int64) error {
	query := `
		UPDATE cache_index
		SET last_accessed_at = ?, access_count = ?
		WHERE key = ?
	`

	if _, err := s.db.ExecContext(ctx, query, accessedAt.UTC(), accessCount, key); err != nil {
		return fmt.Errorf("failed to touch cache record: %w", err)
	}

	return nil
}

// Delete removes a record by key. Deleting an absent key is a no-op.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	query := `DELETE FROM cache_blobs WHERE key = ?`

	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete cache record: %w", err)
	}

	return nil
}

// DeleteByComponent removes every record a component produced and
// returns how many were removed.
func (s *SQLiteStore) DeleteByComponent(ctx context.Context, componentID string) (int64, error) {
	query := `DELETE FROM cache_blobs WHERE component_id = ?`

	result, err := s.db.ExecContext(ctx, query, componentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete component records: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// DeleteByPrefix removes every record whose key starts with prefix.
// substr avoids LIKE so the prefix needs no metacharacter escaping.
func (s *SQLiteStore) DeleteByPrefix(ctx context.Context, prefix string) (int64, error) {
	query := `DELETE FROM cache_blobs WHERE substr(key, 1, ?) = ?`

	result, err := s.db.ExecContext(ctx, query, len(prefix), prefix)
	if err != nil {
		return 0, fmt.Errorf("failed to delete records by prefix: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// DeleteAll removes every record and returns how many were removed.
func (s *SQLiteStore) DeleteAll(ctx context.Context) (int64, error) {
	query := `DELETE FROM cache_blobs`

	result, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete all records: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// PurgeExpired deletes all records whose expiry instant has passed.
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM cache_blobs
		WHERE key IN (
			SELECT key FROM cache_index
			WHERE expires_at IS NOT NULL AND datetime(expires_at) <= datetime('now')
		)
	`

	result, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired records: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// Reindex recreates index rows for blobs whose bookkeeping was lost,
// using default metadata (created now, size from the blob, no TTL).
// Returns the number of rows recreated.
func (s *SQLiteStore) Reindex(ctx context.Context) (int64, error) {
	query := `
		INSERT INTO cache_index (key, created_at, last_accessed_at, access_count, size_bytes, ttl_seconds, expires_at)
		SELECT b.key, ?, ?, 0, length(b.value), 0, NULL
		FROM cache_blobs b
		LEFT JOIN cache_index i ON i.key = b.key
		WHERE i.key IS NULL
	`

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, query, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to reindex cache: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// Len returns the number of stored records.
func (s *SQLiteStore) Len(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_blobs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
