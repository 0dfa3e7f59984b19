// Package stores provides slow-tier persistence backends for Weft's
// execution cache. It includes SQLite-based storage with WAL mode and
// connection pooling, and BadgerDB-based storage with native TTL and
// value log garbage collection. Both implement the SlowStore interface
// consumed by the cache package.
package stores
