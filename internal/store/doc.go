// Package store provides the SQLite-backed persistent buffer cache.
//
// It is the optional second level behind the engine's in-memory cache
// (enabled by use_cache). Each entry holds every output buffer of one node
// computation, keyed by the digest of the node's parameters and inputs:
//   - entries: key, node kind, output count, pixel bytes, last-use seq
//   - buffers: one row per output slot with format, digest and pixels
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: buffers cascade with their entry
//
// Recency is a logical seq, never wall time, so Prune is deterministic.
package store
