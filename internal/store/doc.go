// Package store provides the SQLite tick journal.
//
// Each run gets a row keyed by its UUIDv7 run id. Each journaled tick
// records the neighborhood center, the restructuring counts, the engine
// stats and the global document, plus one row per indexed entity holding
// its canonical document and digest.
//
// # Ordering
//
//   - Ticks are ordered by their logical tick number, never by wall time.
//   - Entity rows are ordered by entity id.
//   - Runs are ordered by id; UUIDv7 ids sort in creation order.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Writes are idempotent: re-journaling a tick already present is a no-op.
package store
