// Package store provides SQLite-backed durable storage for engine runs.
//
// Each run is written once, atomically, after FireRules returns:
//   - Runs: run id, ruleset hash, versions, outcome and counters
//   - Facts: every fact in working memory plus the facts they reference,
//     with creator id and origin rule
//   - Activations: the firing log, in firing order
//
// # Ordering
//
// Nothing is ordered by wall time. Runs are ordered by seq, facts by id,
// activations by seq. Provenance chains are answered with a recursive
// query over creator_id.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Fact fields are stored as RFC 8785 canonical JSON and each fact
// carries a content hash computed by ir.FactHash.
package store
