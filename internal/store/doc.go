// Package store provides durable persistence for hive-orchestrator.
//
// Three concerns share one SQLite database:
//
//   - agent_states: the latest full state snapshot per task, overwritten
//     on every mutation-significant event. Used by Status reads after
//     eviction and as the rehydration source of truth.
//
//   - checkpoints: append-only, immutable snapshots created every N
//     actions and on pause. Used exclusively for recovery; never mutated
//     after creation.
//
//   - lifecycle_events: the audit trail of every published event, written
//     by the bus's audit sink (the store implements event.Recorder).
//
// The implementation uses modernc.org/sqlite (pure Go, no cgo) with WAL
// mode enabled for concurrent readers. The schema is created on open.
package store
