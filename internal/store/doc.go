// Package store provides SQLite-backed storage for consumed record streams.
//
// The store keeps two tables:
//   - runs: one row per stream, with its parameters, buffer capacity and
//     final status (running, completed, aborted, failed)
//   - records: every record the consumer received, keyed by (run_id, seq)
//
// # Critical Patterns
//
// Stream order is storage order:
//   - seq is the 1-based position of the record in the stream
//   - all record queries use ORDER BY seq ASC
//   - ReadRecordLines returns exactly the lines the consumer saw
//
// Idempotent writes:
//   - records use ON CONFLICT(run_id, seq) DO NOTHING, so a retried batch
//     never duplicates a record
//   - FinishRun only moves a run out of 'running', once
//
// Money is stored as fixed two-decimal TEXT, never REAL, so stored records
// print byte-identically to the stream.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
