// Package sim defines the simulation engine contract and ships a compact,
// deterministic PaySim-style engine.
//
// ARCHITECTURE:
//
// The engine advances through discrete steps. Each step is computed in full
// (agents act, balances move, records are built) before any of its records
// is handed to the caller through EmitFunc. A failing step therefore never
// exposes partial output.
//
// Determinism:
// A single math/rand source seeded from Parameters.Seed drives every random
// choice, and agents act in a fixed order. Equal Parameters produce identical
// records in identical order.
//
// Cancellation:
// CancelFunc is polled before every step. It is cooperative: a step that has
// started always completes.
package sim
