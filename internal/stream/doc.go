// Package stream turns a blocking simulation run into a pull-based record
// stream.
//
// ARCHITECTURE:
//
// One Iterator owns exactly one run:
//
//	Start ──> worker goroutine ──> Engine.Execute
//	                 │ emit(record)
//	                 v
//	          bounded handoff (chan, capacity C)
//	                 │
//	                 v
//	          HasNext / Next  (caller goroutine)
//
// The worker is the only producer and the caller is the only consumer. When
// the run ends for any reason the worker closes the channel; the close is
// the end-of-stream sentinel and is always the last thing the consumer sees.
//
// Backpressure:
// The handoff blocks the worker once C records are pending, so the engine
// never runs more than C records ahead of the consumer.
//
// Cancellation:
// Abort sets a monotonic flag and closes a quit channel. The engine checks
// the flag between steps; a worker blocked on a full buffer is released by
// the quit channel. Abort does not wait. Done() closes once the worker
// goroutine has returned.
//
// CRITICAL PATTERNS:
//
// Run-once: the run state is an explicit state machine
// (NotStarted -> Running -> Terminated). A second Start always fails with
// ErrAlreadyStarted, even after the first run has finished.
//
// Single-writer state: only the consumer-facing methods change the run
// state. The worker publishes its outcome before closing the channel, so
// Err() is safe to read once Next has reported the end of the stream.
package stream
