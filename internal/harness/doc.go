// Package harness runs record-stream scenarios and checks their outcome.
//
// A scenario names an engine, its parameters, how the consumer behaves and
// what the resulting stream must look like. The harness drives the run
// through a stream.Iterator exactly like a real consumer would, persists the
// consumed records to an in-memory store and evaluates the assertions
// against both.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	engine:
//	  kind: paysim            # or: scripted
//	  steps: 3                # scripted only
//	  per_step: 2             # scripted only
//	  fail_at: 4              # scripted only, optional
//	params:                   # paysim only, overlays the defaults
//	  seed: 7
//	  steps: 4
//	capacity: 8               # handoff capacity, default 1000
//	run_id: fixed-run-id      # default "test-run-default"
//	consumer:
//	  limit: 10               # abort after 10 records, 0 = read to the end
//	assertions:
//	  - type: outcome
//	    outcome: aborted
//	  - type: record_count
//	    count: 10
//
// # Assertion Types
//
//   - outcome: the run ended completed, aborted or failed
//   - record_count: the consumer received exactly N records
//   - type_count: exactly N received records have the given action
//   - error_code: the run failed with the given engine error code
//   - matches_reference: the received lines equal the start of a direct,
//     unstreamed run of the same engine and parameters
//   - fraud_pairs: every unblocked fraudulent TRANSFER is followed by its
//     fraudulent CASH_OUT
//   - stored_run: the store holds the run with the given status and count
//
// # Deterministic Testing
//
// Run ids are fixed (testutil.FixedIDGenerator) and the engines are seeded,
// so identical scenarios produce byte-identical results for golden file
// comparison.
package harness
