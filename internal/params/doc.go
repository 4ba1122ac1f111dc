// Package params holds the configuration of a simulation run.
//
// Parameters are the only input of the simulation engine. Two runs with equal
// Parameters produce identical record sequences, so Parameters are treated as
// immutable once loaded: the engine and the stream only read them.
//
// Loading:
//  1. Start from Default()
//  2. Overlay a YAML file (gopkg.in/yaml.v3)
//  3. Validate the raw document against the embedded CUE schema
//  4. Convert money fields to decimal.Decimal and run semantic checks
//
// Fingerprint() identifies a configuration. It hashes the canonical JSON form
// of the parameters with domain separation, so the same configuration always
// yields the same fingerprint regardless of YAML formatting or key order.
package params
