package sim

import (
	"github.com/paysim/paysim/internal/params"
)

// EmitFunc receives one record. Returning an error stops the run.
type EmitFunc func(Record) error

// CancelFunc reports whether the run should stop before its next step.
type CancelFunc func() bool

// Outcome summarizes a finished run.
type Outcome struct {
	// Steps counts the steps that completed and emitted all their records.
	Steps int
	// Records counts records accepted by EmitFunc.
	Records int
	// Cancelled is true if the run stopped because CancelFunc returned true.
	Cancelled bool
}

// Engine runs a simulation.
//
// Thread-safety model:
//   - Execute blocks until the run completes, fails or is cancelled
//   - emit and cancelled are called from the goroutine that called Execute
//   - an Engine value may be reused; every Execute builds a fresh world
type Engine interface {
	Execute(p *params.Parameters, emit EmitFunc, cancelled CancelFunc) (Outcome, error)
}

// NeverCancelled is a CancelFunc for runs that always complete.
func NeverCancelled() bool { return false }

// Collect runs e to completion and returns every record in order.
// It bypasses any streaming and is the reference path for regression checks.
func Collect(e Engine, p *params.Parameters) ([]Record, Outcome, error) {
	var records []Record
	out, err := e.Execute(p, func(r Record) error {
		records = append(records, r)
		return nil
	}, NeverCancelled)
	return records, out, err
}
