// Package testutil provides deterministic engines and id generators for tests.
package testutil

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/paysim/paysim/internal/params"
	"github.com/paysim/paysim/internal/sim"
)

// ErrInjected is the failure returned by a ScriptedEngine with FailAt set.
var ErrInjected = errors.New("testutil: injected engine failure")

// ScriptedEngine is a sim.Engine with a fixed, parameter-independent record
// sequence and hooks for failure injection.
//
// Record i (0-based, over the whole run) has Step = i/PerStep+1,
// Amount = i and NameOrig = "C<i>", so tests can check order by amount.
//
// Thread-safety: Execute runs on the worker goroutine; Emitted and Started
// may be read from any goroutine.
type ScriptedEngine struct {
	// Steps is the number of steps to run.
	Steps int
	// PerStep is the number of records emitted per step.
	PerStep int
	// FailAt, when >= 0, makes Execute return ErrInjected instead of
	// emitting record FailAt. Negative disables it.
	FailAt int
	// PanicAt, when >= 0, makes Execute panic instead of emitting record
	// PanicAt. Negative disables it.
	PanicAt int
	// OnStep, if set, is called at the start of every step with its number.
	OnStep func(step int)

	emitted atomic.Int64
	started atomic.Bool
}

// NewScriptedEngine creates an engine emitting steps*perStep records with
// no failure injected.
func NewScriptedEngine(steps, perStep int) *ScriptedEngine {
	return &ScriptedEngine{
		Steps:   steps,
		PerStep: perStep,
		FailAt:  -1,
		PanicAt: -1,
	}
}

// Execute implements sim.Engine. Parameters are ignored.
func (e *ScriptedEngine) Execute(_ *params.Parameters, emit sim.EmitFunc, cancelled sim.CancelFunc) (sim.Outcome, error) {
	e.started.Store(true)

	var out sim.Outcome
	i := 0
	for step := 1; step <= e.Steps; step++ {
		if cancelled() {
			out.Cancelled = true
			return out, nil
		}
		if e.OnStep != nil {
			e.OnStep(step)
		}
		for j := 0; j < e.PerStep; j++ {
			if i == e.FailAt {
				return out, &sim.EngineError{
					Code:    sim.ErrCodeBalanceInvariant,
					Step:    step,
					Message: fmt.Sprintf("scripted failure at record %d", i),
					Err:     ErrInjected,
				}
			}
			if i == e.PanicAt {
				panic(fmt.Sprintf("scripted panic at record %d", i))
			}
			if err := emit(Record(step, i)); err != nil {
				return out, err
			}
			e.emitted.Add(1)
			out.Records++
			i++
		}
		out.Steps++
	}
	return out, nil
}

// Emitted returns the number of records whose emit call has returned
// successfully.
func (e *ScriptedEngine) Emitted() int {
	return int(e.emitted.Load())
}

// Started reports whether Execute has been entered.
func (e *ScriptedEngine) Started() bool {
	return e.started.Load()
}

// Record builds record i of step the way ScriptedEngine does.
func Record(step, i int) sim.Record {
	return sim.Record{
		Step:           step,
		Type:           params.Payment,
		Amount:         decimal.NewFromInt(int64(i)),
		NameOrig:       fmt.Sprintf("C%d", i),
		OldBalanceOrig: decimal.NewFromInt(1000),
		NewBalanceOrig: decimal.NewFromInt(int64(1000 - i)),
		NameDest:       "M1",
	}
}
