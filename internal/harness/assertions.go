package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/paysim/paysim/internal/params"
	"github.com/paysim/paysim/internal/rawlog"
	"github.com/paysim/paysim/internal/sim"
	"github.com/paysim/paysim/internal/store"
	"github.com/paysim/paysim/internal/stream"
)

// maxContextLines limits how many received lines an AssertionError prints.
const maxContextLines = 10

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Lines    []string // Received lines for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Lines) > 0 {
		fmt.Fprintf(&buf, "\nReceived records (%d):\n", len(e.Lines))
		for i, line := range e.Lines {
			if i == maxContextLines {
				fmt.Fprintf(&buf, "  ... %d more\n", len(e.Lines)-maxContextLines)
				break
			}
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, line)
		}
	}

	return buf.String()
}

// AssertionContext carries what assertions need beyond the Result.
type AssertionContext struct {
	Ctx    context.Context
	Store  *store.Store
	Engine sim.Engine
	Params *params.Parameters
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluateAssertion(result, a, actx); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluateAssertion(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertOutcome:
		return assertOutcome(result, a)
	case AssertRecordCount:
		return assertRecordCount(result, a)
	case AssertTypeCount:
		return assertTypeCount(result, a)
	case AssertErrorCode:
		return assertErrorCode(result, a)
	case AssertMatchesReference:
		return assertMatchesReference(result, actx)
	case AssertFraudPairs:
		return assertFraudPairs(result)
	case AssertStoredRun:
		return assertStoredRun(result, a, actx)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertOutcome(result *Result, a Assertion) error {
	if string(result.Termination) == a.Outcome {
		return nil
	}
	actual := string(result.Termination)
	if result.Error != "" {
		actual += " (" + result.Error + ")"
	}
	return &AssertionError{
		Type:     AssertOutcome,
		Expected: a.Outcome,
		Actual:   actual,
		Lines:    result.Lines,
	}
}

func assertRecordCount(result *Result, a Assertion) error {
	if len(result.Lines) == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertRecordCount,
		Expected: fmt.Sprintf("%d records", a.Count),
		Actual:   fmt.Sprintf("%d records", len(result.Lines)),
		Lines:    result.Lines,
	}
}

// lineField returns the i-th comma separated field of a raw log line.
func lineField(line string, i int) string {
	fields := strings.Split(line, ",")
	if i >= len(fields) {
		return ""
	}
	return fields[i]
}

// Raw log columns used by assertions.
const (
	colAction  = 1
	colIsFraud = 9
	colFlagged = 10
)

func assertTypeCount(result *Result, a Assertion) error {
	count := 0
	for _, line := range result.Lines {
		if lineField(line, colAction) == a.Action {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTypeCount,
		Expected: fmt.Sprintf("%d %s records", a.Count, a.Action),
		Actual:   fmt.Sprintf("%d %s records", count, a.Action),
		Lines:    result.Lines,
	}
}

func assertErrorCode(result *Result, a Assertion) error {
	if result.ErrorCode == a.Code {
		return nil
	}
	return &AssertionError{
		Type:     AssertErrorCode,
		Expected: a.Code,
		Actual:   fmt.Sprintf("%q (%s)", result.ErrorCode, result.Error),
	}
}

// assertMatchesReference replays the same engine without streaming and
// checks the received lines are a prefix of its output. A completed run
// must match the whole reference.
func assertMatchesReference(result *Result, actx *AssertionContext) error {
	records, err := collectReference(actx.Engine, actx.Params)
	if err != nil {
		return err
	}

	reference := make([]string, len(records))
	for i, r := range records {
		reference[i] = r.String()
	}
	if result.Termination != stream.Completed && len(reference) > len(result.Lines) {
		reference = reference[:len(result.Lines)]
	}

	i := 0
	_, mismatch := rawlog.Compare(reference, func() (string, bool) {
		if i >= len(result.Lines) {
			return "", false
		}
		i++
		return result.Lines[i-1], true
	})
	if mismatch == nil {
		return nil
	}
	return &AssertionError{
		Type:     AssertMatchesReference,
		Expected: fmt.Sprintf("stream equal to the direct run (%d lines)", len(reference)),
		Actual:   mismatch.Error(),
	}
}

// collectReference runs e directly. Records emitted before an engine
// failure or panic are kept; the failure itself is part of the scenario.
func collectReference(e sim.Engine, p *params.Parameters) (records []sim.Record, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = nil
		}
	}()
	err = func() error {
		_, err := e.Execute(p, func(r sim.Record) error {
			records = append(records, r)
			return nil
		}, sim.NeverCancelled)
		if err != nil && !sim.IsEngineError(err) {
			return fmt.Errorf("reference run: %w", err)
		}
		return nil
	}()
	return records, err
}

// assertFraudPairs checks that every fraudulent TRANSFER that was not
// blocked is immediately followed by a fraudulent CASH_OUT. A stream cut
// right after the transfer is accepted.
func assertFraudPairs(result *Result) error {
	for i, line := range result.Lines {
		if lineField(line, colAction) != string(params.Transfer) ||
			lineField(line, colIsFraud) != "1" ||
			lineField(line, colFlagged) == "1" {
			continue
		}
		if i+1 == len(result.Lines) {
			return nil
		}
		next := result.Lines[i+1]
		if lineField(next, colAction) != string(params.CashOut) || lineField(next, colIsFraud) != "1" {
			return &AssertionError{
				Type:     AssertFraudPairs,
				Expected: fmt.Sprintf("fraudulent CASH_OUT after line %d", i+1),
				Actual:   next,
			}
		}
	}
	return nil
}

func assertStoredRun(result *Result, a Assertion, actx *AssertionContext) error {
	run, err := actx.Store.ReadRun(actx.Ctx, result.RunID)
	if errors.Is(err, store.ErrRunNotFound) {
		return &AssertionError{
			Type:     AssertStoredRun,
			Expected: fmt.Sprintf("run %s in the store", result.RunID),
			Actual:   "run not found",
		}
	}
	if err != nil {
		return err
	}

	lines, err := actx.Store.ReadRecordLines(actx.Ctx, result.RunID)
	if err != nil {
		return err
	}

	if string(run.Status) != a.Status || run.RecordCount != a.Count || len(lines) != a.Count {
		return &AssertionError{
			Type:     AssertStoredRun,
			Expected: fmt.Sprintf("status %s with %d records", a.Status, a.Count),
			Actual:   fmt.Sprintf("status %s with record_count %d and %d stored records", run.Status, run.RecordCount, len(lines)),
		}
	}
	for i := range lines {
		if lines[i] != result.Lines[i] {
			return &AssertionError{
				Type:     AssertStoredRun,
				Expected: fmt.Sprintf("stored line %d %q", i+1, result.Lines[i]),
				Actual:   lines[i],
			}
		}
	}
	return nil
}
