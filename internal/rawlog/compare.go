package rawlog

import (
	"fmt"
)

// Mismatch describes the first difference between a reference log and a
// record stream. Line is 1-based and does not count the header.
type Mismatch struct {
	Line     int
	Expected string // empty when the stream is longer than the reference
	Got      string // empty when the stream is shorter than the reference
}

func (m *Mismatch) Error() string {
	switch {
	case m.Expected == "":
		return fmt.Sprintf("line %d: unexpected extra record %q", m.Line, m.Got)
	case m.Got == "":
		return fmt.Sprintf("line %d: stream ended, expected %q", m.Line, m.Expected)
	default:
		return fmt.Sprintf("line %d: expected %q, got %q", m.Line, m.Expected, m.Got)
	}
}

// Compare pulls lines from next and compares them with reference in order.
// It stops at the first difference, or when both are exhausted, and
// returns the number of matching lines. next is not called again after it
// returns false or once a difference is found.
func Compare(reference []string, next func() (string, bool)) (int, *Mismatch) {
	for i, want := range reference {
		got, ok := next()
		if !ok {
			return i, &Mismatch{Line: i + 1, Expected: want}
		}
		if got != want {
			return i, &Mismatch{Line: i + 1, Expected: want, Got: got}
		}
	}
	if extra, ok := next(); ok {
		return len(reference), &Mismatch{Line: len(reference) + 1, Got: extra}
	}
	return len(reference), nil
}
