package harness

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/paysim/paysim/internal/sim"
)

// GoldenBytes renders received lines in raw log form: the header, then one
// line per record. A golden file is therefore also a valid verify reference.
func GoldenBytes(lines []string) []byte {
	var buf strings.Builder
	buf.WriteString(sim.Header)
	buf.WriteString("\n")
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	return []byte(buf.String())
}

// NewGoldie returns the goldie instance used for stream snapshots:
// fixtures live in testdata/scenarios/golden/{name}.golden, the layout the
// test command reads, unless opts override it.
func NewGoldie(t *testing.T, opts ...goldie.Option) *goldie.Goldie {
	t.Helper()
	opts = append([]goldie.Option{
		goldie.WithFixtureDir("testdata/scenarios/golden"),
		goldie.WithNameSuffix(".golden"),
	}, opts...)
	return goldie.New(t, opts...)
}

// RunWithGolden executes a scenario and compares the received records
// against the golden file named after the scenario.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the stream doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...goldie.Option) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	AssertGolden(t, scenario.Name, result, opts...)
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result, opts ...goldie.Option) {
	t.Helper()
	NewGoldie(t, opts...).Assert(t, name, GoldenBytes(result.Lines))
}
