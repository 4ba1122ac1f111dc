package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/paysim/paysim/internal/params"
)

// Scenario defines one streamed run and the checks it must pass.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are named after it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Engine selects and configures the simulation engine.
	Engine EngineSpec `yaml:"engine"`

	// Params overlays the default parameters (paysim engine only).
	// Keys are the parameter file keys, e.g. seed, steps, transfer_limit.
	Params map[string]any `yaml:"params,omitempty"`

	// Capacity is the handoff capacity. Zero means stream.DefaultCapacity.
	Capacity int `yaml:"capacity,omitempty"`

	// RunID is an optional fixed run id.
	// If empty, defaults to "test-run-default" for deterministic golden file comparison.
	RunID string `yaml:"run_id,omitempty"`

	// Consumer describes how the records are pulled.
	Consumer ConsumerSpec `yaml:"consumer,omitempty"`

	// Assertions validate the consumed stream and the stored run.
	Assertions []Assertion `yaml:"assertions"`
}

// Engine kinds.
const (
	EnginePaySim   = "paysim"
	EngineScripted = "scripted"
)

// EngineSpec selects the engine of a scenario.
type EngineSpec struct {
	// Kind is "paysim" or "scripted".
	Kind string `yaml:"kind"`

	// Steps and PerStep size a scripted run.
	Steps   int `yaml:"steps,omitempty"`
	PerStep int `yaml:"per_step,omitempty"`

	// FailAt and PanicAt inject a failure before the given 0-based record
	// of a scripted run.
	FailAt  *int `yaml:"fail_at,omitempty"`
	PanicAt *int `yaml:"panic_at,omitempty"`
}

// ConsumerSpec describes the consumer side of a scenario.
type ConsumerSpec struct {
	// Limit aborts the run after this many records. Zero reads to the end.
	Limit int `yaml:"limit,omitempty"`
}

// Assertion validates the result of a run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "outcome": uses Outcome
	// - "record_count": uses Count
	// - "type_count": uses Action and Count
	// - "error_code": uses Code
	// - "matches_reference": no fields
	// - "fraud_pairs": no fields
	// - "stored_run": uses Status and Count
	Type string `yaml:"type"`

	// Outcome is the expected termination (completed, aborted, failed).
	Outcome string `yaml:"outcome,omitempty"`

	// Action is a transaction type such as TRANSFER.
	Action string `yaml:"action,omitempty"`

	// Count is an expected number of records.
	Count int `yaml:"count,omitempty"`

	// Code is an expected engine error code such as BALANCE_INVARIANT.
	Code string `yaml:"code,omitempty"`

	// Status is the expected stored run status.
	Status string `yaml:"status,omitempty"`
}

// Assertion type constants.
const (
	AssertOutcome          = "outcome"
	AssertRecordCount      = "record_count"
	AssertTypeCount        = "type_count"
	AssertErrorCode        = "error_code"
	AssertMatchesReference = "matches_reference"
	AssertFraudPairs       = "fraud_pairs"
	AssertStoredRun        = "stored_run"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// Parameters builds the run parameters: the defaults overlaid with Params.
func (s *Scenario) Parameters() (*params.Parameters, error) {
	if len(s.Params) == 0 {
		return params.Default(), nil
	}
	data, err := yaml.Marshal(s.Params)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: encode params: %w", s.Name, err)
	}
	p, err := params.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	return p, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch s.Engine.Kind {
	case EnginePaySim:
		if s.Engine.Steps != 0 || s.Engine.PerStep != 0 || s.Engine.FailAt != nil || s.Engine.PanicAt != nil {
			return fmt.Errorf("engine: steps, per_step, fail_at and panic_at apply to the scripted engine only")
		}
	case EngineScripted:
		if s.Engine.Steps < 1 || s.Engine.PerStep < 1 {
			return fmt.Errorf("engine: scripted engine needs steps >= 1 and per_step >= 1")
		}
		if len(s.Params) > 0 {
			return fmt.Errorf("params: the scripted engine takes no parameters")
		}
	case "":
		return fmt.Errorf("engine.kind is required")
	default:
		return fmt.Errorf("engine: unknown kind %q", s.Engine.Kind)
	}

	if s.Capacity < 0 {
		return fmt.Errorf("capacity must be non-negative")
	}

	if s.Consumer.Limit < 0 {
		return fmt.Errorf("consumer.limit must be non-negative")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertOutcome:
		switch a.Outcome {
		case "completed", "aborted", "failed":
		default:
			return fmt.Errorf("assertions[%d]: outcome must be completed, aborted or failed, got %q", index, a.Outcome)
		}
	case AssertRecordCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for record_count", index)
		}
	case AssertTypeCount:
		if !params.TxType(a.Action).Valid() {
			return fmt.Errorf("assertions[%d]: unknown action %q for type_count", index, a.Action)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for type_count", index)
		}
	case AssertErrorCode:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for error_code", index)
		}
	case AssertMatchesReference, AssertFraudPairs:
	case AssertStoredRun:
		if a.Status == "" {
			return fmt.Errorf("assertions[%d]: status is required for stored_run", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
