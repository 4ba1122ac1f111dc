package harness

import (
	"github.com/paysim/paysim/internal/stream"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success.
	// True if all assertions hold.
	Pass bool `json:"pass"`

	// RunID is the id of the streamed run.
	RunID string `json:"run_id"`

	// Lines holds the raw log line of every record the consumer received,
	// in order. Used for golden comparison.
	Lines []string `json:"lines"`

	// Termination is how the run ended from the consumer's point of view.
	Termination stream.Termination `json:"termination"`

	// ErrorCode is the engine error code of a failed run, empty otherwise.
	ErrorCode string `json:"error_code,omitempty"`

	// Error is the engine error message of a failed run.
	Error string `json:"error,omitempty"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Lines:  []string{},
		Errors: []string{},
	}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
