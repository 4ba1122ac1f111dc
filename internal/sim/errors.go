package sim

import (
	"errors"
	"fmt"
)

// EngineError represents a failure detected while running a simulation.
//
// Engine errors include:
//   - Invalid parameters: rejected before the first step
//   - Balance invariant: an account went negative
//   - Emit failure: the record consumer refused a record
//   - Panic: recovered at the worker boundary
type EngineError struct {
	// Code identifies the error category.
	Code EngineErrorCode

	// Step is the step being computed, or -1 before the first step or when
	// the failing step is unknown.
	Step int

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// EngineErrorCode categorizes engine errors.
type EngineErrorCode string

const (
	// ErrCodeInvalidParams indicates the parameters failed validation.
	ErrCodeInvalidParams EngineErrorCode = "INVALID_PARAMS"

	// ErrCodeBalanceInvariant indicates an account balance went negative.
	ErrCodeBalanceInvariant EngineErrorCode = "BALANCE_INVARIANT"

	// ErrCodeEmitFailed indicates EmitFunc returned an error.
	ErrCodeEmitFailed EngineErrorCode = "EMIT_FAILED"

	// ErrCodePanic indicates the engine panicked.
	ErrCodePanic EngineErrorCode = "PANIC"
)

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Step >= 0 {
		msg = fmt.Sprintf("%s (step=%d)", msg, e.Step)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// IsEngineError returns true if err is or wraps an EngineError.
func IsEngineError(err error) bool {
	var ee *EngineError
	return errors.As(err, &ee)
}

// ErrorCode returns the code of the EngineError in err's chain, or "".
func ErrorCode(err error) EngineErrorCode {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// NewPanicError converts a recovered panic value into an EngineError.
func NewPanicError(v any) *EngineError {
	err, ok := v.(error)
	if !ok {
		err = fmt.Errorf("%v", v)
	}
	return &EngineError{
		Code:    ErrCodePanic,
		Step:    -1,
		Message: "engine panicked",
		Err:     err,
	}
}
