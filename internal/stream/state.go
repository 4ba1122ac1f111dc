package stream

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// RunState is the lifecycle state of an Iterator as seen by its consumer.
type RunState int32

const (
	// NotStarted is the initial state; Start is the only legal transition.
	NotStarted RunState = iota
	// Running means the worker has been launched and the stream is open.
	Running
	// Terminated means the stream ended or was aborted. It is final.
	Terminated
)

func (s RunState) String() string {
	switch s {
	case NotStarted:
		return "NotStarted"
	case Running:
		return "Running"
	case Terminated:
		return "Terminated"
	default:
		return fmt.Sprintf("RunState(%d)", int32(s))
	}
}

// ErrAlreadyStarted is returned by every Start after the first one.
var ErrAlreadyStarted = errors.New("stream: iterator already started")

// TransitionError reports an illegal run state transition.
type TransitionError struct {
	From RunState // state observed when the transition was attempted
	To   RunState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("stream: illegal transition %s -> %s", e.From, e.To)
}

// Is makes a rejected start match ErrAlreadyStarted.
func (e *TransitionError) Is(target error) bool {
	return target == ErrAlreadyStarted && e.To == Running
}

// legalTransitions lists every allowed edge of the state machine.
var legalTransitions = map[RunState]RunState{
	NotStarted: Running,
	Running:    Terminated,
}

// runState is an atomic RunState with checked transitions.
type runState struct {
	v atomic.Int32
}

func (s *runState) load() RunState {
	return RunState(s.v.Load())
}

// transition moves from -> to, or returns a *TransitionError naming the
// state actually observed.
func (s *runState) transition(from, to RunState) error {
	if next, ok := legalTransitions[from]; !ok || next != to {
		return &TransitionError{From: from, To: to}
	}
	if !s.v.CompareAndSwap(int32(from), int32(to)) {
		return &TransitionError{From: s.load(), To: to}
	}
	return nil
}
