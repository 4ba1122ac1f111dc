package stream

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunState_String(t *testing.T) {
	assert.Equal(t, "NotStarted", NotStarted.String())
	assert.Equal(t, "Running", Running.String())
	assert.Equal(t, "Terminated", Terminated.String())
	assert.Equal(t, "RunState(7)", RunState(7).String())
}

func TestRunState_Transitions(t *testing.T) {
	tests := []struct {
		name  string
		start RunState
		from  RunState
		to    RunState
		ok    bool
	}{
		{"start", NotStarted, NotStarted, Running, true},
		{"terminate", Running, Running, Terminated, true},
		{"restart", Terminated, NotStarted, Running, false},
		{"start twice", Running, NotStarted, Running, false},
		{"skip running", NotStarted, NotStarted, Terminated, false},
		{"resurrect", Terminated, Terminated, Running, false},
		{"terminate twice", Terminated, Running, Terminated, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s runState
			s.v.Store(int32(tt.start))

			err := s.transition(tt.from, tt.to)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.to, s.load())
				return
			}

			var te *TransitionError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, tt.start, te.From, "error reports the observed state")
			assert.Equal(t, tt.start, s.load(), "state unchanged")
		})
	}
}

func TestTransitionError_IsAlreadyStarted(t *testing.T) {
	assert.ErrorIs(t, &TransitionError{From: Running, To: Running}, ErrAlreadyStarted)
	assert.ErrorIs(t, &TransitionError{From: Terminated, To: Running}, ErrAlreadyStarted)
	assert.NotErrorIs(t, &TransitionError{From: NotStarted, To: Terminated}, ErrAlreadyStarted)
	assert.Equal(t, "stream: illegal transition Terminated -> Running",
		(&TransitionError{From: Terminated, To: Running}).Error())
}

func TestRunState_StartRace(t *testing.T) {
	var s runState
	var wins atomic.Int32

	const goroutines = 64
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			if s.transition(NotStarted, Running) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, Running, s.load())
}
