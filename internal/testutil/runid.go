package testutil

import (
	"fmt"
	"sync"
)

// FixedIDGenerator generates the same run id every time.
//
// Log lines, stored runs and golden files that embed the run id stay
// byte-identical across test runs.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a generator returning id.
//
// If id is empty, Generate() returns "test-run-default".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed run id.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}

// SequenceIDGenerator generates "run-000001", "run-000002", ...
//
// Unlike FixedIDGenerator it gives every run its own id, which tests need
// when several runs share one store.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequenceIDGenerator struct {
	mu  sync.Mutex
	seq int64
}

// NewSequenceIDGenerator creates a generator whose first id is "run-000001".
func NewSequenceIDGenerator() *SequenceIDGenerator {
	return &SequenceIDGenerator{}
}

// Generate increments the sequence and returns the next id.
func (g *SequenceIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("run-%06d", g.seq)
}

// Reset restarts the sequence. The next id is "run-000001" again.
func (g *SequenceIDGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
