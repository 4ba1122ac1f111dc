package stream

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync/atomic"

	"github.com/paysim/paysim/internal/metrics"
	"github.com/paysim/paysim/internal/params"
	"github.com/paysim/paysim/internal/sim"
)

// DefaultCapacity is the handoff capacity used when WithCapacity is not given.
const DefaultCapacity = 1000

// Iterator streams the records of a single simulation run.
//
// Thread-safety model:
//   - Start, HasNext, Next, Abort, Records, Aborted, Err, Outcome: one
//     consumer goroutine only
//   - State, Done, Wait, RunID: safe from any goroutine
//   - Err, Outcome: meaningful once Done() is closed or Next returned false
//
// INVARIANTS:
//   - one Iterator = one run, ever; Start succeeds at most once
//   - records come out in the order the engine emitted them
//   - once Next returns false it always returns false, without blocking
type Iterator struct {
	engine   sim.Engine
	params   *params.Parameters
	capacity int
	runID    string
	logger   *slog.Logger
	metrics  *metrics.Collector

	state     runState
	cancelled atomic.Bool
	quit      chan struct{}
	done      chan struct{}

	ch *handoff
	w  *worker

	// consumer-owned
	peeked    sim.Record
	hasPeeked bool
	exhausted bool
}

// Option configures an Iterator.
type Option func(*Iterator)

// WithCapacity sets the number of records that may be pending between the
// worker and the consumer. Values < 1 make Start fail with ErrInvalidCapacity.
func WithCapacity(n int) Option {
	return func(it *Iterator) {
		it.capacity = n
	}
}

// WithLogger sets the logger for stream lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(it *Iterator) {
		it.logger = l
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(it *Iterator) {
		it.metrics = c
	}
}

// WithIDGenerator overrides the run id generator (default UUIDv7Generator).
func WithIDGenerator(g IDGenerator) Option {
	return func(it *Iterator) {
		it.runID = g.Generate()
	}
}

// New creates an Iterator for one run of engine with p. Nothing runs until
// Start is called.
func New(engine sim.Engine, p *params.Parameters, opts ...Option) *Iterator {
	it := &Iterator{
		engine:   engine,
		params:   p,
		capacity: DefaultCapacity,
		logger:   slog.Default(),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(it)
	}
	if it.runID == "" {
		it.runID = UUIDv7Generator{}.Generate()
	}
	return it
}

// Start launches the worker. It does not wait for any record.
//
// Start succeeds once. Every later call returns an error matching
// ErrAlreadyStarted, including after the run has finished. Cancelling ctx
// cancels the run the same way Abort does.
func (it *Iterator) Start(ctx context.Context) error {
	if err := it.state.transition(NotStarted, Running); err != nil {
		return fmt.Errorf("start run %s: %w", it.runID, err)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ch, err := newHandoff(it.capacity)
	if err != nil {
		// the iterator is spent even though no worker ran
		it.exhausted = true
		_ = it.state.transition(Running, Terminated)
		close(it.done)
		return fmt.Errorf("start run %s: %w", it.runID, err)
	}
	it.ch = ch
	it.metrics.SetCapacity(ch.Cap())

	it.w = &worker{
		id:        it.runID,
		engine:    it.engine,
		params:    it.params,
		out:       ch,
		quit:      it.quit,
		cancelled: &it.cancelled,
		logger:    it.logger,
		metrics:   it.metrics,
		done:      it.done,
	}

	it.logger.Info("stream started", "run_id", it.runID, "capacity", ch.Cap())
	go it.w.run(ctx)
	return nil
}

// HasNext reports whether Next will return a record. It blocks until the
// worker produces a record or ends the stream; the record is held and
// returned by the following Next.
func (it *Iterator) HasNext() bool {
	if it.hasPeeked {
		return true
	}
	r, ok := it.receive()
	if !ok {
		return false
	}
	it.peeked, it.hasPeeked = r, true
	return true
}

// Next returns the next record, blocking until one is available. It returns
// false at the end of the stream and on every call after that. Before Start
// it returns false.
func (it *Iterator) Next() (sim.Record, bool) {
	if it.hasPeeked {
		r := it.peeked
		it.peeked, it.hasPeeked = sim.Record{}, false
		it.metrics.RecordConsumed()
		return r, true
	}
	r, ok := it.receive()
	if !ok {
		return sim.Record{}, false
	}
	it.metrics.RecordConsumed()
	return r, true
}

func (it *Iterator) receive() (sim.Record, bool) {
	if it.exhausted || it.ch == nil {
		return sim.Record{}, false
	}
	r, ok := it.ch.receive()
	if !ok {
		it.exhausted = true
		// Abort may already have terminated the stream
		_ = it.state.transition(Running, Terminated)
		return sim.Record{}, false
	}
	return r, true
}

// Abort asks the run to stop and returns immediately. The worker stops at
// the next step boundary, or at once if it is blocked on a full buffer.
// Records already buffered are still returned by Next before the end of the
// stream. Abort is a no-op unless the stream is Running.
func (it *Iterator) Abort() {
	if it.state.transition(Running, Terminated) != nil {
		return
	}
	it.cancelled.Store(true)
	close(it.quit)
	it.logger.Info("stream abort requested", "run_id", it.runID, "buffered", it.ch.Len())
}

// Records adapts the stream to range-over-func. Breaking out of the loop
// aborts the run.
func (it *Iterator) Records() iter.Seq[sim.Record] {
	return func(yield func(sim.Record) bool) {
		for {
			r, ok := it.Next()
			if !ok {
				return
			}
			if !yield(r) {
				it.Abort()
				return
			}
		}
	}
}

// Wait blocks until the worker goroutine has exited or ctx is done. It
// returns the run's engine error, or ctx.Err(). Because the worker blocks on
// a full buffer, Wait only returns for an unread stream after Abort.
func (it *Iterator) Wait(ctx context.Context) error {
	select {
	case <-it.done:
		return it.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current run state.
func (it *Iterator) State() RunState {
	return it.state.load()
}

// Aborted reports whether the run was cancelled by Abort or its context.
func (it *Iterator) Aborted() bool {
	if it.cancelled.Load() {
		return true
	}
	return it.finished() && it.w.outcome.Cancelled
}

// Err returns the engine failure of a finished run. It is nil while the run
// is in progress, after success and after cancellation.
func (it *Iterator) Err() error {
	if !it.finished() {
		return nil
	}
	return it.w.err
}

// Outcome returns the engine's summary of a finished run.
func (it *Iterator) Outcome() sim.Outcome {
	if !it.finished() {
		return sim.Outcome{}
	}
	return it.w.outcome
}

// Termination is how a finished run ended, from the consumer's point of view.
type Termination string

const (
	// Unfinished: the worker has not exited yet.
	Unfinished Termination = ""
	Completed  Termination = "completed"
	Aborted    Termination = "aborted"
	Failed     Termination = "failed"
)

// Termination classifies the run once the worker has exited. An engine
// error wins over cancellation; a run aborted after the engine completed
// still counts as aborted.
func (it *Iterator) Termination() Termination {
	switch {
	case !it.finished():
		return Unfinished
	case it.w.err != nil:
		return Failed
	case it.Aborted():
		return Aborted
	default:
		return Completed
	}
}

// Done returns a channel closed once the worker goroutine has exited. It
// never closes for an iterator that was not started.
func (it *Iterator) Done() <-chan struct{} {
	return it.done
}

// RunID identifies this run in logs, metrics and stored runs.
func (it *Iterator) RunID() string {
	return it.runID
}

// finished reports whether worker results may be read.
func (it *Iterator) finished() bool {
	if it.w == nil {
		return false
	}
	select {
	case <-it.done:
		return true
	default:
		return it.exhausted
	}
}
