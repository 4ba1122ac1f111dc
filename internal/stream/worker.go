package stream

import (
	"context"
	"errors"
	"log/slog"
	"runtime/pprof"
	"sync/atomic"

	"github.com/paysim/paysim/internal/metrics"
	"github.com/paysim/paysim/internal/params"
	"github.com/paysim/paysim/internal/sim"
)

// WorkerLabel is the pprof label key carried by every worker goroutine.
// Its value is the run id.
const WorkerLabel = "paysim.worker"

// worker owns the lifetime of one engine run.
//
// CRITICAL: outcome and err are written by run before the handoff is sealed
// and before done is closed. Readers must observe one of those first.
type worker struct {
	id        string
	engine    sim.Engine
	params    *params.Parameters
	out       *handoff
	quit      <-chan struct{}
	cancelled *atomic.Bool
	logger    *slog.Logger
	metrics   *metrics.Collector
	done      chan struct{}

	outcome sim.Outcome
	err     error
}

// run is the body of the worker goroutine. It always seals the handoff and
// closes done, whatever the engine does.
func (w *worker) run(ctx context.Context) {
	defer close(w.done)

	pprof.Do(ctx, pprof.Labels(WorkerLabel, w.id), func(ctx context.Context) {
		w.outcome, w.err = w.execute(ctx)
	})

	switch {
	case w.err != nil:
		w.metrics.RunFinished(metrics.OutcomeFailed)
		w.logger.Error("simulation failed",
			"run_id", w.id,
			"records", w.outcome.Records,
			"error", w.err,
		)
	case w.outcome.Cancelled:
		w.metrics.RunFinished(metrics.OutcomeAborted)
		w.logger.Info("worker stopped: run cancelled",
			"run_id", w.id,
			"steps", w.outcome.Steps,
			"records", w.outcome.Records,
		)
	default:
		w.metrics.RunFinished(metrics.OutcomeCompleted)
		w.logger.Info("worker stopped: run completed",
			"run_id", w.id,
			"steps", w.outcome.Steps,
			"records", w.outcome.Records,
		)
	}

	w.out.seal()
}

// execute drives the engine. Panics are recovered here so an engine bug ends
// the stream instead of crashing the process.
func (w *worker) execute(ctx context.Context) (out sim.Outcome, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = sim.NewPanicError(v)
		}
	}()

	emit := func(r sim.Record) error {
		if err := w.out.send(ctx, w.quit, r); err != nil {
			return err
		}
		w.metrics.RecordEmitted()
		return nil
	}
	cancelled := func() bool {
		return w.cancelled.Load() || ctx.Err() != nil
	}

	out, err = w.engine.Execute(w.params, emit, cancelled)
	if errors.Is(err, errCancelled) {
		// the consumer went away while the engine was emitting
		out.Cancelled = true
		err = nil
	}
	return out, err
}
