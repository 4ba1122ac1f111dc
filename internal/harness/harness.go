package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.uber.org/multierr"

	"github.com/paysim/paysim/internal/metrics"
	"github.com/paysim/paysim/internal/params"
	"github.com/paysim/paysim/internal/sim"
	"github.com/paysim/paysim/internal/store"
	"github.com/paysim/paysim/internal/stream"
	"github.com/paysim/paysim/internal/testutil"
)

// GracePeriod bounds how long the harness waits for an aborted worker.
const GracePeriod = 2 * time.Second

// storeBatchSize is the number of records per store transaction.
const storeBatchSize = 256

// Harness holds the collaborators of one scenario execution.
type Harness struct {
	store   *store.Store
	engine  sim.Engine
	params  *params.Parameters
	metrics *metrics.Collector
	logger  *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Build the engine and parameters
// 2. Stream the run through a stream.Iterator, honouring the consumer limit
// 3. Persist consumed records and the final run status
// 4. Evaluate assertions against the result and the store
func Run(scenario *Scenario) (result *Result, err error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer func() {
		err = multierr.Append(err, st.Close())
	}()

	p, err := scenario.Parameters()
	if err != nil {
		return nil, err
	}

	h := &Harness{
		store:   st,
		engine:  buildEngine(scenario.Engine),
		params:  p,
		metrics: metrics.New(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	ctx := context.Background()
	result, err = h.stream(ctx, scenario)
	if err != nil {
		return nil, err
	}

	actx := &AssertionContext{
		Ctx:    ctx,
		Store:  st,
		Engine: h.engine,
		Params: p,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

func buildEngine(spec EngineSpec) sim.Engine {
	if spec.Kind == EngineScripted {
		e := testutil.NewScriptedEngine(spec.Steps, spec.PerStep)
		if spec.FailAt != nil {
			e.FailAt = *spec.FailAt
		}
		if spec.PanicAt != nil {
			e.PanicAt = *spec.PanicAt
		}
		return e
	}
	return sim.NewPaySim(sim.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

// stream consumes the run like a real caller and records what it saw.
func (h *Harness) stream(ctx context.Context, scenario *Scenario) (*Result, error) {
	capacity := scenario.Capacity
	if capacity == 0 {
		capacity = stream.DefaultCapacity
	}

	it := stream.New(h.engine, h.params,
		stream.WithCapacity(capacity),
		stream.WithLogger(h.logger),
		stream.WithMetrics(h.metrics),
		stream.WithIDGenerator(testutil.NewFixedIDGenerator(scenario.RunID)),
	)

	run, err := store.NewRun(it.RunID(), h.params, capacity)
	if err != nil {
		return nil, err
	}
	if err := h.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	if err := it.Start(ctx); err != nil {
		return nil, fmt.Errorf("start stream: %w", err)
	}

	result := NewResult()
	result.RunID = it.RunID()
	batch := h.store.NewBatchWriter(it.RunID(), storeBatchSize)

	for {
		if scenario.Consumer.Limit > 0 && len(result.Lines) == scenario.Consumer.Limit {
			it.Abort()
			break
		}
		r, ok := it.Next()
		if !ok {
			break
		}
		result.Lines = append(result.Lines, r.String())
		if err := batch.Add(ctx, r); err != nil {
			it.Abort()
			return nil, multierr.Append(err, waitDone(it))
		}
	}

	if err := waitDone(it); err != nil {
		return nil, err
	}
	if err := batch.Flush(ctx); err != nil {
		return nil, err
	}

	result.Termination = it.Termination()
	if runErr := it.Err(); runErr != nil {
		result.ErrorCode = string(sim.ErrorCode(runErr))
		result.Error = runErr.Error()
	}

	status := store.RunStatus(result.Termination)
	if err := h.store.FinishRun(ctx, it.RunID(), status, len(result.Lines), result.Error); err != nil {
		return nil, err
	}

	h.logger.Info("scenario streamed",
		"scenario", scenario.Name,
		"run_id", it.RunID(),
		"records", len(result.Lines),
		"termination", result.Termination,
	)
	return result, nil
}

// waitDone waits for the worker goroutine to exit.
func waitDone(it *stream.Iterator) error {
	select {
	case <-it.Done():
		return nil
	case <-time.After(GracePeriod):
		return fmt.Errorf("worker of run %s still running after %s", it.RunID(), GracePeriod)
	}
}
