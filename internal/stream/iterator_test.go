package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/pprof"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/paysim/paysim/internal/metrics"
	"github.com/paysim/paysim/internal/params"
	"github.com/paysim/paysim/internal/sim"
	"github.com/paysim/paysim/internal/testutil"
)

// gracePeriod bounds how long an aborted worker may take to exit.
const gracePeriod = 2 * time.Second

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestIterator(e sim.Engine, p *params.Parameters, opts ...Option) *Iterator {
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return New(e, p, opts...)
}

func drain(it *Iterator) []sim.Record {
	var records []sim.Record
	for {
		r, ok := it.Next()
		if !ok {
			return records
		}
		records = append(records, r)
	}
}

func lines(records []sim.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.String()
	}
	return out
}

func requireDone(t *testing.T, it *Iterator) {
	t.Helper()
	select {
	case <-it.Done():
	case <-time.After(gracePeriod):
		t.Fatalf("worker of run %s still running after %s", it.RunID(), gracePeriod)
	}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// workerAlive reports whether a goroutine labelled with runID exists.
func workerAlive(runID string) bool {
	var buf bytes.Buffer
	if err := pprof.Lookup("goroutine").WriteTo(&buf, 1); err != nil {
		return false
	}
	return strings.Contains(buf.String(), fmt.Sprintf("%q:%q", WorkerLabel, runID))
}

func TestIterator_StartTwice(t *testing.T) {
	e := testutil.NewScriptedEngine(2, 3)
	it := newTestIterator(e, nil)

	require.NoError(t, it.Start(context.Background()))

	err := it.Start(context.Background())
	require.ErrorIs(t, err, ErrAlreadyStarted)
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, Running, te.From)

	assert.Len(t, drain(it), 6)

	// still rejected after the run has ended
	err = it.Start(context.Background())
	require.ErrorIs(t, err, ErrAlreadyStarted)
	require.ErrorAs(t, err, &te)
	assert.Equal(t, Terminated, te.From)

	requireDone(t, it)
}

func TestIterator_BeforeStart(t *testing.T) {
	e := testutil.NewScriptedEngine(1, 1)
	it := newTestIterator(e, nil)

	assert.Equal(t, NotStarted, it.State())
	assert.False(t, it.HasNext())
	_, ok := it.Next()
	assert.False(t, ok)

	it.Abort()
	assert.Equal(t, NotStarted, it.State())
	assert.False(t, it.Aborted())
	assert.Equal(t, Unfinished, it.Termination())
	assert.NoError(t, it.Err())
	assert.False(t, isClosed(it.Done()))
	assert.False(t, e.Started())
}

func TestIterator_MatchesCollect(t *testing.T) {
	p := params.Default()
	engine := sim.NewPaySim(sim.WithLogger(quietLogger()))

	want, wantOut, err := sim.Collect(engine, p)
	require.NoError(t, err)
	require.NotEmpty(t, want)

	for _, capacity := range []int{1, 3, DefaultCapacity} {
		t.Run(fmt.Sprintf("capacity=%d", capacity), func(t *testing.T) {
			it := newTestIterator(engine, p, WithCapacity(capacity))
			require.NoError(t, it.Start(context.Background()))

			got := drain(it)
			assert.Equal(t, lines(want), lines(got))

			requireDone(t, it)
			assert.Equal(t, wantOut, it.Outcome())
			assert.Equal(t, Completed, it.Termination())
			assert.NoError(t, it.Err())
		})
	}
}

func TestIterator_EndOfStreamIsSticky(t *testing.T) {
	it := newTestIterator(testutil.NewScriptedEngine(1, 2), nil)
	require.NoError(t, it.Start(context.Background()))

	assert.Len(t, drain(it), 2)
	for i := 0; i < 3; i++ {
		assert.False(t, it.HasNext())
		r, ok := it.Next()
		assert.False(t, ok)
		assert.Equal(t, sim.Record{}, r)
	}

	assert.Equal(t, Terminated, it.State())
	assert.True(t, isClosed(it.Done()))
	assert.Equal(t, Completed, it.Termination())
	assert.False(t, it.Aborted())
	assert.Equal(t, sim.Outcome{Steps: 1, Records: 2}, it.Outcome())

	// abort after the end is a no-op
	it.Abort()
	assert.False(t, it.Aborted())
}

func TestIterator_HasNextDoesNotConsume(t *testing.T) {
	it := newTestIterator(testutil.NewScriptedEngine(1, 3), nil)
	require.NoError(t, it.Start(context.Background()))

	assert.True(t, it.HasNext())
	assert.True(t, it.HasNext())

	for i := 0; i < 3; i++ {
		require.True(t, it.HasNext())
		r, ok := it.Next()
		require.True(t, ok)
		assert.Equal(t, testutil.Record(1, i).String(), r.String())
	}

	assert.False(t, it.HasNext())
	requireDone(t, it)
}

func TestIterator_AbortLiveness(t *testing.T) {
	e := testutil.NewScriptedEngine(1_000_000, 2)
	it := newTestIterator(e, nil,
		WithCapacity(1),
		WithIDGenerator(testutil.NewFixedIDGenerator("abort-liveness")),
	)
	require.NoError(t, it.Start(context.Background()))

	_, ok := it.Next()
	require.True(t, ok)
	require.Eventually(t, func() bool { return workerAlive("abort-liveness") },
		gracePeriod, 5*time.Millisecond)

	it.Abort()
	assert.Equal(t, Terminated, it.State())
	assert.True(t, it.Aborted())

	// buffered records may still be drained: the capacity plus at most one
	// send that was already in flight when Abort closed quit
	assert.LessOrEqual(t, len(drain(it)), 2)
	_, ok = it.Next()
	assert.False(t, ok)
	assert.False(t, it.HasNext())

	requireDone(t, it)
	assert.Eventually(t, func() bool { return !workerAlive("abort-liveness") },
		gracePeriod, 5*time.Millisecond)
	goleak.VerifyNone(t)

	assert.Equal(t, Aborted, it.Termination())
	assert.NoError(t, it.Err())
	assert.True(t, it.Outcome().Cancelled)
	assert.Less(t, e.Emitted(), 1_000_000)
}

func TestIterator_AbortWithIdleConsumer(t *testing.T) {
	e := testutil.NewScriptedEngine(1_000, 10)
	it := newTestIterator(e, nil, WithCapacity(1))
	require.NoError(t, it.Start(context.Background()))

	require.Eventually(t, func() bool { return e.Emitted() == 1 }, gracePeriod, time.Millisecond)
	it.Abort()

	requireDone(t, it)
	assert.LessOrEqual(t, len(drain(it)), 2)
	_, ok := it.Next()
	assert.False(t, ok)
	assert.False(t, it.HasNext())
	assert.Equal(t, Aborted, it.Termination())
}

func TestIterator_AbortIsIdempotent(t *testing.T) {
	it := newTestIterator(testutil.NewScriptedEngine(1_000, 1), nil, WithCapacity(1))
	require.NoError(t, it.Start(context.Background()))

	assert.NotPanics(t, func() {
		it.Abort()
		it.Abort()
	})
	requireDone(t, it)
	it.Abort()
	assert.Equal(t, Terminated, it.State())
}

func TestIterator_Backpressure(t *testing.T) {
	const capacity = 4
	e := testutil.NewScriptedEngine(100, 1)
	it := newTestIterator(e, nil, WithCapacity(capacity))
	require.NoError(t, it.Start(context.Background()))

	// a stalled consumer stalls the producer at exactly the capacity
	require.Eventually(t, func() bool { return e.Emitted() == capacity }, gracePeriod, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, capacity, e.Emitted())

	consumed := 0
	for i := 0; i < 50; i++ {
		_, ok := it.Next()
		require.True(t, ok)
		consumed++
		assert.LessOrEqual(t, e.Emitted()-consumed, capacity)
	}

	require.Eventually(t, func() bool { return e.Emitted() == consumed+capacity }, gracePeriod, time.Millisecond)

	it.Abort()
	requireDone(t, it)
	assert.LessOrEqual(t, e.Emitted(), consumed+capacity)
}

func TestIterator_EngineFailure(t *testing.T) {
	e := testutil.NewScriptedEngine(3, 2)
	e.FailAt = 3
	it := newTestIterator(e, nil)
	require.NoError(t, it.Start(context.Background()))

	got := drain(it)
	assert.Len(t, got, 3)
	assert.False(t, it.HasNext())
	assert.Equal(t, Terminated, it.State())

	err := it.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, testutil.ErrInjected)
	assert.Equal(t, sim.ErrCodeBalanceInvariant, sim.ErrorCode(err))
	assert.Equal(t, Failed, it.Termination())
	assert.False(t, it.Aborted())

	ctx, cancel := context.WithTimeout(context.Background(), gracePeriod)
	defer cancel()
	assert.Equal(t, err, it.Wait(ctx))
}

func TestIterator_EnginePanicIsRecovered(t *testing.T) {
	e := testutil.NewScriptedEngine(2, 2)
	e.PanicAt = 2
	it := newTestIterator(e, nil)
	require.NoError(t, it.Start(context.Background()))

	assert.Len(t, drain(it), 2)
	requireDone(t, it)

	err := it.Err()
	require.Error(t, err)
	assert.Equal(t, sim.ErrCodePanic, sim.ErrorCode(err))
	assert.Contains(t, err.Error(), "scripted panic at record 2")
	assert.Equal(t, Failed, it.Termination())
}

func TestIterator_InvalidParamsFailRun(t *testing.T) {
	p := params.Default()
	p.Steps = 0
	it := newTestIterator(sim.NewPaySim(sim.WithLogger(quietLogger())), p)
	require.NoError(t, it.Start(context.Background()))

	assert.Empty(t, drain(it))
	assert.Equal(t, sim.ErrCodeInvalidParams, sim.ErrorCode(it.Err()))
}

func TestIterator_ContextCancelActsLikeAbort(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	it := newTestIterator(testutil.NewScriptedEngine(1_000_000, 1), nil, WithCapacity(2))
	require.NoError(t, it.Start(ctx))

	_, ok := it.Next()
	require.True(t, ok)
	cancel()

	requireDone(t, it)
	assert.LessOrEqual(t, len(drain(it)), 3)
	assert.Equal(t, Terminated, it.State())
	assert.True(t, it.Aborted())
	assert.Equal(t, Aborted, it.Termination())
	assert.NoError(t, it.Err())
}

func TestIterator_Records(t *testing.T) {
	it := newTestIterator(testutil.NewScriptedEngine(2, 2), nil)
	require.NoError(t, it.Start(context.Background()))

	var got []string
	for r := range it.Records() {
		got = append(got, r.NameOrig)
	}
	assert.Equal(t, []string{"C0", "C1", "C2", "C3"}, got)
	requireDone(t, it)
}

func TestIterator_RecordsBreakAborts(t *testing.T) {
	it := newTestIterator(testutil.NewScriptedEngine(1_000_000, 1), nil, WithCapacity(8))
	require.NoError(t, it.Start(context.Background()))

	n := 0
	for range it.Records() {
		n++
		if n == 5 {
			break
		}
	}

	assert.Equal(t, Terminated, it.State())
	assert.True(t, it.Aborted())
	requireDone(t, it)
}

func TestIterator_InvalidCapacity(t *testing.T) {
	e := testutil.NewScriptedEngine(1, 1)
	it := newTestIterator(e, nil, WithCapacity(0))

	err := it.Start(context.Background())
	require.ErrorIs(t, err, ErrInvalidCapacity)
	assert.Equal(t, Terminated, it.State())
	assert.True(t, isClosed(it.Done()))

	_, ok := it.Next()
	assert.False(t, ok)
	assert.False(t, it.HasNext())

	assert.ErrorIs(t, it.Start(context.Background()), ErrAlreadyStarted)
	assert.False(t, e.Started())
}

func TestIterator_Metrics(t *testing.T) {
	c := metrics.New()
	it := newTestIterator(testutil.NewScriptedEngine(2, 3), nil, WithMetrics(c), WithCapacity(5))
	require.NoError(t, it.Start(context.Background()))

	assert.Len(t, drain(it), 6)
	requireDone(t, it)

	expected := `
# HELP paysim_records_emitted_total Records handed from the simulation worker to the stream buffer.
# TYPE paysim_records_emitted_total counter
paysim_records_emitted_total 6
# HELP paysim_records_consumed_total Records returned to the stream consumer.
# TYPE paysim_records_consumed_total counter
paysim_records_consumed_total 6
# HELP paysim_runs_total Finished simulation runs by outcome.
# TYPE paysim_runs_total counter
paysim_runs_total{outcome="completed"} 1
# HELP paysim_handoff_capacity Capacity of the bounded buffer between worker and consumer.
# TYPE paysim_handoff_capacity gauge
paysim_handoff_capacity 5
`
	err := promtestutil.GatherAndCompare(c.Registry(), strings.NewReader(expected),
		"paysim_records_emitted_total",
		"paysim_records_consumed_total",
		"paysim_runs_total",
		"paysim_handoff_capacity",
	)
	assert.NoError(t, err)
}

func TestIterator_RunID(t *testing.T) {
	it := newTestIterator(testutil.NewScriptedEngine(1, 1), nil,
		WithIDGenerator(testutil.NewFixedIDGenerator("run-fixed")))
	assert.Equal(t, "run-fixed", it.RunID())

	def := newTestIterator(testutil.NewScriptedEngine(1, 1), nil)
	id, err := uuid.Parse(def.RunID())
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
}

func TestIterator_WaitHonoursContext(t *testing.T) {
	it := newTestIterator(testutil.NewScriptedEngine(1_000, 1), nil, WithCapacity(1))
	require.NoError(t, it.Start(context.Background()))

	// the worker is blocked on the full buffer
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.True(t, errors.Is(it.Wait(ctx), context.DeadlineExceeded))

	it.Abort()
	waitCtx, waitCancel := context.WithTimeout(context.Background(), gracePeriod)
	defer waitCancel()
	assert.NoError(t, it.Wait(waitCtx))
}
