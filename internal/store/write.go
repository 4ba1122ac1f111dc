package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/paysim/paysim/internal/params"
	"github.com/paysim/paysim/internal/sim"
)

// RunStatus is the lifecycle status of a stored run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusAborted   RunStatus = "aborted"
	StatusFailed    RunStatus = "failed"
)

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("store: run not found")

// ErrRunFinished is returned by FinishRun for a run that already left
// StatusRunning.
var ErrRunFinished = errors.New("store: run already finished")

// Run is one stored stream.
type Run struct {
	ID          string
	Fingerprint string
	// Params is the canonical JSON form of the run's parameters.
	Params      string
	Capacity    int
	Status      RunStatus
	RecordCount int
	Error       string
}

// NewRun describes a run about to start with p and the given buffer capacity.
func NewRun(id string, p *params.Parameters, capacity int) (Run, error) {
	fp, err := params.Fingerprint(p)
	if err != nil {
		return Run{}, fmt.Errorf("new run: %w", err)
	}
	data, err := params.MarshalCanonical(p)
	if err != nil {
		return Run{}, fmt.Errorf("new run: %w", err)
	}
	return Run{
		ID:          id,
		Fingerprint: fp,
		Params:      string(data),
		Capacity:    capacity,
		Status:      StatusRunning,
	}, nil
}

// CreateRun inserts a run in StatusRunning. Creating an id twice is an error.
func (s *Store) CreateRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, params_fingerprint, params, capacity, status)
		VALUES (?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Fingerprint,
		run.Params,
		run.Capacity,
		string(StatusRunning),
	)
	if err != nil {
		return fmt.Errorf("create run %s: %w", run.ID, err)
	}
	return nil
}

// WriteRecords stores records of runID at positions firstSeq, firstSeq+1, ...
// in one transaction. Uses ON CONFLICT(run_id, seq) DO NOTHING so a retried
// batch is a no-op. The run must exist (foreign key constraint).
func (s *Store) WriteRecords(ctx context.Context, runID string, firstSeq int, records []sim.Record) (err error) {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write records: begin: %w", err)
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, tx.Rollback())
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records
		(run_id, seq, step, action, amount,
		 name_orig, old_balance_orig, new_balance_orig,
		 name_dest, old_balance_dest, new_balance_dest,
		 is_fraud, is_flagged_fraud, is_unauthorized_overdraft)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write records: prepare: %w", err)
	}
	defer func() {
		err = multierr.Append(err, stmt.Close())
	}()

	for i, r := range records {
		row := toRow(r)
		seq := firstSeq + i
		_, err := stmt.ExecContext(ctx,
			runID,
			seq,
			row.Step,
			row.Action,
			row.Amount,
			row.NameOrig,
			row.OldBalanceOrig,
			row.NewBalanceOrig,
			row.NameDest,
			row.OldBalanceDest,
			row.NewBalanceDest,
			row.IsFraud,
			row.IsFlaggedFraud,
			row.IsUnauthorizedOverdraft,
		)
		if err != nil {
			return fmt.Errorf("write record %d of run %s: %w", seq, runID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write records: commit: %w", err)
	}
	return nil
}

// FinishRun moves a running run to its final status.
// Returns ErrRunNotFound for an unknown id and ErrRunFinished when the run
// is no longer running.
func (s *Store) FinishRun(ctx context.Context, runID string, status RunStatus, recordCount int, errText string) error {
	if status == StatusRunning {
		return fmt.Errorf("finish run %s: status %q is not final", runID, status)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, record_count = ?, error = ?
		WHERE id = ? AND status = ?
	`,
		string(status),
		recordCount,
		errText,
		runID,
		string(StatusRunning),
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	if n == 1 {
		return nil
	}

	// distinguish unknown from already finished
	if _, err := s.ReadRun(ctx, runID); err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	return fmt.Errorf("finish run %s: %w", runID, ErrRunFinished)
}

// BatchWriter buffers records of one run and writes them in batches.
//
// Thread-safety: BatchWriter is not safe for concurrent use.
type BatchWriter struct {
	store   *Store
	runID   string
	size    int
	pending []sim.Record
	written int
}

// NewBatchWriter returns a writer flushing every size records (minimum 1).
func (s *Store) NewBatchWriter(runID string, size int) *BatchWriter {
	if size < 1 {
		size = 1
	}
	return &BatchWriter{
		store:   s,
		runID:   runID,
		size:    size,
		pending: make([]sim.Record, 0, size),
	}
}

// Add buffers r and flushes when the batch is full.
func (b *BatchWriter) Add(ctx context.Context, r sim.Record) error {
	b.pending = append(b.pending, r)
	if len(b.pending) < b.size {
		return nil
	}
	return b.Flush(ctx)
}

// Flush writes all buffered records.
func (b *BatchWriter) Flush(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}
	if err := b.store.WriteRecords(ctx, b.runID, b.written+1, b.pending); err != nil {
		return err
	}
	b.written += len(b.pending)
	b.pending = b.pending[:0]
	return nil
}

// Written returns the number of records flushed so far.
func (b *BatchWriter) Written() int {
	return b.written
}
