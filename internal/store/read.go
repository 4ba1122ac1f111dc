package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/paysim/paysim/internal/params"
	"github.com/paysim/paysim/internal/sim"
)

// ReadRun returns the run with the given id, or ErrRunNotFound.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, params_fingerprint, params, capacity, status, record_count, error
		FROM runs
		WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns all runs ordered by id. UUIDv7 ids sort by creation time.
//
// Returns an empty slice (not nil) if the store holds no runs.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, params_fingerprint, params, capacity, status, record_count, error
		FROM runs
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var status string
	err := row.Scan(
		&run.ID,
		&run.Fingerprint,
		&run.Params,
		&run.Capacity,
		&status,
		&run.RecordCount,
		&run.Error,
	)
	if err != nil {
		return Run{}, err
	}
	run.Status = RunStatus(status)
	return run, nil
}

// ReadRecords returns the stored records of a run in stream order.
//
// Returns an empty slice (not nil) if the run has no records.
func (s *Store) ReadRecords(ctx context.Context, runID string) ([]sim.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT step, action, amount,
		       name_orig, old_balance_orig, new_balance_orig,
		       name_dest, old_balance_dest, new_balance_dest,
		       is_fraud, is_flagged_fraud, is_unauthorized_overdraft
		FROM records
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []sim.Record{}
	for rows.Next() {
		var row recordRow
		err := rows.Scan(
			&row.Step,
			&row.Action,
			&row.Amount,
			&row.NameOrig,
			&row.OldBalanceOrig,
			&row.NewBalanceOrig,
			&row.NameDest,
			&row.OldBalanceDest,
			&row.NewBalanceDest,
			&row.IsFraud,
			&row.IsFlaggedFraud,
			&row.IsUnauthorizedOverdraft,
		)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r, err := row.toRecord()
		if err != nil {
			return nil, fmt.Errorf("record %d of run %s: %w", len(records)+1, runID, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// ReadRecordLines returns the raw log lines of a stored run, exactly as the
// consumer received them.
func (s *Store) ReadRecordLines(ctx context.Context, runID string) ([]string, error) {
	records, err := s.ReadRecords(ctx, runID)
	if err != nil {
		return nil, err
	}
	lines := make([]string, len(records))
	for i, r := range records {
		lines[i] = r.String()
	}
	return lines, nil
}

// Summary aggregates the stored records of one run.
type Summary struct {
	Records    int
	ByType     map[params.TxType]int
	Fraud      int
	Flagged    int
	Overdrafts int
}

// Summarize counts a run's records per transaction type and flag.
func (s *Store) Summarize(ctx context.Context, runID string) (Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT action,
		       COUNT(*),
		       SUM(is_fraud),
		       SUM(is_flagged_fraud),
		       SUM(is_unauthorized_overdraft)
		FROM records
		WHERE run_id = ?
		GROUP BY action
		ORDER BY action ASC
	`, runID)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize run %s: %w", runID, err)
	}
	defer rows.Close()

	sum := Summary{ByType: make(map[params.TxType]int)}
	for rows.Next() {
		var action string
		var count, fraud, flagged, overdrafts int
		if err := rows.Scan(&action, &count, &fraud, &flagged, &overdrafts); err != nil {
			return Summary{}, fmt.Errorf("scan summary: %w", err)
		}
		sum.ByType[params.TxType(action)] = count
		sum.Records += count
		sum.Fraud += fraud
		sum.Flagged += flagged
		sum.Overdrafts += overdrafts
	}
	if err := rows.Err(); err != nil {
		return Summary{}, fmt.Errorf("iterate summary: %w", err)
	}
	return sum, nil
}
