package cli

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/paysim/paysim/internal/params"
	"github.com/paysim/paysim/internal/store"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Database string
	RunID    string
}

// StoredRun is one run as listed by the runs command.
type StoredRun struct {
	ID          string         `json:"id"`
	Status      string         `json:"status"`
	Records     int            `json:"records"`
	Capacity    int            `json:"capacity"`
	Fingerprint string         `json:"fingerprint"`
	Error       string         `json:"error,omitempty"`
	ByType      map[string]int `json:"by_type,omitempty"`
	Fraud       int            `json:"fraud,omitempty"`
	Flagged     int            `json:"flagged,omitempty"`
}

// RunsResult lists stored runs.
type RunsResult struct {
	Runs []StoredRun `json:"runs"`
}

func (r RunsResult) renderText(w io.Writer) {
	if len(r.Runs) == 0 {
		fmt.Fprintln(w, "No runs stored.")
		return
	}
	for _, run := range r.Runs {
		fmt.Fprintf(w, "%s  %-9s %8d records  capacity %d\n", run.ID, run.Status, run.Records, run.Capacity)
		if run.Error != "" {
			fmt.Fprintf(w, "  error: %s\n", run.Error)
		}
		if run.ByType == nil {
			continue
		}
		fmt.Fprintf(w, "  fingerprint: %s\n", run.Fingerprint)
		types := make([]string, 0, len(run.ByType))
		for t := range run.ByType {
			types = append(types, t)
		}
		slices.Sort(types)
		for _, t := range types {
			fmt.Fprintf(w, "  %-9s %d\n", t, run.ByType[t])
		}
		fmt.Fprintf(w, "  fraud %d, flagged %d\n", run.Fraud, run.Flagged)
	}
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List runs stored by run --db",
		Long: `List the runs stored in a database by "paysim run --db".

With --run only that run is shown, with its record counts per
transaction type.

Example:
  paysim runs --db runs.db
  paysim runs --db runs.db --run 0190c1f2-...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "show a single run with its summary")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runRuns(opts *RunsOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	ctx := commandContext(cmd)

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.RunID == "" {
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		result := RunsResult{Runs: make([]StoredRun, 0, len(runs))}
		for _, run := range runs {
			result.Runs = append(result.Runs, toStoredRun(run))
		}
		return formatter.Success(result)
	}

	run, err := st.ReadRun(ctx, opts.RunID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	summary, err := st.Summarize(ctx, opts.RunID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to summarize run", err)
	}

	sr := toStoredRun(run)
	sr.ByType = make(map[string]int, len(summary.ByType))
	for _, t := range params.TxTypes {
		sr.ByType[string(t)] = summary.ByType[t]
	}
	sr.Fraud = summary.Fraud
	sr.Flagged = summary.Flagged
	return formatter.Success(RunsResult{Runs: []StoredRun{sr}})
}

func toStoredRun(run store.Run) StoredRun {
	return StoredRun{
		ID:          run.ID,
		Status:      string(run.Status),
		Records:     run.RecordCount,
		Capacity:    run.Capacity,
		Fingerprint: run.Fingerprint,
		Error:       run.Error,
	}
}
