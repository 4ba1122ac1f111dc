package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/paysim/paysim/internal/metrics"
	"github.com/paysim/paysim/internal/params"
	"github.com/paysim/paysim/internal/rawlog"
	"github.com/paysim/paysim/internal/stream"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RunOptions
	Reference string
}

// VerifyResult reports a comparison against a reference log.
type VerifyResult struct {
	Reference   string `json:"reference"`
	RunID       string `json:"run_id"`
	Fingerprint string `json:"fingerprint"`
	Match       bool   `json:"match"`
	Lines       int    `json:"lines"`
	Mismatch    string `json:"mismatch,omitempty"`
}

func (r VerifyResult) renderText(w io.Writer) {
	if r.Match {
		fmt.Fprintf(w, "✓ stream matches %s (%d records)\n", r.Reference, r.Lines)
		return
	}
	fmt.Fprintf(w, "✗ stream differs from %s after %d matching records\n", r.Reference, r.Lines)
	fmt.Fprintf(w, "  %s\n", r.Mismatch)
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return newVerifyCommand(&VerifyOptions{RunOptions: &RunOptions{RootOptions: rootOpts}})
}

func newVerifyCommand(opts *VerifyOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare a fresh stream with a reference raw log",
		Long: `Stream the simulation and compare it line by line with a known-good
raw log (plain or gzip). The run is aborted at the first difference.

Exit codes:
  0 - Stream matches the reference
  1 - Mismatch, including a stream longer or shorter than the reference,
      or an engine failure
  2 - Command error (unreadable reference, invalid parameters, etc.)

Example:
  paysim verify --reference golden.csv.gz --seed 7 --steps 30`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, cmd)
		},
	}

	addParamsFlags(cmd, &opts.ParamsOptions)
	cmd.Flags().StringVarP(&opts.Reference, "reference", "r", "", "reference raw log (required)")
	cmd.Flags().IntVar(&opts.Capacity, "capacity", stream.DefaultCapacity, "records buffered between the simulation and the consumer")
	_ = cmd.MarkFlagRequired("reference")

	return cmd
}

func runVerify(opts *VerifyOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if opts.Capacity < 1 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid capacity %d: must be >= 1", opts.Capacity))
	}
	p, err := loadParams(&opts.ParamsOptions, cmd.Flags())
	if err != nil {
		return err
	}
	fingerprint, err := params.Fingerprint(p)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to fingerprint parameters", err)
	}

	reference, err := rawlog.ReadLines(opts.Reference)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read reference", err)
	}
	formatter.VerboseLog("Loaded %d reference records from %s", len(reference), opts.Reference)

	it := newIterator(opts.RunOptions, p, logger, metrics.New())
	ctx := commandContext(cmd)
	if err := it.Start(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to start run", err)
	}

	matched, mismatch := rawlog.Compare(reference, func() (string, bool) {
		r, ok := it.Next()
		if !ok {
			return "", false
		}
		return r.String(), true
	})
	it.Abort()

	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownGrace)
	defer cancel()
	if err := it.Wait(waitCtx); errors.Is(err, context.DeadlineExceeded) {
		return NewExitError(ExitFailure, fmt.Sprintf("run %s: worker still running after %s", it.RunID(), ShutdownGrace))
	}

	result := VerifyResult{
		Reference:   opts.Reference,
		RunID:       it.RunID(),
		Fingerprint: fingerprint,
		Match:       mismatch == nil,
		Lines:       matched,
	}

	if runErr := it.Err(); runErr != nil {
		result.Match = false
		result.Mismatch = runErr.Error()
		_ = formatter.Error(ErrCodeEngine, "simulation failed", result)
		return WrapExitError(ExitFailure, "simulation failed", runErr)
	}
	if mismatch != nil {
		result.Mismatch = mismatch.Error()
		_ = formatter.Error(ErrCodeMismatch, "stream does not match reference", result)
		return WrapExitError(ExitFailure, "stream does not match reference", mismatch)
	}
	return formatter.Success(result)
}
