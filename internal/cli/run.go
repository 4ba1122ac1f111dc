package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/paysim/paysim/internal/metrics"
	"github.com/paysim/paysim/internal/params"
	"github.com/paysim/paysim/internal/rawlog"
	"github.com/paysim/paysim/internal/sim"
	"github.com/paysim/paysim/internal/store"
	"github.com/paysim/paysim/internal/stream"
)

// ShutdownGrace bounds how long a command waits for the worker after the
// consumer stopped reading.
const ShutdownGrace = 5 * time.Second

// storeBatchSize is the number of records per store transaction.
const storeBatchSize = 500

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ParamsOptions
	Capacity    int
	Limit       int
	Output      string
	Database    string
	MetricsFile string

	// Engine allows overriding the simulation engine (for testing).
	// If nil, the PaySim engine is used.
	Engine sim.Engine

	// IDGenerator allows overriding the run id generator (for testing).
	// If nil, defaults to stream.UUIDv7Generator.
	IDGenerator stream.IDGenerator
}

// RunSummary describes a finished run.
type RunSummary struct {
	RunID       string `json:"run_id"`
	Fingerprint string `json:"fingerprint"`
	Outcome     string `json:"outcome"`
	Records     int    `json:"records"`
	Steps       int    `json:"steps"`
	Error       string `json:"error,omitempty"`
	Output      string `json:"output,omitempty"`
	Database    string `json:"database,omitempty"`
}

func (s RunSummary) renderText(w io.Writer) {
	fmt.Fprintf(w, "run %s %s: %d records in %d steps\n", s.RunID, s.Outcome, s.Records, s.Steps)
	fmt.Fprintf(w, "  fingerprint: %s\n", s.Fingerprint)
	if s.Output != "" {
		fmt.Fprintf(w, "  output: %s\n", s.Output)
	}
	if s.Database != "" {
		fmt.Fprintf(w, "  database: %s\n", s.Database)
	}
	if s.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", s.Error)
	}
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Stream a simulation",
		Long: `Run the simulation and stream its records as a raw log.

Records go to stdout unless --output is set; a path ending in .gz is
gzip-compressed. The run summary is printed to stdout when records go to a
file and to stderr otherwise. --limit stops reading after N records and
aborts the run; Ctrl-C aborts it as well. With --db every consumed record
and the final run status are stored in SQLite.

Example:
  paysim run --seed 7 --steps 30 --output run.csv.gz
  paysim run --config params.yaml --limit 1000 --db runs.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(opts, cmd)
		},
	}

	addParamsFlags(cmd, &opts.ParamsOptions)
	cmd.Flags().IntVar(&opts.Capacity, "capacity", stream.DefaultCapacity, "records buffered between the simulation and the consumer")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "abort the run after N records (0 reads to the end)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "raw log path (.gz to compress); stdout when empty")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database receiving the consumed records")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file after the run")

	return cmd
}

// runSink receives consumed records.
type runSink struct {
	log   *rawlog.Writer
	store *store.Store
	batch *store.BatchWriter
}

func (s *runSink) add(ctx context.Context, r sim.Record) error {
	if err := s.log.Write(r); err != nil {
		return err
	}
	if s.batch != nil {
		return s.batch.Add(ctx, r)
	}
	return nil
}

func (s *runSink) close() error {
	err := s.log.Close()
	if s.store != nil {
		err = multierr.Append(err, s.store.Close())
	}
	return err
}

func runSimulation(opts *RunOptions, cmd *cobra.Command) (err error) {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	if opts.Capacity < 1 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid capacity %d: must be >= 1", opts.Capacity))
	}
	if opts.Limit < 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid limit %d: must be >= 0", opts.Limit))
	}

	p, err := loadParams(&opts.ParamsOptions, cmd.Flags())
	if err != nil {
		return err
	}
	fingerprint, err := params.Fingerprint(p)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to fingerprint parameters", err)
	}

	summaryOut := cmd.OutOrStdout()
	sink := &runSink{}
	if opts.Output == "" {
		sink.log = rawlog.NewWriter(cmd.OutOrStdout())
		summaryOut = cmd.ErrOrStderr()
	} else {
		sink.log, err = rawlog.Create(opts.Output)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create output", err)
		}
	}
	defer func() {
		if closeErr := sink.close(); closeErr != nil {
			err = multierr.Append(err, WrapExitError(ExitCommandError, "failed to close output", closeErr))
		}
	}()

	collector := metrics.New()
	it := newIterator(opts, p, logger, collector)

	// Store writes must survive an interrupted run context.
	storeCtx := context.WithoutCancel(commandContext(cmd))
	if opts.Database != "" {
		if err := openRunStore(storeCtx, sink, opts, it, p, logger); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(storeCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, aborting run", "signal", sig, "run_id", it.RunID())
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := it.Start(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to start run", err)
	}

	count, consumeErr := consume(storeCtx, it, sink, opts.Limit)

	waitCtx, waitCancel := context.WithTimeout(storeCtx, ShutdownGrace)
	defer waitCancel()
	if err := it.Wait(waitCtx); errors.Is(err, context.DeadlineExceeded) {
		return NewExitError(ExitFailure, fmt.Sprintf("run %s: worker still running after %s", it.RunID(), ShutdownGrace))
	}
	if consumeErr != nil {
		return WrapExitError(ExitCommandError, "failed to write records", consumeErr)
	}

	summary := RunSummary{
		RunID:       it.RunID(),
		Fingerprint: fingerprint,
		Outcome:     string(it.Termination()),
		Records:     count,
		Steps:       it.Outcome().Steps,
		Output:      opts.Output,
		Database:    opts.Database,
	}
	runErr := it.Err()
	if runErr != nil {
		summary.Error = runErr.Error()
	}

	if sink.batch != nil {
		if err := sink.batch.Flush(storeCtx); err != nil {
			return WrapExitError(ExitCommandError, "failed to store records", err)
		}
		status := store.RunStatus(it.Termination())
		if err := sink.store.FinishRun(storeCtx, it.RunID(), status, count, summary.Error); err != nil {
			return WrapExitError(ExitCommandError, "failed to finish stored run", err)
		}
	}

	if opts.MetricsFile != "" {
		if err := collector.WriteTextfile(opts.MetricsFile); err != nil {
			return WrapExitError(ExitCommandError, "failed to write metrics", err)
		}
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    summaryOut,
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if runErr != nil {
		_ = formatter.Error(ErrCodeEngine, "simulation failed", summary)
		return WrapExitError(ExitFailure, "simulation failed", runErr)
	}
	return formatter.Success(summary)
}

// newIterator builds the stream of a command from its options.
func newIterator(opts *RunOptions, p *params.Parameters, logger *slog.Logger, collector *metrics.Collector) *stream.Iterator {
	engine := opts.Engine
	if engine == nil {
		engine = sim.NewPaySim(sim.WithLogger(logger))
	}
	streamOpts := []stream.Option{
		stream.WithCapacity(opts.Capacity),
		stream.WithLogger(logger),
		stream.WithMetrics(collector),
	}
	if opts.IDGenerator != nil {
		streamOpts = append(streamOpts, stream.WithIDGenerator(opts.IDGenerator))
	}
	return stream.New(engine, p, streamOpts...)
}

// openRunStore opens the database and registers the run in it.
func openRunStore(ctx context.Context, sink *runSink, opts *RunOptions, it *stream.Iterator, p *params.Parameters, logger *slog.Logger) error {
	logger.Debug("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	sink.store = st

	run, err := store.NewRun(it.RunID(), p, opts.Capacity)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to describe run", err)
	}
	if err := st.CreateRun(ctx, run); err != nil {
		return WrapExitError(ExitCommandError, "failed to create stored run", err)
	}
	sink.batch = st.NewBatchWriter(it.RunID(), storeBatchSize)
	return nil
}

// consume reads the stream into sink until it ends or limit records were
// read. A sink error aborts the run.
func consume(ctx context.Context, it *stream.Iterator, sink *runSink, limit int) (int, error) {
	count := 0
	for {
		if limit > 0 && count == limit {
			it.Abort()
			return count, nil
		}
		r, ok := it.Next()
		if !ok {
			return count, nil
		}
		if err := sink.add(ctx, r); err != nil {
			it.Abort()
			return count, err
		}
		count++
	}
}

// commandContext returns the command's context, or Background when the
// command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
