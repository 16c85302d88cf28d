package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/internal/config"
	"github.com/weftlabs/weft/internal/engine"
	"github.com/weftlabs/weft/internal/service"
	"github.com/weftlabs/weft/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string

	// IDGenerator overrides job ID generation (for testing). Defaults to
	// UUIDv7.
	IDGenerator engine.IDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <pipeline.yaml>",
		Short: "Run one sync job for a pipeline",
		Long: `Run one sync job: stream the pipeline's source through its transform
graph into its destinations, writing only records whose content changed
since the previous run and deleting records the source no longer has.

The SQLite database holds the record hashes between runs, the job history,
and any table destinations.

Example:
  weft run --db ./weft.db ./pipeline.yaml
  weft run --db /tmp/sync.db ./docs.yaml --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runSync(opts *RunOptions, pipelinePath string, cmd *cobra.Command) error {
	logger := newLogger(opts.Verbose)
	slog.SetDefault(logger)

	pipeline, err := config.Load(pipelinePath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load pipeline", err)
	}
	logger.Info("pipeline loaded",
		"name", pipeline.Name,
		"scope", pipeline.Scope().String())

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	ids := opts.IDGenerator
	if ids == nil {
		ids = engine.UUIDv7Generator{}
	}

	svc, err := service.New(service.Options{
		Jobs:         st,
		Hashes:       st,
		Destinations: destinationFactory(st),
		IDs:          ids,
		Logger:       logger,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build service", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	job, err := svc.Start(ctx, pipeline)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start sync", err)
	}

	// SIGINT/SIGTERM request cooperative cancellation; the job drains and
	// lands CANCELLED.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, cancelling job", "signal", sig, "job_id", job.ID)
			if err := svc.Cancel(job.ID); err != nil {
				logger.Warn("cancel failed", "error", err)
			}
		case <-ctx.Done():
		}
	}()

	final, err := svc.Await(ctx, job.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed waiting for job", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if err := formatter.Success(jobSummary(&final)); err != nil {
		return err
	}

	switch final.Status {
	case engine.StatusCompleted:
		return nil
	case engine.StatusCancelled:
		return NewExitError(ExitFailure, "job cancelled")
	default:
		return NewExitError(ExitFailure, fmt.Sprintf("job failed: %s", final.Error))
	}
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// destinationFactory builds destination handles over the store: declared
// "table" destinations land in the routed_records table.
func destinationFactory(st *store.Store) service.DestinationFactory {
	return func(spec config.DestinationSpec) (engine.Destination, error) {
		switch spec.Type {
		case "table":
			return st.NewTableDestination(spec.Name), nil
		default:
			return nil, fmt.Errorf("unknown destination type %q", spec.Type)
		}
	}
}

// JobSummary is the run command's output payload.
type JobSummary struct {
	JobID    string `json:"job_id"`
	Scope    string `json:"scope"`
	Status   string `json:"status"`
	Inserted int64  `json:"inserted"`
	Updated  int64  `json:"updated"`
	Deleted  int64  `json:"deleted"`
	Kept     int64  `json:"kept"`
	Skipped  int64  `json:"skipped"`
	Error    string `json:"error,omitempty"`
}

func (s JobSummary) String() string {
	out := fmt.Sprintf("job %s (%s) %s: inserted=%d updated=%d deleted=%d kept=%d skipped=%d",
		s.JobID, s.Scope, s.Status, s.Inserted, s.Updated, s.Deleted, s.Kept, s.Skipped)
	if s.Error != "" {
		out += "\n  error: " + s.Error
	}
	return out
}

func jobSummary(job *engine.Job) JobSummary {
	return JobSummary{
		JobID:    job.ID,
		Scope:    job.Scope.String(),
		Status:   string(job.Status),
		Inserted: job.Counters.Inserted,
		Updated:  job.Counters.Updated,
		Deleted:  job.Counters.Deleted,
		Kept:     job.Counters.Kept,
		Skipped:  job.Counters.Skipped,
		Error:    job.Error,
	}
}
