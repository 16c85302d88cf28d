package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/internal/engine"
	"github.com/weftlabs/weft/internal/store"
)

// JobsOptions holds flags for the jobs command.
type JobsOptions struct {
	*RootOptions
	Database string
	Source   string
	Coll     string
	Limit    int
}

// NewJobsCommand creates the jobs command.
func NewJobsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JobsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent sync jobs for a scope",
		Long: `List the persisted sync jobs for one (source, collection) scope,
most recent first, with their final status and counters.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listJobs(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Source, "source", "", "source id (required)")
	cmd.Flags().StringVar(&opts.Coll, "collection", "", "destination collection (required)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum jobs to list")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("collection")

	return cmd
}

// JobList is the jobs command's output payload.
type JobList struct {
	Scope string       `json:"scope"`
	Jobs  []JobSummary `json:"jobs"`
}

func (l JobList) String() string {
	if len(l.Jobs) == 0 {
		return fmt.Sprintf("no jobs for scope %s", l.Scope)
	}
	lines := make([]string, len(l.Jobs))
	for i, j := range l.Jobs {
		lines[i] = j.String()
	}
	return strings.Join(lines, "\n")
}

func listJobs(opts *JobsOptions, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	scope := engine.Scope{SourceID: opts.Source, Collection: opts.Coll}
	jobs, err := st.ListJobs(cmd.Context(), scope, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list jobs", err)
	}

	list := JobList{Scope: scope.String(), Jobs: make([]JobSummary, len(jobs))}
	for i, job := range jobs {
		list.Jobs[i] = jobSummary(job)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Success(list)
}
