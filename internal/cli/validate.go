package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/internal/config"
	"github.com/weftlabs/weft/internal/dag"
	"github.com/weftlabs/weft/internal/transform"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <pipeline.yaml>",
		Short: "Validate a pipeline without running it",
		Long: `Validate a pipeline document: schema, node references, transform step
resolution, and graph structure (single source, acyclic, destination
leaves). Exits non-zero when the pipeline would be rejected at run time.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return validatePipeline(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

// ValidationSummary is the validate command's output payload.
type ValidationSummary struct {
	Pipeline     string `json:"pipeline"`
	Scope        string `json:"scope"`
	Transforms   int    `json:"transforms"`
	Destinations int    `json:"destinations"`
}

func (s ValidationSummary) String() string {
	return fmt.Sprintf("pipeline %s (%s) is valid: %d transform(s), %d destination(s)",
		s.Pipeline, s.Scope, s.Transforms, s.Destinations)
}

func validatePipeline(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	pipeline, err := config.Load(path)
	if err != nil {
		_ = formatter.Failure(errCode(err), err.Error())
		return WrapExitError(ExitFailure, "pipeline invalid", err)
	}

	nodes, edges := pipeline.GraphSpecs()
	graph, err := dag.Build(nodes, edges, transform.Builtin().Resolver())
	if err != nil {
		_ = formatter.Failure(errCode(err), err.Error())
		return WrapExitError(ExitFailure, "pipeline invalid", err)
	}

	return formatter.Success(ValidationSummary{
		Pipeline:     pipeline.Name,
		Scope:        pipeline.Scope().String(),
		Transforms:   len(pipeline.Transforms),
		Destinations: len(graph.Destinations()),
	})
}

func errCode(err error) string {
	var ce *config.ConfigError
	if errors.As(err, &ce) {
		return ce.Code
	}
	var ve *dag.ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return "ERROR"
}
