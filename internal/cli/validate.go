package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oakmere/addrmatch/internal/plan"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	StageDir string
	Stages   []string
	Inputs   []string
}

// validatePayload is the JSON payload for a validation run.
type validatePayload struct {
	Files  int      `json:"files"`
	Stages []string `json:"stages"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate CUE stage files without executing anything",
		Long: `Load every CUE stage file in a directory, check it against the stage
schema and run constructor validation. With --stages, additionally resolve
the named pipeline (reference resolution, duplicate detection, cycle
detection) without touching a database.

Example:
  addrmatch validate -d ./stages
  addrmatch validate -d ./stages -s my_clean,my_match`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateStages(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.StageDir, "stage-dir", "d", "", "directory of CUE stage files (required)")
	cmd.Flags().StringSliceVarP(&opts.Stages, "stages", "s", nil, "also resolve this pipeline of stage names")
	cmd.Flags().StringSliceVar(&opts.Inputs, "input", []string{"fuzzy_addresses", "canonical_addresses"}, "input binding names for pipeline resolution")
	_ = cmd.MarkFlagRequired("stage-dir")

	return cmd
}

func loadErrCode(err error) string {
	if le, ok := err.(*LoadError); ok {
		return le.Code
	}
	return ErrCodeGeneric
}

func validateStages(opts *ValidateOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	result, errs := LoadStages(opts.StageDir, LoadModeCollectAll)
	if result == nil && len(errs) > 0 {
		_ = formatter.Error(loadErrCode(errs[0]), errs[0].Error(), nil)
		return WrapExitError(ExitCommandError, "loading stage directory", errs[0])
	}
	if len(errs) > 0 {
		for _, err := range errs {
			_ = formatter.Error(loadErrCode(err), err.Error(), nil)
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d validation error(s)", len(errs)))
	}

	names := make([]string, len(result.Stages))
	for i, s := range result.Stages {
		names[i] = s.Name
	}

	if len(opts.Stages) > 0 {
		p, err := buildPipeline("validate", opts.Stages, opts.Inputs, opts.StageDir)
		if err != nil {
			return err
		}
		if _, err := plan.Assemble(p); err != nil {
			_ = formatter.Error(ErrCodePlan, err.Error(), nil)
			return WrapExitError(ExitFailure, "pipeline resolution failed", err)
		}
	}

	if opts.Format == "json" {
		return formatter.Success(validatePayload{Files: result.FileCount, Stages: names})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "OK: %d file(s), %d stage(s) valid\n", result.FileCount, len(result.Stages))
	for _, n := range names {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", n)
	}
	return nil
}
