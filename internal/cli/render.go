package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oakmere/addrmatch/internal/catalog"
	"github.com/oakmere/addrmatch/internal/plan"
	"github.com/oakmere/addrmatch/internal/stage"
)

// RenderOptions holds flags for the render command.
type RenderOptions struct {
	*RootOptions
	Stages   []string
	Inputs   []string
	StageDir string
	Target   string
	ShowPlan bool
}

// renderPayload is the JSON payload for a rendered plan.
type renderPayload struct {
	Pipeline string       `json:"pipeline"`
	SQL      string       `json:"sql"`
	Steps    []renderStep `json:"steps"`
}

type renderStep struct {
	Alias    string `json:"alias"`
	Stage    string `json:"stage"`
	Fragment string `json:"fragment"`
	Output   bool   `json:"output"`
}

// NewRenderCommand creates the render command.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RenderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a staged pipeline to SQL without executing it",
		Long: `Render a pipeline of catalog stages (or stages loaded from a CUE
directory) into its composed SQL statement.

Input bindings name the tables or views the first stage and any {name}
references read from; render does not check that they exist.

Example:
  addrmatch render -s trim_whitespace_address_and_postcode,upper_case_address_and_postcode
  addrmatch render -s initialise_match_reason,annotate_exact_matches --target annotated_addresses
  addrmatch render -d ./stages -s my_stage --plan`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return renderPipeline(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Stages, "stages", "s", nil, "comma-separated stage names, in declaration order")
	cmd.Flags().StringSliceVar(&opts.Inputs, "input", []string{"fuzzy_addresses", "canonical_addresses"}, "input binding names")
	cmd.Flags().StringVarP(&opts.StageDir, "stage-dir", "d", "", "directory of CUE stage files to resolve names against first")
	cmd.Flags().StringVar(&opts.Target, "target", "", "render the pruned sub-plan for one node instead of the full plan")
	cmd.Flags().BoolVar(&opts.ShowPlan, "plan", false, "print the pipeline summary instead of SQL")
	_ = cmd.MarkFlagRequired("stages")

	return cmd
}

func renderPipeline(opts *RenderOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	p, err := buildPipeline("render", opts.Stages, opts.Inputs, opts.StageDir)
	if err != nil {
		return err
	}

	if opts.ShowPlan {
		if opts.Format == "json" {
			return formatter.Success(p.Text())
		}
		fmt.Fprintln(cmd.OutOrStdout(), p.Text())
		return nil
	}

	pl, err := plan.Assemble(p)
	if err != nil {
		_ = formatter.Error(ErrCodePlan, err.Error(), nil)
		return WrapExitError(ExitFailure, "pipeline assembly failed", err)
	}
	if opts.Target != "" {
		if pl, err = pl.Prune(opts.Target); err != nil {
			_ = formatter.Error(ErrCodePlan, err.Error(), nil)
			return WrapExitError(ExitFailure, "pruning failed", err)
		}
	}

	if opts.Format == "json" {
		steps := make([]renderStep, len(pl.Steps))
		for i, s := range pl.Steps {
			steps[i] = renderStep{Alias: s.Alias, Stage: s.Stage, Fragment: s.Fragment, Output: s.Output}
		}
		return formatter.Success(renderPayload{Pipeline: pl.Pipeline, SQL: pl.SQL, Steps: steps})
	}

	fmt.Fprintln(cmd.OutOrStdout(), pl.SQL)
	return nil
}

// buildPipeline resolves stage names against an optional CUE stage
// directory first, then the built-in catalog.
func buildPipeline(name string, stageNames, inputs []string, stageDir string) (*plan.Pipeline, error) {
	loaded := map[string]stage.Stage{}
	if stageDir != "" {
		result, errs := LoadStages(stageDir, LoadModeFailFast)
		if len(errs) > 0 {
			return nil, WrapExitError(ExitCommandError, "loading stage directory", errs[0])
		}
		for _, s := range result.Stages {
			loaded[s.Name] = s
		}
	}

	stages := make([]stage.Stage, len(stageNames))
	for i, sn := range stageNames {
		if s, ok := loaded[sn]; ok {
			stages[i] = s
			continue
		}
		factory, ok := catalog.Lookup(sn)
		if !ok {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown stage %q", sn))
		}
		stages[i] = factory()
	}

	bindings := make([]plan.InputBinding, len(inputs))
	for i, in := range inputs {
		bindings[i] = plan.InputBinding{Name: in, Relation: in}
	}

	p, err := plan.NewPipeline(name, bindings, stages)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "pipeline construction failed", err)
	}
	return p, nil
}
