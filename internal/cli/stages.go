package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oakmere/addrmatch/internal/catalog"
)

// StagesOptions holds flags for the stages command.
type StagesOptions struct {
	*RootOptions
	Detail bool
}

// stageInfo is the JSON payload for one catalog stage.
type stageInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Fragments   []string `json:"fragments"`
	Output      string   `json:"output"`
}

// NewStagesCommand creates the stages command.
func NewStagesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StagesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stages",
		Short: "List the built-in stage catalog",
		Long: `List every stage in the built-in catalog.

Example:
  addrmatch stages
  addrmatch stages --detail
  addrmatch stages --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listStages(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Detail, "detail", false, "show description, tags and fragments per stage")

	return cmd
}

func listStages(opts *StagesOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	names := catalog.Names()

	if opts.Format == "json" {
		infos := make([]stageInfo, len(names))
		for i, name := range names {
			factory, _ := catalog.Lookup(name)
			s := factory()
			frags := make([]string, len(s.Fragments))
			for j, f := range s.Fragments {
				frags[j] = f.Name
			}
			infos[i] = stageInfo{
				Name:        s.Name,
				Description: s.Meta.Description,
				Tags:        s.Meta.Tags,
				Fragments:   frags,
				Output:      s.Output,
			}
		}
		return formatter.Success(infos)
	}

	var b strings.Builder
	for i, name := range names {
		if opts.Detail {
			factory, _ := catalog.Lookup(name)
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(factory().PlanBlock())
			b.WriteString("\n")
		} else {
			b.WriteString(name)
			b.WriteString("\n")
		}
	}
	fmt.Fprint(cmd.OutOrStdout(), b.String())
	return nil
}
