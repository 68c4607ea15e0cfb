package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/oakmere/addrmatch/internal/engine"
)

// DebugOptions holds flags for the debug command.
type DebugOptions struct {
	*RootOptions
	Database  string
	Fuzzy     string
	Canonical string
	Target    string
	ShowSQL   bool
	MaxRows   int
	Threads   string
}

// NewDebugCommand creates the debug command.
func NewDebugCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DebugOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "debug",
		Short: "Materialize one node of the matching pipeline",
		Long: `Prepare the matching pipeline exactly as run would, then execute only
the minimal sub-plan for one named node and print its rows. The node keeps
the value it would have in a full run.

The target may be a stage output name, a stage.fragment pair, a bare
fragment name or a concrete step alias.

Example:
  addrmatch debug --fuzzy fuzzy.csv --canonical canonical.csv -t canonical_addresses_restricted
  addrmatch debug --fuzzy f.csv --canonical c.csv -t resolve_with_trigrams.unique_trigram_index --show-sql`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return debugNode(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to DuckDB database (default in-memory)")
	cmd.Flags().StringVar(&opts.Fuzzy, "fuzzy", "", "fuzzy input: csv/parquet path or table name (required)")
	cmd.Flags().StringVar(&opts.Canonical, "canonical", "", "canonical input: csv/parquet path or table name (required)")
	cmd.Flags().StringVarP(&opts.Target, "target", "t", "", "pipeline node to materialize (required)")
	cmd.Flags().BoolVar(&opts.ShowSQL, "show-sql", false, "print the pruned SQL before the rows")
	cmd.Flags().IntVar(&opts.MaxRows, "max-rows", 0, "row limit (default from ADDRMATCH_DEBUG_MAX_ROWS, then 20)")
	cmd.Flags().StringVar(&opts.Threads, "threads", "", "DuckDB threads setting")
	_ = cmd.MarkFlagRequired("fuzzy")
	_ = cmd.MarkFlagRequired("canonical")
	_ = cmd.MarkFlagRequired("target")

	return cmd
}

func debugNode(opts *DebugOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := openSession(ctx, opts.Database, opts.Threads)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	pl, err := prepareMatch(ctx, s, opts.Fuzzy, opts.Canonical)
	if err != nil {
		return WrapExitError(ExitFailure, "preparing match inputs", err)
	}

	debugOpts := engine.DebugOptionsFromEnv()
	if opts.ShowSQL {
		debugOpts.ShowSQL = true
	}
	if opts.MaxRows > 0 {
		debugOpts.MaxRows = opts.MaxRows
	}

	if _, err := s.DebugRun(ctx, pl, opts.Target, debugOpts, cmd.OutOrStdout()); err != nil {
		return WrapExitError(ExitFailure, "debug materialization failed", err)
	}
	return nil
}
