package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oakmere/addrmatch/internal/catalog"
	"github.com/oakmere/addrmatch/internal/engine"
	"github.com/oakmere/addrmatch/internal/plan"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database  string
	Fuzzy     string
	Canonical string
	Output    string
	Limit     int
	Threads   string
}

// runPayload is the JSON payload for a completed run.
type runPayload struct {
	RunID   string `json:"run_id"`
	Output  string `json:"output"`
	Matched int    `json:"matched"`
	Total   int    `json:"total"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Clean and match fuzzy addresses against a canonical set",
		Long: `Run the default address matching workflow: clean both inputs, then
match the fuzzy set against the canonical set and write one match candidate
per fuzzy record to the output table.

Inputs ending in .csv or .parquet are read as files; anything else is
treated as a table or view in the database.

Example:
  addrmatch run --fuzzy fuzzy.csv --canonical canonical.parquet
  addrmatch run --db matches.duckdb --fuzzy raw_input --canonical os_addresses --output results`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatch(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to DuckDB database (default in-memory)")
	cmd.Flags().StringVar(&opts.Fuzzy, "fuzzy", "", "fuzzy input: csv/parquet path or table name (required)")
	cmd.Flags().StringVar(&opts.Canonical, "canonical", "", "canonical input: csv/parquet path or table name (required)")
	cmd.Flags().StringVar(&opts.Output, "output", "match_results", "table to write match candidates to")
	cmd.Flags().IntVar(&opts.Limit, "limit", 10, "result rows to print (0 disables)")
	cmd.Flags().StringVar(&opts.Threads, "threads", "", "DuckDB threads setting")
	_ = cmd.MarkFlagRequired("fuzzy")
	_ = cmd.MarkFlagRequired("canonical")

	return cmd
}

func runMatch(opts *RunOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
		_ = formatter.Error(ErrCodeExecution, err.Error(), nil)
		return WrapExitError(ExitFailure, "preparing match inputs", err)
	}

	slog.Info("matching", "output", opts.Output)
	if err := s.Materialize(ctx, pl, opts.Output); err != nil {
		_ = formatter.Error(ErrCodeExecution, err.Error(), nil)
		return WrapExitError(ExitFailure, "matching failed", err)
	}

	stats, err := s.QueryResult(ctx, fmt.Sprintf(
		"SELECT count(resolved_canonical_id), count(*) FROM %s", opts.Output))
	if err != nil {
		return WrapExitError(ExitFailure, "reading match statistics", err)
	}
	matched := toInt(stats.Rows[0][0])
	total := toInt(stats.Rows[0][1])
	slog.Info("match complete", "run_id", s.RunID(), "matched", matched, "total", total)

	if opts.Format == "json" {
		return formatter.Success(runPayload{
			RunID:   s.RunID(),
			Output:  opts.Output,
			Matched: matched,
			Total:   total,
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Matched %d of %d records into %s\n", matched, total, opts.Output)
	if opts.Limit > 0 {
		sample, err := s.QueryResult(ctx, fmt.Sprintf(
			"SELECT * FROM %s ORDER BY unique_id LIMIT %d", opts.Output, opts.Limit))
		if err != nil {
			return WrapExitError(ExitFailure, "reading results", err)
		}
		printRows(cmd, sample)
	}
	return nil
}

// openSession opens a session with optional thread settings.
func openSession(ctx context.Context, path, threads string) (*engine.Session, error) {
	sessOpts := engine.Options{Path: path}
	if threads != "" {
		sessOpts.Settings = map[string]string{"threads": threads}
	}
	return engine.Open(ctx, sessOpts)
}

// prepareMatch cleans both inputs into scratch tables and assembles the
// matching plan over them. Both pipelines run on the session's single
// connection, so the cleaned tables are visible to the returned plan.
func prepareMatch(ctx context.Context, s *engine.Session, fuzzy, canonical string) (*plan.Plan, error) {
	registrar := engine.NewRegistrar(s)
	if err := registrar.Register(ctx, catalog.CategoryMatchReason, catalog.MatchReasons()); err != nil {
		return nil, err
	}

	cleaned := []struct {
		source string
		table  string
	}{
		{fuzzy, "fuzzy_addresses_cleaned"},
		{canonical, "canonical_addresses_cleaned"},
	}
	for _, c := range cleaned {
		p, err := plan.NewPipeline("clean_"+c.table,
			[]plan.InputBinding{{Name: "records", Relation: sourceRelation(c.source)}},
			catalog.CleaningStages())
		if err != nil {
			return nil, err
		}
		pl, err := plan.Assemble(p)
		if err != nil {
			return nil, err
		}
		slog.Info("cleaning", "source", c.source, "table", c.table)
		if err := s.Materialize(ctx, pl, c.table); err != nil {
			return nil, err
		}
	}

	p, err := plan.NewPipeline("match_addresses",
		[]plan.InputBinding{
			{Name: "fuzzy_addresses", Relation: cleaned[0].table},
			{Name: "canonical_addresses", Relation: cleaned[1].table},
		},
		catalog.MatchingStages())
	if err != nil {
		return nil, err
	}
	if err := plan.ValidateEmits(p, registrar); err != nil {
		return nil, err
	}
	return plan.Assemble(p)
}

// sourceRelation maps a CLI input argument to a readable relation.
func sourceRelation(source string) string {
	switch {
	case strings.HasSuffix(source, ".csv"):
		return engine.CSVRelation(source)
	case strings.HasSuffix(source, ".parquet"):
		return engine.ParquetRelation(source)
	default:
		return source
	}
}

func printRows(cmd *cobra.Command, res *engine.Result) {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, strings.Join(res.Columns, "\t"))
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
			} else {
				cells[i] = fmt.Sprintf("%v", v)
			}
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
}

func toInt(v any) int {
	switch x := v.(type) {
	case int64:
		return int(x)
	case int32:
		return int(x)
	case int:
		return x
	default:
		return 0
	}
}
