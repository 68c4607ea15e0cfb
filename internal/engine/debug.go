package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/oakmere/addrmatch/internal/plan"
)

// DebugOptions controls inspection output for DebugRun.
type DebugOptions struct {
	// ShowSQL prints the pruned statement before executing it.
	ShowSQL bool
	// PrettySQL annotates each CTE in printed SQL with its stage and
	// fragment.
	PrettySQL bool
	// MaxRows caps the rows fetched and printed. Zero means the default.
	MaxRows int
}

const defaultDebugMaxRows = 20

// DebugOptionsFromEnv reads debug options from the environment:
//
//	ADDRMATCH_DEBUG_SHOW_SQL  print SQL before running ("1"/"true")
//	ADDRMATCH_PRETTY_SQL      annotate printed SQL per step
//	ADDRMATCH_DEBUG_MAX_ROWS  row cap for debug output
func DebugOptionsFromEnv() DebugOptions {
	opts := DebugOptions{
		ShowSQL:   envBool("ADDRMATCH_DEBUG_SHOW_SQL"),
		PrettySQL: envBool("ADDRMATCH_PRETTY_SQL"),
	}
	if v := os.Getenv("ADDRMATCH_DEBUG_MAX_ROWS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.MaxRows = n
		}
	}
	return opts
}

// DebugEnabled reports whether the ADDRMATCH_DEBUG flag is set. Callers
// use it to gate DebugRun calls sprinkled through matching code.
func DebugEnabled() bool { return envBool("ADDRMATCH_DEBUG") }

func envBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// DebugRun prunes the plan to the named node, executes the sub-plan and
// writes a row dump to w. Pruned aliases match the full plan's, so the
// values shown are exactly what the node holds in a full run.
func (s *Session) DebugRun(ctx context.Context, pl *plan.Plan, target string, opts DebugOptions, w io.Writer) (*Result, error) {
	pruned, err := pl.Prune(target)
	if err != nil {
		return nil, err
	}

	maxRows := opts.MaxRows
	if maxRows <= 0 {
		maxRows = defaultDebugMaxRows
	}
	limited := *pruned
	limited.SQL = fmt.Sprintf("%s\nLIMIT %d", pruned.SQL, maxRows)
	limited.Segments = []plan.Segment{{Steps: pruned.Steps, SQL: limited.SQL}}

	if opts.ShowSQL {
		sql := limited.SQL
		if opts.PrettySQL {
			sql = annotateSQL(&limited)
		}
		fmt.Fprintf(w, "-- %s → %s\n%s\n\n", pl.Pipeline, pruned.Output, sql)
	}

	res, err := s.Run(ctx, &limited)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(w, "%s (%d row(s), limit %d)\n", pruned.Output, len(res.Rows), maxRows)
	writeTable(w, res)
	return res, nil
}

// annotateSQL prefixes each CTE in the composed statement with a comment
// naming its stage and fragment.
func annotateSQL(pl *plan.Plan) string {
	sql := pl.SQL
	for _, step := range pl.Steps {
		marker := step.Alias + " AS ("
		sql = strings.Replace(sql, marker,
			fmt.Sprintf("-- %s.%s\n%s", step.Stage, step.Fragment, marker), 1)
	}
	return sql
}

// writeTable renders a result as an aligned text table.
func writeTable(w io.Writer, res *Result) {
	if len(res.Columns) == 0 {
		return
	}

	widths := make([]int, len(res.Columns))
	for i, c := range res.Columns {
		widths[i] = len(c)
	}
	cells := make([][]string, len(res.Rows))
	for ri, row := range res.Rows {
		cells[ri] = make([]string, len(row))
		for ci, v := range row {
			text := formatValue(v)
			cells[ri][ci] = text
			if len(text) > widths[ci] {
				widths[ci] = len(text)
			}
		}
	}

	writeRow := func(values []string) {
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = v + strings.Repeat(" ", widths[i]-len(v))
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
	}

	writeRow(res.Columns)
	rules := make([]string, len(widths))
	for i, wd := range widths {
		rules[i] = strings.Repeat("-", wd)
	}
	writeRow(rules)
	for _, row := range cells {
		writeRow(row)
	}
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}
