package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oakmere/addrmatch/internal/plan"
)

// Result holds a fully drained query result. Plans produce bounded,
// human-scale outputs (match sets, not raw event streams), so results are
// read eagerly rather than streamed.
type Result struct {
	Columns []string
	Rows    [][]any
	// Timings records one entry per executed segment, in order.
	Timings []SegmentTiming
}

// SegmentTiming reports how long one segment took. Scratch is empty for
// the final result segment.
type SegmentTiming struct {
	Scratch string
	Elapsed time.Duration
}

// Run binds the plan's inputs and executes its segments in order. Every
// segment but the last materialises a scratch temp table named by its
// Scratch alias; the final segment's rows are drained into the Result.
func (s *Session) Run(ctx context.Context, pl *plan.Plan) (*Result, error) {
	if err := s.Bind(ctx, pl.Inputs); err != nil {
		return nil, err
	}

	res := &Result{}
	for i, seg := range pl.Segments {
		start := time.Now()
		if seg.Scratch != "" {
			stmt := fmt.Sprintf("CREATE OR REPLACE TEMP TABLE %s AS (\n%s\n)", seg.Scratch, seg.SQL)
			if err := s.Exec(ctx, stmt); err != nil {
				return nil, attributeErr(pl, seg, err)
			}
			elapsed := time.Since(start)
			res.Timings = append(res.Timings, SegmentTiming{Scratch: seg.Scratch, Elapsed: elapsed})
			slog.Debug("scratch table written",
				"run_id", s.runID,
				"pipeline", pl.Pipeline,
				"table", seg.Scratch,
				"elapsed", elapsed)
			continue
		}

		rows, err := s.Query(ctx, seg.SQL)
		if err != nil {
			return nil, attributeErr(pl, seg, err)
		}
		if err := res.drain(rows); err != nil {
			return nil, attributeErr(pl, seg, err)
		}
		elapsed := time.Since(start)
		res.Timings = append(res.Timings, SegmentTiming{Elapsed: elapsed})
		slog.Info("pipeline executed",
			"run_id", s.runID,
			"pipeline", pl.Pipeline,
			"segments", i+1,
			"rows", len(res.Rows),
			"elapsed", elapsed)
	}
	return res, nil
}

// Materialize runs the plan and stores the final result as a table instead
// of draining it, for runs whose output feeds a later pipeline.
func (s *Session) Materialize(ctx context.Context, pl *plan.Plan, table string) error {
	if err := s.Bind(ctx, pl.Inputs); err != nil {
		return err
	}
	for _, seg := range pl.Segments {
		target := seg.Scratch
		kind := "TEMP TABLE"
		if target == "" {
			target = table
			kind = "TABLE"
		}
		stmt := fmt.Sprintf("CREATE OR REPLACE %s %s AS (\n%s\n)", kind, target, seg.SQL)
		if err := s.Exec(ctx, stmt); err != nil {
			return attributeErr(pl, seg, err)
		}
	}
	slog.Info("pipeline materialized",
		"run_id", s.runID, "pipeline", pl.Pipeline, "table", table)
	return nil
}

// QueryResult runs an ad hoc query on the session and drains it into a
// Result. Used for reference queries that bypass plan assembly.
func (s *Session) QueryResult(ctx context.Context, query string) (*Result, error) {
	rows, err := s.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	res := &Result{}
	if err := res.drain(rows); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Result) drain(rows *sql.Rows) error {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	r.Columns = cols

	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		r.Rows = append(r.Rows, values)
	}
	return rows.Err()
}

// attributeErr maps a database error back to the step it most plausibly
// came from. DuckDB error messages quote the failing relation or CTE name,
// and every step alias is globally unique, so an alias appearing in the
// message localizes the failure. Steps are scanned in reverse execution
// order; when no alias matches, the error is attributed to the segment's
// terminal step.
func attributeErr(pl *plan.Plan, seg plan.Segment, err error) *Error {
	msg := err.Error()
	for i := len(seg.Steps) - 1; i >= 0; i-- {
		step := seg.Steps[i]
		if strings.Contains(msg, step.Alias) {
			return stepErr(pl, step, err)
		}
	}
	if len(seg.Steps) > 0 {
		return stepErr(pl, seg.Steps[len(seg.Steps)-1], err)
	}
	return &Error{
		Code:     ErrCodeExecution,
		Pipeline: pl.Pipeline,
		Message:  "segment execution failed",
		Err:      err,
	}
}

func stepErr(pl *plan.Plan, step plan.Step, err error) *Error {
	return &Error{
		Code:     ErrCodeExecution,
		Pipeline: pl.Pipeline,
		Stage:    step.Stage,
		Fragment: step.Fragment,
		Alias:    step.Alias,
		Message:  "step execution failed",
		Err:      err,
	}
}
