package harness

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oakmere/addrmatch/internal/catalog"
	"github.com/oakmere/addrmatch/internal/engine"
	"github.com/oakmere/addrmatch/internal/plan"
	"github.com/oakmere/addrmatch/internal/stage"
)

// Outcome holds everything a scenario run produced, for assertion and
// golden snapshotting.
type Outcome struct {
	Plan      *plan.Plan
	Staged    *engine.Result
	Reference *engine.Result

	// PrunedTarget and FullTarget hold the target-node comparison results
	// when the scenario sets one.
	PrunedTarget *engine.Result
	FullTarget   *engine.Result
}

// Run executes a scenario: registers its categories, assembles the staged
// pipeline, runs it and the reference query on one scratch in-memory
// session, and runs the optional target-node consistency pair.
func Run(ctx context.Context, sc *Scenario) (*Outcome, error) {
	p, err := BuildPipeline(sc)
	if err != nil {
		return nil, err
	}

	s, err := engine.Open(ctx, engine.Options{})
	if err != nil {
		return nil, err
	}
	defer s.Close()

	registrar := engine.NewRegistrar(s)
	for name, variants := range sc.Categories {
		if err := registrar.Register(ctx, name, variants); err != nil {
			return nil, err
		}
	}
	if len(sc.Categories) > 0 {
		if err := plan.ValidateEmits(p, registrar); err != nil {
			return nil, err
		}
	}

	pl, err := plan.Assemble(p)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Plan: pl}
	if out.Staged, err = s.Run(ctx, pl); err != nil {
		return nil, err
	}
	// Bindings are still in place after the staged run; the reference
	// query reads the same views.
	if out.Reference, err = s.QueryResult(ctx, sc.ReferenceSQL); err != nil {
		return nil, fmt.Errorf("reference query: %w", err)
	}

	if sc.Target != "" {
		pruned, err := pl.Prune(sc.Target)
		if err != nil {
			return nil, err
		}
		if out.PrunedTarget, err = s.Run(ctx, pruned); err != nil {
			return nil, err
		}
		full, err := pl.FullQuery(sc.Target)
		if err != nil {
			return nil, err
		}
		if out.FullTarget, err = s.QueryResult(ctx, full); err != nil {
			return nil, err
		}
	}

	slog.Debug("scenario executed",
		"scenario", sc.Name,
		"staged_rows", len(out.Staged.Rows),
		"reference_rows", len(out.Reference.Rows))
	return out, nil
}

// BuildPipeline resolves the scenario's stage names through the catalog
// registry and constructs the pipeline over its inputs.
func BuildPipeline(sc *Scenario) (*plan.Pipeline, error) {
	bindings := make([]plan.InputBinding, len(sc.Inputs))
	for i, in := range sc.Inputs {
		bindings[i] = plan.InputBinding{Name: in.Name, Relation: in.Relation()}
	}

	stages := make([]stage.Stage, len(sc.Stages))
	for i, name := range sc.Stages {
		factory, ok := catalog.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("scenario %s: unknown stage %q", sc.Name, name)
		}
		stages[i] = factory()
	}

	p, err := plan.NewPipeline(sc.Name, bindings, stages)
	if err != nil {
		return nil, err
	}
	return p.WithDescription(sc.Description), nil
}

// Verify checks the equivalence properties the harness exists for:
// staged output equals reference output row for row, and the optional
// target node's pruned value equals its full-plan value.
func (o *Outcome) Verify() error {
	if err := compareResults("staged pipeline", o.Staged, "reference query", o.Reference); err != nil {
		return err
	}
	if o.PrunedTarget != nil {
		if err := compareResults("pruned target", o.PrunedTarget, "full-plan target", o.FullTarget); err != nil {
			return err
		}
	}
	return nil
}

func compareResults(aName string, a *engine.Result, bName string, b *engine.Result) error {
	if len(a.Columns) != len(b.Columns) {
		return fmt.Errorf("%s has %d columns, %s has %d",
			aName, len(a.Columns), bName, len(b.Columns))
	}
	rowsA, rowsB := canonicalRows(a), canonicalRows(b)
	if len(rowsA) != len(rowsB) {
		return fmt.Errorf("%s returned %d rows, %s returned %d",
			aName, len(rowsA), bName, len(rowsB))
	}
	for i := range rowsA {
		if rowsA[i] != rowsB[i] {
			return fmt.Errorf("%s and %s diverge at sorted row %d:\n  %q\n  %q",
				aName, bName, i, rowsA[i], rowsB[i])
		}
	}
	return nil
}
