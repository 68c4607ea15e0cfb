package plan

import (
	"fmt"
	"strings"
)

// Prune returns the minimal sub-plan that materializes one named node of
// the pipeline, with that node as the terminal output. Stages not on the
// node's dependency path are dropped; aliases are identical to the full
// plan's, so a pruned node's result equals the value it would have in a
// full-pipeline execution.
//
// The target may be:
//
//   - a stage's visible output name (e.g. "canonical_addresses_restricted")
//   - a qualified fragment, "stage.fragment" (e.g. "resolve_trigrams.unique_hits")
//   - a bare fragment name, when unique across the pipeline
//   - a concrete step alias (e.g. "s2_annotate_exact__annotated")
func Prune(p *Pipeline, target string) (*Plan, error) {
	full, err := Assemble(p)
	if err != nil {
		return nil, err
	}
	return full.Prune(target)
}

// Prune derives the minimal sub-plan for one node of an assembled plan.
// See the package-level Prune for target forms.
func (pl *Plan) Prune(target string) (*Plan, error) {
	terminal, err := pl.findStep(target)
	if err != nil {
		return nil, err
	}

	stepByAlias := make(map[string]Step, len(pl.Steps))
	for _, s := range pl.Steps {
		stepByAlias[s.Alias] = s
	}

	needed := map[string]bool{terminal.Alias: true}
	var visit func(s Step)
	visit = func(s Step) {
		for _, dep := range s.DependsOn {
			if needed[dep] {
				continue
			}
			if prev, ok := stepByAlias[dep]; ok {
				needed[dep] = true
				visit(prev)
			}
		}
	}
	visit(terminal)

	var steps []Step
	for _, s := range pl.Steps {
		if needed[s.Alias] {
			steps = append(steps, s)
		}
	}

	sql := compose(steps, terminal.Alias)
	return &Plan{
		Pipeline:    pl.Pipeline,
		Description: pl.Description,
		Inputs:      pl.Inputs,
		Steps:       steps,
		Segments:    []Segment{{Steps: steps, SQL: sql}},
		SQL:         sql,
		Output:      terminal.Alias,
	}, nil
}

// FullQuery re-terminates the full single-segment plan at the named node
// without pruning anything. Comparing its rows against the pruned sub-plan's
// checks that dependency-closure pruning cannot change a node's value.
func (pl *Plan) FullQuery(target string) (string, error) {
	if len(pl.Segments) != 1 {
		return "", fmt.Errorf("plan %q: FullQuery requires a single-segment plan", pl.Pipeline)
	}
	terminal, err := pl.findStep(target)
	if err != nil {
		return "", err
	}
	return compose(pl.Steps, terminal.Alias), nil
}

// findStep resolves a debug target to a rendered step.
func (pl *Plan) findStep(target string) (Step, error) {
	// Concrete alias.
	for _, s := range pl.Steps {
		if s.Alias == target {
			return s, nil
		}
	}

	// stage.fragment qualified form.
	if stageName, fragName, ok := strings.Cut(target, "."); ok {
		for _, s := range pl.Steps {
			if s.Stage == stageName && s.Fragment == fragName {
				return s, nil
			}
		}
		return Step{}, &Error{
			Code:    CodeUnknownTarget,
			Stage:   stageName,
			Ref:     target,
			Message: fmt.Sprintf("no fragment %q in stage %q", fragName, stageName),
		}
	}

	// Visible output name: unique across the pipeline by construction.
	for _, s := range pl.Steps {
		if s.Output && s.Fragment == target {
			return s, nil
		}
	}

	// Bare fragment name, accepted when unique.
	var matches []Step
	for _, s := range pl.Steps {
		if s.Fragment == target {
			matches = append(matches, s)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return Step{}, &Error{
			Code:    CodeUnknownTarget,
			Ref:     target,
			Message: fmt.Sprintf("reference %q names no fragment or stage output in this plan", target),
		}
	default:
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.Stage + "." + m.Fragment
		}
		return Step{}, &Error{
			Code:    CodeUnknownTarget,
			Ref:     target,
			Message: fmt.Sprintf("fragment name %q is ambiguous; qualify as one of: %s", target, strings.Join(names, ", ")),
		}
	}
}
