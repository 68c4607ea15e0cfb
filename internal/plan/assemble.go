package plan

import (
	"fmt"
	"strings"

	"github.com/oakmere/addrmatch/internal/stage"
)

// Step is one rendered CTE: a fragment with every placeholder substituted
// for the concrete alias of its producer.
type Step struct {
	Stage    string
	Fragment string
	// Alias is the globally unique identifier assigned to this fragment,
	// of the form s<idx>_<stage>__<fragment> where idx is the stage's
	// declared position.
	Alias string
	SQL   string
	// Description carries the stage description on the stage's first step
	// only, for debug display.
	Description string
	// DependsOn lists the identifiers this step's SQL references: earlier
	// step aliases and input binding names.
	DependsOn []string
	// Output marks the step rendering its stage's visible output fragment.
	Output bool
}

// Segment is an independently executable slice of the plan. Every segment
// except the last materialises the alias named by Scratch into a scratch
// table; the final segment (Scratch == "") is the plan's result query.
// Checkpoint stages introduce segment boundaries.
type Segment struct {
	Steps []Step
	// SQL is the composed WITH-chain statement for this segment. Aliases
	// materialised by earlier segments are referenced as tables, not
	// re-derived.
	SQL     string
	Scratch string
}

// Plan is the rendered, dependency-correct execution plan for a pipeline.
// Rendering is deterministic: assembling the same pipeline twice yields a
// byte-identical plan.
type Plan struct {
	Pipeline    string
	Description string
	Inputs      []InputBinding
	// Steps holds every rendered step in execution order.
	Steps []Step
	// Segments holds the executable statements; len(Segments) == 1 unless
	// the pipeline contains checkpoint stages.
	Segments []Segment
	// SQL is the final segment's statement, the single-shot query when
	// there are no checkpoints.
	SQL string
	// Output is the terminal alias the plan's result is read from.
	Output string
}

// Assemble resolves the pipeline and renders it into a Plan. All
// construction-time errors (unresolved references, duplicate names, cycles)
// surface here; a returned Plan is fully valid and ready for execution.
func Assemble(p *Pipeline) (*Plan, error) {
	res, err := Resolve(p)
	if err != nil {
		return nil, err
	}
	return assemble(res), nil
}

func assemble(res *resolution) *Plan {
	p := res.p

	bindings := make(map[string]bool, len(p.Inputs))
	for _, in := range p.Inputs {
		bindings[in.Name] = true
	}

	// visible maps reference names usable by later stages (input bindings
	// and stage outputs) to concrete identifiers.
	visible := make(map[string]string, len(p.Inputs)+len(p.Stages))
	for _, in := range p.Inputs {
		visible[in.Name] = in.Name
	}

	outputAlias := make([]string, len(p.Stages)) // declared index → rendered output alias

	pl := &Plan{
		Pipeline:    p.Name,
		Description: p.Description,
		Inputs:      append([]InputBinding(nil), p.Inputs...),
	}

	stepByAlias := make(map[string]Step)
	materialised := make(map[string]bool) // aliases stored as scratch tables by earlier segments
	var segmentSteps []Step

	closeSegment := func(scratch string) {
		steps := carryClosure(segmentSteps, pl.Steps, stepByAlias, materialised)
		seg := Segment{
			Steps:   steps,
			SQL:     compose(steps, steps[len(steps)-1].Alias),
			Scratch: scratch,
		}
		pl.Segments = append(pl.Segments, seg)
		if scratch != "" {
			materialised[scratch] = true
		}
		segmentSteps = nil
	}

	for _, idx := range res.order {
		s := p.Stages[idx]
		fragAliases := make(map[string]string, len(s.Fragments))

		for j, f := range s.Fragments {
			alias := fmt.Sprintf("s%d_%s__%s", idx, s.Name, f.Name)
			var deps []string
			seenDep := make(map[string]bool)

			sql := stage.Substitute(f.SQL, func(ref string) string {
				target := lookupRef(ref, idx, fragAliases, visible, outputAlias, p)
				if !seenDep[target] && !bindings[target] {
					seenDep[target] = true
					deps = append(deps, target)
				}
				return target
			})

			step := Step{
				Stage:     s.Name,
				Fragment:  f.Name,
				Alias:     alias,
				SQL:       sql,
				DependsOn: deps,
				Output:    f.Name == s.Output,
			}
			if j == 0 {
				step.Description = s.Meta.Description
			}
			fragAliases[f.Name] = alias
			stepByAlias[alias] = step
			pl.Steps = append(pl.Steps, step)
			segmentSteps = append(segmentSteps, step)
		}

		out := fragAliases[s.Output]
		outputAlias[idx] = out
		visible[s.Output] = out

		if s.Checkpoint {
			// Materialise under the output's own alias so rendering is
			// identical with and without checkpoints: later segments
			// simply read the alias as a table instead of a CTE.
			closeSegment(out)
		}
	}

	if len(segmentSteps) > 0 {
		closeSegment("")
	} else {
		// The last declared stage was a checkpoint; read its scratch
		// table back as the final result.
		last := pl.Segments[len(pl.Segments)-1]
		pl.Segments = append(pl.Segments, Segment{
			SQL: "SELECT * FROM " + last.Scratch,
		})
	}

	final := pl.Segments[len(pl.Segments)-1]
	pl.SQL = final.SQL
	pl.Output = outputAlias[res.order[len(res.order)-1]]
	return pl
}

// lookupRef resolves a placeholder during rendering. Resolve has already
// validated every reference, so lookup cannot fail; precedence is
// fragment-local names first, then the shared visible namespace.
func lookupRef(ref string, stageIdx int, fragAliases, visible map[string]string, outputAlias []string, p *Pipeline) string {
	if a, ok := fragAliases[ref]; ok {
		return a
	}
	if ref == stage.InputPlaceholder {
		if stageIdx == 0 {
			return p.root().Name
		}
		return outputAlias[stageIdx-1]
	}
	if a, ok := visible[ref]; ok {
		return a
	}
	// Unreachable for resolved pipelines.
	panic(fmt.Sprintf("plan: unresolved reference %q survived resolution", ref))
}

// carryClosure prepends any earlier-segment steps a segment still depends
// on (those whose aliases were not materialised as scratch tables),
// preserving global execution order. all is the full ordered step list
// rendered so far.
func carryClosure(own, all []Step, stepByAlias map[string]Step, materialised map[string]bool) []Step {
	inOwn := make(map[string]bool, len(own))
	for _, s := range own {
		inOwn[s.Alias] = true
	}

	needed := make(map[string]bool)
	var visit func(s Step)
	visit = func(s Step) {
		for _, dep := range s.DependsOn {
			if needed[dep] || materialised[dep] || inOwn[dep] {
				continue
			}
			prev, ok := stepByAlias[dep]
			if !ok {
				continue // input binding
			}
			needed[dep] = true
			visit(prev)
		}
	}
	for _, s := range own {
		visit(s)
	}

	var out []Step
	for _, s := range all {
		if needed[s.Alias] {
			out = append(out, s)
		}
	}
	return append(out, own...)
}

// compose renders a WITH-chain statement:
//
//	WITH
//	a AS (
//	...
//	),
//
//	b AS (
//	...
//	)
//
//	SELECT * FROM b
func compose(steps []Step, terminal string) string {
	parts := make([]string, len(steps))
	for i, s := range steps {
		parts[i] = fmt.Sprintf("%s AS (\n%s\n)", s.Alias, s.SQL)
	}
	return fmt.Sprintf("WITH\n%s\n\nSELECT * FROM %s", strings.Join(parts, ",\n\n"), terminal)
}
