package plan

import (
	"fmt"

	"github.com/oakmere/addrmatch/internal/stage"
)

// InputBinding binds a placeholder name to an external relation. The
// relation is an opaque SQL expression, a table or view name or a reader
// call such as read_parquet('...'), and is never inspected by the
// framework; schema errors surface from the engine.
type InputBinding struct {
	Name     string
	Relation string
}

// Pipeline is a bound collection of stages plus external inputs, ready to be
// resolved and assembled into one executable plan. Pipelines are constructed
// per matching run and discarded after the run.
type Pipeline struct {
	Name        string
	Description string
	Inputs      []InputBinding
	Stages      []stage.Stage
}

// NewPipeline validates cross-stage naming: stage names, visible output
// names and input binding names must each be unique, and output/input names
// share one reference namespace so a placeholder always resolves to exactly
// one producer.
func NewPipeline(name string, inputs []InputBinding, stages []stage.Stage) (*Pipeline, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("pipeline %q: at least one input binding is required", name)
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("pipeline %q: at least one stage is required", name)
	}

	// Input names and visible output names form the global reference
	// namespace; any collision makes a placeholder ambiguous.
	producers := make(map[string]string) // name → description of producer
	for _, in := range inputs {
		if !stage.ValidName(in.Name) {
			return nil, fmt.Errorf("pipeline %q: invalid input binding name %q", name, in.Name)
		}
		if in.Relation == "" {
			return nil, fmt.Errorf("pipeline %q: input %q has no relation", name, in.Name)
		}
		if _, ok := producers[in.Name]; ok {
			return nil, duplicateErr("input binding", in.Name)
		}
		producers[in.Name] = "input"
	}

	stageNames := make(map[string]bool, len(stages))
	for _, s := range stages {
		if stageNames[s.Name] {
			return nil, duplicateErr("stage", s.Name)
		}
		stageNames[s.Name] = true

		if _, ok := producers[s.Output]; ok {
			return nil, duplicateErr("visible output", s.Output)
		}
		producers[s.Output] = "stage " + s.Name
	}

	return &Pipeline{
		Name:   name,
		Inputs: append([]InputBinding(nil), inputs...),
		Stages: append([]stage.Stage(nil), stages...),
	}, nil
}

// WithDescription sets the pipeline description used in plan display.
func (p *Pipeline) WithDescription(desc string) *Pipeline {
	p.Description = desc
	return p
}

// root returns the binding the first declared stage's {input} refers to.
func (p *Pipeline) root() InputBinding {
	return p.Inputs[0]
}

// stageByName returns the declared index of the named stage, or -1.
func (p *Pipeline) stageByName(name string) int {
	for i, s := range p.Stages {
		if s.Name == name {
			return i
		}
	}
	return -1
}
