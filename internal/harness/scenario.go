package harness

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/oakmere/addrmatch/internal/stage"
)

// Scenario defines one equivalence test: inline inputs, a staged pipeline
// and the reference SQL it must reproduce.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description,omitempty"`

	// Categories maps closed category names to ordered variant labels to
	// register before the run.
	Categories map[string][]string `yaml:"categories,omitempty"`

	// Inputs are the relations both the reference query and the staged
	// pipeline read. The first input is the pipeline's root binding.
	Inputs []Input `yaml:"inputs"`

	// Stages lists catalog stage names in declaration order.
	Stages []string `yaml:"stages"`

	// ReferenceSQL is the statement the staged pipeline must reproduce
	// row for row.
	ReferenceSQL string `yaml:"reference_sql"`

	// Target optionally names a pipeline node; the harness checks that
	// the pruned sub-plan for it matches the full plan re-terminated at
	// the same node.
	Target string `yaml:"target,omitempty"`
}

// Input is one inline relation, given either as columns plus literal rows
// or as a raw SQL query for shapes VALUES cannot express (list columns,
// derived fields).
type Input struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns,omitempty"`
	Rows    [][]any  `yaml:"rows,omitempty"`
	SQL     string   `yaml:"sql,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly instead of silently skipping checks.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}

	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	if err := validateScenario(&sc); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &sc, nil
}

func validateScenario(sc *Scenario) error {
	if sc.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(sc.Inputs) == 0 {
		return fmt.Errorf("at least one input is required")
	}
	for _, in := range sc.Inputs {
		if !stage.ValidName(in.Name) {
			return fmt.Errorf("input name %q is not a valid binding name", in.Name)
		}
		if strings.TrimSpace(in.SQL) != "" {
			if len(in.Columns) != 0 || len(in.Rows) != 0 {
				return fmt.Errorf("input %q: sql and columns/rows are mutually exclusive", in.Name)
			}
			continue
		}
		if len(in.Columns) == 0 {
			return fmt.Errorf("input %q: columns are required", in.Name)
		}
		if len(in.Rows) == 0 {
			return fmt.Errorf("input %q: at least one row is required", in.Name)
		}
		for i, row := range in.Rows {
			if len(row) != len(in.Columns) {
				return fmt.Errorf("input %q: row %d has %d values for %d columns",
					in.Name, i, len(row), len(in.Columns))
			}
		}
	}
	if len(sc.Stages) == 0 {
		return fmt.Errorf("at least one stage is required")
	}
	if strings.TrimSpace(sc.ReferenceSQL) == "" {
		return fmt.Errorf("reference_sql is required")
	}
	return nil
}

// Relation renders the input as an inline VALUES relation expression for
// an engine input binding.
func (in Input) Relation() string {
	if strings.TrimSpace(in.SQL) != "" {
		return "(" + strings.TrimSpace(in.SQL) + ")"
	}
	rows := make([]string, len(in.Rows))
	for i, row := range in.Rows {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = sqlLiteral(v)
		}
		rows[i] = "(" + strings.Join(cells, ", ") + ")"
	}
	return fmt.Sprintf("(SELECT * FROM (VALUES %s) AS t(%s))",
		strings.Join(rows, ", "), strings.Join(in.Columns, ", "))
}

// sqlLiteral renders one YAML scalar as a SQL literal.
func sqlLiteral(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if x {
			return "true"
		}
		return "false"
	case int, int64, uint64, float64:
		return fmt.Sprintf("%v", x)
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	default:
		return "'" + strings.ReplaceAll(fmt.Sprintf("%v", x), "'", "''") + "'"
	}
}
