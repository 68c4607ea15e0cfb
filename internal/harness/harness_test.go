package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakmere/addrmatch/internal/engine"
)

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadScenario_Valid(t *testing.T) {
	sc, err := LoadScenario("testdata/trim_upper.yaml")
	require.NoError(t, err)

	assert.Equal(t, "trim_upper", sc.Name)
	assert.Equal(t, []string{
		"trim_whitespace_address_and_postcode",
		"upper_case_address_and_postcode",
	}, sc.Stages)
	require.Len(t, sc.Inputs, 1)
	assert.Equal(t, "fuzzy_addresses", sc.Inputs[0].Name)
	assert.Len(t, sc.Inputs[0].Rows, 3)
	assert.Equal(t, "trim_whitespace_address_and_postcode", sc.Target)
}

func TestLoadScenario_Invalid(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "unknown field",
			body: "name: x\ninputs:\n  - name: a\n    columns: [c]\n    rows: [[1]]\nstages: [s]\nreference_sql: SELECT 1\nextra: true\n",
			want: "extra",
		},
		{
			name: "missing name",
			body: "inputs:\n  - name: a\n    columns: [c]\n    rows: [[1]]\nstages: [s]\nreference_sql: SELECT 1\n",
			want: "name is required",
		},
		{
			name: "no inputs",
			body: "name: x\ninputs: []\nstages: [s]\nreference_sql: SELECT 1\n",
			want: "at least one input",
		},
		{
			name: "bad input name",
			body: "name: x\ninputs:\n  - name: Bad-Name\n    columns: [c]\n    rows: [[1]]\nstages: [s]\nreference_sql: SELECT 1\n",
			want: "not a valid binding name",
		},
		{
			name: "row arity",
			body: "name: x\ninputs:\n  - name: a\n    columns: [c, d]\n    rows: [[1]]\nstages: [s]\nreference_sql: SELECT 1\n",
			want: "row 0 has 1 values for 2 columns",
		},
		{
			name: "sql and rows together",
			body: "name: x\ninputs:\n  - name: a\n    sql: SELECT 1\n    columns: [c]\n    rows: [[1]]\nstages: [s]\nreference_sql: SELECT 1\n",
			want: "mutually exclusive",
		},
		{
			name: "no stages",
			body: "name: x\ninputs:\n  - name: a\n    columns: [c]\n    rows: [[1]]\nstages: []\nreference_sql: SELECT 1\n",
			want: "at least one stage",
		},
		{
			name: "missing reference",
			body: "name: x\ninputs:\n  - name: a\n    columns: [c]\n    rows: [[1]]\nstages: [s]\n",
			want: "reference_sql is required",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tc.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestInputRelation_Values(t *testing.T) {
	in := Input{
		Name:    "records",
		Columns: []string{"id", "addr", "ok"},
		Rows: [][]any{
			{1, "10 DOWNING ST", true},
			{2, nil, false},
		},
	}
	want := "(SELECT * FROM (VALUES (1, '10 DOWNING ST', true), (2, NULL, false)) AS t(id, addr, ok))"
	assert.Equal(t, want, in.Relation())
}

func TestInputRelation_RawSQL(t *testing.T) {
	in := Input{Name: "records", SQL: "SELECT 1 AS id\n"}
	assert.Equal(t, "(SELECT 1 AS id)", in.Relation())
}

func TestSQLLiteral(t *testing.T) {
	assert.Equal(t, "NULL", sqlLiteral(nil))
	assert.Equal(t, "true", sqlLiteral(true))
	assert.Equal(t, "42", sqlLiteral(42))
	assert.Equal(t, "1.5", sqlLiteral(1.5))
	assert.Equal(t, "'it''s'", sqlLiteral("it's"))
}

func TestEncodeRow_NFCAndNull(t *testing.T) {
	// Same street name, composed vs decomposed e-acute.
	composed := "CAFÉ ROW"
	decomposed := "CAFÉ ROW"
	assert.Equal(t, encodeRow([]any{composed}), encodeRow([]any{decomposed}))

	assert.NotEqual(t, encodeRow([]any{nil}), encodeRow([]any{"NULL"}))
	assert.Equal(t, encodeRow([]any{[]byte("x")}), encodeRow([]any{"x"}))
}

func TestCanonicalRows_OrderInsensitive(t *testing.T) {
	a := &engine.Result{Rows: [][]any{{1, "b"}, {2, "a"}}}
	b := &engine.Result{Rows: [][]any{{2, "a"}, {1, "b"}}}
	assert.Equal(t, canonicalRows(a), canonicalRows(b))
}

func TestBuildPipeline_UnknownStage(t *testing.T) {
	sc := &Scenario{
		Name:   "x",
		Inputs: []Input{{Name: "a", Columns: []string{"c"}, Rows: [][]any{{1}}}},
		Stages: []string{"no_such_stage"},
	}
	_, err := BuildPipeline(sc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown stage "no_such_stage"`)
}

func loadAndRun(t *testing.T, name string) *Outcome {
	t.Helper()
	sc, err := LoadScenario(filepath.Join("testdata", name))
	require.NoError(t, err)
	return RunWithGolden(t, sc)
}

func TestScenario_TrimUpper(t *testing.T) {
	out := loadAndRun(t, "trim_upper.yaml")
	assert.Len(t, out.Staged.Rows, 3)
	require.NotNil(t, out.PrunedTarget)
	require.NotNil(t, out.FullTarget)
}

func TestScenario_CleanAddress(t *testing.T) {
	out := loadAndRun(t, "clean_address.yaml")
	assert.Len(t, out.Staged.Rows, 3)
}

func TestScenario_CombinePrecedence(t *testing.T) {
	sc, err := LoadScenario("testdata/combine_precedence.yaml")
	require.NoError(t, err)

	out, err := Run(context.Background(), sc)
	require.NoError(t, err)
	require.NoError(t, out.Verify())

	assert.Len(t, out.Staged.Rows, 3)
	require.NotNil(t, out.PrunedTarget)
	assert.Equal(t, canonicalRows(out.PrunedTarget), canonicalRows(out.FullTarget))
}
