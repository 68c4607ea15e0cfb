package plan

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakmere/addrmatch/internal/stage"
)

func normalisePipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := NewPipeline("normalise_and_match",
		[]InputBinding{
			{Name: "records", Relation: "records"},
			{Name: "canonical", Relation: "canonical"},
		},
		[]stage.Stage{
			stage.MustNew("normalise", []stage.Fragment{
				{Name: "trimmed", SQL: "SELECT trim(addr) AS addr FROM {input}"},
				{Name: "normalised", SQL: "SELECT upper(addr) AS addr FROM {trimmed}"},
			}),
			stage.MustNew("match", []stage.Fragment{
				{Name: "matched", SQL: "SELECT n.addr, c.id FROM {normalised} AS n JOIN {canonical} AS c ON n.addr = c.addr"},
			}),
		})
	require.NoError(t, err)
	return p
}

func TestAssemble_AliasesAndSubstitution(t *testing.T) {
	pl, err := Assemble(normalisePipeline(t))
	require.NoError(t, err)

	require.Len(t, pl.Steps, 3)
	assert.Equal(t, "s0_normalise__trimmed", pl.Steps[0].Alias)
	assert.Equal(t, "s0_normalise__normalised", pl.Steps[1].Alias)
	assert.Equal(t, "s1_match__matched", pl.Steps[2].Alias)

	// {input} on the first stage resolves to the root binding's name.
	assert.Equal(t, "SELECT trim(addr) AS addr FROM records", pl.Steps[0].SQL)
	// Intra-stage references resolve to sibling aliases.
	assert.Equal(t, "SELECT upper(addr) AS addr FROM s0_normalise__trimmed", pl.Steps[1].SQL)
	// Cross-stage references resolve to the producer's output alias;
	// binding references pass through untouched.
	assert.Equal(t,
		"SELECT n.addr, c.id FROM s0_normalise__normalised AS n JOIN canonical AS c ON n.addr = c.addr",
		pl.Steps[2].SQL)

	assert.Equal(t, "s1_match__matched", pl.Output)
	assert.Len(t, pl.Segments, 1)
	assert.Equal(t, pl.SQL, pl.Segments[0].SQL)
}

func TestAssemble_DependsOnExcludesBindings(t *testing.T) {
	pl, err := Assemble(normalisePipeline(t))
	require.NoError(t, err)

	assert.Empty(t, pl.Steps[0].DependsOn)
	assert.Equal(t, []string{"s0_normalise__trimmed"}, pl.Steps[1].DependsOn)
	assert.Equal(t, []string{"s0_normalise__normalised"}, pl.Steps[2].DependsOn)
}

func TestAssemble_OutputFlag(t *testing.T) {
	pl, err := Assemble(normalisePipeline(t))
	require.NoError(t, err)

	assert.False(t, pl.Steps[0].Output)
	assert.True(t, pl.Steps[1].Output)
	assert.True(t, pl.Steps[2].Output)
}

func TestAssemble_Deterministic(t *testing.T) {
	a, err := Assemble(normalisePipeline(t))
	require.NoError(t, err)
	b, err := Assemble(normalisePipeline(t))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, a.SQL, b.SQL)
}

func TestAssemble_GoldenSQL(t *testing.T) {
	pl, err := Assemble(normalisePipeline(t))
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "normalise_and_match", []byte(pl.SQL))
}

func TestAssemble_DescriptionOnFirstStepOnly(t *testing.T) {
	p, err := NewPipeline("described",
		[]InputBinding{{Name: "records", Relation: "records"}},
		[]stage.Stage{
			stage.MustNew("clean", []stage.Fragment{
				{Name: "a", SQL: "SELECT 1 FROM {records}"},
				{Name: "b", SQL: "SELECT 2 FROM {a}"},
			}, stage.WithMeta(stage.Meta{Description: "strips punctuation"})),
		})
	require.NoError(t, err)

	pl, err := Assemble(p)
	require.NoError(t, err)
	assert.Equal(t, "strips punctuation", pl.Steps[0].Description)
	assert.Empty(t, pl.Steps[1].Description)
}

func checkpointPipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := NewPipeline("segmented",
		[]InputBinding{{Name: "records", Relation: "records"}},
		[]stage.Stage{
			stage.MustSingle("first", "SELECT * FROM {input}"),
			stage.MustSingle("second", "SELECT * FROM {input}", stage.WithCheckpoint()),
			stage.MustSingle("third", "SELECT * FROM {input}"),
		})
	require.NoError(t, err)
	return p
}

func TestAssemble_CheckpointSplitsSegments(t *testing.T) {
	pl, err := Assemble(checkpointPipeline(t))
	require.NoError(t, err)

	require.Len(t, pl.Segments, 2)
	assert.Equal(t, "s1_second__second", pl.Segments[0].Scratch)
	assert.Equal(t, "", pl.Segments[1].Scratch)

	// The second segment reads the scratch alias as a table: its single
	// step references it, but the WITH chain does not re-derive it.
	second := pl.Segments[1]
	require.Len(t, second.Steps, 1)
	assert.Equal(t, "s2_third__third", second.Steps[0].Alias)
	assert.Contains(t, second.Steps[0].SQL, "s1_second__second")
	assert.NotContains(t, second.SQL, "s1_second__second AS (")
}

func TestAssemble_CheckpointDoesNotChangeRendering(t *testing.T) {
	// The same stages without the checkpoint render every step with the
	// same alias and the same SQL.
	plain, err := NewPipeline("segmented",
		[]InputBinding{{Name: "records", Relation: "records"}},
		[]stage.Stage{
			stage.MustSingle("first", "SELECT * FROM {input}"),
			stage.MustSingle("second", "SELECT * FROM {input}"),
			stage.MustSingle("third", "SELECT * FROM {input}"),
		})
	require.NoError(t, err)

	a, err := Assemble(plain)
	require.NoError(t, err)
	b, err := Assemble(checkpointPipeline(t))
	require.NoError(t, err)

	require.Len(t, b.Steps, len(a.Steps))
	for i := range a.Steps {
		assert.Equal(t, a.Steps[i].Alias, b.Steps[i].Alias)
		assert.Equal(t, a.Steps[i].SQL, b.Steps[i].SQL)
	}
}

func TestAssemble_TrailingCheckpointReadsScratchBack(t *testing.T) {
	p, err := NewPipeline("trailing",
		[]InputBinding{{Name: "records", Relation: "records"}},
		[]stage.Stage{
			stage.MustSingle("only", "SELECT * FROM {input}", stage.WithCheckpoint()),
		})
	require.NoError(t, err)

	pl, err := Assemble(p)
	require.NoError(t, err)
	require.Len(t, pl.Segments, 2)
	assert.Equal(t, "s0_only__only", pl.Segments[0].Scratch)
	assert.Equal(t, "SELECT * FROM s0_only__only", pl.Segments[1].SQL)
	assert.Equal(t, pl.SQL, pl.Segments[1].SQL)
	assert.Equal(t, "s0_only__only", pl.Output)
}

func TestAssemble_CarryForwardAcrossCheckpoint(t *testing.T) {
	// "late" references "early"'s output, which sits before the
	// checkpoint but is not itself materialised. Its derivation must be
	// carried into the later segment's WITH chain.
	p, err := NewPipeline("carry",
		[]InputBinding{{Name: "records", Relation: "records"}},
		[]stage.Stage{
			stage.MustSingle("early", "SELECT * FROM {records}"),
			stage.MustSingle("mid", "SELECT * FROM {early}", stage.WithCheckpoint()),
			stage.MustSingle("late", "SELECT * FROM {early} UNION ALL SELECT * FROM {mid}"),
		})
	require.NoError(t, err)

	pl, err := Assemble(p)
	require.NoError(t, err)
	require.Len(t, pl.Segments, 2)

	second := pl.Segments[1]
	require.Len(t, second.Steps, 2)
	assert.Equal(t, "s0_early__early", second.Steps[0].Alias)
	assert.Equal(t, "s2_late__late", second.Steps[1].Alias)
	assert.True(t, strings.Contains(second.SQL, "s0_early__early AS ("))
	assert.False(t, strings.Contains(second.SQL, "s1_mid__mid AS ("))
}

func TestCompose_Shape(t *testing.T) {
	steps := []Step{
		{Alias: "a", SQL: "SELECT 1"},
		{Alias: "b", SQL: "SELECT * FROM a"},
	}
	want := "WITH\n" +
		"a AS (\nSELECT 1\n),\n\n" +
		"b AS (\nSELECT * FROM a\n)\n\n" +
		"SELECT * FROM b"
	assert.Equal(t, want, compose(steps, "b"))
}
