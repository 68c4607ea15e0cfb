package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakmere/addrmatch/internal/stage"
)

// branchingPipeline has a diamond plus a dead-end branch, so pruning has
// something real to drop:
//
//	records → clean → {left, right} → join
//	records → unrelated
func branchingPipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := NewPipeline("branching",
		[]InputBinding{{Name: "records", Relation: "records"}},
		[]stage.Stage{
			stage.MustNew("clean", []stage.Fragment{
				{Name: "stripped", SQL: "SELECT trim(addr) AS addr FROM {records}"},
				{Name: "cleaned", SQL: "SELECT upper(addr) AS addr FROM {stripped}"},
			}),
			stage.MustSingle("left", "SELECT addr FROM {cleaned} WHERE addr LIKE 'A%'"),
			stage.MustSingle("right", "SELECT addr FROM {cleaned} WHERE addr LIKE 'B%'"),
			stage.MustSingle("joined", "SELECT * FROM {left} UNION ALL SELECT * FROM {right}"),
			stage.MustSingle("unrelated", "SELECT count(*) AS n FROM {records}"),
		})
	require.NoError(t, err)
	return p
}

func TestPrune_ByVisibleOutput(t *testing.T) {
	pruned, err := Prune(branchingPipeline(t), "left")
	require.NoError(t, err)

	aliases := stepAliases(pruned)
	assert.Equal(t, []string{
		"s0_clean__stripped",
		"s0_clean__cleaned",
		"s1_left__left",
	}, aliases)
	assert.Equal(t, "s1_left__left", pruned.Output)
	require.Len(t, pruned.Segments, 1)
	assert.Equal(t, pruned.SQL, pruned.Segments[0].SQL)
}

func TestPrune_ByInternalFragment(t *testing.T) {
	pruned, err := Prune(branchingPipeline(t), "clean.stripped")
	require.NoError(t, err)
	assert.Equal(t, []string{"s0_clean__stripped"}, stepAliases(pruned))
	assert.Equal(t, "s0_clean__stripped", pruned.Output)
}

func TestPrune_ByAlias(t *testing.T) {
	pruned, err := Prune(branchingPipeline(t), "s0_clean__cleaned")
	require.NoError(t, err)
	assert.Equal(t, "s0_clean__cleaned", pruned.Output)
	assert.Len(t, pruned.Steps, 2)
}

func TestPrune_BareUniqueFragment(t *testing.T) {
	pruned, err := Prune(branchingPipeline(t), "stripped")
	require.NoError(t, err)
	assert.Equal(t, "s0_clean__stripped", pruned.Output)
}

func TestPrune_StepsKeepFullPlanRendering(t *testing.T) {
	p := branchingPipeline(t)
	full, err := Assemble(p)
	require.NoError(t, err)
	pruned, err := full.Prune("joined")
	require.NoError(t, err)

	fullByAlias := make(map[string]Step, len(full.Steps))
	for _, s := range full.Steps {
		fullByAlias[s.Alias] = s
	}
	for _, s := range pruned.Steps {
		assert.Equal(t, fullByAlias[s.Alias], s, "step %s", s.Alias)
	}

	// The dead-end branch is gone.
	assert.NotContains(t, stepAliases(pruned), "s4_unrelated__unrelated")
}

func TestPrune_UnknownTarget(t *testing.T) {
	_, err := Prune(branchingPipeline(t), "no_such_node")
	require.Error(t, err)

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CodeUnknownTarget, pe.Code)
	assert.Equal(t, "no_such_node", pe.Ref)
}

func TestPrune_UnknownFragmentInStage(t *testing.T) {
	_, err := Prune(branchingPipeline(t), "clean.no_such_fragment")
	require.Error(t, err)

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CodeUnknownTarget, pe.Code)
	assert.Equal(t, "clean", pe.Stage)
}

func TestPrune_AmbiguousBareFragment(t *testing.T) {
	// Both stages use "hits" internally; neither exposes it, so the bare
	// name is ambiguous and the error lists the qualified candidates.
	p, err := NewPipeline("ambiguous",
		[]InputBinding{{Name: "records", Relation: "records"}},
		[]stage.Stage{
			stage.MustNew("first_pass", []stage.Fragment{
				{Name: "hits", SQL: "SELECT 1 FROM {records}"},
				{Name: "first_out", SQL: "SELECT * FROM {hits}"},
			}),
			stage.MustNew("second_pass", []stage.Fragment{
				{Name: "hits", SQL: "SELECT 2 FROM {records}"},
				{Name: "second_out", SQL: "SELECT * FROM {hits}"},
			}),
		})
	require.NoError(t, err)

	_, err = Prune(p, "hits")
	require.Error(t, err)
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CodeUnknownTarget, pe.Code)
	assert.Contains(t, pe.Message, "first_pass.hits")
	assert.Contains(t, pe.Message, "second_pass.hits")
}

func stepAliases(pl *Plan) []string {
	out := make([]string, len(pl.Steps))
	for i, s := range pl.Steps {
		out[i] = s.Alias
	}
	return out
}
