package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakmere/addrmatch/internal/engine"
	"github.com/oakmere/addrmatch/internal/plan"
	"github.com/oakmere/addrmatch/internal/stage"
)

// preCleaned wraps inline (unique_id, address, postcode) rows in a relation
// carrying the columns the matching stages expect from cleaned input.
func preCleaned(rows string) string {
	return fmt.Sprintf(`(
SELECT
    unique_id,
    address_concat,
    address_concat AS original_address_concat,
    postcode,
    regexp_split_to_array(address_concat, ' ') AS address_tokens
FROM (VALUES %s) AS t(unique_id, address_concat, postcode))`, rows)
}

func matchingPlan(t *testing.T, fuzzyRows, canonicalRows string) *plan.Plan {
	t.Helper()
	p, err := plan.NewPipeline("exact_matching",
		[]plan.InputBinding{
			{Name: "fuzzy_addresses", Relation: preCleaned(fuzzyRows)},
			{Name: "canonical_addresses", Relation: preCleaned(canonicalRows)},
		},
		MatchingStages())
	require.NoError(t, err)
	pl, err := plan.Assemble(p)
	require.NoError(t, err)
	return pl
}

type matchRow struct {
	uniqueID    string
	canonicalID string
	reason      string
}

func runMatching(t *testing.T, fuzzyRows, canonicalRows string) []matchRow {
	t.Helper()
	pl := matchingPlan(t, fuzzyRows, canonicalRows)

	s := engine.MustOpenMemory(context.Background())
	t.Cleanup(func() { s.Close() })

	res, err := s.Run(context.Background(), pl)
	require.NoError(t, err)
	require.Equal(t, []string{"unique_id", "resolved_canonical_id", "match_reason"}, res.Columns)

	out := make([]matchRow, len(res.Rows))
	for i, row := range res.Rows {
		out[i] = matchRow{
			uniqueID:    fmt.Sprintf("%v", row[0]),
			canonicalID: fmt.Sprintf("%v", row[1]),
			reason:      fmt.Sprintf("%v", row[2]),
		}
	}
	return out
}

func TestMatchingStages_EndToEnd(t *testing.T) {
	// Record 1 exact-matches canonical 100. Record 2 shares unique
	// trigrams with canonical 200 but differs by the flat prefix, so only
	// trigram resolution can claim it. Record 3's postcode is absent from
	// the canonical set entirely.
	fuzzy := `
		(1, '10 DOWNING ST', 'SW1A 2AA'),
		(2, 'FLAT 2 MARLBOROUGH HOUSE PALL MALL', 'SW1A 1AA'),
		(3, '99 NOWHERE LANE', 'ZZ9 9ZZ')`
	canonical := `
		(100, '10 DOWNING ST', 'SW1A 2AA'),
		(200, 'MARLBOROUGH HOUSE PALL MALL', 'SW1A 1AA')`

	got := runMatching(t, fuzzy, canonical)
	require.Len(t, got, 3)

	assert.Equal(t, matchRow{"1", "100", ReasonExact}, got[0])
	assert.Equal(t, matchRow{"2", "200", ReasonUniqueTrigram}, got[1])
	assert.Equal(t, "3", got[2].uniqueID)
	assert.Equal(t, "<nil>", got[2].canonicalID)
	assert.Equal(t, ReasonUnmatched, got[2].reason)
}

func TestMatchingStages_ExactBeatsTrigram(t *testing.T) {
	// An exact match never reaches the trigram stage: filter_unmatched
	// removes it, and min(match_reason) would prefer exact regardless.
	fuzzy := `(1, 'MARLBOROUGH HOUSE PALL MALL', 'SW1A 1AA')`
	canonical := `(200, 'MARLBOROUGH HOUSE PALL MALL', 'SW1A 1AA')`

	got := runMatching(t, fuzzy, canonical)
	require.Len(t, got, 1)
	assert.Equal(t, matchRow{"1", "200", ReasonExact}, got[0])
}

func TestMatchingStages_AmbiguousTrigramsStayUnmatched(t *testing.T) {
	// Two canonical addresses in the same postcode share their trigrams,
	// so no trigram is unique and the fuzzy record stays unmatched.
	fuzzy := `(1, 'FLAT 9 THE OLD MILL HOUSE LANE', 'AB1 2CD')`
	canonical := `
		(100, 'THE OLD MILL HOUSE LANE', 'AB1 2CD'),
		(200, 'ANNEX THE OLD MILL HOUSE LANE', 'AB1 2CD')`

	got := runMatching(t, fuzzy, canonical)
	require.Len(t, got, 1)
	assert.Equal(t, ReasonUnmatched, got[0].reason)
}

func TestMatchingStages_CanonicalDuplicatesCollapse(t *testing.T) {
	// Duplicate canonical rows for one address collapse to the lowest
	// unique_id rather than fanning the fuzzy record out.
	fuzzy := `(1, '10 DOWNING ST', 'SW1A 2AA')`
	canonical := `
		(300, '10 DOWNING ST', 'SW1A 2AA'),
		(100, '10 DOWNING ST', 'SW1A 2AA')`

	got := runMatching(t, fuzzy, canonical)
	require.Len(t, got, 1)
	assert.Equal(t, matchRow{"1", "100", ReasonExact}, got[0])
}

func TestRestrictCanonical_InvalidStrategy(t *testing.T) {
	_, err := RestrictCanonicalToFuzzyPostcodes("outcode")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outcode")
}

func TestRestrictCanonical_DropLastChar(t *testing.T) {
	// The drop-last-char strategy keys on the postcode prefix and exposes
	// postcode_group for downstream grouping.
	restricted := MustRestrictCanonicalToFuzzyPostcodes(PostcodeDropLastChar)
	p, err := plan.NewPipeline("restricted",
		[]plan.InputBinding{
			{Name: "fuzzy_addresses", Relation: preCleaned(`(1, 'A HOUSE', 'SW1A 2AB')`)},
			{Name: "canonical_addresses", Relation: preCleaned(`(100, 'A HOUSE', 'SW1A 2AA')`)},
		},
		[]stage.Stage{restricted})
	require.NoError(t, err)
	pl, err := plan.Assemble(p)
	require.NoError(t, err)

	s := engine.MustOpenMemory(context.Background())
	t.Cleanup(func() { s.Close() })

	res, err := s.Run(context.Background(), pl)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Contains(t, res.Columns, "postcode_group")
}

func TestValidateEmits_AgainstRegisteredCategory(t *testing.T) {
	ctx := context.Background()
	s := engine.MustOpenMemory(ctx)
	t.Cleanup(func() { s.Close() })

	reg := engine.NewRegistrar(s)
	require.NoError(t, reg.Register(ctx, CategoryMatchReason, MatchReasons()))

	p, err := plan.NewPipeline("exact_matching",
		[]plan.InputBinding{
			{Name: "fuzzy_addresses", Relation: "fuzzy"},
			{Name: "canonical_addresses", Relation: "canonical"},
		},
		MatchingStages())
	require.NoError(t, err)
	assert.NoError(t, plan.ValidateEmits(p, reg))
}
