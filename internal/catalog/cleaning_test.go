package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakmere/addrmatch/internal/engine"
	"github.com/oakmere/addrmatch/internal/plan"
)

// The cleaning regexes are part of the matching contract: changing a
// pattern silently changes which addresses exact-match. This test pins the
// exact chain so any edit is deliberate.
func TestFirstPassRules_Pinned(t *testing.T) {
	type rule struct{ name, pattern, replacement string }
	want := []rule{
		{"remove_commas_periods", `[,\.]`, ` `},
		{"remove_apostrophes", `''`, ``},
		{"remove_multiple_spaces", `\s+`, ` `},
		{"replace_fwd_slash_with_dash", `/`, `-`},
		{"separate_letter_num", `([A-Z])(\d)`, `\1 \2`},
		{"standarise_num_letter", `(\d+) ([A-Z])\b`, `\1\2`},
		{"move_flat_to_front", `^(.*?) ?\b(FLAT [A-Z0-9\-]+) ?(.*)$`, `\2 \1 \3`},
		{"squeeze_spaces", `\s+`, ` `},
	}
	require.Len(t, firstPassRules, len(want))
	for i, w := range want {
		assert.Equal(t, w.name, firstPassRules[i].name)
		assert.Equal(t, w.pattern, firstPassRules[i].pattern, w.name)
		assert.Equal(t, w.replacement, firstPassRules[i].replacement, w.name)
	}
}

func TestUKPostcodeRegex_Pinned(t *testing.T) {
	assert.Equal(t, `^([A-Z]{1,2}\d[A-Z\d]?|GIR)\s*(\d[A-Z]{2})$`, ukPostcodeRegex)
}

func TestNestedReplace_Shape(t *testing.T) {
	got := nestedReplace("addr", []textRule{{"strip_dots", `\.`, ``}})
	assert.Equal(t, `trim(regexp_replace(addr, '\.', '', 'g'))`, got)
}

// cleanAddresses runs the full cleaning sequence over inline rows and
// returns (address_concat, postcode) pairs in input order.
func cleanAddresses(t *testing.T, rows string) [][2]string {
	t.Helper()
	p, err := plan.NewPipeline("cleaning",
		[]plan.InputBinding{{
			Name:     "fuzzy_addresses",
			Relation: fmt.Sprintf("(SELECT * FROM (VALUES %s) AS t(unique_id, address_concat, postcode))", rows),
		}},
		CleaningStages())
	require.NoError(t, err)
	pl, err := plan.Assemble(p)
	require.NoError(t, err)

	s := engine.MustOpenMemory(context.Background())
	t.Cleanup(func() { s.Close() })

	res, err := s.Run(context.Background(), pl)
	require.NoError(t, err)

	col := make(map[string]int, len(res.Columns))
	for i, c := range res.Columns {
		col[c] = i
	}
	out := make([][2]string, len(res.Rows))
	for i, row := range res.Rows {
		out[i] = [2]string{
			fmt.Sprintf("%v", row[col["address_concat"]]),
			fmt.Sprintf("%v", row[col["postcode"]]),
		}
	}
	return out
}

func TestCleaningStages_EndToEnd(t *testing.T) {
	got := cleanAddresses(t, `(1, '  10, downing st.  flat 2 ', ' sw1a2aa ')`)
	require.Len(t, got, 1)
	assert.Equal(t, "FLAT 2 10 DOWNING ST", got[0][0])
	assert.Equal(t, "SW1A 2AA", got[0][1])
}

func TestCleaningStages_DuplicateEndTokens(t *testing.T) {
	got := cleanAddresses(t, `(1, 'HIGH STREET ST ALBANS ST ALBANS', 'AL1 1AA')`)
	require.Len(t, got, 1)
	assert.Equal(t, "HIGH STREET ST ALBANS", got[0][0])
}

func TestCleaningStages_SingleDuplicateEndToken(t *testing.T) {
	got := cleanAddresses(t, `(1, 'HIGH STREET LONDON LONDON', 'E1 6AN')`)
	require.Len(t, got, 1)
	assert.Equal(t, "HIGH STREET LONDON", got[0][0])
}

func TestCleaningStages_PostcodePassThrough(t *testing.T) {
	// Non-UK-format postcodes are left untouched.
	got := cleanAddresses(t, `(1, 'SOME PLACE', 'NOT A POSTCODE')`)
	require.Len(t, got, 1)
	assert.Equal(t, "NOT A POSTCODE", got[0][1])
}

func TestCleaningStages_GirobankPostcode(t *testing.T) {
	got := cleanAddresses(t, `(1, 'BOOTLE', 'GIR0AA')`)
	require.Len(t, got, 1)
	assert.Equal(t, "GIR 0AA", got[0][1])
}

func TestCleaningStages_LetterNumberSpacing(t *testing.T) {
	// FLAT1 separates, then '1 A' style number-letter pairs glue back.
	got := cleanAddresses(t, `(1, 'FLAT1 12 A HIGH ST', 'E1 6AN')`)
	require.Len(t, got, 1)
	assert.Equal(t, "FLAT 1 12A HIGH ST", got[0][0])
}
