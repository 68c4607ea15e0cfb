package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_NamesMatchStageNames(t *testing.T) {
	names := Names()
	assert.True(t, sortedStrings(names))
	require.NotEmpty(t, names)

	for _, name := range names {
		factory, ok := Lookup(name)
		require.True(t, ok, name)
		s := factory()
		assert.Equal(t, name, s.Name, "registry key must match the stage's own name")
	}
}

func TestRegistry_LookupMissing(t *testing.T) {
	_, ok := Lookup("resolve_with_carrier_pigeons")
	assert.False(t, ok)
}

func TestRegistry_FactoriesReturnFreshValues(t *testing.T) {
	a, _ := Lookup("annotate_exact_matches")
	first := a()
	first.Meta.Tags = append(first.Meta.Tags, "mutated")

	second := a()
	assert.NotContains(t, second.Meta.Tags, "mutated")
}

func TestMatchReasons_OrderPinned(t *testing.T) {
	assert.Equal(t, []string{
		"exact: full match",
		"unique_trigram: unique trigram match",
		"trie: exact match with skips and fuzziness",
		"splink: probabilistic match",
		"unmatched: no match found",
	}, MatchReasons())
}

func sortedStrings(xs []string) bool {
	for i := 1; i < len(xs); i++ {
		if xs[i-1] > xs[i] {
			return false
		}
	}
	return true
}
