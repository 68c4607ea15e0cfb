package catalog

import (
	"fmt"
	"strings"
)

// CategoryMatchReason is the closed category naming how a fuzzy address was
// resolved. Declaration order is preference order: when several candidate
// matches exist for one address, min(match_reason) picks the strongest.
const CategoryMatchReason = "match_reason"

// Match reason labels, strongest first.
const (
	ReasonExact         = "exact: full match"
	ReasonUniqueTrigram = "unique_trigram: unique trigram match"
	ReasonTrie          = "trie: exact match with skips and fuzziness"
	ReasonSplink        = "splink: probabilistic match"
	ReasonUnmatched     = "unmatched: no match found"
)

// MatchReasons returns the ordered variant labels for CategoryMatchReason.
func MatchReasons() []string {
	return []string{
		ReasonExact,
		ReasonUniqueTrigram,
		ReasonTrie,
		ReasonSplink,
		ReasonUnmatched,
	}
}

// reasonCast renders a SQL literal cast to the match_reason enum type,
// for use inside fragment SQL before the type name itself is relied on.
// Inlining the variant list keeps fragments self-describing and matches
// how DuckDB displays anonymous enum casts.
func reasonCast(label string) string {
	quoted := make([]string, 0, 5)
	for _, v := range MatchReasons() {
		quoted = append(quoted, "'"+v+"'")
	}
	return fmt.Sprintf("'%s'::ENUM (%s)", label, strings.Join(quoted, ", "))
}
