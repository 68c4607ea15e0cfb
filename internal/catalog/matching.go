package catalog

import (
	"fmt"

	"github.com/oakmere/addrmatch/internal/stage"
)

// PostcodeStrategy selects how RestrictCanonicalToFuzzyPostcodes keys the
// postcode join.
type PostcodeStrategy string

const (
	// PostcodeExact keeps canonical rows whose full postcode appears in
	// the fuzzy input.
	PostcodeExact PostcodeStrategy = "exact"

	// PostcodeDropLastChar keys on the postcode minus its final
	// character, widening the candidate set for near-miss postcodes. The
	// output gains a postcode_group column.
	PostcodeDropLastChar PostcodeStrategy = "drop_last_char"
)

func postcodePrefix(expr string) string {
	return fmt.Sprintf(
		"CASE WHEN %s IS NULL OR length(%s) <= 1 THEN NULL ELSE left(%s, length(%s) - 1) END",
		expr, expr, expr, expr)
}

// InitialiseMatchReason seeds the fuzzy records with an empty resolution:
// a NULL resolved_canonical_id and the unmatched reason. Matching stages
// overwrite both as they claim records.
func InitialiseMatchReason() stage.Stage {
	return stage.MustNew("initialise_match_reason", []stage.Fragment{
		{Name: "prepared_addresses", SQL: fmt.Sprintf(`
SELECT
    *,
    CAST(NULL AS BIGINT) AS resolved_canonical_id,
    %s AS match_reason
FROM {input}`, reasonCast(ReasonUnmatched))},
	},
		stage.WithMeta(stage.Meta{
			Description: "Seed records as unresolved before matching",
			Tags:        []string{"exact_matching"},
			Emits:       map[string][]string{CategoryMatchReason: {ReasonUnmatched}},
		}))
}

// RestrictCanonicalToFuzzyPostcodes filters the canonical set to postcodes
// observed in the fuzzy input, so downstream joins never scan canonical
// rows that cannot match.
func RestrictCanonicalToFuzzyPostcodes(strategy PostcodeStrategy) (stage.Stage, error) {
	var fuzzyKey, canonicalKey, groupColumn string
	switch strategy {
	case PostcodeExact:
		fuzzyKey = "postcode"
		canonicalKey = "canon.postcode"
	case PostcodeDropLastChar:
		fuzzyKey = postcodePrefix("postcode")
		canonicalKey = postcodePrefix("canon.postcode")
		groupColumn = ",\n    left(canon.postcode, length(canon.postcode) - 1) AS postcode_group"
	default:
		return stage.Stage{}, fmt.Errorf(
			"postcode strategy must be %q or %q, got %q",
			PostcodeExact, PostcodeDropLastChar, strategy)
	}

	sql := fmt.Sprintf(`
SELECT
    canon.original_address_concat,
    canon.postcode,
    canon.unique_id AS canonical_unique_id,
    canon.address_tokens%s
FROM {canonical_addresses} AS canon
JOIN (
    SELECT DISTINCT
        %s AS postcode_key
    FROM {fuzzy_addresses}
    WHERE %s IS NOT NULL
) AS fuzzy
  ON %s = fuzzy.postcode_key
WHERE canon.unique_id IS NOT NULL`, groupColumn, fuzzyKey, fuzzyKey, canonicalKey)

	return stage.New("restrict_canonical_to_fuzzy_postcodes",
		[]stage.Fragment{{Name: "canonical_addresses_restricted", SQL: sql}},
		stage.WithMeta(stage.Meta{
			Description: "Restrict canonical addresses to postcodes observed in the fuzzy input",
			Tags:        []string{"exact_matching", "utility"},
		}))
}

// MustRestrictCanonicalToFuzzyPostcodes is RestrictCanonicalToFuzzyPostcodes
// for statically known strategies.
func MustRestrictCanonicalToFuzzyPostcodes(strategy PostcodeStrategy) stage.Stage {
	s, err := RestrictCanonicalToFuzzyPostcodes(strategy)
	if err != nil {
		panic(err)
	}
	return s
}

// AnnotateExactMatches resolves fuzzy addresses by hash join on
// original_address_concat plus postcode against the restricted canonical
// set. Canonical duplicates are collapsed to the lowest unique_id first, so
// a fuzzy address never fans out to multiple exact matches.
func AnnotateExactMatches() stage.Stage {
	// The fuzzy side reads {prepared_addresses}, the visible output of
	// InitialiseMatchReason, by name rather than {input}: the restrict
	// stage usually sits between the two in declaration order.
	return stage.MustNew("annotate_exact_matches", []stage.Fragment{
		{Name: "canonical_exact_matches", SQL: `
SELECT
    canon.original_address_concat,
    canon.postcode,
    canon.canonical_unique_id
FROM {canonical_addresses_restricted} AS canon
QUALIFY row_number() OVER (
    PARTITION BY canon.original_address_concat, canon.postcode
    ORDER BY canon.canonical_unique_id
) = 1`},
		{Name: "annotated_addresses", SQL: fmt.Sprintf(`
SELECT
    fuzzy.unique_id AS unique_id,
    coalesce(canon.canonical_unique_id, fuzzy.resolved_canonical_id) AS resolved_canonical_id,
    fuzzy.* EXCLUDE (match_reason, unique_id, resolved_canonical_id),
    CASE
        WHEN canon.canonical_unique_id IS NOT NULL THEN %s
        ELSE fuzzy.match_reason
    END AS match_reason
FROM {prepared_addresses} AS fuzzy
LEFT JOIN {canonical_exact_matches} AS canon
  ON fuzzy.original_address_concat = canon.original_address_concat
 AND fuzzy.postcode = canon.postcode`, reasonCast(ReasonExact))},
	},
		stage.WithMeta(stage.Meta{
			Description: "Annotate fuzzy addresses with exact hash-join matches on original_address_concat + postcode",
			Tags:        []string{"exact_matching"},
			DependsOn:   []string{"restrict_canonical_to_fuzzy_postcodes"},
			Emits:       map[string][]string{CategoryMatchReason: {ReasonExact}},
		}))
}

// FilterUnmatched keeps only records the preceding stages failed to
// resolve.
func FilterUnmatched() stage.Stage {
	return stage.MustNew("filter_unmatched_matches", []stage.Fragment{
		{Name: "unmatched_records", SQL: fmt.Sprintf(`
SELECT
    f.*
FROM {input} AS f
WHERE f.match_reason = '%s'`, ReasonUnmatched)},
	},
		stage.WithMeta(stage.Meta{
			Description: "Filter records that haven't been matched yet",
			Tags:        []string{"exact_matching"},
		}))
}

// TrigramConfig parameterises ResolveWithTrigrams.
type TrigramConfig struct {
	// NgramSize is the token window length. Zero means 3.
	NgramSize int
	// MinUniqueHits is the number of distinct unique trigram hits a
	// candidate link needs. Zero means 1.
	MinUniqueHits int
	// IncludeConflicts adds a trigram_conflicts fragment listing fuzzy
	// rows whose trigrams hit multiple canonical addresses, for analysis
	// via debug materialization.
	IncludeConflicts bool
}

func (c TrigramConfig) withDefaults() TrigramConfig {
	if c.NgramSize <= 0 {
		c.NgramSize = 3
	}
	if c.MinUniqueHits <= 0 {
		c.MinUniqueHits = 1
	}
	return c
}

const trigramHashExpr = "hash(array_to_string(tri, ' '))"

func ngramExpr(tokensColumn string, n int) string {
	// range stop is exclusive, hence the +2.
	return fmt.Sprintf(`list_transform(
        range(1, length(%s) - %d + 2),
        i -> %s[i : i + %d - 1]
    )`, tokensColumn, n, tokensColumn, n)
}

// ResolveWithTrigrams links remaining unmatched records to canonical
// addresses through trigrams that are unique within a postcode: if every
// trigram hit for a fuzzy address points at the same canonical address,
// the link is accepted.
func ResolveWithTrigrams(cfg TrigramConfig) stage.Stage {
	cfg = cfg.withDefaults()

	fragments := []stage.Fragment{
		{Name: "canonical_trigrams", SQL: fmt.Sprintf(`
SELECT
    canon.canonical_unique_id,
    canon.postcode,
    %s AS ngrams
FROM {canonical_addresses_restricted} AS canon
WHERE length(canon.address_tokens) >= %d`, ngramExpr("canon.address_tokens", cfg.NgramSize), cfg.NgramSize)},

		{Name: "canonical_trigrams_exploded", SQL: fmt.Sprintf(`
SELECT DISTINCT
    trigram.canonical_unique_id,
    trigram.postcode,
    %s AS trigram_hash
FROM {canonical_trigrams} AS trigram,
UNNEST(trigram.ngrams) AS u(tri)
WHERE tri IS NOT NULL`, trigramHashExpr)},

		{Name: "unique_trigram_index", SQL: `
SELECT
    postcode,
    trigram_hash,
    min(canonical_unique_id) AS canonical_unique_id
FROM {canonical_trigrams_exploded}
GROUP BY postcode, trigram_hash
HAVING count(DISTINCT canonical_unique_id) = 1`},

		{Name: "fuzzy_trigrams", SQL: fmt.Sprintf(`
SELECT
    f.unique_id AS fuzzy_unique_id,
    f.postcode,
    %s AS ngrams
FROM {unmatched_records} AS f
WHERE length(f.address_tokens) >= %d`, ngramExpr("f.address_tokens", cfg.NgramSize), cfg.NgramSize)},

		{Name: "fuzzy_trigrams_exploded", SQL: fmt.Sprintf(`
SELECT DISTINCT
    fuzzy_trigrams.fuzzy_unique_id,
    fuzzy_trigrams.postcode,
    %s AS trigram_hash
FROM {fuzzy_trigrams} AS fuzzy_trigrams,
UNNEST(fuzzy_trigrams.ngrams) AS u(tri)
WHERE tri IS NOT NULL`, trigramHashExpr)},

		{Name: "trigram_candidate_links", SQL: `
SELECT
    fuzzy.fuzzy_unique_id,
    fuzzy.postcode,
    unique_index.canonical_unique_id,
    fuzzy.trigram_hash
FROM {fuzzy_trigrams_exploded} AS fuzzy
JOIN {unique_trigram_index} AS unique_index
  USING (postcode, trigram_hash)`},

		{Name: "trigram_one_to_one_links", SQL: fmt.Sprintf(`
SELECT
    links.fuzzy_unique_id,
    min(links.canonical_unique_id) AS resolved_canonical_id,
    links.postcode,
    count(*) AS trigram_hit_count,
    list(DISTINCT links.trigram_hash) AS supporting_trigram_hashes
FROM {trigram_candidate_links} AS links
GROUP BY links.fuzzy_unique_id, links.postcode
HAVING count(DISTINCT links.canonical_unique_id) = 1
   AND count(*) >= %d`, cfg.MinUniqueHits)},

		{Name: "trigram_matches", SQL: fmt.Sprintf(`
SELECT
    fuzzy_unique_id AS unique_id,
    resolved_canonical_id,
    trigram_hit_count,
    supporting_trigram_hashes,
    %s AS match_reason
FROM {trigram_one_to_one_links}`, reasonCast(ReasonUniqueTrigram))},
	}

	if cfg.IncludeConflicts {
		fragments = append(fragments, stage.Fragment{Name: "trigram_conflicts", SQL: `
SELECT
    links.fuzzy_unique_id,
    links.postcode,
    count(DISTINCT links.canonical_unique_id) AS candidate_canonical_count,
    list(DISTINCT links.canonical_unique_id) AS candidate_canonical_unique_ids,
    list(DISTINCT links.trigram_hash) AS conflicting_trigram_hashes
FROM {trigram_candidate_links} AS links
GROUP BY links.fuzzy_unique_id, links.postcode
HAVING count(DISTINCT links.canonical_unique_id) > 1`})
	}

	return stage.MustNew("resolve_with_trigrams", fragments,
		stage.WithOutput("trigram_matches"),
		stage.WithMeta(stage.Meta{
			Description: "Resolve records using unique trigram matches",
			Tags:        []string{"exact_matching", "trigram"},
			DependsOn:   []string{"filter_unmatched_matches"},
			Emits:       map[string][]string{CategoryMatchReason: {ReasonUniqueTrigram}},
		}))
}

// CombineMatches merges the exact annotation pass with trigram resolutions
// into one row per fuzzy address. Candidates are pooled and the winner is
// chosen by min(match_reason): enum declaration order makes stronger
// reasons sort first.
func CombineMatches() stage.Stage {
	return stage.MustNew("combine_matches", []stage.Fragment{
		{Name: "candidate_matches", SQL: `
SELECT unique_id, resolved_canonical_id, match_reason
FROM {annotated_addresses}
UNION ALL
SELECT unique_id, resolved_canonical_id, match_reason
FROM {trigram_matches}`},
		{Name: "match_candidates", SQL: `
SELECT
    unique_id,
    arg_min(resolved_canonical_id, match_reason) AS resolved_canonical_id,
    min(match_reason) AS match_reason
FROM {candidate_matches}
GROUP BY unique_id
ORDER BY unique_id`},
	},
		stage.WithMeta(stage.Meta{
			Description: "Merge exact and trigram matches, preferring the strongest reason",
			Tags:        []string{"post_linkage", "matching"},
			DependsOn:   []string{"annotate_exact_matches", "resolve_with_trigrams"},
		}))
}
