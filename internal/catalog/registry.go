package catalog

import (
	"sort"

	"github.com/oakmere/addrmatch/internal/stage"
)

// Factory constructs a fresh catalog stage with its default configuration.
type Factory func() stage.Stage

var registry = map[string]Factory{
	"trim_whitespace_address_and_postcode": TrimAddressAndPostcode,
	"upper_case_address_and_postcode":      UppercaseAddressAndPostcode,
	"canonicalise_postcode":                CanonicalisePostcode,
	"clean_address_string_first_pass":      CleanAddressFirstPass,
	"remove_duplicate_end_tokens":          RemoveDuplicateEndTokens,
	"derive_original_address_concat":       DeriveOriginalAddress,
	"tokenise_address":                     TokeniseAddress,
	"initialise_match_reason":              InitialiseMatchReason,
	"restrict_canonical_to_fuzzy_postcodes": func() stage.Stage {
		return MustRestrictCanonicalToFuzzyPostcodes(PostcodeExact)
	},
	"annotate_exact_matches":   AnnotateExactMatches,
	"filter_unmatched_matches": FilterUnmatched,
	"resolve_with_trigrams": func() stage.Stage {
		return ResolveWithTrigrams(TrigramConfig{})
	},
	"combine_matches": CombineMatches,
}

// Lookup returns the factory registered under name.
func Lookup(name string) (Factory, bool) {
	f, ok := registry[name]
	return f, ok
}

// Names returns all registered stage names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CleaningStages is the default address cleaning sequence, in order.
func CleaningStages() []stage.Stage {
	return []stage.Stage{
		TrimAddressAndPostcode(),
		UppercaseAddressAndPostcode(),
		CanonicalisePostcode(),
		CleanAddressFirstPass(),
		RemoveDuplicateEndTokens(),
		DeriveOriginalAddress(),
		TokeniseAddress(),
	}
}

// MatchingStages is the default phase-one matching sequence: exact
// annotation, then unique-trigram resolution of the remainder, combined
// into one candidate set. Assumes pre-cleaned fuzzy_addresses and
// canonical_addresses inputs.
func MatchingStages() []stage.Stage {
	return []stage.Stage{
		InitialiseMatchReason(),
		MustRestrictCanonicalToFuzzyPostcodes(PostcodeExact),
		AnnotateExactMatches(),
		FilterUnmatched(),
		ResolveWithTrigrams(TrigramConfig{}),
		CombineMatches(),
	}
}
