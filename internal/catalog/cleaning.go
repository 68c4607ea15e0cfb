package catalog

import (
	"fmt"

	"github.com/oakmere/addrmatch/internal/stage"
)

// ukPostcodeRegex matches a UK-format postcode and captures the outward and
// inward codes, so canonicalisation can rewrite any internal spacing to a
// single separating space. GIR is the historic Girobank outward code.
const ukPostcodeRegex = `^([A-Z]{1,2}\d[A-Z\d]?|GIR)\s*(\d[A-Z]{2})$`

// textRule is one regexp_replace application in a cleaning chain.
type textRule struct {
	name        string
	pattern     string
	replacement string
}

// firstPassRules is the address normalisation chain, applied innermost
// first. Rule order matters: letter/number separation must run after
// punctuation removal, and flat relocation before the final trim.
var firstPassRules = []textRule{
	{"remove_commas_periods", `[,\.]`, ` `},
	{"remove_apostrophes", `''`, ``},
	{"remove_multiple_spaces", `\s+`, ` `},
	{"replace_fwd_slash_with_dash", `/`, `-`},
	{"separate_letter_num", `([A-Z])(\d)`, `\1 \2`},
	{"standarise_num_letter", `(\d+) ([A-Z])\b`, `\1\2`},
	{"move_flat_to_front", `^(.*?) ?\b(FLAT [A-Z0-9\-]+) ?(.*)$`, `\2 \1 \3`},
	{"squeeze_spaces", `\s+`, ` `},
}

// nestedReplace renders the chain as nested regexp_replace calls wrapped in
// a final trim.
func nestedReplace(column string, rules []textRule) string {
	expr := column
	for _, r := range rules {
		expr = fmt.Sprintf("regexp_replace(%s, '%s', '%s', 'g')", expr, r.pattern, r.replacement)
	}
	return "trim(" + expr + ")"
}

// TrimAddressAndPostcode strips surrounding whitespace from the address
// and postcode columns.
func TrimAddressAndPostcode() stage.Stage {
	return stage.MustSingle("trim_whitespace_address_and_postcode", `
SELECT
    * EXCLUDE (address_concat, postcode),
    trim(address_concat) AS address_concat,
    trim(postcode) AS postcode
FROM {input}`,
		stage.WithMeta(stage.Meta{
			Description: "Trim whitespace from address_concat and postcode",
			Tags:        []string{"cleaning"},
		}))
}

// UppercaseAddressAndPostcode upper-cases the address and postcode columns.
func UppercaseAddressAndPostcode() stage.Stage {
	return stage.MustSingle("upper_case_address_and_postcode", `
SELECT
    * EXCLUDE (address_concat, postcode),
    upper(address_concat) AS address_concat,
    upper(postcode) AS postcode
FROM {input}`,
		stage.WithMeta(stage.Meta{
			Description: "Uppercase address_concat and postcode",
			Tags:        []string{"cleaning"},
		}))
}

// CanonicalisePostcode rewrites any UK-format postcode to have a single
// space between outward and inward codes. Assumes the postcode is already
// trimmed and uppercased; non-matching values pass through untouched.
func CanonicalisePostcode() stage.Stage {
	return stage.MustSingle("canonicalise_postcode", fmt.Sprintf(`
SELECT
    * EXCLUDE (postcode),
    regexp_replace(
        postcode,
        '%s',
        '\1 \2'
    ) AS postcode
FROM {input}`, ukPostcodeRegex),
		stage.WithMeta(stage.Meta{
			Description: "Insert the single canonical space in UK postcodes",
			Tags:        []string{"cleaning"},
			DependsOn:   []string{"upper_case_address_and_postcode"},
		}))
}

// CleanAddressFirstPass applies the address normalisation regex chain to
// address_concat.
func CleanAddressFirstPass() stage.Stage {
	return stage.MustSingle("clean_address_string_first_pass", fmt.Sprintf(`
SELECT
    * EXCLUDE (address_concat),
    %s AS address_concat
FROM {input}`, nestedReplace("address_concat", firstPassRules)),
		stage.WithMeta(stage.Meta{
			Description: "Normalise punctuation, spacing and flat placement in address_concat",
			Tags:        []string{"cleaning"},
		}))
}

// RemoveDuplicateEndTokens drops duplicated trailing tokens, e.g.
// 'HIGH STREET ST ALBANS ST ALBANS' becomes 'HIGH STREET ST ALBANS'.
// Handles a single repeated token and a repeated trailing pair.
func RemoveDuplicateEndTokens() stage.Stage {
	return stage.MustNew("remove_duplicate_end_tokens", []stage.Fragment{
		{Name: "tokenised", SQL: `
SELECT *, string_split(address_concat, ' ') AS cleaned_tokenised
FROM {input}`},
		{Name: "deduplicated", SQL: `
SELECT
    * EXCLUDE (cleaned_tokenised, address_concat),
    CASE
        WHEN array_length(cleaned_tokenised) >= 2
             AND cleaned_tokenised[-1] = cleaned_tokenised[-2]
        THEN array_to_string(cleaned_tokenised[:-2], ' ')
        WHEN array_length(cleaned_tokenised) >= 4
             AND cleaned_tokenised[-4] = cleaned_tokenised[-2]
             AND cleaned_tokenised[-3] = cleaned_tokenised[-1]
        THEN array_to_string(cleaned_tokenised[:-3], ' ')
        ELSE address_concat
    END AS address_concat
FROM {tokenised}`},
	},
		stage.WithMeta(stage.Meta{
			Description: "Remove duplicated tokens at the end of the address",
			Tags:        []string{"cleaning"},
		}))
}

// DeriveOriginalAddress snapshots the cleaned address into
// original_address_concat, the column exact matching joins on.
func DeriveOriginalAddress() stage.Stage {
	return stage.MustSingle("derive_original_address_concat", `
SELECT
    *,
    address_concat AS original_address_concat
FROM {input}`,
		stage.WithMeta(stage.Meta{
			Description: "Snapshot address_concat as original_address_concat",
			Tags:        []string{"cleaning"},
		}))
}

// TokeniseAddress splits the cleaned address into an address_tokens array
// for trigram matching.
func TokeniseAddress() stage.Stage {
	return stage.MustSingle("tokenise_address", `
SELECT
    *,
    regexp_split_to_array(trim(address_concat), '\s+') AS address_tokens
FROM {input}`,
		stage.WithMeta(stage.Meta{
			Description: "Tokenise address_concat into an address_tokens array",
			Tags:        []string{"cleaning", "feature_engineering"},
		}))
}
