// Package harness provides equivalence testing for staged pipelines.
//
// A scenario pairs a staged pipeline with a reference SQL query, the
// hand-written statement the stages are meant to replace. The harness runs
// both against one scratch in-memory database seeded with the scenario's
// inline rows and requires row-for-row equality, so a pipeline migration
// is only accepted when it reproduces the old query's output exactly.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	categories:
//	  match_reason:
//	    - "exact: full match"
//	    - "unmatched: no match found"
//	inputs:
//	  - name: fuzzy_addresses
//	    columns: [unique_id, address_concat, postcode]
//	    rows:
//	      - [1, "10 DOWNING ST", "SW1A 2AA"]
//	  - name: canonical_addresses
//	    sql: |
//	      SELECT ...
//
// An input is either columns plus literal rows, or a raw SQL query for
// relations VALUES cannot express, such as list-typed columns.
//	stages:
//	  - trim_whitespace_address_and_postcode
//	  - upper_case_address_and_postcode
//	reference_sql: |
//	  SELECT upper(trim(address_concat)) AS address_concat, ...
//	target: canonicalise_postcode
//
// Stage names resolve through the catalog registry. The optional target
// names one pipeline node; when set, the harness additionally checks that
// the pruned sub-plan for that node returns the same rows as the full
// plan re-terminated at it.
//
// # Determinism
//
// Result comparison is order-insensitive: rows are canonically encoded
// (NFC-normalised strings, NULL markers) and sorted before comparison, so
// scenarios do not need ORDER BY clauses. Golden snapshots of rendered
// plan SQL are byte-exact and regenerated with:
//
//	go test ./internal/harness -update
package harness
