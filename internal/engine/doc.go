// Package engine executes assembled plans against an embedded DuckDB
// database.
//
// A Session owns one database handle and everything scoped to it: input
// binding views, scratch tables written by checkpoint segments, and the
// enum types backing registered categories. Sessions are cheap to open
// in-memory, which is how tests and debug runs use them; production runs
// open a database file so scratch tables survive between pipelines.
//
// Execution is strictly sequential. A plan's segments run in order on a
// single connection: each non-final segment materialises its output as a
// temp table under the step's own alias, and the final segment streams the
// result. There is no concurrency inside a run; DuckDB parallelises the
// individual queries internally.
//
// Failures are attributed. When a segment fails, the engine maps the
// database error back to the step whose rendered SQL is the closest match
// and returns an *Error naming the pipeline, stage and fragment, so a bad
// column reference in one fragment of a forty-step plan points at that
// fragment rather than at one giant composed statement.
package engine
