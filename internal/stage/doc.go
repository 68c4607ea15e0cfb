// Package stage defines the building blocks of a SQL transformation
// pipeline: Fragments (named units of SQL with symbolic placeholders) and
// Stages (ordered groups of Fragments exposing one named output).
//
// Both are immutable once constructed. Construction is the validation
// boundary: a Stage that exists is internally consistent, its output names
// a real fragment and no two fragments share a name. Anything that can only
// be checked across stages (reference resolution, ordering, cycles) belongs
// to package plan.
//
// # Placeholders
//
// Fragment SQL may embed placeholder tokens of the form {name}. A
// placeholder refers to one of:
//
//   - an earlier fragment in the same stage, by fragment name
//   - another stage's declared output name
//   - a pipeline input binding name
//   - {input}, the output of the stage's declared predecessor (or the
//     pipeline root for the first stage)
//
// Placeholders are purely symbolic here; resolution to concrete aliases
// happens at assembly time.
package stage
