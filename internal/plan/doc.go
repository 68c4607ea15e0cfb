// Package plan turns a set of independently authored stages into one
// dependency-correct executable query plan.
//
// The pipeline lifecycle is:
//
//	NewPipeline  cross-stage name validation (duplicates, reserved names)
//	Resolve      placeholder reference graph + topological order
//	Assemble     deterministic alias assignment and placeholder
//	             substitution into a WITH-chain (or checkpointed segments)
//	Prune        dependency-closure sub-plan for single-node debugging
//
// Everything here is pure, synchronous data transformation: no I/O, no
// engine. A Pipeline either assembles into one valid plan or fails with a
// coded error naming the offending stage, fragment and reference. Nothing
// partially valid ever reaches the engine.
//
// The assembler is referentially transparent: assembling the same pipeline
// definition twice yields byte-identical SQL. It substitutes placeholders
// and nothing else; optimization belongs to the engine.
package plan
