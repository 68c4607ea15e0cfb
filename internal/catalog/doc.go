// Package catalog is the built-in stage library for UK address matching:
// cleaning stages that normalise free-text addresses and postcodes, and
// matching stages that link cleaned addresses to a canonical address set.
//
// Stage SQL assumes two input bindings: fuzzy_addresses (the records to
// match, with unique_id, address_concat and postcode columns) and
// canonical_addresses (the reference set, same columns). Cleaning stages
// chain off {input}; matching stages reference each other's visible
// outputs by name, so they can be composed selectively as long as the
// dependency chain is present.
//
// Every stage constructor returns a fresh value, so callers can mutate
// metadata or toggle checkpoints without affecting other pipelines. The
// package registry maps stage names to constructors for CLI listing and
// scenario files.
package catalog
