// Package canon holds the canonicalization tables shared across the
// ranking pipeline: the insurer alias table, the stopword set behind the
// relevant-volume heuristic, the bounded equivalence normalizer, and the
// legacy query expansion map.
//
// All tables are immutable after package init. Lookups are pure functions
// of their inputs, so concurrent requests can share them without locks.
package canon
