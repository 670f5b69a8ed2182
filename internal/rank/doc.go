// Package rank implements two-stage practitioner ranking: weighted-field
// BM25 retrieval with quality, exact-phrase, and proximity boosts (Stage A),
// followed by additive rescoring from structured query intent (Stage B).
//
// Scoring is deterministic for a fixed candidate order: sorts are stable
// and ties keep their input position. All entry points honor context
// cancellation at candidate boundaries.
package rank
