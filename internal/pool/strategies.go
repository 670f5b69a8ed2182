package pool

import (
	"os"
	"strings"
)

// Strategy names a sub-retriever composition for building a pool.
type Strategy string

const (
	// StrategyRankingOnly takes the top of the full two-stage pipeline.
	StrategyRankingOnly Strategy = "ranking_only"
	// StrategyHybridBM25 unions the pipeline with raw BM25 retrieval.
	StrategyHybridBM25 Strategy = "hybrid_bm25"
	// StrategyHybridRandom unions the pipeline with random practitioners
	// drawn from outside its leading ranks.
	StrategyHybridRandom Strategy = "hybrid_random"
	// StrategyMultiSource unions pipeline, BM25, keyword-overlap, and
	// random sub-pools.
	StrategyMultiSource Strategy = "multi_source"
)

// DefaultStrategy applies when no strategy is configured.
const DefaultStrategy = StrategyHybridBM25

// StrategyEnvVar is the environment variable FromEnv reads.
const StrategyEnvVar = "CANDIDATE_POOL_STRATEGY"

// Valid reports whether s names a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyRankingOnly, StrategyHybridBM25, StrategyHybridRandom, StrategyMultiSource:
		return true
	}
	return false
}

// FromEnv reads the strategy override from the environment, falling back
// to the default for unset or unrecognized values.
func FromEnv() Strategy {
	s := Strategy(strings.ToLower(strings.TrimSpace(os.Getenv(StrategyEnvVar))))
	if !s.Valid() {
		return DefaultStrategy
	}
	return s
}

// mix is the sub-pool composition of one strategy. A zero size disables
// that source.
type mix struct {
	pipeline int
	bm25     int
	keyword  int
	random   int

	// randomExclude widens the pipeline fetch so random draws stay
	// outside its leading ranks.
	randomExclude int

	// limit caps the deduplicated union.
	limit int
}

// mixFor returns the composition for s.
func mixFor(s Strategy) (mix, bool) {
	switch s {
	case StrategyRankingOnly:
		return mix{pipeline: 30, limit: 30}, true
	case StrategyHybridBM25:
		return mix{pipeline: 20, bm25: 40, limit: 50}, true
	case StrategyHybridRandom:
		return mix{pipeline: 20, random: 20, randomExclude: 30, limit: 45}, true
	case StrategyMultiSource:
		return mix{pipeline: 15, bm25: 20, keyword: 15, random: 10, limit: 55}, true
	}
	return mix{}, false
}
