package rank

import (
	"context"
	"sort"
	"strings"

	"github.com/caresearch/medrank/internal/canon"
	"github.com/caresearch/medrank/internal/corpus"
)

// cancelCheckStride is how many candidates are scored between context
// checks.
const cancelCheckStride = 512

// maxSafeLaneTermsInQuery bounds how many safe-lane terms join the Stage
// A query.
const maxSafeLaneTermsInQuery = 4

// Options tunes a single ranking call.
type Options struct {
	// TopN truncates the returned list; zero returns everything.
	TopN int

	// SearchType enables the proximity boost when set to
	// SearchTypePostcode.
	SearchType string

	// Semantic mixes precomputed semantic scores into Stage A.
	Semantic *SemanticOptions

	// NameFilter adds a practitioner-name term to the Stage A query.
	NameFilter string
}

// Engine scores candidate practitioners. It is stateless across requests;
// one engine can serve concurrent callers.
type Engine struct {
	cfg Config
}

// NewEngine validates cfg and returns an engine using it.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// Config returns the engine's ranking configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Rank runs the full two-stage pipeline: Stage A retrieval on the query
// built from ctx's structured intent, then Stage B rescoring, truncated
// to opts.TopN.
func (e *Engine) Rank(ctx context.Context, candidates []*corpus.Practitioner, sctx *SessionContext, opts Options) ([]*ScoredResult, error) {
	query := BuildStageAQuery(sctx, opts.NameFilter, e.cfg)

	stageAOpts := opts
	stageAOpts.TopN = e.cfg.StageATopN
	if opts.TopN > stageAOpts.TopN {
		stageAOpts.TopN = opts.TopN
	}

	results, err := e.StageA(ctx, candidates, query, stageAOpts)
	if err != nil {
		return nil, err
	}

	rescored := e.Rescore(results, sctx)
	return TopN(rescored, opts.TopN), nil
}

// StageA scores candidates against a prepared query: BM25 over the
// weighted blobs, multiplied by quality and proximity boosts, plus the
// exact-phrase bonus, min-max normalized and optionally mixed with
// semantic scores.
func (e *Engine) StageA(ctx context.Context, candidates []*corpus.Practitioner, query string, opts Options) ([]*ScoredResult, error) {
	return e.stageA(ctx, candidates, query, e.cfg.EquivalenceNormalization, opts)
}

func (e *Engine) stageA(ctx context.Context, candidates []*corpus.Practitioner, query string, normalize bool, opts Options) ([]*ScoredResult, error) {
	if len(candidates) == 0 {
		return []*ScoredResult{}, nil
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return TopN(syntheticOrder(candidates), opts.TopN), nil
	}

	// Alias expansion feeds token scoring only. Exact-phrase matching
	// stays on the user's words so appended aliases cannot break a
	// full-query hit.
	scoringQuery := query
	if normalize {
		scoringQuery = canon.NormalizeQuery(query)
	}
	queryTerms := Tokenize(scoringQuery)
	meaningful := meaningfulQueryTerms(queryTerms)
	queryLower := strings.ToLower(query)
	phrases := queryPhrases(queryLower)

	texts := make([]string, len(candidates))
	for i, p := range candidates {
		if i%cancelCheckStride == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		texts[i] = SearchText(p, e.cfg.FieldWeights)
	}
	ix := buildIndex(texts)

	semPresent := opts.Semantic.hasScores()
	results := make([]*ScoredResult, len(candidates))
	baseScores := make([]float64, len(candidates))
	semScores := make([]float64, len(candidates))

	for i, p := range candidates {
		if i%cancelCheckStride == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		bm25 := ix.score(i, queryTerms, e.cfg.K1, e.cfg.B)
		quality := qualityBoost(p, meaningful)
		proximity := proximityBoost(p, opts.SearchType)
		exact := exactMatchBonus(texts[i], queryLower, phrases)
		base := bm25*quality*proximity + exact

		var semantic float64
		if semPresent {
			semantic = opts.Semantic.scoreFor(p)
		}

		results[i] = &ScoredResult{
			Practitioner:    p,
			BM25Score:       bm25,
			QualityBoost:    quality,
			ProximityBoost:  proximity,
			ExactMatchBonus: exact,
			SemanticScore:   semantic,
			BaseBM25Score:   base,
			searchText:      texts[i],
		}
		baseScores[i] = base
		semScores[i] = semantic
	}

	normBase := minMaxNormalize(baseScores)
	var normSem []float64
	if semPresent {
		normSem = minMaxNormalize(semScores)
	}
	for i, r := range results {
		r.NormalizedBM25 = normBase[i]
		r.Score = normBase[i]
		if semPresent {
			r.NormalizedSemantic = normSem[i]
			r.Score += normSem[i] * opts.Semantic.Weight
		}
	}

	sortByScore(results)
	assignRanks(results)
	return TopN(results, opts.TopN), nil
}

// BuildStageAQuery assembles the Stage A retrieval query from structured
// intent: the cleaned patient query, up to four safe-lane terms, an
// optional name filter, the anchor phrases, and optionally a capped
// number of intent terms.
func BuildStageAQuery(sctx *SessionContext, nameFilter string, cfg Config) string {
	if sctx == nil {
		return ""
	}

	parts := make([]string, 0, 8)
	if sctx.QPatient != "" {
		parts = append(parts, sctx.QPatient)
	}

	safeLane := sctx.SafeLaneTerms
	if len(safeLane) > maxSafeLaneTermsInQuery {
		safeLane = safeLane[:maxSafeLaneTermsInQuery]
	}
	parts = append(parts, safeLane...)

	if nameFilter != "" {
		parts = append(parts, nameFilter)
	}
	parts = append(parts, sctx.AnchorPhrases...)

	if cfg.IntentTermsInBM25 {
		terms := sctx.IntentTerms
		if limit := cfg.intentTermsCap(); len(terms) > limit {
			terms = terms[:limit]
		}
		parts = append(parts, terms...)
	}

	return strings.TrimSpace(strings.Join(parts, " "))
}

// syntheticOrder preserves the input order under descending synthetic
// scores, for queries that are empty after trimming.
func syntheticOrder(candidates []*corpus.Practitioner) []*ScoredResult {
	n := len(candidates)
	results := make([]*ScoredResult, n)
	for i, p := range candidates {
		results[i] = &ScoredResult{
			Practitioner: p,
			Rank:         i + 1,
			Score:        float64(n-i) / float64(n),
		}
	}
	return results
}

// TopN truncates results to at most n entries; non-positive n returns the
// full list. Because result lists are stably sorted with zero-scored
// candidates trailing in their prior order, the truncation always yields
// min(n, len) entries with non-zero scores filling first.
func TopN(results []*ScoredResult, n int) []*ScoredResult {
	if n <= 0 || n >= len(results) {
		return results
	}
	return results[:n]
}

// sortByScore orders results by score descending. The sort is stable so
// equal scores keep their input position.
func sortByScore(results []*ScoredResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

// assignRanks numbers results 1..len in order.
func assignRanks(results []*ScoredResult) {
	for i, r := range results {
		r.Rank = i + 1
	}
}
