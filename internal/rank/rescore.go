package rank

import (
	"math"
	"strings"

	"github.com/caresearch/medrank/internal/corpus"
)

// Rescore applies Stage B to Stage A output: additive deltas from intent
// terms, anchor phrases, safe-lane terms, subspecialty confidence, and
// negative-term penalties, matched as substrings of each candidate's
// weighted blob. When the query is ambiguous the deltas replace the noisy
// Stage A ordering instead of adjusting it.
//
// With no intent terms, anchors, or negatives in the context, Stage B is
// a pass-through and the input is returned unchanged.
func (e *Engine) Rescore(results []*ScoredResult, sctx *SessionContext) []*ScoredResult {
	if len(results) == 0 || !sctx.HasRescoringSignals() {
		return results
	}

	ambiguous := sctx.Intent.IsQueryAmbiguous
	for _, r := range results {
		info := e.rescoreOne(r.searchText, r.Practitioner, sctx)
		r.Rescoring = info
		if ambiguous {
			r.Score = math.Max(0, info.Delta)
		} else {
			r.Score = math.Max(0, r.Score+info.Delta)
		}
	}

	sortByScore(results)
	assignRanks(results)
	return results
}

// rescoreOne computes the Stage B components for one candidate.
func (e *Engine) rescoreOne(text string, p *corpus.Practitioner, sctx *SessionContext) RescoringInfo {
	var info RescoringInfo
	cfg := e.cfg

	info.IntentMatches = countSubstringMatches(text, sctx.IntentTerms)
	intentDelta := float64(info.IntentMatches) * cfg.IntentTermWeight

	info.AnchorMatches = countSubstringMatches(text, sctx.AnchorPhrases)
	anchorDelta := float64(info.AnchorMatches) * cfg.AnchorPhraseWeight
	if cfg.AnchorCap > 0 && anchorDelta > cfg.AnchorCap {
		anchorDelta = cfg.AnchorCap
	}

	info.SafeLaneMatches = countSubstringMatches(text, sctx.SafeLaneTerms)
	var safeLaneDelta float64
	switch {
	case info.SafeLaneMatches >= 3:
		safeLaneDelta = cfg.SafeLane3OrMore
	case info.SafeLaneMatches == 2:
		safeLaneDelta = cfg.SafeLane2
	case info.SafeLaneMatches == 1:
		safeLaneDelta = cfg.SafeLane1
	}

	info.SubspecialtyBoost = subspecialtyBoost(p.Subspecialties, sctx.LikelySubspecialties, cfg)

	info.NegativeMatches = countSubstringMatches(text, sctx.NegativeTerms)
	var negativeDelta float64
	switch {
	case info.NegativeMatches >= 4:
		negativeDelta = cfg.Negative4
	case info.NegativeMatches >= 2:
		negativeDelta = cfg.Negative2
	case info.NegativeMatches == 1:
		negativeDelta = cfg.Negative1
	}

	info.Delta = intentDelta + anchorDelta + safeLaneDelta + negativeDelta + info.SubspecialtyBoost
	return info
}

// countSubstringMatches counts which of the lowercased terms occur in
// text. Each term counts once however often it appears.
func countSubstringMatches(text string, terms []string) int {
	if text == "" || len(terms) == 0 {
		return 0
	}
	matches := 0
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" && strings.Contains(text, term) {
			matches++
		}
	}
	return matches
}

// subspecialtyBoost sums confidence-weighted contributions for every
// likely subspecialty matching one of the practitioner's subspecialties
// by bidirectional case-insensitive substring, capped at the config cap.
func subspecialtyBoost(subspecialties []string, likely []Subspecialty, cfg Config) float64 {
	if len(subspecialties) == 0 || len(likely) == 0 {
		return 0
	}

	var boost float64
	for _, l := range likely {
		name := strings.ToLower(strings.TrimSpace(l.Name))
		if name == "" {
			continue
		}
		for _, s := range subspecialties {
			sub := strings.ToLower(strings.TrimSpace(s))
			if sub == "" {
				continue
			}
			if strings.Contains(sub, name) || strings.Contains(name, sub) {
				boost += l.Confidence * cfg.SubspecialtyFactor
				break
			}
		}
	}

	if boost > cfg.SubspecialtyCap {
		boost = cfg.SubspecialtyCap
	}
	return boost
}
