package rank

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Explain renders a one-line score breakdown for a result. Stage B
// components are included only when rescoring actually ran.
func Explain(r *ScoredResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s score=%.4f bm25=%.3f quality=x%.2f proximity=x%.2f exact=+%.1f",
		r.Rank, r.Practitioner.Name, r.Score,
		r.BM25Score, r.QualityBoost, r.ProximityBoost, r.ExactMatchBonus)
	if r.SemanticScore > 0 {
		fmt.Fprintf(&b, " semantic=%.3f", r.SemanticScore)
	}
	if r.Rescoring != (RescoringInfo{}) {
		fmt.Fprintf(&b, " delta=%+.2f (intent=%d anchor=%d safelane=%d neg=%d subspec=%.2f)",
			r.Rescoring.Delta, r.Rescoring.IntentMatches, r.Rescoring.AnchorMatches,
			r.Rescoring.SafeLaneMatches, r.Rescoring.NegativeMatches,
			r.Rescoring.SubspecialtyBoost)
	}
	return b.String()
}

// LogScores emits one debug record per result with every scoring
// component, so rankings can be audited from logs without re-running.
func LogScores(logger *slog.Logger, results []*ScoredResult) {
	if logger == nil || !logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	for _, r := range results {
		logger.Debug("score breakdown",
			slog.Int("rank", r.Rank),
			slog.String("practitioner_id", r.Practitioner.ID),
			slog.Float64("score", r.Score),
			slog.Float64("bm25", r.BM25Score),
			slog.Float64("quality_boost", r.QualityBoost),
			slog.Float64("proximity_boost", r.ProximityBoost),
			slog.Float64("exact_bonus", r.ExactMatchBonus),
			slog.Float64("semantic", r.SemanticScore),
			slog.Float64("normalized_bm25", r.NormalizedBM25),
			slog.Float64("normalized_semantic", r.NormalizedSemantic),
			slog.Int("intent_matches", r.Rescoring.IntentMatches),
			slog.Int("anchor_matches", r.Rescoring.AnchorMatches),
			slog.Int("negative_matches", r.Rescoring.NegativeMatches),
			slog.Int("safe_lane_matches", r.Rescoring.SafeLaneMatches),
			slog.Float64("subspecialty_boost", r.Rescoring.SubspecialtyBoost),
			slog.Float64("delta", r.Rescoring.Delta))
	}
}
