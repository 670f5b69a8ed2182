package intent

import (
	"sort"
	"strings"

	"github.com/caresearch/medrank/internal/rank"
)

// Merge caps.
const (
	maxIntentTerms    = 20
	maxAnchorPhrases  = 3
	maxSafeLaneTerms  = 4
	maxSubspecialties = 3

	// subspecialtyMinConfidence drops low-confidence subspecialty guesses
	// before dedupe.
	subspecialtyMinConfidence = 0.4

	// ambiguityConfidenceFloor is the confidence a query needs, together
	// with a specific enough specificity, to count as unambiguous.
	ambiguityConfidenceFloor = 0.75
)

// merge combines the three task results into a SessionContext. It is a
// pure function: deterministic, order-preserving within each source, and
// independent of which tasks fell back.
func merge(qPatient, qOriginal string, general generalResult, clinical clinicalResult) *rank.SessionContext {
	ambiguous := isAmbiguous(general.Confidence, general.Specificity)

	sctx := &rank.SessionContext{
		QPatient:      qPatient,
		IntentTerms:   dedupeOrdered(clinical.ExpansionTerms, general.ExpansionTerms, maxIntentTerms),
		AnchorPhrases: capTerms(general.AnchorPhrases, maxAnchorPhrases),
		SafeLaneTerms: safeLaneTerms(general),
		NegativeTerms: []string{},
		Intent: rank.IntentData{
			Goal:             general.Goal,
			Specificity:      general.Specificity,
			Confidence:       general.Confidence,
			IsQueryAmbiguous: ambiguous,
		},
		LikelySubspecialties: mergeSubspecialties(general.LikelySubspecialties, clinical.LikelySubspecialties),
	}
	if qOriginal != "" && qOriginal != qPatient {
		sctx.QPatientOriginal = qOriginal
	}

	// Negative penalties only apply when the classifier is sure what the
	// patient wants; an ambiguous query penalizes nobody.
	if !ambiguous {
		sctx.NegativeTerms = dedupeOrdered(clinical.NegativeTerms, general.NegativeTerms, 0)
	}

	return sctx
}

// isAmbiguous implements the ambiguity rule: a query is unambiguous only
// when confidence clears the floor and the specificity names a procedure
// or a confirmed diagnosis.
func isAmbiguous(confidence float64, specificity string) bool {
	specific := specificity == rank.SpecificityNamedProcedure ||
		specificity == rank.SpecificityConfirmedDiagnosis
	return !(confidence >= ambiguityConfidenceFloor && specific)
}

// safeLaneTerms takes the classifier's safe-lane terms, falling back to
// the anchor phrases when none were supplied, capped at four.
func safeLaneTerms(general generalResult) []string {
	terms := general.SafeLaneTerms
	if len(terms) == 0 {
		terms = general.AnchorPhrases
	}
	return capTerms(terms, maxSafeLaneTerms)
}

// dedupeOrdered concatenates first-then-second, dropping case-insensitive
// duplicates while preserving order. A limit of zero means uncapped.
func dedupeOrdered(first, second []string, limit int) []string {
	out := make([]string, 0, len(first)+len(second))
	seen := make(map[string]struct{}, len(first)+len(second))
	add := func(terms []string) {
		for _, t := range terms {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			key := strings.ToLower(t)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, t)
			if limit > 0 && len(out) == limit {
				return
			}
		}
	}
	add(first)
	if limit == 0 || len(out) < limit {
		add(second)
	}
	return out
}

// capTerms copies terms up to limit.
func capTerms(terms []string, limit int) []string {
	if len(terms) > limit {
		terms = terms[:limit]
	}
	out := make([]string, len(terms))
	copy(out, terms)
	return out
}

// mergeSubspecialties keeps entries at or above the confidence floor,
// dedupes by case-insensitive name keeping the maximum confidence, sorts
// by confidence descending (stable, so first-seen order breaks ties), and
// caps at three.
func mergeSubspecialties(lists ...[]rank.Subspecialty) []rank.Subspecialty {
	best := make(map[string]float64)
	order := make([]string, 0, 8)
	display := make(map[string]string)

	for _, list := range lists {
		for _, s := range list {
			name := strings.TrimSpace(s.Name)
			if name == "" || s.Confidence < subspecialtyMinConfidence {
				continue
			}
			key := strings.ToLower(name)
			if _, ok := best[key]; !ok {
				order = append(order, key)
				display[key] = name
			}
			if s.Confidence > best[key] {
				best[key] = s.Confidence
			}
		}
	}

	merged := make([]rank.Subspecialty, 0, len(order))
	for _, key := range order {
		merged = append(merged, rank.Subspecialty{Name: display[key], Confidence: best[key]})
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Confidence > merged[j].Confidence
	})
	if len(merged) > maxSubspecialties {
		merged = merged[:maxSubspecialties]
	}
	return merged
}
