package rank

import (
	"sort"
	"strings"

	"github.com/caresearch/medrank/internal/corpus"
)

// Intent goals produced by query understanding.
const (
	GoalDiagnosticWorkup      = "diagnostic_workup"
	GoalProcedureIntervention = "procedure_intervention"
	GoalOngoingManagement     = "ongoing_management"
	GoalSecondOpinion         = "second_opinion"
)

// Query specificity levels.
const (
	SpecificitySymptomOnly        = "symptom_only"
	SpecificityConfirmedDiagnosis = "confirmed_diagnosis"
	SpecificityNamedProcedure     = "named_procedure"
)

// IntentData classifies what the patient is trying to achieve.
type IntentData struct {
	Goal             string  `json:"goal"`
	Specificity      string  `json:"specificity"`
	Confidence       float64 `json:"confidence"`
	IsQueryAmbiguous bool    `json:"isQueryAmbiguous"`
}

// Subspecialty pairs a likely subspecialty name with the classifier's
// confidence in it.
type Subspecialty struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// SessionContext is the structured intent for one request, produced by
// query understanding and consumed by ranking. Immutable once built.
type SessionContext struct {
	QPatient             string         `json:"q_patient"`
	QPatientOriginal     string         `json:"q_patient_original,omitempty"`
	IntentTerms          []string       `json:"intent_terms"`
	AnchorPhrases        []string       `json:"anchor_phrases"`
	SafeLaneTerms        []string       `json:"safe_lane_terms"`
	LikelySubspecialties []Subspecialty `json:"likely_subspecialties"`
	NegativeTerms        []string       `json:"negative_terms"`
	Intent               IntentData     `json:"intentData"`
	IdealProfile         string         `json:"idealProfile,omitempty"`
}

// HasRescoringSignals reports whether Stage B has anything to work with.
// Safe-lane terms and subspecialties alone do not count; without intent
// terms, anchors, or negatives Stage B passes Stage A output through.
func (s *SessionContext) HasRescoringSignals() bool {
	if s == nil {
		return false
	}
	return len(s.IntentTerms) > 0 || len(s.AnchorPhrases) > 0 || len(s.NegativeTerms) > 0
}

// RescoringInfo records the Stage B components for one candidate.
type RescoringInfo struct {
	IntentMatches     int     `json:"intent_matches"`
	AnchorMatches     int     `json:"anchor_matches"`
	NegativeMatches   int     `json:"negative_matches"`
	SafeLaneMatches   int     `json:"safe_lane_matches"`
	SubspecialtyBoost float64 `json:"subspecialty_boost"`
	Delta             float64 `json:"delta"`
}

// ScoredResult is one ranked candidate with every scoring component kept
// as a first-class field so diagnostics can be generated from data rather
// than from in-flow logging.
type ScoredResult struct {
	Practitioner *corpus.Practitioner `json:"practitioner"`

	// Rank is 1-indexed and dense over the returned list.
	Rank int `json:"rank"`

	BM25Score          float64       `json:"bm25_score"`
	QualityBoost       float64       `json:"quality_boost"`
	ExactMatchBonus    float64       `json:"exact_match_bonus"`
	ProximityBoost     float64       `json:"proximity_boost"`
	SemanticScore      float64       `json:"semantic_score"`
	BaseBM25Score      float64       `json:"base_bm25_score"`
	NormalizedBM25     float64       `json:"normalized_bm25"`
	NormalizedSemantic float64       `json:"normalized_semantic"`
	Rescoring          RescoringInfo `json:"rescoring_info"`

	// Score is the current final score: the Stage A composite until
	// rescoring runs, then the Stage B result.
	Score float64 `json:"score"`

	// searchText is the lowercased weighted blob Stage A scored against,
	// reused by Stage B substring matching.
	searchText string
}

// SemanticOptions supplies precomputed per-practitioner semantic scores
// for one request. Scores are clamped to [0,1]; missing entries score 0.
type SemanticOptions struct {
	Weight float64            `json:"weight"`
	ByID   map[string]float64 `json:"by_id,omitempty"`
	ByName map[string]float64 `json:"by_name,omitempty"`
}

// hasScores reports whether any semantic scores were supplied at all.
func (s *SemanticOptions) hasScores() bool {
	return s != nil && (len(s.ByID) > 0 || len(s.ByName) > 0)
}

// scoreFor resolves the semantic score for p: by id first, then exact
// name, then a fuzzy fallback on last-name containment. Name keys are
// walked in sorted order so the fallback is deterministic.
func (s *SemanticOptions) scoreFor(p *corpus.Practitioner) float64 {
	if s == nil {
		return 0
	}
	if score, ok := s.ByID[p.ID]; ok {
		return clamp01(score)
	}
	if len(s.ByName) == 0 {
		return 0
	}

	nameLower := strings.ToLower(p.Name)
	if score, ok := s.ByName[p.Name]; ok {
		return clamp01(score)
	}
	keys := make([]string, 0, len(s.ByName))
	for k := range s.ByName {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if strings.EqualFold(k, p.Name) {
			return clamp01(s.ByName[k])
		}
	}

	last := lastName(nameLower)
	if last == "" {
		return 0
	}
	for _, k := range keys {
		keyLower := strings.ToLower(k)
		if strings.Contains(keyLower, last) || strings.Contains(nameLower, lastName(keyLower)) {
			return clamp01(s.ByName[k])
		}
	}
	return 0
}

// lastName returns the final whitespace-separated token, or "" when the
// token is too short to distinguish anyone.
func lastName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	last := fields[len(fields)-1]
	if len(last) < 3 {
		return ""
	}
	return last
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
