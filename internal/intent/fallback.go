package intent

import "github.com/caresearch/medrank/internal/rank"

// Conservative defaults used when a classification task fails. They bias
// the pipeline toward broad retrieval: symptom-only specificity with low
// confidence keeps the query ambiguous, which empties negative terms and
// lets rescoring stay gentle.
const (
	fallbackGoal        = rank.GoalDiagnosticWorkup
	fallbackSpecificity = rank.SpecificitySymptomOnly
	fallbackConfidence  = 0.3
)

// fallbackInsights returns an empty, well-formed insights summary.
func fallbackInsights() Insights {
	return Insights{
		Symptoms:    []string{},
		Preferences: []string{},
		Urgency:     "routine",
	}
}

// fallbackGeneral returns the conservative general classification.
func fallbackGeneral() generalResult {
	return generalResult{
		Goal:                 fallbackGoal,
		Specificity:          fallbackSpecificity,
		Confidence:           fallbackConfidence,
		ExpansionTerms:       []string{},
		NegativeTerms:        []string{},
		AnchorPhrases:        []string{},
		SafeLaneTerms:        []string{},
		LikelySubspecialties: []rank.Subspecialty{},
	}
}

// fallbackClinical returns the conservative clinical classification.
func fallbackClinical() clinicalResult {
	return clinicalResult{
		PrimaryIntent:        ClinicalIntentSymptomAssessment,
		ExpansionTerms:       []string{},
		NegativeTerms:        []string{},
		LikelySubspecialties: []rank.Subspecialty{},
	}
}
