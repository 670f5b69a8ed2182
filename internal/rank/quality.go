package rank

import (
	"strings"

	"github.com/caresearch/medrank/internal/canon"
	"github.com/caresearch/medrank/internal/corpus"
)

// qualityBoost computes the multiplicative quality factor for one
// candidate: rating, review volume, experience, verification, and the
// relevant-admissions signal derived from the meaningful query terms.
func qualityBoost(p *corpus.Practitioner, meaningfulTerms []string) float64 {
	boost := 1.0

	switch {
	case p.RatingValue >= 4.8:
		boost *= 1.3
	case p.RatingValue >= 4.5:
		boost *= 1.2
	case p.RatingValue >= 4.0:
		boost *= 1.1
	}

	switch {
	case p.ReviewCount >= 100:
		boost *= 1.2
	case p.ReviewCount >= 50:
		boost *= 1.15
	case p.ReviewCount >= 20:
		boost *= 1.1
	}

	switch {
	case p.YearsExperience >= 20:
		boost *= 1.15
	case p.YearsExperience >= 10:
		boost *= 1.1
	}

	if p.Verified {
		boost *= 1.1
	}

	return boost * admissionsBoost(p, meaningfulTerms)
}

// admissionsBoost rewards procedure volume on procedures relevant to the
// query. A practitioner whose procedures are all irrelevant to the query
// is slightly demoted rather than rewarded for raw volume.
func admissionsBoost(p *corpus.Practitioner, meaningfulTerms []string) float64 {
	if len(p.ProcedureGroups) == 0 {
		return 1.0
	}

	volume := 0
	for _, g := range p.ProcedureGroups {
		if procedureRelevant(g.Name, meaningfulTerms) {
			volume += g.AdmissionCount
		}
	}

	switch {
	case volume >= 150:
		return 2.5
	case volume >= 100:
		return 2.2
	case volume >= 75:
		return 2.0
	case volume >= 50:
		return 1.7
	case volume >= 30:
		return 1.5
	case volume >= 20:
		return 1.4
	case volume >= 10:
		return 1.3
	case volume >= 5:
		return 1.2
	case volume >= 1:
		return 1.1
	default:
		return 0.85
	}
}

// procedureRelevant reports whether a procedure name contains any
// meaningful query term.
func procedureRelevant(name string, meaningfulTerms []string) bool {
	if name == "" || len(meaningfulTerms) == 0 {
		return false
	}
	lower := strings.ToLower(name)
	for _, term := range meaningfulTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// meaningfulQueryTerms filters tokenized query terms through the generic
// stopword set.
func meaningfulQueryTerms(queryTerms []string) []string {
	return canon.MeaningfulTerms(queryTerms)
}
