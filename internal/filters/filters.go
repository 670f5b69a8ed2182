// Package filters implements the ordered hard-filter pipeline that narrows
// the corpus to eligible candidates before ranking. Filters only remove
// candidates: there is no relaxation and no fallback to the full set, and
// an empty survivor set short-circuits the remaining steps.
package filters

import (
	"strings"

	"github.com/caresearch/medrank/internal/corpus"
)

// Criteria are the request-side hard constraints. Zero-valued fields are
// not applied. Blacklisted records are always dropped.
type Criteria struct {
	NHSOnly   bool
	Insurance string
	Gender    string
	Specialty string
	Location  *LocationQuery
	AgeGroup  string
	Languages []string
}

// StepCount records how one executed filter step narrowed the candidate
// set, for response diagnostics.
type StepCount struct {
	Step string `json:"step"`
	In   int    `json:"in"`
	Out  int    `json:"out"`
}

// LocationFilter narrows candidates to a requested location and may
// annotate survivors with a distance in miles.
type LocationFilter interface {
	Filter(candidates []*corpus.Practitioner, q LocationQuery) []*corpus.Practitioner
}

// Pipeline applies the hard filters in their fixed order: blacklist, NHS,
// insurance, gender, manual specialty, location, age group, languages.
type Pipeline struct {
	location LocationFilter
}

// NewPipeline returns a pipeline using loc for the location step. A nil
// loc falls back to the built-in outcode locator.
func NewPipeline(loc LocationFilter) *Pipeline {
	if loc == nil {
		loc = NewLocator()
	}
	return &Pipeline{location: loc}
}

// Apply runs the pipeline over candidates and returns the survivors plus
// per-step counts for every step that executed. The input slice is never
// mutated. As soon as a step leaves no survivors the pipeline stops and
// returns the empty set.
func (pl *Pipeline) Apply(candidates []*corpus.Practitioner, c Criteria) ([]*corpus.Practitioner, []StepCount) {
	counts := make([]StepCount, 0, 8)
	current := candidates

	step := func(name string, keep func(*corpus.Practitioner) bool) bool {
		in := len(current)
		next := make([]*corpus.Practitioner, 0, in)
		for _, p := range current {
			if keep(p) {
				next = append(next, p)
			}
		}
		current = next
		counts = append(counts, StepCount{Step: name, In: in, Out: len(next)})
		return len(next) > 0
	}

	if !step("blacklist", func(p *corpus.Practitioner) bool { return !p.Blacklisted }) {
		return current, counts
	}

	if c.NHSOnly {
		if !step("nhs", (*corpus.Practitioner).HasNHS) {
			return current, counts
		}
	}

	if strings.TrimSpace(c.Insurance) != "" {
		if !step("insurance", func(p *corpus.Practitioner) bool { return MatchesInsurer(p, c.Insurance) }) {
			return current, counts
		}
	}

	if wantedGender(c.Gender) != "" {
		if !step("gender", func(p *corpus.Practitioner) bool { return MatchesGender(p, c.Gender) }) {
			return current, counts
		}
	}

	if strings.TrimSpace(c.Specialty) != "" {
		if !step("specialty", func(p *corpus.Practitioner) bool { return MatchesSpecialty(p, c.Specialty) }) {
			return current, counts
		}
	}

	if c.Location != nil && !c.Location.IsZero() {
		in := len(current)
		current = pl.location.Filter(current, *c.Location)
		counts = append(counts, StepCount{Step: "location", In: in, Out: len(current)})
		if len(current) == 0 {
			return current, counts
		}
	}

	if strings.TrimSpace(c.AgeGroup) != "" {
		if !step("age_group", func(p *corpus.Practitioner) bool { return MatchesAgeGroup(p, c.AgeGroup) }) {
			return current, counts
		}
	}

	if len(c.Languages) > 0 {
		if !step("languages", func(p *corpus.Practitioner) bool { return MatchesLanguages(p, c.Languages) }) {
			return current, counts
		}
	}

	return current, counts
}
