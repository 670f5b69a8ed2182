package filters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caresearch/medrank/internal/corpus"
)

func ids(ps []*corpus.Practitioner) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.ID)
	}
	return out
}

func TestPipeline_DropsBlacklistedAlways(t *testing.T) {
	// Given: a blacklisted and a clean record with no other criteria
	pipeline := NewPipeline(nil)
	candidates := []*corpus.Practitioner{
		{ID: "bad", Name: "Dr Bad", Blacklisted: true},
		{ID: "ok", Name: "Dr Ok"},
	}

	// When: applying an empty criteria set
	survivors, counts := pipeline.Apply(candidates, Criteria{})

	// Then: only the blacklist step ran and removed the flagged record
	assert.Equal(t, []string{"ok"}, ids(survivors))
	require.Len(t, counts, 1)
	assert.Equal(t, StepCount{Step: "blacklist", In: 2, Out: 1}, counts[0])
}

func TestPipeline_InsuranceCascade(t *testing.T) {
	// Given: one Bupa and one AXA practitioner and a Bupa request under an
	// alias name
	pipeline := NewPipeline(nil)
	candidates := []*corpus.Practitioner{
		{ID: "bupa", Name: "Dr A", InsuranceProviders: []corpus.InsuranceProvider{{CanonicalName: "Bupa"}}},
		{ID: "axa", Name: "Dr B", InsuranceProviders: []corpus.InsuranceProvider{{CanonicalName: "AXA Health"}}},
	}

	// When: filtering on the alias "Bupa Health"
	survivors, _ := pipeline.Apply(candidates, Criteria{Insurance: "Bupa Health"})

	// Then: the AXA practitioner is gone before any ranking happens
	assert.Equal(t, []string{"bupa"}, ids(survivors))
}

func TestPipeline_ShortCircuitOnEmpty(t *testing.T) {
	// Given: criteria where the NHS step removes everyone
	pipeline := NewPipeline(nil)
	candidates := []*corpus.Practitioner{
		{ID: "a", Name: "Dr A", Specialty: "Cardiology"},
		{ID: "b", Name: "Dr B", Specialty: "Cardiology"},
	}

	// When: applying NHS-only plus a later specialty criterion
	survivors, counts := pipeline.Apply(candidates, Criteria{NHSOnly: true, Specialty: "Cardiology"})

	// Then: the pipeline stops at the NHS step and specialty never runs
	assert.Empty(t, survivors)
	require.Len(t, counts, 2)
	assert.Equal(t, "blacklist", counts[0].Step)
	assert.Equal(t, StepCount{Step: "nhs", In: 2, Out: 0}, counts[1])
}

func TestPipeline_FullOrderAndCounts(t *testing.T) {
	// Given: four candidates where exactly one satisfies every criterion
	pipeline := NewPipeline(nil)
	fit := &corpus.Practitioner{
		ID: "fit", Name: "Dr Fit",
		NHSBase:            "Guy's and St Thomas'",
		InsuranceProviders: []corpus.InsuranceProvider{{CanonicalName: "Bupa"}},
		Gender:             "female",
		Specialty:          "Cardiology",
		AddressLocality:    "London",
		PatientAgeGroups:   []string{"Adults 18+"},
		Languages:          []string{"English", "French"},
	}
	noNHS := &corpus.Practitioner{
		ID: "no-nhs", Name: "Dr Private",
		InsuranceProviders: []corpus.InsuranceProvider{{CanonicalName: "Bupa"}},
		Gender:             "female",
		Specialty:          "Cardiology",
		AddressLocality:    "London",
	}
	male := &corpus.Practitioner{
		ID: "male", Name: "Dr Male",
		NHSBase:            "St Thomas'",
		InsuranceProviders: []corpus.InsuranceProvider{{CanonicalName: "Bupa"}},
		Gender:             "male",
		Specialty:          "Cardiology",
		AddressLocality:    "London",
	}
	derm := &corpus.Practitioner{
		ID: "derm", Name: "Dr Skin",
		NHSBase:            "King's",
		InsuranceProviders: []corpus.InsuranceProvider{{CanonicalName: "Bupa"}},
		Gender:             "female",
		Specialty:          "Dermatology",
		AddressLocality:    "London",
	}

	// When: applying criteria touching every step
	survivors, counts := pipeline.Apply(
		[]*corpus.Practitioner{fit, noNHS, male, derm},
		Criteria{
			NHSOnly:   true,
			Insurance: "Bupa",
			Gender:    "female",
			Specialty: "cardiology",
			Location:  &LocationQuery{City: "London"},
			AgeGroup:  "adult",
			Languages: []string{"english"},
		})

	// Then: steps execute in order and each count is recorded
	assert.Equal(t, []string{"fit"}, ids(survivors))
	want := []StepCount{
		{Step: "blacklist", In: 4, Out: 4},
		{Step: "nhs", In: 4, Out: 3},
		{Step: "insurance", In: 3, Out: 3},
		{Step: "gender", In: 3, Out: 2},
		{Step: "specialty", In: 2, Out: 1},
		{Step: "location", In: 1, Out: 1},
		{Step: "age_group", In: 1, Out: 1},
		{Step: "languages", In: 1, Out: 1},
	}
	assert.Equal(t, want, counts)
}

func TestPipeline_FilterOrderDoesNotChangeSurvivors(t *testing.T) {
	// Given: a candidate set where no predicate empties the pool
	candidates := []*corpus.Practitioner{
		{ID: "a", Name: "Dr A", Gender: "female", Specialty: "Cardiology",
			InsuranceProviders: []corpus.InsuranceProvider{{CanonicalName: "Bupa"}},
			PatientAgeGroups:   []string{"Adults"}},
		{ID: "b", Name: "Dr B", Gender: "male", Specialty: "Cardiology",
			InsuranceProviders: []corpus.InsuranceProvider{{CanonicalName: "Bupa"}},
			PatientAgeGroups:   []string{"Adults"}},
		{ID: "c", Name: "Dr C", Gender: "female", Specialty: "Dermatology",
			InsuranceProviders: []corpus.InsuranceProvider{{CanonicalName: "AXA Health"}},
			PatientAgeGroups:   []string{"Adults"}},
		{ID: "d", Name: "Dr D", Gender: "female", Specialty: "Cardiology",
			InsuranceProviders: []corpus.InsuranceProvider{{CanonicalName: "Bupa"}},
			PatientAgeGroups:   []string{"Paediatric"}},
	}
	preds := []func(*corpus.Practitioner) bool{
		func(p *corpus.Practitioner) bool { return MatchesInsurer(p, "Bupa") },
		func(p *corpus.Practitioner) bool { return MatchesGender(p, "female") },
		func(p *corpus.Practitioner) bool { return MatchesSpecialty(p, "cardiology") },
		func(p *corpus.Practitioner) bool { return MatchesAgeGroup(p, "adult") },
	}
	apply := func(order []int) []string {
		current := candidates
		for _, i := range order {
			next := make([]*corpus.Practitioner, 0, len(current))
			for _, p := range current {
				if preds[i](p) {
					next = append(next, p)
				}
			}
			current = next
		}
		return ids(current)
	}

	// When: composing the same predicates forwards and backwards
	forward := apply([]int{0, 1, 2, 3})
	backward := apply([]int{3, 2, 1, 0})

	// Then: the surviving set is identical
	assert.ElementsMatch(t, forward, backward)
	assert.Equal(t, []string{"a"}, forward)
}
