package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caresearch/medrank/internal/corpus"
)

func TestKeywordOverlap_RanksByDistinctTokenCount(t *testing.T) {
	candidates := []*corpus.Practitioner{
		{ID: "one-hit", Specialty: "Cardiology"},
		{ID: "three-hits", Specialty: "Cardiology",
			ClinicalExpertise: "catheter ablation for svt"},
		{ID: "two-hits", Subspecialties: []string{"Electrophysiology"},
			ProcedureGroups: []corpus.ProcedureGroup{{Name: "Catheter ablation", AdmissionCount: 50}}},
		{ID: "no-hits", Specialty: "Dermatology"},
	}

	got := keywordOverlap(candidates, "svt catheter ablation cardiology", 10)

	require.Len(t, got, 3)
	assert.Equal(t, "three-hits", got[0].ID)
	assert.Equal(t, "two-hits", got[1].ID)
	assert.Equal(t, "one-hit", got[2].ID)
}

func TestKeywordOverlap_TiesKeepCorpusOrder(t *testing.T) {
	candidates := []*corpus.Practitioner{
		{ID: "a", Specialty: "Cardiology"},
		{ID: "b", Specialty: "Cardiology"},
		{ID: "c", Specialty: "Cardiology"},
	}

	got := keywordOverlap(candidates, "cardiology", 2)

	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestKeywordOverlap_CountsDistinctTokensOnly(t *testing.T) {
	// "ablation ablation ablation" is still one distinct token; the
	// repeated-query candidate must not outrank the broader match.
	candidates := []*corpus.Practitioner{
		{ID: "narrow", ClinicalExpertise: "ablation"},
		{ID: "broad", ClinicalExpertise: "ablation svt"},
	}

	got := keywordOverlap(candidates, "ablation ablation ablation svt", 2)

	require.Len(t, got, 2)
	assert.Equal(t, "broad", got[0].ID)
}

func TestKeywordOverlap_EmptyQuery(t *testing.T) {
	candidates := []*corpus.Practitioner{{ID: "a", Specialty: "Cardiology"}}

	assert.Nil(t, keywordOverlap(candidates, "", 5))
	// Tokens under three characters carry no signal.
	assert.Nil(t, keywordOverlap(candidates, "a b", 5))
}

func TestTextBag_CoversProfileFields(t *testing.T) {
	p := &corpus.Practitioner{
		Name:                 "Dr Asha Narayan",
		Specialty:            "Cardiology",
		SpecialtyDescription: "Heart specialist",
		Subspecialties:       []string{"Electrophysiology"},
		ProcedureGroups:      []corpus.ProcedureGroup{{Name: "Catheter ablation"}},
		ClinicalExpertise:    "Procedure: Pacemaker insertion",
		Description:          "Arrhythmia clinics",
	}

	bag := textBag(p)

	for _, tok := range []string{"narayan", "cardiology", "heart", "electrophysiology", "catheter", "pacemaker", "arrhythmia"} {
		assert.True(t, bag[tok], "bag should contain %q", tok)
	}
}
