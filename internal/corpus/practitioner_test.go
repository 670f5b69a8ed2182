package corpus

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPractitioner_JSONFieldNames(t *testing.T) {
	// Given: a record using the upstream feed's field names
	raw := `{
		"id": "p-001",
		"name": "Dr Jane Carter",
		"title": "Ms",
		"specialty": "Cardiology",
		"specialty_description": "Heart and vascular medicine",
		"clinical_expertise": "Procedures: angioplasty",
		"address_locality": "Leeds",
		"postal_code": "LS1 4AP",
		"procedure_groups": [{"name": "Coronary angioplasty", "admission_count": 42}],
		"insuranceProviders": [{"canonical_name": "Bupa"}],
		"nhs_posts": ["Leeds General Infirmary"],
		"rating_value": 4.7,
		"review_count": 120,
		"years_experience": 15,
		"verified": true
	}`

	// When: decoding it
	var p Practitioner
	require.NoError(t, json.Unmarshal([]byte(raw), &p))

	// Then: every field lands where the scorer expects it
	assert.Equal(t, "p-001", p.ID)
	assert.Equal(t, "Dr Jane Carter", p.Name)
	assert.Equal(t, "Heart and vascular medicine", p.SpecialtyDescription)
	assert.Equal(t, "LS1 4AP", p.PostalCode)
	require.Len(t, p.ProcedureGroups, 1)
	assert.Equal(t, 42, p.ProcedureGroups[0].AdmissionCount)
	require.Len(t, p.InsuranceProviders, 1)
	assert.Equal(t, "Bupa", p.InsuranceProviders[0].CanonicalName)
	assert.Equal(t, 4.7, p.RatingValue)
	assert.True(t, p.Verified)
}

func TestPractitioner_HasNHS(t *testing.T) {
	tests := []struct {
		name string
		p    Practitioner
		want bool
	}{
		{"base only", Practitioner{NHSBase: "St Thomas' Hospital"}, true},
		{"posts only", Practitioner{NHSPosts: "Guy's Hospital"}, true},
		{"both", Practitioner{NHSBase: "A", NHSPosts: "B"}, true},
		{"neither", Practitioner{}, false},
		{"empty posts slice", Practitioner{NHSPosts: ""}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.HasNHS())
		})
	}
}

func TestPractitioner_GenderNormalized(t *testing.T) {
	tests := []struct {
		name   string
		gender string
		want   string
	}{
		{"lowercase male", "male", "male"},
		{"capitalized female", "Female", "female"},
		{"uppercase", "MALE", "male"},
		{"m shorthand", "M", "male"},
		{"f shorthand", "f", "female"},
		{"empty", "", ""},
		{"unrecognized", "prefer not to say", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Practitioner{Gender: tt.gender}
			assert.Equal(t, tt.want, p.GenderNormalized())
		})
	}
}

func TestPractitioner_WithDistance(t *testing.T) {
	// Given: a shared record with no distance annotation
	orig := &Practitioner{ID: "p-1", Name: "Dr A"}

	// When: annotating with a distance
	annotated := orig.WithDistance(3.2)

	// Then: the copy carries the distance and the original is untouched
	require.NotNil(t, annotated.Distance)
	assert.Equal(t, 3.2, *annotated.Distance)
	assert.Nil(t, orig.Distance)
	assert.NotSame(t, orig, annotated)
	assert.Equal(t, orig.ID, annotated.ID)
}

func TestPractitioner_Validate(t *testing.T) {
	// Given/When/Then: id and name are required, everything else optional
	assert.NoError(t, (&Practitioner{ID: "x", Name: "Dr X"}).Validate())
	assert.ErrorIs(t, (&Practitioner{Name: "Dr X"}).Validate(), errMissingID)
	assert.ErrorIs(t, (&Practitioner{ID: "x"}).Validate(), errMissingName)
}
