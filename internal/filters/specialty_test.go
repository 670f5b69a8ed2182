package filters

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/caresearch/medrank/internal/corpus"
)

func TestMatchesSpecialty(t *testing.T) {
	tests := []struct {
		name      string
		p         corpus.Practitioner
		requested string
		want      bool
	}{
		{
			"specialty exact",
			corpus.Practitioner{Specialty: "Cardiology"},
			"cardiology",
			true,
		},
		{
			"subspecialty substring",
			corpus.Practitioner{Subspecialties: []string{"Interventional Cardiology"}},
			"interventional",
			true,
		},
		{
			"clinical expertise text",
			corpus.Practitioner{ClinicalExpertise: "Procedures: knee arthroscopy; ACL reconstruction"},
			"Knee Arthroscopy",
			true,
		},
		{
			"title match",
			corpus.Practitioner{Title: "Consultant Dermatologist"},
			"dermatologist",
			true,
		},
		{
			"punctuation normalized on both sides",
			corpus.Practitioner{Specialty: "Ear Nose Throat"},
			"ear, nose & throat",
			true,
		},
		{
			"broad request contains narrow field",
			corpus.Practitioner{Specialty: "Cardiology"},
			"paediatric cardiology",
			true,
		},
		{
			"unrelated specialty",
			corpus.Practitioner{Specialty: "Cardiology"},
			"gastroenterology",
			false,
		},
		{
			"empty request matches",
			corpus.Practitioner{Specialty: "Cardiology"},
			"  ",
			true,
		},
		{
			"no specialty fields",
			corpus.Practitioner{},
			"cardiology",
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesSpecialty(&tt.p, tt.requested))
		})
	}
}

func TestNormalizeSpecialty(t *testing.T) {
	assert.Equal(t, "ear nose throat", normalizeSpecialty("Ear, Nose & Throat"))
	assert.Equal(t, "type 2 diabetes", normalizeSpecialty("  Type-2 Diabetes!  "))
	assert.Equal(t, "", normalizeSpecialty("&&&"))
}
