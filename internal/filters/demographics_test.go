package filters

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/caresearch/medrank/internal/corpus"
)

func TestMatchesAgeGroup(t *testing.T) {
	tests := []struct {
		name      string
		groups    []string
		requested string
		want      bool
	}{
		{"substring match", []string{"Adults 18+"}, "adult", true},
		{"british spelling in corpus", []string{"Paediatric (0-16)"}, "pediatric", true},
		{"american spelling in corpus", []string{"Pediatric"}, "paediatric", true},
		{"no overlap", []string{"Adults 18+"}, "pediatric", false},
		{"no age data", nil, "adult", false},
		{"empty request matches", []string{"Adults 18+"}, " ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &corpus.Practitioner{PatientAgeGroups: tt.groups}
			assert.Equal(t, tt.want, MatchesAgeGroup(p, tt.requested))
		})
	}
}

func TestMatchesLanguages(t *testing.T) {
	p := &corpus.Practitioner{Languages: []string{"English", "Polish"}}

	// Every requested language must be covered
	assert.True(t, MatchesLanguages(p, []string{"polish"}))
	assert.True(t, MatchesLanguages(p, []string{"english", "polish"}))
	assert.False(t, MatchesLanguages(p, []string{"polish", "french"}))

	// Empty or blank requests match everyone
	assert.True(t, MatchesLanguages(p, nil))
	assert.True(t, MatchesLanguages(p, []string{"  "}))

	// No language data fails any concrete request
	assert.False(t, MatchesLanguages(&corpus.Practitioner{}, []string{"english"}))
}
