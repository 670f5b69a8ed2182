package filters

import (
	"strings"

	"github.com/caresearch/medrank/internal/corpus"
)

// MatchesAgeGroup reports whether any of the practitioner's patient age
// groups matches the request by case-insensitive substring. British and
// American spellings of paediatric compare equal.
func MatchesAgeGroup(p *corpus.Practitioner, requested string) bool {
	want := normalizeAgeGroup(requested)
	if want == "" {
		return true
	}
	for _, g := range p.PatientAgeGroups {
		have := normalizeAgeGroup(g)
		if have == "" {
			continue
		}
		if strings.Contains(have, want) || strings.Contains(want, have) {
			return true
		}
	}
	return false
}

func normalizeAgeGroup(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, "paediatric", "pediatric")
}

// MatchesLanguages reports whether the practitioner covers every requested
// language by case-insensitive substring. An empty request matches
// everyone.
func MatchesLanguages(p *corpus.Practitioner, requested []string) bool {
	for _, want := range requested {
		want = strings.ToLower(strings.TrimSpace(want))
		if want == "" {
			continue
		}
		found := false
		for _, l := range p.Languages {
			have := strings.ToLower(strings.TrimSpace(l))
			if have == "" {
				continue
			}
			if strings.Contains(have, want) || strings.Contains(want, have) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
