package filters

import (
	"strings"

	"github.com/caresearch/medrank/internal/corpus"
)

// MatchesSpecialty reports whether a manual specialty request matches the
// practitioner's specialty, subspecialties, clinical expertise, or title.
// Both sides are reduced to lowercase alphanumerics with single spaces and
// compared by bidirectional substring.
func MatchesSpecialty(p *corpus.Practitioner, requested string) bool {
	want := normalizeSpecialty(requested)
	if want == "" {
		return true
	}

	fields := make([]string, 0, len(p.Subspecialties)+3)
	fields = append(fields, p.Specialty)
	fields = append(fields, p.Subspecialties...)
	fields = append(fields, p.ClinicalExpertise, p.Title)

	for _, f := range fields {
		have := normalizeSpecialty(f)
		if have == "" {
			continue
		}
		if strings.Contains(have, want) || strings.Contains(want, have) {
			return true
		}
	}
	return false
}

// normalizeSpecialty lowercases and keeps letters, digits and single
// spaces.
func normalizeSpecialty(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for _, r := range strings.ToLower(s) {
		isWord := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !isWord {
			pendingSpace = b.Len() > 0
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			pendingSpace = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
