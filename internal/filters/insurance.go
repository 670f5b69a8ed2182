package filters

import (
	"strings"

	"github.com/caresearch/medrank/internal/canon"
	"github.com/caresearch/medrank/internal/corpus"
)

// MatchesInsurer reports whether the practitioner accepts the requested
// insurer. The request goes through the alias table first, then each
// provider's canonical name is compared case-insensitively with substring
// matches accepted in either direction, so "Bupa Health" finds "Bupa".
func MatchesInsurer(p *corpus.Practitioner, requested string) bool {
	want := strings.ToLower(canon.CanonicalInsurer(requested))
	if want == "" {
		return true
	}

	for _, prov := range p.InsuranceProviders {
		name := prov.CanonicalName
		if strings.TrimSpace(name) == "" {
			name = canon.CanonicalInsurer(prov.RawName)
		}
		have := strings.ToLower(strings.TrimSpace(name))
		if have == "" {
			continue
		}
		if strings.Contains(have, want) || strings.Contains(want, have) {
			return true
		}
	}
	return false
}
