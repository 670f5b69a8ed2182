package filters

import (
	"strings"
	"unicode"

	"github.com/caresearch/medrank/internal/corpus"
)

// pronounThreshold is the minimum pronoun count for an inference; the
// winning side must also strictly exceed the other.
const pronounThreshold = 2

// MatchesGender reports whether the practitioner satisfies a gender
// preference. Resolution order: explicit field, title, pronoun counts in
// the profile text. Practitioners whose gender cannot be resolved are
// included.
func MatchesGender(p *corpus.Practitioner, want string) bool {
	want = wantedGender(want)
	if want == "" {
		return true
	}
	inferred := InferGender(p)
	return inferred == "" || inferred == want
}

// wantedGender normalizes a request-side preference; anything other than
// male or female means no preference.
func wantedGender(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male", "m":
		return "male"
	case "female", "f":
		return "female"
	default:
		return ""
	}
}

// InferGender resolves the practitioner's gender as "male", "female", or
// "" when unknown. The explicit field wins, then the title, then pronoun
// counting over description, about, and clinical expertise.
func InferGender(p *corpus.Practitioner) string {
	if g := p.GenderNormalized(); g != "" {
		return g
	}
	if g := genderFromTitle(p.Title); g != "" {
		return g
	}
	return genderFromPronouns(p.Description + " " + p.About + " " + p.ClinicalExpertise)
}

// genderFromTitle maps gendered honorifics. UK surgeons carry "Mr" as a
// male signal; "Dr" and "Professor" carry none.
func genderFromTitle(title string) string {
	for _, tok := range strings.Fields(strings.ToLower(title)) {
		switch strings.TrimRight(tok, ".") {
		case "mr":
			return "male"
		case "mrs", "ms", "miss":
			return "female"
		}
	}
	return ""
}

// genderFromPronouns counts gendered pronouns; a side must reach the
// threshold and strictly beat the other to count as an inference.
func genderFromPronouns(text string) string {
	var male, female int
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		switch w {
		case "he", "him", "his":
			male++
		case "she", "her", "hers":
			female++
		}
	}
	switch {
	case male >= pronounThreshold && male > female:
		return "male"
	case female >= pronounThreshold && female > male:
		return "female"
	default:
		return ""
	}
}
