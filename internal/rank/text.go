package rank

import (
	"math"
	"strings"

	"github.com/caresearch/medrank/internal/corpus"
)

// repetitions converts a field weight into whole-text repetitions.
// Weights at or below 1 contribute one repetition; higher weights round
// to the nearest integer.
func repetitions(weight float64) int {
	if weight <= 0 {
		return 0
	}
	if weight <= 1 {
		return 1
	}
	return int(math.Round(weight))
}

// SearchText builds the lowercased weighted blob for one practitioner.
// Each non-empty field is repeated according to its weight; empty fields
// contribute nothing. Parsed clinical expertise contributes its bags at
// fixed multiplicities (procedures and conditions three times, interests
// twice); unparsed expertise contributes the raw string at the
// clinical_expertise weight.
func SearchText(p *corpus.Practitioner, w FieldWeights) string {
	var b strings.Builder
	b.Grow(1024)

	appendN := func(text string, n int) {
		text = strings.TrimSpace(text)
		if text == "" || n <= 0 {
			return
		}
		for i := 0; i < n; i++ {
			b.WriteString(text)
			b.WriteByte(' ')
		}
	}

	expertise := corpus.ParseExpertise(p.ClinicalExpertise)
	if expertise.Structured {
		appendN(strings.Join(expertise.Procedures, " "), 3)
		appendN(strings.Join(expertise.Conditions, " "), 3)
		appendN(strings.Join(expertise.Interests, " "), 2)
	} else {
		appendN(expertise.Raw, repetitions(w.ClinicalExpertise))
	}

	if len(p.ProcedureGroups) > 0 {
		names := make([]string, 0, len(p.ProcedureGroups))
		for _, g := range p.ProcedureGroups {
			if g.Name != "" {
				names = append(names, g.Name)
			}
		}
		appendN(strings.Join(names, " "), repetitions(w.ProcedureGroups))
	}

	appendN(p.Specialty, repetitions(w.Specialty))
	appendN(p.SpecialtyDescription, repetitions(w.SpecialtyDescription))
	appendN(p.Description, repetitions(w.Description))
	appendN(p.About, repetitions(w.About))
	appendN(p.Name, repetitions(w.Name))
	appendN(p.ProfessionalMemberships, repetitions(w.Memberships))
	appendN(p.AddressLocality, repetitions(w.AddressLocality))
	appendN(p.Title, repetitions(w.Title))

	if len(p.InsuranceProviders) > 0 {
		names := make([]string, 0, len(p.InsuranceProviders))
		for _, ip := range p.InsuranceProviders {
			if ip.CanonicalName != "" {
				names = append(names, ip.CanonicalName)
			} else if ip.RawName != "" {
				names = append(names, ip.RawName)
			}
		}
		appendN(strings.Join(names, " "), repetitions(w.InsuranceProviders))
	}

	return strings.ToLower(strings.TrimSpace(b.String()))
}
