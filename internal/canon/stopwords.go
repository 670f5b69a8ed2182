package canon

import "strings"

// stopwords are generic medical and geographic words that carry no signal
// about which procedures a query is actually about. The relevant-volume
// heuristic drops them before matching query terms against procedure names.
var stopwords = map[string]struct{}{
	// Generic medical vocabulary
	"doctor": {}, "doctors": {}, "consultant": {}, "consultants": {},
	"specialist": {}, "specialists": {}, "surgeon": {}, "surgeons": {},
	"clinic": {}, "clinics": {}, "hospital": {}, "hospitals": {},
	"medical": {}, "medicine": {}, "health": {}, "healthcare": {},
	"treatment": {}, "treatments": {}, "therapy": {}, "care": {},
	"private": {}, "practice": {}, "practitioner": {}, "practitioners": {},
	"appointment": {}, "appointments": {}, "patient": {}, "patients": {},

	// Query filler
	"need": {}, "needs": {}, "want": {}, "help": {}, "find": {},
	"looking": {}, "seeking": {}, "recommend": {}, "recommended": {},
	"best": {}, "good": {}, "great": {}, "with": {}, "that": {},
	"this": {}, "have": {}, "near": {}, "nearby": {}, "around": {},

	// Geography
	"london": {}, "manchester": {}, "birmingham": {}, "leeds": {},
	"glasgow": {}, "edinburgh": {}, "bristol": {}, "liverpool": {},
	"sheffield": {}, "nottingham": {}, "cambridge": {}, "oxford": {},
	"street": {}, "road": {}, "city": {}, "town": {}, "centre": {},
	"center": {}, "area": {}, "region": {}, "north": {}, "south": {},
	"east": {}, "west": {}, "england": {}, "scotland": {}, "wales": {},
}

// IsStopword reports whether term is in the generic stopword set.
// Matching is case-insensitive.
func IsStopword(term string) bool {
	_, ok := stopwords[strings.ToLower(term)]
	return ok
}

// IsMeaningful reports whether a query term should count for the
// relevant-volume heuristic: longer than 3 characters and not a stopword.
func IsMeaningful(term string) bool {
	return len(term) > 3 && !IsStopword(term)
}

// MeaningfulTerms filters tokens down to the meaningful ones, preserving
// order.
func MeaningfulTerms(tokens []string) []string {
	var out []string
	for _, tok := range tokens {
		if IsMeaningful(tok) {
			out = append(out, tok)
		}
	}
	return out
}
