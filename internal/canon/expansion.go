package canon

import (
	"sort"
	"strings"
)

// legacyExpansions maps lay terms to the specialty vocabulary corpus
// records actually use. Legacy single-stage ranking appends every matched
// expansion; the two-stage pipeline relies on query understanding instead
// and never consults this table.
var legacyExpansions = map[string][]string{
	"heart":      {"cardiology", "cardiologist", "cardiac"},
	"skin":       {"dermatology", "dermatologist"},
	"knee":       {"orthopaedic", "orthopedic", "knee surgery"},
	"hip":        {"orthopaedic", "orthopedic", "hip surgery"},
	"back pain":  {"spinal", "orthopaedic", "pain management"},
	"cancer":     {"oncology", "oncologist"},
	"child":      {"paediatric", "pediatric"},
	"children":   {"paediatric", "pediatric"},
	"pregnancy":  {"obstetrics", "obstetrician", "gynaecology"},
	"fertility":  {"fertility", "reproductive medicine", "gynaecology"},
	"anxiety":    {"psychiatry", "psychiatrist", "mental health"},
	"depression": {"psychiatry", "psychiatrist", "mental health"},
	"stomach":    {"gastroenterology", "gastroenterologist"},
	"bowel":      {"gastroenterology", "colorectal"},
	"eye":        {"ophthalmology", "ophthalmologist"},
	"eyes":       {"ophthalmology", "ophthalmologist"},
	"ear":        {"ent", "otolaryngology"},
	"hearing":    {"ent", "audiology"},
	"kidney":     {"nephrology", "urology"},
	"bladder":    {"urology", "urologist"},
	"prostate":   {"urology", "urologist"},
	"lung":       {"respiratory", "pulmonology"},
	"breathing":  {"respiratory", "pulmonology"},
	"diabetes":   {"endocrinology", "diabetologist"},
	"thyroid":    {"endocrinology", "endocrinologist"},
	"headache":   {"neurology", "neurologist"},
	"migraine":   {"neurology", "neurologist"},
	"joint":      {"rheumatology", "orthopaedic"},
	"arthritis":  {"rheumatology", "rheumatologist"},
	"allergy":    {"allergy", "immunology"},
	"varicose":   {"vascular surgery", "vascular"},
	"hernia":     {"general surgery", "hernia repair"},
	"weight":     {"bariatric", "weight loss surgery"},
}

// ExpandLegacyQuery appends hand-curated specialty expansions for every
// lay term found in the query. Multi-word keys match as substrings,
// single-word keys as whole tokens. Duplicates already present in the
// query are skipped.
func ExpandLegacyQuery(query string) string {
	lower := strings.ToLower(query)
	if strings.TrimSpace(lower) == "" {
		return query
	}

	tokens := make(map[string]struct{})
	for _, tok := range strings.Fields(lower) {
		tokens[strings.Trim(tok, ".,;:!?")] = struct{}{}
	}

	seen := make(map[string]struct{})
	var additions []string
	for key, expansions := range legacyExpansions {
		matched := false
		if strings.Contains(key, " ") {
			matched = strings.Contains(lower, key)
		} else {
			_, matched = tokens[key]
		}
		if !matched {
			continue
		}
		for _, exp := range expansions {
			if strings.Contains(lower, exp) {
				continue
			}
			if _, dup := seen[exp]; dup {
				continue
			}
			seen[exp] = struct{}{}
			additions = append(additions, exp)
		}
	}

	if len(additions) == 0 {
		return query
	}
	// Map iteration order is random; sort so output is stable across runs.
	sort.Strings(additions)
	return query + " " + strings.Join(additions, " ")
}
