package canon

import (
	"regexp"
	"strings"
)

// maxAppendedAliases bounds how many expansions equivalence normalization
// may append to a query, however many rules match.
const maxAppendedAliases = 2

// aliasRule expands a trigger term to an equivalent form. Rules with
// context terms fire only when at least one context term is also present
// in the query.
type aliasRule struct {
	trigger   string
	expansion string
	context   []string
}

// equivalenceRules is checked in order; earlier rules win the alias cap.
// Orthographic pairs appear once per direction.
var equivalenceRules = []aliasRule{
	// Abbreviations
	{trigger: "svt", expansion: "supraventricular tachycardia"},
	{trigger: "afib", expansion: "atrial fibrillation"},
	{trigger: "acl", expansion: "anterior cruciate ligament"},
	{trigger: "copd", expansion: "chronic obstructive pulmonary disease"},
	{trigger: "ibs", expansion: "irritable bowel syndrome"},
	{trigger: "uti", expansion: "urinary tract infection"},
	{trigger: "tia", expansion: "transient ischaemic attack"},
	{trigger: "pcos", expansion: "polycystic ovary syndrome"},
	{trigger: "adhd", expansion: "attention deficit hyperactivity disorder"},
	{trigger: "ocd", expansion: "obsessive compulsive disorder"},
	{trigger: "ent", expansion: "ear nose and throat"},

	// Orthographic variants, both directions
	{trigger: "ischaemic", expansion: "ischemic"},
	{trigger: "ischemic", expansion: "ischaemic"},
	{trigger: "anaemia", expansion: "anemia"},
	{trigger: "anemia", expansion: "anaemia"},
	{trigger: "paediatric", expansion: "pediatric"},
	{trigger: "pediatric", expansion: "paediatric"},
	{trigger: "orthopaedic", expansion: "orthopedic"},
	{trigger: "orthopedic", expansion: "orthopaedic"},

	// Context-gated: short words with non-medical readings
	{trigger: "echo", expansion: "echocardiogram",
		context: []string{"heart", "cardiac", "cardiology", "cardiologist"}},
	{trigger: "cath", expansion: "catheterisation",
		context: []string{"heart", "cardiac", "lab", "coronary"}},
}

var triggerPatterns = compileTriggers()

func compileTriggers() map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp, len(equivalenceRules))
	for _, rule := range equivalenceRules {
		if _, ok := patterns[rule.trigger]; !ok {
			patterns[rule.trigger] = wordPattern(rule.trigger)
		}
		if _, ok := patterns[rule.expansion]; !ok {
			patterns[rule.expansion] = wordPattern(rule.expansion)
		}
		for _, c := range rule.context {
			if _, ok := patterns[c]; !ok {
				patterns[c] = wordPattern(c)
			}
		}
	}
	return patterns
}

func wordPattern(term string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`)
}

// NormalizeQuery applies equivalence-only normalization: triggers found at
// word boundaries get their equivalent form appended, at most
// maxAppendedAliases expansions per query. The original query text is
// never rewritten, only extended, so downstream exact-phrase matching
// still sees the user's words.
func NormalizeQuery(query string) string {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return trimmed
	}

	appended := 0
	result := trimmed
	for _, rule := range equivalenceRules {
		if appended >= maxAppendedAliases {
			break
		}
		if !triggerPatterns[rule.trigger].MatchString(result) {
			continue
		}
		// Skip when the expansion is already present
		if triggerPatterns[rule.expansion].MatchString(result) {
			continue
		}
		if len(rule.context) > 0 && !anyTermPresent(result, rule.context) {
			continue
		}
		result += " " + rule.expansion
		appended++
	}
	return result
}

func anyTermPresent(text string, terms []string) bool {
	for _, term := range terms {
		if triggerPatterns[term].MatchString(text) {
			return true
		}
	}
	return false
}
