package canon

import "strings"

// insurerAliases maps lowercase variant names to canonical insurer names.
// Canonical names map to themselves so canonicalization is a fixed point.
var insurerAliases = map[string]string{
	"bupa":                       "Bupa",
	"bupa health":                "Bupa",
	"bupa healthcare":            "Bupa",
	"bupa uk":                    "Bupa",
	"axa":                        "AXA Health",
	"axa health":                 "AXA Health",
	"axa ppp":                    "AXA Health",
	"axa ppp healthcare":         "AXA Health",
	"vitality":                   "Vitality",
	"vitality health":            "Vitality",
	"vitalityhealth":             "Vitality",
	"pruhealth":                  "Vitality",
	"aviva":                      "Aviva",
	"aviva health":               "Aviva",
	"aviva healthcare":           "Aviva",
	"wpa":                        "WPA",
	"western provident":          "WPA",
	"western provident association": "WPA",
	"cigna":                      "Cigna",
	"cigna uk":                   "Cigna",
	"cigna healthcare":           "Cigna",
	"healix":                     "Healix",
	"healix health":              "Healix",
	"simplyhealth":               "Simplyhealth",
	"simply health":              "Simplyhealth",
	"the exeter":                 "The Exeter",
	"exeter":                     "The Exeter",
	"exeter friendly":            "The Exeter",
	"freedom":                    "Freedom Health Insurance",
	"freedom health":             "Freedom Health Insurance",
	"freedom health insurance":   "Freedom Health Insurance",
	"benenden":                   "Benenden Health",
	"benenden health":            "Benenden Health",
	"national friendly":          "National Friendly",
	"general & medical":          "General & Medical",
	"general and medical":        "General & Medical",
	"alliance surgical":          "Alliance Surgical",
	"allianz":                    "Allianz Care",
	"allianz care":               "Allianz Care",
	"allianz worldwide":          "Allianz Care",
}

// CanonicalInsurer resolves an insurer name to its canonical form. Unknown
// names are returned trimmed but otherwise unchanged, so downstream
// substring matching still has something to work with.
func CanonicalInsurer(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ""
	}
	if canonical, ok := insurerAliases[strings.ToLower(trimmed)]; ok {
		return canonical
	}
	return trimmed
}
