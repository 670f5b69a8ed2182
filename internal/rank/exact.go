package rank

import "strings"

// Exact-phrase bonus values. The full-query bonus stacks with every
// matched sub-phrase.
const (
	fullQueryBonus = 2.0
	phraseBonus    = 1.0
)

// exactMatchBonus computes the additive exact-phrase bonus for one
// candidate text: the full lowercased query as a substring, plus each
// distinct two- or three-word window of the query found in the text.
// The text is already lowercased; phrases come from queryPhrases.
func exactMatchBonus(text, queryLower string, phrases []string) float64 {
	if text == "" {
		return 0
	}

	var bonus float64
	if queryLower != "" && strings.Contains(text, queryLower) {
		bonus += fullQueryBonus
	}
	for _, phrase := range phrases {
		if strings.Contains(text, phrase) {
			bonus += phraseBonus
		}
	}
	return bonus
}
