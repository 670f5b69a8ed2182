package rank

import "strings"

// minTokenLength drops tokens too short to carry signal ("of", "dr").
const minTokenLength = 3

// Tokenize lowercases s, replaces non-word characters with spaces, splits
// on whitespace, and drops tokens shorter than three characters.
func Tokenize(s string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return ' '
		}
	}, s)

	fields := strings.Fields(cleaned)
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) >= minTokenLength {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// queryPhrases generates the consecutive two- and three-word windows of
// the lowercased query used by the exact-phrase bonus. Duplicate windows
// are emitted once.
func queryPhrases(query string) []string {
	words := strings.Fields(strings.ToLower(query))
	if len(words) < 2 {
		return nil
	}

	seen := make(map[string]struct{})
	var phrases []string
	add := func(p string) {
		if _, dup := seen[p]; dup {
			return
		}
		seen[p] = struct{}{}
		phrases = append(phrases, p)
	}

	for i := 0; i+1 < len(words); i++ {
		add(words[i] + " " + words[i+1])
		if i+2 < len(words) {
			add(words[i] + " " + words[i+1] + " " + words[i+2])
		}
	}
	return phrases
}
