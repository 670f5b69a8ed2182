package rank

import "github.com/caresearch/medrank/internal/corpus"

// SearchTypePostcode marks a request whose location came from a postcode
// lookup; only those requests carry distances precise enough for the
// proximity boost. City searches rank without it.
const (
	SearchTypePostcode = "postcode"
	SearchTypeCity     = "city"
)

// proximityBoost returns the multiplicative distance factor. It applies
// only to postcode searches where the location filter annotated the
// candidate with a distance in miles.
func proximityBoost(p *corpus.Practitioner, searchType string) float64 {
	if searchType != SearchTypePostcode || p.Distance == nil {
		return 1.0
	}

	switch d := *p.Distance; {
	case d <= 1:
		return 1.6
	case d <= 2:
		return 1.5
	case d <= 3:
		return 1.4
	case d <= 5:
		return 1.3
	case d <= 8:
		return 1.2
	case d <= 12:
		return 1.1
	case d <= 18:
		return 1.05
	default:
		return 1.0
	}
}
