package corpus

import "strings"

// Expertise is the parsed form of a clinical_expertise blob.
//
// The enrichment pipeline emits two shapes: a structured blob with
// semicolon-separated segments ("Procedure: X, Y; Condition: Z; Clinical
// Interests: W") or a plain comma-separated interest list. Exactly one form
// is in effect per record: Structured is true only when at least one
// recognized segment header carries a non-empty payload, and in that case
// Raw is never used for scoring.
type Expertise struct {
	Structured bool

	Procedures []string
	Conditions []string
	Interests  []string

	// Raw is the original blob, used whole when no segments were detected.
	Raw string
}

// segment headers recognized by the detector, lowercase.
var expertiseHeaders = map[string]int{
	"procedure":          0,
	"procedures":         0,
	"condition":          1,
	"conditions":         1,
	"clinical interest":  2,
	"clinical interests": 2,
}

// ParseExpertise splits a clinical_expertise blob into its structured bags,
// or returns the raw form when no recognized segment is present.
func ParseExpertise(raw string) Expertise {
	e := Expertise{Raw: strings.TrimSpace(raw)}
	if e.Raw == "" {
		return e
	}

	bags := [3][]string{}
	detected := false

	for _, seg := range strings.Split(e.Raw, ";") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}

		head, payload, ok := strings.Cut(seg, ":")
		if !ok {
			continue
		}

		idx, recognized := expertiseHeaders[strings.ToLower(strings.TrimSpace(head))]
		if !recognized {
			continue
		}

		items := splitList(payload)
		if len(items) == 0 {
			// A detected-but-empty segment contributes nothing.
			continue
		}

		bags[idx] = append(bags[idx], items...)
		detected = true
	}

	if !detected {
		return e
	}

	e.Structured = true
	e.Procedures = bags[0]
	e.Conditions = bags[1]
	e.Interests = bags[2]
	return e
}

// splitList splits a comma-separated payload into trimmed non-empty items.
func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}
