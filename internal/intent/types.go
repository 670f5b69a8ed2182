// Package intent implements query understanding: three parallel LLM
// classification tasks merged into the structured SessionContext that
// drives two-stage ranking. Each task carries its own conservative
// fallback so one failed call degrades the context instead of the
// request.
package intent

import (
	"strings"
	"time"

	"github.com/caresearch/medrank/internal/rank"
)

// Turn is one conversation message.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Params are the inputs to one understanding pass.
type Params struct {
	// Query is the user's current free-text query.
	Query string

	// Conversation is the preceding dialogue, oldest first. QPatient is
	// taken from the last user turn, falling back to Query.
	Conversation []Turn

	// Location is an optional location hint passed through to the
	// insights prompt.
	Location string

	// BypassCache skips the LRU lookup and store for this call.
	BypassCache bool

	// IncludeIdealProfile adds the ideal-profile generation task used by
	// the v5 pipeline.
	IncludeIdealProfile bool
}

// lastUserTurn returns the trimmed content of the final user turn, or the
// trimmed query when the conversation has none.
func (p Params) lastUserTurn() string {
	for i := len(p.Conversation) - 1; i >= 0; i-- {
		t := p.Conversation[i]
		if strings.EqualFold(t.Role, "user") && strings.TrimSpace(t.Content) != "" {
			return strings.TrimSpace(t.Content)
		}
	}
	return strings.TrimSpace(p.Query)
}

// transcript renders the conversation for prompting, one turn per line.
func (p Params) transcript() string {
	if len(p.Conversation) == 0 {
		return strings.TrimSpace(p.Query)
	}
	var b strings.Builder
	for _, t := range p.Conversation {
		content := strings.TrimSpace(t.Content)
		if content == "" {
			continue
		}
		b.WriteString(t.Role)
		b.WriteString(": ")
		b.WriteString(content)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// Insights is the conversation summary produced by the insights task.
// It feeds response diagnostics, not scoring.
type Insights struct {
	Symptoms          []string `json:"symptoms"`
	Preferences       []string `json:"preferences"`
	Urgency           string   `json:"urgency"`
	InferredSpecialty string   `json:"inferred_specialty,omitempty"`
	InferredLocation  string   `json:"inferred_location,omitempty"`
	Summary           string   `json:"summary"`
}

// generalResult is the wire shape of the general intent classification.
type generalResult struct {
	Goal                 string              `json:"goal"`
	Specificity          string              `json:"specificity"`
	Confidence           float64             `json:"confidence"`
	ExpansionTerms       []string            `json:"expansion_terms"`
	NegativeTerms        []string            `json:"negative_terms"`
	AnchorPhrases        []string            `json:"anchor_phrases"`
	SafeLaneTerms        []string            `json:"safe_lane_terms"`
	LikelySubspecialties []rank.Subspecialty `json:"likely_subspecialties"`
}

// clinicalResult is the wire shape of the clinical intent classification.
type clinicalResult struct {
	PrimaryIntent        string              `json:"primary_intent"`
	ExpansionTerms       []string            `json:"expansion_terms"`
	NegativeTerms        []string            `json:"negative_terms"`
	LikelySubspecialties []rank.Subspecialty `json:"likely_subspecialties"`
}

// Info reports how an understanding pass went: which tasks fell back to
// defaults, whether the cache answered, and the insights summary.
type Info struct {
	CacheHit         bool          `json:"cache_hit"`
	InsightsFallback bool          `json:"insights_fallback"`
	GeneralFallback  bool          `json:"general_fallback"`
	ClinicalFallback bool          `json:"clinical_fallback"`
	AllFallback      bool          `json:"all_fallback"`
	Duration         time.Duration `json:"duration"`
	Insights         *Insights     `json:"insights,omitempty"`
	PrimaryIntent    string        `json:"primary_intent,omitempty"`
}
