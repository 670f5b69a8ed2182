package mcp

import "github.com/caresearch/medrank/internal/corpus"

// TurnInput is a single conversation turn passed to the rank_practitioners tool.
type TurnInput struct {
	Role    string `json:"role" jsonschema:"who spoke: user or assistant"`
	Content string `json:"content" jsonschema:"what was said"`
}

// RankInput defines the input schema for the rank_practitioners tool.
type RankInput struct {
	Query        string      `json:"query,omitempty" jsonschema:"the patient's free-text request"`
	Conversation []TurnInput `json:"conversation,omitempty" jsonschema:"booking conversation turns; the latest user turn drives understanding when query is empty"`
	Specialty    string      `json:"specialty,omitempty" jsonschema:"filter by medical specialty, e.g. Cardiology"`
	City         string      `json:"city,omitempty" jsonschema:"filter by practice locality"`
	Postcode     string      `json:"postcode,omitempty" jsonschema:"filter by distance from a UK postcode"`
	RadiusMiles  float64     `json:"radius_miles,omitempty" jsonschema:"postcode search radius in miles, default 25"`
	Insurance    string      `json:"insurance,omitempty" jsonschema:"filter by accepted insurance provider"`
	Gender       string      `json:"gender,omitempty" jsonschema:"filter by practitioner gender"`
	NHSOnly      bool        `json:"nhs_only,omitempty" jsonschema:"only practitioners holding an NHS post"`
	AgeGroup     string      `json:"age_group,omitempty" jsonschema:"patient age group: adult or paediatric"`
	Languages    []string    `json:"languages,omitempty" jsonschema:"languages the practitioner must speak"`
	TopK         int         `json:"top_k,omitempty" jsonschema:"shortlist size, default 12"`
	Variant      string      `json:"variant,omitempty" jsonschema:"ranking variant: legacy, two-stage, v5, or v6"`
	EvaluateFit  bool        `json:"evaluate_fit,omitempty" jsonschema:"annotate the shortlist with fit categories (v6 only)"`
}

// RankOutput defines the output schema for the rank_practitioners tool.
type RankOutput struct {
	Results     []PractitionerOutput `json:"results" jsonschema:"ranked shortlist, best match first"`
	Markdown    string               `json:"markdown" jsonschema:"human-readable rendering of the shortlist"`
	Variant     string               `json:"variant" jsonschema:"ranking variant that served the request"`
	FilterEmpty bool                 `json:"filter_empty,omitempty" jsonschema:"true when hard filters eliminated every candidate"`
	RequestID   string               `json:"request_id" jsonschema:"identifier for correlating server logs"`
}

// PractitionerOutput is a single shortlist entry with ranking context.
type PractitionerOutput struct {
	ID             string   `json:"id"`
	Rank           int      `json:"rank"`
	Name           string   `json:"name"`
	Title          string   `json:"title,omitempty"`
	Specialty      string   `json:"specialty"`
	Subspecialties []string `json:"subspecialties,omitempty"`
	Locality       string   `json:"locality,omitempty"`
	DistanceMiles  *float64 `json:"distance_miles,omitempty"` // set only for postcode radius searches
	Score          float64  `json:"score"`
	FitCategory    string   `json:"fit_category,omitempty"` // present when the variant evaluates fit
	FitReason      string   `json:"fit_reason,omitempty"`
	MatchReason    string   `json:"match_reason,omitempty"`
	ProfileURL     string   `json:"profile_url,omitempty"`
}

// CorpusStatusInput defines the input schema for the corpus_status tool (no parameters).
type CorpusStatusInput struct{}

// CorpusStatusOutput defines the output schema for the corpus_status tool.
type CorpusStatusOutput struct {
	Path     string        `json:"path"`
	LoadID   string        `json:"load_id"`
	LoadedAt string        `json:"loaded_at"`
	Stats    corpus.Stats  `json:"stats"`
	Requests *RequestStats `json:"requests,omitempty"` // present when telemetry is attached
}

// RequestStats summarizes traffic served since startup.
type RequestStats struct {
	Total          int64   `json:"total"`
	EmptyResultPct float64 `json:"empty_result_pct"`
	LLMFallbacks   int64   `json:"llm_fallbacks"`
	AvgTotalMillis float64 `json:"avg_total_ms"`
}
