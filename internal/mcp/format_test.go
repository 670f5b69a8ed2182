package mcp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/caresearch/medrank/internal/corpus"
	"github.com/caresearch/medrank/internal/filters"
	"github.com/caresearch/medrank/internal/progressive"
	"github.com/caresearch/medrank/internal/rank"
	"github.com/caresearch/medrank/pkg/ranker"
)

func shortlistCandidate(id, name string, position int, score float64) *progressive.Candidate {
	return &progressive.Candidate{
		ScoredResult: &rank.ScoredResult{
			Practitioner: &corpus.Practitioner{
				ID:        id,
				Name:      name,
				Title:     "Dr",
				Specialty: "Cardiology",
			},
			Rank:  position,
			Score: score,
		},
	}
}

func shortlistResponse(variant string, candidates ...*progressive.Candidate) *ranker.Response {
	return &ranker.Response{
		Shortlist: candidates,
		Diagnostics: ranker.Diagnostics{
			Variant: variant,
		},
	}
}

func TestFormatShortlist_Basic(t *testing.T) {
	// Given: a single fully populated candidate
	miles := 3.2
	c := shortlistCandidate("ep-1", "Emma Hart", 1, 0.92)
	c.Practitioner.AddressLocality = "London"
	c.Practitioner.Subspecialties = []string{"Electrophysiology", "Arrhythmia"}
	c.Practitioner.ProfileURL = "https://example.org/emma-hart"
	c.Practitioner.Distance = &miles
	c.Rescoring.IntentMatches = 3

	// When: formatting the shortlist
	markdown := FormatShortlist("SVT ablation", shortlistResponse("two-stage", c))

	// Then: markdown contains expected elements
	assert.Contains(t, markdown, `## Practitioner Shortlist for "SVT ablation"`)
	assert.Contains(t, markdown, "Found 1 match (two-stage ranking)")
	assert.Contains(t, markdown, "### 1. Emma Hart (score: 0.92)")
	assert.Contains(t, markdown, "Dr, Cardiology, London")
	assert.Contains(t, markdown, "**Focus:** Electrophysiology, Arrhythmia")
	assert.Contains(t, markdown, "**Distance:** 3.2 miles")
	assert.Contains(t, markdown, "**Why:** intent terms: 3")
	assert.Contains(t, markdown, "[Profile](https://example.org/emma-hart)")
}

func TestFormatShortlist_MultipleCandidates(t *testing.T) {
	// Given: two candidates
	first := shortlistCandidate("ep-1", "Emma Hart", 1, 0.92)
	second := shortlistCandidate("ic-1", "Ivan Cole", 2, 0.71)

	// When: formatting the shortlist
	markdown := FormatShortlist("chest pain", shortlistResponse("v5", first, second))

	// Then: both candidates included in order
	assert.Contains(t, markdown, "Found 2 matches (v5 ranking)")
	assert.Contains(t, markdown, "### 1. Emma Hart")
	assert.Contains(t, markdown, "### 2. Ivan Cole")
}

func TestFormatShortlist_Empty(t *testing.T) {
	// Given: an empty shortlist without filter diagnostics
	resp := shortlistResponse("two-stage")

	// When: formatting
	markdown := FormatShortlist("xyznonexistent", resp)

	// Then: friendly message without filter narration
	assert.Contains(t, markdown, `No practitioners matched "xyznonexistent"`)
	assert.NotContains(t, markdown, "###")
	assert.NotContains(t, markdown, "Hard filters")
}

func TestFormatShortlist_FilterEmpty(t *testing.T) {
	// Given: hard filters drained the pool
	resp := shortlistResponse("two-stage")
	resp.Diagnostics.FilterEmpty = true
	resp.Diagnostics.FilterSteps = []filters.StepCount{
		{Step: "specialty", In: 120, Out: 14},
		{Step: "location", In: 14, Out: 0},
	}

	// When: formatting
	markdown := FormatShortlist("dermatologist in Inverness", resp)

	// Then: per-step narrowing is shown
	assert.Contains(t, markdown, "Hard filters narrowed the pool to zero")
	assert.Contains(t, markdown, "- specialty: 120 -> 14")
	assert.Contains(t, markdown, "- location: 14 -> 0")
	assert.Contains(t, markdown, "Relax one of the filters")
}

func TestFormatShortlist_SkipsNilCandidates(t *testing.T) {
	// Given: a shortlist containing nil and incomplete entries
	resp := shortlistResponse("two-stage",
		nil,
		&progressive.Candidate{},
		&progressive.Candidate{ScoredResult: &rank.ScoredResult{}},
	)

	// When: formatting
	markdown := FormatShortlist("test", resp)

	// Then: treated as empty
	assert.Contains(t, markdown, "No practitioners matched")
}

func TestFormatShortlist_FitCategory(t *testing.T) {
	// Given: an evaluated candidate
	c := shortlistCandidate("ep-1", "Emma Hart", 1, 0.92)
	c.FitCategory = progressive.FitExcellent
	c.EvaluationReason = "performs SVT ablation weekly"

	// When: formatting
	markdown := FormatShortlist("SVT ablation", shortlistResponse("v6", c))

	// Then: fit judgment is rendered with its reason
	assert.Contains(t, markdown, "**Fit:** excellent (performs SVT ablation weekly)")
}

func TestFormatShortlist_TruncatesSubspecialties(t *testing.T) {
	// Given: a candidate with many subspecialties
	c := shortlistCandidate("ep-1", "Emma Hart", 1, 0.92)
	c.Practitioner.Subspecialties = []string{"One", "Two", "Three", "Four", "Five"}

	// When: formatting
	markdown := FormatShortlist("test", shortlistResponse("two-stage", c))

	// Then: only the first three are shown
	assert.Contains(t, markdown, "**Focus:** One, Two, Three")
	assert.NotContains(t, markdown, "Four")
}

func TestToPractitionerOutput_BasicFields(t *testing.T) {
	// Given: a candidate with profile fields
	miles := 1.8
	c := shortlistCandidate("ep-1", "Emma Hart", 1, 0.92)
	c.Practitioner.AddressLocality = "London"
	c.Practitioner.Subspecialties = []string{"Electrophysiology"}
	c.Practitioner.ProfileURL = "https://example.org/emma-hart"
	c.Practitioner.Distance = &miles
	c.Rescoring.IntentMatches = 2
	c.Rescoring.AnchorMatches = 1

	// When: converting to output format
	output := ToPractitionerOutput(c)

	// Then: fields are populated
	assert.Equal(t, "ep-1", output.ID)
	assert.Equal(t, 1, output.Rank)
	assert.Equal(t, "Emma Hart", output.Name)
	assert.Equal(t, "Dr", output.Title)
	assert.Equal(t, "Cardiology", output.Specialty)
	assert.Equal(t, []string{"Electrophysiology"}, output.Subspecialties)
	assert.Equal(t, "London", output.Locality)
	assert.Equal(t, 0.92, output.Score)
	assert.Equal(t, "https://example.org/emma-hart", output.ProfileURL)
	assert.Contains(t, output.MatchReason, "intent terms: 2")
	assert.Contains(t, output.MatchReason, "anchor phrases: 1")
	if assert.NotNil(t, output.DistanceMiles) {
		assert.Equal(t, 1.8, *output.DistanceMiles)
	}
}

func TestToPractitionerOutput_WithFit(t *testing.T) {
	// Given: an evaluated candidate
	c := shortlistCandidate("ep-1", "Emma Hart", 1, 0.92)
	c.FitCategory = progressive.FitGood
	c.EvaluationReason = "strong subspecialty overlap"

	// When: converting
	output := ToPractitionerOutput(c)

	// Then: fit fields are set
	assert.Equal(t, "good", output.FitCategory)
	assert.Equal(t, "strong subspecialty overlap", output.FitReason)
}

func TestToPractitionerOutput_Unevaluated(t *testing.T) {
	// Given: an unevaluated candidate
	c := shortlistCandidate("ep-1", "Emma Hart", 1, 0.92)

	// When: converting
	output := ToPractitionerOutput(c)

	// Then: fit fields stay empty
	assert.Empty(t, output.FitCategory)
	assert.Empty(t, output.FitReason)
}

func TestToPractitionerOutput_NilCandidate(t *testing.T) {
	// Given: nil candidate
	var c *progressive.Candidate = nil

	// When: converting
	output := ToPractitionerOutput(c)

	// Then: returns empty output
	assert.Empty(t, output.ID)
	assert.Empty(t, output.Name)
}

func TestToPractitionerOutput_NilPractitioner(t *testing.T) {
	// Given: candidate without a practitioner
	c := &progressive.Candidate{ScoredResult: &rank.ScoredResult{Score: 0.5}}

	// When: converting
	output := ToPractitionerOutput(c)

	// Then: returns empty output
	assert.Empty(t, output.ID)
}

func TestGenerateMatchReason_RescoringSignals(t *testing.T) {
	// Given: a candidate with rescoring matches
	c := shortlistCandidate("ep-1", "Emma Hart", 1, 0.92)
	c.Rescoring.IntentMatches = 3
	c.Rescoring.AnchorMatches = 2
	c.Rescoring.SubspecialtyBoost = 0.05

	// When: generating match reason
	reason := generateMatchReason(c)

	// Then: includes all signals
	assert.Contains(t, reason, "intent terms: 3")
	assert.Contains(t, reason, "anchor phrases: 2")
	assert.Contains(t, reason, "subspecialty match")
}

func TestGenerateMatchReason_ExactAndSemantic(t *testing.T) {
	// Given: a candidate with exact and semantic signals
	c := shortlistCandidate("ep-1", "Emma Hart", 1, 0.92)
	c.ExactMatchBonus = 1.5
	c.NormalizedSemantic = 0.8

	// When: generating match reason
	reason := generateMatchReason(c)

	// Then: both are named
	assert.Contains(t, reason, "exact phrase in profile")
	assert.Contains(t, reason, "semantic similarity")
}

func TestGenerateMatchReason_NegativeMatches(t *testing.T) {
	// Given: a candidate that tripped negative terms
	c := shortlistCandidate("ep-1", "Emma Hart", 1, 0.92)
	c.Rescoring.NegativeMatches = 2

	// When: generating match reason
	reason := generateMatchReason(c)

	// Then: contraindications are surfaced
	assert.Contains(t, reason, "contraindicated terms: 2")
}

func TestGenerateMatchReason_Default(t *testing.T) {
	// Given: a candidate with no rescoring signals
	c := shortlistCandidate("ep-1", "Emma Hart", 1, 0.92)

	// When: generating match reason
	reason := generateMatchReason(c)

	// Then: returns default
	assert.Equal(t, "keyword relevance", reason)
}

func TestFormatShortlist_LargeShortlist(t *testing.T) {
	// Given: 25 candidates
	candidates := make([]*progressive.Candidate, 25)
	for i := 0; i < 25; i++ {
		candidates[i] = shortlistCandidate("p-1", "Test Practitioner", i+1, float64(25-i)/25.0)
	}

	// When: formatting
	markdown := FormatShortlist("test", shortlistResponse("two-stage", candidates...))

	// Then: all 25 entries included
	assert.Contains(t, markdown, "Found 25 matches")
	assert.Equal(t, 25, strings.Count(markdown, "### "))
}
