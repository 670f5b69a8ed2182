package mcp

import (
	"fmt"
	"strings"

	"github.com/caresearch/medrank/internal/progressive"
	"github.com/caresearch/medrank/pkg/ranker"
)

// FormatShortlist formats a ranked shortlist as markdown.
func FormatShortlist(query string, resp *ranker.Response) string {
	// Filter out nil candidates
	shortlist := filterValidCandidates(resp.Shortlist)

	if len(shortlist) == 0 {
		return formatEmptyShortlist(query, resp)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Practitioner Shortlist for \"%s\"\n\n", query))
	sb.WriteString(fmt.Sprintf("Found %d match", len(shortlist)))
	if len(shortlist) != 1 {
		sb.WriteString("es")
	}
	sb.WriteString(fmt.Sprintf(" (%s ranking)\n\n", resp.Diagnostics.Variant))

	for i, c := range shortlist {
		formatCandidate(&sb, i+1, c)
	}

	return sb.String()
}

// formatEmptyShortlist explains an empty result. When hard filters drained
// the pool the per-step counts show the caller which constraint to relax.
func formatEmptyShortlist(query string, resp *ranker.Response) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("No practitioners matched \"%s\"\n", query))

	if resp.Diagnostics.FilterEmpty && len(resp.Diagnostics.FilterSteps) > 0 {
		sb.WriteString("\nHard filters narrowed the pool to zero:\n\n")
		for _, step := range resp.Diagnostics.FilterSteps {
			fmt.Fprintf(&sb, "- %s: %d -> %d\n", step.Step, step.In, step.Out)
		}
		sb.WriteString("\nRelax one of the filters above and retry.\n")
	}

	return sb.String()
}

// filterValidCandidates removes candidates with nil practitioners.
func filterValidCandidates(shortlist []*progressive.Candidate) []*progressive.Candidate {
	valid := make([]*progressive.Candidate, 0, len(shortlist))
	for _, c := range shortlist {
		if c != nil && c.ScoredResult != nil && c.Practitioner != nil {
			valid = append(valid, c)
		}
	}
	return valid
}

// formatCandidate formats a single shortlist entry.
func formatCandidate(sb *strings.Builder, num int, c *progressive.Candidate) {
	p := c.Practitioner

	fmt.Fprintf(sb, "### %d. %s (score: %.2f)\n", num, p.Name, c.Score)

	headline := make([]string, 0, 3)
	if p.Title != "" {
		headline = append(headline, p.Title)
	}
	if p.Specialty != "" {
		headline = append(headline, p.Specialty)
	}
	if p.AddressLocality != "" {
		headline = append(headline, p.AddressLocality)
	}
	if len(headline) > 0 {
		fmt.Fprintf(sb, "%s\n", strings.Join(headline, ", "))
	}

	if len(p.Subspecialties) > 0 {
		subs := p.Subspecialties
		if len(subs) > 3 {
			subs = subs[:3]
		}
		fmt.Fprintf(sb, "**Focus:** %s\n", strings.Join(subs, ", "))
	}
	if p.Distance != nil {
		fmt.Fprintf(sb, "**Distance:** %.1f miles\n", *p.Distance)
	}
	if c.FitCategory != progressive.FitUnevaluated {
		fit := string(c.FitCategory)
		if c.EvaluationReason != "" {
			fit = fmt.Sprintf("%s (%s)", fit, c.EvaluationReason)
		}
		fmt.Fprintf(sb, "**Fit:** %s\n", fit)
	}
	if reason := generateMatchReason(c); reason != "" {
		fmt.Fprintf(sb, "**Why:** %s\n", reason)
	}
	if p.ProfileURL != "" {
		fmt.Fprintf(sb, "[Profile](%s)\n", p.ProfileURL)
	}

	sb.WriteString("\n")
}

// ToPractitionerOutput converts a shortlist candidate to the structured
// output format, with a human-readable reason explaining WHY it ranked.
func ToPractitionerOutput(c *progressive.Candidate) PractitionerOutput {
	if c == nil || c.ScoredResult == nil || c.Practitioner == nil {
		return PractitionerOutput{}
	}

	p := c.Practitioner
	output := PractitionerOutput{
		ID:            p.ID,
		Rank:          c.Rank,
		Name:          p.Name,
		Title:         p.Title,
		Specialty:     p.Specialty,
		Locality:      p.AddressLocality,
		DistanceMiles: p.Distance,
		Score:         c.Score,
		ProfileURL:    p.ProfileURL,
		MatchReason:   generateMatchReason(c),
	}

	if len(p.Subspecialties) > 0 {
		output.Subspecialties = append([]string(nil), p.Subspecialties...)
	}
	if c.FitCategory != progressive.FitUnevaluated {
		output.FitCategory = string(c.FitCategory)
		output.FitReason = c.EvaluationReason
	}

	return output
}

// generateMatchReason creates a human-readable explanation of why a candidate ranked.
func generateMatchReason(c *progressive.Candidate) string {
	if c == nil || c.ScoredResult == nil {
		return ""
	}

	var parts []string

	r := c.Rescoring
	if r.IntentMatches > 0 {
		parts = append(parts, fmt.Sprintf("intent terms: %d", r.IntentMatches))
	}
	if r.AnchorMatches > 0 {
		parts = append(parts, fmt.Sprintf("anchor phrases: %d", r.AnchorMatches))
	}
	if r.SubspecialtyBoost > 0 {
		parts = append(parts, "subspecialty match")
	}
	if c.ExactMatchBonus > 0 {
		parts = append(parts, "exact phrase in profile")
	}
	if c.NormalizedSemantic > 0 {
		parts = append(parts, "semantic similarity")
	}
	if r.NegativeMatches > 0 {
		parts = append(parts, fmt.Sprintf("contraindicated terms: %d", r.NegativeMatches))
	}

	if len(parts) == 0 {
		return "keyword relevance"
	}

	return strings.Join(parts, "; ")
}
