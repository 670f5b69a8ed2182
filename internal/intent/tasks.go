package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	rankerr "github.com/caresearch/medrank/internal/errors"
	"github.com/caresearch/medrank/internal/llm"
	"github.com/caresearch/medrank/internal/rank"
)

// Task temperatures. Classification wants near-greedy decoding; the
// ideal-profile sketch tolerates a little more freedom.
const (
	classifyTemperature = 0.1
	profileTemperature  = 0.4
)

// runInsights executes the conversation-summary task.
func (e *Engine) runInsights(ctx context.Context, p Params) (Insights, error) {
	prompt := fmt.Sprintf(insightsPrompt, p.transcript(), p.Location)

	raw, err := e.client.Complete(ctx, llm.Request{
		Prompt:      prompt,
		Temperature: classifyTemperature,
		JSONMode:    true,
	})
	if err != nil {
		return fallbackInsights(), err
	}

	var result Insights
	if err := json.Unmarshal([]byte(llm.ExtractJSON(raw)), &result); err != nil {
		return fallbackInsights(), rankerr.New(rankerr.ErrCodeLLMMalformed, "parse insights response", err)
	}
	if result.Symptoms == nil {
		result.Symptoms = []string{}
	}
	if result.Preferences == nil {
		result.Preferences = []string{}
	}
	return result, nil
}

// runGeneral executes the general intent classification.
func (e *Engine) runGeneral(ctx context.Context, p Params) (generalResult, error) {
	prompt := fmt.Sprintf(generalIntentPrompt, p.lastUserTurn())

	raw, err := e.client.Complete(ctx, llm.Request{
		Prompt:      prompt,
		Temperature: classifyTemperature,
		JSONMode:    true,
	})
	if err != nil {
		return fallbackGeneral(), err
	}

	var result generalResult
	if err := json.Unmarshal([]byte(llm.ExtractJSON(raw)), &result); err != nil {
		return fallbackGeneral(), rankerr.New(rankerr.ErrCodeLLMMalformed, "parse general intent response", err)
	}
	sanitizeGeneral(&result)
	return result, nil
}

// runClinical executes the clinical intent classification.
func (e *Engine) runClinical(ctx context.Context, p Params) (clinicalResult, error) {
	tags := []string{
		ClinicalIntentProcedureRequest,
		ClinicalIntentSymptomAssessment,
		ClinicalIntentConditionManagement,
		ClinicalIntentScreeningCheck,
		ClinicalIntentSecondOpinion,
		ClinicalIntentPostOperativeCare,
	}
	prompt := fmt.Sprintf(clinicalIntentPrompt, strings.Join(tags, ", "), p.lastUserTurn())

	raw, err := e.client.Complete(ctx, llm.Request{
		Prompt:      prompt,
		Temperature: classifyTemperature,
		JSONMode:    true,
	})
	if err != nil {
		return fallbackClinical(), err
	}

	var result clinicalResult
	if err := json.Unmarshal([]byte(llm.ExtractJSON(raw)), &result); err != nil {
		return fallbackClinical(), rankerr.New(rankerr.ErrCodeLLMMalformed, "parse clinical intent response", err)
	}
	sanitizeClinical(&result)
	return result, nil
}

// runIdealProfile generates the v5 ideal-practitioner sketch. Failure is
// non-fatal: the context just carries no profile.
func (e *Engine) runIdealProfile(ctx context.Context, p Params) (string, error) {
	raw, err := e.client.Complete(ctx, llm.Request{
		Prompt:      fmt.Sprintf(idealProfilePrompt, p.lastUserTurn()),
		Temperature: profileTemperature,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

// sanitizeGeneral clamps model output to the documented ranges and
// replaces unknown enum values with the conservative defaults.
func sanitizeGeneral(r *generalResult) {
	switch r.Goal {
	case rank.GoalDiagnosticWorkup, rank.GoalProcedureIntervention,
		rank.GoalOngoingManagement, rank.GoalSecondOpinion:
	default:
		r.Goal = fallbackGoal
	}
	switch r.Specificity {
	case rank.SpecificitySymptomOnly, rank.SpecificityConfirmedDiagnosis, rank.SpecificityNamedProcedure:
	default:
		r.Specificity = fallbackSpecificity
	}
	r.Confidence = clampUnit(r.Confidence)

	r.ExpansionTerms = cleanTerms(r.ExpansionTerms, 10)
	r.NegativeTerms = cleanTerms(r.NegativeTerms, 10)
	r.AnchorPhrases = cleanTerms(r.AnchorPhrases, 3)
	r.SafeLaneTerms = cleanTerms(r.SafeLaneTerms, 4)
	r.LikelySubspecialties = cleanSubspecialties(r.LikelySubspecialties)
}

// sanitizeClinical clamps the clinical output; an unknown primary intent
// becomes symptom_assessment.
func sanitizeClinical(r *clinicalResult) {
	if _, ok := clinicalIntentTags[strings.ToLower(strings.TrimSpace(r.PrimaryIntent))]; ok {
		r.PrimaryIntent = strings.ToLower(strings.TrimSpace(r.PrimaryIntent))
	} else {
		r.PrimaryIntent = ClinicalIntentSymptomAssessment
	}
	r.ExpansionTerms = cleanTerms(r.ExpansionTerms, 12)
	r.NegativeTerms = cleanTerms(r.NegativeTerms, 8)
	r.LikelySubspecialties = cleanSubspecialties(r.LikelySubspecialties)
}

// cleanTerms trims, drops empties, and caps the slice.
func cleanTerms(terms []string, limit int) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		out = append(out, t)
		if len(out) == limit {
			break
		}
	}
	return out
}

// cleanSubspecialties trims names, clamps confidence, and drops empties.
func cleanSubspecialties(subs []rank.Subspecialty) []rank.Subspecialty {
	out := make([]rank.Subspecialty, 0, len(subs))
	for _, s := range subs {
		s.Name = strings.TrimSpace(s.Name)
		if s.Name == "" {
			continue
		}
		s.Confidence = clampUnit(s.Confidence)
		out = append(out, s)
	}
	return out
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
