package progressive

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/caresearch/medrank/internal/corpus"
	rankerr "github.com/caresearch/medrank/internal/errors"
	"github.com/caresearch/medrank/internal/llm"
	"github.com/caresearch/medrank/internal/rank"
)

// evaluatorPrompt judges a batch of candidates in one call.
// %s placeholders: patient query, intent summary, numbered profiles.
const evaluatorPrompt = `You judge how well each medical practitioner fits a patient's request.

Patient request: %s
%s
Practitioners:
%s

For EVERY practitioner above, respond with ONLY a JSON object:
{
  "evaluations": [
    {"id": "practitioner id", "category": "excellent" | "good" | "ill_fit", "reason": "one short sentence"}
  ]
}

Definitions:
- excellent: subspecialty and procedure experience directly match the request.
- good: right specialty, plausible fit, but not clearly the best match.
- ill_fit: wrong subspecialty or wrong kind of practitioner for this request.`

// maxExpertiseChars truncates long expertise blobs in the prompt.
const maxExpertiseChars = 240

// FitEvaluator judges candidate fit with a single batched LLM call.
type FitEvaluator struct {
	client llm.Client
}

// NewFitEvaluator builds an evaluator on client.
func NewFitEvaluator(client llm.Client) *FitEvaluator {
	return &FitEvaluator{client: client}
}

var _ Evaluator = (*FitEvaluator)(nil)

// evaluationResponse is the wire shape of the evaluator reply.
type evaluationResponse struct {
	Evaluations []Evaluation `json:"evaluations"`
}

// Evaluate labels every candidate in batch. The call is judged as a
// whole: a transport or parse failure returns an error and no labels.
func (e *FitEvaluator) Evaluate(ctx context.Context, sctx *rank.SessionContext, batch []*rank.ScoredResult) ([]Evaluation, error) {
	if len(batch) == 0 {
		return []Evaluation{}, nil
	}

	prompt := fmt.Sprintf(evaluatorPrompt, sctx.QPatient, intentSummary(sctx), profileList(batch))

	raw, err := e.client.Complete(ctx, llm.Request{
		Prompt:      prompt,
		Temperature: 0.1,
		JSONMode:    true,
	})
	if err != nil {
		return nil, err
	}

	var parsed evaluationResponse
	if err := json.Unmarshal([]byte(llm.ExtractJSON(raw)), &parsed); err != nil {
		return nil, rankerr.New(rankerr.ErrCodeLLMMalformed, "parse fit evaluation response", err)
	}

	out := make([]Evaluation, 0, len(parsed.Evaluations))
	for _, ev := range parsed.Evaluations {
		ev.Category = normalizeCategory(ev.Category)
		if strings.TrimSpace(ev.ID) == "" {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// intentSummary renders the structured intent lines included in the
// prompt, omitting empty signals.
func intentSummary(sctx *rank.SessionContext) string {
	var b strings.Builder
	if len(sctx.AnchorPhrases) > 0 {
		fmt.Fprintf(&b, "Explicitly mentioned: %s\n", strings.Join(sctx.AnchorPhrases, "; "))
	}
	if len(sctx.LikelySubspecialties) > 0 {
		names := make([]string, len(sctx.LikelySubspecialties))
		for i, s := range sctx.LikelySubspecialties {
			names[i] = s.Name
		}
		fmt.Fprintf(&b, "Likely subspecialties: %s\n", strings.Join(names, "; "))
	}
	if sctx.IdealProfile != "" {
		fmt.Fprintf(&b, "Ideal profile: %s\n", sctx.IdealProfile)
	}
	return b.String()
}

// profileList renders one numbered line per candidate with the fields
// the evaluator needs.
func profileList(batch []*rank.ScoredResult) string {
	var b strings.Builder
	for i, r := range batch {
		p := r.Practitioner
		fmt.Fprintf(&b, "%d. id=%s %s", i+1, p.ID, p.Name)
		if p.Specialty != "" {
			fmt.Fprintf(&b, " | %s", p.Specialty)
		}
		if len(p.Subspecialties) > 0 {
			fmt.Fprintf(&b, " | subspecialties: %s", strings.Join(p.Subspecialties, ", "))
		}
		if procs := topProcedures(p, 4); procs != "" {
			fmt.Fprintf(&b, " | procedures: %s", procs)
		}
		if p.ClinicalExpertise != "" {
			fmt.Fprintf(&b, " | expertise: %s", truncate(p.ClinicalExpertise, maxExpertiseChars))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// topProcedures lists up to n procedure names with volumes.
func topProcedures(p *corpus.Practitioner, n int) string {
	if len(p.ProcedureGroups) == 0 {
		return ""
	}
	groups := p.ProcedureGroups
	if len(groups) > n {
		groups = groups[:n]
	}
	parts := make([]string, len(groups))
	for i, g := range groups {
		parts[i] = fmt.Sprintf("%s (%d)", g.Name, g.AdmissionCount)
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// normalizeCategory maps evaluator spellings onto the category set. An
// unrecognized label counts as good: it neither satisfies the top-k
// check nor sinks a candidate the model may have liked.
func normalizeCategory(c FitCategory) FitCategory {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(string(c)), "-", "_")) {
	case "excellent":
		return FitExcellent
	case "good":
		return FitGood
	case "ill_fit", "illfit", "poor":
		return FitIllFit
	default:
		return FitGood
	}
}
