// Package progressive implements the v6 ranking controller: a bounded
// rank, evaluate, refetch loop that keeps deepening retrieval until the
// top candidates are all judged excellent fits or a budget runs out.
package progressive

import (
	"context"

	"github.com/caresearch/medrank/internal/rank"
)

// FitCategory is the evaluator's judgment of one candidate.
type FitCategory string

const (
	FitExcellent   FitCategory = "excellent"
	FitGood        FitCategory = "good"
	FitIllFit      FitCategory = "ill_fit"
	FitUnevaluated FitCategory = ""
)

// categoryRank orders categories for merge sorting: evaluated candidates
// outrank unevaluated ones, and within evaluated, better fits first.
func categoryRank(c FitCategory) int {
	switch c {
	case FitExcellent:
		return 3
	case FitGood:
		return 2
	case FitIllFit:
		return 1
	default:
		return 0
	}
}

// TerminationReason explains why the controller stopped.
type TerminationReason string

const (
	ReasonTopKExcellent       TerminationReason = "top-k-excellent"
	ReasonMaxIterations       TerminationReason = "max-iterations"
	ReasonMaxProfilesReviewed TerminationReason = "max-profiles-reviewed"
	ReasonNoMoreCandidates    TerminationReason = "no-more-candidates"
	ReasonCancelled           TerminationReason = "cancelled"
	ReasonEvaluationFailed    TerminationReason = "evaluation-failed"
)

// Fetch strategies: stage-b deepens the full two-stage ranking, stage-a
// deepens BM25 retrieval without rescoring.
const (
	FetchStageB = "stage-b"
	FetchStageA = "stage-a"
)

// Config bounds one controller run.
type Config struct {
	// ShortlistSize is the number of candidates returned (K).
	ShortlistSize int `json:"shortlist_size"`
	// TargetTopK is how many leading candidates must be excellent to stop.
	TargetTopK int `json:"target_top_k"`
	// BatchSize is how many new candidates each refetch pulls.
	BatchSize int `json:"batch_size"`
	// MaxIterations bounds the outer loop.
	MaxIterations int `json:"max_iterations"`
	// MaxProfilesReviewed bounds total candidates sent to the evaluator.
	MaxProfilesReviewed int `json:"max_profiles_reviewed"`
	// FetchStrategy selects how refetch deepens: FetchStageB or
	// FetchStageA.
	FetchStrategy string `json:"fetch_strategy"`
}

// DefaultConfig returns the production controller bounds.
func DefaultConfig() Config {
	return Config{
		ShortlistSize:       12,
		TargetTopK:          3,
		BatchSize:           12,
		MaxIterations:       5,
		MaxProfilesReviewed: 30,
		FetchStrategy:       FetchStageB,
	}
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ShortlistSize <= 0 {
		c.ShortlistSize = d.ShortlistSize
	}
	if c.TargetTopK <= 0 {
		c.TargetTopK = d.TargetTopK
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.MaxProfilesReviewed <= 0 {
		c.MaxProfilesReviewed = d.MaxProfilesReviewed
	}
	if c.FetchStrategy != FetchStageA && c.FetchStrategy != FetchStageB {
		c.FetchStrategy = d.FetchStrategy
	}
	return c
}

// Candidate is a ranked result annotated with its evaluation.
type Candidate struct {
	*rank.ScoredResult

	FitCategory      FitCategory `json:"fit_category"`
	EvaluationReason string      `json:"evaluation_reason,omitempty"`
	// IterationFound is the 1-based iteration in which the candidate
	// first entered the pool.
	IterationFound int `json:"iteration_found"`
}

// Result is one finished controller run.
type Result struct {
	Shortlist         []*Candidate      `json:"shortlist"`
	Iterations        int               `json:"iterations"`
	ProfilesEvaluated int               `json:"profiles_evaluated"`
	TerminationReason TerminationReason `json:"termination_reason"`
}

// Evaluation is one evaluator judgment keyed by practitioner id.
type Evaluation struct {
	ID       string      `json:"id"`
	Category FitCategory `json:"category"`
	Reason   string      `json:"reason"`
}

// Evaluator labels a batch of candidates for fit against the patient
// query. One call per controller iteration.
type Evaluator interface {
	Evaluate(ctx context.Context, sctx *rank.SessionContext, batch []*rank.ScoredResult) ([]Evaluation, error)
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(ctx context.Context, sctx *rank.SessionContext, batch []*rank.ScoredResult) ([]Evaluation, error)

// Evaluate implements Evaluator.
func (f EvaluatorFunc) Evaluate(ctx context.Context, sctx *rank.SessionContext, batch []*rank.ScoredResult) ([]Evaluation, error) {
	return f(ctx, sctx, batch)
}

// RankFunc produces the top n ranked candidates for the request the
// controller is serving. Implementations must be deterministic for a
// fixed corpus and return min(n, pool size) results, which is what the
// rank engine's zero-score filler guarantees.
type RankFunc func(ctx context.Context, n int) ([]*rank.ScoredResult, error)
