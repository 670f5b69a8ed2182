package progressive

import (
	"context"
	"log/slog"
	"sort"

	"github.com/caresearch/medrank/internal/corpus"
	"github.com/caresearch/medrank/internal/rank"
)

// state is one node of the controller state machine.
type state int

const (
	stateInit state = iota
	stateEvaluate
	stateDecide
	stateRefetch
	stateTerminate
)

// Controller runs the progressive refinement loop. A controller serves
// one request; build a fresh one per run.
type Controller struct {
	rankFn    RankFunc
	evaluator Evaluator
	cfg       Config
	logger    *slog.Logger

	sctx *rank.SessionContext

	// Run state.
	pool       []*Candidate
	seen       map[string]*Candidate
	iterations int
	evaluated  int
	exhausted  bool
	evalFailed bool
}

// Option configures a controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// NewController builds a controller. rankFn must honor the zero-score
// filler contract: asking for n candidates returns min(n, pool) in a
// deterministic order, which makes deepening by n+batch stable.
func NewController(rankFn RankFunc, evaluator Evaluator, sctx *rank.SessionContext, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		rankFn:    rankFn,
		evaluator: evaluator,
		cfg:       cfg.withDefaults(),
		logger:    slog.Default(),
		sctx:      sctx,
		seen:      make(map[string]*Candidate),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run drives the state machine to termination. Cancellation never
// surfaces as an error: the best-known shortlist is returned with
// TerminationReason = cancelled. Only a failing rank pass aborts the run.
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	var newlyFetched []*Candidate
	reason := TerminationReason("")

	current := stateInit
	for current != stateTerminate {
		if err := ctx.Err(); err != nil {
			reason = ReasonCancelled
			break
		}

		switch current {
		case stateInit:
			batch, err := c.fetch(ctx, c.cfg.ShortlistSize)
			if err != nil {
				if ctx.Err() != nil {
					reason = ReasonCancelled
					current = stateTerminate
					continue
				}
				return nil, err
			}
			c.iterations = 1
			newlyFetched = batch
			current = stateEvaluate

		case stateEvaluate:
			c.evaluate(ctx, newlyFetched)
			c.mergeOrder()
			current = stateDecide

		case stateDecide:
			reason = c.decide()
			if reason != "" {
				current = stateTerminate
				continue
			}
			current = stateRefetch

		case stateRefetch:
			batch, err := c.fetch(ctx, c.cfg.BatchSize)
			if err != nil {
				if ctx.Err() != nil {
					reason = ReasonCancelled
					current = stateTerminate
					continue
				}
				return nil, err
			}
			if len(batch) == 0 {
				c.exhausted = true
				current = stateDecide
				continue
			}
			c.iterations++
			newlyFetched = batch
			current = stateEvaluate
		}
	}

	if reason == "" {
		reason = ReasonNoMoreCandidates
	}
	return c.result(reason), nil
}

// fetch deepens the ranking by want candidates, skipping ids already in
// the pool. Returns fewer than want only when the pool is exhausted.
func (c *Controller) fetch(ctx context.Context, want int) ([]*Candidate, error) {
	depth := len(c.pool) + want
	ranked, err := c.rankFn(ctx, depth)
	if err != nil {
		return nil, err
	}
	if len(ranked) < depth {
		c.exhausted = true
	}

	batch := make([]*Candidate, 0, want)
	for _, r := range ranked {
		if _, ok := c.seen[r.Practitioner.ID]; ok {
			continue
		}
		cand := &Candidate{ScoredResult: r, IterationFound: c.iterations + 1}
		c.seen[r.Practitioner.ID] = cand
		c.pool = append(c.pool, cand)
		batch = append(batch, cand)
		if len(batch) == want {
			break
		}
	}
	return batch, nil
}

// evaluate sends the not-yet-judged slice of batch to the evaluator,
// respecting the review budget. An evaluator failure leaves the batch
// unlabeled and flags the run so the next decision terminates.
func (c *Controller) evaluate(ctx context.Context, batch []*Candidate) {
	budget := c.cfg.MaxProfilesReviewed - c.evaluated
	if budget <= 0 || len(batch) == 0 {
		return
	}
	if len(batch) > budget {
		batch = batch[:budget]
	}

	toEvaluate := make([]*rank.ScoredResult, len(batch))
	for i, cand := range batch {
		toEvaluate[i] = cand.ScoredResult
	}

	evaluations, err := c.evaluator.Evaluate(ctx, c.sctx, toEvaluate)
	if err != nil {
		c.evalFailed = true
		c.logger.Warn("fit evaluation failed, iteration completes without labels",
			slog.Int("iteration", c.iterations),
			slog.String("error", err.Error()))
		return
	}

	c.evaluated += len(batch)

	byID := make(map[string]Evaluation, len(evaluations))
	for _, ev := range evaluations {
		byID[ev.ID] = ev
	}
	for _, cand := range batch {
		if ev, ok := byID[cand.Practitioner.ID]; ok {
			cand.FitCategory = ev.Category
			cand.EvaluationReason = ev.Reason
		}
	}
}

// mergeOrder re-sorts the pool by fit category, then score. The sort is
// stable so candidates tied on both keep their retrieval order.
func (c *Controller) mergeOrder() {
	sort.SliceStable(c.pool, func(i, j int) bool {
		ri, rj := categoryRank(c.pool[i].FitCategory), categoryRank(c.pool[j].FitCategory)
		if ri != rj {
			return ri > rj
		}
		return c.pool[i].Score > c.pool[j].Score
	})
}

// decide checks the termination conditions in their documented order and
// returns the reason to stop, or empty to refetch.
func (c *Controller) decide() TerminationReason {
	if c.topKExcellent() {
		return ReasonTopKExcellent
	}
	if c.evalFailed {
		return ReasonEvaluationFailed
	}
	if c.evaluated >= c.cfg.MaxProfilesReviewed {
		return ReasonMaxProfilesReviewed
	}
	if c.iterations >= c.cfg.MaxIterations {
		return ReasonMaxIterations
	}
	if c.exhausted {
		return ReasonNoMoreCandidates
	}
	return ""
}

// topKExcellent reports whether the leading TargetTopK candidates are
// all excellent. A pool smaller than the target never satisfies it; the
// exhaustion check handles that case.
func (c *Controller) topKExcellent() bool {
	if len(c.pool) < c.cfg.TargetTopK {
		return false
	}
	for _, cand := range c.pool[:c.cfg.TargetTopK] {
		if cand.FitCategory != FitExcellent {
			return false
		}
	}
	return true
}

// result truncates the merged pool to the shortlist size and assigns
// dense ranks.
func (c *Controller) result(reason TerminationReason) *Result {
	shortlist := c.pool
	if len(shortlist) > c.cfg.ShortlistSize {
		shortlist = shortlist[:c.cfg.ShortlistSize]
	}
	for i, cand := range shortlist {
		cand.Rank = i + 1
	}

	c.logger.Debug("progressive run finished",
		slog.Int("iterations", c.iterations),
		slog.Int("profiles_evaluated", c.evaluated),
		slog.Int("shortlist", len(shortlist)),
		slog.String("reason", string(reason)))

	return &Result{
		Shortlist:         shortlist,
		Iterations:        c.iterations,
		ProfilesEvaluated: c.evaluated,
		TerminationReason: reason,
	}
}

// BindEngine adapts the two-stage engine to a RankFunc, honoring the
// fetch strategy: stage-b deepens the rescored ranking, stage-a deepens
// raw retrieval.
func BindEngine(e *rank.Engine, candidates []*corpus.Practitioner, sctx *rank.SessionContext, opts rank.Options, strategy string) RankFunc {
	return func(ctx context.Context, n int) ([]*rank.ScoredResult, error) {
		o := opts
		o.TopN = n
		if strategy == FetchStageA {
			query := rank.BuildStageAQuery(sctx, o.NameFilter, e.Config())
			return e.StageA(ctx, candidates, query, o)
		}
		return e.Rank(ctx, candidates, sctx, o)
	}
}
