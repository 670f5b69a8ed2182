// Package ranker is the public entry point to the medrank ranking core.
// It wires query understanding, the hard-filter pipeline, the rank
// engines and the progressive controller behind one call, RankShortlist,
// which the CLI, daemon and MCP surfaces all share.
package ranker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/caresearch/medrank/internal/corpus"
	"github.com/caresearch/medrank/internal/filters"
	"github.com/caresearch/medrank/internal/intent"
	"github.com/caresearch/medrank/internal/llm"
	"github.com/caresearch/medrank/internal/progressive"
	"github.com/caresearch/medrank/internal/rank"
	"github.com/caresearch/medrank/internal/telemetry"
	"github.com/caresearch/medrank/internal/validation"
)

// ErrNilCorpus is returned when attempting to create a Ranker without a
// corpus provider.
var ErrNilCorpus = errors.New("corpus provider is required")

// ErrNilClient is returned when attempting to create a Ranker without an
// LLM client.
var ErrNilClient = errors.New("llm client is required")

// Pipeline variant names accepted by Request.Variant.
const (
	VariantLegacy   = "legacy"
	VariantTwoStage = "two-stage"
	VariantV5       = "v5"
	VariantV6       = "v6"
)

// DefaultTopK is the shortlist size used when a request does not set one.
const DefaultTopK = 12

// DefaultSemanticWeight mixes normalized semantic scores into Stage A
// when a request does not override the weight.
const DefaultSemanticWeight = 0.3

// Service is the ranking interface the daemon and MCP surfaces depend
// on. Implementations must be safe for concurrent use.
type Service interface {
	RankShortlist(ctx context.Context, req Request) (*Response, error)
}

// ScoreProvider supplies per-request semantic scores keyed by
// practitioner id. Implementations report readiness so a cold index
// degrades to BM25-only ranking instead of failing requests.
type ScoreProvider interface {
	Ready() bool
	Scores(ctx context.Context, query string) (map[string]float64, error)
}

// Request is one ranking call.
type Request struct {
	// Query is the patient's free-text request. When empty, the latest
	// user turn of Conversation is used instead.
	Query string `json:"query"`

	// Conversation is the preceding dialogue, oldest first.
	Conversation []intent.Turn `json:"conversation,omitempty"`

	// Filters are the hard constraints narrowed before ranking.
	// Location.RadiusCenter carries a pre-geocoded center when the
	// caller already resolved one.
	Filters filters.Criteria `json:"filters"`

	// Variant selects the pipeline: legacy, two-stage, v5 or v6. Empty
	// uses the ranker default.
	Variant string `json:"variant,omitempty"`

	// TopK is the shortlist size; zero uses the ranker default.
	TopK int `json:"top_k,omitempty"`

	// Overrides tune the ranking config for this request only. Values
	// outside sanity bounds reject the request.
	Overrides *rank.Overrides `json:"overrides,omitempty"`

	// Semantic supplies precomputed semantic scores, or just a mixing
	// weight when the ranker's own score provider should compute them.
	// Weight zero uses the ranker default.
	Semantic *rank.SemanticOptions `json:"semantic,omitempty"`

	// Progressive overrides the v6 controller bounds. Zero fields keep
	// the configured defaults. Ignored by other variants.
	Progressive *progressive.Config `json:"progressive,omitempty"`

	// EvaluateFit annotates the final two-stage or v5 shortlist with
	// fit categories from one batched evaluator call. V6 evaluates as
	// part of its loop and ignores the flag.
	EvaluateFit bool `json:"evaluate_fit,omitempty"`

	// Legacy carries the single-stage keyword fields. Only the legacy
	// variant reads it; SearchQuery falls back to Query.
	Legacy *rank.LegacyRequest `json:"legacy,omitempty"`

	// NameFilter biases Stage A retrieval toward a practitioner name.
	NameFilter string `json:"name_filter,omitempty"`

	// LocationHint is free text forwarded to the insights prompt.
	LocationHint string `json:"location_hint,omitempty"`

	// BypassCache skips the intent cache for this request.
	BypassCache bool `json:"bypass_cache,omitempty"`

	// RequestID labels logs and telemetry; empty generates one.
	RequestID string `json:"request_id,omitempty"`
}

// Diagnostics reports how a request was served. Fields are data first:
// surfaces render them, logs are derived from them.
type Diagnostics struct {
	RequestID        string              `json:"request_id"`
	Variant          string              `json:"variant"`
	CandidatesIn     int                 `json:"candidates_in"`
	CandidatesRanked int                 `json:"candidates_ranked"`
	FilterEmpty      bool                `json:"filter_empty"`
	FilterSteps      []filters.StepCount `json:"filter_steps"`
	SemanticApplied  bool                `json:"semantic_applied"`
	Intent           intent.Info         `json:"intent"`

	// Progressive metadata, present for v6 runs and fit-annotation
	// passes.
	Iterations        int    `json:"iterations,omitempty"`
	ProfilesEvaluated int    `json:"profiles_evaluated,omitempty"`
	TerminationReason string `json:"termination_reason,omitempty"`

	IntentDuration   time.Duration `json:"intent_duration"`
	RankDuration     time.Duration `json:"rank_duration"`
	EvaluateDuration time.Duration `json:"evaluate_duration"`
	TotalDuration    time.Duration `json:"total_duration"`
}

// Response is one completed ranking call.
type Response struct {
	// Shortlist is ranked best first. Entries carry fit categories when
	// the variant evaluated them; otherwise FitCategory is empty.
	Shortlist []*progressive.Candidate `json:"shortlist"`

	// SessionContext is the structured intent ranking ran on. Nil for
	// legacy requests and filter-empty short circuits.
	SessionContext *rank.SessionContext `json:"session_context,omitempty"`

	Diagnostics Diagnostics `json:"diagnostics"`
}

// Scored strips fit annotations, for surfaces that render plain
// shortlists.
func Scored(shortlist []*progressive.Candidate) []*rank.ScoredResult {
	out := make([]*rank.ScoredResult, len(shortlist))
	for i, c := range shortlist {
		out[i] = c.ScoredResult
	}
	return out
}

// Ranker implements Service over a loaded corpus.
type Ranker struct {
	provider *corpus.Provider
	client   llm.Client
	pipeline *filters.Pipeline
	intents  *intent.Engine
	semantic ScoreProvider
	metrics  *telemetry.Metrics
	logger   *slog.Logger

	baseCfg        rank.Config
	progCfg        progressive.Config
	semWeight      float64
	defaultTopK    int
	defaultVariant string
}

var _ Service = (*Ranker)(nil)

// Option configures a Ranker.
type Option func(*Ranker)

// WithLogger sets the ranker logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Ranker) {
		r.logger = logger
	}
}

// WithRankConfig sets the base ranking configuration requests start
// from. Request overrides apply on top.
func WithRankConfig(cfg rank.Config) Option {
	return func(r *Ranker) {
		r.baseCfg = cfg
	}
}

// WithProgressiveConfig sets the default v6 controller bounds.
func WithProgressiveConfig(cfg progressive.Config) Option {
	return func(r *Ranker) {
		r.progCfg = cfg
	}
}

// WithLocationFilter sets the location filter used by the hard-filter
// pipeline. The default is the built-in outcode locator.
func WithLocationFilter(loc filters.LocationFilter) Option {
	return func(r *Ranker) {
		r.pipeline = filters.NewPipeline(loc)
	}
}

// WithSemantic enables the semantic score provider. Weight zero keeps
// DefaultSemanticWeight.
func WithSemantic(p ScoreProvider, weight float64) Option {
	return func(r *Ranker) {
		r.semantic = p
		if weight > 0 {
			r.semWeight = weight
		}
	}
}

// WithMetrics records completed requests into m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Ranker) {
		r.metrics = m
	}
}

// WithDefaultVariant sets the pipeline used when requests name none.
func WithDefaultVariant(variant string) Option {
	return func(r *Ranker) {
		r.defaultVariant = variant
	}
}

// WithDefaultTopK sets the shortlist size used when requests pass zero.
func WithDefaultTopK(n int) Option {
	return func(r *Ranker) {
		r.defaultTopK = n
	}
}

// New creates a Ranker over provider, using client for query
// understanding and fit evaluation.
func New(provider *corpus.Provider, client llm.Client, opts ...Option) (*Ranker, error) {
	if provider == nil {
		return nil, ErrNilCorpus
	}
	if client == nil {
		return nil, ErrNilClient
	}

	r := &Ranker{
		provider:       provider,
		client:         client,
		logger:         slog.Default(),
		baseCfg:        rank.DefaultConfig(),
		progCfg:        progressive.DefaultConfig(),
		semWeight:      DefaultSemanticWeight,
		defaultTopK:    DefaultTopK,
		defaultVariant: VariantTwoStage,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.pipeline == nil {
		r.pipeline = filters.NewPipeline(nil)
	}
	r.intents = intent.NewEngine(client, intent.WithLogger(r.logger))

	if err := r.baseCfg.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// IntentCacheLen reports how many understood queries are cached, for
// status surfaces.
func (r *Ranker) IntentCacheLen() int {
	return r.intents.CacheLen()
}

// RankShortlist runs one ranking request end to end. Validation and
// config errors surface to the caller; LLM trouble degrades through
// per-task fallbacks; hard filters leaving no candidates returns an
// empty shortlist with diagnostics, not an error. Cancellation
// propagates, except in v6 where the best-known shortlist is returned
// with TerminationReason cancelled.
func (r *Ranker) RankShortlist(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	variant := req.Variant
	if variant == "" {
		variant = r.defaultVariant
	}
	topK := req.TopK
	if topK == 0 {
		topK = r.defaultTopK
	}

	if err := r.validate(req, variant, topK); err != nil {
		return nil, err
	}

	engine, err := rank.NewEngine(r.baseCfg.Apply(req.Overrides))
	if err != nil {
		return nil, err
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	logger := r.logger.With(
		slog.String("request_id", requestID),
		slog.String("variant", variant))

	diag := Diagnostics{RequestID: requestID, Variant: variant}
	query := effectiveQuery(req)

	candidates := r.provider.Corpus().All()
	diag.CandidatesIn = len(candidates)

	survivors, steps := r.pipeline.Apply(candidates, req.Filters)
	diag.FilterSteps = steps
	if len(survivors) == 0 {
		diag.FilterEmpty = true
		diag.TotalDuration = time.Since(start)
		logger.Info("hard filters left no candidates",
			slog.Int("candidates_in", diag.CandidatesIn))
		resp := &Response{Shortlist: []*progressive.Candidate{}, Diagnostics: diag}
		r.record(query, resp)
		return resp, nil
	}

	var sctx *rank.SessionContext
	if variant != VariantLegacy {
		sctx, diag.Intent, err = r.intents.Understand(ctx, intent.Params{
			Query:               req.Query,
			Conversation:        req.Conversation,
			Location:            req.LocationHint,
			BypassCache:         req.BypassCache,
			IncludeIdealProfile: variant == VariantV5,
		})
		if err != nil {
			return nil, err
		}
		diag.IntentDuration = diag.Intent.Duration
	}

	opts := rank.Options{
		TopN:       topK,
		SearchType: searchType(req.Filters.Location),
		NameFilter: req.NameFilter,
	}
	if variant != VariantLegacy {
		opts.Semantic = r.semanticOptions(ctx, req, query, logger)
		diag.SemanticApplied = opts.Semantic != nil
	}

	rankStart := time.Now()
	var shortlist []*progressive.Candidate

	switch variant {
	case VariantLegacy:
		results, rerr := engine.RankLegacy(ctx, survivors, legacyRequest(req), opts)
		if rerr != nil {
			return nil, rerr
		}
		shortlist = wrapScored(results)

	case VariantV6:
		cfg := r.progressiveConfig(req, topK)
		ctrl := progressive.NewController(
			progressive.BindEngine(engine, survivors, sctx, opts, cfg.FetchStrategy),
			progressive.NewFitEvaluator(r.client),
			sctx, cfg,
			progressive.WithLogger(logger))
		result, rerr := ctrl.Run(ctx)
		if rerr != nil {
			return nil, rerr
		}
		shortlist = result.Shortlist
		diag.Iterations = result.Iterations
		diag.ProfilesEvaluated = result.ProfilesEvaluated
		diag.TerminationReason = string(result.TerminationReason)

	default: // two-stage, v5
		results, rerr := engine.Rank(ctx, survivors, sctx, opts)
		if rerr != nil {
			return nil, rerr
		}
		shortlist = wrapScored(results)
		if req.EvaluateFit {
			evalStart := time.Now()
			evaluated, ferr := r.annotateFit(ctx, sctx, shortlist, logger)
			if ferr != nil {
				return nil, ferr
			}
			diag.ProfilesEvaluated = evaluated
			diag.EvaluateDuration = time.Since(evalStart)
		}
	}

	diag.RankDuration = time.Since(rankStart) - diag.EvaluateDuration
	diag.CandidatesRanked = len(survivors)
	diag.TotalDuration = time.Since(start)

	resp := &Response{Shortlist: shortlist, SessionContext: sctx, Diagnostics: diag}
	r.record(query, resp)

	rank.LogScores(logger, Scored(shortlist))
	logger.Info("rank request served",
		slog.Int("shortlist", len(shortlist)),
		slog.Int("candidates", len(survivors)),
		slog.Duration("total", diag.TotalDuration))

	return resp, nil
}

// validate applies the request-level checks shared by every surface.
func (r *Ranker) validate(req Request, variant string, topK int) error {
	if err := validation.ValidateVariant(variant); err != nil {
		return err
	}
	if err := validation.ValidateTopK(topK); err != nil {
		return err
	}
	if variant == VariantLegacy {
		if err := validation.ValidateQuery(legacyRequest(req).Query()); err != nil {
			return err
		}
	} else {
		if err := validation.ValidateQuery(effectiveQuery(req)); err != nil {
			return err
		}
	}
	if err := validation.ValidateConversation(req.Conversation); err != nil {
		return err
	}
	if req.Semantic != nil {
		if err := validation.ValidateSemanticWeight(req.Semantic.Weight); err != nil {
			return err
		}
	}
	if p := req.Progressive; p != nil {
		if err := validation.ValidateProgressiveBounds(
			p.TargetTopK, p.BatchSize, p.MaxIterations, p.MaxProfilesReviewed); err != nil {
			return err
		}
	}
	return nil
}

// semanticOptions resolves the semantic scores for one request:
// caller-supplied scores win, otherwise the configured provider computes
// them. Provider trouble degrades to BM25-only ranking.
func (r *Ranker) semanticOptions(ctx context.Context, req Request, query string, logger *slog.Logger) *rank.SemanticOptions {
	weight := r.semWeight
	if req.Semantic != nil && req.Semantic.Weight > 0 {
		weight = req.Semantic.Weight
	}

	if req.Semantic != nil && (len(req.Semantic.ByID) > 0 || len(req.Semantic.ByName) > 0) {
		supplied := *req.Semantic
		supplied.Weight = weight
		return &supplied
	}

	if r.semantic == nil || !r.semantic.Ready() {
		return nil
	}
	scores, err := r.semantic.Scores(ctx, query)
	if err != nil {
		logger.Warn("semantic scoring unavailable", slog.String("error", err.Error()))
		return nil
	}
	if len(scores) == 0 {
		return nil
	}
	return &rank.SemanticOptions{Weight: weight, ByID: scores}
}

// annotateFit labels the shortlist with one batched evaluator call. An
// evaluator failure leaves the shortlist unlabeled; only cancellation
// propagates.
func (r *Ranker) annotateFit(ctx context.Context, sctx *rank.SessionContext, shortlist []*progressive.Candidate, logger *slog.Logger) (int, error) {
	if len(shortlist) == 0 {
		return 0, nil
	}

	evals, err := progressive.NewFitEvaluator(r.client).Evaluate(ctx, sctx, Scored(shortlist))
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return 0, cerr
		}
		logger.Warn("fit evaluation skipped", slog.String("error", err.Error()))
		return 0, nil
	}

	byID := make(map[string]progressive.Evaluation, len(evals))
	for _, e := range evals {
		byID[e.ID] = e
	}
	for _, c := range shortlist {
		if e, ok := byID[c.Practitioner.ID]; ok {
			c.FitCategory = e.Category
			c.EvaluationReason = e.Reason
		}
	}
	return len(shortlist), nil
}

// progressiveConfig merges request bounds over the configured defaults.
func (r *Ranker) progressiveConfig(req Request, topK int) progressive.Config {
	cfg := r.progCfg
	if o := req.Progressive; o != nil {
		if o.TargetTopK > 0 {
			cfg.TargetTopK = o.TargetTopK
		}
		if o.BatchSize > 0 {
			cfg.BatchSize = o.BatchSize
		}
		if o.MaxIterations > 0 {
			cfg.MaxIterations = o.MaxIterations
		}
		if o.MaxProfilesReviewed > 0 {
			cfg.MaxProfilesReviewed = o.MaxProfilesReviewed
		}
		if o.FetchStrategy != "" {
			cfg.FetchStrategy = o.FetchStrategy
		}
	}
	cfg.ShortlistSize = topK
	return cfg
}

// record captures one completed request. Validation failures and
// cancellations never reach here.
func (r *Ranker) record(query string, resp *Response) {
	if r.metrics == nil {
		return
	}
	d := resp.Diagnostics
	r.metrics.Record(telemetry.RankEvent{
		RequestID:         d.RequestID,
		Variant:           d.Variant,
		Query:             query,
		ShortlistSize:     len(resp.Shortlist),
		CandidatesIn:      d.CandidatesIn,
		CandidatesRanked:  d.CandidatesRanked,
		FilterEmpty:       d.FilterEmpty,
		IntentCacheHit:    d.Intent.CacheHit,
		LLMFallbacks:      fallbackCount(d.Intent),
		Iterations:        d.Iterations,
		ProfilesEvaluated: d.ProfilesEvaluated,
		TerminationReason: d.TerminationReason,
		IntentDuration:    d.IntentDuration,
		RankDuration:      d.RankDuration,
		EvaluateDuration:  d.EvaluateDuration,
		TotalDuration:     d.TotalDuration,
		Timestamp:         time.Now(),
	})
}

// fallbackCount counts understanding tasks that fell back to defaults.
func fallbackCount(info intent.Info) int {
	n := 0
	for _, fell := range []bool{info.InsightsFallback, info.GeneralFallback, info.ClinicalFallback} {
		if fell {
			n++
		}
	}
	return n
}

// effectiveQuery returns the text treated as the patient query: the
// request query, or the latest non-empty user turn when the query field
// is blank.
func effectiveQuery(req Request) string {
	if q := strings.TrimSpace(req.Query); q != "" {
		return q
	}
	for i := len(req.Conversation) - 1; i >= 0; i-- {
		t := req.Conversation[i]
		if strings.EqualFold(t.Role, "user") && strings.TrimSpace(t.Content) != "" {
			return strings.TrimSpace(t.Content)
		}
	}
	return ""
}

// legacyRequest assembles the single-stage request, defaulting the
// search query to the free-text query.
func legacyRequest(req Request) rank.LegacyRequest {
	lr := rank.LegacyRequest{}
	if req.Legacy != nil {
		lr = *req.Legacy
	}
	if strings.TrimSpace(lr.SearchQuery) == "" {
		lr.SearchQuery = req.Query
	}
	return lr
}

// searchType classifies the request location: distance searches carry
// annotated distances and qualify for the proximity boost, city matches
// do not.
func searchType(q *filters.LocationQuery) string {
	if q != nil && (strings.TrimSpace(q.Postcode) != "" || q.RadiusCenter != nil) {
		return rank.SearchTypePostcode
	}
	return rank.SearchTypeCity
}

// wrapScored lifts plain scored results into unevaluated candidates so
// every variant returns the same shortlist shape.
func wrapScored(results []*rank.ScoredResult) []*progressive.Candidate {
	out := make([]*progressive.Candidate, len(results))
	for i, r := range results {
		out[i] = &progressive.Candidate{ScoredResult: r}
	}
	return out
}
