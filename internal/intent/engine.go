package intent

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/caresearch/medrank/internal/llm"
	"github.com/caresearch/medrank/internal/rank"
)

// Engine runs query understanding. It is safe for concurrent use; all
// mutable state lives in the LRU cache, which is itself synchronized.
type Engine struct {
	client llm.Client
	cache  *contextCache
	logger *slog.Logger
}

// Option configures the engine.
type Option func(*Engine)

// WithCacheSize overrides the LRU capacity.
func WithCacheSize(size int) Option {
	return func(e *Engine) {
		e.cache = newContextCache(size)
	}
}

// WithLogger sets the engine logger. The default discards nothing and
// writes through slog's default handler.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine builds an understanding engine on client.
func NewEngine(client llm.Client, opts ...Option) *Engine {
	e := &Engine{
		client: client,
		cache:  newContextCache(DefaultCacheSize),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Understand turns a conversational query into a SessionContext. The
// three classification tasks run in parallel and join before merging;
// each failed task is replaced by its conservative fallback, so the call
// only degrades, never fails, on LLM trouble. An empty query returns a
// well-formed empty context.
func (e *Engine) Understand(ctx context.Context, p Params) (*rank.SessionContext, Info, error) {
	start := time.Now()
	qPatient := p.lastUserTurn()
	if qPatient == "" {
		return emptyContext(), Info{Duration: time.Since(start)}, nil
	}

	key := e.cache.key(p)
	if !p.BypassCache {
		if entry, ok := e.cache.get(key); ok {
			info := Info{CacheHit: true, Insights: entry.insights, Duration: time.Since(start)}
			return entry.sctx, info, nil
		}
	}

	var (
		insights Insights
		general  generalResult
		clinical clinicalResult
		profile  string

		insightsErr, generalErr, clinicalErr, profileErr error
	)

	// Independent tasks, joined here. Task errors are absorbed into
	// fallbacks rather than propagated, so the group context is only used
	// to inherit the request deadline.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		insights, insightsErr = e.runInsights(gctx, p)
		return nil
	})
	g.Go(func() error {
		general, generalErr = e.runGeneral(gctx, p)
		return nil
	})
	g.Go(func() error {
		clinical, clinicalErr = e.runClinical(gctx, p)
		return nil
	})
	if p.IncludeIdealProfile {
		g.Go(func() error {
			profile, profileErr = e.runIdealProfile(gctx, p)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, Info{Duration: time.Since(start)}, err
	}

	info := Info{
		InsightsFallback: insightsErr != nil,
		GeneralFallback:  generalErr != nil,
		ClinicalFallback: clinicalErr != nil,
		Insights:         &insights,
		PrimaryIntent:    clinical.PrimaryIntent,
	}
	info.AllFallback = info.InsightsFallback && info.GeneralFallback && info.ClinicalFallback

	for task, err := range map[string]error{
		"insights": insightsErr,
		"general":  generalErr,
		"clinical": clinicalErr,
		"profile":  profileErr,
	} {
		if err != nil {
			e.logger.Warn("intent task fell back to defaults",
				slog.String("task", task),
				slog.String("error", err.Error()))
		}
	}

	sctx := merge(qPatient, p.Query, general, clinical)
	sctx.IdealProfile = profile
	info.Duration = time.Since(start)

	// Only clean results are cached: a context assembled from fallbacks
	// would outlive the outage that produced it.
	if !p.BypassCache && insightsErr == nil && generalErr == nil && clinicalErr == nil {
		e.cache.add(key, cacheEntry{sctx: sctx, insights: &insights})
	}

	return sctx, info, nil
}

// CacheLen reports how many contexts are cached, for status surfaces.
func (e *Engine) CacheLen() int {
	return e.cache.len()
}

// emptyContext is the well-formed zero context returned for empty
// queries. Every slice is non-nil so downstream marshaling emits arrays.
func emptyContext() *rank.SessionContext {
	return &rank.SessionContext{
		IntentTerms:          []string{},
		AnchorPhrases:        []string{},
		SafeLaneTerms:        []string{},
		LikelySubspecialties: []rank.Subspecialty{},
		NegativeTerms:        []string{},
		Intent: rank.IntentData{
			Goal:             fallbackGoal,
			Specificity:      fallbackSpecificity,
			Confidence:       0,
			IsQueryAmbiguous: true,
		},
	}
}
