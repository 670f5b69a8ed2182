// Package pool builds de-biased candidate sets for offline ground-truth
// generation: unions of pipeline, BM25-only, keyword-overlap, and random
// retrievers, deduplicated by practitioner id with per-source labels.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/caresearch/medrank/internal/corpus"
	rankerr "github.com/caresearch/medrank/internal/errors"
	"github.com/caresearch/medrank/internal/rank"
)

// Source labels recorded on pool members for diagnostics.
const (
	SourcePipeline = "pipeline"
	SourceBM25     = "bm25"
	SourceKeyword  = "keyword"
	SourceRandom   = "random"
)

// Member is one pooled practitioner and the retrievers that surfaced it.
type Member struct {
	Practitioner *corpus.Practitioner `json:"practitioner"`
	Sources      []string             `json:"sources"`
}

// HasSource reports whether source contributed this member.
func (m *Member) HasSource(source string) bool {
	for _, s := range m.Sources {
		if s == source {
			return true
		}
	}
	return false
}

// Builder assembles candidate pools over a ranking engine. Safe for
// concurrent Build calls only when each call uses its own Builder, since
// the random source is not synchronized.
type Builder struct {
	engine *rank.Engine
	rng    *rand.Rand
	logger *slog.Logger
}

// Option configures a builder.
type Option func(*Builder)

// WithRand injects a deterministic random source for reproducible pools.
func WithRand(rng *rand.Rand) Option {
	return func(b *Builder) {
		b.rng = rng
	}
}

// WithLogger sets the builder logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// NewBuilder returns a builder ranking with engine.
func NewBuilder(engine *rank.Engine, opts ...Option) *Builder {
	b := &Builder{
		engine: engine,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build runs the strategy's sub-retrievers over candidates and unions
// their results in source order: pipeline, BM25, keyword, random. The
// first source to surface a practitioner fixes its pool position; later
// sources only append their label.
func (b *Builder) Build(ctx context.Context, candidates []*corpus.Practitioner, sctx *rank.SessionContext, strategy Strategy) ([]*Member, error) {
	m, ok := mixFor(strategy)
	if !ok {
		return nil, rankerr.New(rankerr.ErrCodeInvalidInput,
			fmt.Sprintf("unknown pool strategy %q", strategy), nil)
	}
	if len(candidates) == 0 {
		return []*Member{}, nil
	}

	// The pipeline fetch is widened to the exclusion horizon so random
	// draws can skip everything the pipeline would have found anyway.
	pipelineFetch := m.pipeline
	if m.randomExclude > pipelineFetch {
		pipelineFetch = m.randomExclude
	}

	var (
		pipeline []*rank.ScoredResult
		bm25Only []*rank.ScoredResult
		keyword  []*corpus.Practitioner
	)

	g, gctx := errgroup.WithContext(ctx)
	if pipelineFetch > 0 {
		g.Go(func() error {
			var err error
			pipeline, err = b.engine.Rank(gctx, candidates, sctx, rank.Options{TopN: pipelineFetch})
			return err
		})
	}
	if m.bm25 > 0 {
		g.Go(func() error {
			query := rank.BuildStageAQuery(sctx, "", b.engine.Config())
			var err error
			bm25Only, err = b.engine.StageA(gctx, candidates, query, rank.Options{TopN: m.bm25})
			return err
		})
	}
	if m.keyword > 0 {
		g.Go(func() error {
			keyword = keywordOverlap(candidates, sctx.QPatient, m.keyword)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, rankerr.New(rankerr.ErrCodePoolFailed, "build candidate pool", err)
	}

	u := newUnion(m.limit)
	pipelinePool := pipeline
	if len(pipelinePool) > m.pipeline {
		pipelinePool = pipelinePool[:m.pipeline]
	}
	for _, r := range pipelinePool {
		u.add(r.Practitioner, SourcePipeline)
	}
	for _, r := range bm25Only {
		u.add(r.Practitioner, SourceBM25)
	}
	for _, p := range keyword {
		u.add(p, SourceKeyword)
	}

	if m.random > 0 {
		eligible := candidates
		if m.randomExclude > 0 {
			exclude := make(map[string]bool, len(pipeline))
			for _, r := range pipeline {
				exclude[r.Practitioner.ID] = true
			}
			eligible = excludeIDs(candidates, exclude)
		}
		for _, p := range sample(b.rng, eligible, m.random) {
			u.add(p, SourceRandom)
		}
	}

	members := u.members()
	b.logger.Debug("candidate pool built",
		slog.String("strategy", string(strategy)),
		slog.Int("candidates", len(candidates)),
		slog.Int("pool", len(members)))
	return members, nil
}

// union accumulates members in first-seen order, deduplicating by id.
type union struct {
	limit   int
	byID    map[string]*Member
	ordered []*Member
}

func newUnion(limit int) *union {
	return &union{limit: limit, byID: make(map[string]*Member)}
}

// add registers p under source. A practitioner already pooled gains the
// new source label; a new one is dropped once the pool is full.
func (u *union) add(p *corpus.Practitioner, source string) {
	if m, ok := u.byID[p.ID]; ok {
		if !m.HasSource(source) {
			m.Sources = append(m.Sources, source)
		}
		return
	}
	if u.limit > 0 && len(u.ordered) >= u.limit {
		return
	}
	m := &Member{Practitioner: p, Sources: []string{source}}
	u.byID[p.ID] = m
	u.ordered = append(u.ordered, m)
}

func (u *union) members() []*Member {
	return u.ordered
}
