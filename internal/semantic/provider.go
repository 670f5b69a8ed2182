package semantic

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/caresearch/medrank/internal/corpus"
	rankerr "github.com/caresearch/medrank/internal/errors"
)

const (
	// DefaultScoreTopK is how many nearest profiles one query scores.
	// It covers the deepest candidate pool any strategy builds.
	DefaultScoreTopK = 100

	// buildBatchSize is how many profiles one embedding batch carries.
	buildBatchSize = 64
)

// Provider computes per-practitioner semantic scores for ranking. It
// embeds the corpus once into an HNSW index, then answers each query
// with a score map the ranking engine mixes into Stage A. The provider
// is optional end to end: callers that have none simply rank without
// a semantic lane.
type Provider struct {
	embedder Embedder
	index    *Index
	logger   *slog.Logger
	topK     int
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithProviderLogger sets the logger.
func WithProviderLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithTopK sets how many nearest profiles each query scores.
func WithTopK(k int) ProviderOption {
	return func(p *Provider) {
		if k > 0 {
			p.topK = k
		}
	}
}

// NewProvider creates a provider around an embedder. Call Build or
// LoadIndex before asking for scores.
func NewProvider(embedder Embedder, opts ...ProviderOption) *Provider {
	p := &Provider{
		embedder: embedder,
		logger:   slog.Default(),
		topK:     DefaultScoreTopK,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Build embeds every practitioner profile and indexes the vectors.
// Replaces any previously built index.
func (p *Provider) Build(ctx context.Context, practitioners []*corpus.Practitioner) error {
	start := time.Now()

	ids := make([]string, 0, len(practitioners))
	texts := make([]string, 0, len(practitioners))
	for _, pr := range practitioners {
		if pr == nil || pr.ID == "" {
			continue
		}
		ids = append(ids, pr.ID)
		texts = append(texts, ProfileText(pr))
	}

	var index *Index
	for batchStart := 0; batchStart < len(ids); batchStart += buildBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		batchEnd := batchStart + buildBatchSize
		if batchEnd > len(ids) {
			batchEnd = len(ids)
		}

		vecs, err := p.embedder.EmbedBatch(ctx, texts[batchStart:batchEnd])
		if err != nil {
			return rankerr.New(rankerr.ErrCodeEmbedFailed, "embed practitioner profiles", err)
		}
		if index == nil {
			if len(vecs) == 0 || len(vecs[0]) == 0 {
				return rankerr.New(rankerr.ErrCodeEmbedFailed, "embedder returned empty vectors", nil)
			}
			index = NewIndex(len(vecs[0]))
		}
		if err := index.Add(ids[batchStart:batchEnd], vecs); err != nil {
			return rankerr.New(rankerr.ErrCodeInternal, "index practitioner vectors", err)
		}
	}

	if index == nil {
		index = NewIndex(p.embedder.Dimensions())
	}
	p.index = index

	p.logger.Debug("semantic index built",
		slog.Int("profiles", index.Len()),
		slog.Int("dims", index.Dimensions()),
		slog.String("model", p.embedder.ModelName()),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

// Scores embeds the query and returns similarity scores in [0,1] for
// the nearest indexed practitioners. Practitioners absent from the map
// score zero downstream.
func (p *Provider) Scores(ctx context.Context, query string) (map[string]float64, error) {
	query = strings.TrimSpace(query)
	if query == "" || p.index == nil || p.index.Len() == 0 {
		return map[string]float64{}, nil
	}

	vec, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, rankerr.New(rankerr.ErrCodeEmbedFailed, "embed query", err)
	}

	hits, err := p.index.Search(vec, p.topK)
	if err != nil {
		return nil, rankerr.New(rankerr.ErrCodeInternal, "search semantic index", err)
	}

	scores := make(map[string]float64, len(hits))
	for _, hit := range hits {
		score := hit.Score
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		scores[hit.ID] = score
	}
	return scores, nil
}

// Ready reports whether the provider has an index to answer from.
func (p *Provider) Ready() bool {
	return p.index != nil && p.index.Len() > 0
}

// IndexLen returns the number of indexed profiles.
func (p *Provider) IndexLen() int {
	if p.index == nil {
		return 0
	}
	return p.index.Len()
}

// SaveIndex persists the built index to path.
func (p *Provider) SaveIndex(path string) error {
	if p.index == nil {
		return rankerr.New(rankerr.ErrCodeInternal, "no semantic index to save", nil)
	}
	return p.index.Save(path)
}

// LoadIndex restores a previously saved index, replacing any built one.
func (p *Provider) LoadIndex(path string) error {
	index := NewIndex(0)
	if err := index.Load(path); err != nil {
		return err
	}
	p.index = index
	return nil
}
