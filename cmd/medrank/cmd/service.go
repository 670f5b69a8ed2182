package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/caresearch/medrank/internal/config"
	"github.com/caresearch/medrank/internal/corpus"
	"github.com/caresearch/medrank/internal/filters"
	"github.com/caresearch/medrank/internal/llm"
	"github.com/caresearch/medrank/internal/progressive"
	"github.com/caresearch/medrank/internal/semantic"
	"github.com/caresearch/medrank/internal/telemetry"
	"github.com/caresearch/medrank/pkg/ranker"
)

// services holds the wired collaborators a command runs against: loaded
// corpus, LLM client, optional semantic provider and telemetry, and the
// ranking facade over all of them.
type services struct {
	cfg      *config.Config
	provider *corpus.Provider
	client   llm.Client
	semantic *semantic.Provider
	metrics  *telemetry.Metrics
	ranker   *ranker.Ranker
	locator  filters.LocationFilter

	cleanups []func()
}

// close releases resources in reverse acquisition order.
func (s *services) close() {
	for i := len(s.cleanups) - 1; i >= 0; i-- {
		s.cleanups[i]()
	}
}

// serviceOptions toggles the heavier collaborators for one-shot commands
// that do not need them.
type serviceOptions struct {
	// semantic builds the embedding index when the config enables it.
	// One-shot commands skip it unless asked; resident surfaces build it.
	semantic bool
	// telemetry opens the metrics sink when the config enables it.
	telemetry bool
}

// buildServices loads the corpus and wires the ranking facade from cfg.
func buildServices(ctx context.Context, cfg *config.Config, opts serviceOptions) (*services, error) {
	if cfg.Corpus.Path == "" {
		return nil, fmt.Errorf("no corpus configured. Set corpus.path in .medrank.yaml or run 'medrank init'")
	}

	c, err := corpus.Load(cfg.Corpus.Path)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	s := &services{cfg: cfg, provider: corpus.NewProvider(c)}

	s.client = llm.NewOllamaClient(llm.Config{
		Host:              cfg.LLM.Host,
		Model:             cfg.LLM.Model,
		Timeout:           cfg.LLMTimeout(),
		MaxRetries:        cfg.LLM.MaxRetries,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		Burst:             cfg.LLM.Burst,
	})

	rankCfg, err := cfg.ResolveWeights()
	if err != nil {
		s.close()
		return nil, err
	}

	locator, err := buildLocator(cfg)
	if err != nil {
		s.close()
		return nil, err
	}
	s.locator = locator

	rankerOpts := []ranker.Option{
		ranker.WithLogger(slog.Default()),
		ranker.WithRankConfig(rankCfg),
		ranker.WithProgressiveConfig(progressiveConfig(cfg)),
		ranker.WithLocationFilter(locator),
	}
	if cfg.Ranking.Variant != "" {
		rankerOpts = append(rankerOpts, ranker.WithDefaultVariant(cfg.Ranking.Variant))
	}
	if cfg.Ranking.ShortlistSize > 0 {
		rankerOpts = append(rankerOpts, ranker.WithDefaultTopK(cfg.Ranking.ShortlistSize))
	}

	if opts.telemetry && cfg.Telemetry.Enabled {
		metrics, err := buildMetrics(cfg)
		if err != nil {
			s.close()
			return nil, err
		}
		s.metrics = metrics
		s.cleanups = append(s.cleanups, func() { _ = metrics.Close() })
		rankerOpts = append(rankerOpts, ranker.WithMetrics(metrics))
	}

	if opts.semantic && cfg.Semantic.Enabled {
		provider, cleanup, err := buildSemantic(ctx, cfg, s.provider)
		if err != nil {
			// Semantic scoring is optional: a cold model server should
			// not keep the CLI from ranking at all.
			slog.Warn("semantic scoring disabled", slog.String("error", err.Error()))
		} else {
			s.semantic = provider
			s.cleanups = append(s.cleanups, cleanup)
			rankerOpts = append(rankerOpts, ranker.WithSemantic(provider, cfg.Semantic.Weight))
		}
	}

	r, err := ranker.New(s.provider, s.client, rankerOpts...)
	if err != nil {
		s.close()
		return nil, err
	}
	s.ranker = r

	return s, nil
}

// buildLocator returns the location filter, merging a configured outcode
// table over the built-in centroids.
func buildLocator(cfg *config.Config) (*filters.Locator, error) {
	if cfg.Corpus.OutcodeTable == "" {
		return filters.NewLocator(), nil
	}
	table, err := filters.LoadOutcodeTable(cfg.Corpus.OutcodeTable)
	if err != nil {
		return nil, fmt.Errorf("load outcode table: %w", err)
	}
	return filters.NewLocator(filters.WithOutcodeTable(table)), nil
}

// buildMetrics opens the telemetry collector with its SQLite sink.
func buildMetrics(cfg *config.Config) (*telemetry.Metrics, error) {
	store, err := telemetry.NewSQLiteStore(cfg.MetricsDBPath())
	if err != nil {
		return nil, fmt.Errorf("open metrics store: %w", err)
	}
	mcfg := telemetry.DefaultConfig()
	mcfg.FlushInterval = cfg.TelemetryFlushInterval()
	return telemetry.NewWithConfig(store, mcfg), nil
}

// buildSemantic wires the embedder chain (model server or static
// fallback, behind the SQLite cache) and builds the index over the
// loaded corpus.
func buildSemantic(ctx context.Context, cfg *config.Config, provider *corpus.Provider) (*semantic.Provider, func(), error) {
	var embedder semantic.Embedder
	switch cfg.Semantic.Provider {
	case "ollama":
		embedder = semantic.NewOllamaEmbedder(semantic.OllamaConfig{
			Host:  cfg.SemanticHost(),
			Model: cfg.Semantic.Model,
		})
	default:
		embedder = semantic.NewStaticEmbedder()
	}

	store, err := semantic.NewStore(cfg.EmbeddingCachePath())
	if err != nil {
		return nil, nil, fmt.Errorf("open embedding cache: %w", err)
	}
	cleanup := func() { _ = store.Close() }

	opts := []semantic.ProviderOption{semantic.WithProviderLogger(slog.Default())}
	if cfg.Semantic.TopK > 0 {
		opts = append(opts, semantic.WithTopK(cfg.Semantic.TopK))
	}
	p := semantic.NewProvider(semantic.NewCachedEmbedder(embedder, store), opts...)

	if cfg.Semantic.IndexPath != "" {
		if err := p.LoadIndex(cfg.Semantic.IndexPath); err == nil {
			return p, cleanup, nil
		}
		// Fall through and rebuild; a stale or missing index file is
		// recoverable.
	}

	buildStart := time.Now()
	if err := p.Build(ctx, provider.Corpus().All()); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("build semantic index: %w", err)
	}
	slog.Info("semantic index built",
		slog.Int("profiles", p.IndexLen()),
		slog.Duration("took", time.Since(buildStart)))

	if cfg.Semantic.IndexPath != "" {
		if err := p.SaveIndex(cfg.Semantic.IndexPath); err != nil {
			slog.Warn("could not persist semantic index", slog.String("error", err.Error()))
		}
	}

	return p, cleanup, nil
}

// progressiveConfig maps the YAML progressive section onto the
// controller bounds, keeping defaults for unset fields.
func progressiveConfig(cfg *config.Config) progressive.Config {
	p := progressive.DefaultConfig()
	if cfg.Progressive.TargetTopK > 0 {
		p.TargetTopK = cfg.Progressive.TargetTopK
	}
	if cfg.Progressive.BatchSize > 0 {
		p.BatchSize = cfg.Progressive.BatchSize
	}
	if cfg.Progressive.MaxIterations > 0 {
		p.MaxIterations = cfg.Progressive.MaxIterations
	}
	if cfg.Progressive.MaxProfilesReviewed > 0 {
		p.MaxProfilesReviewed = cfg.Progressive.MaxProfilesReviewed
	}
	if cfg.Progressive.FetchStrategy != "" {
		p.FetchStrategy = cfg.Progressive.FetchStrategy
	}
	return p
}
