package bench

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/caresearch/medrank/internal/corpus"
	"github.com/caresearch/medrank/internal/filters"
	"github.com/caresearch/medrank/internal/intent"
	"github.com/caresearch/medrank/internal/pool"
	"github.com/caresearch/medrank/internal/progressive"
	"github.com/caresearch/medrank/internal/rank"
	"github.com/caresearch/medrank/internal/ui"
	"github.com/caresearch/medrank/internal/validation"
	"github.com/caresearch/medrank/pkg/ranker"
)

// Environment variables read by ConfigFromEnv.
const (
	WorkersEnvVar      = "WORKERS"
	TrialTimeoutEnvVar = "TRIAL_TIMEOUT"
	StudyTimeoutEnvVar = "STUDY_TIMEOUT"
)

// Defaults applied when the environment and config are silent.
const (
	DefaultWorkers      = 4
	DefaultTrialTimeout = 2 * time.Minute
)

// RunnerConfig carries one study invocation.
type RunnerConfig struct {
	// CasesPath is the benchmark-test-cases file to run.
	CasesPath string

	// Workers bounds trial concurrency; zero or less uses
	// DefaultWorkers.
	Workers int

	// TrialTimeout bounds one case; zero or less uses
	// DefaultTrialTimeout.
	TrialTimeout time.Duration

	// StudyTimeout bounds the whole run; zero disables the deadline.
	StudyTimeout time.Duration

	// Strategy selects the pool composition for GeneratePools; empty
	// reads the environment.
	Strategy pool.Strategy

	// Variant overrides the study and case pipeline variants when set.
	Variant string

	// Weights applies request-level ranking overrides to every trial.
	Weights *rank.Overrides

	// Seed fixes the random source for pool draws, keyed per case so
	// reruns reproduce the same pools. Zero keeps draws random.
	Seed int64

	// BypassCache regenerates session contexts even when cached.
	BypassCache bool
}

func (cfg RunnerConfig) workers() int {
	if cfg.Workers > 0 {
		return cfg.Workers
	}
	return DefaultWorkers
}

func (cfg RunnerConfig) trialTimeout() time.Duration {
	if cfg.TrialTimeout > 0 {
		return cfg.TrialTimeout
	}
	return DefaultTrialTimeout
}

// studyContext applies the study deadline when one is configured.
func (cfg RunnerConfig) studyContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if cfg.StudyTimeout > 0 {
		return context.WithTimeout(ctx, cfg.StudyTimeout)
	}
	return context.WithCancel(ctx)
}

// ConfigFromEnv seeds a RunnerConfig from WORKERS, TRIAL_TIMEOUT and
// STUDY_TIMEOUT. Timeouts accept Go durations ("90s") or bare seconds
// ("90"); unparseable values keep the defaults.
func ConfigFromEnv() RunnerConfig {
	cfg := RunnerConfig{
		Workers:      DefaultWorkers,
		TrialTimeout: DefaultTrialTimeout,
	}
	if v := os.Getenv(WorkersEnvVar); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers = n
		}
	}
	if d, ok := envDuration(TrialTimeoutEnvVar); ok {
		cfg.TrialTimeout = d
	}
	if d, ok := envDuration(StudyTimeoutEnvVar); ok {
		cfg.StudyTimeout = d
	}
	return cfg
}

func envDuration(name string) (time.Duration, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0, false
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d, true
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second, true
	}
	return 0, false
}

// ContextSource produces session contexts for pool generation. The
// intent engine satisfies it.
type ContextSource interface {
	Understand(ctx context.Context, p intent.Params) (*rank.SessionContext, intent.Info, error)
}

// RunnerDependencies are the injected collaborators for a Runner.
type RunnerDependencies struct {
	// Renderer receives progress events (required). The caller starts
	// and stops it around the run.
	Renderer ui.Renderer

	// Provider supplies the loaded corpus (required).
	Provider *corpus.Provider

	// Service executes evaluation trials (required for RunStudy).
	Service ranker.Service

	// Engine ranks the pool sub-retrievers (required for
	// GeneratePools).
	Engine *rank.Engine

	// Contexts understands case queries (required for GeneratePools).
	Contexts ContextSource

	// Cache persists session contexts across runs. Optional.
	Cache *ContextCache

	// Location overrides the hard filter location step. Optional.
	Location filters.LocationFilter

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Runner executes benchmark studies with progress reporting. Case
// failures are recorded and do not stop a study; only cancellation and
// the study timeout abort.
type Runner struct {
	renderer ui.Renderer
	provider *corpus.Provider
	service  ranker.Service
	engine   *rank.Engine
	contexts ContextSource
	cache    *ContextCache
	pipeline *filters.Pipeline
	logger   *slog.Logger
}

// NewRunner creates a Runner with injected dependencies.
func NewRunner(deps RunnerDependencies) (*Runner, error) {
	if deps.Renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if deps.Provider == nil {
		return nil, fmt.Errorf("corpus provider is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		renderer: deps.Renderer,
		provider: deps.Provider,
		service:  deps.Service,
		engine:   deps.Engine,
		contexts: deps.Contexts,
		cache:    deps.Cache,
		pipeline: filters.NewPipeline(deps.Location),
		logger:   logger,
	}, nil
}

// RunStudy evaluates every case through the ranking service and scores
// shortlists against case expectations.
func (r *Runner) RunStudy(ctx context.Context, cfg RunnerConfig) (*StudyReport, error) {
	if r.service == nil {
		return nil, fmt.Errorf("ranking service is required to run studies")
	}

	workers := cfg.workers()
	start := time.Now()
	ctx, cancel := cfg.studyContext(ctx)
	defer cancel()

	study, err := r.loadPhase(cfg)
	if err != nil {
		return nil, err
	}

	total := len(study.Cases)
	r.renderer.UpdateProgress(ui.ProgressEvent{Phase: ui.PhaseTrials, Total: total})

	results := make([]*CaseResult, total)
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, tc := range study.Cases {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			res, err := r.evalTrial(gctx, cfg, study, tc)
			results[i] = res
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}

			r.renderer.UpdateProgress(ui.ProgressEvent{
				Phase:   ui.PhaseTrials,
				Current: int(done.Add(1)),
				Total:   total,
				CaseID:  tc.ID,
			})
			if err != nil {
				r.renderer.AddError(ui.CaseError{CaseID: tc.ID, Err: err})
			} else if res.FilterEmpty {
				r.renderer.AddError(ui.CaseError{
					CaseID: tc.ID,
					Err:    errors.New("hard filters left no candidates"),
					IsWarn: true,
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("study interrupted at %d/%d cases: %w", done.Load(), total, err)
	}

	report := buildStudyReport(study, cfg, results, time.Since(start), workers)
	r.renderer.Complete(report.Stats())
	r.logger.Info("study complete",
		slog.String("study", study.Name),
		slog.Int("cases", report.Cases),
		slog.Int("scored", report.Scored),
		slog.Int("failures", report.Failures),
		slog.Float64("mean_precision", report.MeanPrecision),
		slog.Duration("duration", time.Since(start)))
	return report, nil
}

// evalTrial runs one case through the ranking service. The returned
// result is always usable; err reports a failed trial.
func (r *Runner) evalTrial(ctx context.Context, cfg RunnerConfig, study *Study, tc *TestCase) (*CaseResult, error) {
	start := time.Now()
	tctx, cancel := context.WithTimeout(ctx, cfg.trialTimeout())
	defer cancel()

	variant := study.variantFor(cfg.Variant, tc)
	res := &CaseResult{CaseID: tc.ID, Variant: variant}

	resp, err := r.service.RankShortlist(tctx, ranker.Request{
		Query:        tc.Query,
		Conversation: tc.Conversation,
		Filters:      tc.Filters.Criteria(),
		Variant:      variant,
		TopK:         study.topKFor(tc),
		Overrides:    cfg.Weights,
		BypassCache:  cfg.BypassCache,
		RequestID:    "bench-" + tc.ID,
	})
	res.DurationMillis = time.Since(start).Milliseconds()
	if err != nil {
		res.Error = err.Error()
		return res, err
	}

	res.ShortlistIDs = shortlistIDs(resp.Shortlist)
	res.FilterEmpty = resp.Diagnostics.FilterEmpty
	res.CacheHit = resp.Diagnostics.Intent.CacheHit
	res.Iterations = resp.Diagnostics.Iterations
	res.TerminationReason = resp.Diagnostics.TerminationReason
	if tc.HasExpectations() {
		res.ExpectedIDs = tc.ExpectedIDs
		res.Metrics = scoreShortlist(res.ShortlistIDs, tc.ExpectedIDs)
	}
	return res, nil
}

// GeneratePools builds a labeled candidate pool for every case: session
// contexts come from the cache or the context source, hard filters
// narrow the corpus, and the strategy unions its sub-retrievers over
// the survivors.
func (r *Runner) GeneratePools(ctx context.Context, cfg RunnerConfig) (*PoolReport, error) {
	if r.engine == nil {
		return nil, fmt.Errorf("rank engine is required to generate pools")
	}
	if r.contexts == nil {
		return nil, fmt.Errorf("context source is required to generate pools")
	}
	strategy := cfg.Strategy
	if strategy == "" {
		strategy = pool.FromEnv()
	}
	if err := validation.ValidatePoolStrategy(string(strategy)); err != nil {
		return nil, err
	}

	workers := cfg.workers()
	start := time.Now()
	ctx, cancel := cfg.studyContext(ctx)
	defer cancel()

	study, err := r.loadPhase(cfg)
	if err != nil {
		return nil, err
	}

	sctxs, cacheHits, err := r.contextsPhase(ctx, cfg, study, workers)
	if err != nil {
		return nil, err
	}

	total := len(study.Cases)
	r.renderer.UpdateProgress(ui.ProgressEvent{Phase: ui.PhaseTrials, Total: total})

	pools := make([]*CasePool, total)
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, tc := range study.Cases {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			cp, err := r.poolTrial(gctx, cfg, tc, sctxs[tc.ID], strategy, int64(i))
			pools[i] = cp
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}

			r.renderer.UpdateProgress(ui.ProgressEvent{
				Phase:   ui.PhaseTrials,
				Current: int(done.Add(1)),
				Total:   total,
				CaseID:  tc.ID,
			})
			if err != nil {
				r.renderer.AddError(ui.CaseError{CaseID: tc.ID, Err: err})
			} else if cp.FilterEmpty {
				r.renderer.AddError(ui.CaseError{
					CaseID: tc.ID,
					Err:    errors.New("hard filters left no candidates"),
					IsWarn: true,
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("pool generation interrupted at %d/%d cases: %w", done.Load(), total, err)
	}

	report := buildPoolReport(study, strategy, r.provider, cfg, pools, cacheHits, time.Since(start), workers)
	r.renderer.Complete(report.Stats())
	r.logger.Info("pool generation complete",
		slog.String("study", study.Name),
		slog.String("strategy", string(strategy)),
		slog.Int("cases", report.Cases),
		slog.Int("failures", report.Failures),
		slog.Int("context_cache_hits", cacheHits),
		slog.Duration("duration", time.Since(start)))
	return report, nil
}

// loadPhase loads the case file and reports the load progress.
func (r *Runner) loadPhase(cfg RunnerConfig) (*Study, error) {
	r.renderer.UpdateProgress(ui.ProgressEvent{
		Phase:   ui.PhaseLoad,
		Message: fmt.Sprintf("Loading %s...", filepath.Base(cfg.CasesPath)),
	})

	study, err := LoadStudy(cfg.CasesPath)
	if err != nil {
		return nil, err
	}
	r.logger.Info("study loaded",
		slog.String("study", study.Name),
		slog.Int("cases", len(study.Cases)),
		slog.Int("corpus", r.provider.Corpus().Len()))
	return study, nil
}

// contextsPhase resolves a session context per case, reusing cached
// entries and persisting new ones before trials start.
func (r *Runner) contextsPhase(ctx context.Context, cfg RunnerConfig, study *Study, workers int) (map[string]*rank.SessionContext, int, error) {
	total := len(study.Cases)
	r.renderer.UpdateProgress(ui.ProgressEvent{Phase: ui.PhaseContexts, Total: total})

	var (
		mu    sync.Mutex
		sctxs = make(map[string]*rank.SessionContext, total)
	)
	var done, hits atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, tc := range study.Cases {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			sctx, hit, err := r.resolveContext(gctx, cfg, tc)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.renderer.AddError(ui.CaseError{CaseID: tc.ID, Err: err})
			} else {
				mu.Lock()
				sctxs[tc.ID] = sctx
				mu.Unlock()
				if hit {
					hits.Add(1)
				}
			}

			r.renderer.UpdateProgress(ui.ProgressEvent{
				Phase:   ui.PhaseContexts,
				Current: int(done.Add(1)),
				Total:   total,
				CaseID:  tc.ID,
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("context preparation interrupted at %d/%d cases: %w", done.Load(), total, err)
	}

	if r.cache != nil {
		if err := r.cache.Flush(); err != nil {
			r.logger.Warn("session context cache not persisted", slog.String("error", err.Error()))
			r.renderer.AddError(ui.CaseError{Err: err, IsWarn: true})
		}
	}
	return sctxs, int(hits.Load()), nil
}

// resolveContext returns the session context for one case, preferring
// the file cache. Fallback-tainted contexts stay out of the cache so an
// LLM outage does not pin degraded contexts across runs.
func (r *Runner) resolveContext(ctx context.Context, cfg RunnerConfig, tc *TestCase) (*rank.SessionContext, bool, error) {
	key := CacheKey(tc.Query, tc.Conversation)
	if r.cache != nil && !cfg.BypassCache {
		if e, ok := r.cache.Get(key); ok && e.Context != nil {
			return e.Context, true, nil
		}
	}

	tctx, cancel := context.WithTimeout(ctx, cfg.trialTimeout())
	defer cancel()
	sctx, info, err := r.contexts.Understand(tctx, intent.Params{
		Query:        tc.Query,
		Conversation: tc.Conversation,
		BypassCache:  cfg.BypassCache,
	})
	if err != nil {
		return nil, false, err
	}

	if r.cache != nil && !info.InsightsFallback && !info.GeneralFallback && !info.ClinicalFallback {
		r.cache.Put(key, &CachedContext{Query: tc.EffectiveQuery(), Context: sctx})
	}
	return sctx, false, nil
}

// poolTrial builds one case's candidate pool.
func (r *Runner) poolTrial(ctx context.Context, cfg RunnerConfig, tc *TestCase, sctx *rank.SessionContext, strategy pool.Strategy, ord int64) (*CasePool, error) {
	cp := &CasePool{CaseID: tc.ID, Query: tc.EffectiveQuery()}
	if sctx == nil {
		err := fmt.Errorf("no session context for case %s", tc.ID)
		cp.Error = err.Error()
		return cp, err
	}
	cp.Context = sctx

	survivors, steps := r.pipeline.Apply(r.provider.Corpus().All(), tc.Filters.Criteria())
	cp.FilterSteps = steps
	if len(survivors) == 0 {
		cp.FilterEmpty = true
		return cp, nil
	}

	opts := []pool.Option{pool.WithLogger(r.logger)}
	if cfg.Seed != 0 {
		opts = append(opts, pool.WithRand(rand.New(rand.NewSource(cfg.Seed+ord))))
	}

	tctx, cancel := context.WithTimeout(ctx, cfg.trialTimeout())
	defer cancel()
	members, err := pool.NewBuilder(r.engine, opts...).Build(tctx, survivors, sctx, strategy)
	if err != nil {
		cp.Error = err.Error()
		return cp, err
	}
	cp.Candidates = toPoolCandidates(members)
	return cp, nil
}

// shortlistIDs extracts shortlist practitioner ids in rank order.
func shortlistIDs(shortlist []*progressive.Candidate) []string {
	ids := make([]string, 0, len(shortlist))
	for _, c := range shortlist {
		if c == nil || c.ScoredResult == nil || c.Practitioner == nil {
			continue
		}
		ids = append(ids, c.Practitioner.ID)
	}
	return ids
}
