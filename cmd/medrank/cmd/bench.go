package cmd

import (
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/caresearch/medrank/internal/bench"
	"github.com/caresearch/medrank/internal/config"
	"github.com/caresearch/medrank/internal/intent"
	"github.com/caresearch/medrank/internal/output"
	"github.com/caresearch/medrank/internal/pool"
	"github.com/caresearch/medrank/internal/rank"
	"github.com/caresearch/medrank/internal/ui"
)

// benchOptions holds the flags shared by the bench subcommands.
type benchOptions struct {
	cases        string
	out          string
	workers      int
	trialTimeout time.Duration
	studyTimeout time.Duration
	variant      string
	weightsFile  string
	strategy     string
	seed         int64
	noCache      bool
	plain        bool
}

func newBenchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run benchmark studies over the corpus",
		Long: `Run offline benchmark studies against benchmark-test-cases files.

  run            Evaluate every case through the ranking pipeline and
                 score shortlists against case expectations.
  generate-pool  Build de-biased candidate pools (union of pipeline,
                 BM25-only, keyword-overlap and random retrievers) for
                 ground-truth labeling.

Session contexts are cached in a benchmark-session-context-cache file
shared safely across workers, so reruns skip the LLM calls. The
CANDIDATE_POOL_STRATEGY, WORKERS, TRIAL_TIMEOUT and STUDY_TIMEOUT
environment variables override flags and config.`,
	}

	cmd.AddCommand(newBenchRunCmd())
	cmd.AddCommand(newBenchGeneratePoolCmd())

	return cmd
}

func addBenchFlags(cmd *cobra.Command, opts *benchOptions) {
	cmd.Flags().StringVar(&opts.cases, "cases", "", "benchmark-test-cases file (default: discover in project dir)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Report output file (default: stdout as JSON)")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Concurrent cases (default from config/WORKERS)")
	cmd.Flags().DurationVar(&opts.trialTimeout, "trial-timeout", 0, "Per-case timeout")
	cmd.Flags().DurationVar(&opts.studyTimeout, "study-timeout", 0, "Whole-run timeout")
	cmd.Flags().StringVar(&opts.variant, "variant", "", "Override the pipeline variant for every case")
	cmd.Flags().StringVar(&opts.weightsFile, "weights", "", "ranking-weights file applied to every trial")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "Fix the random source for reproducible pools")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "Regenerate session contexts, ignoring the cache")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Plain progress output (no TUI)")
}

func newBenchRunCmd() *cobra.Command {
	var opts benchOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate test cases against the ranking pipeline",
		Example: `  medrank bench run --cases benchmark-test-cases-cardiology.json
  WORKERS=8 medrank bench run --cases cases.json --variant v6 -o report.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBench(cmd, opts, false)
		},
	}

	addBenchFlags(cmd, &opts)
	return cmd
}

func newBenchGeneratePoolCmd() *cobra.Command {
	var opts benchOptions

	cmd := &cobra.Command{
		Use:   "generate-pool",
		Short: "Generate de-biased candidate pools for labeling",
		Example: `  medrank bench generate-pool --cases cases.json --strategy multi_source
  CANDIDATE_POOL_STRATEGY=hybrid_random medrank bench generate-pool --cases cases.json --seed 42`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBench(cmd, opts, true)
		},
	}

	addBenchFlags(cmd, &opts)
	cmd.Flags().StringVar(&opts.strategy, "strategy", "", "Pool strategy: ranking_only, hybrid_bm25, hybrid_random, multi_source")
	return cmd
}

func runBench(cmd *cobra.Command, opts benchOptions, pools bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := output.New(cmd.OutOrStdout())
	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}

	casesPath, err := resolveCasesPath(opts.cases, dir)
	if err != nil {
		return err
	}

	runnerCfg, err := runnerConfig(cfg, opts, casesPath)
	if err != nil {
		return err
	}

	svc, err := buildServices(ctx, cfg, serviceOptions{semantic: false, telemetry: false})
	if err != nil {
		return err
	}
	defer svc.close()

	renderer := newBenchRenderer(cmd, opts)
	if err := renderer.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = renderer.Stop() }()

	deps := bench.RunnerDependencies{
		Renderer: renderer,
		Provider: svc.provider,
		Service:  svc.ranker,
		Location: svc.locator,
		Logger:   slog.Default(),
	}

	cache, err := openContextCache(cfg, casesPath)
	if err != nil {
		out.Warningf("Session context cache unavailable: %v", err)
	} else {
		deps.Cache = cache
		defer func() {
			if err := cache.Flush(); err != nil {
				out.Warningf("Could not flush context cache: %v", err)
			}
		}()
	}

	if pools {
		rankCfg, err := cfg.ResolveWeights()
		if err != nil {
			return err
		}
		if runnerCfg.Weights != nil {
			rankCfg = rankCfg.Apply(runnerCfg.Weights)
		}
		engine, err := rank.NewEngine(rankCfg)
		if err != nil {
			return err
		}
		deps.Engine = engine
		deps.Contexts = intent.NewEngine(svc.client)
	}

	runner, err := bench.NewRunner(deps)
	if err != nil {
		return err
	}

	var report any
	if pools {
		report, err = runner.GeneratePools(ctx, runnerCfg)
	} else {
		report, err = runner.RunStudy(ctx, runnerCfg)
	}
	if err != nil {
		return err
	}

	if opts.out != "" {
		if err := bench.WriteReport(opts.out, report); err != nil {
			return err
		}
		out.Successf("Report written to %s", opts.out)
		return nil
	}
	return out.JSON(report)
}

// runnerConfig merges flags over config over environment.
func runnerConfig(cfg *config.Config, opts benchOptions, casesPath string) (bench.RunnerConfig, error) {
	rc := bench.ConfigFromEnv()
	rc.CasesPath = casesPath
	rc.Variant = opts.variant
	rc.Seed = opts.seed
	rc.BypassCache = opts.noCache

	if cfg.Bench.Workers > 0 && rc.Workers == bench.DefaultWorkers {
		rc.Workers = cfg.Bench.Workers
	}
	if opts.workers > 0 {
		rc.Workers = opts.workers
	}
	if d := cfg.TrialTimeout(); d > 0 && rc.TrialTimeout == bench.DefaultTrialTimeout {
		rc.TrialTimeout = d
	}
	if opts.trialTimeout > 0 {
		rc.TrialTimeout = opts.trialTimeout
	}
	if d := cfg.StudyTimeout(); d > 0 && rc.StudyTimeout == 0 {
		rc.StudyTimeout = d
	}
	if opts.studyTimeout > 0 {
		rc.StudyTimeout = opts.studyTimeout
	}

	strategy := pool.FromEnv()
	if cfg.Bench.PoolStrategy != "" {
		if s := pool.Strategy(cfg.Bench.PoolStrategy); s.Valid() {
			strategy = s
		}
	}
	if opts.strategy != "" {
		s := pool.Strategy(strings.ToLower(opts.strategy))
		if !s.Valid() {
			return rc, fmt.Errorf("unknown pool strategy %q", opts.strategy)
		}
		strategy = s
	}
	rc.Strategy = strategy

	if opts.weightsFile != "" {
		weights, err := bench.LoadWeights(opts.weightsFile)
		if err != nil {
			return rc, err
		}
		rc.Weights = weights
	}
	return rc, nil
}

// resolveCasesPath uses the flag or discovers a single cases file in the
// project directory.
func resolveCasesPath(flag, dir string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	found, err := bench.DiscoverStudies(dir)
	if err != nil {
		return "", err
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("no benchmark-test-cases-*.json found in %s; pass --cases", dir)
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("multiple cases files found in %s; pass --cases", dir)
	}
}

// openContextCache opens the flock-guarded session context cache, either
// at the configured path or next to the cases file.
func openContextCache(cfg *config.Config, casesPath string) (*bench.ContextCache, error) {
	path := cfg.Bench.ContextCache
	if path == "" {
		path = filepath.Join(filepath.Dir(casesPath), bench.DefaultCacheFile)
	}
	return bench.OpenContextCache(path)
}

// newBenchRenderer picks the TUI when stdout is a terminal, otherwise a
// plain line writer.
func newBenchRenderer(cmd *cobra.Command, opts benchOptions) ui.Renderer {
	uiCfg := ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.plain),
		ui.WithNoColor(ui.DetectNoColor()))
	return ui.NewRenderer(uiCfg)
}
