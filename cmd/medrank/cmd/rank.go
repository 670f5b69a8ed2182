package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/caresearch/medrank/internal/daemon"
	"github.com/caresearch/medrank/internal/filters"
	"github.com/caresearch/medrank/internal/logging"
	"github.com/caresearch/medrank/internal/output"
	"github.com/caresearch/medrank/pkg/ranker"
)

// rankOptions holds the CLI flags for one rank invocation.
type rankOptions struct {
	topK        int
	variant     string
	format      string // "text", "json"
	insurance   string
	gender      string
	specialty   string
	city        string
	postcode    string
	radiusMiles float64
	nhsOnly     bool
	ageGroup    string
	languages   []string
	name        string
	evaluateFit bool
	explain     bool
	local       bool // bypass daemon
	noCache     bool
}

func newRankCmd() *cobra.Command {
	var opts rankOptions

	cmd := &cobra.Command{
		Use:   "rank <query>",
		Short: "Rank practitioners against a patient query",
		Long: `Rank practitioners against a free-text patient query.

Hard filters narrow the corpus first (insurance, gender, specialty,
location, NHS, demographics); the query is understood with parallel LLM
calls and the survivors are ranked with weighted BM25 plus structured
rescoring. If filters leave no candidates the shortlist is empty: there
is no relaxation.

A running daemon (see 'medrank daemon start') serves the request from
its resident corpus and warm caches; otherwise the corpus is loaded
locally for this call.

Examples:
  medrank rank "I need SVT ablation"
  medrank rank "chest pain" --postcode SW5 --gender female --insurance Bupa
  medrank rank "knee replacement" --variant v6 --evaluate-fit
  medrank rank "back pain" --format json | jq '.shortlist[0]'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runRank(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.topK, "top-k", "n", 0, "Shortlist size (default from config)")
	cmd.Flags().StringVar(&opts.variant, "variant", "", "Pipeline variant: legacy, two-stage, v5, v6")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().StringVar(&opts.insurance, "insurance", "", "Accepted insurer (canonicalized, e.g. Bupa)")
	cmd.Flags().StringVar(&opts.gender, "gender", "", "Practitioner gender preference: male, female")
	cmd.Flags().StringVar(&opts.specialty, "specialty", "", "Manual specialty filter")
	cmd.Flags().StringVar(&opts.city, "city", "", "Locality filter (no distance ranking)")
	cmd.Flags().StringVar(&opts.postcode, "postcode", "", "Postcode or outcode filter (enables proximity boost)")
	cmd.Flags().Float64Var(&opts.radiusMiles, "radius", 0, "Search radius in miles for postcode searches")
	cmd.Flags().BoolVar(&opts.nhsOnly, "nhs", false, "Only practitioners with an NHS base or posts")
	cmd.Flags().StringVar(&opts.ageGroup, "age-group", "", "Patient age group (e.g. paediatric, adult)")
	cmd.Flags().StringSliceVar(&opts.languages, "language", nil, "Spoken language (repeatable)")
	cmd.Flags().StringVar(&opts.name, "name", "", "Bias retrieval toward a practitioner name")
	cmd.Flags().BoolVar(&opts.evaluateFit, "evaluate-fit", false, "Label the shortlist with LLM fit categories")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "Show per-component score diagnostics")
	cmd.Flags().BoolVar(&opts.local, "local", false, "Force local ranking (bypass daemon)")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "Skip the query understanding cache")

	return cmd
}

func runRank(ctx context.Context, cmd *cobra.Command, query string, opts rankOptions) error {
	if !debugMode {
		logCfg := logging.DefaultConfig()
		logCfg.WriteToStderr = false
		if logger, cleanup, err := logging.Setup(logCfg); err == nil {
			slog.SetDefault(logger)
			defer cleanup()
		}
	}

	out := output.New(cmd.OutOrStdout())
	req := rankRequest(query, opts)

	// A resident daemon already paid corpus load and holds warm intent
	// caches; prefer it.
	if !opts.local {
		client := daemon.NewClient(daemon.DefaultConfig())
		if client.IsRunning() {
			resp, err := client.Rank(ctx, req)
			if err != nil {
				slog.Warn("daemon rank failed, falling back to local",
					slog.String("error", err.Error()))
			} else {
				return renderResponse(out, resp, opts)
			}
		}
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := buildServices(ctx, cfg, serviceOptions{semantic: true, telemetry: true})
	if err != nil {
		return err
	}
	defer svc.close()

	resp, err := svc.ranker.RankShortlist(ctx, req)
	if err != nil {
		return err
	}
	return renderResponse(out, resp, opts)
}

// rankRequest maps the CLI flags onto a ranking request.
func rankRequest(query string, opts rankOptions) ranker.Request {
	req := ranker.Request{
		Query:       query,
		Variant:     opts.variant,
		TopK:        opts.topK,
		NameFilter:  opts.name,
		EvaluateFit: opts.evaluateFit,
		BypassCache: opts.noCache,
		Filters: filters.Criteria{
			NHSOnly:   opts.nhsOnly,
			Insurance: opts.insurance,
			Gender:    opts.gender,
			Specialty: opts.specialty,
			AgeGroup:  opts.ageGroup,
			Languages: opts.languages,
		},
	}
	if opts.city != "" || opts.postcode != "" {
		req.Filters.Location = &filters.LocationQuery{
			City:        opts.city,
			Postcode:    opts.postcode,
			RadiusMiles: opts.radiusMiles,
		}
	}
	return req
}

// renderResponse writes the shortlist in the requested format.
func renderResponse(out *output.Writer, resp *ranker.Response, opts rankOptions) error {
	if opts.format == "json" {
		return out.JSON(resp)
	}

	d := resp.Diagnostics
	if d.FilterEmpty {
		out.Warning("No practitioners match the hard filters.")
		for _, step := range d.FilterSteps {
			out.Detail(fmt.Sprintf("%s: %d -> %d", step.Step, step.In, step.Out))
		}
		return nil
	}

	out.Shortlist(ranker.Scored(resp.Shortlist), opts.explain)

	for _, c := range resp.Shortlist {
		if c.FitCategory != "" {
			out.Detail(fmt.Sprintf("#%d %s: %s (%s)",
				c.Rank, c.Practitioner.Name, c.FitCategory, c.EvaluationReason))
		}
	}

	if opts.explain {
		out.Newline()
		out.Detail(fmt.Sprintf("variant=%s candidates=%d ranked=%d total=%s",
			d.Variant, d.CandidatesIn, d.CandidatesRanked, d.TotalDuration.Round(time.Millisecond)))
		if d.TerminationReason != "" {
			out.Detail(fmt.Sprintf("iterations=%d evaluated=%d termination=%s",
				d.Iterations, d.ProfilesEvaluated, d.TerminationReason))
		}
	}
	return nil
}
