package cmd

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/caresearch/medrank/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
		offline    bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system requirements and diagnose issues",
		Long: `Run diagnostics to ensure medrank can operate correctly.

Checks:
  - Configuration parses and validates
  - Corpus file is readable and non-empty
  - Data directory is writable
  - Metrics store (SQLite) opens
  - Outcode centroid table loads (when configured)
  - LLM endpoint is reachable
  - Embedding endpoint is reachable (when semantic scoring is enabled)

Endpoint checks are non-critical: ranking degrades to fallback intent
and BM25-only scoring when the model server is down.

Use --offline to skip the endpoint checks entirely.`,
		Example: `  medrank doctor
  medrank doctor --verbose
  medrank doctor --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			jsonOutput, _ = cmd.Flags().GetBool("json")
			return runDoctor(cmd, verbose, jsonOutput, offline)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed diagnostic info")
	cmd.Flags().Bool("json", false, "Output as JSON")
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip LLM and embedder endpoint checks")

	return cmd
}

func runDoctor(cmd *cobra.Command, verbose, jsonOutput, offline bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, dir, err := loadConfig()
	if err != nil {
		// A config that does not load is itself a finding; the checker
		// reports it rather than aborting the diagnosis.
		cfg = nil
	}

	checker := preflight.New(
		preflight.WithOffline(offline),
		preflight.WithVerbose(verbose),
		preflight.WithOutput(cmd.OutOrStdout()),
	)
	results := checker.RunAll(ctx, cfg, dir)

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		checker.PrintResults(results)
	}

	if checker.HasCriticalFailures(results) {
		return errCriticalChecks
	}
	return nil
}

// errCriticalChecks makes doctor exit non-zero on critical failures
// without double-printing: the results table already explains them.
var errCriticalChecks = &silentError{}

type silentError struct{}

func (*silentError) Error() string { return "critical checks failed" }
