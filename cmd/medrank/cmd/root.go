// Package cmd provides the CLI commands for medrank.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/caresearch/medrank/internal/config"
	"github.com/caresearch/medrank/internal/logging"
	"github.com/caresearch/medrank/internal/profiling"
	"github.com/caresearch/medrank/pkg/version"
)

// Profiling flags.
var (
	profileCPU string
	profileMem string
	cpuCleanup func()
)

// Debug logging flag.
var (
	debugMode      bool
	loggingCleanup func()
)

// projectDir is the --project flag: where to look for .medrank.yaml and
// relative corpus paths. Empty walks up from the working directory.
var projectDir string

// NewRootCmd creates the root command for the medrank CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "medrank",
		Short: "Rank medical practitioners against patient queries",
		Long: `medrank ranks medical practitioners in response to free-text patient
queries ("I need SVT ablation", "chest pain near SW5, female cardiologist
who takes Bupa").

A query is understood with three parallel LLM calls, hard filters narrow
the corpus (insurance, gender, specialty, location, NHS, demographics),
weighted BM25 retrieves candidates and structured rescoring orders the
shortlist. The v6 variant refines progressively with an LLM fit judge.

Run 'medrank rank "your query"' to get started.`,
		Version:      version.Version,
		SilenceUsage: true,
	}

	cmd.SetVersionTemplate("medrank version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&projectDir, "project", "", "Project directory holding .medrank.yaml (default: walk up from cwd)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.medrank/logs/")
	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newRankCmd())
	cmd.AddCommand(newBenchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newDaemonCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging starts CPU profiling and debug logging if the
// flags are set.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if debugMode {
		logger, cleanup, err := logging.Setup(logging.DebugConfig())
		if err != nil {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.SetDefault(logger)
		slog.Info("Debug logging enabled",
			slog.String("log_file", logging.DefaultLogPath()))
	}

	if profileCPU != "" {
		var err error
		cpuCleanup, err = profiling.StartCPU(profileCPU)
		if err != nil {
			return fmt.Errorf("failed to start CPU profile: %w", err)
		}
	}

	return nil
}

// stopProfilingAndLogging stops profiling, writes the memory profile if
// requested and closes the debug log.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}

	if profileMem != "" {
		if err := profiling.WriteHeap(profileMem); err != nil {
			return fmt.Errorf("failed to write memory profile: %w", err)
		}
	}

	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}

	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// resolveProjectDir returns the directory configuration loads from: the
// --project flag when set, otherwise the nearest ancestor carrying a
// .medrank.yaml, otherwise the working directory.
func resolveProjectDir() string {
	if projectDir != "" {
		return projectDir
	}
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	return root
}

// loadConfig loads the effective configuration for the resolved project
// directory.
func loadConfig() (*config.Config, string, error) {
	dir := resolveProjectDir()
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, dir, err
	}
	return cfg, dir, nil
}
