package cmd

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/caresearch/medrank/internal/logging"
	"github.com/caresearch/medrank/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ranking engine over MCP (stdio)",
		Long: `Serve the ranking engine as an MCP server on stdio.

Exposes the rank_practitioners and corpus_status tools plus a
query-metrics resource, for AI assistants that speak the Model Context
Protocol.

stdout carries JSON-RPC exclusively; all diagnostics go to the log file.
Use 'medrank doctor' for human-readable health output.

Example Claude Code registration:
  claude mcp add medrank -- medrank serve --project /path/to/project`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, watch)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Reload the corpus when its file changes")
	return cmd
}

func runServe(cmd *cobra.Command, watch bool) error {
	// stdout is the MCP transport: nothing else may write to it, so
	// logging goes to file only.
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		slog.SetDefault(logger)
		defer cleanup()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}
	if watch {
		cfg.Corpus.Watch = true
	}
	slog.Info("MCP serve starting", slog.String("project", dir))

	svc, err := buildServices(ctx, cfg, serviceOptions{semantic: true, telemetry: true})
	if err != nil {
		return err
	}
	defer svc.close()

	watchCleanup, err := startCorpusWatch(ctx, cfg, svc)
	if err != nil {
		slog.Warn("corpus watch unavailable", slog.String("error", err.Error()))
	} else if watchCleanup != nil {
		defer watchCleanup()
	}

	server, err := mcp.NewServer(svc.ranker, svc.provider)
	if err != nil {
		return err
	}
	defer server.Close()
	if svc.metrics != nil {
		server.SetMetrics(svc.metrics)
	}

	return server.Serve(ctx, "stdio", "")
}
