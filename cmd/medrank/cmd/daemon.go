package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/caresearch/medrank/internal/config"
	"github.com/caresearch/medrank/internal/corpus"
	"github.com/caresearch/medrank/internal/daemon"
	"github.com/caresearch/medrank/internal/logging"
	"github.com/caresearch/medrank/internal/output"
)

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the background ranking daemon",
		Long: `The daemon keeps the corpus loaded and the query understanding cache
warm between CLI calls, so repeated ranks skip corpus load and repeated
queries skip their LLM round trips.

Commands:
  start   Start the daemon (background by default)
  stop    Stop the running daemon
  status  Show daemon status

Examples:
  medrank daemon start      # Start in background
  medrank daemon start -f   # Run in foreground (for debugging)
  medrank daemon status
  medrank daemon stop`,
	}

	cmd.AddCommand(newDaemonStartCmd())
	cmd.AddCommand(newDaemonStopCmd())
	cmd.AddCommand(newDaemonStatusCmd())

	return cmd
}

func newDaemonStartCmd() *cobra.Command {
	var foreground bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the background daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemonStart(cmd.Context(), cmd, foreground)
		},
	}

	cmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (don't daemonize)")
	return cmd
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemonStop(cmd)
		},
	}
}

func newDaemonStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemonStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runDaemonStart(ctx context.Context, cmd *cobra.Command, foreground bool) error {
	out := output.New(cmd.OutOrStdout())
	dcfg := daemonConfig()

	client := daemon.NewClient(dcfg)
	if client.IsRunning() {
		out.Status("", "Daemon is already running")
		return nil
	}

	if foreground {
		logCfg := logging.DefaultConfig()
		logCfg.WriteToStderr = true
		if logger, cleanup, err := logging.Setup(logCfg); err == nil {
			slog.SetDefault(logger)
			defer cleanup()
		}

		out.Statusf("", "Socket: %s", dcfg.SocketPath)
		out.Statusf("", "Logs: %s", logging.DefaultLogPath())
		out.Status("", "Press Ctrl+C to stop")
		out.Newline()

		return serveDaemon(ctx, dcfg)
	}

	// Background: re-exec ourselves in foreground mode, detached.
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("cannot locate executable: %w", err)
	}
	args := []string{"daemon", "start", "--foreground"}
	if projectDir != "" {
		args = append(args, "--project", projectDir)
	}
	child := exec.Command(exe, args...)
	child.Stdout = nil
	child.Stderr = nil
	child.Stdin = nil
	if err := child.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	// Intentionally not waiting: the child outlives this process.
	_ = child.Process.Release()

	// Give it a moment to bind the socket so the status line is honest.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if client.IsRunning() {
			out.Successf("Daemon started (socket: %s)", dcfg.SocketPath)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	out.Warning("Daemon did not report ready within 5s; check 'medrank daemon status'")
	return nil
}

// serveDaemon loads the corpus, wires the ranking service and serves the
// unix socket until ctx is cancelled.
func serveDaemon(ctx context.Context, dcfg daemon.Config) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

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

	handler := &daemon.RankHandler{
		Service:  svc.ranker,
		Provider: svc.provider,
		Metrics:  svc.metrics,
	}
	server, err := daemon.NewServer(dcfg, handler)
	if err != nil {
		return err
	}
	server.SetLogger(slog.Default())
	return server.ListenAndServe(ctx)
}

func runDaemonStop(cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())
	dcfg := daemonConfig()

	client := daemon.NewClient(dcfg)
	if !client.IsRunning() {
		out.Status("", "Daemon is not running")
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	if err := client.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown daemon: %w", err)
	}
	out.Success("Daemon stopped")
	return nil
}

func runDaemonStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	out := output.New(cmd.OutOrStdout())
	dcfg := daemonConfig()

	client := daemon.NewClient(dcfg)
	if !client.IsRunning() {
		if jsonOutput {
			return out.JSON(map[string]any{"running": false})
		}
		out.Status("", "Daemon is not running")
		return nil
	}

	st, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("daemon status: %w", err)
	}
	if jsonOutput {
		return out.JSON(st)
	}

	out.Success("Daemon is running")
	out.Detail(fmt.Sprintf("PID: %d", st.PID))
	out.Detail(fmt.Sprintf("Uptime: %s", st.Uptime))
	out.Detail(fmt.Sprintf("Corpus: %d practitioners (%s)", st.CorpusSize, st.CorpusPath))
	out.Detail(fmt.Sprintf("Intent cache: %d entries", st.IntentCacheLen))
	out.Detail(fmt.Sprintf("Requests served: %d", st.RequestsServed))
	return nil
}

// daemonConfig builds the transport settings, honoring overrides from
// the effective configuration when it loads.
func daemonConfig() daemon.Config {
	dcfg := daemon.DefaultConfig()
	cfg, _, err := loadConfig()
	if err != nil {
		return dcfg
	}
	if cfg.Daemon.SocketPath != "" {
		dcfg.SocketPath = cfg.SocketPath()
	}
	if cfg.Daemon.PIDPath != "" {
		dcfg.PIDPath = cfg.PIDPath()
	}
	dcfg.Timeout = cfg.DaemonTimeout()
	dcfg.ShutdownGrace = cfg.DaemonShutdownGrace()
	return dcfg
}

// startCorpusWatch reloads the corpus on file changes when enabled.
// Returns a stop func, or (nil, nil) when watching is disabled.
func startCorpusWatch(ctx context.Context, cfg *config.Config, svc *services) (func(), error) {
	if !cfg.Corpus.Watch {
		return nil, nil
	}
	w, err := corpus.NewWatcher(svc.provider, cfg.Corpus.Path)
	if err != nil {
		return nil, err
	}
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	go func() {
		for err := range w.Errors() {
			slog.Warn("corpus reload failed", slog.String("error", err.Error()))
		}
	}()
	return func() { _ = w.Stop() }, nil
}
