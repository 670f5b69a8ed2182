// Package daemon keeps a loaded corpus and warm understanding caches
// resident between CLI invocations. Rank requests arrive as JSON-RPC 2.0
// over a unix socket; without the daemon every CLI rank pays corpus load
// and a cold intent cache.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caresearch/medrank/internal/config"
)

// Config holds the daemon transport settings.
type Config struct {
	// SocketPath is the unix domain socket. Default:
	// ~/.medrank/daemon.sock.
	SocketPath string

	// PIDPath stores the daemon process id. Default:
	// ~/.medrank/daemon.pid.
	PIDPath string

	// Timeout bounds one connection, covering the LLM round trips a
	// rank request makes.
	Timeout time.Duration

	// ShutdownGrace is how long shutdown waits for in-flight requests.
	ShutdownGrace time.Duration
}

// DefaultConfig returns the production daemon settings under the
// medrank data directory.
func DefaultConfig() Config {
	dir := config.DataDir()
	return Config{
		SocketPath:    filepath.Join(dir, "daemon.sock"),
		PIDPath:       filepath.Join(dir, "daemon.pid"),
		Timeout:       60 * time.Second,
		ShutdownGrace: 10 * time.Second,
	}
}

// Validate rejects configurations the server cannot run with.
func (c Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket path cannot be empty")
	}
	if c.PIDPath == "" {
		return fmt.Errorf("pid path cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.ShutdownGrace <= 0 {
		return fmt.Errorf("shutdown grace must be positive")
	}
	return nil
}

// EnsureDir creates the directories holding the socket and pid files.
func (c Config) EnsureDir() error {
	socketDir := filepath.Dir(c.SocketPath)
	if err := os.MkdirAll(socketDir, 0o755); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	if pidDir := filepath.Dir(c.PIDPath); pidDir != socketDir {
		if err := os.MkdirAll(pidDir, 0o755); err != nil {
			return fmt.Errorf("create pid directory: %w", err)
		}
	}
	return nil
}
