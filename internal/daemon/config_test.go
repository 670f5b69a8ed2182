package daemon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotEmpty(t, cfg.SocketPath, "SocketPath should not be empty")
	assert.NotEmpty(t, cfg.PIDPath, "PIDPath should not be empty")
	assert.Greater(t, cfg.Timeout, time.Duration(0), "Timeout should be positive")
	assert.Greater(t, cfg.ShutdownGrace, time.Duration(0), "ShutdownGrace should be positive")
	assert.NoError(t, cfg.Validate())
}

func TestDefaultConfig_PathsInDataDir(t *testing.T) {
	cfg := DefaultConfig()

	// Both paths live under ~/.medrank
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	expectedDir := filepath.Join(home, ".medrank")
	assert.True(t, strings.HasPrefix(cfg.SocketPath, expectedDir),
		"SocketPath should be under ~/.medrank")
	assert.True(t, strings.HasPrefix(cfg.PIDPath, expectedDir),
		"PIDPath should be under ~/.medrank")
	assert.Equal(t, "daemon.sock", filepath.Base(cfg.SocketPath))
	assert.Equal(t, "daemon.pid", filepath.Base(cfg.PIDPath))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid default config",
			config:  DefaultConfig(),
			wantErr: false,
		},
		{
			name: "empty socket path",
			config: Config{
				SocketPath:    "",
				PIDPath:       "/tmp/test.pid",
				Timeout:       30 * time.Second,
				ShutdownGrace: 10 * time.Second,
			},
			wantErr: true,
			errMsg:  "socket path",
		},
		{
			name: "empty pid path",
			config: Config{
				SocketPath:    "/tmp/test.sock",
				PIDPath:       "",
				Timeout:       30 * time.Second,
				ShutdownGrace: 10 * time.Second,
			},
			wantErr: true,
			errMsg:  "pid path",
		},
		{
			name: "zero timeout",
			config: Config{
				SocketPath:    "/tmp/test.sock",
				PIDPath:       "/tmp/test.pid",
				Timeout:       0,
				ShutdownGrace: 10 * time.Second,
			},
			wantErr: true,
			errMsg:  "timeout",
		},
		{
			name: "zero shutdown grace",
			config: Config{
				SocketPath:    "/tmp/test.sock",
				PIDPath:       "/tmp/test.pid",
				Timeout:       30 * time.Second,
				ShutdownGrace: 0,
			},
			wantErr: true,
			errMsg:  "shutdown grace",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_EnsureDir(t *testing.T) {
	tmpDir := t.TempDir()
	nestedDir := filepath.Join(tmpDir, "nested", "deeply")

	cfg := Config{
		SocketPath:    filepath.Join(nestedDir, "daemon.sock"),
		PIDPath:       filepath.Join(nestedDir, "daemon.pid"),
		Timeout:       30 * time.Second,
		ShutdownGrace: 10 * time.Second,
	}

	_, err := os.Stat(nestedDir)
	require.True(t, os.IsNotExist(err))

	err = cfg.EnsureDir()
	require.NoError(t, err)

	info, err := os.Stat(nestedDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestConfig_EnsureDir_SplitPaths(t *testing.T) {
	// Socket and pid can live in different directories
	tmpDir := t.TempDir()
	cfg := Config{
		SocketPath:    filepath.Join(tmpDir, "run", "daemon.sock"),
		PIDPath:       filepath.Join(tmpDir, "state", "daemon.pid"),
		Timeout:       30 * time.Second,
		ShutdownGrace: 10 * time.Second,
	}

	require.NoError(t, cfg.EnsureDir())

	for _, dir := range []string{filepath.Join(tmpDir, "run"), filepath.Join(tmpDir, "state")} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
