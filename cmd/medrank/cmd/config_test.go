package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigInit_CreatesUserConfig(t *testing.T) {
	// Given: a clean config home
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)

	cmd := newConfigInitCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	// When: running config init
	err := cmd.Execute()

	// Then: the template is written
	require.NoError(t, err)
	path := filepath.Join(tmp, "medrank", "config.yaml")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "llm:")
	assert.Contains(t, buf.String(), "Created")
}

func TestConfigInit_RefusesOverwriteWithoutForce(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)

	dir := filepath.Join(tmp, "medrank")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))

	cmd := newConfigInitCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())

	// Then: the existing file is untouched
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "version: 1\n", string(data))
	assert.Contains(t, buf.String(), "already exists")
}

func TestInitCmd_CreatesProjectConfig(t *testing.T) {
	// Given: an empty project directory passed via --project
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	root := NewRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"init", "--project", tmp})

	// When: running medrank init
	err := root.Execute()

	// Then: .medrank.yaml exists with the corpus section
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(tmp, ".medrank.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "corpus:")
}

func TestConfigShow_PrintsEffectiveConfig(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	root := NewRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"config", "show", "--project", tmp})

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "ranking:")
}
