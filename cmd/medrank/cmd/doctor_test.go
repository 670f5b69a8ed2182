package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoctorCmd_FailsWithoutCorpus(t *testing.T) {
	// Given: a project with no corpus configured
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	root := NewRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"doctor", "--offline", "--project", t.TempDir()})

	// When: running doctor offline
	err := root.Execute()

	// Then: the corpus check is critical and doctor exits non-zero
	require.Error(t, err)
	assert.Contains(t, buf.String(), "corpus")
}

func TestDoctorCmd_JSONOutput(t *testing.T) {
	// Given: a project with a tiny valid corpus
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()

	corpusPath := filepath.Join(dir, "practitioners.json")
	require.NoError(t, os.WriteFile(corpusPath,
		[]byte(`[{"id":"p1","name":"Dr A","specialty":"Cardiology"}]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".medrank.yaml"),
		[]byte("version: 1\ncorpus:\n  path: "+corpusPath+"\n"), 0o644))

	root := NewRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"doctor", "--offline", "--json", "--project", dir})

	// When: running doctor with --json
	err := root.Execute()

	// Then: the results decode and include a passing corpus check
	require.NoError(t, err)
	var results []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &results))

	found := false
	for _, r := range results {
		if r["name"] == "corpus" {
			found = true
			// CheckStatus marshals as its integer value; 0 is pass.
			assert.EqualValues(t, 0, r["status"])
		}
	}
	assert.True(t, found, "results should include the corpus check")
}
