package corpus

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	// Given: a provider watching a one-record corpus file
	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`[{"id": "p-1", "name": "Dr A"}]`), 0o644))

	first, err := Load(path)
	require.NoError(t, err)
	provider := NewProvider(first)

	w, err := NewWatcher(provider, path, WithDebounceWindow(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Start(ctx) }()
	time.Sleep(100 * time.Millisecond) // Wait for watcher to start

	// When: the file is rewritten with two records
	require.NoError(t, os.WriteFile(path,
		[]byte(`[{"id": "p-1", "name": "Dr A"}, {"id": "p-2", "name": "Dr B"}]`), 0o644))

	// Then: the provider swaps to the new snapshot
	assert.Eventually(t, func() bool {
		return provider.Corpus().Len() == 2
	}, 3*time.Second, 25*time.Millisecond)

	require.NoError(t, w.Stop())
}

func TestWatcher_KeepsSnapshotOnBadReload(t *testing.T) {
	// Given: a watcher over a valid snapshot
	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`[{"id": "p-1", "name": "Dr A"}]`), 0o644))

	first, err := Load(path)
	require.NoError(t, err)
	provider := NewProvider(first)

	w, err := NewWatcher(provider, path, WithDebounceWindow(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Start(ctx) }()
	time.Sleep(100 * time.Millisecond)

	// When: the file is replaced with garbage
	require.NoError(t, os.WriteFile(path, []byte(`{broken`), 0o644))

	// Then: an error is reported and the old snapshot stays active
	select {
	case err := <-w.Errors():
		require.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for reload error")
	}
	assert.Equal(t, 1, provider.Corpus().Len())
	assert.Equal(t, first.LoadID(), provider.Corpus().LoadID())

	require.NoError(t, w.Stop())
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	// Given: a watched corpus alongside an unrelated file
	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`[{"id": "p-1", "name": "Dr A"}]`), 0o644))

	first, err := Load(path)
	require.NoError(t, err)
	provider := NewProvider(first)

	w, err := NewWatcher(provider, path, WithDebounceWindow(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Start(ctx) }()
	time.Sleep(100 * time.Millisecond)

	// When: only the sibling changes
	sibling := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(sibling, []byte("unrelated"), 0o644))
	time.Sleep(200 * time.Millisecond)

	// Then: the snapshot is untouched
	assert.Equal(t, first.LoadID(), provider.Corpus().LoadID())

	require.NoError(t, w.Stop())
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`[{"id": "p-1", "name": "Dr A"}]`), 0o644))

	first, err := Load(path)
	require.NoError(t, err)

	w, err := NewWatcher(NewProvider(first), path)
	require.NoError(t, err)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}
