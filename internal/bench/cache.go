package bench

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	rankerr "github.com/caresearch/medrank/internal/errors"
	"github.com/caresearch/medrank/internal/intent"
	"github.com/caresearch/medrank/internal/rank"
)

// DefaultCacheFile names the session context cache when no explicit
// path is configured. Suffixed variants (benchmark-session-context-
// cache-v2.json) share the format.
const DefaultCacheFile = "benchmark-session-context-cache.json"

// cacheVersion is the on-disk schema version. Additive schema changes
// keep the version; incompatible ones bump it and invalidate old files.
const cacheVersion = 1

// CachedContext is one understood query stored for reuse across study
// runs.
type CachedContext struct {
	Query    string               `json:"query"`
	Context  *rank.SessionContext `json:"context"`
	CachedAt time.Time            `json:"cached_at"`
}

// cacheFile is the on-disk cache layout.
type cacheFile struct {
	Version  int                       `json:"version"`
	Contexts map[string]*CachedContext `json:"contexts"`
}

// ContextCache is a file-backed session context cache shared by study
// processes. Writers coordinate through a sidecar flock and merge with
// the on-disk state before replacing the file, so parallel studies keep
// each other's entries.
type ContextCache struct {
	path string
	lock *flock.Flock

	mu      sync.Mutex
	entries map[string]*CachedContext

	// puts counts Put calls, flushed the count already persisted. Flush
	// is a no-op while they match.
	puts    int
	flushed int
}

// OpenContextCache loads the cache at path. A missing file opens empty.
func OpenContextCache(path string) (*ContextCache, error) {
	entries, err := readCacheFile(path)
	if err != nil {
		return nil, err
	}
	return &ContextCache{
		path:    path,
		lock:    flock.New(path + ".lock"),
		entries: entries,
	}, nil
}

// CacheKey builds the lookup key for a case query. The text is
// lowercased and whitespace-normalized so trivial rephrasings share an
// entry, then hashed to keep the file keys short.
func CacheKey(query string, conversation []intent.Turn) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.Join(strings.Fields(query), " ")))
	for _, t := range conversation {
		b.WriteByte('\x1f')
		b.WriteString(strings.ToLower(t.Role))
		b.WriteByte(':')
		b.WriteString(strings.ToLower(strings.Join(strings.Fields(t.Content), " ")))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:16]
}

// Get returns the cached entry for key.
func (c *ContextCache) Get(key string) (*CachedContext, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e, ok
}

// Put stores entry under key. A zero CachedAt is stamped now. Entries
// without a context are dropped.
func (c *ContextCache) Put(key string, entry *CachedContext) {
	if entry == nil || entry.Context == nil {
		return
	}
	if entry.CachedAt.IsZero() {
		entry.CachedAt = time.Now().UTC()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry
	c.puts++
}

// Len reports the number of cached contexts.
func (c *ContextCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Path returns the cache file path.
func (c *ContextCache) Path() string {
	return c.path
}

// Flush persists new entries. Under the file lock it re-reads the disk
// state, merges this process's entries over it, and replaces the file
// atomically. A clean cache is a no-op.
func (c *ContextCache) Flush() error {
	c.mu.Lock()
	if c.puts == c.flushed {
		c.mu.Unlock()
		return nil
	}
	mark := c.puts
	ours := make(map[string]*CachedContext, len(c.entries))
	for k, v := range c.entries {
		ours[k] = v
	}
	c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	if err := c.lock.Lock(); err != nil {
		return fmt.Errorf("lock session context cache: %w", err)
	}
	defer func() { _ = c.lock.Unlock() }()

	disk, err := readCacheFile(c.path)
	if err != nil {
		return err
	}
	for k, v := range ours {
		disk[k] = v
	}
	if err := writeCacheFile(c.path, disk); err != nil {
		return err
	}

	c.mu.Lock()
	for k, v := range disk {
		if _, ok := c.entries[k]; !ok {
			c.entries[k] = v
		}
	}
	c.flushed = mark
	c.mu.Unlock()
	return nil
}

// readCacheFile loads the entries at path. A missing file is an empty
// cache; an unparseable or incompatible one is corrupt.
func readCacheFile(path string) (map[string]*CachedContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]*CachedContext), nil
		}
		return nil, fmt.Errorf("read session context cache: %w", err)
	}

	var f cacheFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, rankerr.New(rankerr.ErrCodeCacheCorrupt,
			fmt.Sprintf("parse session context cache %s", filepath.Base(path)), err).
			WithSuggestion("Delete the cache file; contexts are regenerated on the next run")
	}
	if f.Version != cacheVersion {
		return nil, rankerr.New(rankerr.ErrCodeCacheCorrupt,
			fmt.Sprintf("session context cache %s has version %d, want %d",
				filepath.Base(path), f.Version, cacheVersion), nil).
			WithSuggestion("Delete the cache file; contexts are regenerated on the next run")
	}
	if f.Contexts == nil {
		f.Contexts = make(map[string]*CachedContext)
	}
	return f.Contexts, nil
}

// writeCacheFile atomically replaces the cache file (temp file +
// rename).
func writeCacheFile(path string, entries map[string]*CachedContext) error {
	data, err := json.MarshalIndent(cacheFile{Version: cacheVersion, Contexts: entries}, "", "  ")
	if err != nil {
		return rankerr.New(rankerr.ErrCodeStoreFailed, "encode session context cache", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return rankerr.New(rankerr.ErrCodeStoreFailed, "write session context cache", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return rankerr.New(rankerr.ErrCodeStoreFailed, "replace session context cache", err)
	}
	return nil
}
