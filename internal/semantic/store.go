package semantic

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	rankerr "github.com/caresearch/medrank/internal/errors"
)

// DefaultCacheFile is the embedding cache filename inside the medrank
// data directory.
const DefaultCacheFile = "embeddings.db"

// Store persists embeddings in SQLite so profile vectors survive
// restarts and model re-pulls. Vectors are keyed by (model, text hash);
// re-embedding the same corpus with the same model is a pure read.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	closed bool
}

// NewStore opens (or creates) the embedding store at path. An empty
// path opens an in-memory store for testing.
func NewStore(path string) (*Store, error) {
	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, rankerr.New(rankerr.ErrCodeStoreFailed,
				fmt.Sprintf("create cache directory %s", dir), err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, rankerr.New(rankerr.ErrCodeStoreFailed, "open embedding cache", err)
	}

	// Single writer to prevent lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL mode must be set via PRAGMA for modernc.org/sqlite; DSN
	// params are ignored.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -16384",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, rankerr.New(rankerr.ErrCodeStoreFailed, "set pragma", err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, rankerr.New(rankerr.ErrCodeStoreFailed, "initialize cache schema", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS embeddings (
		model     TEXT NOT NULL,
		text_hash TEXT NOT NULL,
		dims      INTEGER NOT NULL,
		vector    BLOB NOT NULL,
		PRIMARY KEY (model, text_hash)
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get returns the cached vector for (model, textHash), or ok=false on
// a miss.
func (s *Store) Get(ctx context.Context, model, textHash string) ([]float32, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, rankerr.New(rankerr.ErrCodeStoreFailed, "embedding cache is closed", nil)
	}

	var dims int
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT dims, vector FROM embeddings WHERE model = ? AND text_hash = ?`,
		model, textHash).Scan(&dims, &blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, rankerr.New(rankerr.ErrCodeStoreFailed, "read embedding cache", err)
	}

	vec, err := decodeVector(blob, dims)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

// Put stores a vector under (model, textHash), replacing any previous
// entry.
func (s *Store) Put(ctx context.Context, model, textHash string, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return rankerr.New(rankerr.ErrCodeStoreFailed, "embedding cache is closed", nil)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO embeddings (model, text_hash, dims, vector) VALUES (?, ?, ?, ?)`,
		model, textHash, len(vec), encodeVector(vec))
	if err != nil {
		return rankerr.New(rankerr.ErrCodeStoreFailed, "write embedding cache", err)
	}
	return nil
}

// Len returns the number of cached embeddings across all models.
func (s *Store) Len(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, rankerr.New(rankerr.ErrCodeStoreFailed, "embedding cache is closed", nil)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&n); err != nil {
		return 0, rankerr.New(rankerr.ErrCodeStoreFailed, "count embedding cache", err)
	}
	return n, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// encodeVector packs float32 values little-endian.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// decodeVector unpacks a little-endian float32 blob, validating it
// against the declared dimension.
func decodeVector(blob []byte, dims int) ([]float32, error) {
	if len(blob) != 4*dims {
		return nil, rankerr.New(rankerr.ErrCodeCacheCorrupt,
			fmt.Sprintf("embedding blob is %d bytes, want %d for %d dims", len(blob), 4*dims, dims), nil)
	}
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	return vec, nil
}

// TextHash derives the cache key for a text under a model. SHA-256
// keeps keys fixed-length for arbitrary profile text.
func TextHash(text, model string) string {
	hash := sha256.Sum256([]byte(text + "\x00" + model))
	return hex.EncodeToString(hash[:])
}

// DefaultQueryCacheSize bounds the in-memory query vector cache.
const DefaultQueryCacheSize = 1000

// CachedEmbedder wraps an Embedder with a read-through SQLite store
// and a small in-memory LRU. Corpus re-embeds hit the store; repeated
// queries within a session hit the LRU.
type CachedEmbedder struct {
	inner Embedder
	store *Store
	cache *lru.Cache[string, []float32]
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps inner with store-backed caching. A nil store
// disables persistence; only the LRU applies.
func NewCachedEmbedder(inner Embedder, store *Store) *CachedEmbedder {
	cache, _ := lru.New[string, []float32](DefaultQueryCacheSize)
	return &CachedEmbedder{inner: inner, store: store, cache: cache}
}

func (c *CachedEmbedder) key(text string) string {
	return TextHash(text, c.inner.ModelName())
}

// lookup checks the LRU, then the store. Store read errors are
// swallowed; a broken cache degrades to recomputation.
func (c *CachedEmbedder) lookup(ctx context.Context, key string) ([]float32, bool) {
	if vec, ok := c.cache.Get(key); ok {
		return vec, true
	}
	if c.store == nil {
		return nil, false
	}
	vec, ok, err := c.store.Get(ctx, c.inner.ModelName(), key)
	if err != nil || !ok {
		return nil, false
	}
	c.cache.Add(key, vec)
	return vec, true
}

func (c *CachedEmbedder) save(ctx context.Context, key string, vec []float32) {
	c.cache.Add(key, vec)
	if c.store != nil {
		_ = c.store.Put(ctx, c.inner.ModelName(), key, vec)
	}
}

// Embed returns the cached embedding if available, otherwise computes
// and caches.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	if vec, ok := c.lookup(ctx, key); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.save(ctx, key, vec)
	return vec, nil
}

// EmbedBatch checks each text against the cache and embeds only the
// misses in one inner batch.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	missIndices := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		if vec, ok := c.lookup(ctx, c.key(text)); ok {
			results[i] = vec
		} else {
			missIndices = append(missIndices, i)
			missTexts = append(missTexts, text)
		}
	}
	if len(missTexts) == 0 {
		return results, nil
	}

	fresh, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, rankerr.New(rankerr.ErrCodeEmbedFailed,
			fmt.Sprintf("batch embed returned %d vectors for %d texts", len(fresh), len(missTexts)), nil)
	}

	for j, idx := range missIndices {
		results[idx] = fresh[j]
		c.save(ctx, c.key(texts[idx]), fresh[j])
	}
	return results, nil
}

// Dimensions passes through to the inner embedder.
func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

// ModelName passes through to the inner embedder.
func (c *CachedEmbedder) ModelName() string {
	return c.inner.ModelName()
}

// Available passes through to the inner embedder.
func (c *CachedEmbedder) Available(ctx context.Context) bool {
	return c.inner.Available(ctx)
}
