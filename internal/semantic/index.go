package semantic

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	rankerr "github.com/caresearch/medrank/internal/errors"
)

// Index is an HNSW nearest-neighbor index over practitioner profile
// embeddings. Cosine distance only; vectors are normalized on insert
// so search scores land in [0, 1].
type Index struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	dims  int

	// Practitioner ID <-> internal key mapping.
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
}

// indexMetadata stores ID mappings for persistence.
type indexMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
	Dims    int
}

// Hit is one nearest-neighbor match.
type Hit struct {
	ID    string
	Score float64
}

// NewIndex creates an empty index for vectors of the given dimension.
func NewIndex(dims int) *Index {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	return &Index{
		graph:  graph,
		dims:   dims,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

// Add inserts vectors under their practitioner IDs. Re-adding an ID
// orphans the old node rather than deleting it; coder/hnsw breaks when
// the last graph node is removed.
func (x *Index) Add(ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	for _, v := range vectors {
		if len(v) != x.dims {
			return fmt.Errorf("vector dimension mismatch: want %d, got %d", x.dims, len(v))
		}
	}

	for i, id := range ids {
		if existingKey, exists := x.idMap[id]; exists {
			delete(x.keyMap, existingKey)
			delete(x.idMap, id)
		}

		key := x.nextKey
		x.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		vec = normalizeVector(vec)

		x.graph.Add(hnsw.MakeNode(key, vec))
		x.idMap[id] = key
		x.keyMap[key] = id
	}

	return nil
}

// Search returns up to k nearest practitioners by cosine similarity.
func (x *Index) Search(query []float32, k int) ([]Hit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(query) != x.dims {
		return nil, fmt.Errorf("query dimension mismatch: want %d, got %d", x.dims, len(query))
	}
	if x.graph.Len() == 0 {
		return []Hit{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalized = normalizeVector(normalized)

	nodes := x.graph.Search(normalized, k)

	hits := make([]Hit, 0, len(nodes))
	for _, node := range nodes {
		id, exists := x.keyMap[node.Key]
		if !exists {
			// Orphaned by a re-add; skip.
			continue
		}
		distance := x.graph.Distance(normalized, node.Value)
		// Cosine distance spans 0 (identical) to 2 (opposite).
		hits = append(hits, Hit{ID: id, Score: float64(1.0 - distance/2.0)})
	}
	return hits, nil
}

// Contains reports whether id is indexed.
func (x *Index) Contains(id string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, exists := x.idMap[id]
	return exists
}

// Len returns the number of indexed practitioners.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.idMap)
}

// Dimensions returns the vector dimension the index was built for.
func (x *Index) Dimensions() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dims
}

// Save persists the index atomically (temp file + rename). The graph
// goes to path, the ID mappings to path.meta.
func (x *Index) Save(path string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return rankerr.New(rankerr.ErrCodeStoreFailed, "create index directory", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return rankerr.New(rankerr.ErrCodeStoreFailed, "create index file", err)
	}
	if err := x.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return rankerr.New(rankerr.ErrCodeStoreFailed, "export index graph", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return rankerr.New(rankerr.ErrCodeStoreFailed, "close index file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return rankerr.New(rankerr.ErrCodeStoreFailed, "rename index file", err)
	}

	if err := x.saveMetadata(path + ".meta"); err != nil {
		return rankerr.New(rankerr.ErrCodeStoreFailed, "save index metadata", err)
	}
	return nil
}

func (x *Index) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	meta := indexMetadata{
		IDMap:   x.idMap,
		NextKey: x.nextKey,
		Dims:    x.dims,
	}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// Load replaces the index contents from a saved graph and metadata.
func (x *Index) Load(path string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.loadMetadata(path + ".meta"); err != nil {
		return rankerr.New(rankerr.ErrCodeCacheCorrupt, "load index metadata", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return rankerr.New(rankerr.ErrCodeStoreFailed, "open index file", err)
	}
	defer func() { _ = file.Close() }()

	// coder/hnsw Import requires an io.ByteReader.
	if err := x.graph.Import(bufio.NewReader(file)); err != nil {
		return rankerr.New(rankerr.ErrCodeCacheCorrupt, "import index graph", err)
	}
	return nil
}

func (x *Index) loadMetadata(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	var meta indexMetadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return err
	}

	x.idMap = meta.IDMap
	x.nextKey = meta.NextKey
	x.dims = meta.Dims
	x.keyMap = make(map[uint64]string, len(meta.IDMap))
	for id, key := range x.idMap {
		x.keyMap[key] = id
	}
	return nil
}
