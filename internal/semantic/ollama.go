package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	rankerr "github.com/caresearch/medrank/internal/errors"
)

const (
	// DefaultEmbedHost is the default Ollama endpoint.
	DefaultEmbedHost = "http://localhost:11434"

	// DefaultEmbedModel is a general-purpose text embedding model suited
	// to clinical prose.
	DefaultEmbedModel = "nomic-embed-text"

	// DefaultEmbedTimeout bounds one embedding request.
	DefaultEmbedTimeout = 30 * time.Second

	// defaultEmbedBatch is how many texts one /api/embed call carries.
	defaultEmbedBatch = 32
)

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	// Host is the Ollama endpoint (default http://localhost:11434).
	Host string

	// Model is the embedding model (default nomic-embed-text).
	Model string

	// Timeout bounds each request when the context has no deadline.
	Timeout time.Duration

	// Dimensions, when zero, is detected from the first embedding.
	Dimensions int
}

// OllamaEmbedder embeds text via Ollama's /api/embed endpoint.
type OllamaEmbedder struct {
	client *http.Client
	cfg    OllamaConfig
	dims   int
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder returns an embedder for cfg. No connection is made
// until the first call.
func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	if cfg.Host == "" {
		cfg.Host = DefaultEmbedHost
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultEmbedModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultEmbedTimeout
	}
	// The client carries no Timeout of its own; per-request contexts
	// control cancellation.
	return &OllamaEmbedder{
		client: &http.Client{},
		cfg:    cfg,
		dims:   cfg.Dimensions,
	}
}

// embedRequest is the /api/embed request body. Input is a string or a
// []string for batches.
type embedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

// embedResponse is the /api/embed response body.
type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// Embed implements Embedder.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, rankerr.New(rankerr.ErrCodeEmbedFailed, "empty embedding response", nil)
	}
	return vecs[0], nil
}

// EmbedBatch implements Embedder, splitting texts into request-sized
// chunks.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += defaultEmbedBatch {
		end := start + defaultEmbedBatch
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := e.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *OllamaEmbedder) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(embedRequest{Model: e.cfg.Model, Input: texts})
	if err != nil {
		return nil, rankerr.New(rankerr.ErrCodeInternal, "marshal embed request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, rankerr.New(rankerr.ErrCodeInternal, "build embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, rankerr.New(rankerr.ErrCodeEmbedFailed, "embedding service unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, rankerr.New(rankerr.ErrCodeEmbedFailed,
			fmt.Sprintf("embedding request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))), nil)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, rankerr.New(rankerr.ErrCodeEmbedFailed, "decode embed response", err)
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, rankerr.New(rankerr.ErrCodeEmbedFailed,
			fmt.Sprintf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(parsed.Embeddings)), nil)
	}

	out := make([][]float32, len(parsed.Embeddings))
	for i, vec64 := range parsed.Embeddings {
		vec := make([]float32, len(vec64))
		for j, v := range vec64 {
			vec[j] = float32(v)
		}
		out[i] = normalizeVector(vec)
		if e.dims == 0 {
			e.dims = len(vec)
		}
	}
	return out, nil
}

// Dimensions returns the configured or detected dimension; zero before
// the first successful call when not configured.
func (e *OllamaEmbedder) Dimensions() int {
	return e.dims
}

// ModelName implements Embedder.
func (e *OllamaEmbedder) ModelName() string {
	return e.cfg.Model
}

// Available probes the Ollama tags endpoint.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}
