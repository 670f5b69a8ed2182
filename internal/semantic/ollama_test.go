package semantic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rankerr "github.com/caresearch/medrank/internal/errors"
)

func embedServer(t *testing.T, handler func(req embedRequest) embedResponse) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.WriteHeader(http.StatusOK)
			return
		}
		require.Equal(t, "/api/embed", r.URL.Path)
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := handler(req)
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestOllamaEmbedder_EmbedBatch(t *testing.T) {
	// Given: a server echoing one 3-dim vector per input
	var seen embedRequest
	srv := embedServer(t, func(req embedRequest) embedResponse {
		seen = req
		return embedResponse{Model: "test-embed", Embeddings: [][]float64{{3, 0, 4}, {0, 5, 0}}}
	})
	defer srv.Close()

	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL, Model: "test-embed"})

	// When: embedding two texts
	vecs, err := e.EmbedBatch(context.Background(), []string{"catheter ablation", "mohs surgery"})

	// Then: the wire request carries model and inputs, and vectors come
	// back normalized
	require.NoError(t, err)
	assert.Equal(t, "test-embed", seen.Model)
	inputs, ok := seen.Input.([]any)
	require.True(t, ok)
	assert.Len(t, inputs, 2)

	require.Len(t, vecs, 2)
	assert.InDelta(t, 0.6, vecs[0][0], 1e-6)
	assert.InDelta(t, 0.8, vecs[0][2], 1e-6)
	assert.InDelta(t, 1.0, vecs[1][1], 1e-6)
	assert.Equal(t, 3, e.Dimensions(), "dimension detected from first response")
}

func TestOllamaEmbedder_EmbedSingle(t *testing.T) {
	srv := embedServer(t, func(req embedRequest) embedResponse {
		return embedResponse{Embeddings: [][]float64{{0, 1}}}
	})
	defer srv.Close()

	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL})

	vec, err := e.Embed(context.Background(), "catheter ablation")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, vec)
}

func TestOllamaEmbedder_EmptyBatch(t *testing.T) {
	e := NewOllamaEmbedder(OllamaConfig{Host: "http://localhost:1"})

	vecs, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestOllamaEmbedder_ServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL})

	_, err := e.Embed(context.Background(), "catheter ablation")
	var rerr *rankerr.RankError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, rankerr.ErrCodeEmbedFailed, rerr.Code)
	assert.Contains(t, rerr.Message, "404")
}

func TestOllamaEmbedder_CountMismatchFails(t *testing.T) {
	srv := embedServer(t, func(req embedRequest) embedResponse {
		return embedResponse{Embeddings: [][]float64{{1, 0}}}
	})
	defer srv.Close()

	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL})

	_, err := e.EmbedBatch(context.Background(), []string{"one", "two"})
	var rerr *rankerr.RankError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, rankerr.ErrCodeEmbedFailed, rerr.Code)
}

func TestOllamaEmbedder_CancelledContext(t *testing.T) {
	srv := embedServer(t, func(req embedRequest) embedResponse {
		return embedResponse{Embeddings: [][]float64{{1}}}
	})
	defer srv.Close()

	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Embed(ctx, "catheter ablation")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOllamaEmbedder_Available(t *testing.T) {
	srv := embedServer(t, func(req embedRequest) embedResponse {
		return embedResponse{}
	})

	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL})
	assert.True(t, e.Available(context.Background()))

	srv.Close()
	assert.False(t, e.Available(context.Background()))
}

func TestOllamaEmbedder_Defaults(t *testing.T) {
	e := NewOllamaEmbedder(OllamaConfig{})

	assert.Equal(t, DefaultEmbedModel, e.ModelName())
	assert.Equal(t, DefaultEmbedHost, e.cfg.Host)
	assert.Equal(t, DefaultEmbedTimeout, e.cfg.Timeout)
}
