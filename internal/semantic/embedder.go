// Package semantic provides the optional semantic score provider: an
// embedder over practitioner profiles, a read-through SQLite embedding
// cache, and an HNSW index answering per-query similarity scores in
// [0,1]. Everything here is best-effort; a missing provider or a missing
// score simply contributes zero to ranking.
package semantic

import (
	"context"
	"math"
	"strings"

	"github.com/caresearch/medrank/internal/corpus"
)

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	// Embed embeds a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts in order; the result has one vector per
	// input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName identifies the model, used as part of cache keys.
	ModelName() string

	// Available reports whether the embedder can serve requests.
	Available(ctx context.Context) bool
}

// ProfileText renders the practitioner fields worth embedding into one
// prose blob. Field order is stable so embeddings are reproducible.
func ProfileText(p *corpus.Practitioner) string {
	parts := make([]string, 0, 8)
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	add(p.Name)
	add(p.Specialty)
	add(p.SpecialtyDescription)
	add(strings.Join(p.Subspecialties, ", "))
	if len(p.ProcedureGroups) > 0 {
		names := make([]string, len(p.ProcedureGroups))
		for i, g := range p.ProcedureGroups {
			names[i] = g.Name
		}
		add(strings.Join(names, ", "))
	}
	add(p.ClinicalExpertise)
	add(p.Description)
	return strings.Join(parts, ". ")
}

// normalizeVector scales v to unit length. A zero vector is returned
// unchanged.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sumSquares))
	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = val * inv
	}
	return out
}
