package semantic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestStaticEmbedder_Deterministic(t *testing.T) {
	e := NewStaticEmbedder()

	first, err := e.Embed(context.Background(), "interventional cardiology angioplasty")
	require.NoError(t, err)
	second, err := e.Embed(context.Background(), "interventional cardiology angioplasty")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestStaticEmbedder_UnitLength(t *testing.T) {
	e := NewStaticEmbedder()

	vec, err := e.Embed(context.Background(), "complex arrhythmia management")
	require.NoError(t, err)

	require.Len(t, vec, StaticDimensions)
	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, sumSquares, 1e-5)
}

func TestStaticEmbedder_EmptyTextIsZeroVector(t *testing.T) {
	e := NewStaticEmbedder()

	vec, err := e.Embed(context.Background(), "   \n\t ")
	require.NoError(t, err)

	require.Len(t, vec, StaticDimensions)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestStaticEmbedder_RelatedTextScoresCloser(t *testing.T) {
	// Shared tokens and trigrams should pull related clinical phrases
	// together; an unrelated specialty shares almost nothing.
	e := NewStaticEmbedder()
	ctx := context.Background()

	cardio, err := e.Embed(ctx, "interventional cardiology angioplasty stent placement")
	require.NoError(t, err)
	cardioAlt, err := e.Embed(ctx, "interventional cardiology cardiac catheterization")
	require.NoError(t, err)
	derm, err := e.Embed(ctx, "paediatric dermatology eczema rash treatment")
	require.NoError(t, err)

	assert.Greater(t, cosine(cardio, cardioAlt), cosine(cardio, derm))
}

func TestStaticEmbedder_Batch(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	vecs, err := e.EmbedBatch(ctx, []string{"catheter ablation", "mohs surgery"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)

	single, err := e.Embed(ctx, "catheter ablation")
	require.NoError(t, err)
	assert.Equal(t, single, vecs[0])

	empty, err := e.EmbedBatch(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStaticEmbedder_Metadata(t *testing.T) {
	e := NewStaticEmbedder()

	assert.Equal(t, StaticDimensions, e.Dimensions())
	assert.Equal(t, "static", e.ModelName())
	assert.True(t, e.Available(context.Background()))
}

func TestExtractNgrams(t *testing.T) {
	assert.Equal(t, []string{"car", "ard", "rdi", "dio"}, extractNgrams("cardio", 3))
	assert.Empty(t, extractNgrams("ab", 3))
}

func TestStaticTokens_DropsQueryFiller(t *testing.T) {
	got := staticTokens("Best doctor for atrial fibrillation treatment")

	assert.NotContains(t, got, "best")
	assert.NotContains(t, got, "doctor")
	assert.NotContains(t, got, "treatment")
	assert.Contains(t, got, "atrial")
	assert.Contains(t, got, "fibrillation")
}
