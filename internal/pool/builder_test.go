package pool

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caresearch/medrank/internal/corpus"
	rankerr "github.com/caresearch/medrank/internal/errors"
	"github.com/caresearch/medrank/internal/rank"
)

func mustBuilder(t *testing.T, opts ...Option) *Builder {
	t.Helper()
	e, err := rank.NewEngine(rank.DefaultConfig())
	require.NoError(t, err)
	return NewBuilder(e, opts...)
}

// benchCorpus builds nCardio electrophysiology practitioners that match
// an SVT query and nOther practitioners that do not.
func benchCorpus(nCardio, nOther int) []*corpus.Practitioner {
	out := make([]*corpus.Practitioner, 0, nCardio+nOther)
	for i := 0; i < nCardio; i++ {
		out = append(out, &corpus.Practitioner{
			ID:                fmt.Sprintf("cardio-%03d", i+1),
			Name:              fmt.Sprintf("Dr Cardio %d", i+1),
			Specialty:         "Cardiology",
			Subspecialties:    []string{"Electrophysiology"},
			ClinicalExpertise: "Procedure: Catheter ablation; Condition: SVT arrhythmia",
			ReviewCount:       10 + i,
		})
	}
	for i := 0; i < nOther; i++ {
		out = append(out, &corpus.Practitioner{
			ID:        fmt.Sprintf("misc-%03d", i+1),
			Name:      fmt.Sprintf("Dr Misc %d", i+1),
			Specialty: "Dermatology",
		})
	}
	return out
}

func memberIDs(members []*Member) []string {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.Practitioner.ID
	}
	return ids
}

// =============================================================================
// Strategies end to end
// =============================================================================

func TestBuild_RankingOnly(t *testing.T) {
	b := mustBuilder(t)
	sctx := &rank.SessionContext{QPatient: "svt ablation"}

	members, err := b.Build(context.Background(), benchCorpus(10, 40), sctx, StrategyRankingOnly)

	require.NoError(t, err)
	// Zero-score filler guarantees the full 30 even though only ten match.
	require.Len(t, members, 30)
	for _, m := range members {
		assert.Equal(t, []string{SourcePipeline}, m.Sources)
	}
	// The matching practitioners lead the pool.
	assert.Contains(t, members[0].Practitioner.ID, "cardio-")
}

func TestBuild_HybridBM25SharesAndLabels(t *testing.T) {
	b := mustBuilder(t)
	// No rescoring signals: pipeline and BM25-only produce the same
	// ordering, so the pipeline's 20 sit inside the BM25 40.
	sctx := &rank.SessionContext{QPatient: "svt ablation"}

	members, err := b.Build(context.Background(), benchCorpus(10, 50), sctx, StrategyHybridBM25)

	require.NoError(t, err)
	require.Len(t, members, 40)
	for _, m := range members[:20] {
		assert.True(t, m.HasSource(SourcePipeline), "%s should carry the pipeline label", m.Practitioner.ID)
		assert.True(t, m.HasSource(SourceBM25), "%s should carry the bm25 label", m.Practitioner.ID)
	}
	for _, m := range members[20:] {
		assert.Equal(t, []string{SourceBM25}, m.Sources)
	}
}

func TestBuild_HybridRandomDrawsOutsidePipelineTop30(t *testing.T) {
	b := mustBuilder(t, WithRand(rand.New(rand.NewSource(42))))
	sctx := &rank.SessionContext{QPatient: "svt ablation"}
	candidates := benchCorpus(10, 50)

	members, err := b.Build(context.Background(), candidates, sctx, StrategyHybridRandom)

	require.NoError(t, err)
	// 20 pipeline + 20 random with no possible overlap.
	require.Len(t, members, 40)

	// Recompute the pipeline top 30 the exclusion is based on.
	e, rerr := rank.NewEngine(rank.DefaultConfig())
	require.NoError(t, rerr)
	top30, rerr := e.Rank(context.Background(), candidates, sctx, rank.Options{TopN: 30})
	require.NoError(t, rerr)
	excluded := make(map[string]bool, len(top30))
	for _, r := range top30 {
		excluded[r.Practitioner.ID] = true
	}

	randoms := 0
	for _, m := range members {
		if m.HasSource(SourceRandom) {
			randoms++
			assert.False(t, excluded[m.Practitioner.ID],
				"random draw %s is inside the pipeline top 30", m.Practitioner.ID)
		}
	}
	assert.Equal(t, 20, randoms)
}

func TestBuild_HybridRandomReproducibleWithSeed(t *testing.T) {
	sctx := &rank.SessionContext{QPatient: "svt ablation"}
	candidates := benchCorpus(10, 50)

	first, err := mustBuilder(t, WithRand(rand.New(rand.NewSource(7)))).
		Build(context.Background(), candidates, sctx, StrategyHybridRandom)
	require.NoError(t, err)
	second, err := mustBuilder(t, WithRand(rand.New(rand.NewSource(7)))).
		Build(context.Background(), candidates, sctx, StrategyHybridRandom)
	require.NoError(t, err)

	assert.Equal(t, memberIDs(first), memberIDs(second))
}

func TestBuild_MultiSourceBlendsFourRetrievers(t *testing.T) {
	b := mustBuilder(t, WithRand(rand.New(rand.NewSource(3))))
	sctx := &rank.SessionContext{QPatient: "svt catheter ablation"}

	members, err := b.Build(context.Background(), benchCorpus(20, 40), sctx, StrategyMultiSource)

	require.NoError(t, err)
	require.NotEmpty(t, members)
	assert.LessOrEqual(t, len(members), 55)

	seenSources := make(map[string]bool)
	seenIDs := make(map[string]bool)
	for _, m := range members {
		assert.False(t, seenIDs[m.Practitioner.ID], "duplicate member %s", m.Practitioner.ID)
		seenIDs[m.Practitioner.ID] = true
		for _, s := range m.Sources {
			seenSources[s] = true
		}
	}
	for _, want := range []string{SourcePipeline, SourceBM25, SourceKeyword, SourceRandom} {
		assert.True(t, seenSources[want], "no member came from %s", want)
	}
}

// =============================================================================
// Edge cases
// =============================================================================

func TestBuild_UnknownStrategy(t *testing.T) {
	b := mustBuilder(t)

	_, err := b.Build(context.Background(), benchCorpus(2, 2),
		&rank.SessionContext{QPatient: "q"}, Strategy("best_effort"))

	require.Error(t, err)
	var re *rankerr.RankError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, rankerr.ErrCodeInvalidInput, re.Code)
}

func TestBuild_EmptyCandidates(t *testing.T) {
	b := mustBuilder(t)

	members, err := b.Build(context.Background(), nil,
		&rank.SessionContext{QPatient: "q"}, StrategyHybridBM25)

	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestBuild_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := mustBuilder(t)

	_, err := b.Build(ctx, benchCorpus(10, 600),
		&rank.SessionContext{QPatient: "svt ablation"}, StrategyHybridBM25)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// Union semantics
// =============================================================================

func TestUnion_CapAndLabelMerging(t *testing.T) {
	u := newUnion(2)
	a := &corpus.Practitioner{ID: "a"}
	b := &corpus.Practitioner{ID: "b"}
	c := &corpus.Practitioner{ID: "c"}

	u.add(a, SourcePipeline)
	u.add(b, SourcePipeline)
	u.add(c, SourceBM25) // over cap, dropped
	u.add(a, SourceBM25) // existing member gains a label
	u.add(a, SourceBM25) // duplicate label ignored

	members := u.members()
	require.Len(t, members, 2)
	assert.Equal(t, []string{"a", "b"}, memberIDs(members))
	assert.Equal(t, []string{SourcePipeline, SourceBM25}, members[0].Sources)
	assert.Equal(t, []string{SourcePipeline}, members[1].Sources)
}
