package bench

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rankerr "github.com/caresearch/medrank/internal/errors"
)

// =============================================================================
// Fixtures
// =============================================================================

// writeCases writes a case file into a temp dir and returns its path.
func writeCases(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const cardioCases = `{
	"study": "cardio-smoke",
	"description": "Cardiology retrieval smoke cases.",
	"variant": "two-stage",
	"top_k": 10,
	"cases": [
		{"id": "svt-ablation", "query": "I need SVT ablation",
		 "filters": {"specialty": "Cardiology"},
		 "expected_ids": ["ep-1"]},
		{"id": "chest-pain", "query": "chest pain when walking uphill",
		 "filters": {"specialty": "Cardiology", "city": "London", "radius_miles": 10},
		 "variant": "v5", "top_k": 5},
		{"id": "conversation-only",
		 "conversation": [
			{"role": "user", "content": "I keep getting palpitations"},
			{"role": "assistant", "content": "How often do they occur?"},
			{"role": "user", "content": "Most evenings, sometimes with dizziness"}
		 ]}
	]
}`

// =============================================================================
// LoadStudy
// =============================================================================

func TestLoadStudy_Valid(t *testing.T) {
	// Given a well-formed case file
	path := writeCases(t, "benchmark-test-cases-cardio.json", cardioCases)

	// When loading it
	study, err := LoadStudy(path)

	// Then the study and its cases are populated
	require.NoError(t, err)
	assert.Equal(t, "cardio-smoke", study.Name)
	assert.Equal(t, "two-stage", study.Variant)
	assert.Equal(t, 10, study.TopK)
	require.Len(t, study.Cases, 3)

	svt := study.Cases[0]
	assert.Equal(t, "svt-ablation", svt.ID)
	assert.Equal(t, []string{"ep-1"}, svt.ExpectedIDs)
	assert.True(t, svt.HasExpectations())

	chest := study.Cases[1]
	assert.Equal(t, "Cardiology", chest.Filters.Specialty)
	assert.Equal(t, "London", chest.Filters.City)
	assert.Equal(t, 10.0, chest.Filters.RadiusMiles)
	assert.Equal(t, "v5", chest.Variant)
	assert.Equal(t, 5, chest.TopK)
	assert.False(t, chest.HasExpectations())
}

func TestLoadStudy_LabelFromFilename(t *testing.T) {
	// Given a case file that names no study
	path := writeCases(t, "benchmark-test-cases-cardio-v2.json",
		`{"cases": [{"id": "c1", "query": "knee pain"}]}`)

	// When loading it
	study, err := LoadStudy(path)

	// Then the label is derived from the filename
	require.NoError(t, err)
	assert.Equal(t, "cardio-v2", study.Name)
}

func TestLoadStudy_MissingFile(t *testing.T) {
	_, err := LoadStudy(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read test cases")
}

func TestLoadStudy_MalformedJSON(t *testing.T) {
	path := writeCases(t, "benchmark-test-cases-bad.json", `{"cases": [`)
	_, err := LoadStudy(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse test cases")
}

func TestLoadStudy_NoCases(t *testing.T) {
	path := writeCases(t, "benchmark-test-cases-empty.json", `{"study": "empty", "cases": []}`)
	_, err := LoadStudy(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no cases")
}

func TestLoadStudy_DuplicateCaseID(t *testing.T) {
	path := writeCases(t, "benchmark-test-cases-dup.json", `{
		"cases": [
			{"id": "c1", "query": "knee pain"},
			{"id": "c1", "query": "hip pain"}
		]
	}`)
	_, err := LoadStudy(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate case id "c1"`)
}

func TestLoadStudy_CaseWithoutQuery(t *testing.T) {
	// Given a case whose conversation has no user turn
	path := writeCases(t, "benchmark-test-cases-blank.json", `{
		"cases": [
			{"id": "c1", "conversation": [{"role": "assistant", "content": "How can I help?"}]}
		]
	}`)

	// When loading it
	_, err := LoadStudy(path)

	// Then the case is rejected by id
	require.Error(t, err)
	assert.Contains(t, err.Error(), "case c1")
}

func TestLoadStudy_UnknownCaseVariant(t *testing.T) {
	path := writeCases(t, "benchmark-test-cases-variant.json", `{
		"cases": [{"id": "c1", "query": "knee pain", "variant": "v9"}]
	}`)

	_, err := LoadStudy(path)

	var rankErr *rankerr.RankError
	require.ErrorAs(t, err, &rankErr)
	assert.Equal(t, rankerr.ErrCodeVariantUnknown, rankErr.Code)
}

func TestLoadStudy_UnknownStudyVariant(t *testing.T) {
	path := writeCases(t, "benchmark-test-cases-variant.json", `{
		"variant": "v9",
		"cases": [{"id": "c1", "query": "knee pain"}]
	}`)

	_, err := LoadStudy(path)

	var rankErr *rankerr.RankError
	require.ErrorAs(t, err, &rankErr)
	assert.Equal(t, rankerr.ErrCodeVariantUnknown, rankErr.Code)
}

// =============================================================================
// Case helpers
// =============================================================================

func TestEffectiveQuery_PrefersQueryField(t *testing.T) {
	path := writeCases(t, "benchmark-test-cases-q.json", cardioCases)
	study, err := LoadStudy(path)
	require.NoError(t, err)

	assert.Equal(t, "I need SVT ablation", study.Cases[0].EffectiveQuery())
	assert.Equal(t, "Most evenings, sometimes with dizziness", study.Cases[2].EffectiveQuery())
}

func TestCaseFilters_Criteria(t *testing.T) {
	// Given case filters with a location
	f := CaseFilters{
		NHSOnly:     true,
		Insurance:   "Bupa",
		Gender:      "female",
		Specialty:   "Cardiology",
		City:        "London",
		RadiusMiles: 15,
		AgeGroup:    "adult",
		Languages:   []string{"Spanish"},
	}

	// When converting to pipeline criteria
	c := f.Criteria()

	// Then every constraint carries over
	assert.True(t, c.NHSOnly)
	assert.Equal(t, "Bupa", c.Insurance)
	assert.Equal(t, "female", c.Gender)
	assert.Equal(t, "Cardiology", c.Specialty)
	assert.Equal(t, "adult", c.AgeGroup)
	assert.Equal(t, []string{"Spanish"}, c.Languages)
	require.NotNil(t, c.Location)
	assert.Equal(t, "London", c.Location.City)
	assert.Equal(t, 15.0, c.Location.RadiusMiles)
}

func TestCaseFilters_Criteria_NoLocation(t *testing.T) {
	c := CaseFilters{Specialty: "Cardiology"}.Criteria()
	assert.Nil(t, c.Location)
}

func TestStudy_VariantPrecedence(t *testing.T) {
	study := &Study{Variant: "two-stage", TopK: 10}
	tc := &TestCase{Variant: "v5", TopK: 5}

	// Runner override wins, then the case, then the study
	assert.Equal(t, "v6", study.variantFor("v6", tc))
	assert.Equal(t, "v5", study.variantFor("", tc))
	assert.Equal(t, "two-stage", study.variantFor("", &TestCase{}))

	assert.Equal(t, 5, study.topKFor(tc))
	assert.Equal(t, 10, study.topKFor(&TestCase{}))
}

// =============================================================================
// Discovery
// =============================================================================

func TestDiscoverStudies(t *testing.T) {
	// Given a directory with matching and non-matching files
	dir := t.TempDir()
	for _, name := range []string{
		"benchmark-test-cases-b.json",
		"benchmark-test-cases-a.json",
		"benchmark-session-context-cache.json",
		"notes.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644))
	}

	// When discovering studies
	paths, err := DiscoverStudies(dir)

	// Then only case files match, in lexical order
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(dir, "benchmark-test-cases-a.json"), paths[0])
	assert.Equal(t, filepath.Join(dir, "benchmark-test-cases-b.json"), paths[1])
}

// =============================================================================
// Ranking weights
// =============================================================================

func TestLoadWeights_Valid(t *testing.T) {
	path := writeCases(t, "ranking-weights-soft-anchors.json",
		`{"k1": 1.2, "anchor_phrase_weight": 0.25, "anchor_cap": 0.75}`)

	o, err := LoadWeights(path)

	require.NoError(t, err)
	require.NotNil(t, o.K1)
	assert.Equal(t, 1.2, *o.K1)
	require.NotNil(t, o.AnchorPhraseWeight)
	assert.Equal(t, 0.25, *o.AnchorPhraseWeight)
	assert.Nil(t, o.B)
}

func TestLoadWeights_OutOfRange(t *testing.T) {
	path := writeCases(t, "ranking-weights-bad.json", `{"k1": -1}`)

	_, err := LoadWeights(path)

	var rankErr *rankerr.RankError
	require.ErrorAs(t, err, &rankErr)
	assert.Equal(t, rankerr.ErrCodeConfigOutOfRange, rankErr.Code)
}

func TestLoadWeights_Malformed(t *testing.T) {
	path := writeCases(t, "ranking-weights-bad.json", `{"k1": `)
	_, err := LoadWeights(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse ranking weights")
}

func TestLoadWeights_MissingFile(t *testing.T) {
	_, err := LoadWeights(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
