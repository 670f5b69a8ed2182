package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rankerr "github.com/caresearch/medrank/internal/errors"
	"github.com/caresearch/medrank/internal/intent"
)

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var re *rankerr.RankError
	require.True(t, errors.As(err, &re), "expected RankError, got %T", err)
	assert.Equal(t, code, re.Code)
}

func TestValidateQuery(t *testing.T) {
	t.Run("accepts normal query", func(t *testing.T) {
		assert.NoError(t, ValidateQuery("female cardiologist in London"))
	})

	t.Run("rejects empty", func(t *testing.T) {
		assertCode(t, ValidateQuery(""), rankerr.ErrCodeQueryEmpty)
	})

	t.Run("rejects whitespace only", func(t *testing.T) {
		assertCode(t, ValidateQuery("   \t\n"), rankerr.ErrCodeQueryEmpty)
	})

	t.Run("rejects oversized", func(t *testing.T) {
		long := strings.Repeat("knee pain ", 150)
		assertCode(t, ValidateQuery(long), rankerr.ErrCodeQueryTooLong)
	})

	t.Run("boundary length passes", func(t *testing.T) {
		assert.NoError(t, ValidateQuery(strings.Repeat("a", MaxQueryLength)))
	})

	t.Run("length counts runes not bytes", func(t *testing.T) {
		// 600 two-byte runes: 1200 bytes but within the rune cap.
		assert.NoError(t, ValidateQuery(strings.Repeat("é", 600)))
	})
}

func TestValidateTopK(t *testing.T) {
	assert.NoError(t, ValidateTopK(1))
	assert.NoError(t, ValidateTopK(12))
	assert.NoError(t, ValidateTopK(MaxTopK))

	assertCode(t, ValidateTopK(0), rankerr.ErrCodeInvalidTopK)
	assertCode(t, ValidateTopK(-3), rankerr.ErrCodeInvalidTopK)
	assertCode(t, ValidateTopK(MaxTopK+1), rankerr.ErrCodeInvalidTopK)
}

func TestValidateVariant(t *testing.T) {
	for _, v := range []string{"legacy", "two-stage", "v5", "v6"} {
		assert.NoError(t, ValidateVariant(v), "variant %s", v)
	}

	assertCode(t, ValidateVariant("v2"), rankerr.ErrCodeVariantUnknown)
	assertCode(t, ValidateVariant(""), rankerr.ErrCodeVariantUnknown)
	assertCode(t, ValidateVariant("Two-Stage"), rankerr.ErrCodeVariantUnknown)
}

func TestValidatePoolStrategy(t *testing.T) {
	for _, s := range []string{"ranking_only", "hybrid_bm25", "hybrid_random", "multi_source"} {
		assert.NoError(t, ValidatePoolStrategy(s), "strategy %s", s)
	}

	assertCode(t, ValidatePoolStrategy("all"), rankerr.ErrCodeInvalidInput)
}

func TestValidateSemanticWeight(t *testing.T) {
	assert.NoError(t, ValidateSemanticWeight(0))
	assert.NoError(t, ValidateSemanticWeight(0.3))
	assert.NoError(t, ValidateSemanticWeight(1))

	assertCode(t, ValidateSemanticWeight(-0.1), rankerr.ErrCodeConfigOutOfRange)
	assertCode(t, ValidateSemanticWeight(1.01), rankerr.ErrCodeConfigOutOfRange)
}

func TestValidateConversation(t *testing.T) {
	t.Run("accepts normal dialogue", func(t *testing.T) {
		turns := []intent.Turn{
			{Role: "user", Content: "I need a knee specialist"},
			{Role: "assistant", Content: "Any location preference?"},
			{Role: "user", Content: "Near Manchester"},
		}
		assert.NoError(t, ValidateConversation(turns))
	})

	t.Run("accepts empty", func(t *testing.T) {
		assert.NoError(t, ValidateConversation(nil))
	})

	t.Run("rejects too many turns", func(t *testing.T) {
		turns := make([]intent.Turn, MaxConversationTurns+1)
		for i := range turns {
			turns[i] = intent.Turn{Role: "user", Content: "hi"}
		}
		assertCode(t, ValidateConversation(turns), rankerr.ErrCodeInvalidInput)
	})

	t.Run("rejects unknown role", func(t *testing.T) {
		turns := []intent.Turn{{Role: "narrator", Content: "meanwhile"}}
		assertCode(t, ValidateConversation(turns), rankerr.ErrCodeInvalidInput)
	})

	t.Run("rejects oversized turn", func(t *testing.T) {
		turns := []intent.Turn{{Role: "user", Content: strings.Repeat("x", MaxTurnLength+1)}}
		assertCode(t, ValidateConversation(turns), rankerr.ErrCodeInvalidInput)
	})
}

func TestValidateProgressiveBounds(t *testing.T) {
	t.Run("zero means default", func(t *testing.T) {
		assert.NoError(t, ValidateProgressiveBounds(0, 0, 0, 0))
	})

	t.Run("typical bounds pass", func(t *testing.T) {
		assert.NoError(t, ValidateProgressiveBounds(3, 12, 5, 30))
	})

	t.Run("rejects out of range", func(t *testing.T) {
		assertCode(t, ValidateProgressiveBounds(-1, 0, 0, 0), rankerr.ErrCodeConfigOutOfRange)
		assertCode(t, ValidateProgressiveBounds(0, 101, 0, 0), rankerr.ErrCodeConfigOutOfRange)
		assertCode(t, ValidateProgressiveBounds(0, 0, 51, 0), rankerr.ErrCodeConfigOutOfRange)
		assertCode(t, ValidateProgressiveBounds(0, 0, 0, 501), rankerr.ErrCodeConfigOutOfRange)
	})
}
