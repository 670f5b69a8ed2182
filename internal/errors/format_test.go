package errors

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForUser_BasicError(t *testing.T) {
	// Given: a RankError
	err := New(ErrCodeCorpusNotFound, "corpus 'practitioners.json' not found", nil)

	// When: formatting for user (no debug)
	result := FormatForUser(err, false)

	// Then: contains message
	assert.Contains(t, result, "corpus 'practitioners.json' not found")
	// And: contains error code at end
	assert.Contains(t, result, "[ERR_201_CORPUS_NOT_FOUND]")
}

func TestFormatForUser_WithSuggestion(t *testing.T) {
	// Given: an error with suggestion
	err := New(ErrCodeLLMUnavailable, "Ollama is not running", nil).
		WithSuggestion("Start Ollama with 'ollama serve' or use --no-llm")

	// When: formatting for user
	result := FormatForUser(err, false)

	// Then: contains suggestion
	assert.Contains(t, result, "Suggestion:")
	assert.Contains(t, result, "ollama serve")
}

func TestFormatForUser_DebugIncludesCause(t *testing.T) {
	// Given: an error with a cause
	cause := errors.New("dial tcp: connection refused")
	err := New(ErrCodeLLMUnavailable, "classification failed", cause)

	// When: formatting with debug
	result := FormatForUser(err, true)

	// Then: cause is included
	assert.Contains(t, result, "connection refused")

	// And: without debug the cause is hidden
	assert.NotContains(t, FormatForUser(err, false), "connection refused")
}

func TestFormatForUser_StandardError(t *testing.T) {
	// Given: a standard Go error
	err := errors.New("something went wrong")

	// When: formatting for user
	result := FormatForUser(err, false)

	// Then: shows generic message
	assert.Contains(t, result, "something went wrong")
}

func TestFormatForUser_NilError(t *testing.T) {
	assert.Empty(t, FormatForUser(nil, false))
}

func TestFormatForCLI_IncludesCodeAndHint(t *testing.T) {
	// Given: an error with suggestion
	err := New(ErrCodeQueryEmpty, "query is empty after trimming", nil).
		WithSuggestion("Provide a non-empty patient query")

	// When: formatting for CLI
	result := FormatForCLI(err)

	// Then: message, hint and code appear
	assert.Contains(t, result, "Error: query is empty after trimming")
	assert.Contains(t, result, "Hint: Provide a non-empty patient query")
	assert.Contains(t, result, "Code: ERR_404_QUERY_EMPTY")
}

func TestFormatForCLI_WrapsStandardError(t *testing.T) {
	result := FormatForCLI(errors.New("boom"))

	assert.Contains(t, result, "boom")
	assert.Contains(t, result, ErrCodeInternal)
}

func TestFormatJSON_RoundTrips(t *testing.T) {
	// Given: a rich error
	err := New(ErrCodeLLMTimeout, "clinical intent call timed out", errors.New("context deadline exceeded")).
		WithDetail("task", "clinical_intent").
		WithSuggestion("Increase llm.timeout")

	// When: formatting as JSON
	data, jerr := FormatJSON(err)
	require.NoError(t, jerr)

	// Then: all fields survive
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, "ERR_301_LLM_TIMEOUT", parsed["code"])
	assert.Equal(t, "LLM", parsed["category"])
	assert.Equal(t, true, parsed["retryable"])
	assert.Equal(t, "context deadline exceeded", parsed["cause"])

	details, ok := parsed["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "clinical_intent", details["task"])
}

func TestFormatForLog_ProducesSlogAttrs(t *testing.T) {
	// Given: an error with details
	err := New(ErrCodeCorpusParse, "record 9: bad insurer entry", nil).
		WithDetail("record", "9")

	// When: formatting for log
	attrs := FormatForLog(err)

	// Then: structured keys are present
	assert.Equal(t, "ERR_202_CORPUS_PARSE", attrs["error_code"])
	assert.Equal(t, "CORPUS", attrs["category"])
	assert.Equal(t, "9", attrs["detail_record"])
}

func TestFormatForLog_StandardError(t *testing.T) {
	attrs := FormatForLog(errors.New("plain"))

	assert.Equal(t, "plain", attrs["error"])
	assert.NotContains(t, attrs, "error_code")
}
