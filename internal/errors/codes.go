// Package errors provides structured error handling for medrank.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Corpus and storage errors
//   - 3XX: LLM and network errors
//   - 4XX: Request validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryCorpus indicates corpus and storage I/O errors.
	CategoryCorpus Category = "CORPUS"
	// CategoryLLM indicates LLM-call and network errors.
	CategoryLLM Category = "LLM"
	// CategoryValidation indicates request validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"
	ErrCodeWeightsInvalid = "ERR_103_WEIGHTS_INVALID"
	ErrCodeVariantUnknown = "ERR_104_VARIANT_UNKNOWN"

	// Corpus and storage errors (200-299)
	ErrCodeCorpusNotFound = "ERR_201_CORPUS_NOT_FOUND"
	ErrCodeCorpusParse    = "ERR_202_CORPUS_PARSE"
	ErrCodeCorpusEmpty    = "ERR_203_CORPUS_EMPTY"
	ErrCodeCacheCorrupt   = "ERR_204_CACHE_CORRUPT"
	ErrCodeStoreFailed    = "ERR_205_STORE_FAILED"
	ErrCodeFilePermission = "ERR_206_FILE_PERMISSION"

	// LLM and network errors (300-399)
	ErrCodeLLMTimeout     = "ERR_301_LLM_TIMEOUT"
	ErrCodeLLMUnavailable = "ERR_302_LLM_UNAVAILABLE"
	ErrCodeLLMMalformed   = "ERR_303_LLM_MALFORMED"
	ErrCodeLLMBusy        = "ERR_304_LLM_BUSY"
	ErrCodeEmbedFailed    = "ERR_305_EMBED_FAILED"

	// Validation errors (400-499)
	ErrCodeInvalidInput     = "ERR_401_INVALID_INPUT"
	ErrCodeConfigOutOfRange = "ERR_402_CONFIG_OUT_OF_RANGE"
	ErrCodeInvalidTopK      = "ERR_403_INVALID_TOP_K"
	ErrCodeQueryEmpty       = "ERR_404_QUERY_EMPTY"
	ErrCodeQueryTooLong     = "ERR_405_QUERY_TOO_LONG"

	// Internal errors (500-599)
	ErrCodeInternal         = "ERR_501_INTERNAL"
	ErrCodeRankingFailed    = "ERR_502_RANKING_FAILED"
	ErrCodeEvaluationFailed = "ERR_503_EVALUATION_FAILED"
	ErrCodePoolFailed       = "ERR_504_POOL_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "201" from "ERR_201_CORPUS_NOT_FOUND")
	numStr := code[4:7]
	if len(numStr) < 1 {
		return CategoryInternal
	}

	switch numStr[0] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryCorpus
	case '3':
		return CategoryLLM
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	// Fatal errors
	switch code {
	case ErrCodeCorpusNotFound, ErrCodeCorpusEmpty, ErrCodeCacheCorrupt:
		return SeverityFatal
	}

	// Retryable errors get warning severity
	if isRetryableCode(code) {
		return SeverityWarning
	}

	// Default to error severity
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeLLMTimeout, ErrCodeLLMUnavailable, ErrCodeLLMBusy, ErrCodeEmbedFailed:
		return true
	default:
		return false
	}
}
