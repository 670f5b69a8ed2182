// Package validation checks rank requests before they reach the engine.
// The CLI, daemon and MCP surfaces all route through it so a bad request
// fails the same way everywhere, with a structured error code.
package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	rankerr "github.com/caresearch/medrank/internal/errors"
	"github.com/caresearch/medrank/internal/intent"
)

const (
	// MaxQueryLength bounds the free-text query. Queries are embedded in
	// LLM prompts, so the cap protects prompt budgets as much as the
	// ranker.
	MaxQueryLength = 1000

	// MaxTopK bounds requested shortlist sizes.
	MaxTopK = 100

	// MaxConversationTurns bounds the dialogue passed to query
	// understanding.
	MaxConversationTurns = 20

	// MaxTurnLength bounds one conversation turn.
	MaxTurnLength = 4000
)

// Known pipeline variant names.
var variants = map[string]bool{
	"legacy":    true,
	"two-stage": true,
	"v5":        true,
	"v6":        true,
}

// Known candidate pool strategies.
var poolStrategies = map[string]bool{
	"ranking_only":  true,
	"hybrid_bm25":   true,
	"hybrid_random": true,
	"multi_source":  true,
}

// ValidateQuery rejects empty and oversized queries.
func ValidateQuery(query string) error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return rankerr.New(rankerr.ErrCodeQueryEmpty, "query is empty", nil).
			WithSuggestion("Describe the practitioner you are looking for, e.g. \"female cardiologist in London\"")
	}
	if n := utf8.RuneCountInString(trimmed); n > MaxQueryLength {
		return rankerr.New(rankerr.ErrCodeQueryTooLong,
			fmt.Sprintf("query is %d characters, maximum is %d", n, MaxQueryLength), nil).
			WithSuggestion("Shorten the query; details can go in conversation turns")
	}
	return nil
}

// ValidateTopK rejects shortlist sizes outside [1, MaxTopK].
func ValidateTopK(k int) error {
	if k < 1 || k > MaxTopK {
		return rankerr.New(rankerr.ErrCodeInvalidTopK,
			fmt.Sprintf("top_k must be between 1 and %d, got %d", MaxTopK, k), nil)
	}
	return nil
}

// ValidateVariant rejects unknown pipeline variant names.
func ValidateVariant(variant string) error {
	if !variants[variant] {
		return rankerr.New(rankerr.ErrCodeVariantUnknown,
			fmt.Sprintf("unknown pipeline variant %q", variant), nil).
			WithSuggestion("Known variants: legacy, two-stage, v5, v6")
	}
	return nil
}

// ValidatePoolStrategy rejects unknown candidate pool strategies.
func ValidatePoolStrategy(strategy string) error {
	if !poolStrategies[strategy] {
		return rankerr.New(rankerr.ErrCodeInvalidInput,
			fmt.Sprintf("unknown pool strategy %q", strategy), nil).
			WithSuggestion("Known strategies: ranking_only, hybrid_bm25, hybrid_random, multi_source")
	}
	return nil
}

// ValidateSemanticWeight rejects mixing weights outside [0, 1].
func ValidateSemanticWeight(w float64) error {
	if w < 0 || w > 1 {
		return rankerr.New(rankerr.ErrCodeConfigOutOfRange,
			fmt.Sprintf("semantic weight must be in [0,1], got %g", w), nil)
	}
	return nil
}

// ValidateConversation rejects oversized dialogues and turns with
// unknown roles.
func ValidateConversation(turns []intent.Turn) error {
	if len(turns) > MaxConversationTurns {
		return rankerr.New(rankerr.ErrCodeInvalidInput,
			fmt.Sprintf("conversation has %d turns, maximum is %d", len(turns), MaxConversationTurns), nil).
			WithSuggestion("Send only the recent turns that matter for this request")
	}
	for i, turn := range turns {
		switch turn.Role {
		case "user", "assistant", "system":
		default:
			return rankerr.New(rankerr.ErrCodeInvalidInput,
				fmt.Sprintf("turn %d has unknown role %q", i, turn.Role), nil)
		}
		if n := utf8.RuneCountInString(turn.Content); n > MaxTurnLength {
			return rankerr.New(rankerr.ErrCodeInvalidInput,
				fmt.Sprintf("turn %d is %d characters, maximum is %d", i, n, MaxTurnLength), nil)
		}
	}
	return nil
}

// ValidateProgressiveBounds rejects controller bounds the v6 pipeline
// cannot run with. Zero values mean "use the default" and pass.
func ValidateProgressiveBounds(targetTopK, batchSize, maxIterations, maxProfiles int) error {
	check := func(name string, v, max int) error {
		if v < 0 || v > max {
			return rankerr.New(rankerr.ErrCodeConfigOutOfRange,
				fmt.Sprintf("%s must be between 0 and %d, got %d", name, max, v), nil)
		}
		return nil
	}
	if err := check("target_top_k", targetTopK, MaxTopK); err != nil {
		return err
	}
	if err := check("batch_size", batchSize, MaxTopK); err != nil {
		return err
	}
	if err := check("max_iterations", maxIterations, 50); err != nil {
		return err
	}
	return check("max_profiles_reviewed", maxProfiles, 500)
}
