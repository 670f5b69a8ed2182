package rank

import (
	"context"
	"strings"

	"github.com/caresearch/medrank/internal/canon"
	"github.com/caresearch/medrank/internal/corpus"
)

// LegacyRequest is the single-stage request shape: loose keyword fields
// concatenated into one BM25 query.
type LegacyRequest struct {
	Specialty   string `json:"specialty,omitempty"`
	Location    string `json:"location,omitempty"`
	Insurance   string `json:"insurance,omitempty"`
	SearchQuery string `json:"searchQuery,omitempty"`
}

// Query concatenates the non-empty request fields.
func (r LegacyRequest) Query() string {
	parts := make([]string, 0, 4)
	for _, f := range []string{r.Specialty, r.Location, r.Insurance, r.SearchQuery} {
		if f = strings.TrimSpace(f); f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " ")
}

// RankLegacy runs single-stage BM25 ranking with the hand-curated keyword
// expansion map instead of equivalence normalization. No rescoring is
// applied.
func (e *Engine) RankLegacy(ctx context.Context, candidates []*corpus.Practitioner, req LegacyRequest, opts Options) ([]*ScoredResult, error) {
	query := canon.ExpandLegacyQuery(req.Query())
	return e.stageA(ctx, candidates, query, false, opts)
}
