// Package bench runs offline ranking studies over labeled test cases:
// candidate pool generation for ground-truth labeling, and batch
// evaluation of ranked shortlists against case expectations. Studies
// execute on a bounded worker pool with progress reporting.
package bench

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caresearch/medrank/internal/filters"
	"github.com/caresearch/medrank/internal/intent"
	"github.com/caresearch/medrank/internal/rank"
	"github.com/caresearch/medrank/internal/validation"
)

// CasesFilePattern matches study case files within a directory.
const CasesFilePattern = "benchmark-test-cases-*.json"

const (
	casesFilePrefix = "benchmark-test-cases-"
	casesFileSuffix = ".json"
)

// CaseFilters are the hard constraints of one test case, in the case
// file's field names.
type CaseFilters struct {
	NHSOnly     bool     `json:"nhs_only,omitempty"`
	Insurance   string   `json:"insurance,omitempty"`
	Gender      string   `json:"gender,omitempty"`
	Specialty   string   `json:"specialty,omitempty"`
	City        string   `json:"city,omitempty"`
	Postcode    string   `json:"postcode,omitempty"`
	RadiusMiles float64  `json:"radius_miles,omitempty"`
	AgeGroup    string   `json:"age_group,omitempty"`
	Languages   []string `json:"languages,omitempty"`
}

// Criteria converts the case filters to pipeline criteria.
func (f CaseFilters) Criteria() filters.Criteria {
	c := filters.Criteria{
		NHSOnly:   f.NHSOnly,
		Insurance: f.Insurance,
		Gender:    f.Gender,
		Specialty: f.Specialty,
		AgeGroup:  f.AgeGroup,
		Languages: f.Languages,
	}
	if f.City != "" || f.Postcode != "" {
		c.Location = &filters.LocationQuery{
			City:        f.City,
			Postcode:    f.Postcode,
			RadiusMiles: f.RadiusMiles,
		}
	}
	return c
}

// TestCase is one study scenario: a patient query plus the constraints
// and expectations it runs under.
type TestCase struct {
	ID           string        `json:"id"`
	Query        string        `json:"query,omitempty"`
	Conversation []intent.Turn `json:"conversation,omitempty"`
	Filters      CaseFilters   `json:"filters"`

	// Variant overrides the study pipeline variant for this case.
	Variant string `json:"variant,omitempty"`

	// TopK overrides the study shortlist size for this case.
	TopK int `json:"top_k,omitempty"`

	// ExpectedIDs are the practitioners a correct shortlist contains.
	// Cases without expectations run unscored.
	ExpectedIDs []string `json:"expected_ids,omitempty"`

	Notes string `json:"notes,omitempty"`
}

// EffectiveQuery returns the text understood for this case: the query
// field, or the latest non-empty user turn when the query is blank.
func (tc *TestCase) EffectiveQuery() string {
	if q := strings.TrimSpace(tc.Query); q != "" {
		return q
	}
	for i := len(tc.Conversation) - 1; i >= 0; i-- {
		t := tc.Conversation[i]
		if strings.EqualFold(t.Role, "user") && strings.TrimSpace(t.Content) != "" {
			return strings.TrimSpace(t.Content)
		}
	}
	return ""
}

// HasExpectations reports whether the case can be scored.
func (tc *TestCase) HasExpectations() bool {
	return len(tc.ExpectedIDs) > 0
}

// Study is one loaded case file.
type Study struct {
	Name        string `json:"study"`
	Description string `json:"description,omitempty"`

	// Variant and TopK are study-wide defaults; cases may override.
	Variant string `json:"variant,omitempty"`
	TopK    int    `json:"top_k,omitempty"`

	Cases []*TestCase `json:"cases"`
}

// LoadStudy reads and validates the case file at path. A file that
// names no study takes its label from the filename.
func LoadStudy(path string) (*Study, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read test cases: %w", err)
	}

	var study Study
	if err := json.Unmarshal(data, &study); err != nil {
		return nil, fmt.Errorf("parse test cases %s: %w", filepath.Base(path), err)
	}
	if study.Name == "" {
		study.Name = studyLabel(path)
	}
	if len(study.Cases) == 0 {
		return nil, fmt.Errorf("test case file %s contains no cases", filepath.Base(path))
	}
	if study.Variant != "" {
		if err := validation.ValidateVariant(study.Variant); err != nil {
			return nil, err
		}
	}

	seen := make(map[string]bool, len(study.Cases))
	for i, tc := range study.Cases {
		if tc == nil {
			return nil, fmt.Errorf("case %d is null", i)
		}
		if tc.ID == "" {
			return nil, fmt.Errorf("case %d has no id", i)
		}
		if seen[tc.ID] {
			return nil, fmt.Errorf("duplicate case id %q", tc.ID)
		}
		seen[tc.ID] = true
		if tc.EffectiveQuery() == "" {
			return nil, fmt.Errorf("case %s has no query and no user turn", tc.ID)
		}
		if tc.Variant != "" {
			if err := validation.ValidateVariant(tc.Variant); err != nil {
				return nil, fmt.Errorf("case %s: %w", tc.ID, err)
			}
		}
	}
	return &study, nil
}

// DiscoverStudies lists case files under dir, in lexical order.
func DiscoverStudies(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, CasesFilePattern))
	if err != nil {
		return nil, fmt.Errorf("scan for test cases: %w", err)
	}
	return matches, nil
}

// LoadWeights reads a ranking weights file into request overrides,
// rejecting values outside the ranking config's sanity bounds.
func LoadWeights(path string) (*rank.Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ranking weights: %w", err)
	}

	var o rank.Overrides
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parse ranking weights %s: %w", filepath.Base(path), err)
	}
	if err := rank.DefaultConfig().Apply(&o).Validate(); err != nil {
		return nil, err
	}
	return &o, nil
}

// studyLabel derives the study name from the case file name.
func studyLabel(path string) string {
	base := filepath.Base(path)
	label := strings.TrimSuffix(strings.TrimPrefix(base, casesFilePrefix), casesFileSuffix)
	if label == "" {
		return strings.TrimSuffix(base, casesFileSuffix)
	}
	return label
}

// variantFor resolves the pipeline variant for one case: an explicit
// runner override wins, then the case, then the study default. Empty
// leaves the choice to the ranking service.
func (s *Study) variantFor(override string, tc *TestCase) string {
	if override != "" {
		return override
	}
	if tc.Variant != "" {
		return tc.Variant
	}
	return s.Variant
}

// topKFor resolves the shortlist size for one case. Zero leaves the
// choice to the ranking service.
func (s *Study) topKFor(tc *TestCase) int {
	if tc.TopK > 0 {
		return tc.TopK
	}
	return s.TopK
}
