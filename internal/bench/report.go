package bench

import (
	"encoding/json"
	"os"
	"time"

	"github.com/caresearch/medrank/internal/corpus"
	rankerr "github.com/caresearch/medrank/internal/errors"
	"github.com/caresearch/medrank/internal/filters"
	"github.com/caresearch/medrank/internal/pool"
	"github.com/caresearch/medrank/internal/rank"
	"github.com/caresearch/medrank/internal/ui"
)

// CaseMetrics scores one shortlist against its expectations. Relevance
// is binary: a shortlist entry either is in the expected set or not.
type CaseMetrics struct {
	Hits           int     `json:"hits"`
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
	ReciprocalRank float64 `json:"reciprocal_rank"`
}

// CaseResult is one evaluated case in a study report.
type CaseResult struct {
	CaseID  string `json:"case_id"`
	Variant string `json:"variant,omitempty"`

	ShortlistIDs []string `json:"shortlist_ids,omitempty"`
	ExpectedIDs  []string `json:"expected_ids,omitempty"`

	FilterEmpty bool `json:"filter_empty,omitempty"`
	CacheHit    bool `json:"cache_hit,omitempty"`

	// Progressive metadata, present for v6 trials.
	Iterations        int    `json:"iterations,omitempty"`
	TerminationReason string `json:"termination_reason,omitempty"`

	DurationMillis int64  `json:"duration_ms"`
	Error          string `json:"error,omitempty"`

	// Metrics are present when the case carries expectations and the
	// trial succeeded.
	Metrics *CaseMetrics `json:"metrics,omitempty"`
}

// StudyReport is the outcome of one evaluation study.
type StudyReport struct {
	Study       string    `json:"study"`
	Variant     string    `json:"variant,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`

	Workers        int   `json:"workers"`
	DurationMillis int64 `json:"duration_ms"`

	Cases       int `json:"cases"`
	Scored      int `json:"scored"`
	Failures    int `json:"failures"`
	FilterEmpty int `json:"filter_empty"`
	CacheHits   int `json:"cache_hits"`

	// Means are taken over scored successful cases.
	MeanPrecision      float64 `json:"mean_precision"`
	MeanRecall         float64 `json:"mean_recall"`
	MeanReciprocalRank float64 `json:"mean_reciprocal_rank"`

	// MeanTrialMillis is taken over successful cases.
	MeanTrialMillis int64 `json:"mean_trial_ms"`

	Results []*CaseResult `json:"results"`
}

// Stats summarizes the report for the progress renderer.
func (r *StudyReport) Stats() ui.StudyStats {
	return ui.StudyStats{
		Cases:        r.Cases,
		Failures:     r.Failures,
		Warnings:     r.FilterEmpty,
		CacheHits:    r.CacheHits,
		Workers:      r.Workers,
		Duration:     time.Duration(r.DurationMillis) * time.Millisecond,
		MeanCaseTime: time.Duration(r.MeanTrialMillis) * time.Millisecond,
	}
}

// buildStudyReport aggregates per-case results into a report.
func buildStudyReport(study *Study, cfg RunnerConfig, results []*CaseResult, elapsed time.Duration, workers int) *StudyReport {
	variant := cfg.Variant
	if variant == "" {
		variant = study.Variant
	}
	report := &StudyReport{
		Study:          study.Name,
		Variant:        variant,
		GeneratedAt:    time.Now().UTC(),
		Workers:        workers,
		DurationMillis: elapsed.Milliseconds(),
		Cases:          len(results),
		Results:        results,
	}

	var (
		succeeded   int
		trialMillis int64
		precision   float64
		recall      float64
		mrr         float64
	)
	for _, res := range results {
		if res == nil {
			continue
		}
		if res.Error != "" {
			report.Failures++
			continue
		}
		succeeded++
		trialMillis += res.DurationMillis
		if res.FilterEmpty {
			report.FilterEmpty++
		}
		if res.CacheHit {
			report.CacheHits++
		}
		if res.Metrics != nil {
			report.Scored++
			precision += res.Metrics.Precision
			recall += res.Metrics.Recall
			mrr += res.Metrics.ReciprocalRank
		}
	}
	if report.Scored > 0 {
		report.MeanPrecision = precision / float64(report.Scored)
		report.MeanRecall = recall / float64(report.Scored)
		report.MeanReciprocalRank = mrr / float64(report.Scored)
	}
	if succeeded > 0 {
		report.MeanTrialMillis = trialMillis / int64(succeeded)
	}
	return report
}

// scoreShortlist computes binary relevance metrics for one shortlist.
func scoreShortlist(shortlist, expected []string) *CaseMetrics {
	want := make(map[string]bool, len(expected))
	for _, id := range expected {
		want[id] = true
	}

	m := &CaseMetrics{}
	for i, id := range shortlist {
		if !want[id] {
			continue
		}
		m.Hits++
		if m.ReciprocalRank == 0 {
			m.ReciprocalRank = 1.0 / float64(i+1)
		}
	}
	if len(shortlist) > 0 {
		m.Precision = float64(m.Hits) / float64(len(shortlist))
	}
	if len(want) > 0 {
		m.Recall = float64(m.Hits) / float64(len(want))
	}
	return m
}

// PoolCandidate is one pooled practitioner, flattened to the fields a
// labeler needs.
type PoolCandidate struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Specialty      string   `json:"specialty,omitempty"`
	Subspecialties []string `json:"subspecialties,omitempty"`
	Locality       string   `json:"locality,omitempty"`
	Sources        []string `json:"sources"`
}

// CasePool is one case's generated candidate pool.
type CasePool struct {
	CaseID      string               `json:"case_id"`
	Query       string               `json:"query"`
	Context     *rank.SessionContext `json:"context,omitempty"`
	FilterSteps []filters.StepCount  `json:"filter_steps,omitempty"`
	FilterEmpty bool                 `json:"filter_empty,omitempty"`
	Candidates  []*PoolCandidate     `json:"candidates,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// PoolReport is the outcome of one pool generation run.
type PoolReport struct {
	Study       string        `json:"study"`
	Strategy    pool.Strategy `json:"strategy"`
	GeneratedAt time.Time     `json:"generated_at"`

	Workers        int   `json:"workers"`
	DurationMillis int64 `json:"duration_ms"`

	// Corpus identity, so labels can be traced to the data they were
	// drawn from.
	CorpusPath   string `json:"corpus_path"`
	CorpusLoadID string `json:"corpus_load_id"`

	Cases            int     `json:"cases"`
	Failures         int     `json:"failures"`
	FilterEmpty      int     `json:"filter_empty"`
	ContextCacheHits int     `json:"context_cache_hits"`
	MeanPoolSize     float64 `json:"mean_pool_size"`

	Pools []*CasePool `json:"pools"`
}

// Stats summarizes the report for the progress renderer.
func (r *PoolReport) Stats() ui.StudyStats {
	return ui.StudyStats{
		Cases:     r.Cases,
		Failures:  r.Failures,
		Warnings:  r.FilterEmpty,
		CacheHits: r.ContextCacheHits,
		Workers:   r.Workers,
		Duration:  time.Duration(r.DurationMillis) * time.Millisecond,
	}
}

// buildPoolReport aggregates per-case pools into a report.
func buildPoolReport(study *Study, strategy pool.Strategy, provider *corpus.Provider, cfg RunnerConfig, pools []*CasePool, cacheHits int, elapsed time.Duration, workers int) *PoolReport {
	report := &PoolReport{
		Study:            study.Name,
		Strategy:         strategy,
		GeneratedAt:      time.Now().UTC(),
		Workers:          workers,
		DurationMillis:   elapsed.Milliseconds(),
		CorpusPath:       provider.Corpus().Path(),
		CorpusLoadID:     provider.Corpus().LoadID(),
		Cases:            len(pools),
		ContextCacheHits: cacheHits,
		Pools:            pools,
	}

	var pooled, size int
	for _, cp := range pools {
		if cp == nil {
			continue
		}
		if cp.Error != "" {
			report.Failures++
			continue
		}
		if cp.FilterEmpty {
			report.FilterEmpty++
			continue
		}
		pooled++
		size += len(cp.Candidates)
	}
	if pooled > 0 {
		report.MeanPoolSize = float64(size) / float64(pooled)
	}
	return report
}

// toPoolCandidates flattens pool members for the report.
func toPoolCandidates(members []*pool.Member) []*PoolCandidate {
	out := make([]*PoolCandidate, 0, len(members))
	for _, m := range members {
		if m == nil || m.Practitioner == nil {
			continue
		}
		out = append(out, &PoolCandidate{
			ID:             m.Practitioner.ID,
			Name:           m.Practitioner.Name,
			Specialty:      m.Practitioner.Specialty,
			Subspecialties: append([]string(nil), m.Practitioner.Subspecialties...),
			Locality:       m.Practitioner.AddressLocality,
			Sources:        append([]string(nil), m.Sources...),
		})
	}
	return out
}

// WriteReport writes a report as indented JSON, replacing path
// atomically (temp file + rename).
func WriteReport(path string, report any) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return rankerr.New(rankerr.ErrCodeStoreFailed, "encode report", err)
	}
	data = append(data, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return rankerr.New(rankerr.ErrCodeStoreFailed, "write report", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return rankerr.New(rankerr.ErrCodeStoreFailed, "replace report", err)
	}
	return nil
}
