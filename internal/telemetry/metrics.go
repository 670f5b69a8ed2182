// Package telemetry collects per-request ranking metrics. All data stays
// local: in-memory aggregates with an optional SQLite sink, surfaced
// through daemon status and the MCP metrics resource.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// =============================================================================
// Latency buckets
// =============================================================================

// LatencyBucket is a request-latency histogram bucket. Rank requests
// usually include LLM round-trips, so the buckets run to seconds.
type LatencyBucket string

const (
	BucketP100  LatencyBucket = "p100"  // <100ms (cache hits, legacy)
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP2000 LatencyBucket = "p2000" // 0.5-2s
	BucketP5000 LatencyBucket = "p5000" // 2-5s
	BucketPSlow LatencyBucket = "pslow" // >=5s
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	case ms < 2000:
		return BucketP2000
	case ms < 5000:
		return BucketP5000
	default:
		return BucketPSlow
	}
}

// =============================================================================
// Rank event
// =============================================================================

// RankEvent captures one completed rank request.
type RankEvent struct {
	RequestID         string        `json:"request_id"`
	Variant           string        `json:"variant"`
	Query             string        `json:"query"`
	ShortlistSize     int           `json:"shortlist_size"`
	CandidatesIn      int           `json:"candidates_in"`
	CandidatesRanked  int           `json:"candidates_ranked"`
	FilterEmpty       bool          `json:"filter_empty"`
	IntentCacheHit    bool          `json:"intent_cache_hit"`
	LLMFallbacks      int           `json:"llm_fallbacks"`
	Iterations        int           `json:"iterations,omitempty"`
	ProfilesEvaluated int           `json:"profiles_evaluated,omitempty"`
	TerminationReason string        `json:"termination_reason,omitempty"`
	IntentDuration    time.Duration `json:"intent_duration"`
	RankDuration      time.Duration `json:"rank_duration"`
	EvaluateDuration  time.Duration `json:"evaluate_duration"`
	TotalDuration     time.Duration `json:"total_duration"`
	Timestamp         time.Time     `json:"timestamp"`
}

// EmptyShortlist reports whether the request produced no practitioners.
func (e RankEvent) EmptyShortlist() bool {
	return e.ShortlistSize == 0
}

// =============================================================================
// Ring buffer
// =============================================================================

// Ring is a fixed-capacity FIFO buffer.
type Ring[T any] struct {
	mu       sync.RWMutex
	items    []T
	head     int
	size     int
	capacity int
}

// NewRing creates a ring with the given capacity.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &Ring[T]{items: make([]T, capacity), capacity: capacity}
}

// Add appends an item, evicting the oldest when full.
func (r *Ring[T]) Add(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[r.head] = item
	r.head = (r.head + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
}

// Items returns the buffer contents oldest first.
func (r *Ring[T]) Items() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.size == 0 {
		return []T{}
	}
	out := make([]T, r.size)
	if r.size < r.capacity {
		copy(out, r.items[:r.size])
	} else {
		copy(out, r.items[r.head:])
		copy(out[r.capacity-r.head:], r.items[:r.head])
	}
	return out
}

// Size returns the current item count.
func (r *Ring[T]) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// =============================================================================
// Term extraction
// =============================================================================

// TermCount pairs a query term with its frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// extractTerms lowercases and splits a query, keeping terms of length 3+.
func extractTerms(query string) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	var terms []string
	for _, w := range strings.Fields(query) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// hashQuery normalizes and hashes a query for repeat detection.
func hashQuery(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:16])
}

// =============================================================================
// Snapshot
// =============================================================================

// Snapshot is an immutable view of collected metrics.
type Snapshot struct {
	TotalRequests       int64                   `json:"total_requests"`
	VariantCounts       map[string]int64        `json:"variant_counts"`
	TerminationCounts   map[string]int64        `json:"termination_counts"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TopTerms            []TermCount             `json:"top_terms"`
	EmptyQueries        []string                `json:"empty_queries"`
	EmptyCount          int64                   `json:"empty_count"`
	FilterEmptyCount    int64                   `json:"filter_empty_count"`
	LLMFallbackCount    int64                   `json:"llm_fallback_count"`
	IntentCacheHits     int64                   `json:"intent_cache_hits"`
	ExactRepeatCount    int64                   `json:"exact_repeat_count"`
	ExactRepeatRate     float64                 `json:"exact_repeat_rate"`
	UniqueQueryCount    int64                   `json:"unique_query_count"`
	AvgIntentMillis     float64                 `json:"avg_intent_ms"`
	AvgRankMillis       float64                 `json:"avg_rank_ms"`
	AvgTotalMillis      float64                 `json:"avg_total_ms"`
	Recent              []RankEvent             `json:"recent"`
	Since               time.Time               `json:"since"`
}

// EmptyPercentage returns the share of requests with empty shortlists.
func (s *Snapshot) EmptyPercentage() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.EmptyCount) / float64(s.TotalRequests) * 100
}

// =============================================================================
// Store interface
// =============================================================================

// MetricsStore persists aggregated metrics.
type MetricsStore interface {
	// SaveVariantCounts upserts daily per-variant request counts.
	SaveVariantCounts(date string, counts map[string]int64) error

	// SaveTerminationCounts upserts daily progressive-termination counts.
	SaveTerminationCounts(date string, counts map[string]int64) error

	// UpsertTermCounts updates query-term frequencies.
	UpsertTermCounts(terms map[string]int64) error

	// GetTopTerms retrieves the top N terms by frequency.
	GetTopTerms(limit int) ([]TermCount, error)

	// SaveLatencyCounts upserts daily latency histogram counts.
	SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error

	// AddEmptyQuery records a query that produced an empty shortlist.
	AddEmptyQuery(query string, timestamp time.Time) error

	// Close releases resources.
	Close() error
}

// =============================================================================
// Collector
// =============================================================================

// Config bounds the collector's in-memory structures.
type Config struct {
	TopTermsCapacity      int           // default 100
	EmptyQueriesCapacity  int           // default 100
	RecentCapacity        int           // default 50
	RecentQueriesCapacity int           // repeat-detection LRU, default 500
	FlushInterval         time.Duration // 0 disables auto-flush
}

// DefaultConfig returns the production collector bounds.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:      100,
		EmptyQueriesCapacity:  100,
		RecentCapacity:        50,
		RecentQueriesCapacity: 500,
		FlushInterval:         60 * time.Second,
	}
}

// Metrics collects rank-request telemetry. Safe for concurrent use.
type Metrics struct {
	mu sync.RWMutex

	variants     map[string]int64
	terminations map[string]int64
	latencies    map[LatencyBucket]int64
	topTerms     *lru.Cache[string, int64]
	emptyQueries *Ring[string]
	recent       *Ring[RankEvent]

	// Flush baselines: the store uses additive upserts, so each flush
	// writes only what accrued since the previous one.
	flushedVariants     map[string]int64
	flushedTerminations map[string]int64
	flushedLatencies    map[LatencyBucket]int64
	pendingTerms        map[string]int64
	pendingEmpty        []emptyQuery

	recentQueries *lru.Cache[string, struct{}]
	exactRepeats  int64

	totalRequests   int64
	emptyCount      int64
	filterEmpty     int64
	llmFallbacks    int64
	intentCacheHits int64

	sumIntent time.Duration
	sumRank   time.Duration
	sumTotal  time.Duration

	startTime time.Time

	store       MetricsStore
	config      Config
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closed      bool
}

// New creates a collector with default bounds. A nil store keeps metrics
// in memory only.
func New(store MetricsStore) *Metrics {
	return NewWithConfig(store, DefaultConfig())
}

// NewWithConfig creates a collector with custom bounds.
func NewWithConfig(store MetricsStore, cfg Config) *Metrics {
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = 100
	}
	if cfg.EmptyQueriesCapacity <= 0 {
		cfg.EmptyQueriesCapacity = 100
	}
	if cfg.RecentCapacity <= 0 {
		cfg.RecentCapacity = 50
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = 500
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recentQueries, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)

	m := &Metrics{
		variants:            make(map[string]int64),
		terminations:        make(map[string]int64),
		latencies:           make(map[LatencyBucket]int64),
		topTerms:            topTerms,
		emptyQueries:        NewRing[string](cfg.EmptyQueriesCapacity),
		recent:              NewRing[RankEvent](cfg.RecentCapacity),
		flushedVariants:     make(map[string]int64),
		flushedTerminations: make(map[string]int64),
		flushedLatencies:    make(map[LatencyBucket]int64),
		pendingTerms:        make(map[string]int64),
		recentQueries:       recentQueries,
		startTime:           time.Now(),
		store:               store,
		config:              cfg,
		stopCh:              make(chan struct{}),
	}

	if cfg.FlushInterval > 0 && store != nil {
		m.flushTicker = time.NewTicker(cfg.FlushInterval)
		go m.flushLoop()
	}
	return m
}

func (m *Metrics) flushLoop() {
	for {
		select {
		case <-m.flushTicker.C:
			_ = m.Flush()
		case <-m.stopCh:
			return
		}
	}
}

// Record captures one completed rank request. Non-blocking; persistence
// happens on the flush cycle.
func (m *Metrics) Record(event RankEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.totalRequests++
	m.variants[event.Variant]++
	if event.TerminationReason != "" {
		m.terminations[event.TerminationReason]++
	}
	m.latencies[LatencyToBucket(event.TotalDuration)]++

	for _, term := range extractTerms(event.Query) {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
		m.pendingTerms[term]++
	}

	if event.EmptyShortlist() {
		m.emptyQueries.Add(event.Query)
		m.emptyCount++
		at := event.Timestamp
		if at.IsZero() {
			at = time.Now()
		}
		m.pendingEmpty = append(m.pendingEmpty, emptyQuery{query: event.Query, at: at})
	}
	if event.FilterEmpty {
		m.filterEmpty++
	}
	if event.IntentCacheHit {
		m.intentCacheHits++
	}
	m.llmFallbacks += int64(event.LLMFallbacks)

	m.sumIntent += event.IntentDuration
	m.sumRank += event.RankDuration
	m.sumTotal += event.TotalDuration

	key := hashQuery(event.Query)
	if _, seen := m.recentQueries.Get(key); seen {
		m.exactRepeats++
	}
	m.recentQueries.Add(key, struct{}{})

	m.recent.Add(event)
}

// Snapshot returns the current aggregates.
func (m *Metrics) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	variants := make(map[string]int64, len(m.variants))
	for k, v := range m.variants {
		variants[k] = v
	}
	terminations := make(map[string]int64, len(m.terminations))
	for k, v := range m.terminations {
		terminations[k] = v
	}
	latencies := make(map[LatencyBucket]int64, len(m.latencies))
	for k, v := range m.latencies {
		latencies[k] = v
	}

	var topTerms []TermCount
	for _, key := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(key); ok {
			topTerms = append(topTerms, TermCount{Term: key, Count: count})
		}
	}
	sort.Slice(topTerms, func(i, j int) bool {
		if topTerms[i].Count != topTerms[j].Count {
			return topTerms[i].Count > topTerms[j].Count
		}
		return topTerms[i].Term < topTerms[j].Term
	})

	var repeatRate float64
	if m.totalRequests > 0 {
		repeatRate = float64(m.exactRepeats) / float64(m.totalRequests)
	}
	avg := func(sum time.Duration) float64 {
		if m.totalRequests == 0 {
			return 0
		}
		return float64(sum.Milliseconds()) / float64(m.totalRequests)
	}

	return &Snapshot{
		TotalRequests:       m.totalRequests,
		VariantCounts:       variants,
		TerminationCounts:   terminations,
		LatencyDistribution: latencies,
		TopTerms:            topTerms,
		EmptyQueries:        m.emptyQueries.Items(),
		EmptyCount:          m.emptyCount,
		FilterEmptyCount:    m.filterEmpty,
		LLMFallbackCount:    m.llmFallbacks,
		IntentCacheHits:     m.intentCacheHits,
		ExactRepeatCount:    m.exactRepeats,
		ExactRepeatRate:     repeatRate,
		UniqueQueryCount:    int64(m.recentQueries.Len()),
		AvgIntentMillis:     avg(m.sumIntent),
		AvgRankMillis:       avg(m.sumRank),
		AvgTotalMillis:      avg(m.sumTotal),
		Recent:              m.recent.Items(),
		Since:               m.startTime,
	}
}

// Flush persists what accrued since the previous flush. Safe with no
// store configured.
func (m *Metrics) Flush() error {
	if m.store == nil {
		return nil
	}

	m.mu.Lock()
	variants := diffCounts(m.variants, m.flushedVariants)
	terminations := diffCounts(m.terminations, m.flushedTerminations)
	latencies := diffCounts(m.latencies, m.flushedLatencies)
	terms := m.pendingTerms
	empty := m.pendingEmpty
	m.flushedVariants = copyCounts(m.variants)
	m.flushedTerminations = copyCounts(m.terminations)
	m.flushedLatencies = copyCounts(m.latencies)
	m.pendingTerms = make(map[string]int64)
	m.pendingEmpty = nil
	m.mu.Unlock()

	today := time.Now().Format("2006-01-02")

	if err := m.store.SaveVariantCounts(today, variants); err != nil {
		return err
	}
	if err := m.store.SaveTerminationCounts(today, terminations); err != nil {
		return err
	}
	if err := m.store.UpsertTermCounts(terms); err != nil {
		return err
	}
	if err := m.store.SaveLatencyCounts(today, latencies); err != nil {
		return err
	}
	for _, eq := range empty {
		if err := m.store.AddEmptyQuery(eq.query, eq.at); err != nil {
			return err
		}
	}
	return nil
}

type emptyQuery struct {
	query string
	at    time.Time
}

func copyCounts[K comparable](src map[K]int64) map[K]int64 {
	out := make(map[K]int64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func diffCounts[K comparable](current, flushed map[K]int64) map[K]int64 {
	out := make(map[K]int64)
	for k, v := range current {
		if d := v - flushed[k]; d > 0 {
			out[k] = d
		}
	}
	return out
}

// Close flushes and stops the collector.
func (m *Metrics) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.flushTicker != nil {
		m.flushTicker.Stop()
		close(m.stopCh)
	}
	return m.Flush()
}
