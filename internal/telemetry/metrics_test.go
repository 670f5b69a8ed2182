package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rankEvent(query, variant string, shortlist int, total time.Duration) RankEvent {
	return RankEvent{
		RequestID:     "req-1",
		Variant:       variant,
		Query:         query,
		ShortlistSize: shortlist,
		TotalDuration: total,
		Timestamp:     time.Now(),
	}
}

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want LatencyBucket
	}{
		{50 * time.Millisecond, BucketP100},
		{99 * time.Millisecond, BucketP100},
		{100 * time.Millisecond, BucketP500},
		{499 * time.Millisecond, BucketP500},
		{time.Second, BucketP2000},
		{3 * time.Second, BucketP5000},
		{10 * time.Second, BucketPSlow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LatencyToBucket(tt.d), "duration %v", tt.d)
	}
}

func TestRing_EvictsOldest(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		r.Add(i)
	}

	assert.Equal(t, 3, r.Size())
	assert.Equal(t, []int{3, 4, 5}, r.Items())
}

func TestRing_PartialFill(t *testing.T) {
	r := NewRing[string](10)
	r.Add("a")
	r.Add("b")

	assert.Equal(t, []string{"a", "b"}, r.Items())
}

func TestMetrics_RecordAggregates(t *testing.T) {
	m := New(nil)
	defer m.Close()

	m.Record(rankEvent("cardiologist in london", "two-stage", 12, 300*time.Millisecond))
	m.Record(rankEvent("female gp near leeds", "v6", 3, 3*time.Second))
	m.Record(rankEvent("dermatologist", "v6", 0, 80*time.Millisecond))

	s := m.Snapshot()

	assert.Equal(t, int64(3), s.TotalRequests)
	assert.Equal(t, int64(1), s.VariantCounts["two-stage"])
	assert.Equal(t, int64(2), s.VariantCounts["v6"])
	assert.Equal(t, int64(1), s.LatencyDistribution[BucketP100])
	assert.Equal(t, int64(1), s.LatencyDistribution[BucketP500])
	assert.Equal(t, int64(1), s.LatencyDistribution[BucketP5000])
	assert.Equal(t, int64(1), s.EmptyCount)
	assert.Equal(t, []string{"dermatologist"}, s.EmptyQueries)
	assert.Len(t, s.Recent, 3)
}

func TestMetrics_TermExtraction(t *testing.T) {
	m := New(nil)
	defer m.Close()

	// Terms shorter than 3 runes are skipped.
	m.Record(rankEvent("gp in London London", "legacy", 5, time.Millisecond))

	s := m.Snapshot()

	require.NotEmpty(t, s.TopTerms)
	assert.Equal(t, "london", s.TopTerms[0].Term)
	assert.Equal(t, int64(2), s.TopTerms[0].Count)
	for _, tc := range s.TopTerms {
		assert.NotEqual(t, "gp", tc.Term)
		assert.NotEqual(t, "in", tc.Term)
	}
}

func TestMetrics_RepeatDetection(t *testing.T) {
	m := New(nil)
	defer m.Close()

	m.Record(rankEvent("knee surgeon", "two-stage", 5, time.Millisecond))
	m.Record(rankEvent("Knee Surgeon", "two-stage", 5, time.Millisecond))
	m.Record(rankEvent("hip surgeon", "two-stage", 5, time.Millisecond))

	s := m.Snapshot()

	// Case and whitespace normalize before hashing.
	assert.Equal(t, int64(1), s.ExactRepeatCount)
	assert.Equal(t, int64(2), s.UniqueQueryCount)
	assert.InDelta(t, 1.0/3.0, s.ExactRepeatRate, 0.001)
}

func TestMetrics_TerminationCounts(t *testing.T) {
	m := New(nil)
	defer m.Close()

	e := rankEvent("q", "v6", 3, time.Second)
	e.TerminationReason = "top-k-excellent"
	m.Record(e)
	m.Record(e)
	e.TerminationReason = "max-iterations"
	m.Record(e)

	s := m.Snapshot()

	assert.Equal(t, int64(2), s.TerminationCounts["top-k-excellent"])
	assert.Equal(t, int64(1), s.TerminationCounts["max-iterations"])
}

func TestMetrics_EmptyPercentage(t *testing.T) {
	s := &Snapshot{TotalRequests: 4, EmptyCount: 1}
	assert.Equal(t, 25.0, s.EmptyPercentage())

	empty := &Snapshot{}
	assert.Equal(t, 0.0, empty.EmptyPercentage())
}

// fakeStore records what was flushed.
type fakeStore struct {
	mu           sync.Mutex
	variants     map[string]int64
	terminations map[string]int64
	terms        map[string]int64
	latencies    map[LatencyBucket]int64
	emptyQueries []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		variants:     make(map[string]int64),
		terminations: make(map[string]int64),
		terms:        make(map[string]int64),
		latencies:    make(map[LatencyBucket]int64),
	}
}

func (f *fakeStore) SaveVariantCounts(_ string, counts map[string]int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, v := range counts {
		f.variants[k] += v
	}
	return nil
}

func (f *fakeStore) SaveTerminationCounts(_ string, counts map[string]int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, v := range counts {
		f.terminations[k] += v
	}
	return nil
}

func (f *fakeStore) UpsertTermCounts(terms map[string]int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, v := range terms {
		f.terms[k] += v
	}
	return nil
}

func (f *fakeStore) GetTopTerms(int) ([]TermCount, error) { return nil, nil }

func (f *fakeStore) SaveLatencyCounts(_ string, counts map[LatencyBucket]int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, v := range counts {
		f.latencies[k] += v
	}
	return nil
}

func (f *fakeStore) AddEmptyQuery(query string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emptyQueries = append(f.emptyQueries, query)
	return nil
}

func (f *fakeStore) Close() error { return nil }

func TestMetrics_FlushWritesDeltasOnly(t *testing.T) {
	store := newFakeStore()
	m := NewWithConfig(store, Config{FlushInterval: 0})
	defer m.Close()

	m.Record(rankEvent("cardiologist", "v6", 3, time.Second))
	require.NoError(t, m.Flush())

	// A second flush with nothing new must not re-count.
	require.NoError(t, m.Flush())

	assert.Equal(t, int64(1), store.variants["v6"])
	assert.Equal(t, int64(1), store.terms["cardiologist"])

	// New events after a flush land exactly once.
	m.Record(rankEvent("cardiologist", "v6", 3, time.Second))
	require.NoError(t, m.Flush())

	assert.Equal(t, int64(2), store.variants["v6"])
	assert.Equal(t, int64(2), store.terms["cardiologist"])
}

func TestMetrics_FlushPersistsEmptyQueries(t *testing.T) {
	store := newFakeStore()
	m := NewWithConfig(store, Config{FlushInterval: 0})
	defer m.Close()

	m.Record(rankEvent("unicorn specialist", "two-stage", 0, time.Millisecond))
	require.NoError(t, m.Flush())
	require.NoError(t, m.Flush())

	assert.Equal(t, []string{"unicorn specialist"}, store.emptyQueries)
}

func TestMetrics_CloseIsIdempotent(t *testing.T) {
	m := New(newFakeStore())
	m.Record(rankEvent("q", "legacy", 1, time.Millisecond))

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	// Records after close are dropped silently.
	m.Record(rankEvent("late", "legacy", 1, time.Millisecond))
}

func TestMetrics_ConcurrentRecord(t *testing.T) {
	m := New(nil)
	defer m.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.Record(rankEvent("concurrent query", "v6", 3, time.Millisecond))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(500), m.Snapshot().TotalRequests)
}
