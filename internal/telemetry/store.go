package telemetry

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	rankerr "github.com/caresearch/medrank/internal/errors"
)

// SQLiteStore implements MetricsStore on a local SQLite database. Unlike
// the embedding cache it owns its handle; Close releases it.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the metrics database at path. An
// empty path or ":memory:" keeps the database in memory.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" && path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, rankerr.New(rankerr.ErrCodeStoreFailed,
				fmt.Sprintf("create metrics directory %s", dir), err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, rankerr.New(rankerr.ErrCodeStoreFailed, "open metrics database", err)
	}

	// Single writer to prevent lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, rankerr.New(rankerr.ErrCodeStoreFailed, "set pragma", err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, rankerr.New(rankerr.ErrCodeStoreFailed, "initialize metrics schema", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Per-variant request counts, aggregated daily
	CREATE TABLE IF NOT EXISTS rank_variant_stats (
		date TEXT NOT NULL,
		variant TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, variant)
	);

	-- Progressive termination reasons, aggregated daily
	CREATE TABLE IF NOT EXISTS rank_termination_stats (
		date TEXT NOT NULL,
		reason TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, reason)
	);

	-- Query term frequencies
	CREATE TABLE IF NOT EXISTS query_terms (
		term TEXT PRIMARY KEY,
		count INTEGER NOT NULL DEFAULT 1,
		last_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_query_terms_count ON query_terms(count DESC);

	-- Queries whose shortlist came back empty (bounded, FIFO)
	CREATE TABLE IF NOT EXISTS empty_shortlist_queries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query TEXT NOT NULL,
		timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Request latency histogram, aggregated daily
	CREATE TABLE IF NOT EXISTS rank_latency_stats (
		date TEXT NOT NULL,
		bucket TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, bucket)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create metrics schema: %w", err)
	}
	return nil
}

// SaveVariantCounts upserts daily per-variant request counts.
func (s *SQLiteStore) SaveVariantCounts(date string, counts map[string]int64) error {
	return s.saveDailyCounts("rank_variant_stats", "variant", date, counts)
}

// SaveTerminationCounts upserts daily progressive-termination counts.
func (s *SQLiteStore) SaveTerminationCounts(date string, counts map[string]int64) error {
	return s.saveDailyCounts("rank_termination_stats", "reason", date, counts)
}

func (s *SQLiteStore) saveDailyCounts(table, keyCol, date string, counts map[string]int64) error {
	if len(counts) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(fmt.Sprintf(`
		INSERT INTO %s (date, %s, count)
		VALUES (?, ?, ?)
		ON CONFLICT(date, %s) DO UPDATE SET count = count + excluded.count
	`, table, keyCol, keyCol))
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for key, count := range counts {
		if _, err := stmt.Exec(date, key, count); err != nil {
			return fmt.Errorf("insert %s count: %w", keyCol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetVariantCounts retrieves per-variant totals for a date range.
func (s *SQLiteStore) GetVariantCounts(from, to string) (map[string]int64, error) {
	return s.getDailyCounts("rank_variant_stats", "variant", from, to)
}

// GetTerminationCounts retrieves termination totals for a date range.
func (s *SQLiteStore) GetTerminationCounts(from, to string) (map[string]int64, error) {
	return s.getDailyCounts("rank_termination_stats", "reason", from, to)
}

func (s *SQLiteStore) getDailyCounts(table, keyCol, from, to string) (map[string]int64, error) {
	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT %s, SUM(count) AS total
		FROM %s
		WHERE date >= ? AND date <= ?
		GROUP BY %s
	`, keyCol, table, keyCol), from, to)
	if err != nil {
		return nil, fmt.Errorf("query %s counts: %w", keyCol, err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		counts[key] = count
	}
	return counts, rows.Err()
}

// UpsertTermCounts updates query-term frequencies.
func (s *SQLiteStore) UpsertTermCounts(terms map[string]int64) error {
	if len(terms) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO query_terms (term, count, last_seen)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(term) DO UPDATE SET
			count = count + excluded.count,
			last_seen = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for term, count := range terms {
		if _, err := stmt.Exec(term, count); err != nil {
			return fmt.Errorf("upsert term count: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetTopTerms retrieves the top N terms by frequency.
func (s *SQLiteStore) GetTopTerms(limit int) ([]TermCount, error) {
	rows, err := s.db.Query(`
		SELECT term, count
		FROM query_terms
		ORDER BY count DESC, term ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top terms: %w", err)
	}
	defer rows.Close()

	var terms []TermCount
	for rows.Next() {
		var tc TermCount
		if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		terms = append(terms, tc)
	}
	return terms, rows.Err()
}

// AddEmptyQuery records a query that produced an empty shortlist. The
// table is trimmed to the newest 100 entries.
func (s *SQLiteStore) AddEmptyQuery(query string, timestamp time.Time) error {
	if _, err := s.db.Exec(`
		INSERT INTO empty_shortlist_queries (query, timestamp)
		VALUES (?, ?)
	`, query, timestamp); err != nil {
		return fmt.Errorf("insert empty-shortlist query: %w", err)
	}

	if _, err := s.db.Exec(`
		DELETE FROM empty_shortlist_queries
		WHERE id NOT IN (
			SELECT id FROM empty_shortlist_queries
			ORDER BY id DESC
			LIMIT 100
		)
	`); err != nil {
		return fmt.Errorf("trim empty-shortlist queries: %w", err)
	}
	return nil
}

// GetEmptyQueries retrieves recent empty-shortlist queries, newest first.
func (s *SQLiteStore) GetEmptyQueries(limit int) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT query
		FROM empty_shortlist_queries
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query empty-shortlist queries: %w", err)
	}
	defer rows.Close()

	var queries []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

// SaveLatencyCounts upserts daily latency histogram counts.
func (s *SQLiteStore) SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error {
	strCounts := make(map[string]int64, len(counts))
	for bucket, count := range counts {
		strCounts[string(bucket)] = count
	}
	return s.saveDailyCounts("rank_latency_stats", "bucket", date, strCounts)
}

// GetLatencyCounts retrieves latency distribution for a date range.
func (s *SQLiteStore) GetLatencyCounts(from, to string) (map[LatencyBucket]int64, error) {
	raw, err := s.getDailyCounts("rank_latency_stats", "bucket", from, to)
	if err != nil {
		return nil, err
	}
	counts := make(map[LatencyBucket]int64, len(raw))
	for bucket, count := range raw {
		counts[LatencyBucket(bucket)] = count
	}
	return counts, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
