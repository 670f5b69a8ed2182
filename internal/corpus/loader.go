package corpus

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	rankerr "github.com/caresearch/medrank/internal/errors"
)

var (
	errMissingID   = errors.New("practitioner record missing id")
	errMissingName = errors.New("practitioner record missing name")
)

// Corpus is an immutable snapshot of the practitioner set.
// All reads share the same backing slice; no locks are needed because a
// snapshot is never mutated after Load returns it.
type Corpus struct {
	practitioners []*Practitioner
	byID          map[string]*Practitioner

	loadID   string
	path     string
	loadedAt time.Time
}

// All returns the full ordered practitioner sequence.
// Callers must treat the slice and its records as read-only.
func (c *Corpus) All() []*Practitioner {
	return c.practitioners
}

// Get looks up a practitioner by id.
func (c *Corpus) Get(id string) (*Practitioner, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// Len returns the number of records.
func (c *Corpus) Len() int {
	return len(c.practitioners)
}

// LoadID is a unique id for this snapshot, for log correlation.
func (c *Corpus) LoadID() string {
	return c.loadID
}

// Path returns the file the snapshot was loaded from.
func (c *Corpus) Path() string {
	return c.path
}

// LoadedAt returns the snapshot load time.
func (c *Corpus) LoadedAt() time.Time {
	return c.loadedAt
}

// Load reads a practitioner corpus from path. Both a single JSON array and
// JSON Lines (one record per line) are accepted; the format is sniffed from
// the first non-space byte.
func Load(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rankerr.New(rankerr.ErrCodeCorpusNotFound,
				fmt.Sprintf("corpus file not found: %s", path), err).
				WithSuggestion("Set corpus.path in .medrank.yaml or pass --corpus")
		}
		return nil, rankerr.New(rankerr.ErrCodeFilePermission,
			fmt.Sprintf("cannot read corpus file: %s", path), err)
	}

	records, err := parse(data)
	if err != nil {
		return nil, rankerr.New(rankerr.ErrCodeCorpusParse,
			fmt.Sprintf("cannot parse corpus file: %s", path), err)
	}
	if len(records) == 0 {
		return nil, rankerr.New(rankerr.ErrCodeCorpusEmpty,
			fmt.Sprintf("corpus file has no records: %s", path), nil)
	}

	byID := make(map[string]*Practitioner, len(records))
	for i, p := range records {
		if err := p.Validate(); err != nil {
			return nil, rankerr.New(rankerr.ErrCodeCorpusParse,
				fmt.Sprintf("record %d invalid", i), err).
				WithDetail("record", fmt.Sprintf("%d", i))
		}
		if _, dup := byID[p.ID]; dup {
			return nil, rankerr.New(rankerr.ErrCodeCorpusParse,
				fmt.Sprintf("record %d: duplicate id %q", i, p.ID), nil)
		}
		byID[p.ID] = p
	}

	c := &Corpus{
		practitioners: records,
		byID:          byID,
		loadID:        uuid.NewString(),
		path:          path,
		loadedAt:      time.Now(),
	}

	slog.Debug("corpus loaded",
		slog.String("path", path),
		slog.String("load_id", c.loadID),
		slog.Int("records", len(records)))

	return c, nil
}

// parse decodes either a JSON array or JSONL content.
func parse(data []byte) ([]*Practitioner, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var records []*Practitioner
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, err
		}
		return records, nil
	}

	// JSONL: one record per non-empty line
	var records []*Practitioner
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var p Practitioner
		if err := json.Unmarshal(text, &p); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, &p)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Provider holds the current corpus snapshot and supports atomic swaps.
// Requests read a snapshot once at entry and keep it for their lifetime, so
// a reload never changes the set mid-request.
type Provider struct {
	current atomic.Pointer[Corpus]
}

// NewProvider creates a provider holding the given snapshot.
func NewProvider(c *Corpus) *Provider {
	p := &Provider{}
	p.current.Store(c)
	return p
}

// Corpus returns the current snapshot.
func (p *Provider) Corpus() *Corpus {
	return p.current.Load()
}

// Swap atomically replaces the snapshot.
func (p *Provider) Swap(c *Corpus) {
	old := p.current.Swap(c)
	if old != nil && c != nil {
		slog.Info("corpus swapped",
			slog.String("old_load_id", old.loadID),
			slog.String("new_load_id", c.loadID),
			slog.Int("records", c.Len()))
	}
}
