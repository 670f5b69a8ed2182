package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer outputs plain text progress (for CI/pipes).
type PlainRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	phase  Phase
	errors []CaseError
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{
		out: cfg.Output,
	}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.phase = event.Phase

	// Format: [PHASE] current/total - message or case id
	var msg string
	if event.Message != "" {
		msg = event.Message
	} else if event.CaseID != "" {
		msg = event.CaseID
	}

	if event.Total > 0 {
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d - %s\n", event.Phase.Icon(), event.Current, event.Total, msg)
	} else if msg != "" {
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Phase.Icon(), msg)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event CaseError) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors = append(r.errors, event)

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}

	if event.CaseID != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.CaseID, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats StudyStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %d cases in %s",
		stats.Cases, stats.Duration.Round(100*time.Millisecond))

	if stats.Workers > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d workers)", stats.Workers)
	}
	if stats.Failures > 0 || stats.Warnings > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d failures, %d warnings)", stats.Failures, stats.Warnings)
	}
	_, _ = fmt.Fprintln(r.out)

	if stats.MeanCaseTime > 0 {
		_, _ = fmt.Fprintf(r.out, "  per case: %s\n", stats.MeanCaseTime.Round(100*time.Millisecond))
	}
	if stats.CacheHits > 0 {
		_, _ = fmt.Fprintf(r.out, "  cached contexts: %d\n", stats.CacheHits)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

// Ensure PlainRenderer implements Renderer
var _ Renderer = (*PlainRenderer)(nil)
