package ui

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainRenderer_UpdateProgress(t *testing.T) {
	// Given: a plain renderer with a buffer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))
	require.NoError(t, r.Start(context.Background()))

	// When: updating trial progress
	r.UpdateProgress(ProgressEvent{
		Phase:   PhaseTrials,
		Current: 3,
		Total:   30,
		CaseID:  "case-003",
	})

	// Then: output shows phase icon, counts and case id
	output := buf.String()
	assert.Contains(t, output, "[TRIAL]")
	assert.Contains(t, output, "3/30")
	assert.Contains(t, output, "case-003")
}

func TestPlainRenderer_MessageWithoutTotal(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.UpdateProgress(ProgressEvent{
		Phase:   PhaseLoad,
		Message: "reading benchmark-test-cases.json",
	})

	output := buf.String()
	assert.Contains(t, output, "[LOAD]")
	assert.Contains(t, output, "reading benchmark-test-cases.json")
}

func TestPlainRenderer_AddError(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.AddError(CaseError{CaseID: "case-007", Err: assert.AnError})
	r.AddError(CaseError{CaseID: "case-008", Err: assert.AnError, IsWarn: true})

	output := buf.String()
	assert.Contains(t, output, "ERROR: case-007")
	assert.Contains(t, output, "WARN: case-008")
}

func TestPlainRenderer_Complete(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.Complete(StudyStats{
		Cases:        30,
		Failures:     1,
		Warnings:     2,
		CacheHits:    28,
		Workers:      4,
		Duration:     150 * time.Second,
		MeanCaseTime: 5 * time.Second,
	})

	output := buf.String()
	assert.Contains(t, output, "Complete: 30 cases")
	assert.Contains(t, output, "4 workers")
	assert.Contains(t, output, "1 failures, 2 warnings")
	assert.Contains(t, output, "per case: 5s")
	assert.Contains(t, output, "cached contexts: 28")

	assert.NoError(t, r.Stop())
}

func TestPlainRenderer_CleanRunOmitsFailureCounts(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.Complete(StudyStats{Cases: 5, Duration: 10 * time.Second})

	assert.NotContains(t, buf.String(), "failures")
}
