package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_SucceedsAfterTransientError(t *testing.T) {
	// Given: a function that fails twice then succeeds
	attempts := 0
	fn := func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient error")
		}
		return nil
	}

	// When: retrying with default config
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = 10 * time.Millisecond // Speed up test

	err := Retry(context.Background(), cfg, fn)

	// Then: succeeds after 3 attempts
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_FailsAfterMaxRetries(t *testing.T) {
	// Given: a function that always fails
	attempts := 0
	fn := func() error {
		attempts++
		return errors.New("persistent error")
	}

	// When: retrying with limited retries
	cfg := RetryConfig{
		MaxRetries:   2,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
	}

	err := Retry(context.Background(), cfg, fn)

	// Then: fails with wrapped error
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.Equal(t, 3, attempts) // Initial + 2 retries
}

func TestRetry_RespectsContextCancellation(t *testing.T) {
	// Given: a function that always fails, forcing the retry loop to wait
	fn := func() error {
		return errors.New("error")
	}

	// When: context is cancelled during backoff
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	cfg := RetryConfig{
		MaxRetries:   10,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
	}

	start := time.Now()
	err := Retry(ctx, cfg, fn)
	elapsed := time.Since(start)

	// Then: returns context error promptly instead of exhausting retries
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestRetry_PreservesLastErrorInChain(t *testing.T) {
	// Given: a distinctive failure
	sentinel := New(ErrCodeLLMTimeout, "llm call timed out", nil)
	fn := func() error {
		return sentinel
	}

	cfg := RetryConfig{
		MaxRetries:   1,
		InitialDelay: 1 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}

	// When: retries are exhausted
	err := Retry(context.Background(), cfg, fn)

	// Then: the final error wraps the last failure
	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel))
}

func TestRetryWithResult_ReturnsValueOnSuccess(t *testing.T) {
	// Given: a function that fails once then returns a value
	attempts := 0
	fn := func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", errors.New("transient")
		}
		return "shortlist", nil
	}

	cfg := DefaultRetryConfig()
	cfg.InitialDelay = 5 * time.Millisecond

	// When: retrying
	result, err := RetryWithResult(context.Background(), cfg, fn)

	// Then: returns the value
	require.NoError(t, err)
	assert.Equal(t, "shortlist", result)
	assert.Equal(t, 2, attempts)
}

func TestRetryWithResult_ReturnsZeroValueOnFailure(t *testing.T) {
	// Given: a function that always fails
	fn := func() (int, error) {
		return 42, errors.New("always fails")
	}

	cfg := RetryConfig{
		MaxRetries:   1,
		InitialDelay: 1 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}

	// When: retries are exhausted
	result, err := RetryWithResult(context.Background(), cfg, fn)

	// Then: the zero value is returned, not the partial result
	assert.Error(t, err)
	assert.Equal(t, 0, result)
}

func TestRetry_JitterStaysWithinBounds(t *testing.T) {
	// Given: jittered retries with a known base delay
	attempts := 0
	fn := func() error {
		attempts++
		return errors.New("fail")
	}

	cfg := RetryConfig{
		MaxRetries:   2,
		InitialDelay: 20 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       true,
	}

	// When: running the full retry loop
	start := time.Now()
	_ = Retry(context.Background(), cfg, fn)
	elapsed := time.Since(start)

	// Then: total wait is at least half of the undithered schedule (20+40)
	// and the loop ran all attempts
	assert.Equal(t, 3, attempts)
	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
}

func TestLLMRetryConfig_IsBoundedForRequestDeadlines(t *testing.T) {
	cfg := LLMRetryConfig()

	// Worst case wait must stay small enough to fit inside a rank request.
	assert.LessOrEqual(t, cfg.MaxRetries, 3)
	assert.LessOrEqual(t, cfg.MaxDelay, 5*time.Second)
	assert.True(t, cfg.Jitter)
}
