package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// limiter wraps an optional token-bucket limiter. A nil inner limiter
// means throttling is disabled.
type limiter struct {
	inner *rate.Limiter
}

// newLimiter builds a limiter for rps requests per second with the given
// burst. Non-positive rps disables throttling entirely.
func newLimiter(rps float64, burst int) *limiter {
	if rps <= 0 {
		return &limiter{}
	}
	if burst <= 0 {
		burst = 1
	}
	return &limiter{inner: rate.NewLimiter(rate.Limit(rps), burst)}
}

// wait blocks until a token is available or ctx is done.
func (l *limiter) wait(ctx context.Context) error {
	if l == nil || l.inner == nil {
		return nil
	}
	return l.inner.Wait(ctx)
}
