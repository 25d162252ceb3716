package ranker

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"time"
)

// ExponentialRetryPolicy bounds enrichment retries and spaces them with jittered backoff.
type ExponentialRetryPolicy struct {
	maxFailures int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewExponentialRetryPolicy builds a policy. Non-positive arguments fall back to defaults.
func NewExponentialRetryPolicy(maxFailures int, baseDelay, maxDelay time.Duration) *ExponentialRetryPolicy {
	if maxFailures <= 0 {
		maxFailures = 3
	}
	if baseDelay <= 0 {
		baseDelay = 250 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	return &ExponentialRetryPolicy{
		maxFailures: maxFailures,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
	}
}

// MaxFailures returns the transient failure budget per channel.
func (p *ExponentialRetryPolicy) MaxFailures() int {
	return p.maxFailures
}

// ShouldRetry decides whether a failed channel stays eligible. failures is the
// persisted count including the current failure. Extractor timeouts are
// transient; caller cancellation is not a failure of the channel at all.
func (p *ExponentialRetryPolicy) ShouldRetry(err error, failures int) bool {
	if err == nil {
		return false
	}
	if IsPermanent(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	return failures < p.maxFailures
}

// Backoff returns the wait duration before the worker polls again.
func (p *ExponentialRetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := p.randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

func (p *ExponentialRetryPolicy) randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
