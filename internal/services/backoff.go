package services

import (
	"math/rand"
	"time"
)

// RetryPolicy is one queue's (base, cap, max-retries) triple
type RetryPolicy struct {
	Base       time.Duration
	Cap        time.Duration
	MaxRetries int
}

// Per-queue retry policies
var (
	mutationRetryPolicy = RetryPolicy{Base: 3 * time.Second, Cap: 120 * time.Second, MaxRetries: 5}
	outboxRetryPolicy   = RetryPolicy{Base: 5 * time.Second, Cap: 300 * time.Second, MaxRetries: 5}
)

// Delay computes the backoff delay after the given number of consecutive
// failures: min(base·2^n, cap) plus 0–20% jitter to avoid retry storms.
func (p RetryPolicy) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	// cap the shift before it can overflow
	delay := p.Cap
	if retryCount < 30 {
		delay = p.Base << uint(retryCount)
		if delay > p.Cap || delay <= 0 {
			delay = p.Cap
		}
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/5 + 1))
	return delay + jitter
}

// Exhausted reports whether the retry budget is spent
func (p RetryPolicy) Exhausted(retryCount int) bool {
	return retryCount >= p.MaxRetries
}
