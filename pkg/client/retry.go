package client

import (
	"time"
)

// Default retry parameters. Preserved as defaults; deployments may override
// them through the Config.
const (
	// DefaultMaxRetries is the retry ceiling per logical call.
	DefaultMaxRetries = 3

	// DefaultBaseDelay is the backoff unit for the first retry.
	DefaultBaseDelay = 1 * time.Second

	// DefaultMaxDelay caps the backoff delay.
	DefaultMaxDelay = 30 * time.Second
)

// RetryPolicy decides whether a failed attempt is retried and after what
// delay. The policy is stateless and pure; it performs no I/O or sleeping.
// The client suspends before the next attempt.
type RetryPolicy struct {
	// MaxRetries is the maximum number of retries after the initial attempt.
	MaxRetries int

	// BaseDelay is doubled per attempt to produce the backoff delay.
	BaseDelay time.Duration

	// MaxDelay caps the computed delay.
	MaxDelay time.Duration
}

// DefaultRetryPolicy returns the default policy: 3 retries, exponential
// backoff from 2s, capped at 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
	}
}

// ShouldRetry reports whether a failure of the given kind, after the given
// number of prior attempts, is retried. Only NETWORK_ERROR, TIMEOUT,
// SERVER_ERROR, and RATE_LIMIT are recoverable.
func (p RetryPolicy) ShouldRetry(kind ErrorKind, attempt int) bool {
	if attempt >= p.MaxRetries {
		return false
	}

	switch kind {
	case KindNetworkError, KindTimeout, KindServerError, KindRateLimit:
		return true
	default:
		return false
	}
}

// DelayFor returns the backoff delay before the given retry. attempt is the
// 1-based retry count: delays are 2s, 4s, 8s for retries 1..3 with the
// default BaseDelay, never exceeding MaxDelay. No jitter is applied so that
// retry timing stays deterministic.
func (p RetryPolicy) DelayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// Guard the shift against overflow for absurd attempt counts.
	if attempt > 30 {
		return p.MaxDelay
	}

	delay := p.BaseDelay << uint(attempt)
	if delay > p.MaxDelay || delay <= 0 {
		return p.MaxDelay
	}
	return delay
}
