package shared

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"time"
)

const (
	initialBackoffDelay = 200 * time.Millisecond
	maxBackoffDelay     = 5 * time.Second
)

// RetryConfig controls RetryWithBackoff. Only startup calls (secret reads,
// endpoint probes) are retried; per-entry calls get a single attempt.
type RetryConfig struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterPercent     float64
}

func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      initialBackoffDelay,
		MaxDelay:          maxBackoffDelay,
		BackoffMultiplier: 2.0,
		JitterPercent:     10.0,
	}
}

// backoff returns the delay before attempt+1, with jitter.
func (c *RetryConfig) backoff(attempt int) time.Duration {
	delay := time.Duration(float64(c.InitialDelay) * math.Pow(c.BackoffMultiplier, float64(attempt-1)))
	if delay > c.MaxDelay || delay <= 0 {
		delay = c.MaxDelay
	}
	return delay + jitter(float64(delay)*c.JitterPercent/100)
}

func jitter(maxJitter float64) time.Duration {
	if maxJitter <= 0 {
		return 0
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	ratio := float64(binary.LittleEndian.Uint64(b[:])) / float64(^uint64(0))
	return time.Duration(ratio * maxJitter)
}

var nonRetryablePatterns = []string{
	"permission denied",
	"permissiondenied",
	"unauthenticated",
	"access denied",
	"not found",
	"notfound",
	"invalid argument",
	"invalidargument",
	"malformed",
}

// IsRetryable reports whether err looks transient. Cancellation and
// authorization or lookup failures are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range nonRetryablePatterns {
		if strings.Contains(msg, pattern) {
			return false
		}
	}
	return true
}

// RetryWithBackoff runs operation until it succeeds, fails with a
// non-retryable error, runs out of attempts or ctx ends.
func RetryWithBackoff(ctx context.Context, config *RetryConfig, operation func(ctx context.Context) error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	attempts := max(1, config.MaxAttempts)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = operation(ctx)
		if lastErr == nil || !IsRetryable(lastErr) || attempt == attempts {
			return lastErr
		}

		timer := time.NewTimer(config.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
	return lastErr
}
