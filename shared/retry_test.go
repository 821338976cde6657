package shared

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       attempts,
		InitialDelay:      time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

func TestRetryWithBackoffRecovers(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), fastRetry(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("Expected 3 calls, got %d", calls)
	}
}

func TestRetryWithBackoffGivesUp(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), fastRetry(2), func(ctx context.Context) error {
		calls++
		return errors.New("service unavailable")
	})
	if err == nil || calls != 2 {
		t.Fatalf("Expected failure after 2 calls, got err=%v calls=%d", err, calls)
	}
}

func TestRetryWithBackoffStopsOnFinalErrors(t *testing.T) {
	for _, final := range []error{
		errors.New("rpc error: code = PermissionDenied desc = denied"),
		errors.New("secret not found"),
		context.Canceled,
	} {
		calls := 0
		err := RetryWithBackoff(context.Background(), fastRetry(5), func(ctx context.Context) error {
			calls++
			return final
		})
		if !errors.Is(err, final) || calls != 1 {
			t.Errorf("%v: expected a single attempt, got %d", final, calls)
		}
	}
}

func TestRetryWithBackoffHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := RetryWithBackoff(ctx, fastRetry(3), func(ctx context.Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) || calls != 0 {
		t.Fatalf("Expected canceled without calls, got err=%v calls=%d", err, calls)
	}
}

func TestBackoffIsCapped(t *testing.T) {
	cfg := &RetryConfig{InitialDelay: time.Second, MaxDelay: 2 * time.Second, BackoffMultiplier: 10}
	if d := cfg.backoff(5); d != 2*time.Second {
		t.Fatalf("Expected capped delay without jitter, got %v", d)
	}
}
