package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryBackoff_SuccessImmediate(t *testing.T) {
	ctx := context.Background()
	calls := 0
	result, err := RetryBackoff(ctx, 3, time.Millisecond, func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if result != 42 {
		t.Fatalf("expected 42, got %d", result)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetryBackoff_SuccessAfterRetries(t *testing.T) {
	ctx := context.Background()
	calls := 0
	start := time.Now()
	result, err := RetryBackoff(ctx, 3, time.Millisecond, func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 7, nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if result != 7 {
		t.Fatalf("expected 7, got %d", result)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	// 1ms + 2ms between the three attempts
	if elapsed := time.Since(start); elapsed < 3*time.Millisecond {
		t.Fatalf("expected backoff waits, elapsed %v", elapsed)
	}
}

func TestRetryBackoff_PersistentFailure(t *testing.T) {
	ctx := context.Background()
	calls := 0
	_, err := RetryBackoff(ctx, 3, time.Millisecond, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("permanent")
	})
	if err == nil || err.Error() != "permanent" {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryBackoff_MaxTriesZeroOrNegative(t *testing.T) {
	ctx := context.Background()
	for _, maxTries := range []int{0, -2} {
		calls := 0
		_, err := RetryBackoff(ctx, maxTries, time.Millisecond, func(ctx context.Context) (int, error) {
			calls++
			return 0, errors.New("fail")
		})
		if err == nil {
			t.Fatal("expected error")
		}
		if calls != 1 {
			t.Fatalf("maxTries=%d: expected 1 call, got %d", maxTries, calls)
		}
	}
}

func TestRetryBackoff_FunctionReturnsContextError(t *testing.T) {
	ctx := context.Background()
	calls := 0
	_, err := RetryBackoff(ctx, 3, time.Millisecond, func(ctx context.Context) (int, error) {
		calls++
		return 0, context.DeadlineExceeded
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected no retry on context error, got %d calls", calls)
	}
}

func TestRetryBackoff_ContextCanceledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	_, err := RetryBackoff(ctx, 10, 50*time.Millisecond, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call before cancellation, got %d", calls)
	}
}
