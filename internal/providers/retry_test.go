package providers

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}
}

// TestRetryPolicy_TransientRetried verifies transient failures are retried
// up to the attempt bound and then succeed.
func TestRetryPolicy_TransientRetried(t *testing.T) {
	mock := NewMockProvider()
	mock.FailFirst = 2 // first two attempts fail transiently

	got, err := fastPolicy().Transform(context.Background(), mock, TransformRequest{Text: "hello"})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if got != "hello" {
		t.Errorf("Transform() = %q, want %q", got, "hello")
	}
	if mock.RequestCount() != 3 {
		t.Errorf("attempts = %d, want 3", mock.RequestCount())
	}
}

// TestRetryPolicy_ExhaustsAttempts verifies the bound is enforced.
func TestRetryPolicy_ExhaustsAttempts(t *testing.T) {
	mock := NewMockProvider()
	mock.Err = NewError(ClassTransient, MockName, errors.New("flaky"))

	_, err := fastPolicy().Transform(context.Background(), mock, TransformRequest{Text: "x"})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if mock.RequestCount() != 3 {
		t.Errorf("attempts = %d, want 3", mock.RequestCount())
	}
	if !IsTransient(err) {
		t.Errorf("final error should keep its class, got %s", ClassOf(err))
	}
}

// TestRetryPolicy_NoRetryOnFatalClasses verifies configuration, content
// policy, and fatal errors propagate after one attempt.
func TestRetryPolicy_NoRetryOnFatalClasses(t *testing.T) {
	for _, class := range []Class{ClassConfiguration, ClassContentPolicy, ClassFatal} {
		mock := NewMockProvider()
		mock.Err = NewError(class, MockName, errors.New("nope"))

		_, err := fastPolicy().Transform(context.Background(), mock, TransformRequest{Text: "x"})
		if err == nil {
			t.Fatalf("%s: expected error", class)
		}
		if mock.RequestCount() != 1 {
			t.Errorf("%s: attempts = %d, want 1", class, mock.RequestCount())
		}
		if ClassOf(err) != class {
			t.Errorf("%s: class = %s", class, ClassOf(err))
		}
	}
}

// TestRetryPolicy_CancelledContext verifies a pre-cancelled context makes no
// further attempts.
func TestRetryPolicy_CancelledContext(t *testing.T) {
	mock := NewMockProvider()
	mock.Err = NewError(ClassTransient, MockName, errors.New("flaky"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fastPolicy().Transform(ctx, mock, TransformRequest{Text: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if mock.RequestCount() > 1 {
		t.Errorf("attempts = %d, want at most 1 after cancellation", mock.RequestCount())
	}
}
