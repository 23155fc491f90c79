package research

import (
	"context"
	"errors"
	"testing"
)

func TestWithRetryExhaustsAndFallsBack(t *testing.T) {
	calls := 0
	result := withRetry(context.Background(), "test", 2,
		func(ctx context.Context, errFeedback string) (string, error) {
			calls++
			return "", errors.New("always fails")
		},
		func() string { return "fallback" })

	if calls != 3 {
		t.Errorf("expected 3 invocations (maxRetries=2), got %d", calls)
	}
	if result != "fallback" {
		t.Errorf("expected fallback result, got %q", result)
	}
}

func TestWithRetryFeedsErrorIntoNextAttempt(t *testing.T) {
	var feedbacks []string
	withRetry(context.Background(), "test", 2,
		func(ctx context.Context, errFeedback string) (int, error) {
			feedbacks = append(feedbacks, errFeedback)
			return 0, errors.New("boom " + errFeedback)
		},
		func() int { return -1 })

	if len(feedbacks) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(feedbacks))
	}
	if feedbacks[0] != "" {
		t.Errorf("first attempt should have no feedback, got %q", feedbacks[0])
	}
	if feedbacks[1] != "boom " {
		t.Errorf("second attempt should see first error, got %q", feedbacks[1])
	}
	if feedbacks[2] != "boom boom " {
		t.Errorf("third attempt should see second error, got %q", feedbacks[2])
	}
}

func TestWithRetrySucceedsImmediately(t *testing.T) {
	calls := 0
	result := withRetry(context.Background(), "test", 2,
		func(ctx context.Context, errFeedback string) (string, error) {
			calls++
			return "ok", nil
		},
		func() string { return "fallback" })

	if calls != 1 {
		t.Errorf("expected 1 invocation, got %d", calls)
	}
	if result != "ok" {
		t.Errorf("expected %q, got %q", "ok", result)
	}
}

func TestWithRetrySucceedsAfterFailure(t *testing.T) {
	calls := 0
	result := withRetry(context.Background(), "test", 2,
		func(ctx context.Context, errFeedback string) (string, error) {
			calls++
			if calls < 2 {
				return "", errors.New("transient")
			}
			return "recovered", nil
		},
		func() string { return "fallback" })

	if calls != 2 {
		t.Errorf("expected 2 invocations, got %d", calls)
	}
	if result != "recovered" {
		t.Errorf("expected %q, got %q", "recovered", result)
	}
}
