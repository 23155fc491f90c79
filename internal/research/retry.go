package research

import (
	"context"
	"log"
)

// withRetry invokes op up to maxRetries+1 times. The text of the previous
// attempt's error is passed into the next attempt so the external call can
// see what went wrong and self-correct. All errors are treated as retryable.
// After exhausting attempts, fallback produces the result; fallback does
// local computation only and must not fail.
func withRetry[T any](ctx context.Context, name string, maxRetries int, op func(ctx context.Context, errFeedback string) (T, error), fallback func() T) T {
	feedback := ""
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, err := op(ctx, feedback)
		if err == nil {
			return result
		}
		lastErr = err
		log.Printf("[%s] attempt %d/%d failed: %v", name, attempt+1, maxRetries+1, err)
		feedback = err.Error()
	}

	log.Printf("[%s] all attempts failed, using fallback (last error: %v)", name, lastErr)
	return fallback()
}
