package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rohmanhakim/catalog-crawler/pkg/failure"
	"github.com/rohmanhakim/catalog-crawler/pkg/timeutil"
)

// Retry executes fn up to MaxAttempts times, applying exponential backoff with
// jitter between attempts. Only retryable errors trigger another attempt.
func Retry[T any](retryParam RetryParam, fn func() (T, failure.ClassifiedError)) Result[T] {
	return RetryWithContext(context.Background(), retryParam, func(context.Context, int) (T, failure.ClassifiedError) {
		return fn()
	})
}

// RetryWithContext is Retry with cancellation. A cancelled context stops new
// attempts from being issued, including while waiting out a backoff delay;
// an attempt already running is left to finish. fn receives the 1-based
// attempt number.
func RetryWithContext[T any](
	ctx context.Context,
	retryParam RetryParam,
	fn func(ctx context.Context, attempt int) (T, failure.ClassifiedError),
) Result[T] {
	var result Result[T]

	if retryParam.MaxAttempts < 1 {
		result.err = &RetryError{
			Message:   "max attempt cannot be 0",
			Cause:     ErrZeroAttempt,
			Retryable: true,
		}
		return result
	}

	rng := rand.New(rand.NewSource(retryParam.RandomSeed))

	var lastErr failure.ClassifiedError
	for attempt := 1; attempt <= retryParam.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			result.err = cancelled(ctx, lastErr)
			return result
		}

		value, err := fn(ctx, attempt)
		entry := Attempt{Number: attempt, Err: err}

		if err == nil {
			result.attempts = append(result.attempts, entry)
			result.value = value
			return result
		}
		lastErr = err

		if !isErrorRetryable(err) {
			result.attempts = append(result.attempts, entry)
			result.err = err
			return result
		}

		if attempt == retryParam.MaxAttempts {
			result.attempts = append(result.attempts, entry)
			break
		}

		entry.Backoff = timeutil.ExponentialBackoffDelay(
			attempt,
			retryParam.Jitter,
			*rng,
			retryParam.BackoffParam,
		)
		result.attempts = append(result.attempts, entry)

		if !sleep(ctx, entry.Backoff) {
			result.err = cancelled(ctx, lastErr)
			return result
		}
	}

	result.err = &RetryError{
		Message:   fmt.Sprintf("exhausted %d attempts. Last error: %v", retryParam.MaxAttempts, lastErr),
		Cause:     ErrExhaustedAttempts,
		Retryable: true, // recoverable at scheduler level
		LastErr:   lastErr,
	}
	return result
}

func cancelled(ctx context.Context, lastErr failure.ClassifiedError) *RetryError {
	return &RetryError{
		Message:   ctx.Err().Error(),
		Cause:     ErrCancelled,
		Retryable: true,
		LastErr:   lastErr,
	}
}

// sleep waits for d or until ctx is done. It reports whether the full delay elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// isErrorRetryable reports whether err asks for another attempt. Errors that
// do not expose IsRetryable are retried.
func isErrorRetryable(err failure.ClassifiedError) bool {
	type hasRetryable interface {
		IsRetryable() bool
	}
	if r, ok := err.(hasRetryable); ok {
		return r.IsRetryable()
	}
	return true
}
