package retry

import (
	"time"

	"github.com/rohmanhakim/catalog-crawler/pkg/failure"
	"github.com/rohmanhakim/catalog-crawler/pkg/timeutil"
)

// RetryParam holds the retry policy. Values come from configuration; the
// handler itself knows nothing about where they originate.
type RetryParam struct {
	Jitter       time.Duration
	RandomSeed   int64
	MaxAttempts  int
	BackoffParam timeutil.BackoffParam
}

func NewRetryParam(
	jitter time.Duration,
	randomSeed int64,
	maxAttempts int,
	backoffParam timeutil.BackoffParam,
) RetryParam {
	return RetryParam{
		Jitter:       jitter,
		RandomSeed:   randomSeed,
		MaxAttempts:  maxAttempts,
		BackoffParam: backoffParam,
	}
}

// Attempt is one invocation of the retried function.
type Attempt struct {
	Number  int
	Err     failure.ClassifiedError
	Backoff time.Duration
}

// Result carries the outcome of a retried call together with its attempt log.
type Result[T any] struct {
	value    T
	err      failure.ClassifiedError
	attempts []Attempt
}

func (r Result[T]) Value() T {
	return r.value
}

func (r Result[T]) Err() failure.ClassifiedError {
	return r.err
}

func (r Result[T]) IsSuccess() bool {
	return r.err == nil
}

func (r Result[T]) IsFailure() bool {
	return r.err != nil
}

// Attempts returns how many times the function was invoked.
func (r Result[T]) Attempts() int {
	return len(r.attempts)
}

// Log returns a copy of the attempt history in invocation order.
func (r Result[T]) Log() []Attempt {
	out := make([]Attempt, len(r.attempts))
	copy(out, r.attempts)
	return out
}

// TotalBackoff sums the delays applied between attempts.
func (r Result[T]) TotalBackoff() time.Duration {
	var total time.Duration
	for _, a := range r.attempts {
		total += a.Backoff
	}
	return total
}
