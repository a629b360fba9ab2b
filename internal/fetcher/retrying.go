package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rohmanhakim/catalog-crawler/internal/metadata"
	"github.com/rohmanhakim/catalog-crawler/pkg/failure"
	"github.com/rohmanhakim/catalog-crawler/pkg/limiter"
	"github.com/rohmanhakim/catalog-crawler/pkg/retry"
)

var tracer = otel.Tracer("github.com/rohmanhakim/catalog-crawler/internal/fetcher")

/*
RetryingFetcher wraps a Fetcher with a bounded retry policy.

  - Retryable failures (429, 503, other transient 5xx, timeouts, connection
    resets) are retried up to MaxAttempts with exponential backoff and jitter.
  - Terminal failures are returned after the first attempt.
  - Exhausting the attempts surfaces a terminal ErrCauseRetriesExhausted.
  - Every attempt waits for its per-host slot on the rate limiter. A 429 or
    503 grows the host backoff; a success resets it.
  - Each attempt runs with its own timeout on a context detached from run
    cancellation, so an attempt already on the wire completes. Cancellation
    stops new attempts from being issued.

Every logical fetch draws its own jitter seed from a generator seeded once
with RandomSeed, so concurrent fetches that fail together back off apart
while a fixed seed still reproduces the whole run.

It never touches frontier or ledger state; callers decide what a failure means.
*/
type RetryingFetcher struct {
	inner        Fetcher
	retryParam   retry.RetryParam
	timeout      time.Duration
	pacer        limiter.RateLimiter
	metadataSink metadata.MetadataSink

	seedMu sync.Mutex
	seeds  *rand.Rand
}

func NewRetryingFetcher(
	inner Fetcher,
	retryParam retry.RetryParam,
	timeout time.Duration,
	pacer limiter.RateLimiter,
	metadataSink metadata.MetadataSink,
) *RetryingFetcher {
	if metadataSink == nil {
		metadataSink = &metadata.NoopSink{}
	}
	return &RetryingFetcher{
		inner:        inner,
		retryParam:   retryParam,
		timeout:      timeout,
		pacer:        pacer,
		metadataSink: metadataSink,
		seeds:        rand.New(rand.NewSource(retryParam.RandomSeed)),
	}
}

// callParam returns the retry policy of one logical fetch.
func (f *RetryingFetcher) callParam() retry.RetryParam {
	f.seedMu.Lock()
	defer f.seedMu.Unlock()
	param := f.retryParam
	param.RandomSeed = f.seeds.Int63()
	return param
}

func (f *RetryingFetcher) Fetch(ctx context.Context, req Request) (Response, failure.ClassifiedError) {
	callerMethod := "RetryingFetcher.Fetch"
	target := req.URL.String()
	host := req.URL.Hostname()

	ctx, span := tracer.Start(ctx, "fetch", trace.WithAttributes(
		attribute.String("http.method", req.method()),
		attribute.String("url.full", target),
	))
	defer span.End()

	var attempts []FetchAttempt
	lastStatus := 0
	startTime := time.Now()

	result := retry.RetryWithContext(ctx, f.callParam(), func(ctx context.Context, attempt int) (Response, failure.ClassifiedError) {
		if f.pacer != nil {
			if err := f.pacer.Wait(ctx, host); err != nil {
				return Response{}, &FetchError{Message: err.Error(), Retryable: false, Cause: ErrCauseCancelled}
			}
		}

		resp, err := f.attempt(ctx, req)

		record := FetchAttempt{Target: target, AttemptNumber: attempt, Outcome: OutcomeOf(err)}
		if err == nil {
			record.StatusCode = resp.Code()
		} else {
			var fetchErr *FetchError
			if errors.As(err, &fetchErr) {
				record.StatusCode = fetchErr.StatusCode
			}
		}
		lastStatus = record.StatusCode
		attempts = append(attempts, record)
		f.adjustPace(host, err)

		return resp, err
	})

	// the retry log carries the backoff applied after each attempt
	for i, a := range result.Log() {
		if i < len(attempts) {
			attempts[i].BackoffApplied = a.Backoff
		}
	}

	span.SetAttributes(attribute.Int("fetch.attempts", len(attempts)))

	if result.IsSuccess() {
		resp := result.Value()
		span.SetAttributes(
			attribute.String("fetch.outcome", OutcomeSuccess.String()),
			attribute.Int("http.status_code", resp.Code()),
		)
		f.metadataSink.RecordFetch(metadata.FetchEvent{
			URL:        target,
			Method:     req.method(),
			StatusCode: resp.Code(),
			Duration:   time.Since(startTime),
			Attempts:   len(attempts),
			Outcome:    OutcomeSuccess.String(),
			Bytes:      len(resp.Body()),
		})
		return resp, nil
	}

	fetchErr := f.surfaceError(result.Err(), attempts, lastStatus)

	span.SetAttributes(attribute.String("fetch.outcome", fetchErr.Outcome().String()))
	span.RecordError(fetchErr)
	span.SetStatus(codes.Error, fetchErr.Error())

	f.metadataSink.RecordFetch(metadata.FetchEvent{
		URL:        target,
		Method:     req.method(),
		StatusCode: lastStatus,
		Duration:   time.Since(startTime),
		Attempts:   len(attempts),
		Outcome:    fetchErr.Outcome().String(),
	})
	if fetchErr.Cause != ErrCauseCancelled {
		f.metadataSink.RecordError(
			time.Now(),
			"fetcher",
			callerMethod,
			mapFetchErrorToMetadataCause(fetchErr),
			fetchErr.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrURL, target),
				metadata.NewAttr(metadata.AttrAttempt, fmt.Sprintf("%d", len(attempts))),
			},
		)
	}

	return Response{}, fetchErr
}

// attempt performs one exchange on a context that ignores run cancellation
// but carries the per-fetch timeout.
func (f *RetryingFetcher) attempt(ctx context.Context, req Request) (Response, failure.ClassifiedError) {
	attemptCtx := context.WithoutCancel(ctx)
	if f.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(attemptCtx, f.timeout)
		defer cancel()
	}

	resp, err := f.inner.Fetch(attemptCtx, req)
	if err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return Response{}, &FetchError{
			Message:   fmt.Sprintf("no response within %s", f.timeout),
			Retryable: true,
			Cause:     ErrCauseTimeout,
		}
	}
	return resp, err
}

func (f *RetryingFetcher) adjustPace(host string, err failure.ClassifiedError) {
	if f.pacer == nil {
		return
	}
	if err == nil {
		f.pacer.ResetBackoff(host)
		return
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) &&
		(fetchErr.Cause == ErrCauseRequestTooMany || fetchErr.Cause == ErrCauseServiceUnavailable) {
		f.pacer.Backoff(host)
	}
}

// surfaceError converts the retry outcome into the FetchError handed to callers.
func (f *RetryingFetcher) surfaceError(err failure.ClassifiedError, attempts []FetchAttempt, lastStatus int) *FetchError {
	var retryErr *retry.RetryError
	if errors.As(err, &retryErr) {
		switch retryErr.Cause {
		case retry.ErrCancelled:
			return &FetchError{
				Message:    retryErr.Message,
				Retryable:  false,
				Cause:      ErrCauseCancelled,
				StatusCode: lastStatus,
				Attempts:   attempts,
			}
		default:
			return &FetchError{
				Message:    retryErr.Error(),
				Retryable:  false,
				Cause:      ErrCauseRetriesExhausted,
				StatusCode: lastStatus,
				Attempts:   attempts,
			}
		}
	}

	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		surfaced := *fetchErr
		surfaced.Attempts = attempts
		return &surfaced
	}

	return &FetchError{
		Message:    err.Error(),
		Retryable:  false,
		Cause:      ErrCauseNetworkFailure,
		StatusCode: lastStatus,
		Attempts:   attempts,
	}
}
