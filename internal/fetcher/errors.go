package fetcher

import (
	"errors"
	"fmt"

	"github.com/rohmanhakim/catalog-crawler/internal/metadata"
	"github.com/rohmanhakim/catalog-crawler/pkg/failure"
)

type FetchErrorCause string

const (
	ErrCauseTimeout               FetchErrorCause = "timeout"
	ErrCauseNetworkFailure        FetchErrorCause = "network issues"
	ErrCauseDNSFailure            FetchErrorCause = "dns resolution failed"
	ErrCauseMalformedRequest      FetchErrorCause = "malformed request"
	ErrCauseReadResponseBodyError FetchErrorCause = "failed to read response body"
	ErrCauseRedirectLimitExceeded FetchErrorCause = "reached redirect limit"
	ErrCauseRequestPageForbidden  FetchErrorCause = "forbidden"
	ErrCauseRequestClientError    FetchErrorCause = "4xx"
	ErrCauseRequestTooMany        FetchErrorCause = "too many requests"
	ErrCauseServiceUnavailable    FetchErrorCause = "service unavailable"
	ErrCauseRequest5xx            FetchErrorCause = "5xx"
	ErrCauseUnexpectedStatus      FetchErrorCause = "unexpected status"
	ErrCauseRetriesExhausted      FetchErrorCause = "retries exhausted"
	ErrCauseCancelled             FetchErrorCause = "cancelled"
)

type FetchError struct {
	Message    string
	Retryable  bool
	Cause      FetchErrorCause
	StatusCode int
	// Attempts is filled in by RetryingFetcher.
	Attempts []FetchAttempt
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetcher error: %s (status %d): %s", e.Cause, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("fetcher error: %s: %s", e.Cause, e.Message)
}

func (e *FetchError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// IsRetryable returns whether this error is retryable
func (e *FetchError) IsRetryable() bool {
	return e.Retryable
}

// Outcome reports the FetchAttempt classification of this error.
func (e *FetchError) Outcome() Outcome {
	if e.Retryable {
		return OutcomeRetryableFailure
	}
	return OutcomeTerminalFailure
}

// IsCancelled reports whether err is a fetch abandoned because the run was cancelled.
func IsCancelled(err error) bool {
	var fetchErr *FetchError
	return errors.As(err, &fetchErr) && fetchErr.Cause == ErrCauseCancelled
}

// OutcomeOf classifies any error returned by a Fetcher.
func OutcomeOf(err failure.ClassifiedError) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Outcome()
	}
	type hasRetryable interface {
		IsRetryable() bool
	}
	if r, ok := err.(hasRetryable); ok && r.IsRetryable() {
		return OutcomeRetryableFailure
	}
	return OutcomeTerminalFailure
}

// mapFetchErrorToMetadataCause maps fetcher-local error semantics
// to the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapFetchErrorToMetadataCause(err *FetchError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseTimeout, ErrCauseNetworkFailure, ErrCauseDNSFailure, ErrCauseRequest5xx, ErrCauseServiceUnavailable:
		return metadata.CauseNetworkFailure
	case ErrCauseRequestTooMany, ErrCauseRequestPageForbidden:
		return metadata.CausePolicyDisallow
	case ErrCauseReadResponseBodyError:
		return metadata.CauseContentInvalid
	case ErrCauseRetriesExhausted:
		return metadata.CauseRetryFailure
	default:
		return metadata.CauseUnknown
	}
}

// MetadataCause maps any error returned by a Fetcher to its observational
// metadata cause.
func MetadataCause(err error) metadata.ErrorCause {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return mapFetchErrorToMetadataCause(fetchErr)
	}
	return metadata.CauseUnknown
}
