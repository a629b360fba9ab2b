package extractor

import (
	"fmt"

	"github.com/rohmanhakim/catalog-crawler/internal/metadata"
	"github.com/rohmanhakim/catalog-crawler/pkg/failure"
)

type ExtractionErrorCause string

const (
	ErrCauseMalformedPayload ExtractionErrorCause = "malformed payload"
	ErrCauseUnexpectedShape  ExtractionErrorCause = "unexpected payload shape"
	ErrCauseInvalidSelector  ExtractionErrorCause = "invalid selector"
)

type ExtractionError struct {
	Message   string
	Retryable bool
	Cause     ExtractionErrorCause
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction error: %s: %s", e.Cause, e.Message)
}

func (e *ExtractionError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *ExtractionError) IsRetryable() bool {
	return e.Retryable
}

// mapExtractionErrorToMetadataCause maps extractor-local error semantics
// to the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapExtractionErrorToMetadataCause(err *ExtractionError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseMalformedPayload, ErrCauseUnexpectedShape:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}
