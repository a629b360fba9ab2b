package discovery

import (
	"errors"
	"fmt"

	"github.com/rohmanhakim/catalog-crawler/internal/extractor"
	"github.com/rohmanhakim/catalog-crawler/internal/fetcher"
	"github.com/rohmanhakim/catalog-crawler/internal/metadata"
	"github.com/rohmanhakim/catalog-crawler/pkg/failure"
)

type DiscoveryErrorCause string

const (
	ErrCauseInvalidSeed     DiscoveryErrorCause = "invalid seed url"
	ErrCauseRootUnavailable DiscoveryErrorCause = "root fetch failed"
	ErrCauseRootUnreadable  DiscoveryErrorCause = "root payload unreadable"
	ErrCauseCancelled       DiscoveryErrorCause = "cancelled"
)

// DiscoveryError aborts tree expansion. Failures below the root never
// surface as DiscoveryError; they prune the affected subtree instead.
type DiscoveryError struct {
	Message string
	Cause   DiscoveryErrorCause
	Err     error
}

func (e *DiscoveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("discovery error: %s: %s: %v", e.Cause, e.Message, e.Err)
	}
	return fmt.Sprintf("discovery error: %s: %s", e.Cause, e.Message)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

func (e *DiscoveryError) Severity() failure.Severity {
	return failure.SeverityFatal
}

func isExtractionError(err error) bool {
	var extractionErr *extractor.ExtractionError
	return errors.As(err, &extractionErr)
}

// causeOf maps a node failure to the observational metadata cause.
func causeOf(err error) metadata.ErrorCause {
	if isExtractionError(err) {
		return metadata.CauseContentInvalid
	}
	return fetcher.MetadataCause(err)
}
