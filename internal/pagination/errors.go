package pagination

import (
	"errors"
	"fmt"

	"github.com/rohmanhakim/catalog-crawler/pkg/failure"
)

type PaginationErrorCause string

const (
	ErrCauseInvalidLocator   PaginationErrorCause = "invalid page locator"
	ErrCauseCheckpointFailed PaginationErrorCause = "checkpoint failed"
	ErrCauseCancelled        PaginationErrorCause = "cancelled"
)

type PaginationError struct {
	Message string
	Cause   PaginationErrorCause
	Err     error
}

func (e *PaginationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pagination error: %s: %s: %v", e.Cause, e.Message, e.Err)
	}
	return fmt.Sprintf("pagination error: %s: %s", e.Cause, e.Message)
}

func (e *PaginationError) Unwrap() error {
	return e.Err
}

func (e *PaginationError) Severity() failure.Severity {
	if e.Cause == ErrCauseCancelled {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// IsRunFatal reports whether err means the progress ledger can no longer be
// written, which stops the whole run rather than one leaf.
func IsRunFatal(err error) bool {
	var paginationErr *PaginationError
	return errors.As(err, &paginationErr) && paginationErr.Cause == ErrCauseCheckpointFailed
}
