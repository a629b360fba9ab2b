package ledger

import (
	"fmt"

	"github.com/rohmanhakim/catalog-crawler/pkg/failure"
)

type LedgerErrorCause string

const (
	ErrCauseLoadFailed  LedgerErrorCause = "load failed"
	ErrCauseWriteFailed LedgerErrorCause = "checkpoint failed"
	ErrCauseEmptyLeafID LedgerErrorCause = "empty leaf id"
)

// LedgerError is always fatal: a run that cannot record progress cannot
// resume correctly.
type LedgerError struct {
	Message string
	Cause   LedgerErrorCause
	Err     error
}

func (e *LedgerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ledger error: %s: %s: %v", e.Cause, e.Message, e.Err)
	}
	return fmt.Sprintf("ledger error: %s: %s", e.Cause, e.Message)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

func (e *LedgerError) Severity() failure.Severity {
	return failure.SeverityFatal
}
