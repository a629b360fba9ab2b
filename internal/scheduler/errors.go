package scheduler

import (
	"fmt"

	"github.com/rohmanhakim/catalog-crawler/pkg/failure"
)

type SchedulerErrorCause string

const (
	ErrCauseStoreUnavailable  SchedulerErrorCause = "store unavailable"
	ErrCauseLedgerUnavailable SchedulerErrorCause = "ledger unavailable"
	ErrCauseAlreadyRun        SchedulerErrorCause = "already run"
)

// SchedulerError reports a run-level failure; every cause aborts the run.
type SchedulerError struct {
	Message string
	Cause   SchedulerErrorCause
	Err     error
}

func (e *SchedulerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("scheduler error: %s: %s: %v", e.Cause, e.Message, e.Err)
	}
	return fmt.Sprintf("scheduler error: %s: %s", e.Cause, e.Message)
}

func (e *SchedulerError) Unwrap() error {
	return e.Err
}

func (e *SchedulerError) Severity() failure.Severity {
	return failure.SeverityFatal
}
