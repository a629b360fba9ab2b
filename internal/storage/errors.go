package storage

import (
	"fmt"

	"github.com/rohmanhakim/catalog-crawler/internal/metadata"
	"github.com/rohmanhakim/catalog-crawler/pkg/failure"
)

type StorageErrorCause string

const (
	ErrCauseUnavailable    StorageErrorCause = "store unavailable"
	ErrCauseWriteFailure   StorageErrorCause = "write failed"
	ErrCauseReadFailure    StorageErrorCause = "read failed"
	ErrCauseEncodeFailure  StorageErrorCause = "encode failed"
	ErrCauseInvalidKey     StorageErrorCause = "invalid key"
	ErrCauseUnknownBackend StorageErrorCause = "unknown backend"
)

type StorageError struct {
	Message   string
	Retryable bool
	Cause     StorageErrorCause
	Store     string
}

func (e *StorageError) Error() string {
	if e.Store != "" {
		return fmt.Sprintf("storage error: %s (%s): %s", e.Cause, e.Store, e.Message)
	}
	return fmt.Sprintf("storage error: %s: %s", e.Cause, e.Message)
}

func (e *StorageError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *StorageError) IsRetryable() bool {
	return e.Retryable
}

// mapStorageErrorToMetadataCause maps storage-local error semantics
// to the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapStorageErrorToMetadataCause(err *StorageError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseUnavailable, ErrCauseWriteFailure, ErrCauseReadFailure, ErrCauseEncodeFailure:
		return metadata.CauseStorageFailure
	case ErrCauseInvalidKey:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}
