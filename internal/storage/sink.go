package storage

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rohmanhakim/catalog-crawler/internal/catalog"
	"github.com/rohmanhakim/catalog-crawler/internal/metadata"
	"github.com/rohmanhakim/catalog-crawler/pkg/failure"
)

type OfferResult int

const (
	Inserted OfferResult = iota
	AlreadyPresent
	// Rejected means the item was not persisted; the error says why.
	Rejected
)

func (r OfferResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case AlreadyPresent:
		return "already_present"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

/*
DedupSink persists each canonical key at most once.

  - Offer is safe for concurrent use by any number of leaf walks; the store's
    insert-if-absent is the single point of serialization.
  - A persistence failure costs that one item: it is recorded and returned
    as Rejected, never retried here, and never stops the run.
*/
type DedupSink struct {
	store        ItemStore
	metadataSink metadata.MetadataSink

	inserted       atomic.Int64
	alreadyPresent atomic.Int64
	rejected       atomic.Int64
}

func NewDedupSink(store ItemStore, metadataSink metadata.MetadataSink) *DedupSink {
	if metadataSink == nil {
		metadataSink = &metadata.NoopSink{}
	}
	return &DedupSink{
		store:        store,
		metadataSink: metadataSink,
	}
}

func (s *DedupSink) Offer(ctx context.Context, item catalog.ItemIdentifier) (OfferResult, failure.ClassifiedError) {
	if strings.TrimSpace(item.CanonicalKey) == "" {
		err := &StorageError{Message: "empty canonical key", Cause: ErrCauseInvalidKey}
		s.reject(item, err)
		return Rejected, err
	}
	if item.FirstSeenAt.IsZero() {
		item.FirstSeenAt = time.Now()
	}

	inserted, err := s.store.InsertIfAbsent(ctx, item)
	if err != nil {
		var storageErr *StorageError
		if !errors.As(err, &storageErr) {
			storageErr = &StorageError{Message: err.Error(), Cause: ErrCauseWriteFailure}
		}
		s.reject(item, storageErr)
		return Rejected, storageErr
	}

	if inserted {
		s.inserted.Add(1)
		return Inserted, nil
	}
	s.alreadyPresent.Add(1)
	return AlreadyPresent, nil
}

func (s *DedupSink) reject(item catalog.ItemIdentifier, err *StorageError) {
	s.rejected.Add(1)
	s.metadataSink.RecordError(
		time.Now(),
		"storage",
		"DedupSink.Offer",
		mapStorageErrorToMetadataCause(err),
		err.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrItemKey, item.CanonicalKey),
			metadata.NewAttr(metadata.AttrLeaf, item.SourceLeafID),
			metadata.NewAttr(metadata.AttrStore, err.Store),
		},
	)
}

type SinkStats struct {
	Inserted       int
	AlreadyPresent int
	Rejected       int
}

func (s *DedupSink) Stats() SinkStats {
	return SinkStats{
		Inserted:       int(s.inserted.Load()),
		AlreadyPresent: int(s.alreadyPresent.Load()),
		Rejected:       int(s.rejected.Load()),
	}
}
