package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rohmanhakim/catalog-crawler/internal/catalog"
	"github.com/rohmanhakim/catalog-crawler/internal/metadata"
	"github.com/rohmanhakim/catalog-crawler/internal/storage"
)

/*
Ledger records per-leaf pagination progress in the persistence store.

  - Entries are written through on every call; the in-memory copy only
    serves Checkpoint, which updates cursor and status of a known entry.
  - Leaves are independent: writes for different leaves never wait on each
    other beyond the store's own serialization.
*/
type Ledger struct {
	store        storage.LedgerStore
	metadataSink metadata.MetadataSink
	now          func() time.Time

	mu      sync.Mutex
	entries map[string]catalog.FrontierEntry
}

func New(store storage.LedgerStore, metadataSink metadata.MetadataSink) *Ledger {
	if metadataSink == nil {
		metadataSink = &metadata.NoopSink{}
	}
	return &Ledger{
		store:        store,
		metadataSink: metadataSink,
		now:          time.Now,
		entries:      make(map[string]catalog.FrontierEntry),
	}
}

// Load returns every stored entry keyed by leaf id.
func (l *Ledger) Load(ctx context.Context) (map[string]catalog.FrontierEntry, error) {
	entries, err := l.store.Entries(ctx)
	if err != nil {
		ledgerErr := &LedgerError{Message: "reading frontier entries", Cause: ErrCauseLoadFailed, Err: err}
		l.recordError("Ledger.Load", "", ledgerErr)
		return nil, ledgerErr
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	loaded := make(map[string]catalog.FrontierEntry, len(entries))
	for id, entry := range entries {
		l.entries[id] = entry
		loaded[id] = entry
	}
	return loaded, nil
}

// Checkpoint moves leafID to cursor and status, keeping the counters already
// recorded for it.
func (l *Ledger) Checkpoint(ctx context.Context, leafID, cursor string, status catalog.FrontierStatus) error {
	l.mu.Lock()
	entry, ok := l.entries[leafID]
	l.mu.Unlock()
	if !ok {
		entry = catalog.NewFrontierEntry(leafID)
	}
	entry.Cursor = cursor
	entry.Status = status
	entry.UpdatedAt = l.now()
	return l.Record(ctx, entry)
}

// Record stores entry as the leaf's latest state.
func (l *Ledger) Record(ctx context.Context, entry catalog.FrontierEntry) error {
	if entry.LeafID == "" {
		return &LedgerError{Message: "entry has no leaf id", Cause: ErrCauseEmptyLeafID}
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = l.now()
	}

	if err := l.store.PutEntry(ctx, entry); err != nil {
		ledgerErr := &LedgerError{Message: entry.LeafID, Cause: ErrCauseWriteFailed, Err: err}
		l.recordError("Ledger.Record", entry.LeafID, ledgerErr)
		return ledgerErr
	}

	l.mu.Lock()
	l.entries[entry.LeafID] = entry
	l.mu.Unlock()
	return nil
}

// Snapshot returns the entries this ledger has seen, ordered by leaf id.
func (l *Ledger) Snapshot() []catalog.FrontierEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]catalog.FrontierEntry, 0, len(l.entries))
	for _, entry := range l.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LeafID < out[j].LeafID })
	return out
}

func (l *Ledger) recordError(action, leafID string, err error) {
	attrs := []metadata.Attribute{}
	if leafID != "" {
		attrs = append(attrs, metadata.NewAttr(metadata.AttrLeaf, leafID))
	}
	l.metadataSink.RecordError(time.Now(), "ledger", action, metadata.CauseStorageFailure, err.Error(), attrs)
}
