package storage

import (
	"context"

	"github.com/rohmanhakim/catalog-crawler/internal/catalog"
)

/*
Persistence contract

  - InsertIfAbsent is atomic per canonical key: under any concurrency at most
    one call for a key reports inserted. The first record wins and is never
    updated afterwards.
  - PutEntry replaces the stored frontier entry of a leaf. Entries of
    different leaves are independent.
  - Every store is scoped to a namespace (the job name) so one database can
    hold several catalogs.
*/
type ItemStore interface {
	InsertIfAbsent(ctx context.Context, item catalog.ItemIdentifier) (bool, error)
	Lookup(ctx context.Context, canonicalKey string) (catalog.ItemIdentifier, bool, error)
	CountItems(ctx context.Context) (int, error)
}

type LedgerStore interface {
	PutEntry(ctx context.Context, entry catalog.FrontierEntry) error
	Entries(ctx context.Context) (map[string]catalog.FrontierEntry, error)
}

type Store interface {
	ItemStore
	LedgerStore
	// Name identifies the backend in logs and errors.
	Name() string
	Ping(ctx context.Context) error
	Close() error
}
