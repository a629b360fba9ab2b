package storage_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/catalog-crawler/internal/catalog"
	"github.com/rohmanhakim/catalog-crawler/internal/storage"
)

func item(key, leaf string) catalog.ItemIdentifier {
	return catalog.ItemIdentifier{
		CanonicalKey: key,
		SourceLeafID: leaf,
		FirstSeenAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// runStoreContract checks the behaviour every Store backend must share.
func runStoreContract(t *testing.T, store storage.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("insert if absent, first write wins", func(t *testing.T) {
		inserted, err := store.InsertIfAbsent(ctx, item("https://shop.example.com/p/1", "leaf-d"))
		require.NoError(t, err)
		assert.True(t, inserted)

		inserted, err = store.InsertIfAbsent(ctx, item("https://shop.example.com/p/1", "leaf-c"))
		require.NoError(t, err)
		assert.False(t, inserted)

		got, ok, err := store.Lookup(ctx, "https://shop.example.com/p/1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "leaf-d", got.SourceLeafID)
		assert.True(t, got.FirstSeenAt.Equal(item("", "").FirstSeenAt))
	})

	t.Run("lookup missing key", func(t *testing.T) {
		_, ok, err := store.Lookup(ctx, "https://shop.example.com/p/missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("concurrent offers of one key have one winner", func(t *testing.T) {
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				inserted, err := store.InsertIfAbsent(ctx, item("SKU-RACE", fmt.Sprintf("leaf-%d", i)))
				assert.NoError(t, err)
				if inserted {
					wins.Add(1)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("count", func(t *testing.T) {
		n, err := store.CountItems(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("frontier entries replace per leaf", func(t *testing.T) {
		first := catalog.FrontierEntry{LeafID: "leaf-d", Cursor: "?page=2", Status: catalog.StatusInProgress, PagesFetched: 1, ItemsYielded: 10}
		require.NoError(t, store.PutEntry(ctx, first))

		second := first
		second.Cursor = "?page=3"
		second.Status = catalog.StatusFailed
		second.Total, second.HasTotal = 25, true
		second.UpdatedAt = time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
		require.NoError(t, store.PutEntry(ctx, second))

		other := catalog.FrontierEntry{LeafID: "leaf-e", Status: catalog.StatusExhausted, Warning: "max pages (196) reached"}
		require.NoError(t, store.PutEntry(ctx, other))

		entries, err := store.Entries(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 2)

		got := entries["leaf-d"]
		assert.Equal(t, "?page=3", got.Cursor)
		assert.Equal(t, catalog.StatusFailed, got.Status)
		assert.Equal(t, 25, got.Total)
		assert.True(t, got.HasTotal)
		assert.True(t, got.UpdatedAt.Equal(second.UpdatedAt))
		assert.Equal(t, "max pages (196) reached", entries["leaf-e"].Warning)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, store.Ping(ctx))
	})
}

// failingStore is an ItemStore whose writes always fail.
type failingStore struct {
	err error
}

func (f failingStore) InsertIfAbsent(context.Context, catalog.ItemIdentifier) (bool, error) {
	return false, f.err
}

func (f failingStore) Lookup(context.Context, string) (catalog.ItemIdentifier, bool, error) {
	return catalog.ItemIdentifier{}, false, f.err
}

func (f failingStore) CountItems(context.Context) (int, error) {
	return 0, f.err
}
