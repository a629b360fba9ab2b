package scheduler_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/catalog-crawler/internal/catalog"
	"github.com/rohmanhakim/catalog-crawler/internal/discovery"
	"github.com/rohmanhakim/catalog-crawler/internal/fetcher/fetchertest"
	"github.com/rohmanhakim/catalog-crawler/internal/metadata"
	"github.com/rohmanhakim/catalog-crawler/internal/pagination"
	"github.com/rohmanhakim/catalog-crawler/internal/scheduler"
	"github.com/rohmanhakim/catalog-crawler/internal/storage"
)

func TestRun_DiamondTreeStoresSharedItemsOnce(t *testing.T) {
	for _, concurrency := range []int{1, 3} {
		t.Run(map[int]string{1: "sequential", 3: "concurrent"}[concurrency], func(t *testing.T) {
			// GIVEN a tree where D is reachable from B and C
			store := storage.NewMemoryStore()
			f := newFixture(diamondSite(), store)
			s := f.scheduler(scheduler.Options{SeedURL: mustURL(t, site+"/a"), Concurrency: concurrency})

			// WHEN the run completes
			summary, err := s.Run(context.Background())

			// THEN three leaves were walked and every item is stored once
			require.NoError(t, err)
			assert.Equal(t, scheduler.StateDone, summary.State)
			assert.Equal(t, scheduler.StateDone, s.State())
			assert.Equal(t, 3, summary.LeavesDiscovered)
			assert.Equal(t, 3, summary.LeavesExhausted)
			assert.Equal(t, 0, summary.LeavesFailed)
			assert.Equal(t, 8, summary.ItemsInserted)
			assert.Equal(t, 5, summary.ItemsDeduplicated)
			assert.Equal(t, 0, summary.ItemsRejected)

			keys := storedKeys(store)
			sort.Strings(keys)
			want := []string{itemKey(1), itemKey(2), itemKey(3), itemKey(4), itemKey(5), itemKey(6), itemKey(7), itemKey(8)}
			sort.Strings(want)
			assert.Equal(t, want, keys)

			// D is fetched once for discovery and once for its listing
			assert.Equal(t, 2, f.fake.Hits(site+"/d"))
			f.publisher.AssertNumberOfCalls(t, "Publish", 8)
			f.publisher.AssertNumberOfCalls(t, "Flush", 1)
		})
	}
}

func TestRun_LeavesReportedInDiscoveryOrder(t *testing.T) {
	f := newFixture(diamondSite(), storage.NewMemoryStore())
	s := f.scheduler(scheduler.Options{SeedURL: mustURL(t, site+"/a"), Concurrency: 2})

	summary, err := s.Run(context.Background())
	require.NoError(t, err)

	var ids []string
	for _, leaf := range summary.Leaves {
		ids = append(ids, leaf.LeafID)
		assert.Equal(t, "exhausted", leaf.Status)
		assert.Equal(t, 1, leaf.Pages)
	}
	assert.Equal(t, []string{site + "/d", site + "/e", site + "/c"}, ids)
}

func TestRun_RecordsFinalSummaryOnce(t *testing.T) {
	f := newFixture(diamondSite(), storage.NewMemoryStore())
	s := f.scheduler(scheduler.Options{SeedURL: mustURL(t, site+"/a"), RunID: "run-1"})

	summary, err := s.Run(context.Background())
	require.NoError(t, err)

	summaries := f.sink.Summaries()
	require.Len(t, summaries, 1)
	assert.Equal(t, "run-1", summaries[0].RunID)
	assert.Equal(t, "done", summaries[0].State)
	assert.Equal(t, 8, summaries[0].ItemsInserted)
	assert.Equal(t, 5, summaries[0].NodesExpanded)
	assert.False(t, summary.FinishedAt.Before(summary.StartedAt))

	// a scheduler runs once
	_, err = s.Run(context.Background())
	var schedulerErr *scheduler.SchedulerError
	require.ErrorAs(t, err, &schedulerErr)
	assert.Equal(t, scheduler.ErrCauseAlreadyRun, schedulerErr.Cause)
	assert.Len(t, f.sink.Summaries(), 1)
}

func TestRun_RerunIsIdempotent(t *testing.T) {
	store := storage.NewMemoryStore()

	first, err := newFixture(diamondSite(), store).scheduler(scheduler.Options{SeedURL: mustURL(t, site+"/a")}).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 8, first.ItemsInserted)

	// every leaf is exhausted now, so the second run walks nothing
	f := newFixture(diamondSite(), store)
	second, err := f.scheduler(scheduler.Options{SeedURL: mustURL(t, site+"/a")}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, second.LeavesDiscovered)
	assert.Equal(t, 3, second.LeavesSkipped)
	assert.Equal(t, 0, second.ItemsInserted)
	assert.Equal(t, 1, f.fake.Hits(site+"/d"))
	assert.Len(t, storedKeys(store), 8)

	// a forced rescan walks them again without creating duplicates
	f = newFixture(diamondSite(), store)
	third, err := f.scheduler(scheduler.Options{SeedURL: mustURL(t, site+"/a"), ForceRescan: true}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, third.LeavesSkipped)
	assert.Equal(t, 3, third.LeavesExhausted)
	assert.Equal(t, 0, third.ItemsInserted)
	assert.Equal(t, 13, third.ItemsDeduplicated)
	assert.Len(t, storedKeys(store), 8)
}

func TestRun_ResumesFromCheckpointedPage(t *testing.T) {
	// GIVEN a leaf whose first page was checkpointed by an earlier run
	seed := site + "/c/e"
	store := storage.NewMemoryStore()
	require.NoError(t, store.PutEntry(context.Background(), catalog.FrontierEntry{
		LeafID:       seed,
		Cursor:       "?page=2",
		Status:       catalog.StatusInProgress,
		PagesFetched: 1,
		ItemsYielded: 2,
	}))
	fake := fetchertest.New().
		On(seed, listing("?page=2", 1, 2)).
		On(seed+"?page=2", listing("?page=3", 3, 4)).
		On(seed+"?page=3", listing("", 5))
	f := newFixture(fake, store)

	// WHEN the run restarts
	summary, err := f.scheduler(scheduler.Options{SeedURL: mustURL(t, seed)}).Run(context.Background())

	// THEN page one is not walked again and the remaining pages complete
	require.NoError(t, err)
	assert.Equal(t, 1, fake.Hits(seed))
	assert.Equal(t, 1, fake.Hits(seed+"?page=3"))
	assert.ElementsMatch(t, []string{itemKey(3), itemKey(4), itemKey(5)}, storedKeys(store))
	require.Len(t, summary.Leaves, 1)
	assert.True(t, summary.Leaves[0].Resumed)

	entries, err := store.Entries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusExhausted, entries[seed].Status)
	assert.Equal(t, 5, entries[seed].ItemsYielded)
	assert.Equal(t, 3, entries[seed].PagesFetched)
}

func TestRun_FailedLeafDoesNotStopOthers(t *testing.T) {
	fake := fetchertest.New().
		On(site+"/", categories("/shoes", "/hats")).
		On(site+"/shoes", listing("?page=2", 1, 2)).
		On(site+"/shoes?page=2", fetchertest.Status(500)).
		On(site+"/hats", listing("", 3, 4))
	store := storage.NewMemoryStore()
	f := newFixture(fake, store)

	summary, err := f.scheduler(scheduler.Options{SeedURL: mustURL(t, site+"/")}).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, scheduler.StateDone, summary.State)
	assert.Equal(t, 1, summary.LeavesFailed)
	assert.Equal(t, 1, summary.LeavesExhausted)
	assert.Equal(t, 4, summary.ItemsInserted)
	assert.NotEmpty(t, summary.Leaves[0].Error)

	entries, err := store.Entries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusFailed, entries[site+"/shoes"].Status)
	assert.Equal(t, "?page=2", entries[site+"/shoes"].Cursor)
}

func TestRun_MaxPagesWarning(t *testing.T) {
	seed := site + "/c/all"
	fake := fetchertest.New().
		On(seed, listing("?page=2", 1)).
		On(seed+"?page=2", listing("?page=3", 2)).
		On(seed+"?page=3", listing("?page=4", 3))
	f := newFixture(fake, storage.NewMemoryStore())

	summary, err := f.scheduler(scheduler.Options{SeedURL: mustURL(t, seed), MaxPages: 2}).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.LeavesExhausted)
	require.Len(t, summary.Warnings, 1)
	assert.Contains(t, summary.Warnings[0], "max pages (2) reached")
	assert.Equal(t, 0, fake.Hits(seed+"?page=3"))
}

func TestRun_RootFailureAborts(t *testing.T) {
	f := newFixture(fetchertest.New().On(site+"/", fetchertest.Status(403)), storage.NewMemoryStore())
	s := f.scheduler(scheduler.Options{SeedURL: mustURL(t, site+"/")})

	summary, err := s.Run(context.Background())

	var discoveryErr *discovery.DiscoveryError
	require.ErrorAs(t, err, &discoveryErr)
	assert.Equal(t, discovery.ErrCauseRootUnavailable, discoveryErr.Cause)
	assert.Equal(t, scheduler.StateAborted, summary.State)
	assert.Equal(t, scheduler.StateAborted, s.State())
	assert.NotEmpty(t, summary.Error)
	f.publisher.AssertNotCalled(t, "Flush", mock.Anything)

	summaries := f.sink.Summaries()
	require.Len(t, summaries, 1)
	assert.Equal(t, "aborted", summaries[0].State)
}

func TestRun_StoreUnavailableAborts(t *testing.T) {
	f := newFixture(diamondSite(), unreachableStore{storage.NewMemoryStore()})

	summary, err := f.scheduler(scheduler.Options{SeedURL: mustURL(t, site+"/a")}).Run(context.Background())

	var schedulerErr *scheduler.SchedulerError
	require.ErrorAs(t, err, &schedulerErr)
	assert.Equal(t, scheduler.ErrCauseStoreUnavailable, schedulerErr.Cause)
	assert.Equal(t, scheduler.StateAborted, summary.State)
	assert.Empty(t, f.fake.Calls())
	assert.Len(t, f.sink.ErrorsWithCause(metadata.CauseStorageFailure), 1)
}

func TestRun_CheckpointFailureAborts(t *testing.T) {
	f := newFixture(diamondSite(), readOnlyStore{storage.NewMemoryStore()})

	summary, err := f.scheduler(scheduler.Options{SeedURL: mustURL(t, site+"/a")}).Run(context.Background())

	require.Error(t, err)
	assert.True(t, pagination.IsRunFatal(err))
	assert.Equal(t, scheduler.StateAborted, summary.State)
	assert.Equal(t, 0, summary.ItemsInserted)
	// discovery fetched the tree; no listing page was requested
	assert.Equal(t, 1, f.fake.Hits(site+"/d"))
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := newFixture(diamondSite(), storage.NewMemoryStore())

	summary, err := f.scheduler(scheduler.Options{SeedURL: mustURL(t, site+"/a")}).Run(ctx)

	var discoveryErr *discovery.DiscoveryError
	require.ErrorAs(t, err, &discoveryErr)
	assert.Equal(t, discovery.ErrCauseCancelled, discoveryErr.Cause)
	assert.Equal(t, scheduler.StateAborted, summary.State)
}

func TestRun_CancelledDuringEnumeration(t *testing.T) {
	// GIVEN a run that is cancelled while the first leaf is being walked
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fake := fetchertest.New().
		On(site+"/", categories("/shoes", "/hats")).
		On(site+"/shoes", listing("?page=2", 1, 2)).
		On(site+"/shoes?page=2", listing("", 3)).
		On(site+"/hats", listing("", 4))
	store := storage.NewMemoryStore()
	f := newFixture(fake, store)
	var once sync.Once
	f.publisher.onPublish = func(catalog.ItemIdentifier) { once.Do(cancel) }

	// WHEN the run finishes
	summary, err := f.scheduler(scheduler.Options{SeedURL: mustURL(t, site+"/")}).Run(ctx)

	// THEN the page already fetched is kept and checkpointed, nothing new is fetched
	require.NoError(t, err)
	assert.True(t, summary.Interrupted)
	assert.Equal(t, scheduler.StateDone, summary.State)
	assert.Equal(t, 2, summary.LeavesInterrupted)
	assert.ElementsMatch(t, []string{itemKey(1), itemKey(2)}, storedKeys(store))
	assert.Equal(t, 0, fake.Hits(site+"/shoes?page=2"))
	assert.Equal(t, 1, fake.Hits(site+"/hats"))

	entries, err := store.Entries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusInProgress, entries[site+"/shoes"].Status)
	assert.Equal(t, "?page=2", entries[site+"/shoes"].Cursor)
}

func TestRun_PublishFailureDoesNotAffectDedup(t *testing.T) {
	f := newFixture(diamondSite(), storage.NewMemoryStore())
	f.publisher = &publisherMock{}
	f.publisher.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))
	f.publisher.On("Flush", mock.Anything).Return(errors.New("broker down"))

	summary, err := f.scheduler(scheduler.Options{SeedURL: mustURL(t, site+"/a")}).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, scheduler.StateDone, summary.State)
	assert.Equal(t, 8, summary.ItemsInserted)
}
