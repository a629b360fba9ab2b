package scheduler_test

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/catalog-crawler/internal/catalog"
	"github.com/rohmanhakim/catalog-crawler/internal/extractor"
	"github.com/rohmanhakim/catalog-crawler/internal/fetcher/fetchertest"
	"github.com/rohmanhakim/catalog-crawler/internal/metadata/metadatatest"
	"github.com/rohmanhakim/catalog-crawler/internal/scheduler"
	"github.com/rohmanhakim/catalog-crawler/internal/storage"
)

const site = "https://shop.example.com"

func mustURL(t *testing.T, raw string) url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return *u
}

// page renders a page with category links to paths, product links /p/<id>
// for ids and an optional next link.
func page(paths []string, next string, ids ...int) fetchertest.Step {
	var b strings.Builder
	b.WriteString(`<html><body><nav class="categories">`)
	for _, p := range paths {
		fmt.Fprintf(&b, `<a href="%s">%s</a>`, p, strings.TrimPrefix(p, "/"))
	}
	b.WriteString(`</nav><ul class="product-list">`)
	for _, id := range ids {
		fmt.Fprintf(&b, `<li class="product"><a href="/p/%d">item %d</a></li>`, id, id)
	}
	b.WriteString(`</ul>`)
	if next != "" {
		fmt.Fprintf(&b, `<a rel="next" href="%s">next</a>`, next)
	}
	b.WriteString(`</body></html>`)
	return fetchertest.HTML(b.String())
}

func categories(paths ...string) fetchertest.Step {
	return page(paths, "")
}

func listing(next string, ids ...int) fetchertest.Step {
	return page(nil, next, ids...)
}

func itemKey(id int) string {
	return fmt.Sprintf("%s/p/%d", site, id)
}

func storedKeys(store *storage.MemoryStore) []string {
	var keys []string
	for _, item := range store.Items() {
		keys = append(keys, item.CanonicalKey)
	}
	return keys
}

// diamondSite is A -> {B, C}, B -> {D, E}, C -> {D}. D lists 1-5, E lists
// 4-8 and C, which ends up a leaf of its own, lists 1-3.
func diamondSite() *fetchertest.Fake {
	return fetchertest.New().
		On(site+"/a", categories("/b", "/c")).
		On(site+"/b", categories("/d", "/e")).
		On(site+"/c", page([]string{"/d"}, "", 1, 2, 3)).
		On(site+"/d", listing("", 1, 2, 3, 4, 5)).
		On(site+"/e", listing("", 4, 5, 6, 7, 8))
}

type fixture struct {
	fake      *fetchertest.Fake
	store     storage.Store
	sink      *metadatatest.RecordingSink
	publisher *publisherMock
}

func newFixture(fake *fetchertest.Fake, store storage.Store) *fixture {
	publisher := &publisherMock{}
	publisher.On("Publish", mock.Anything, mock.Anything).Return(nil).Maybe()
	publisher.On("Flush", mock.Anything).Return(nil).Maybe()
	return &fixture{
		fake:      fake,
		store:     store,
		sink:      &metadatatest.RecordingSink{},
		publisher: publisher,
	}
}

func (f *fixture) scheduler(opts scheduler.Options) *scheduler.Scheduler {
	logger, _ := test.NewNullLogger()
	return scheduler.NewScheduler(opts, scheduler.Deps{
		Fetcher:      f.fake,
		Extractor:    extractor.NewHTMLExtractor(extractor.HTMLSelectors{}, f.sink),
		Store:        f.store,
		Publisher:    f.publisher,
		MetadataSink: f.sink,
		Finalizer:    f.sink,
		Logger:       logger,
	})
}

type publisherMock struct {
	mock.Mock
	onPublish func(item catalog.ItemIdentifier)
}

func (p *publisherMock) Publish(ctx context.Context, item catalog.ItemIdentifier) error {
	if p.onPublish != nil {
		p.onPublish(item)
	}
	return p.Called(ctx, item).Error(0)
}

func (p *publisherMock) Flush(ctx context.Context) error {
	return p.Called(ctx).Error(0)
}

func (p *publisherMock) Close() error {
	return p.Called().Error(0)
}

// unreachableStore fails its health check.
type unreachableStore struct {
	*storage.MemoryStore
}

func (unreachableStore) Ping(context.Context) error {
	return &storage.StorageError{Message: "dial tcp: connection refused", Cause: storage.ErrCauseUnavailable, Store: "redis"}
}

// readOnlyStore accepts items but cannot record progress.
type readOnlyStore struct {
	*storage.MemoryStore
}

func (readOnlyStore) PutEntry(context.Context, catalog.FrontierEntry) error {
	return errors.New("attempt to write a readonly database")
}
