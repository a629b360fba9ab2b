package pagination_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/catalog-crawler/internal/catalog"
	"github.com/rohmanhakim/catalog-crawler/internal/extractor"
	"github.com/rohmanhakim/catalog-crawler/internal/fetcher/fetchertest"
	"github.com/rohmanhakim/catalog-crawler/internal/metadata"
	"github.com/rohmanhakim/catalog-crawler/internal/metadata/metadatatest"
	"github.com/rohmanhakim/catalog-crawler/internal/pagination"
)

const apiSeed = site + "/api/leaf/e"

func newCursorEnumerator(fake *fetchertest.Fake, opts pagination.Options, sink metadata.MetadataSink) *pagination.Enumerator {
	opts.Requests.Style = pagination.StyleCursor
	x := extractor.NewJSONExtractor(extractor.JSONPaths{
		Items:  "items",
		ItemID: "sku",
		Next:   "next",
		Total:  "total",
	}, sink)
	return pagination.NewEnumerator(fake, x, opts, sink)
}

func TestEnumerateCursor_StopsOnNullToken(t *testing.T) {
	fake := fetchertest.New().
		On(apiSeed, fetchertest.JSON(`{"items":[{"sku":"a"},{"sku":"b"}],"next":"t1"}`)).
		On(apiSeed+"?cursor=t1", fetchertest.JSON(`{"items":[{"sku":"c"}],"next":null}`))
	e := newCursorEnumerator(fake, pagination.Options{}, nil)

	walk := e.Enumerate(context.Background(), leafAt(apiSeed), catalog.NewFrontierEntry(apiSeed))

	assert.Equal(t, []string{"a", "b", "c"}, collect(walk))
	assert.Equal(t, catalog.StatusExhausted, walk.Result().Entry.Status)
}

func TestEnumerateCursor_EmptyPageDoesNotEndCursorWalk(t *testing.T) {
	fake := fetchertest.New().
		On(apiSeed, fetchertest.JSON(`{"items":[{"sku":"a"}],"next":"t1"}`)).
		On(apiSeed+"?cursor=t1", fetchertest.JSON(`{"items":[],"next":"t2"}`)).
		On(apiSeed+"?cursor=t2", fetchertest.JSON(`{"items":[{"sku":"b"}]}`))
	e := newCursorEnumerator(fake, pagination.Options{}, nil)

	walk := e.Enumerate(context.Background(), leafAt(apiSeed), catalog.NewFrontierEntry(apiSeed))

	assert.Equal(t, []string{"a", "b"}, collect(walk))
	assert.Len(t, fake.Calls(), 3)
}

func TestEnumerateCursor_TotalEndsNeverEmptyCursor(t *testing.T) {
	fake := fetchertest.New().
		On(apiSeed, fetchertest.JSON(`{"items":[{"sku":"1"},{"sku":"2"}],"next":"t1","total":5}`)).
		On(apiSeed+"?cursor=t1", fetchertest.JSON(`{"items":[{"sku":"3"},{"sku":"4"}],"next":"t2","total":5}`)).
		On(apiSeed+"?cursor=t2", fetchertest.JSON(`{"items":[{"sku":"5"},{"sku":"6"}],"next":"t3","total":5}`)).
		On(apiSeed+"?cursor=t3", fetchertest.JSON(`{"items":[{"sku":"7"}],"next":"t4","total":5}`))
	e := newCursorEnumerator(fake, pagination.Options{}, nil)

	walk := e.Enumerate(context.Background(), leafAt(apiSeed), catalog.NewFrontierEntry(apiSeed))

	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, collect(walk))
	assert.Len(t, fake.Calls(), 3)
	assert.Equal(t, catalog.StatusExhausted, walk.Result().Entry.Status)
}

func TestEnumerateCursor_RepeatedTokenEndsWalk(t *testing.T) {
	sink := &metadatatest.RecordingSink{}
	fake := fetchertest.New().
		On(apiSeed, fetchertest.JSON(`{"items":[{"sku":"a"}],"next":"t1"}`)).
		On(apiSeed+"?cursor=t1", fetchertest.JSON(`{"items":[{"sku":"b"}],"next":"t1"}`))
	e := newCursorEnumerator(fake, pagination.Options{}, sink)

	walk := e.Enumerate(context.Background(), leafAt(apiSeed), catalog.NewFrontierEntry(apiSeed))

	assert.Equal(t, []string{"a", "b"}, collect(walk))
	assert.Equal(t, 1, fake.Hits(apiSeed+"?cursor=t1"))
	assert.Equal(t, catalog.StatusExhausted, walk.Result().Entry.Status)
	assert.Len(t, sink.ErrorsWithCause(metadata.CauseInvariantViolation), 1)
}

func TestEnumerateCursor_MaxPagesBoundsEndlessToken(t *testing.T) {
	fake := fetchertest.New().
		On(apiSeed, fetchertest.JSON(`{"items":[{"sku":"a"}],"next":"t1"}`)).
		On(apiSeed+"?cursor=t1", fetchertest.JSON(`{"items":[{"sku":"b"}],"next":"t2"}`)).
		On(apiSeed+"?cursor=t2", fetchertest.JSON(`{"items":[{"sku":"c"}],"next":"t3"}`)).
		On(apiSeed+"?cursor=t3", fetchertest.JSON(`{"items":[{"sku":"d"}],"next":"t4"}`))
	e := newCursorEnumerator(fake, pagination.Options{MaxPages: 3}, nil)

	walk := e.Enumerate(context.Background(), leafAt(apiSeed), catalog.NewFrontierEntry(apiSeed))

	assert.Equal(t, []string{"a", "b", "c"}, collect(walk))
	result := walk.Result()
	assert.Equal(t, catalog.StatusExhausted, result.Entry.Status)
	assert.Equal(t, "t3", result.Entry.Cursor)
	assert.NotEmpty(t, result.Entry.Warning)
}

func TestEnumerateCursor_PostBody(t *testing.T) {
	fake := fetchertest.New().
		OnPost(apiSeed, `{"size":2}`, fetchertest.JSON(`{"items":[{"sku":"a"},{"sku":"b"}],"next":"t1"}`)).
		OnPost(apiSeed, `{"cursor":"t1","size":2}`, fetchertest.JSON(`{"items":[{"sku":"c"}]}`))
	e := newCursorEnumerator(fake, pagination.Options{
		Requests: pagination.RequestBuilder{Method: "POST", BodyFields: map[string]any{"size": 2}},
	}, nil)

	walk := e.Enumerate(context.Background(), leafAt(apiSeed), catalog.NewFrontierEntry(apiSeed))

	assert.Equal(t, []string{"a", "b", "c"}, collect(walk))
	require.Nil(t, walk.Result().Err)
}
