package pagination_test

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/catalog-crawler/internal/catalog"
	"github.com/rohmanhakim/catalog-crawler/internal/fetcher/fetchertest"
	"github.com/rohmanhakim/catalog-crawler/internal/pagination"
)

const site = "https://shop.example.com"

func mustURL(t *testing.T, raw string) url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return *u
}

func leafAt(seed string) catalog.Leaf {
	return catalog.Leaf{ID: seed, URL: seed, Seed: seed}
}

// listingHTML renders a listing page with items /p/<id> for each id, an
// optional next link and an optional total (total < 0 omits it).
func listingHTML(next string, total int, ids ...int) fetchertest.Step {
	var b strings.Builder
	b.WriteString(`<html><body>`)
	if total >= 0 {
		fmt.Fprintf(&b, `<div data-total-count="%d"></div>`, total)
	}
	b.WriteString(`<ul class="product-list">`)
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

func span(from, to int) []int {
	var ids []int
	for i := from; i <= to; i++ {
		ids = append(ids, i)
	}
	return ids
}

func itemKeys(ids ...int) []string {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, fmt.Sprintf("%s/p/%d", site, id))
	}
	return keys
}

func collect(walk *pagination.Walk) []string {
	var keys []string
	for item := range walk.Items() {
		keys = append(keys, item.CanonicalKey)
	}
	return keys
}

// recordingLedger is an in-memory pagination.Checkpointer.
type recordingLedger struct {
	mu      sync.Mutex
	entries []catalog.FrontierEntry
	err     error
}

func (r *recordingLedger) Record(_ context.Context, entry catalog.FrontierEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, entry)
	return nil
}

func (r *recordingLedger) Entries() []catalog.FrontierEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]catalog.FrontierEntry(nil), r.entries...)
}

func (r *recordingLedger) Last() catalog.FrontierEntry {
	entries := r.Entries()
	if len(entries) == 0 {
		return catalog.FrontierEntry{}
	}
	return entries[len(entries)-1]
}
