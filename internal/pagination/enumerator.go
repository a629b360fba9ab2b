package pagination

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"time"

	"github.com/rohmanhakim/catalog-crawler/internal/catalog"
	"github.com/rohmanhakim/catalog-crawler/internal/extractor"
	"github.com/rohmanhakim/catalog-crawler/internal/fetcher"
	"github.com/rohmanhakim/catalog-crawler/internal/frontier"
	"github.com/rohmanhakim/catalog-crawler/internal/metadata"
	"github.com/rohmanhakim/catalog-crawler/pkg/failure"
)

// Checkpointer persists a leaf's frontier entry. The progress ledger
// implements it.
type Checkpointer interface {
	Record(ctx context.Context, entry catalog.FrontierEntry) error
}

type Options struct {
	Requests RequestBuilder
	// MaxPages caps the pages walked per leaf across runs; zero means unlimited.
	MaxPages     int
	Checkpointer Checkpointer
	Clock        func() time.Time
}

/*
Enumerator walks the listing of one leaf page by page.

Termination, whichever comes first:
  - the page reports no next locator (no token in cursor style)
  - offset styles: a page yields no item not already yielded by this walk
  - the items yielded reach the total reported by the first page
  - the next locator points at a page this walk already fetched
  - MaxPages pages were fetched (Exhausted, with a warning)
  - a page fails to fetch or parse (Failed, cursor left at that page)
  - the context is cancelled (left InProgress)

The entry is checkpointed after every page, once the consumer has taken all
of that page's items.
*/
type Enumerator struct {
	fetcher      fetcher.Fetcher
	extractor    extractor.PageExtractor
	requests     RequestBuilder
	maxPages     int
	checkpointer Checkpointer
	metadataSink metadata.MetadataSink
	now          func() time.Time
}

func NewEnumerator(
	f fetcher.Fetcher,
	x extractor.PageExtractor,
	opts Options,
	metadataSink metadata.MetadataSink,
) *Enumerator {
	if metadataSink == nil {
		metadataSink = &metadata.NoopSink{}
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Enumerator{
		fetcher:      f,
		extractor:    x,
		requests:     opts.Requests.withDefaults(),
		maxPages:     opts.MaxPages,
		checkpointer: opts.Checkpointer,
		metadataSink: metadataSink,
		now:          now,
	}
}

// Result is the outcome of one walk, available once Items is drained.
type Result struct {
	Entry catalog.FrontierEntry
	// Pages and Items count this run only; Entry carries the totals.
	Pages int
	Items int
	Err   failure.ClassifiedError
}

// Walk is a single-use lazy enumeration of one leaf.
type Walk struct {
	enumerator *Enumerator
	ctx        context.Context
	leaf       catalog.Leaf
	result     Result
	consumed   bool
}

// Enumerate prepares the walk of leaf starting from entry. Nothing is
// fetched until Items is ranged over.
func (e *Enumerator) Enumerate(ctx context.Context, leaf catalog.Leaf, entry catalog.FrontierEntry) *Walk {
	if entry.LeafID == "" {
		entry.LeafID = leaf.ID
	}
	return &Walk{
		enumerator: e,
		ctx:        ctx,
		leaf:       leaf,
		result:     Result{Entry: entry},
	}
}

// Items yields the leaf's item identifiers in page order. A second range
// over the same walk yields nothing.
func (w *Walk) Items() iter.Seq[catalog.ItemIdentifier] {
	return func(yield func(catalog.ItemIdentifier) bool) {
		if w.consumed {
			return
		}
		w.consumed = true
		w.run(yield)
		w.enumerator.recordLeaf(w.result)
	}
}

func (w *Walk) Result() Result {
	return w.result
}

type pageOutcome int

const (
	pageContinue pageOutcome = iota
	pageStop
	pageAbandoned
)

func (w *Walk) run(yield func(catalog.ItemIdentifier) bool) {
	e := w.enumerator
	entry := &w.result.Entry

	seed, err := url.Parse(w.leaf.Seed)
	if err != nil || w.leaf.Seed == "" {
		w.fail(&PaginationError{Message: fmt.Sprintf("leaf seed %q", w.leaf.Seed), Cause: ErrCauseInvalidLocator, Err: err})
		return
	}

	entry.Status = catalog.StatusInProgress
	entry.Warning = ""
	if !w.checkpoint() {
		return
	}

	seenItems := frontier.NewSet[string]()
	seenPages := frontier.NewSet[string]()

	for {
		if err := w.ctx.Err(); err != nil {
			w.result.Err = &PaginationError{Message: "walk interrupted", Cause: ErrCauseCancelled, Err: err}
			return
		}

		if e.maxPages > 0 && entry.PagesFetched >= e.maxPages {
			w.finish(catalog.StatusExhausted, fmt.Sprintf("max pages (%d) reached; the listing may continue past this point", e.maxPages))
			return
		}

		req, err := e.requests.Build(*seed, entry.Cursor)
		if err != nil {
			w.fail(&PaginationError{Message: err.Error(), Cause: ErrCauseInvalidLocator})
			return
		}

		key := requestKey(req)
		if !seenPages.Add(key) {
			e.recordInconsistency(w.leaf, entry.Cursor, "next locator points at a page already fetched by this walk")
			w.finish(catalog.StatusExhausted, "pagination loop detected")
			return
		}

		switch w.page(req, seenItems, yield) {
		case pageContinue:
		case pageStop, pageAbandoned:
			return
		}
	}
}

// page processes one listing page and decides whether the walk goes on.
func (w *Walk) page(req fetcher.Request, seenItems frontier.Set[string], yield func(catalog.ItemIdentifier) bool) pageOutcome {
	e := w.enumerator
	entry := &w.result.Entry
	locator := entry.Cursor

	resp, fetchErr := e.fetcher.Fetch(w.ctx, req)
	if fetchErr != nil {
		if fetcher.IsCancelled(fetchErr) {
			w.result.Err = fetchErr
			return pageAbandoned
		}
		w.fail(fetchErr)
		return pageStop
	}

	base := resp.URL()
	if base.Host == "" {
		base = req.URL
	}
	page, extractErr := e.extractor.ExtractListingPage(resp.Body(), base)
	if extractErr != nil {
		w.fail(extractErr)
		return pageStop
	}

	entry.PagesFetched++
	w.result.Pages++
	if page.HasTotal && !entry.HasTotal {
		entry.Total = page.Total
		entry.HasTotal = true
	}

	if entry.HasTotal && entry.Total < entry.ItemsYielded {
		e.recordInconsistency(w.leaf, locator, fmt.Sprintf("reported total %d is below the %d items already yielded", entry.Total, entry.ItemsYielded))
		w.finish(catalog.StatusExhausted, "reported total below items yielded")
		return pageStop
	}

	fresh := 0
	reachedTotal := entry.HasTotal && entry.ItemsYielded >= entry.Total
	for _, raw := range page.Items {
		if reachedTotal {
			break
		}
		key := catalog.CanonicalKey(raw, base)
		if key == "" || !seenItems.Add(key) {
			continue
		}
		fresh++

		if !yield(catalog.ItemIdentifier{CanonicalKey: key, SourceLeafID: w.leaf.ID, FirstSeenAt: e.now()}) {
			// the consumer stopped; the page is walked again on resume
			w.result.Err = &PaginationError{Message: "consumer stopped", Cause: ErrCauseCancelled}
			return pageAbandoned
		}
		entry.ItemsYielded++
		w.result.Items++
		reachedTotal = entry.HasTotal && entry.ItemsYielded >= entry.Total
	}

	e.metadataSink.RecordPage(metadata.PageEvent{
		LeafID:  w.leaf.ID,
		Page:    entry.PagesFetched,
		Locator: req.URL.String(),
		Items:   fresh,
	})

	next := e.nextLocator(page, locator)
	switch {
	case reachedTotal:
		w.finish(catalog.StatusExhausted, "")
		return pageStop
	case next == "":
		w.finish(catalog.StatusExhausted, "")
		return pageStop
	case fresh == 0 && e.requests.Style.offsetLike():
		w.finish(catalog.StatusExhausted, "")
		return pageStop
	}

	entry.Cursor = next
	if !w.checkpoint() {
		return pageStop
	}
	return pageContinue
}

func (e *Enumerator) nextLocator(page catalog.ListingPage, locator string) string {
	switch e.requests.Style {
	case StylePageNumber:
		if len(page.Items) == 0 {
			return ""
		}
		return e.requests.nextPageNumber(locator)
	default:
		return page.Next
	}
}

// finish ends the walk in a terminal or resumable status and checkpoints it.
func (w *Walk) finish(status catalog.FrontierStatus, warning string) {
	w.result.Entry.Status = status
	w.result.Entry.Warning = warning
	w.checkpoint()
}

// fail marks the leaf Failed. The cursor stays on the page that failed so a
// later run retries from there.
func (w *Walk) fail(err failure.ClassifiedError) {
	w.result.Err = err
	w.result.Entry.Status = catalog.StatusFailed
	w.checkpoint()
}

func (w *Walk) checkpoint() bool {
	e := w.enumerator
	w.result.Entry.UpdatedAt = e.now()
	if e.checkpointer == nil {
		return true
	}
	// an interrupted run still records the work it already finished
	if err := e.checkpointer.Record(context.WithoutCancel(w.ctx), w.result.Entry); err != nil {
		w.result.Err = &PaginationError{
			Message: fmt.Sprintf("leaf %s", w.leaf.ID),
			Cause:   ErrCauseCheckpointFailed,
			Err:     err,
		}
		e.metadataSink.RecordError(
			time.Now(),
			"pagination",
			"Walk.checkpoint",
			metadata.CauseStorageFailure,
			w.result.Err.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrLeaf, w.leaf.ID),
				metadata.NewAttr(metadata.AttrCursor, w.result.Entry.Cursor),
			},
		)
		return false
	}
	return true
}

func (e *Enumerator) recordInconsistency(leaf catalog.Leaf, locator, message string) {
	e.metadataSink.RecordError(
		time.Now(),
		"pagination",
		"Walk.Items",
		metadata.CauseInvariantViolation,
		message,
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrLeaf, leaf.ID),
			metadata.NewAttr(metadata.AttrCursor, locator),
		},
	)
}

func (e *Enumerator) recordLeaf(result Result) {
	event := metadata.LeafEvent{
		LeafID:  result.Entry.LeafID,
		Status:  result.Entry.Status.String(),
		Pages:   result.Pages,
		Items:   result.Items,
		Warning: result.Entry.Warning,
	}
	if result.Err != nil {
		event.Error = result.Err.Error()
	}
	e.metadataSink.RecordLeaf(event)
}
