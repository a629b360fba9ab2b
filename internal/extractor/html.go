package extractor

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rohmanhakim/catalog-crawler/internal/catalog"
	"github.com/rohmanhakim/catalog-crawler/internal/metadata"
	"github.com/rohmanhakim/catalog-crawler/pkg/failure"
	"github.com/rohmanhakim/catalog-crawler/pkg/urlutil"
)

/*
HTMLExtractor reads server-rendered category and listing pages with CSS
selectors.

  - Child links and item links are resolved against the page URL; links that
    are not http(s) (mailto:, javascript:, bare fragments) are dropped.
  - Repeated links within one page are reported once, in first-seen order.
  - The total count is the first integer found in the matched element.
*/
type HTMLExtractor struct {
	selectors    HTMLSelectors
	metadataSink metadata.MetadataSink
}

func NewHTMLExtractor(selectors HTMLSelectors, metadataSink metadata.MetadataSink) *HTMLExtractor {
	if metadataSink == nil {
		metadataSink = &metadata.NoopSink{}
	}
	return &HTMLExtractor{
		selectors:    selectors.merge(DefaultHTMLSelectors()),
		metadataSink: metadataSink,
	}
}

func (h *HTMLExtractor) ExtractChildren(payload []byte, base url.URL) ([]catalog.LinkRef, failure.ClassifiedError) {
	doc, err := h.parse(payload)
	if err != nil {
		recordExtractionError(h.metadataSink, "HTMLExtractor.ExtractChildren", base, err)
		return nil, err
	}

	var links []catalog.LinkRef
	seen := make(map[string]struct{})
	doc.Find(h.selectors.CategoryLink).Each(func(_ int, s *goquery.Selection) {
		raw := readValue(s, h.selectors.CategoryLinkAttr)
		resolved, ok := resolveHTTP(base, raw)
		if !ok {
			return
		}
		if _, dup := seen[resolved]; dup {
			return
		}
		seen[resolved] = struct{}{}

		name := collapseSpace(s.Text())
		if h.selectors.CategoryName != "" {
			if n := collapseSpace(s.Find(h.selectors.CategoryName).First().Text()); n != "" {
				name = n
			}
		}
		links = append(links, catalog.LinkRef{URL: resolved, Name: name})
	})
	return links, nil
}

func (h *HTMLExtractor) ExtractListingPage(payload []byte, base url.URL) (catalog.ListingPage, failure.ClassifiedError) {
	doc, err := h.parse(payload)
	if err != nil {
		recordExtractionError(h.metadataSink, "HTMLExtractor.ExtractListingPage", base, err)
		return catalog.ListingPage{}, err
	}

	var page catalog.ListingPage
	seen := make(map[string]struct{})
	doc.Find(h.selectors.ItemLink).Each(func(_ int, s *goquery.Selection) {
		raw := readValue(s, h.selectors.ItemAttr)
		if h.selectors.ItemAttr == "href" {
			resolved, ok := resolveHTTP(base, raw)
			if !ok {
				return
			}
			raw = resolved
		}
		page.Items = appendUnique(page.Items, seen, strings.TrimSpace(raw))
	})

	if next := doc.Find(h.selectors.NextLink).First(); next.Length() > 0 {
		raw := readValue(next, h.selectors.NextAttr)
		if resolved, ok := resolveHTTP(base, raw); ok {
			page.Next = resolved
		}
	}

	if total := doc.Find(h.selectors.TotalCount).First(); total.Length() > 0 {
		if n, ok := firstInt(readValue(total, h.selectors.TotalCountAttr)); ok {
			page.Total = n
			page.HasTotal = true
		}
	}

	return page, nil
}

func (h *HTMLExtractor) parse(payload []byte) (*goquery.Document, *ExtractionError) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, &ExtractionError{
			Message:   "empty document",
			Retryable: false,
			Cause:     ErrCauseMalformedPayload,
		}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return nil, &ExtractionError{
			Message:   fmt.Sprintf("failed to parse html: %v", err),
			Retryable: false,
			Cause:     ErrCauseMalformedPayload,
		}
	}
	return doc, nil
}

func readValue(s *goquery.Selection, attr string) string {
	if attr == "" {
		return collapseSpace(s.Text())
	}
	v, _ := s.Attr(attr)
	return strings.TrimSpace(v)
}

func resolveHTTP(base url.URL, raw string) (string, bool) {
	if raw == "" || strings.HasPrefix(raw, "#") {
		return "", false
	}
	resolved, err := urlutil.Resolve(base, raw)
	if err != nil || !urlutil.IsHTTP(resolved) {
		return "", false
	}
	resolved.Fragment = ""
	resolved.RawFragment = ""
	return resolved.String(), true
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var intPattern = regexp.MustCompile(`\d[\d,.\s]*`)

// firstInt parses the first integer in s, ignoring thousands separators
// ("1,234 products" -> 1234).
func firstInt(s string) (int, bool) {
	match := intPattern.FindString(s)
	if match == "" {
		return 0, false
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, match)
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}
