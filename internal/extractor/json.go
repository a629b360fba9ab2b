package extractor

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/titanous/json5"

	"github.com/rohmanhakim/catalog-crawler/internal/catalog"
	"github.com/rohmanhakim/catalog-crawler/internal/metadata"
	"github.com/rohmanhakim/catalog-crawler/pkg/failure"
)

// JSONPaths configures JSONExtractor. Paths are dot separated keys with
// numeric segments indexing arrays ("data.pages.0.items"). Element paths are
// relative to one array element; an empty element path uses the element itself.
type JSONPaths struct {
	Categories   string `json:"categories"`
	CategoryURL  string `json:"category_url"`
	CategoryName string `json:"category_name"`
	// CategoryURLTemplate builds a child URL from the extracted value by
	// replacing "{id}", for APIs that list child ids instead of links.
	CategoryURLTemplate string `json:"category_url_template"`
	Items               string `json:"items"`
	ItemID              string `json:"item_id"`
	Next                string `json:"next"`
	Total               string `json:"total"`
}

/*
JSONExtractor reads JSON API payloads. Parsing is lenient (JSON5), which
tolerates the trailing commas and unquoted keys some storefront APIs emit.

  - A missing array path yields no children or no items; it is not an error.
  - A payload that does not parse, or a path that hits a non-array where an
    array is required, is an ExtractionError.
  - Next and Total accept strings or numbers.
*/
type JSONExtractor struct {
	paths        JSONPaths
	metadataSink metadata.MetadataSink
}

func NewJSONExtractor(paths JSONPaths, metadataSink metadata.MetadataSink) *JSONExtractor {
	if metadataSink == nil {
		metadataSink = &metadata.NoopSink{}
	}
	return &JSONExtractor{
		paths:        paths,
		metadataSink: metadataSink,
	}
}

func (j *JSONExtractor) ExtractChildren(payload []byte, base url.URL) ([]catalog.LinkRef, failure.ClassifiedError) {
	links, err := j.extractChildren(payload, base)
	if err != nil {
		recordExtractionError(j.metadataSink, "JSONExtractor.ExtractChildren", base, err)
		return nil, err
	}
	return links, nil
}

func (j *JSONExtractor) extractChildren(payload []byte, base url.URL) ([]catalog.LinkRef, *ExtractionError) {
	doc, err := decode(payload)
	if err != nil {
		return nil, err
	}

	elements, err := arrayAt(doc, j.paths.Categories)
	if err != nil {
		return nil, err
	}

	var links []catalog.LinkRef
	seen := make(map[string]struct{})
	for _, el := range elements {
		raw, ok := scalarAt(el, j.paths.CategoryURL)
		if !ok || raw == "" {
			continue
		}
		if j.paths.CategoryURLTemplate != "" {
			raw = strings.ReplaceAll(j.paths.CategoryURLTemplate, "{id}", url.PathEscape(raw))
		}
		resolved, ok := resolveHTTP(base, raw)
		if !ok {
			continue
		}
		if _, dup := seen[resolved]; dup {
			continue
		}
		seen[resolved] = struct{}{}

		name, _ := scalarAt(el, j.paths.CategoryName)
		links = append(links, catalog.LinkRef{URL: resolved, Name: name})
	}
	return links, nil
}

func (j *JSONExtractor) ExtractListingPage(payload []byte, base url.URL) (catalog.ListingPage, failure.ClassifiedError) {
	page, err := j.extractListingPage(payload)
	if err != nil {
		recordExtractionError(j.metadataSink, "JSONExtractor.ExtractListingPage", base, err)
		return catalog.ListingPage{}, err
	}
	return page, nil
}

func (j *JSONExtractor) extractListingPage(payload []byte) (catalog.ListingPage, *ExtractionError) {
	doc, err := decode(payload)
	if err != nil {
		return catalog.ListingPage{}, err
	}

	elements, err := arrayAt(doc, j.paths.Items)
	if err != nil {
		return catalog.ListingPage{}, err
	}

	var page catalog.ListingPage
	seen := make(map[string]struct{})
	for _, el := range elements {
		id, ok := scalarAt(el, j.paths.ItemID)
		if !ok {
			continue
		}
		page.Items = appendUnique(page.Items, seen, strings.TrimSpace(id))
	}

	if j.paths.Next != "" {
		if next, ok := scalarAt(doc, j.paths.Next); ok {
			page.Next = strings.TrimSpace(next)
		}
	}

	if j.paths.Total != "" {
		if raw, ok := scalarAt(doc, j.paths.Total); ok {
			if n, convErr := strconv.Atoi(raw); convErr == nil && n >= 0 {
				page.Total = n
				page.HasTotal = true
			}
		}
	}

	return page, nil
}

func decode(payload []byte) (interface{}, *ExtractionError) {
	var doc interface{}
	if err := json5.Unmarshal(payload, &doc); err != nil {
		return nil, &ExtractionError{
			Message:   fmt.Sprintf("failed to parse json: %v", err),
			Retryable: false,
			Cause:     ErrCauseMalformedPayload,
		}
	}
	return doc, nil
}

// lookup walks path through maps and arrays.
func lookup(v interface{}, path string) (interface{}, bool) {
	if path == "" {
		return v, true
	}
	current := v
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]interface{}:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = next
		case []interface{}:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

func arrayAt(doc interface{}, path string) ([]interface{}, *ExtractionError) {
	v, ok := lookup(doc, path)
	if !ok || v == nil {
		return nil, nil
	}
	arr, ok := v.([]interface{})
	if !ok {
		return nil, &ExtractionError{
			Message:   fmt.Sprintf("path %q is %T, want array", path, v),
			Retryable: false,
			Cause:     ErrCauseUnexpectedShape,
		}
	}
	return arr, nil
}

// scalarAt returns the value at path rendered as a string. Maps, arrays,
// booleans and null are not scalars for this purpose.
func scalarAt(v interface{}, path string) (string, bool) {
	found, ok := lookup(v, path)
	if !ok {
		return "", false
	}
	switch val := found.(type) {
	case string:
		return val, true
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1e15 {
			return strconv.FormatInt(int64(val), 10), true
		}
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case int64:
		return strconv.FormatInt(val, 10), true
	default:
		return "", false
	}
}

// compile-time interface checks
var (
	_ PageExtractor = (*HTMLExtractor)(nil)
	_ PageExtractor = (*JSONExtractor)(nil)
)
