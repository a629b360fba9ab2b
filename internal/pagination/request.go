package pagination

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rohmanhakim/catalog-crawler/internal/fetcher"
	"github.com/rohmanhakim/catalog-crawler/pkg/urlutil"
)

type Style int

const (
	// StyleNextLink follows the next-page link each page reports.
	StyleNextLink Style = iota
	// StylePageNumber computes the next page as current + 1.
	StylePageNumber
	// StyleCursor passes the continuation token each page reports.
	StyleCursor
)

func (s Style) String() string {
	switch s {
	case StyleNextLink:
		return "next_link"
	case StylePageNumber:
		return "page_number"
	case StyleCursor:
		return "cursor"
	default:
		return "unknown"
	}
}

func ParseStyle(s string) (Style, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "next_link", "offset":
		return StyleNextLink, nil
	case "page_number", "page":
		return StylePageNumber, nil
	case "cursor", "token":
		return StyleCursor, nil
	default:
		return StyleNextLink, fmt.Errorf("unknown pagination style %q", s)
	}
}

// offsetLike reports whether a page without new items ends the walk.
func (s Style) offsetLike() bool {
	return s == StyleNextLink || s == StylePageNumber
}

/*
RequestBuilder turns a leaf seed and a page locator into a fetch request.

  - An empty locator is the first page: the seed itself.
  - StyleNextLink locators are links, resolved against the seed.
  - StylePageNumber locators are page numbers, sent as PageParam.
  - StyleCursor locators are opaque tokens, sent as CursorParam.
  - With Method POST the page number or token goes into a JSON body built
    from BodyFields instead of the query string.
*/
type RequestBuilder struct {
	Style       Style
	Method      string
	PageParam   string
	CursorParam string
	// FirstPage is the number of the seed page; the page after it is FirstPage+1.
	FirstPage  int
	BodyFields map[string]any
}

func DefaultRequestBuilder() RequestBuilder {
	return RequestBuilder{
		Style:       StyleNextLink,
		Method:      http.MethodGet,
		PageParam:   "page",
		CursorParam: "cursor",
		FirstPage:   1,
	}
}

func (b RequestBuilder) withDefaults() RequestBuilder {
	d := DefaultRequestBuilder()
	if b.Method == "" {
		b.Method = d.Method
	}
	b.Method = strings.ToUpper(b.Method)
	if b.PageParam == "" {
		b.PageParam = d.PageParam
	}
	if b.CursorParam == "" {
		b.CursorParam = d.CursorParam
	}
	return b
}

func (b RequestBuilder) Build(seed url.URL, locator string) (fetcher.Request, error) {
	b = b.withDefaults()

	target := seed
	var param string
	switch b.Style {
	case StyleNextLink:
		if locator != "" {
			resolved, err := urlutil.Resolve(seed, locator)
			if err != nil {
				return fetcher.Request{}, fmt.Errorf("next link %q: %w", locator, err)
			}
			if !urlutil.IsHTTP(resolved) {
				return fetcher.Request{}, fmt.Errorf("next link %q is not an http(s) url", locator)
			}
			target = resolved
		}
	case StylePageNumber:
		param = b.PageParam
	case StyleCursor:
		param = b.CursorParam
	default:
		return fetcher.Request{}, fmt.Errorf("unsupported pagination style %d", b.Style)
	}

	if b.Method == http.MethodPost {
		body, err := b.body(param, locator)
		if err != nil {
			return fetcher.Request{}, err
		}
		return fetcher.NewPostRequest(target, body, "application/json"), nil
	}

	if param != "" && locator != "" {
		query := target.Query()
		query.Set(param, locator)
		target.RawQuery = query.Encode()
	}
	return fetcher.NewGetRequest(target), nil
}

func (b RequestBuilder) body(param, locator string) ([]byte, error) {
	fields := make(map[string]any, len(b.BodyFields)+1)
	for k, v := range b.BodyFields {
		fields[k] = v
	}
	if param != "" && locator != "" {
		if b.Style == StylePageNumber {
			if n, err := strconv.Atoi(locator); err == nil {
				fields[param] = n
			} else {
				fields[param] = locator
			}
		} else {
			fields[param] = locator
		}
	}
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return body, nil
}

// nextPageNumber returns the page number that follows locator.
func (b RequestBuilder) nextPageNumber(locator string) string {
	current := b.FirstPage
	if locator != "" {
		if n, err := strconv.Atoi(locator); err == nil {
			current = n
		}
	}
	return strconv.Itoa(current + 1)
}

// requestKey identifies a page request for loop detection.
func requestKey(req fetcher.Request) string {
	canonical := urlutil.Canonicalize(req.URL)
	if req.Method == "" || req.Method == http.MethodGet {
		return canonical.String()
	}
	return req.Method + " " + canonical.String() + " " + string(req.Body)
}
