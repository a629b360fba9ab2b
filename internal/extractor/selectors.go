package extractor

import (
	"fmt"

	"github.com/andybalholm/cascadia"
)

// HTMLSelectors configures HTMLExtractor for one site. Attribute fields name
// the attribute read from matched elements; an empty attribute means the
// element's text.
type HTMLSelectors struct {
	CategoryLink     string `json:"category_link"`
	CategoryLinkAttr string `json:"category_link_attr"`
	CategoryName     string `json:"category_name"`
	ItemLink         string `json:"item_link"`
	ItemAttr         string `json:"item_attr"`
	NextLink         string `json:"next_link"`
	NextAttr         string `json:"next_attr"`
	TotalCount       string `json:"total_count"`
	TotalCountAttr   string `json:"total_count_attr"`
}

// DefaultHTMLSelectors covers the markup conventions seen on common storefront
// themes. Sites with other markup override the fields they need.
func DefaultHTMLSelectors() HTMLSelectors {
	return HTMLSelectors{
		CategoryLink: "[data-category-link], " +
			"nav.categories a, " +
			".category-list a, " +
			".subcategories a, " +
			"ul.subcategory-list a",
		CategoryLinkAttr: "href",
		ItemLink: "[data-item-link], " +
			".product-list .product a.product-link, " +
			"li.product > a, " +
			".product-item a.product-item-link",
		ItemAttr: "href",
		NextLink: "a[rel='next'], " +
			"link[rel='next'], " +
			".pagination a.next, " +
			".pagination .next > a",
		NextAttr:       "href",
		TotalCount:     "[data-total-count]",
		TotalCountAttr: "data-total-count",
	}
}

// merge fills every empty field of s from fallback.
func (s HTMLSelectors) merge(fallback HTMLSelectors) HTMLSelectors {
	// an overridden total selector without attribute reads the element text
	totalAttr := s.TotalCountAttr
	if s.TotalCount == "" {
		totalAttr = fallback.TotalCountAttr
	}
	pick := func(v, d string) string {
		if v == "" {
			return d
		}
		return v
	}
	return HTMLSelectors{
		CategoryLink:     pick(s.CategoryLink, fallback.CategoryLink),
		CategoryLinkAttr: pick(s.CategoryLinkAttr, fallback.CategoryLinkAttr),
		CategoryName:     s.CategoryName,
		ItemLink:         pick(s.ItemLink, fallback.ItemLink),
		ItemAttr:         pick(s.ItemAttr, fallback.ItemAttr),
		NextLink:         pick(s.NextLink, fallback.NextLink),
		NextAttr:         pick(s.NextAttr, fallback.NextAttr),
		TotalCount:       pick(s.TotalCount, fallback.TotalCount),
		TotalCountAttr:   totalAttr,
	}
}

// Validate compiles every non-empty selector.
func (s HTMLSelectors) Validate() *ExtractionError {
	for name, sel := range map[string]string{
		"category_link": s.CategoryLink,
		"category_name": s.CategoryName,
		"item_link":     s.ItemLink,
		"next_link":     s.NextLink,
		"total_count":   s.TotalCount,
	} {
		if sel == "" {
			continue
		}
		if _, err := cascadia.Compile(sel); err != nil {
			return &ExtractionError{
				Message:   fmt.Sprintf("%s: %v", name, err),
				Retryable: false,
				Cause:     ErrCauseInvalidSelector,
			}
		}
	}
	return nil
}
