package discovery

import (
	"net/url"
	"path"
	"strings"

	"github.com/rohmanhakim/catalog-crawler/internal/catalog"
)

// SeedBuilder returns the listing seed of a node that just became a leaf.
type SeedBuilder func(node catalog.CategoryNode) string

// PageSeed uses the leaf's own page as its listing.
func PageSeed(node catalog.CategoryNode) string {
	return node.URL
}

// TemplateSeed builds listing seeds for sites whose listings live behind an
// API rather than on the category page. Placeholders:
//
//	{url}  the leaf page URL
//	{id}   the leaf id
//	{slug} the last path segment of the leaf page URL
func TemplateSeed(template string) SeedBuilder {
	if strings.TrimSpace(template) == "" {
		return PageSeed
	}
	return func(node catalog.CategoryNode) string {
		return strings.NewReplacer(
			"{url}", node.URL,
			"{id}", node.ID,
			"{slug}", slug(node.URL),
		).Replace(template)
	}
}

func slug(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	p := strings.TrimRight(u.Path, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}
