package extractor_test

import (
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/catalog-crawler/internal/catalog"
	"github.com/rohmanhakim/catalog-crawler/internal/extractor"
	"github.com/rohmanhakim/catalog-crawler/internal/metadata"
	"github.com/rohmanhakim/catalog-crawler/internal/metadata/metadatatest"
)

func mustURL(t *testing.T, raw string) url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return *u
}

const categoryPage = `<html><body>
<nav class="categories">
  <a href="/c/shoes">Shoes</a>
  <a href="/c/hats/">  Hats
  </a>
  <a href="/c/shoes#top">Shoes again</a>
  <a href="mailto:help@shop.example.com">Help</a>
  <a href="#">Top</a>
  <a href="https://other.example.com/c/x">Elsewhere</a>
</nav>
</body></html>`

func TestHTMLExtractor_ExtractChildren(t *testing.T) {
	x := extractor.NewHTMLExtractor(extractor.HTMLSelectors{}, nil)

	links, err := x.ExtractChildren([]byte(categoryPage), mustURL(t, "https://shop.example.com/"))
	require.Nil(t, err)

	want := []catalog.LinkRef{
		{URL: "https://shop.example.com/c/shoes", Name: "Shoes"},
		{URL: "https://shop.example.com/c/hats/", Name: "Hats"},
		{URL: "https://other.example.com/c/x", Name: "Elsewhere"},
	}
	if diff := cmp.Diff(want, links); diff != "" {
		t.Errorf("ExtractChildren mismatch (-want +got):\n%s", diff)
	}
}

func TestHTMLExtractor_ExtractChildren_NoChildrenMeansLeaf(t *testing.T) {
	x := extractor.NewHTMLExtractor(extractor.HTMLSelectors{}, nil)

	links, err := x.ExtractChildren([]byte(`<html><body><p>No categories</p></body></html>`), mustURL(t, "https://shop.example.com/c/shoes"))
	require.Nil(t, err)
	assert.Empty(t, links)
}

func TestHTMLExtractor_CustomCategoryName(t *testing.T) {
	x := extractor.NewHTMLExtractor(extractor.HTMLSelectors{
		CategoryLink: "ul.tree a.node",
		CategoryName: "span.label",
	}, nil)

	page := `<ul class="tree"><li><a class="node" href="/c/1"><img alt=""><span class="label">Boots</span> (12)</a></li></ul>`
	links, err := x.ExtractChildren([]byte(page), mustURL(t, "https://shop.example.com/"))

	require.Nil(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "Boots", links[0].Name)
}

const listingPage = `<html><body>
<div data-total-count="1,234">1,234 products</div>
<ul class="product-list">
  <li class="product"><a href="/p/1?utm_source=x">One</a></li>
  <li class="product"><a href="/p/2">Two</a></li>
  <li class="product"><a href="/p/1?utm_source=x">One again</a></li>
</ul>
<div class="pagination"><a rel="next" href="?page=3">Next</a></div>
</body></html>`

func TestHTMLExtractor_ExtractListingPage(t *testing.T) {
	x := extractor.NewHTMLExtractor(extractor.HTMLSelectors{}, nil)

	page, err := x.ExtractListingPage([]byte(listingPage), mustURL(t, "https://shop.example.com/c/shoes?page=2"))
	require.Nil(t, err)

	assert.Equal(t, []string{
		"https://shop.example.com/p/1?utm_source=x",
		"https://shop.example.com/p/2",
	}, page.Items)
	assert.Equal(t, "https://shop.example.com/c/shoes?page=3", page.Next)
	assert.True(t, page.HasTotal)
	assert.Equal(t, 1234, page.Total)
}

func TestHTMLExtractor_ExtractListingPage_LastPage(t *testing.T) {
	x := extractor.NewHTMLExtractor(extractor.HTMLSelectors{}, nil)

	page, err := x.ExtractListingPage([]byte(`<ul><li class="product"><a href="/p/9">9</a></li></ul>`), mustURL(t, "https://shop.example.com/c/1"))
	require.Nil(t, err)

	assert.Equal(t, []string{"https://shop.example.com/p/9"}, page.Items)
	assert.Empty(t, page.Next)
	assert.False(t, page.HasTotal)
}

func TestHTMLExtractor_ItemAttributeIsOpaqueID(t *testing.T) {
	x := extractor.NewHTMLExtractor(extractor.HTMLSelectors{
		ItemLink: "[data-sku]",
		ItemAttr: "data-sku",
	}, nil)

	page, err := x.ExtractListingPage([]byte(`<div data-sku=" A-1 "></div><div data-sku="B-2"></div>`), mustURL(t, "https://shop.example.com/"))
	require.Nil(t, err)
	assert.Equal(t, []string{"A-1", "B-2"}, page.Items)
}

func TestHTMLExtractor_TotalFromText(t *testing.T) {
	x := extractor.NewHTMLExtractor(extractor.HTMLSelectors{TotalCount: ".result-count"}, nil)

	page, err := x.ExtractListingPage([]byte(`<span class="result-count">Showing 48 items</span>`), mustURL(t, "https://shop.example.com/"))
	require.Nil(t, err)
	assert.True(t, page.HasTotal)
	assert.Equal(t, 48, page.Total)
}

func TestHTMLExtractor_EmptyPayload(t *testing.T) {
	sink := &metadatatest.RecordingSink{}
	x := extractor.NewHTMLExtractor(extractor.HTMLSelectors{}, sink)

	_, err := x.ExtractListingPage([]byte("   "), mustURL(t, "https://shop.example.com/c/1"))

	require.NotNil(t, err)
	var extractionErr *extractor.ExtractionError
	require.ErrorAs(t, err, &extractionErr)
	assert.Equal(t, extractor.ErrCauseMalformedPayload, extractionErr.Cause)

	errs := sink.ErrorsWithCause(metadata.CauseContentInvalid)
	require.Len(t, errs, 1)
	assert.Equal(t, "https://shop.example.com/c/1", errs[0].Attr(metadata.AttrURL))
}

func TestHTMLSelectors_Validate(t *testing.T) {
	assert.Nil(t, extractor.DefaultHTMLSelectors().Validate())

	err := extractor.HTMLSelectors{ItemLink: "a[href"}.Validate()
	require.NotNil(t, err)
	assert.Equal(t, extractor.ErrCauseInvalidSelector, err.Cause)
}
