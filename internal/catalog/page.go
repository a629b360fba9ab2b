package catalog

// LinkRef is a child category link reported by a PageExtractor.
type LinkRef struct {
	URL  string
	Name string
}

// ListingPage is what a PageExtractor reads from one listing payload.
//   - Items are raw identifiers, canonicalized by the enumerator
//   - Next is the next-page locator or continuation token, empty when absent
//   - Total is the expected item count when HasTotal is set
type ListingPage struct {
	Items    []string
	Next     string
	Total    int
	HasTotal bool
}
