package extractor

import (
	"errors"
	"net/url"
	"time"

	"github.com/rohmanhakim/catalog-crawler/internal/catalog"
	"github.com/rohmanhakim/catalog-crawler/internal/metadata"
	"github.com/rohmanhakim/catalog-crawler/pkg/failure"
)

/*
PageExtractor reads one fetched payload.

  - ExtractChildren returns the child category links of a tree node page,
    resolved against base and in document order. No children means leaf.
  - ExtractListingPage returns the raw item identifiers of a listing page,
    the next-page locator or continuation token, and the total item count
    when the page reports one.

The discovery pipeline never inspects markup itself; everything
site-specific lives behind this interface.
*/
type PageExtractor interface {
	ExtractChildren(payload []byte, base url.URL) ([]catalog.LinkRef, failure.ClassifiedError)
	ExtractListingPage(payload []byte, base url.URL) (catalog.ListingPage, failure.ClassifiedError)
}

func recordExtractionError(sink metadata.MetadataSink, action string, base url.URL, err error) {
	var extractionError *ExtractionError
	cause := metadata.CauseUnknown
	if errors.As(err, &extractionError) {
		cause = mapExtractionErrorToMetadataCause(extractionError)
	}
	sink.RecordError(
		time.Now(),
		"extractor",
		action,
		cause,
		err.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, base.String()),
		},
	)
}

// appendUnique appends v to list unless it was seen before.
func appendUnique(list []string, seen map[string]struct{}, v string) []string {
	if v == "" {
		return list
	}
	if _, ok := seen[v]; ok {
		return list
	}
	seen[v] = struct{}{}
	return append(list, v)
}
