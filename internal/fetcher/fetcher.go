package fetcher

import (
	"context"

	"github.com/rohmanhakim/catalog-crawler/pkg/failure"
)

// Fetcher performs a single HTTP exchange. Implementations classify failures
// as retryable or terminal through FetchError but never retry themselves.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Response, failure.ClassifiedError)
}
