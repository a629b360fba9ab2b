package catalog

import (
	"net/url"
	"strings"
	"time"

	"github.com/rohmanhakim/catalog-crawler/pkg/urlutil"
)

// ItemIdentifier is one catalog item as seen by the pipeline. CanonicalKey is
// unique across a run; the first leaf to offer a key owns the stored record.
type ItemIdentifier struct {
	CanonicalKey string    `json:"canonical_key"`
	SourceLeafID string    `json:"source_leaf_id"`
	FirstSeenAt  time.Time `json:"first_seen_at"`
}

// CanonicalKey normalizes a raw identifier taken from a listing page. URL-like
// identifiers are resolved against base and canonicalized; anything else is an
// opaque id and only has surrounding whitespace removed.
func CanonicalKey(raw string, base url.URL) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !looksLikeURL(raw) {
		return raw
	}

	resolved, err := urlutil.Resolve(base, raw)
	if err != nil || !urlutil.IsHTTP(resolved) {
		return raw
	}
	canonical := urlutil.Canonicalize(resolved)
	return canonical.String()
}

func looksLikeURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(s, "/") ||
		strings.HasPrefix(s, "./") ||
		strings.HasPrefix(s, "../") ||
		strings.HasPrefix(s, "?")
}
