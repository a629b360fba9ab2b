package urlutil

import (
	"net/url"
	"sort"
	"strings"
)

// trackingParams are query keys that never change which page or item a URL
// addresses. Keys with a listed prefix ending in "_" match by prefix.
var trackingParams = []string{"utm_", "fbclid", "gclid", "msclkid", "yclid", "mc_cid", "mc_eid"}

// Canonicalize applies a deterministic normalization to a URL so that
// equivalent spellings of the same catalog page or item collapse to one key.
//
// The normalization follows these rules:
//   - Scheme and host are lowercased
//   - Default ports are omitted (e.g., :80 for http, :443 for https)
//   - Path trailing slashes are removed, except for root "/"
//   - Fragments are removed
//   - Tracking query parameters are removed, the rest are sorted by key
//
// Canonicalize is pure and idempotent.
func Canonicalize(sourceUrl url.URL) url.URL {
	canonical := sourceUrl

	canonical.Scheme = lowerASCII(canonical.Scheme)
	canonical.Host = lowerASCII(canonical.Host)

	if host, port := canonical.Hostname(), canonical.Port(); port != "" {
		if (canonical.Scheme == "http" && port == "80") ||
			(canonical.Scheme == "https" && port == "443") {
			canonical.Host = host
		}
	}

	if len(canonical.Path) > 1 {
		canonical.Path = stripTrailingSlash(canonical.Path)
		canonical.RawPath = ""
	}

	canonical.Fragment = ""
	canonical.RawFragment = ""

	canonical.RawQuery = canonicalQuery(canonical.Query())
	canonical.ForceQuery = false

	return canonical
}

// Resolve parses ref and resolves it against base. Relative references,
// scheme-relative references, and absolute URLs are all accepted.
func Resolve(base url.URL, ref string) (url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return url.URL{}, err
	}
	return *base.ResolveReference(parsed), nil
}

// IsHTTP reports whether u is an absolute http(s) URL.
func IsHTTP(u url.URL) bool {
	scheme := lowerASCII(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}

func canonicalQuery(values url.Values) string {
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		if isTrackingParam(k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		vs := append([]string(nil), values[k]...)
		sort.Strings(vs)
		for _, v := range vs {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

func isTrackingParam(key string) bool {
	key = lowerASCII(key)
	for _, p := range trackingParams {
		if strings.HasSuffix(p, "_") {
			if strings.HasPrefix(key, p) {
				return true
			}
			continue
		}
		if key == p {
			return true
		}
	}
	return false
}

// lowerASCII converts ASCII characters to lowercase, allocating only when needed.
func lowerASCII(s string) string {
	var needsLower bool
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			needsLower = true
			break
		}
	}
	if !needsLower {
		return s
	}
	b := make([]byte, len(s))
	copy(b, s)
	for i := 0; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

func stripTrailingSlash(path string) string {
	for len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	return path
}
