package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/publicsuffix"

	"github.com/rohmanhakim/catalog-crawler/pkg/failure"
	"github.com/rohmanhakim/catalog-crawler/pkg/urlutil"
)

/*
HTTPFetcher
Responsibilities
  - Perform HTTP requests (GET and POST)
  - Apply site headers, cookies, and the transport timeout
  - Follow redirects up to a bound
  - Classify responses into success, retryable failure, and terminal failure

The fetcher never parses content; it only returns bytes and headers.
Retries and pacing belong to RetryingFetcher.
*/
type HTTPFetcher struct {
	client *resty.Client
}

type HTTPOptions struct {
	UserAgent string
	Headers   map[string]string
	// Timeout bounds one exchange at the transport level.
	Timeout      time.Duration
	MaxRedirects int
	// CloudflareBypass wraps the transport with browser-like TLS and headers
	// for sites behind Cloudflare's basic bot check.
	CloudflareBypass bool
}

var errTooManyRedirects = errors.New("redirect limit reached")

const defaultUserAgent = "catalog-crawler/1.0 (+https://github.com/rohmanhakim/catalog-crawler)"

func NewHTTPFetcher(opts HTTPOptions) (*HTTPFetcher, error) {
	client := resty.New()

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)

	if opts.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	client.SetHeaders(defaultHeaders())
	client.SetHeader("User-Agent", userAgent)
	client.SetHeaders(opts.Headers)

	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}

	maxRedirects := opts.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 10
	}
	client.SetRedirectPolicy(resty.RedirectPolicyFunc(func(_ *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return errTooManyRedirects
		}
		return nil
	}))

	return &HTTPFetcher{client: client}, nil
}

// Client exposes the underlying resty client, for instrumentation.
func (h *HTTPFetcher) Client() *resty.Client {
	return h.client
}

func (h *HTTPFetcher) Fetch(ctx context.Context, req Request) (Response, failure.ClassifiedError) {
	if !urlutil.IsHTTP(req.URL) {
		return Response{}, &FetchError{
			Message:   fmt.Sprintf("not an absolute http(s) url: %q", req.URL.String()),
			Retryable: false,
			Cause:     ErrCauseMalformedRequest,
		}
	}

	r := h.client.R().SetContext(ctx)
	if len(req.Headers) > 0 {
		r.SetHeaders(req.Headers)
	}
	if req.Body != nil {
		r.SetBody(req.Body)
	}

	resp, err := r.Execute(req.method(), req.URL.String())
	if err != nil {
		return Response{}, classifyTransportError(err)
	}

	if fetchErr := classifyStatus(resp.StatusCode()); fetchErr != nil {
		return Response{}, fetchErr
	}

	headers := make(map[string]string, len(resp.Header()))
	for key, values := range resp.Header() {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}

	finalURL := req.URL
	if resp.RawResponse != nil && resp.RawResponse.Request != nil && resp.RawResponse.Request.URL != nil {
		finalURL = *resp.RawResponse.Request.URL
	}

	return NewResponse(finalURL, resp.StatusCode(), resp.Body(), headers), nil
}

// classifyStatus maps a non-2xx status to a FetchError, or returns nil.
func classifyStatus(code int) *FetchError {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return &FetchError{
			Message:    "rate limited",
			Retryable:  true,
			Cause:      ErrCauseRequestTooMany,
			StatusCode: code,
		}
	case code == http.StatusServiceUnavailable:
		return &FetchError{
			Message:    "service unavailable",
			Retryable:  true,
			Cause:      ErrCauseServiceUnavailable,
			StatusCode: code,
		}
	case code == http.StatusRequestTimeout:
		return &FetchError{
			Message:    "server timed out waiting for the request",
			Retryable:  true,
			Cause:      ErrCauseTimeout,
			StatusCode: code,
		}
	case code == http.StatusInternalServerError,
		code == http.StatusBadGateway,
		code == http.StatusGatewayTimeout:
		return &FetchError{
			Message:    "server error",
			Retryable:  true,
			Cause:      ErrCauseRequest5xx,
			StatusCode: code,
		}
	case code == http.StatusForbidden || code == http.StatusUnauthorized:
		return &FetchError{
			Message:    "access denied",
			Retryable:  false,
			Cause:      ErrCauseRequestPageForbidden,
			StatusCode: code,
		}
	case code >= 400 && code < 500:
		return &FetchError{
			Message:    "client error",
			Retryable:  false,
			Cause:      ErrCauseRequestClientError,
			StatusCode: code,
		}
	case code >= 300 && code < 400:
		// redirects are followed by the client; one that reaches here had no
		// usable Location header
		return &FetchError{
			Message:    "unfollowed redirect",
			Retryable:  false,
			Cause:      ErrCauseRedirectLimitExceeded,
			StatusCode: code,
		}
	default:
		return &FetchError{
			Message:    "unexpected status",
			Retryable:  false,
			Cause:      ErrCauseUnexpectedStatus,
			StatusCode: code,
		}
	}
}

func classifyTransportError(err error) *FetchError {
	switch {
	case errors.Is(err, errTooManyRedirects):
		return &FetchError{Message: err.Error(), Retryable: false, Cause: ErrCauseRedirectLimitExceeded}
	case errors.Is(err, context.Canceled):
		return &FetchError{Message: err.Error(), Retryable: false, Cause: ErrCauseCancelled}
	case errors.Is(err, context.DeadlineExceeded):
		return &FetchError{Message: err.Error(), Retryable: true, Cause: ErrCauseTimeout}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return &FetchError{Message: err.Error(), Retryable: true, Cause: ErrCauseTimeout}
		}
		return &FetchError{Message: err.Error(), Retryable: false, Cause: ErrCauseDNSFailure}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &FetchError{Message: err.Error(), Retryable: true, Cause: ErrCauseTimeout}
	}

	// connection reset, refused, unexpected EOF
	return &FetchError{Message: err.Error(), Retryable: true, Cause: ErrCauseNetworkFailure}
}

func defaultHeaders() map[string]string {
	return map[string]string{
		"Accept":          "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.5",
	}
}

// StatusError returns the FetchError HTTPFetcher reports for status code, or
// nil for 2xx codes.
func StatusError(code int) *FetchError {
	return classifyStatus(code)
}
