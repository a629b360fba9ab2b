package fetcher

import (
	"net/http"
	"net/url"
	"time"
)

// Request is one HTTP request issued by the pipeline. Site-specific headers
// belong to the Fetcher configuration; Headers here carry per-request extras
// such as a JSON content type for cursor POST bodies.
type Request struct {
	Method  string
	URL     url.URL
	Body    []byte
	Headers map[string]string
}

func NewGetRequest(target url.URL) Request {
	return Request{
		Method: http.MethodGet,
		URL:    target,
	}
}

func NewPostRequest(target url.URL, body []byte, contentType string) Request {
	return Request{
		Method:  http.MethodPost,
		URL:     target,
		Body:    body,
		Headers: map[string]string{"Content-Type": contentType},
	}
}

func (r Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return r.Method
}

// Response is a successful (2xx) fetch. The fetcher never parses the body.
type Response struct {
	url        url.URL
	body       []byte
	statusCode int
	headers    map[string]string
}

// NewResponse builds a Response; fetchers outside this package (fakes,
// alternative transports) use it to produce results.
func NewResponse(target url.URL, statusCode int, body []byte, headers map[string]string) Response {
	return Response{
		url:        target,
		body:       body,
		statusCode: statusCode,
		headers:    headers,
	}
}

func (r Response) URL() url.URL {
	return r.url
}

func (r Response) Body() []byte {
	return r.body
}

func (r Response) Code() int {
	return r.statusCode
}

func (r Response) Headers() map[string]string {
	return r.headers
}

func (r Response) ContentType() string {
	return r.headers["Content-Type"]
}

// Outcome classifies one fetch attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetryableFailure
	OutcomeTerminalFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryableFailure:
		return "retryable_failure"
	default:
		return "terminal_failure"
	}
}

// FetchAttempt is the transient record of one attempt against a target.
type FetchAttempt struct {
	Target         string
	AttemptNumber  int
	Outcome        Outcome
	StatusCode     int
	BackoffApplied time.Duration
}
