// Package fetchertest provides a scripted in-memory fetcher.Fetcher.
package fetchertest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rohmanhakim/catalog-crawler/internal/fetcher"
	"github.com/rohmanhakim/catalog-crawler/pkg/failure"
)

// Step is one scripted reply. A zero Status means 200.
type Step struct {
	Status  int
	Body    []byte
	Headers map[string]string
	Err     failure.ClassifiedError
	Delay   time.Duration
}

func HTML(body string) Step {
	return Step{Status: http.StatusOK, Body: []byte(body), Headers: map[string]string{"Content-Type": "text/html; charset=utf-8"}}
}

func JSON(body string) Step {
	return Step{Status: http.StatusOK, Body: []byte(body), Headers: map[string]string{"Content-Type": "application/json"}}
}

func Status(code int) Step {
	return Step{Status: code}
}

// Fake replays scripted steps per request key. Steps for a key are consumed
// in order and the last one repeats. Unscripted keys answer 404.
type Fake struct {
	mu     sync.Mutex
	routes map[string][]Step
	calls  []fetcher.Request
	hits   map[string]int
}

func New() *Fake {
	return &Fake{
		routes: make(map[string][]Step),
		hits:   make(map[string]int),
	}
}

// Key identifies a request: the URL for GET, method, URL and body otherwise.
func Key(req fetcher.Request) string {
	if req.Method == "" || req.Method == http.MethodGet {
		return req.URL.String()
	}
	return fmt.Sprintf("%s %s %s", req.Method, req.URL.String(), req.Body)
}

// On scripts GET replies for rawURL.
func (f *Fake) On(rawURL string, steps ...Step) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[rawURL] = append(f.routes[rawURL], steps...)
	return f
}

// OnPost scripts POST replies for rawURL with the exact body.
func (f *Fake) OnPost(rawURL, body string, steps ...Step) *Fake {
	key := fmt.Sprintf("%s %s %s", http.MethodPost, rawURL, body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[key] = append(f.routes[key], steps...)
	return f
}

func (f *Fake) Fetch(ctx context.Context, req fetcher.Request) (fetcher.Response, failure.ClassifiedError) {
	key := Key(req)

	f.mu.Lock()
	f.calls = append(f.calls, req)
	n := f.hits[key]
	f.hits[key] = n + 1
	steps, ok := f.routes[key]
	f.mu.Unlock()

	if !ok || len(steps) == 0 {
		return fetcher.Response{}, fetcher.StatusError(http.StatusNotFound)
	}
	step := steps[len(steps)-1]
	if n < len(steps) {
		step = steps[n]
	}

	if step.Delay > 0 {
		timer := time.NewTimer(step.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fetcher.Response{}, &fetcher.FetchError{Message: "deadline", Retryable: true, Cause: fetcher.ErrCauseTimeout}
			}
			return fetcher.Response{}, &fetcher.FetchError{Message: "cancelled", Cause: fetcher.ErrCauseCancelled}
		}
	}

	if step.Err != nil {
		return fetcher.Response{}, step.Err
	}

	status := step.Status
	if status == 0 {
		status = http.StatusOK
	}
	if err := fetcher.StatusError(status); err != nil {
		return fetcher.Response{}, err
	}
	return fetcher.NewResponse(req.URL, status, step.Body, step.Headers), nil
}

// Calls returns every request received, in order.
func (f *Fake) Calls() []fetcher.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetcher.Request(nil), f.calls...)
}

// Hits returns how many times the key was requested.
func (f *Fake) Hits(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[key]
}
