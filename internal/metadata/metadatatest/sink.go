// Package metadatatest provides an in-memory MetadataSink for tests.
package metadatatest

import (
	"sync"
	"time"

	"github.com/rohmanhakim/catalog-crawler/internal/metadata"
)

type ErrorEvent struct {
	ObservedAt  time.Time
	PackageName string
	Action      string
	Cause       metadata.ErrorCause
	Details     string
	Attrs       []metadata.Attribute
}

// Attr returns the value of the first attribute with key, or "".
func (e ErrorEvent) Attr(key metadata.AttributeKey) string {
	for _, a := range e.Attrs {
		if a.Key == key {
			return a.Value
		}
	}
	return ""
}

// RecordingSink keeps every event it receives. Safe for concurrent use.
type RecordingSink struct {
	mu      sync.Mutex
	errors  []ErrorEvent
	fetches []metadata.FetchEvent
	pages   []metadata.PageEvent
	leaves  []metadata.LeafEvent
	summary []metadata.RunStats
}

func (s *RecordingSink) RecordError(
	observedAt time.Time,
	packageName string,
	action string,
	cause metadata.ErrorCause,
	details string,
	attrs []metadata.Attribute,
) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, ErrorEvent{
		ObservedAt:  observedAt,
		PackageName: packageName,
		Action:      action,
		Cause:       cause,
		Details:     details,
		Attrs:       attrs,
	})
}

func (s *RecordingSink) RecordFetch(event metadata.FetchEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches = append(s.fetches, event)
}

func (s *RecordingSink) RecordPage(event metadata.PageEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = append(s.pages, event)
}

func (s *RecordingSink) RecordLeaf(event metadata.LeafEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaves = append(s.leaves, event)
}

func (s *RecordingSink) RecordFinalRunSummary(stats metadata.RunStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = append(s.summary, stats)
}

func (s *RecordingSink) Errors() []ErrorEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ErrorEvent(nil), s.errors...)
}

// ErrorsWithCause returns the recorded errors classified as cause.
func (s *RecordingSink) ErrorsWithCause(cause metadata.ErrorCause) []ErrorEvent {
	var out []ErrorEvent
	for _, e := range s.Errors() {
		if e.Cause == cause {
			out = append(out, e)
		}
	}
	return out
}

func (s *RecordingSink) Fetches() []metadata.FetchEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]metadata.FetchEvent(nil), s.fetches...)
}

func (s *RecordingSink) Pages() []metadata.PageEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]metadata.PageEvent(nil), s.pages...)
}

func (s *RecordingSink) Leaves() []metadata.LeafEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]metadata.LeafEvent(nil), s.leaves...)
}

func (s *RecordingSink) Summaries() []metadata.RunStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]metadata.RunStats(nil), s.summary...)
}
