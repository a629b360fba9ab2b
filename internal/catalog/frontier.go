package catalog

import (
	"fmt"
	"strings"
	"time"
)

type FrontierStatus int

const (
	StatusPending FrontierStatus = iota
	StatusInProgress
	StatusExhausted
	StatusFailed
)

func (s FrontierStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInProgress:
		return "in_progress"
	case StatusExhausted:
		return "exhausted"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further enumeration happens for the leaf in
// the current run.
func (s FrontierStatus) IsTerminal() bool {
	return s == StatusExhausted || s == StatusFailed
}

func ParseFrontierStatus(s string) (FrontierStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return StatusPending, nil
	case "in_progress":
		return StatusInProgress, nil
	case "exhausted":
		return StatusExhausted, nil
	case "failed":
		return StatusFailed, nil
	default:
		return StatusPending, fmt.Errorf("unknown frontier status %q", s)
	}
}

func (s FrontierStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *FrontierStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseFrontierStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

/*
FrontierEntry
  - Enumeration state of one leaf, one entry per leaf
  - Cursor is the locator of the next page to fetch; empty means the leaf seed
  - Total is the item count reported by the first page, valid when HasTotal
  - ItemsYielded and PagesFetched accumulate across runs so a resumed leaf
    keeps its total-count cross-check
  - Exhausted and Failed are terminal for a run
*/
type FrontierEntry struct {
	LeafID       string         `json:"leaf_id"`
	Cursor       string         `json:"cursor"`
	Status       FrontierStatus `json:"status"`
	Total        int            `json:"total"`
	HasTotal     bool           `json:"has_total"`
	ItemsYielded int            `json:"items_yielded"`
	PagesFetched int            `json:"pages_fetched"`
	Warning      string         `json:"warning,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// NewFrontierEntry returns the initial Pending entry for a freshly discovered leaf.
func NewFrontierEntry(leafID string) FrontierEntry {
	return FrontierEntry{
		LeafID: leafID,
		Status: StatusPending,
	}
}
