package scheduler

import (
	"fmt"
	"time"
)

type State int

const (
	StateIdle State = iota
	StateDiscovering
	StateEnumerating
	StateDraining
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDiscovering:
		return "discovering"
	case StateEnumerating:
		return "enumerating"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// LeafReport is the outcome of one leaf in the current run.
type LeafReport struct {
	LeafID  string   `json:"leafId"`
	Name    string   `json:"name,omitempty"`
	Path    []string `json:"path,omitempty"`
	Status  string   `json:"status"`
	Resumed bool     `json:"resumed,omitempty"`
	Pages   int      `json:"pages"`
	Items   int      `json:"items"`
	Warning string   `json:"warning,omitempty"`
	Error   string   `json:"error,omitempty"`
}

/*
RunSummary
  - Derived, read-only report of one run
  - Leaf counters cover every discovered leaf: skipped + exhausted + failed +
    interrupted == discovered
  - Item counters come from the deduplicating sink
*/
type RunSummary struct {
	RunID      string        `json:"runId"`
	Job        string        `json:"job,omitempty"`
	State      State         `json:"state"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Duration   time.Duration `json:"duration"`

	NodesExpanded  int `json:"nodesExpanded"`
	SubtreesPruned int `json:"subtreesPruned"`

	LeavesDiscovered  int `json:"leavesDiscovered"`
	LeavesSkipped     int `json:"leavesSkipped"`
	LeavesExhausted   int `json:"leavesExhausted"`
	LeavesFailed      int `json:"leavesFailed"`
	LeavesInterrupted int `json:"leavesInterrupted"`

	ItemsInserted     int `json:"itemsInserted"`
	ItemsDeduplicated int `json:"itemsDeduplicated"`
	ItemsRejected     int `json:"itemsRejected"`

	// Interrupted is set when the run context was cancelled mid-enumeration.
	Interrupted bool         `json:"interrupted,omitempty"`
	Warnings    []string     `json:"warnings,omitempty"`
	Leaves      []LeafReport `json:"leaves,omitempty"`
	Error       string       `json:"error,omitempty"`
}
