package metadata

import (
	"time"
)

/*
ErrorCause is a closed, canonical classification used exclusively for
observability (logging, metrics, reporting).

Rules:
  - ErrorCause MUST NOT influence control flow.
  - ErrorCause MUST NOT be used for retry, continuation, or abort decisions.
  - Pipeline packages MAY map their local errors to ErrorCause,
    but MUST NOT invent new meanings.

If a failure does not clearly match a defined cause, CauseUnknown MUST be used.
*/
type ErrorCause int

const (
	// CauseUnknown is the safe fallback for unclassified failures.
	CauseUnknown ErrorCause = iota
	// CauseNetworkFailure covers transport failures: timeouts, DNS, resets.
	CauseNetworkFailure
	// CausePolicyDisallow covers access denial and rate limiting (401, 403, 429).
	CausePolicyDisallow
	// CauseContentInvalid covers payloads that were fetched but could not be read.
	CauseContentInvalid
	// CauseStorageFailure covers persistence failures in the item store or ledger.
	CauseStorageFailure
	// CauseInvariantViolation covers inconsistent site data, for example a
	// next-page locator that points back at an already visited page.
	CauseInvariantViolation
	// CauseRetryFailure marks a unit of work that exhausted its retries.
	CauseRetryFailure
	// CausePublishFailure covers downstream hand-off failures.
	CausePublishFailure
)

func (c ErrorCause) String() string {
	switch c {
	case CauseNetworkFailure:
		return "network_failure"
	case CausePolicyDisallow:
		return "policy_disallow"
	case CauseContentInvalid:
		return "content_invalid"
	case CauseStorageFailure:
		return "storage_failure"
	case CauseInvariantViolation:
		return "invariant_violation"
	case CauseRetryFailure:
		return "retry_failure"
	case CausePublishFailure:
		return "publish_failure"
	default:
		return "unknown"
	}
}

type Attribute struct {
	Key   AttributeKey
	Value string
}

func NewAttr(key AttributeKey, val string) Attribute {
	return Attribute{
		Key:   key,
		Value: val,
	}
}

type AttributeKey string

const (
	AttrURL        AttributeKey = "url"
	AttrHost       AttributeKey = "host"
	AttrDepth      AttributeKey = "depth"
	AttrLeaf       AttributeKey = "leaf_id"
	AttrPage       AttributeKey = "page"
	AttrCursor     AttributeKey = "cursor"
	AttrItemKey    AttributeKey = "item_key"
	AttrHTTPStatus AttributeKey = "http_status"
	AttrAttempt    AttributeKey = "attempt"
	AttrMessage    AttributeKey = "message"
	AttrStore      AttributeKey = "store"
)

// FetchEvent describes one logical fetch, including all of its retries.
type FetchEvent struct {
	URL        string
	Method     string
	StatusCode int
	Duration   time.Duration
	Attempts   int
	Outcome    string
	Bytes      int
}

// PageEvent describes one processed listing page of a leaf.
type PageEvent struct {
	LeafID  string
	Page    int
	Locator string
	// Items counts identifiers yielded, before deduplication.
	Items int
}

// LeafEvent describes the end state of one leaf walk in the current run.
type LeafEvent struct {
	LeafID  string
	Status  string
	Pages   int
	Items   int
	Warning string
	Error   string
}

/*
RunStats
  - Terminal, derived summary of one pipeline run
  - Computed by the scheduler after the run reaches Done or Aborted
  - Recorded exactly once
  - Must not influence scheduling or termination
*/
type RunStats struct {
	RunID             string
	State             string
	NodesExpanded     int
	SubtreesPruned    int
	LeavesDiscovered  int
	LeavesSkipped     int
	LeavesExhausted   int
	LeavesFailed      int
	LeavesInterrupted int
	ItemsInserted     int
	ItemsDeduplicated int
	ItemsRejected     int
	Duration          time.Duration
}
