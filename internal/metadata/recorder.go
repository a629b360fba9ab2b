package metadata

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

/*
Metadata is write-only.
No component may read metadata to influence crawl decisions.

Logging goals
  - Debuggable discovery and pagination behaviour
  - Post-run auditability
  - Failure diagnostics
*/

type MetadataSink interface {
	RecordError(
		observedAt time.Time,
		packageName string,
		action string,
		cause ErrorCause,
		details string,
		attrs []Attribute,
	)
	RecordFetch(event FetchEvent)
	RecordPage(event PageEvent)
	RecordLeaf(event LeafEvent)
}

type CrawlFinalizer interface {
	RecordFinalRunSummary(stats RunStats)
}

const instrumentationName = "github.com/rohmanhakim/catalog-crawler/internal/metadata"

/*
Recorder writes events to a logrus logger and to OpenTelemetry instruments
taken from the global meter provider. Events of one worker are recorded in the
order they are received; there is no global ordering across workers.
*/
type Recorder struct {
	log *logrus.Entry

	fetches      metric.Int64Counter
	fetchLatency metric.Float64Histogram
	pages        metric.Int64Counter
	items        metric.Int64Counter
	leaves       metric.Int64Counter
	errors       metric.Int64Counter
}

func NewRecorder(logger *logrus.Logger, runID string) *Recorder {
	meter := otel.Meter(instrumentationName)

	// instrument creation only fails on invalid names; the no-op fallbacks
	// returned alongside the error are still usable
	fetches, _ := meter.Int64Counter("catalog_crawler.fetches", metric.WithDescription("logical fetches by outcome"))
	fetchLatency, _ := meter.Float64Histogram("catalog_crawler.fetch_duration", metric.WithUnit("ms"))
	pages, _ := meter.Int64Counter("catalog_crawler.pages", metric.WithDescription("listing pages processed"))
	items, _ := meter.Int64Counter("catalog_crawler.items", metric.WithDescription("items yielded by listing pages"))
	leaves, _ := meter.Int64Counter("catalog_crawler.leaves", metric.WithDescription("leaf walks by end status"))
	errs, _ := meter.Int64Counter("catalog_crawler.errors", metric.WithDescription("recorded errors by cause"))

	return &Recorder{
		log:          logger.WithField("run_id", runID),
		fetches:      fetches,
		fetchLatency: fetchLatency,
		pages:        pages,
		items:        items,
		leaves:       leaves,
		errors:       errs,
	}
}

// Logger returns the run-scoped log entry.
func (r *Recorder) Logger() *logrus.Entry {
	return r.log
}

func (r *Recorder) RecordError(
	observedAt time.Time,
	packageName string,
	action string,
	cause ErrorCause,
	details string,
	attrs []Attribute,
) {
	fields := logrus.Fields{
		"package": packageName,
		"action":  action,
		"cause":   cause.String(),
	}
	for _, a := range attrs {
		fields[string(a.Key)] = a.Value
	}
	r.log.WithTime(observedAt).WithFields(fields).Warn(details)

	r.errors.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("package", packageName),
		attribute.String("cause", cause.String()),
	))
}

func (r *Recorder) RecordFetch(event FetchEvent) {
	r.log.WithFields(logrus.Fields{
		"url":         event.URL,
		"method":      event.Method,
		"http_status": event.StatusCode,
		"duration_ms": event.Duration.Milliseconds(),
		"attempts":    event.Attempts,
		"outcome":     event.Outcome,
		"bytes":       event.Bytes,
	}).Debug("fetch")

	ctx := context.Background()
	outcome := metric.WithAttributes(attribute.String("outcome", event.Outcome))
	r.fetches.Add(ctx, 1, outcome)
	r.fetchLatency.Record(ctx, float64(event.Duration.Microseconds())/1000, outcome)
}

func (r *Recorder) RecordPage(event PageEvent) {
	r.log.WithFields(logrus.Fields{
		"leaf_id": event.LeafID,
		"page":    event.Page,
		"locator": event.Locator,
		"items":   event.Items,
	}).Debug("page processed")

	ctx := context.Background()
	r.pages.Add(ctx, 1)
	r.items.Add(ctx, int64(event.Items))
}

func (r *Recorder) RecordLeaf(event LeafEvent) {
	entry := r.log.WithFields(logrus.Fields{
		"leaf_id": event.LeafID,
		"status":  event.Status,
		"pages":   event.Pages,
		"items":   event.Items,
	})
	if event.Warning != "" {
		entry = entry.WithField("warning", event.Warning)
	}
	if event.Error != "" {
		entry.WithField("error", event.Error).Warn("leaf finished")
	} else {
		entry.Info("leaf finished")
	}

	r.leaves.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", event.Status)))
}

/*
RecordFinalRunSummary records the terminal summary of a run.

Contract:
  - MUST be called exactly once per run, after the run reached Done or Aborted.
  - The provided stats MUST be derived from scheduler state,
    not accumulated through the recorder.
*/
func (r *Recorder) RecordFinalRunSummary(stats RunStats) {
	r.log.WithFields(logrus.Fields{
		"state":              stats.State,
		"nodes_expanded":     stats.NodesExpanded,
		"subtrees_pruned":    stats.SubtreesPruned,
		"leaves_discovered":  stats.LeavesDiscovered,
		"leaves_skipped":     stats.LeavesSkipped,
		"leaves_exhausted":   stats.LeavesExhausted,
		"leaves_failed":      stats.LeavesFailed,
		"leaves_interrupted": stats.LeavesInterrupted,
		"items_inserted":     stats.ItemsInserted,
		"items_deduplicated": stats.ItemsDeduplicated,
		"items_rejected":     stats.ItemsRejected,
		"duration_ms":        stats.Duration.Milliseconds(),
	}).Info("run finished")
}

// NoopSink implements MetadataSink and CrawlFinalizer and discards everything.
// Scheduler (or test) decides whether to inject Recorder or NoopSink.
type NoopSink struct{}

func (n *NoopSink) RecordError(time.Time, string, string, ErrorCause, string, []Attribute) {}

func (n *NoopSink) RecordFetch(FetchEvent) {}

func (n *NoopSink) RecordPage(PageEvent) {}

func (n *NoopSink) RecordLeaf(LeafEvent) {}

func (n *NoopSink) RecordFinalRunSummary(RunStats) {}
