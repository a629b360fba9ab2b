package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/rohmanhakim/catalog-crawler/internal/catalog"
	"github.com/rohmanhakim/catalog-crawler/internal/discovery"
	"github.com/rohmanhakim/catalog-crawler/internal/extractor"
	"github.com/rohmanhakim/catalog-crawler/internal/fetcher"
	"github.com/rohmanhakim/catalog-crawler/internal/frontier"
	"github.com/rohmanhakim/catalog-crawler/internal/ledger"
	"github.com/rohmanhakim/catalog-crawler/internal/metadata"
	"github.com/rohmanhakim/catalog-crawler/internal/pagination"
	"github.com/rohmanhakim/catalog-crawler/internal/publish"
	"github.com/rohmanhakim/catalog-crawler/internal/storage"
)

var tracer = otel.Tracer("github.com/rohmanhakim/catalog-crawler/internal/scheduler")

/*
Scheduler is the sole control-plane authority of a run.

Lifecycle: Discovering -> Enumerating -> Draining -> Done. Aborted is
reached from Discovering when the store, the ledger or the root category
cannot be read, and from Enumerating when progress can no longer be
checkpointed.

  - The leaf set is fixed once discovery finishes; the tree is never
    re-expanded mid-run.
  - Leaves are walked by at most Concurrency workers. Pages of one leaf are
    strictly sequential; items of one page are offered to the sink before the
    next page is fetched.
  - Pipeline stages classify failures; only the scheduler decides whether a
    failure ends a leaf or the run.
  - Metadata emission is observational only and never influences scheduling.
  - The final run summary is recorded exactly once, whatever the end state.
*/
type Scheduler struct {
	opts         Options
	store        storage.Store
	publisher    publish.Publisher
	metadataSink metadata.MetadataSink
	finalizer    metadata.CrawlFinalizer
	log          *logrus.Entry
	now          func() time.Time

	discoverer *discovery.Discoverer
	enumerator *pagination.Enumerator
	sink       *storage.DedupSink
	ledger     *ledger.Ledger

	mu    sync.Mutex
	state State
	ran   bool
}

type Options struct {
	Job     string
	RunID   string
	SeedURL url.URL
	// MaxDepth caps category expansion; zero means unlimited.
	MaxDepth int
	// MaxPages caps pages per leaf; zero means unlimited.
	MaxPages int
	// Concurrency is the number of leaves walked at once; values below one
	// mean one.
	Concurrency int
	ForceRescan bool
	SeedBuilder discovery.SeedBuilder
	Requests    pagination.RequestBuilder
}

// Deps are the collaborators a run is built from. Store, Fetcher and
// Extractor are required.
type Deps struct {
	Fetcher      fetcher.Fetcher
	Extractor    extractor.PageExtractor
	Store        storage.Store
	Publisher    publish.Publisher
	MetadataSink metadata.MetadataSink
	Finalizer    metadata.CrawlFinalizer
	Logger       *logrus.Logger
	Clock        func() time.Time
}

func NewScheduler(opts Options, deps Deps) *Scheduler {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	metadataSink := deps.MetadataSink
	if metadataSink == nil {
		metadataSink = &metadata.NoopSink{}
	}
	finalizer := deps.Finalizer
	if finalizer == nil {
		finalizer = &metadata.NoopSink{}
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = publish.NoopPublisher{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}

	progress := ledger.New(deps.Store, metadataSink)
	return &Scheduler{
		opts:         opts,
		store:        deps.Store,
		publisher:    publisher,
		metadataSink: metadataSink,
		finalizer:    finalizer,
		log:          logger.WithFields(logrus.Fields{"run_id": opts.RunID, "job": opts.Job}),
		now:          now,
		discoverer: discovery.NewDiscoverer(deps.Fetcher, deps.Extractor, discovery.Options{
			MaxDepth:    opts.MaxDepth,
			SeedBuilder: opts.SeedBuilder,
		}, metadataSink),
		enumerator: pagination.NewEnumerator(deps.Fetcher, deps.Extractor, pagination.Options{
			Requests:     opts.Requests,
			MaxPages:     opts.MaxPages,
			Checkpointer: progress,
			Clock:        now,
		}, metadataSink),
		sink:   storage.NewDedupSink(deps.Store, metadataSink),
		ledger: progress,
		state:  StateIdle,
	}
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) RunID() string {
	return s.opts.RunID
}

func (s *Scheduler) transition(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()
	s.log.WithFields(logrus.Fields{"from": from.String(), "to": to.String()}).Info("state transition")
}

// Run executes one discovery pipeline. The returned summary is complete
// whatever the end state; the error is non-nil only when the run aborted.
// A scheduler runs once.
func (s *Scheduler) Run(ctx context.Context) (summary RunSummary, err error) {
	s.mu.Lock()
	if s.ran {
		s.mu.Unlock()
		return RunSummary{}, &SchedulerError{Message: s.opts.RunID, Cause: ErrCauseAlreadyRun}
	}
	s.ran = true
	s.mu.Unlock()

	ctx, span := tracer.Start(ctx, "scheduler.Run", trace.WithAttributes(
		attribute.String("run.id", s.opts.RunID),
		attribute.String("run.seed", s.opts.SeedURL.String()),
	))
	defer span.End()

	summary = RunSummary{
		RunID:     s.opts.RunID,
		Job:       s.opts.Job,
		StartedAt: s.now(),
	}
	defer s.finalize(&summary)

	s.transition(StateDiscovering)
	tasks, err := s.discover(ctx, &summary)
	if err != nil {
		return s.abort(span, &summary, err)
	}

	s.transition(StateEnumerating)
	if err := s.enumerate(ctx, tasks, &summary); err != nil {
		return s.abort(span, &summary, err)
	}

	s.transition(StateDraining)
	s.drain(ctx)

	s.transition(StateDone)
	summary.State = StateDone
	return summary, nil
}

// discover checks the store, loads the ledger and expands the category tree
// into the run's task list.
func (s *Scheduler) discover(ctx context.Context, summary *RunSummary) ([]frontier.Task, error) {
	if err := s.store.Ping(ctx); err != nil {
		return nil, &SchedulerError{Message: s.store.Name(), Cause: ErrCauseStoreUnavailable, Err: err}
	}

	loaded, err := s.ledger.Load(ctx)
	if err != nil {
		return nil, &SchedulerError{Message: s.store.Name(), Cause: ErrCauseLedgerUnavailable, Err: err}
	}

	root, discoveryErr := s.discoverer.Expand(ctx, s.opts.SeedURL)
	stats := s.discoverer.Stats()
	summary.NodesExpanded = stats.NodesExpanded
	summary.SubtreesPruned = stats.SubtreesPruned
	if discoveryErr != nil {
		return nil, discoveryErr
	}

	leaves := root.Leaves()
	schedule := frontier.Plan(leaves, loaded, s.opts.ForceRescan)
	summary.LeavesDiscovered = len(schedule.Tasks) + len(schedule.Skipped)
	summary.LeavesSkipped = len(schedule.Skipped)
	for _, entry := range schedule.Skipped {
		summary.Leaves = append(summary.Leaves, LeafReport{
			LeafID:  entry.LeafID,
			Status:  "skipped",
			Warning: entry.Warning,
		})
	}

	s.log.WithFields(logrus.Fields{
		"leaves":  summary.LeavesDiscovered,
		"skipped": summary.LeavesSkipped,
		"nodes":   stats.NodesExpanded,
		"pruned":  stats.SubtreesPruned,
	}).Info("category tree discovered")
	return schedule.Tasks, nil
}

// enumerate walks every task with bounded concurrency. Only a run-fatal
// walk error is returned; leaf-level failures end up in the summary.
func (s *Scheduler) enumerate(ctx context.Context, tasks []frontier.Task, summary *RunSummary) error {
	reports := make([]LeafReport, len(tasks))
	started := make([]bool, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, task := range tasks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// the slot may free up only after the run was cancelled
			if gctx.Err() != nil {
				return nil
			}
			started[i] = true
			report, err := s.walkLeaf(gctx, task)
			reports[i] = report
			return err
		})
	}
	runErr := g.Wait()

	for i, task := range tasks {
		if !started[i] {
			reports[i] = LeafReport{
				LeafID: task.Leaf.ID,
				Name:   task.Leaf.Name,
				Path:   task.Leaf.Path,
				Status: task.Entry.Status.String(),
			}
		}
		report := reports[i]
		switch report.Status {
		case catalog.StatusExhausted.String():
			summary.LeavesExhausted++
		case catalog.StatusFailed.String():
			summary.LeavesFailed++
		default:
			summary.LeavesInterrupted++
		}
		if report.Warning != "" {
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("%s: %s", report.LeafID, report.Warning))
		}
		summary.Leaves = append(summary.Leaves, report)
	}

	s.tallyItems(summary)
	if runErr == nil && ctx.Err() != nil {
		summary.Interrupted = true
	}
	return runErr
}

// walkLeaf drains one leaf's items into the sink. Items already yielded are
// offered even after cancellation so finished network work is kept.
func (s *Scheduler) walkLeaf(ctx context.Context, task frontier.Task) (LeafReport, error) {
	ctx, span := tracer.Start(ctx, "scheduler.walkLeaf", trace.WithAttributes(
		attribute.String("leaf.id", task.Leaf.ID),
		attribute.Bool("leaf.resumed", task.Resumed),
	))
	defer span.End()

	log := s.log.WithField("leaf_id", task.Leaf.ID)
	if task.Resumed {
		log.WithFields(logrus.Fields{"cursor": task.Entry.Cursor, "pages": task.Entry.PagesFetched}).Info("resuming leaf")
	}

	offerCtx := context.WithoutCancel(ctx)
	walk := s.enumerator.Enumerate(ctx, task.Leaf, task.Entry)
	for item := range walk.Items() {
		result, _ := s.sink.Offer(offerCtx, item)
		if result != storage.Inserted {
			continue
		}
		if err := s.publisher.Publish(offerCtx, item); err != nil {
			log.WithError(err).Warn("publishing item failed")
		}
	}

	result := walk.Result()
	report := LeafReport{
		LeafID:  task.Leaf.ID,
		Name:    task.Leaf.Name,
		Path:    task.Leaf.Path,
		Status:  result.Entry.Status.String(),
		Resumed: task.Resumed,
		Pages:   result.Pages,
		Items:   result.Items,
		Warning: result.Entry.Warning,
	}
	span.SetAttributes(
		attribute.String("leaf.status", report.Status),
		attribute.Int("leaf.pages", report.Pages),
		attribute.Int("leaf.items", report.Items),
	)
	if result.Err != nil {
		report.Error = result.Err.Error()
		span.RecordError(result.Err)
		log.WithError(result.Err).WithField("status", report.Status).Warn("leaf ended with error")
	}

	if pagination.IsRunFatal(result.Err) {
		span.SetStatus(codes.Error, result.Err.Error())
		return report, result.Err
	}
	return report, nil
}

func (s *Scheduler) tallyItems(summary *RunSummary) {
	stats := s.sink.Stats()
	summary.ItemsInserted = stats.Inserted
	summary.ItemsDeduplicated = stats.AlreadyPresent
	summary.ItemsRejected = stats.Rejected
}

// drain flushes buffered downstream writes. A flush failure is reported
// but does not change the run outcome.
func (s *Scheduler) drain(ctx context.Context) {
	if err := s.publisher.Flush(context.WithoutCancel(ctx)); err != nil {
		s.log.WithError(err).Warn("flushing publisher failed")
	}
}

func (s *Scheduler) abort(span trace.Span, summary *RunSummary, err error) (RunSummary, error) {
	s.tallyItems(summary)
	summary.State = StateAborted
	summary.Error = err.Error()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	var discoveryErr *discovery.DiscoveryError
	if !errors.As(err, &discoveryErr) {
		s.metadataSink.RecordError(
			s.now(),
			"scheduler",
			"Scheduler.Run",
			metadata.CauseStorageFailure,
			err.Error(),
			[]metadata.Attribute{},
		)
	}

	s.transition(StateAborted)
	s.log.WithError(err).Error("run aborted")
	return *summary, err
}

func (s *Scheduler) finalize(summary *RunSummary) {
	summary.FinishedAt = s.now()
	summary.Duration = summary.FinishedAt.Sub(summary.StartedAt)
	s.finalizer.RecordFinalRunSummary(metadata.RunStats{
		RunID:             summary.RunID,
		State:             summary.State.String(),
		NodesExpanded:     summary.NodesExpanded,
		SubtreesPruned:    summary.SubtreesPruned,
		LeavesDiscovered:  summary.LeavesDiscovered,
		LeavesSkipped:     summary.LeavesSkipped,
		LeavesExhausted:   summary.LeavesExhausted,
		LeavesFailed:      summary.LeavesFailed,
		LeavesInterrupted: summary.LeavesInterrupted,
		ItemsInserted:     summary.ItemsInserted,
		ItemsDeduplicated: summary.ItemsDeduplicated,
		ItemsRejected:     summary.ItemsRejected,
		Duration:          summary.Duration,
	})
}
