package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rohmanhakim/catalog-crawler/internal/config"
	"github.com/rohmanhakim/catalog-crawler/internal/discovery"
	"github.com/rohmanhakim/catalog-crawler/internal/extractor"
	"github.com/rohmanhakim/catalog-crawler/internal/fetcher"
	"github.com/rohmanhakim/catalog-crawler/internal/metadata"
	"github.com/rohmanhakim/catalog-crawler/internal/publish"
	"github.com/rohmanhakim/catalog-crawler/internal/scheduler"
	"github.com/rohmanhakim/catalog-crawler/internal/storage"
	"github.com/rohmanhakim/catalog-crawler/internal/telemetry"
	"github.com/rohmanhakim/catalog-crawler/pkg/limiter"
	"github.com/rohmanhakim/catalog-crawler/pkg/retry"
	"github.com/rohmanhakim/catalog-crawler/pkg/timeutil"
)

const serviceName = "catalog-crawler"

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Discovers the category tree and enumerates every leaf listing.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := InitConfigWithError()
		if err != nil {
			return err
		}
		logger, err := newLogger()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		_, err = RunCrawl(ctx, cfg, logger, cmd.OutOrStdout())
		return err
	},
}

func init() {
	rootCmd.AddCommand(crawlCmd)

	crawlCmd.Flags().IntVar(&maxDepth, "max-depth", 0, "maximum category depth below the root (0 for unlimited)")
	crawlCmd.Flags().IntVar(&maxPagesPerLeaf, "max-pages-per-leaf", 0, "maximum listing pages walked per leaf")
	crawlCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of leaves enumerated at once")
	crawlCmd.Flags().BoolVar(&forceRescan, "force-rescan", false, "ignore recorded progress and walk every leaf from its first page")
	crawlCmd.Flags().StringVar(&userAgent, "user-agent", "", "user agent string for HTTP requests")
	crawlCmd.Flags().DurationVar(&timeout, "timeout", 0, "timeout of a single fetch attempt")
	crawlCmd.Flags().DurationVar(&baseDelay, "base-delay", 0, "base delay between HTTP requests to the same host")
	crawlCmd.Flags().DurationVar(&jitter, "jitter", 0, "random jitter added to base delay")
	crawlCmd.Flags().Int64Var(&randomSeed, "random-seed", 0, "seed for random number generation (0 for current time)")
	crawlCmd.Flags().IntVar(&maxAttempt, "max-attempt", 0, "maximum attempts per fetch")
	crawlCmd.Flags().StringVar(&reportDir, "report-dir", "", "directory for the JSON run report")
	crawlCmd.Flags().StringArrayVar(&kafkaBrokers, "kafka-broker", []string{}, "kafka broker address for publishing new items (can be repeated)")
	crawlCmd.Flags().StringVar(&kafkaTopic, "kafka-topic", "", "kafka topic for newly discovered items")
}

// RunCrawl assembles the pipeline from cfg and executes one run. The summary
// is printed to out and, when a report directory is configured, written as
// JSON. The error is non-nil when the pipeline could not be built or the run
// aborted.
func RunCrawl(ctx context.Context, cfg config.Config, logger *logrus.Logger, out io.Writer) (scheduler.RunSummary, error) {
	runID := uuid.NewString()
	log := logger.WithFields(logrus.Fields{"run_id": runID, "job": cfg.Job()})

	tel, err := telemetry.Setup(ctx, serviceName, cfg.Telemetry(), logger)
	if err != nil {
		return scheduler.RunSummary{}, fmt.Errorf("telemetry setup: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
			log.WithError(err).Warn("telemetry shutdown failed")
		}
	}()

	recorder := metadata.NewRecorder(logger, runID)

	pipelineFetcher, err := newFetcher(cfg, recorder)
	if err != nil {
		return scheduler.RunSummary{}, err
	}

	store, err := storage.Open(ctx, cfg.Store())
	if err != nil {
		return scheduler.RunSummary{}, fmt.Errorf("open %s store: %w", cfg.Store().Backend, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.WithError(err).Warn("closing store failed")
		}
	}()

	publisher := newPublisher(cfg, recorder)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.WithError(err).Warn("closing publisher failed")
		}
	}()

	s := scheduler.NewScheduler(scheduler.Options{
		Job:         cfg.Job(),
		RunID:       runID,
		SeedURL:     cfg.SeedURL(),
		MaxDepth:    cfg.MaxDepth(),
		MaxPages:    cfg.MaxPagesPerLeaf(),
		Concurrency: cfg.Concurrency(),
		ForceRescan: cfg.ForceRescan(),
		SeedBuilder: discovery.TemplateSeed(cfg.SeedTemplate()),
		Requests:    cfg.Requests(),
	}, scheduler.Deps{
		Fetcher:      pipelineFetcher,
		Extractor:    newExtractor(cfg, recorder),
		Store:        store,
		Publisher:    publisher,
		MetadataSink: recorder,
		Finalizer:    recorder,
		Logger:       logger,
	})

	seedURL := cfg.SeedURL()
	log.WithField("seed", seedURL.String()).Info("crawl started")
	summary, runErr := s.Run(ctx)

	renderSummary(out, summary)
	if cfg.ReportDir() != "" {
		path, err := writeReport(cfg.ReportDir(), summary)
		if err != nil {
			log.WithError(err).Warn("writing run report failed")
		} else {
			log.WithField("path", path).Info("run report written")
		}
	}

	return summary, runErr
}

// newFetcher stacks the HTTP fetcher under retries and per-host pacing.
func newFetcher(cfg config.Config, sink metadata.MetadataSink) (fetcher.Fetcher, error) {
	httpFetcher, err := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:        cfg.UserAgent(),
		Headers:          cfg.Headers(),
		Timeout:          cfg.Timeout(),
		CloudflareBypass: cfg.CloudflareBypass(),
	})
	if err != nil {
		return nil, fmt.Errorf("http fetcher: %w", err)
	}

	backoffParam := timeutil.NewBackoffParam(
		cfg.BackoffInitialDuration(),
		cfg.BackoffMultiplier(),
		cfg.BackoffMaxDuration(),
	)

	pacer := limiter.NewConcurrentRateLimiter()
	pacer.SetBaseDelay(cfg.BaseDelay())
	pacer.SetJitter(cfg.Jitter())
	pacer.SetBackoffParam(backoffParam)
	pacer.SetRandomSeed(cfg.RandomSeed())

	retryParam := retry.NewRetryParam(cfg.Jitter(), cfg.RandomSeed(), cfg.MaxAttempt(), backoffParam)

	return fetcher.NewRetryingFetcher(httpFetcher, retryParam, cfg.Timeout(), pacer, sink), nil
}

func newExtractor(cfg config.Config, sink metadata.MetadataSink) extractor.PageExtractor {
	if cfg.Extractor() == config.ExtractorJSON {
		return extractor.NewJSONExtractor(cfg.JSONPaths(), sink)
	}
	return extractor.NewHTMLExtractor(cfg.HTMLSelectors(), sink)
}

func newPublisher(cfg config.Config, sink metadata.MetadataSink) publish.Publisher {
	if len(cfg.KafkaBrokers()) == 0 {
		return publish.NoopPublisher{}
	}
	return publish.NewKafkaPublisher(cfg.KafkaBrokers(), cfg.KafkaTopic(), cfg.KafkaBatchSize(), sink)
}
