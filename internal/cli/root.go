package cmd

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rohmanhakim/catalog-crawler/internal/config"
	"github.com/rohmanhakim/catalog-crawler/internal/storage"
)

var (
	cfgFile         string
	logLevel        string
	logFormat       string
	seedURL         string
	job             string
	maxDepth        int
	maxPagesPerLeaf int
	concurrency     int
	forceRescan     bool
	userAgent       string
	timeout         time.Duration
	baseDelay       time.Duration
	jitter          time.Duration
	randomSeed      int64
	maxAttempt      int
	storeBackend    string
	storeDSN        string
	reportDir       string
	kafkaBrokers    []string
	kafkaTopic      string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "catalog-crawler",
	Short: "Discovers every item identifier of an online catalog.",
	Long: `catalog-crawler walks the category tree of an online catalog from a single
root page, enumerates the paginated listing of every leaf category and stores
each item identifier exactly once.

Progress is checkpointed per leaf, so an interrupted run resumes where it
stopped and a finished run can be repeated without fetching exhausted leaves.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "config file path (e.g., /home/myuser/crawl.json5)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text or json)")
	rootCmd.PersistentFlags().StringVar(&seedURL, "seed-url", "", "root category page of the catalog")
	rootCmd.PersistentFlags().StringVar(&job, "job", "", "job name; scopes stored items and progress (defaults to the seed host)")
	rootCmd.PersistentFlags().StringVar(&storeBackend, "store-backend", "", "item store backend (memory, sqlite, libsql, redis)")
	rootCmd.PersistentFlags().StringVar(&storeDSN, "store-dsn", "", "database file or URL for the sqlite and libsql backends")
}

func newLogger() (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)

	switch strings.ToLower(logFormat) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", logFormat)
	}
	return logger, nil
}

// InitConfigWithError builds the run configuration. Values come from the
// config file when one is given, then flags override what they set. Without a
// config file --seed-url is mandatory.
func InitConfigWithError() (config.Config, error) {
	var configBuilder *config.Config

	if cfgFile != "" {
		cfg, err := config.WithConfigFile(cfgFile)
		if err != nil {
			return config.Config{}, fmt.Errorf("error initializing config from file: %w", err)
		}
		configBuilder = &cfg
	}

	if seedURL != "" {
		parsedURL, err := url.Parse(seedURL)
		if err != nil {
			return config.Config{}, fmt.Errorf("%w: error parsing seed URL %s: %s", config.ErrInvalidConfig, seedURL, err.Error())
		}
		if configBuilder == nil {
			configBuilder = config.WithDefault(*parsedURL)
		} else {
			configBuilder = configBuilder.WithSeedURL(*parsedURL)
		}
	}

	if configBuilder == nil {
		return config.Config{}, fmt.Errorf("%w: --seed-url or --config-file is required", config.ErrInvalidConfig)
	}

	// Override with CLI flag values where provided
	if job != "" {
		configBuilder = configBuilder.WithJob(job)
	}
	if maxDepth > 0 {
		configBuilder = configBuilder.WithMaxDepth(maxDepth)
	}
	if maxPagesPerLeaf > 0 {
		configBuilder = configBuilder.WithMaxPagesPerLeaf(maxPagesPerLeaf)
	}
	if concurrency > 0 {
		configBuilder = configBuilder.WithConcurrency(concurrency)
	}
	if forceRescan {
		configBuilder = configBuilder.WithForceRescan(forceRescan)
	}
	if userAgent != "" {
		configBuilder = configBuilder.WithUserAgent(userAgent)
	}
	if timeout > 0 {
		configBuilder = configBuilder.WithTimeout(timeout)
	}
	if baseDelay > 0 {
		configBuilder = configBuilder.WithBaseDelay(baseDelay)
	}
	if jitter > 0 {
		configBuilder = configBuilder.WithJitter(jitter)
	}
	if randomSeed != 0 {
		configBuilder = configBuilder.WithRandomSeed(randomSeed)
	}
	if maxAttempt > 0 {
		configBuilder = configBuilder.WithMaxAttempt(maxAttempt)
	}
	if storeBackend != "" || storeDSN != "" {
		store := configBuilder.Store()
		if storeBackend != "" {
			store.Backend = storage.Backend(strings.ToLower(storeBackend))
		}
		if storeDSN != "" {
			store.DSN = storeDSN
		}
		configBuilder = configBuilder.WithStore(store)
	}
	if reportDir != "" {
		configBuilder = configBuilder.WithReportDir(reportDir)
	}
	if len(kafkaBrokers) > 0 || kafkaTopic != "" {
		brokers := configBuilder.KafkaBrokers()
		if len(kafkaBrokers) > 0 {
			brokers = kafkaBrokers
		}
		topic := configBuilder.KafkaTopic()
		if kafkaTopic != "" {
			topic = kafkaTopic
		}
		configBuilder = configBuilder.WithKafka(brokers, topic, configBuilder.KafkaBatchSize())
	}

	cfg, err := configBuilder.Build()
	if err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func ResetFlags() {
	cfgFile = ""
	logLevel = "info"
	logFormat = "text"
	seedURL = ""
	job = ""
	maxDepth = 0
	maxPagesPerLeaf = 0
	concurrency = 0
	forceRescan = false
	userAgent = ""
	timeout = 0
	baseDelay = 0
	jitter = 0
	randomSeed = 0
	maxAttempt = 0
	storeBackend = ""
	storeDSN = ""
	reportDir = ""
	kafkaBrokers = []string{}
	kafkaTopic = ""
}

// Test helper functions to set flag values from tests
func SetConfigFileForTest(path string) {
	cfgFile = path
}

func SetSeedURLForTest(u string) {
	seedURL = u
}

func SetJobForTest(name string) {
	job = name
}

func SetMaxDepthForTest(depth int) {
	maxDepth = depth
}

func SetMaxPagesPerLeafForTest(pages int) {
	maxPagesPerLeaf = pages
}

func SetConcurrencyForTest(conc int) {
	concurrency = conc
}

func SetForceRescanForTest(force bool) {
	forceRescan = force
}

func SetTimeoutForTest(t time.Duration) {
	timeout = t
}

func SetBaseDelayForTest(delay time.Duration) {
	baseDelay = delay
}

func SetJitterForTest(j time.Duration) {
	jitter = j
}

func SetMaxAttemptForTest(attempts int) {
	maxAttempt = attempts
}

func SetStoreForTest(backend, dsn string) {
	storeBackend = backend
	storeDSN = dsn
}

func SetReportDirForTest(dir string) {
	reportDir = dir
}

func SetKafkaForTest(brokers []string, topic string) {
	kafkaBrokers = brokers
	kafkaTopic = topic
}

func SetLogForTest(level, format string) {
	logLevel = level
	logFormat = format
}
