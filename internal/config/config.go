package config

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/titanous/json5"

	"github.com/rohmanhakim/catalog-crawler/internal/build"
	"github.com/rohmanhakim/catalog-crawler/internal/extractor"
	"github.com/rohmanhakim/catalog-crawler/internal/pagination"
	"github.com/rohmanhakim/catalog-crawler/internal/storage"
	"github.com/rohmanhakim/catalog-crawler/internal/telemetry"
)

type ExtractorKind string

const (
	ExtractorHTML ExtractorKind = "html"
	ExtractorJSON ExtractorKind = "json"
)

type Config struct {
	//===============
	//  Job
	//===============
	// Name of the job; used for the store namespace and report file names
	job string
	// Root page of the category tree
	seedURL url.URL

	//===============
	// Limits
	//===============
	// Maximum category depth below the root; 0 means unlimited
	maxDepth int
	// Maximum listing pages walked per leaf; 0 means unlimited
	maxPagesPerLeaf int
	// Number of leaves enumerated concurrently
	concurrency int
	// Ignore the progress ledger and walk every leaf from its seed
	forceRescan bool

	//===============
	// Politeness
	//===============
	// Minimum, fixed waiting time between two requests to the same host
	baseDelay time.Duration
	// Randomized variation added on top of the base delay
	jitter time.Duration
	// Controls the random number generator
	randomSeed int64
	// maximum attempts per logical fetch
	maxAttempt int
	// initial delay for backoff
	backoffInitialDuration time.Duration
	// multiplier during exponential backoff
	backoffMultiplier float64
	// capped maximum delay for backoff
	backoffMaxDuration time.Duration

	//===============
	// Fetch
	//===============
	// Maximum time of a single fetch attempt
	timeout   time.Duration
	userAgent string
	headers   map[string]string
	// Wrap the transport for sites behind Cloudflare's basic bot check
	cloudflareBypass bool

	//===============
	// Extraction
	//===============
	extractor     ExtractorKind
	htmlSelectors extractor.HTMLSelectors
	jsonPaths     extractor.JSONPaths
	// Listing seed template per leaf ({url}, {id}, {slug}); empty uses the leaf page
	seedTemplate string

	//===============
	// Pagination
	//===============
	requests pagination.RequestBuilder

	//===============
	// Storage
	//===============
	store storage.Options

	//===============
	// Publishing
	//===============
	kafkaBrokers   []string
	kafkaTopic     string
	kafkaBatchSize int

	//===============
	// Output
	//===============
	telemetry telemetry.Config
	// Directory for JSON run reports; empty disables them
	reportDir string
}

type paginationDTO struct {
	Style       string         `json:"style,omitempty"`
	Method      string         `json:"method,omitempty"`
	PageParam   string         `json:"pageParam,omitempty"`
	CursorParam string         `json:"cursorParam,omitempty"`
	FirstPage   int            `json:"firstPage,omitempty"`
	BodyFields  map[string]any `json:"bodyFields,omitempty"`
}

type storeDTO struct {
	Backend       string `json:"backend,omitempty"`
	DSN           string `json:"dsn,omitempty"`
	RedisAddr     string `json:"redisAddr,omitempty"`
	RedisPassword string `json:"redisPassword,omitempty"`
	RedisDB       int    `json:"redisDb,omitempty"`
	Namespace     string `json:"namespace,omitempty"`
}

type kafkaDTO struct {
	Brokers   []string `json:"brokers,omitempty"`
	Topic     string   `json:"topic,omitempty"`
	BatchSize int      `json:"batchSize,omitempty"`
}

type configDTO struct {
	Job                    string                  `json:"job,omitempty"`
	SeedURL                string                  `json:"seedUrl"`
	MaxDepth               int                     `json:"maxDepth,omitempty"`
	MaxPagesPerLeaf        int                     `json:"maxPagesPerLeaf,omitempty"`
	Concurrency            int                     `json:"concurrency,omitempty"`
	ForceRescan            bool                    `json:"forceRescan,omitempty"`
	BaseDelay              Duration                `json:"baseDelay,omitempty"`
	Jitter                 Duration                `json:"jitter,omitempty"`
	RandomSeed             int64                   `json:"randomSeed,omitempty"`
	MaxAttempt             int                     `json:"maxAttempt,omitempty"`
	BackoffInitialDuration Duration                `json:"backoffInitialDuration,omitempty"`
	BackoffMultiplier      float64                 `json:"backoffMultiplier,omitempty"`
	BackoffMaxDuration     Duration                `json:"backoffMaxDuration,omitempty"`
	Timeout                Duration                `json:"timeout,omitempty"`
	UserAgent              string                  `json:"userAgent,omitempty"`
	Headers                map[string]string       `json:"headers,omitempty"`
	CloudflareBypass       bool                    `json:"cloudflareBypass,omitempty"`
	Extractor              string                  `json:"extractor,omitempty"`
	HTMLSelectors          extractor.HTMLSelectors `json:"htmlSelectors,omitempty"`
	JSONPaths              extractor.JSONPaths     `json:"jsonPaths,omitempty"`
	SeedTemplate           string                  `json:"seedTemplate,omitempty"`
	Pagination             paginationDTO           `json:"pagination,omitempty"`
	Store                  storeDTO                `json:"store,omitempty"`
	Kafka                  kafkaDTO                `json:"kafka,omitempty"`
	Telemetry              telemetry.Config        `json:"telemetry,omitempty"`
	ReportDir              string                  `json:"reportDir,omitempty"`
}

func newConfigFromDTO(dto configDTO) (Config, error) {
	seed, err := url.Parse(strings.TrimSpace(dto.SeedURL))
	if err != nil {
		return Config{}, fmt.Errorf("%w: seedUrl: %s", ErrInvalidConfig, err.Error())
	}

	cfg := WithDefault(*seed)

	if dto.Job != "" {
		cfg.job = dto.Job
	}

	// For numeric fields, only override if non-zero value is provided
	if dto.MaxDepth != 0 {
		cfg.maxDepth = dto.MaxDepth
	}
	if dto.MaxPagesPerLeaf != 0 {
		cfg.maxPagesPerLeaf = dto.MaxPagesPerLeaf
	}
	if dto.Concurrency != 0 {
		cfg.concurrency = dto.Concurrency
	}
	cfg.forceRescan = dto.ForceRescan

	if dto.BaseDelay != 0 {
		cfg.baseDelay = dto.BaseDelay.std()
	}
	if dto.Jitter != 0 {
		cfg.jitter = dto.Jitter.std()
	}
	if dto.RandomSeed != 0 {
		cfg.randomSeed = dto.RandomSeed
	}
	if dto.MaxAttempt != 0 {
		cfg.maxAttempt = dto.MaxAttempt
	}
	if dto.BackoffInitialDuration != 0 {
		cfg.backoffInitialDuration = dto.BackoffInitialDuration.std()
	}
	if dto.BackoffMultiplier != 0 {
		cfg.backoffMultiplier = dto.BackoffMultiplier
	}
	if dto.BackoffMaxDuration != 0 {
		cfg.backoffMaxDuration = dto.BackoffMaxDuration.std()
	}

	if dto.Timeout != 0 {
		cfg.timeout = dto.Timeout.std()
	}
	if dto.UserAgent != "" {
		cfg.userAgent = dto.UserAgent
	}
	if len(dto.Headers) > 0 {
		cfg.headers = dto.Headers
	}
	cfg.cloudflareBypass = dto.CloudflareBypass

	if dto.Extractor != "" {
		cfg.extractor = ExtractorKind(strings.ToLower(dto.Extractor))
	}
	cfg.htmlSelectors = dto.HTMLSelectors
	cfg.jsonPaths = dto.JSONPaths
	cfg.seedTemplate = dto.SeedTemplate

	style, err := pagination.ParseStyle(dto.Pagination.Style)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrInvalidConfig, err.Error())
	}
	cfg.requests.Style = style
	if dto.Pagination.Method != "" {
		cfg.requests.Method = strings.ToUpper(dto.Pagination.Method)
	}
	if dto.Pagination.PageParam != "" {
		cfg.requests.PageParam = dto.Pagination.PageParam
	}
	if dto.Pagination.CursorParam != "" {
		cfg.requests.CursorParam = dto.Pagination.CursorParam
	}
	if dto.Pagination.FirstPage != 0 {
		cfg.requests.FirstPage = dto.Pagination.FirstPage
	}
	cfg.requests.BodyFields = dto.Pagination.BodyFields

	if dto.Store.Backend != "" {
		cfg.store.Backend = storage.Backend(strings.ToLower(dto.Store.Backend))
	}
	if dto.Store.DSN != "" {
		cfg.store.DSN = dto.Store.DSN
	}
	cfg.store.RedisAddr = dto.Store.RedisAddr
	cfg.store.RedisPassword = dto.Store.RedisPassword
	cfg.store.RedisDB = dto.Store.RedisDB
	cfg.store.Namespace = dto.Store.Namespace

	cfg.kafkaBrokers = dto.Kafka.Brokers
	cfg.kafkaTopic = dto.Kafka.Topic
	if dto.Kafka.BatchSize != 0 {
		cfg.kafkaBatchSize = dto.Kafka.BatchSize
	}

	cfg.telemetry = dto.Telemetry
	if dto.ReportDir != "" {
		cfg.reportDir = dto.ReportDir
	}

	return cfg.Build()
}

// WithConfigFile reads a JSON5 config file. A sibling <name>.local.<ext>
// file, when present, overrides the fields it sets.
func WithConfigFile(path string) (Config, error) {
	_, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrFileDoesNotExist, err.Error())
	}
	dto, err := readDTO(path)
	if err != nil {
		return Config{}, err
	}

	localPath := localOverridePath(path)
	if _, err := os.Stat(localPath); err == nil {
		override, err := readDTO(localPath)
		if err != nil {
			return Config{}, err
		}
		if err := mergo.Merge(&dto, override, mergo.WithOverride); err != nil {
			return Config{}, fmt.Errorf("%w: %s", ErrConfigMergeFail, err.Error())
		}
	}

	return newConfigFromDTO(dto)
}

func readDTO(path string) (configDTO, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return configDTO{}, fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error())
	}
	dto := configDTO{}
	if err := json5.Unmarshal(content, &dto); err != nil {
		return configDTO{}, fmt.Errorf("%w: %s: %s", ErrConfigParsingFail, filepath.Base(path), err.Error())
	}
	return dto, nil
}

// localOverridePath maps crawl.json5 to crawl.local.json5.
func localOverridePath(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, name+".local"+ext)
}

// WithDefault creates a new Config with the provided seed URL and default
// values for all other fields.
func WithDefault(seedURL url.URL) *Config {
	defaultConfig := Config{
		job:                    seedURL.Hostname(),
		seedURL:                seedURL,
		maxDepth:               0,
		maxPagesPerLeaf:        1000,
		concurrency:            1,
		baseDelay:              time.Second,
		jitter:                 time.Millisecond * 500,
		randomSeed:             time.Now().UnixNano(),
		maxAttempt:             5,
		backoffInitialDuration: time.Second,
		backoffMultiplier:      2.0,
		backoffMaxDuration:     30 * time.Second,
		timeout:                time.Second * 20,
		userAgent:              build.UserAgent(),
		headers:                map[string]string{},
		extractor:              ExtractorHTML,
		requests:               pagination.DefaultRequestBuilder(),
		store:                  storage.Options{Backend: storage.BackendSQLite, DSN: "catalog.db"},
		kafkaBatchSize:         100,
		reportDir:              "reports",
	}
	return &defaultConfig
}

func (c *Config) WithJob(job string) *Config {
	c.job = job
	return c
}

func (c *Config) WithSeedURL(seedURL url.URL) *Config {
	c.seedURL = seedURL
	return c
}

func (c *Config) WithMaxDepth(depth int) *Config {
	c.maxDepth = depth
	return c
}

func (c *Config) WithMaxPagesPerLeaf(pages int) *Config {
	c.maxPagesPerLeaf = pages
	return c
}

func (c *Config) WithConcurrency(concurrency int) *Config {
	c.concurrency = concurrency
	return c
}

func (c *Config) WithForceRescan(force bool) *Config {
	c.forceRescan = force
	return c
}

func (c *Config) WithBaseDelay(delay time.Duration) *Config {
	c.baseDelay = delay
	return c
}

func (c *Config) WithJitter(jitter time.Duration) *Config {
	c.jitter = jitter
	return c
}

func (c *Config) WithRandomSeed(seed int64) *Config {
	c.randomSeed = seed
	return c
}

func (c *Config) WithMaxAttempt(attempts int) *Config {
	c.maxAttempt = attempts
	return c
}

func (c *Config) WithBackoffInitialDuration(duration time.Duration) *Config {
	c.backoffInitialDuration = duration
	return c
}

func (c *Config) WithBackoffMultiplier(multiplier float64) *Config {
	c.backoffMultiplier = multiplier
	return c
}

func (c *Config) WithBackoffMaxDuration(duration time.Duration) *Config {
	c.backoffMaxDuration = duration
	return c
}

func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.timeout = timeout
	return c
}

func (c *Config) WithUserAgent(agent string) *Config {
	c.userAgent = agent
	return c
}

func (c *Config) WithHeaders(headers map[string]string) *Config {
	c.headers = headers
	return c
}

func (c *Config) WithCloudflareBypass(enabled bool) *Config {
	c.cloudflareBypass = enabled
	return c
}

func (c *Config) WithExtractor(kind ExtractorKind) *Config {
	c.extractor = kind
	return c
}

func (c *Config) WithHTMLSelectors(selectors extractor.HTMLSelectors) *Config {
	c.htmlSelectors = selectors
	return c
}

func (c *Config) WithJSONPaths(paths extractor.JSONPaths) *Config {
	c.jsonPaths = paths
	return c
}

func (c *Config) WithSeedTemplate(template string) *Config {
	c.seedTemplate = template
	return c
}

func (c *Config) WithRequests(requests pagination.RequestBuilder) *Config {
	c.requests = requests
	return c
}

func (c *Config) WithStore(store storage.Options) *Config {
	c.store = store
	return c
}

func (c *Config) WithKafka(brokers []string, topic string, batchSize int) *Config {
	c.kafkaBrokers = brokers
	c.kafkaTopic = topic
	c.kafkaBatchSize = batchSize
	return c
}

func (c *Config) WithTelemetry(tel telemetry.Config) *Config {
	c.telemetry = tel
	return c
}

func (c *Config) WithReportDir(dir string) *Config {
	c.reportDir = dir
	return c
}

func (c *Config) Build() (Config, error) {
	if c.seedURL.Scheme != "http" && c.seedURL.Scheme != "https" || c.seedURL.Host == "" {
		return Config{}, fmt.Errorf("%w: seedUrl must be an absolute http(s) url, got %q", ErrInvalidConfig, c.seedURL.String())
	}
	if c.job == "" {
		c.job = c.seedURL.Hostname()
	}
	if c.maxDepth < 0 || c.maxPagesPerLeaf < 0 {
		return Config{}, fmt.Errorf("%w: maxDepth and maxPagesPerLeaf cannot be negative", ErrInvalidConfig)
	}
	if c.concurrency < 1 {
		return Config{}, fmt.Errorf("%w: concurrency must be at least 1", ErrInvalidConfig)
	}
	if c.maxAttempt < 1 {
		return Config{}, fmt.Errorf("%w: maxAttempt must be at least 1", ErrInvalidConfig)
	}
	if c.timeout <= 0 {
		return Config{}, fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}

	switch c.extractor {
	case ExtractorHTML:
		if err := c.htmlSelectors.Validate(); err != nil {
			return Config{}, fmt.Errorf("%w: htmlSelectors: %s", ErrInvalidConfig, err.Error())
		}
	case ExtractorJSON:
		if c.jsonPaths.Items == "" {
			return Config{}, fmt.Errorf("%w: jsonPaths.items is required for the json extractor", ErrInvalidConfig)
		}
	default:
		return Config{}, fmt.Errorf("%w: unknown extractor %q", ErrInvalidConfig, c.extractor)
	}

	if c.requests.Method != "" && c.requests.Method != http.MethodGet && c.requests.Method != http.MethodPost {
		return Config{}, fmt.Errorf("%w: pagination method must be GET or POST, got %q", ErrInvalidConfig, c.requests.Method)
	}

	if c.store.Namespace == "" {
		c.store.Namespace = c.job
	}
	switch c.store.Backend {
	case "", storage.BackendMemory:
	case storage.BackendSQLite, storage.BackendLibSQL:
		if c.store.DSN == "" {
			return Config{}, fmt.Errorf("%w: store.dsn is required for %s", ErrInvalidConfig, c.store.Backend)
		}
	case storage.BackendRedis:
		if c.store.RedisAddr == "" {
			return Config{}, fmt.Errorf("%w: store.redisAddr is required for redis", ErrInvalidConfig)
		}
	default:
		return Config{}, fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, c.store.Backend)
	}

	if len(c.kafkaBrokers) > 0 && c.kafkaTopic == "" {
		return Config{}, fmt.Errorf("%w: kafka.topic is required when brokers are set", ErrInvalidConfig)
	}

	return *c, nil
}

func (c Config) Job() string {
	return c.job
}

func (c Config) SeedURL() url.URL {
	return c.seedURL
}

func (c Config) MaxDepth() int {
	return c.maxDepth
}

func (c Config) MaxPagesPerLeaf() int {
	return c.maxPagesPerLeaf
}

func (c Config) Concurrency() int {
	return c.concurrency
}

func (c Config) ForceRescan() bool {
	return c.forceRescan
}

func (c Config) BaseDelay() time.Duration {
	return c.baseDelay
}

func (c Config) Jitter() time.Duration {
	return c.jitter
}

func (c Config) RandomSeed() int64 {
	return c.randomSeed
}

func (c Config) MaxAttempt() int {
	return c.maxAttempt
}

func (c Config) BackoffInitialDuration() time.Duration {
	return c.backoffInitialDuration
}

func (c Config) BackoffMultiplier() float64 {
	return c.backoffMultiplier
}

func (c Config) BackoffMaxDuration() time.Duration {
	return c.backoffMaxDuration
}

func (c Config) Timeout() time.Duration {
	return c.timeout
}

func (c Config) UserAgent() string {
	return c.userAgent
}

func (c Config) Headers() map[string]string {
	headers := make(map[string]string, len(c.headers))
	for k, v := range c.headers {
		headers[k] = v
	}
	return headers
}

func (c Config) CloudflareBypass() bool {
	return c.cloudflareBypass
}

func (c Config) Extractor() ExtractorKind {
	return c.extractor
}

func (c Config) HTMLSelectors() extractor.HTMLSelectors {
	return c.htmlSelectors
}

func (c Config) JSONPaths() extractor.JSONPaths {
	return c.jsonPaths
}

func (c Config) SeedTemplate() string {
	return c.seedTemplate
}

func (c Config) Requests() pagination.RequestBuilder {
	return c.requests
}

func (c Config) Store() storage.Options {
	return c.store
}

func (c Config) KafkaBrokers() []string {
	brokers := make([]string, len(c.kafkaBrokers))
	copy(brokers, c.kafkaBrokers)
	return brokers
}

func (c Config) KafkaTopic() string {
	return c.kafkaTopic
}

func (c Config) KafkaBatchSize() int {
	return c.kafkaBatchSize
}

func (c Config) Telemetry() telemetry.Config {
	return c.telemetry
}

func (c Config) ReportDir() string {
	return c.reportDir
}
