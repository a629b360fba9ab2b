package cmd_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cmd "github.com/rohmanhakim/catalog-crawler/internal/cli"
	"github.com/rohmanhakim/catalog-crawler/internal/config"
	"github.com/rohmanhakim/catalog-crawler/internal/scheduler"
	"github.com/rohmanhakim/catalog-crawler/internal/storage"
)

func TestInitConfig_RequiresSeedOrFile(t *testing.T) {
	cmd.ResetFlags()

	_, err := cmd.InitConfigWithError()

	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestInitConfig_SeedOnlyUsesDefaults(t *testing.T) {
	cmd.ResetFlags()
	cmd.SetSeedURLForTest("https://shop.example.com/catalog")

	cfg, err := cmd.InitConfigWithError()
	require.NoError(t, err)

	defaults, err := config.WithDefault(url.URL{Scheme: "https", Host: "base.org"}).Build()
	require.NoError(t, err)

	assert.Equal(t, "shop.example.com", cfg.Job())
	assert.Equal(t, "/catalog", cfg.SeedURL().Path)
	assert.Equal(t, defaults.MaxDepth(), cfg.MaxDepth())
	assert.Equal(t, defaults.MaxPagesPerLeaf(), cfg.MaxPagesPerLeaf())
	assert.Equal(t, defaults.Concurrency(), cfg.Concurrency())
	assert.Equal(t, defaults.Store().Backend, cfg.Store().Backend)
}

func TestInitConfig_FlagsOverride(t *testing.T) {
	cmd.ResetFlags()
	cmd.SetSeedURLForTest("https://shop.example.com/")
	cmd.SetJobForTest("shoes")
	cmd.SetMaxDepthForTest(3)
	cmd.SetMaxPagesPerLeafForTest(7)
	cmd.SetConcurrencyForTest(4)
	cmd.SetForceRescanForTest(true)
	cmd.SetTimeoutForTest(3 * time.Second)
	cmd.SetBaseDelayForTest(10 * time.Millisecond)
	cmd.SetMaxAttemptForTest(2)
	cmd.SetStoreForTest("MEMORY", "")
	cmd.SetReportDirForTest("out")
	cmd.SetKafkaForTest([]string{"localhost:9092"}, "items")

	cfg, err := cmd.InitConfigWithError()
	require.NoError(t, err)

	assert.Equal(t, "shoes", cfg.Job())
	assert.Equal(t, 3, cfg.MaxDepth())
	assert.Equal(t, 7, cfg.MaxPagesPerLeaf())
	assert.Equal(t, 4, cfg.Concurrency())
	assert.True(t, cfg.ForceRescan())
	assert.Equal(t, 3*time.Second, cfg.Timeout())
	assert.Equal(t, 10*time.Millisecond, cfg.BaseDelay())
	assert.Equal(t, 2, cfg.MaxAttempt())
	assert.Equal(t, storage.BackendMemory, cfg.Store().Backend)
	assert.Equal(t, "shoes", cfg.Store().Namespace)
	assert.Equal(t, "out", cfg.ReportDir())
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers())
	assert.Equal(t, "items", cfg.KafkaTopic())
}

func TestInitConfig_InvalidSeed(t *testing.T) {
	cmd.ResetFlags()
	cmd.SetSeedURLForTest("://nope")

	_, err := cmd.InitConfigWithError()

	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestInitConfig_KafkaBrokerWithoutTopic(t *testing.T) {
	cmd.ResetFlags()
	cmd.SetSeedURLForTest("https://shop.example.com/")
	cmd.SetKafkaForTest([]string{"localhost:9092"}, "")

	_, err := cmd.InitConfigWithError()

	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestInitConfig_FileWithFlagOverride(t *testing.T) {
	// GIVEN a config file and a concurrency flag
	cmd.ResetFlags()
	configFile := filepath.Join(t.TempDir(), "crawl.json5")
	require.NoError(t, os.WriteFile(configFile, []byte(`{
		job: "books",
		seedUrl: "https://shop.example.com/books",
		concurrency: 2,
		maxPagesPerLeaf: 40,
	}`), 0o644))
	cmd.SetConfigFileForTest(configFile)
	cmd.SetConcurrencyForTest(5)

	// WHEN
	cfg, err := cmd.InitConfigWithError()

	// THEN the flag wins and the rest comes from the file
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Concurrency())
	assert.Equal(t, "books", cfg.Job())
	assert.Equal(t, 40, cfg.MaxPagesPerLeaf())
	assert.Equal(t, "/books", cfg.SeedURL().Path)
}

func TestInitConfig_SeedFlagOverridesFile(t *testing.T) {
	cmd.ResetFlags()
	configFile := filepath.Join(t.TempDir(), "crawl.json5")
	require.NoError(t, os.WriteFile(configFile, []byte(`{ job: "books", seedUrl: "https://shop.example.com/books" }`), 0o644))
	cmd.SetConfigFileForTest(configFile)
	cmd.SetSeedURLForTest("https://shop.example.com/music")

	cfg, err := cmd.InitConfigWithError()

	require.NoError(t, err)
	assert.Equal(t, "/music", cfg.SeedURL().Path)
	assert.Equal(t, "books", cfg.Job())
}

func TestInitConfig_MissingFile(t *testing.T) {
	cmd.ResetFlags()
	cmd.SetConfigFileForTest(filepath.Join(t.TempDir(), "missing.json5"))

	_, err := cmd.InitConfigWithError()

	assert.ErrorIs(t, err, config.ErrFileDoesNotExist)
}

// storefront serves a root with two leaf categories. Leaf a has two listing
// pages; both leaves list item 2.
func storefront(t *testing.T) *httptest.Server {
	t.Helper()
	items := func(ids ...int) string {
		var b strings.Builder
		b.WriteString(`<ul class="product-list">`)
		for _, id := range ids {
			fmt.Fprintf(&b, `<li class="product"><a href="/p/%d">item %d</a></li>`, id, id)
		}
		b.WriteString(`</ul>`)
		return b.String()
	}
	pages := map[string]string{
		"/":       `<nav class="categories"><a href="/c/a">A</a><a href="/c/b">B</a></nav>`,
		"/c/a":    items(1, 2) + `<a rel="next" href="/c/a?page=2">next</a>`,
		"/c/a?p2": items(3),
		"/c/b":    items(2, 4),
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if r.URL.Query().Get("page") == "2" {
			key += "?p2"
		}
		body, ok := pages[key]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<html><body>%s</body></html>", body)
	}))
	t.Cleanup(server.Close)
	return server
}

func crawlConfig(t *testing.T, server *httptest.Server, store storage.Options, reportDir string) config.Config {
	t.Helper()
	seed, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	cfg, err := config.WithDefault(*seed).
		WithJob("storefront").
		WithBaseDelay(0).
		WithJitter(0).
		WithRandomSeed(1).
		WithMaxAttempt(1).
		WithTimeout(5 * time.Second).
		WithStore(store).
		WithReportDir(reportDir).
		Build()
	require.NoError(t, err)
	return cfg
}

func TestRunCrawl_EndToEnd(t *testing.T) {
	// GIVEN a two-leaf storefront and an empty sqlite store
	server := storefront(t)
	dir := t.TempDir()
	reportDir := filepath.Join(dir, "reports")
	store := storage.Options{Backend: storage.BackendSQLite, DSN: filepath.Join(dir, "catalog.db")}
	cfg := crawlConfig(t, server, store, reportDir)
	logger, _ := test.NewNullLogger()
	var out bytes.Buffer

	// WHEN
	summary, err := cmd.RunCrawl(context.Background(), cfg, logger, &out)

	// THEN every item is stored once
	require.NoError(t, err)
	assert.Equal(t, scheduler.StateDone, summary.State)
	assert.Equal(t, 2, summary.LeavesDiscovered)
	assert.Equal(t, 2, summary.LeavesExhausted)
	assert.Equal(t, 4, summary.ItemsInserted)
	assert.Equal(t, 1, summary.ItemsDeduplicated)
	assert.Contains(t, out.String(), "Items inserted")

	// AND a JSON report is written
	reports, err := filepath.Glob(filepath.Join(reportDir, "storefront-*.json"))
	require.NoError(t, err)
	require.Len(t, reports, 1)
	data, err := os.ReadFile(reports[0])
	require.NoError(t, err)
	var report map[string]any
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, "done", report["state"])
	assert.Equal(t, summary.RunID, report["runId"])
}

func TestRunCrawl_RerunSkipsExhaustedLeaves(t *testing.T) {
	server := storefront(t)
	dir := t.TempDir()
	store := storage.Options{Backend: storage.BackendSQLite, DSN: filepath.Join(dir, "catalog.db")}
	cfg := crawlConfig(t, server, store, "")
	logger, _ := test.NewNullLogger()

	_, err := cmd.RunCrawl(context.Background(), cfg, logger, &bytes.Buffer{})
	require.NoError(t, err)

	summary, err := cmd.RunCrawl(context.Background(), cfg, logger, &bytes.Buffer{})

	require.NoError(t, err)
	assert.Equal(t, 2, summary.LeavesSkipped)
	assert.Equal(t, 0, summary.ItemsInserted)
}

func TestPrintStatus(t *testing.T) {
	// GIVEN a finished run
	server := storefront(t)
	dir := t.TempDir()
	store := storage.Options{Backend: storage.BackendSQLite, DSN: filepath.Join(dir, "catalog.db")}
	cfg := crawlConfig(t, server, store, "")
	logger, _ := test.NewNullLogger()
	_, err := cmd.RunCrawl(context.Background(), cfg, logger, &bytes.Buffer{})
	require.NoError(t, err)

	// WHEN
	var out bytes.Buffer
	err = cmd.PrintStatus(context.Background(), cfg, &out)

	// THEN
	require.NoError(t, err)
	rendered := strings.ToLower(out.String())
	assert.Contains(t, rendered, "exhausted")
	assert.Contains(t, rendered, "2 leaves")
	assert.Contains(t, rendered, "4 stored")
}
