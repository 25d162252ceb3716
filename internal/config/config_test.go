package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/channel-ranker/internal/ranker"
)

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
db:
  dsn: postgres://ranker@localhost/ranker
  max_conns: 20
claims:
  stale_after: 10m
normalize:
  min_duration_seconds: 900
  recency_window: 720h
  min_views: 50
analysis:
  cycle_gap_days: 45
  min_subscribers: 500
scoring:
  weights:
    performance: 0.25
    peak: 0.25
    consistency: 0.25
    size: 0.25
enrichment:
  concurrency: 8
  extract_timeout: 90s
  max_failures: 5
  binary: /usr/local/bin/yt-dlp
  permanent_markers: ["gone for good"]
discovery:
  concurrency: 3
  locale: es
  queries: ["recetas", "pan casero"]
search:
  mode: headless
  max_scrolls: 8
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
archive:
  backend: gcs
  gcs_bucket: raw-dumps
logging:
  development: false
  level: debug
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DB.DSN != "postgres://ranker@localhost/ranker" || cfg.DB.MaxConns != 20 {
		t.Fatalf("unexpected db config: %+v", cfg.DB)
	}
	if cfg.Claims.StaleAfter != 10*time.Minute {
		t.Fatalf("expected stale_after 10m, got %v", cfg.Claims.StaleAfter)
	}
	if cfg.Normalize.MinDurationSeconds != 900 || cfg.Normalize.RecencyWindow != 720*time.Hour || cfg.Normalize.MinViews != 50 {
		t.Fatalf("unexpected normalize config: %+v", cfg.Normalize)
	}
	if cfg.Normalize.BatchSize != 500 {
		t.Fatalf("expected default batch size, got %d", cfg.Normalize.BatchSize)
	}
	if cfg.Analysis.CycleGapDays != 45 || cfg.Analysis.MinSubscribers != 500 || cfg.Analysis.MinLongVideosTotal != 3 {
		t.Fatalf("unexpected analysis config: %+v", cfg.Analysis)
	}
	if cfg.Scoring.Weights.Size != 0.25 {
		t.Fatalf("unexpected weights: %+v", cfg.Scoring.Weights)
	}
	if cfg.Enrichment.Worker.Concurrency != 8 || cfg.Enrichment.Worker.ExtractTimeout != 90*time.Second ||
		cfg.Enrichment.Worker.MaxFailures != 5 {
		t.Fatalf("unexpected enrichment worker config: %+v", cfg.Enrichment.Worker)
	}
	if cfg.Enrichment.Extractor.Binary != "/usr/local/bin/yt-dlp" ||
		len(cfg.Enrichment.Extractor.PermanentMarkers) != 1 {
		t.Fatalf("unexpected extractor config: %+v", cfg.Enrichment.Extractor)
	}
	if cfg.Discovery.Concurrency != 3 || cfg.Discovery.Locale != "es" || len(cfg.Discovery.Queries) != 2 {
		t.Fatalf("unexpected discovery config: %+v", cfg.Discovery)
	}
	if cfg.Search.Mode != SearchModeHeadless || cfg.Search.MaxScrolls != 8 {
		t.Fatalf("unexpected search config: %+v", cfg.Search)
	}
	if cfg.Server.Port != 9090 || !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("unexpected server/auth config: %+v %+v", cfg.Server, cfg.Auth)
	}
	if cfg.Archive.Backend != ArchiveGCS || cfg.Archive.GCSBucket != "raw-dumps" {
		t.Fatalf("unexpected archive config: %+v", cfg.Archive)
	}
	if cfg.Logging.Development || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port, got %d", cfg.Server.Port)
	}
	if cfg.Enrichment.Worker.ExtractTimeout != 180*time.Second || cfg.Enrichment.Worker.MaxFailures != 3 {
		t.Fatalf("unexpected enrichment defaults: %+v", cfg.Enrichment.Worker)
	}
	if len(cfg.Enrichment.Extractor.PermanentMarkers) == 0 {
		t.Fatal("expected default permanent markers")
	}
	if cfg.Normalize.RecencyWindow != 60*24*time.Hour {
		t.Fatalf("expected 60 day window, got %v", cfg.Normalize.RecencyWindow)
	}
	if cfg.SearchTimeout() != 30*time.Second || cfg.ScrollPause() != 750*time.Millisecond {
		t.Fatalf("unexpected search durations: %v %v", cfg.SearchTimeout(), cfg.ScrollPause())
	}
	if cfg.ConnLifetime() != 30*time.Minute {
		t.Fatalf("unexpected conn lifetime: %v", cfg.ConnLifetime())
	}
	topics := cfg.PubSubTopics()
	if topics[ranker.TopicChannelEnriched] != "channel-enriched" || topics[ranker.TopicChannelScored] != "channel-scored" {
		t.Fatalf("unexpected topics: %+v", topics)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("RANKER_SERVER_PORT", "7070")
	t.Setenv("RANKER_DB_DSN", "postgres://env")
	t.Setenv("RANKER_ENRICHMENT_MAX_FAILURES", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 || cfg.DB.DSN != "postgres://env" || cfg.Enrichment.Worker.MaxFailures != 7 {
		t.Fatalf("env overrides not applied: port=%d dsn=%q failures=%d",
			cfg.Server.Port, cfg.DB.DSN, cfg.Enrichment.Worker.MaxFailures)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	testCases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"stale after", func(c *Config) { c.Claims.StaleAfter = 0 }, "claims.stale_after"},
		{"recency", func(c *Config) { c.Normalize.RecencyWindow = 0 }, "normalize.recency_window"},
		{"weights", func(c *Config) { c.Scoring.Weights.Size = 0.5 }, "scoring"},
		{"enrichment concurrency", func(c *Config) { c.Enrichment.Worker.Concurrency = 0 }, "enrichment.concurrency"},
		{"locale", func(c *Config) { c.Discovery.Locale = "fr" }, "discovery.locale"},
		{"search mode", func(c *Config) { c.Search.Mode = "carrier-pigeon" }, "search.mode"},
		{"gcs bucket", func(c *Config) { c.Archive.Backend = ArchiveGCS }, "archive.gcs_bucket"},
		{"archive backend", func(c *Config) { c.Archive.Backend = "s3" }, "archive.backend"},
		{"auth", func(c *Config) { c.Auth.Enabled = true; c.Auth.APIKey = "" }, "auth.api_key"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
