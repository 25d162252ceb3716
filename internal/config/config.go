// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/channel-ranker/internal/analysis"
	"github.com/JakeFAU/channel-ranker/internal/discovery"
	"github.com/JakeFAU/channel-ranker/internal/enrichment"
	"github.com/JakeFAU/channel-ranker/internal/extractor/ytdlp"
	"github.com/JakeFAU/channel-ranker/internal/normalize"
	"github.com/JakeFAU/channel-ranker/internal/ranker"
	"github.com/JakeFAU/channel-ranker/internal/scoring"
)

// Search modes.
const (
	SearchModeHeadless = "headless"
	SearchModeStatic   = "static"
)

// Archive backends.
const (
	ArchiveNone   = "none"
	ArchiveGCS    = "gcs"
	ArchiveLocal  = "local"
	ArchiveMemory = "memory"
)

// Config captures all pipeline configuration knobs loaded via Viper.
type Config struct {
	DB         DBConfig         `mapstructure:"db"`
	Claims     ClaimsConfig     `mapstructure:"claims"`
	Normalize  NormalizeConfig  `mapstructure:"normalize"`
	Analysis   AnalysisConfig   `mapstructure:"analysis"`
	Scoring    scoring.Config   `mapstructure:"scoring"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	Discovery  DiscoveryConfig  `mapstructure:"discovery"`
	Search     SearchConfig     `mapstructure:"search"`
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN                string `mapstructure:"dsn"`
	MaxConns           int32  `mapstructure:"max_conns"`
	MinConns           int32  `mapstructure:"min_conns"`
	MaxConnLifetimeSec int    `mapstructure:"max_conn_lifetime_seconds"`
	MigrateOnStart     bool   `mapstructure:"migrate_on_start"`
}

// ClaimsConfig controls claim staleness.
type ClaimsConfig struct {
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

// NormalizeConfig wraps validation thresholds and batching.
type NormalizeConfig struct {
	normalize.Thresholds `mapstructure:",squash"`
	BatchSize            int `mapstructure:"batch_size"`
	Limit                int `mapstructure:"limit"`
}

// AnalysisConfig wraps qualification thresholds and the candidate limit.
type AnalysisConfig struct {
	analysis.Config `mapstructure:",squash"`
	Limit           int `mapstructure:"limit"`
}

// EnrichmentConfig wraps worker settings and the extractor.
type EnrichmentConfig struct {
	Worker    enrichment.Config `mapstructure:",squash"`
	Extractor ytdlp.Config      `mapstructure:",squash"`
}

// DiscoveryConfig holds fan-out settings and the query list.
type DiscoveryConfig struct {
	discovery.Config `mapstructure:",squash"`
	Queries          []string `mapstructure:"queries"`
	Locale           string   `mapstructure:"locale"`
}

// SearchConfig selects and tunes the search-results source.
type SearchConfig struct {
	Mode              string `mapstructure:"mode"`
	BaseURL           string `mapstructure:"base_url"`
	UserAgent         string `mapstructure:"user_agent"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
	MaxParallel       int    `mapstructure:"max_parallel"`
	MaxScrolls        int    `mapstructure:"max_scrolls"`
	ScrollPauseMillis int    `mapstructure:"scroll_pause_ms"`
}

// ServerConfig controls the reporting API.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ArchiveConfig selects where raw extractor dumps are written.
type ArchiveConfig struct {
	Backend   string `mapstructure:"backend"`
	Prefix    string `mapstructure:"prefix"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
}

// PubSubConfig holds event publishing settings. An empty project disables it.
type PubSubConfig struct {
	ProjectID     string `mapstructure:"project_id"`
	EnrichedTopic string `mapstructure:"enriched_topic"`
	ScoredTopic   string `mapstructure:"scored_topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RANKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_seconds", 1800)
	v.SetDefault("db.migrate_on_start", false)
	v.SetDefault("claims.stale_after", "30m")

	th := normalize.DefaultThresholds()
	v.SetDefault("normalize.min_duration_seconds", th.MinDurationSeconds)
	v.SetDefault("normalize.recency_window", th.RecencyWindow.String())
	v.SetDefault("normalize.min_views", th.MinViews)
	v.SetDefault("normalize.batch_size", 500)
	v.SetDefault("normalize.limit", 5000)

	an := analysis.DefaultConfig()
	v.SetDefault("analysis.cycle_gap_days", an.CycleGapDays)
	v.SetDefault("analysis.min_duration_seconds", an.MinDurationSeconds)
	v.SetDefault("analysis.min_subscribers", an.MinSubscribers)
	v.SetDefault("analysis.min_long_videos_total", an.MinLongVideosTotal)
	v.SetDefault("analysis.min_cycle_long_videos", an.MinCycleLongVideos)
	v.SetDefault("analysis.high_ratio_threshold", an.HighRatioThreshold)
	v.SetDefault("analysis.min_high_ratio_videos", an.MinHighRatioVideos)
	v.SetDefault("analysis.min_median_ratio", an.MinMedianRatio)
	v.SetDefault("analysis.limit", 1000)

	sc := scoring.DefaultConfig()
	v.SetDefault("scoring.perf_ratio_ceiling", sc.PerfRatioCeiling)
	v.SetDefault("scoring.peak_ratio_ceiling", sc.PeakRatioCeiling)
	v.SetDefault("scoring.consistency_saturation", sc.ConsistencySaturation)
	v.SetDefault("scoring.size_floor", sc.SizeFloor)
	v.SetDefault("scoring.size_ceiling", sc.SizeCeiling)
	v.SetDefault("scoring.weights.performance", sc.Weights.Performance)
	v.SetDefault("scoring.weights.peak", sc.Weights.Peak)
	v.SetDefault("scoring.weights.consistency", sc.Weights.Consistency)
	v.SetDefault("scoring.weights.size", sc.Weights.Size)

	v.SetDefault("enrichment.concurrency", 4)
	v.SetDefault("enrichment.batch_size", 50)
	v.SetDefault("enrichment.max_videos", 25)
	v.SetDefault("enrichment.extract_timeout", "180s")
	v.SetDefault("enrichment.max_failures", 3)
	v.SetDefault("enrichment.backoff_base", "2s")
	v.SetDefault("enrichment.backoff_max", "1m")
	v.SetDefault("enrichment.binary", "yt-dlp")
	v.SetDefault("enrichment.permanent_markers", ytdlp.DefaultPermanentMarkers)

	dc := discovery.DefaultConfig()
	v.SetDefault("discovery.concurrency", dc.Concurrency)
	v.SetDefault("discovery.rate_per_sec", dc.RatePerSec)
	v.SetDefault("discovery.burst", dc.Burst)
	v.SetDefault("discovery.skip_executed", dc.SkipExecuted)
	v.SetDefault("discovery.locale", string(ranker.LocaleEN))

	v.SetDefault("search.mode", SearchModeStatic)
	v.SetDefault("search.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36")
	v.SetDefault("search.timeout_seconds", 30)
	v.SetDefault("search.max_parallel", 1)
	v.SetDefault("search.max_scrolls", 5)
	v.SetDefault("search.scroll_pause_ms", 750)

	v.SetDefault("server.port", 8080)
	v.SetDefault("archive.backend", ArchiveNone)
	v.SetDefault("archive.prefix", "ytdlp")
	v.SetDefault("archive.local_dir", "./data/archive")
	v.SetDefault("pubsub.enriched_topic", "channel-enriched")
	v.SetDefault("pubsub.scored_topic", "channel-scored")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Claims.StaleAfter <= 0 {
		return fmt.Errorf("claims.stale_after must be > 0")
	}
	if c.Normalize.MinDurationSeconds < 0 || c.Normalize.MinViews < 0 {
		return fmt.Errorf("normalize thresholds must be >= 0")
	}
	if c.Normalize.RecencyWindow <= 0 {
		return fmt.Errorf("normalize.recency_window must be > 0")
	}
	if err := c.Analysis.Config.Validate(); err != nil {
		return fmt.Errorf("analysis: %w", err)
	}
	if err := c.Scoring.Validate(); err != nil {
		return fmt.Errorf("scoring: %w", err)
	}
	if c.Enrichment.Worker.Concurrency <= 0 {
		return fmt.Errorf("enrichment.concurrency must be > 0")
	}
	if c.Enrichment.Worker.MaxFailures <= 0 {
		return fmt.Errorf("enrichment.max_failures must be > 0")
	}
	if c.Enrichment.Worker.ExtractTimeout <= 0 {
		return fmt.Errorf("enrichment.extract_timeout must be > 0")
	}
	if c.Discovery.Concurrency <= 0 {
		return fmt.Errorf("discovery.concurrency must be > 0")
	}
	if _, err := ranker.ParseLocale(c.Discovery.Locale); err != nil {
		return fmt.Errorf("discovery.locale: %w", err)
	}
	switch c.Search.Mode {
	case SearchModeHeadless, SearchModeStatic:
	default:
		return fmt.Errorf("search.mode must be %q or %q", SearchModeHeadless, SearchModeStatic)
	}
	if c.Search.TimeoutSeconds <= 0 {
		return fmt.Errorf("search.timeout_seconds must be > 0")
	}
	switch c.Archive.Backend {
	case ArchiveNone, ArchiveMemory, "":
	case ArchiveGCS:
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set for the gcs backend")
		}
	case ArchiveLocal:
		if c.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir must be set for the local backend")
		}
	default:
		return fmt.Errorf("unknown archive.backend %q", c.Archive.Backend)
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// SearchTimeout converts the search timeout into a duration.
func (c Config) SearchTimeout() time.Duration {
	return time.Duration(c.Search.TimeoutSeconds) * time.Second
}

// ScrollPause converts the headless scroll pause into a duration.
func (c Config) ScrollPause() time.Duration {
	return time.Duration(c.Search.ScrollPauseMillis) * time.Millisecond
}

// ConnLifetime converts the pool connection lifetime into a duration.
func (c Config) ConnLifetime() time.Duration {
	return time.Duration(c.DB.MaxConnLifetimeSec) * time.Second
}

// PubSubTopics maps pipeline topics to Pub/Sub topic IDs.
func (c Config) PubSubTopics() map[string]string {
	return map[string]string{
		ranker.TopicChannelEnriched: c.PubSub.EnrichedTopic,
		ranker.TopicChannelScored:   c.PubSub.ScoredTopic,
	}
}
