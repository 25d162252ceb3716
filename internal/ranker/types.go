// Package ranker defines core types shared across pipeline stages.
package ranker

import (
	"fmt"
	"strings"
	"time"
)

// Locale identifies the language a search run was executed in.
type Locale string

// Supported locales.
const (
	LocaleEN Locale = "en"
	LocaleES Locale = "es"
)

// ParseLocale accepts "en", "es", and longer tags such as "es-419" or "en_US".
func ParseLocale(s string) (Locale, error) {
	tag := strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	switch Locale(tag) {
	case LocaleEN, LocaleES:
		return Locale(tag), nil
	default:
		return "", fmt.Errorf("unsupported locale %q", s)
	}
}

// Stage names a claim-coordinated pipeline stage.
type Stage string

// Claimable stages.
const (
	StageEnrichment Stage = "enrichment"
	StageAnalysis   Stage = "analysis"
)

// ProcessedStatus is the terminal state recorded for an enriched channel.
type ProcessedStatus string

// Processed marker values.
const (
	ProcessedSuccess ProcessedStatus = "success"
	ProcessedFailed  ProcessedStatus = "failed"
)

// Event topics published by the pipeline.
const (
	TopicChannelEnriched = "channel.enriched"
	TopicChannelScored   = "channel.scored"
)

// SearchRun is one discovery execution for a single query.
type SearchRun struct {
	ID         string     `json:"id"`
	Query      string     `json:"query"`
	Mode       string     `json:"mode"`
	Locale     Locale     `json:"locale"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Creator is a channel credited on a search result.
type Creator struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// SearchResult is one item produced by a SearchSource.
type SearchResult struct {
	VideoID       string    `json:"video_id"`
	Creators      []Creator `json:"channels"`
	DurationText  string    `json:"duration"`
	ViewsText     string    `json:"views_text"`
	PublishedText string    `json:"published_text"`
	VideoType     string    `json:"video_type"`
}

// RawVideo is an observed search-result item as persisted. Written once.
type RawVideo struct {
	VideoID       string    `json:"video_id"`
	SearchRunID   string    `json:"search_run_id"`
	Query         string    `json:"query"`
	Locale        Locale    `json:"locale"`
	VideoURL      string    `json:"video_url"`
	ChannelURL    string    `json:"channel_url"`
	ChannelName   string    `json:"channel_name"`
	ThumbnailURL  string    `json:"thumbnail_url"`
	DurationText  string    `json:"duration_text"`
	ViewsText     string    `json:"views_text"`
	PublishedText string    `json:"published_text"`
	VideoType     string    `json:"video_type"`
	MultiCreator  bool      `json:"is_multi_creator"`
	DiscoveredAt  time.Time `json:"discovered_at"`
}

// NormalizedVideo is derived 1:1 from a RawVideo.
type NormalizedVideo struct {
	VideoID         string     `json:"video_id"`
	ChannelURL      string     `json:"channel_url"`
	Query           string     `json:"query"`
	Views           *int64     `json:"views_estimated,omitempty"`
	PublishedAt     *time.Time `json:"published_at_estimated,omitempty"`
	DurationSeconds *int       `json:"duration_seconds_estimated,omitempty"`
	Passed          bool       `json:"validation_passed"`
	Reason          string     `json:"validation_reason"`
	NormalizedAt    time.Time  `json:"normalized_at"`
}

// ChannelProfile is channel-level metadata obtained from the extractor.
type ChannelProfile struct {
	ChannelURL  string    `json:"channel_url"`
	ChannelID   string    `json:"channel_id,omitempty"`
	Name        string    `json:"channel_name,omitempty"`
	Subscribers *int64    `json:"subscriber_count,omitempty"`
	Verified    *bool     `json:"is_verified,omitempty"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// ChannelVideo is one recent upload returned by the extractor.
type ChannelVideo struct {
	ChannelURL      string     `json:"channel_url"`
	VideoID         string     `json:"video_id"`
	UploadDate      *time.Time `json:"upload_date,omitempty"`
	DurationSeconds *int       `json:"duration_seconds,omitempty"`
	Views           *int64     `json:"view_count,omitempty"`
}

// Extraction is the extractor's view of a channel.
type Extraction struct {
	Profile ChannelProfile
	Videos  []ChannelVideo
	// Raw is the unparsed extractor payload, archived when a BlobStore is configured.
	Raw []byte
}

// Claim asserts that a worker currently owns a channel for a stage.
type Claim struct {
	Stage      Stage     `json:"stage"`
	ChannelURL string    `json:"channel_url"`
	WorkerID   string    `json:"worker_id"`
	ClaimedAt  time.Time `json:"claimed_at"`
	// Failures counts transient failures recorded against this channel so far.
	Failures int `json:"failure_count"`
}

// ChannelAnalysis is the qualification result for one channel. Written once.
type ChannelAnalysis struct {
	ChannelURL      string     `json:"channel_url"`
	Subscribers     *int64     `json:"subscriber_count,omitempty"`
	CycleStart      *time.Time `json:"cycle_start_date,omitempty"`
	CycleLongVideos *int       `json:"cycle_long_videos_count,omitempty"`
	TotalLongVideos int        `json:"long_videos_total"`
	MedianViews     *int64     `json:"median_views,omitempty"`
	MaxViews        *int64     `json:"max_views,omitempty"`
	MedianRatio     *float64   `json:"median_views_ratio,omitempty"`
	MaxRatio        *float64   `json:"max_views_ratio,omitempty"`
	Qualified       bool       `json:"qualified"`
	Reason          string     `json:"analysis_reason"`
	AnalyzedAt      time.Time  `json:"analyzed_at"`
}

// ChannelScore is the weighted ranking score for one channel. Re-computable.
type ChannelScore struct {
	ChannelURL  string    `json:"channel_url"`
	Performance float64   `json:"s_perf"`
	Peak        float64   `json:"s_peak"`
	Consistency float64   `json:"s_consistency"`
	Size        float64   `json:"s_size"`
	Final       float64   `json:"final_score"`
	Reason      string    `json:"reason,omitempty"`
	ScoredAt    time.Time `json:"scored_at"`
}

// RankedChannel joins a score with its analysis and profile for reporting.
type RankedChannel struct {
	Score    ChannelScore    `json:"score"`
	Analysis ChannelAnalysis `json:"analysis"`
	Name     string          `json:"channel_name,omitempty"`
	Verified *bool           `json:"is_verified,omitempty"`
}

// ChannelDetail is the reporting view of a single channel.
type ChannelDetail struct {
	RankedChannel
	Videos []ChannelVideo `json:"videos"`
}
