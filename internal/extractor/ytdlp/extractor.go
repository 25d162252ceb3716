// Package ytdlp extracts channel metadata by running the yt-dlp binary.
package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/channel-ranker/internal/ranker"
)

// DefaultPermanentMarkers are stderr fragments meaning the channel will never
// resolve, so retrying is pointless.
var DefaultPermanentMarkers = []string{
	"Failed to resolve url",
	"HTTP Error 404",
	"does the playlist exist",
	"This channel does not exist",
	"This account has been terminated",
	"channel is not available",
}

const maxStderr = 5000

// Config controls the extractor.
type Config struct {
	// Binary is the yt-dlp executable name or path.
	Binary           string   `mapstructure:"binary"`
	PermanentMarkers []string `mapstructure:"permanent_markers"`
}

// runFunc executes a command and returns its stdout and stderr.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, []byte, error)

// Extractor implements ranker.Extractor on top of yt-dlp.
type Extractor struct {
	binary  string
	markers []string
	run     runFunc
	now     func() time.Time
	logger  *zap.Logger
}

// New returns an Extractor that shells out to cfg.Binary.
func New(cfg Config, clock ranker.Clock, logger *zap.Logger) *Extractor {
	if cfg.Binary == "" {
		cfg.Binary = "yt-dlp"
	}
	markers := cfg.PermanentMarkers
	if len(markers) == 0 {
		markers = DefaultPermanentMarkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	now := time.Now
	if clock != nil {
		now = clock.Now
	}
	return &Extractor{binary: cfg.Binary, markers: markers, run: execRun, now: now, logger: logger}
}

func execRun(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	// #nosec G204 -- the binary comes from configuration and the URL is passed as a single argument.
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Args builds the yt-dlp argument list for a channel.
func Args(channelURL string, maxVideos int) []string {
	if maxVideos <= 0 {
		maxVideos = 1
	}
	return []string{
		"--dump-single-json",
		"--flat-playlist",
		"--extractor-args", "youtubetab:approximate_date",
		"--playlist-end", strconv.Itoa(maxVideos),
		"--skip-download",
		"--no-warnings",
		channelURL,
	}
}

// Extract runs yt-dlp and parses its dump. Failures are *ranker.ExtractError.
func (e *Extractor) Extract(ctx context.Context, channelURL string, maxVideos int) (ranker.Extraction, error) {
	if strings.TrimSpace(channelURL) == "" {
		return ranker.Extraction{}, &ranker.ExtractError{Permanent: true, Err: errors.New("channel url is required")}
	}
	stdout, stderr, err := e.run(ctx, e.binary, Args(channelURL, maxVideos)...)
	if err != nil {
		return ranker.Extraction{}, e.classify(ctx, channelURL, stdout, stderr, err)
	}
	out := bytes.TrimSpace(stdout)
	if len(out) == 0 {
		return ranker.Extraction{}, &ranker.ExtractError{ChannelURL: channelURL, Err: errors.New("yt-dlp produced empty output")}
	}
	extraction, err := Parse(channelURL, out, maxVideos, e.now())
	if err != nil {
		return ranker.Extraction{}, &ranker.ExtractError{ChannelURL: channelURL, Err: err}
	}
	e.logger.Debug("channel extracted",
		zap.String("channel_url", channelURL),
		zap.Int("videos", len(extraction.Videos)),
	)
	return extraction, nil
}

func (e *Extractor) classify(ctx context.Context, channelURL string, stdout, stderr []byte, runErr error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &ranker.ExtractError{ChannelURL: channelURL, Err: fmt.Errorf("yt-dlp: %w", ctxErr)}
	}
	detail := strings.TrimSpace(string(stderr))
	if detail == "" {
		detail = strings.TrimSpace(string(stdout))
	}
	if len(detail) > maxStderr {
		detail = detail[:maxStderr]
	}
	permanent := e.isPermanent(detail)
	if detail != "" {
		runErr = fmt.Errorf("%w: %s", runErr, detail)
	}
	return &ranker.ExtractError{ChannelURL: channelURL, Permanent: permanent, Err: fmt.Errorf("yt-dlp failed: %w", runErr)}
}

func (e *Extractor) isPermanent(detail string) bool {
	lower := strings.ToLower(detail)
	for _, m := range e.markers {
		if m != "" && strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

type dump struct {
	ChannelID            string          `json:"channel_id"`
	UploaderID           string          `json:"uploader_id"`
	Channel              string          `json:"channel"`
	Uploader             string          `json:"uploader"`
	SubscriberCount      json.RawMessage `json:"subscriber_count"`
	ChannelFollowerCount json.RawMessage `json:"channel_follower_count"`
	Verified             json.RawMessage `json:"verified"`
	Entries              []entry         `json:"entries"`
}

type entry struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	UploadDate       string          `json:"upload_date"`
	Timestamp        json.RawMessage `json:"timestamp"`
	ReleaseTimestamp json.RawMessage `json:"release_timestamp"`
	Duration         json.RawMessage `json:"duration"`
	ViewCount        json.RawMessage `json:"view_count"`
	Entries          []entry         `json:"entries"`
	// nested is set when the JSON carried an "entries" key, even an empty one.
	nested bool
}

func (e *entry) UnmarshalJSON(data []byte) error {
	type plain entry
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	_, p.nested = keys["entries"]
	*e = entry(p)
	return nil
}

// Parse converts a yt-dlp single-JSON dump into an Extraction. Nested Shorts
// and Live tabs are skipped and at most maxVideos uploads are kept.
func Parse(channelURL string, raw []byte, maxVideos int, extractedAt time.Time) (ranker.Extraction, error) {
	var d dump
	if err := json.Unmarshal(raw, &d); err != nil {
		return ranker.Extraction{}, fmt.Errorf("decode yt-dlp output: %w", err)
	}
	profile := ranker.ChannelProfile{
		ChannelURL:  channelURL,
		ChannelID:   firstNonEmpty(d.ChannelID, d.UploaderID),
		Name:        firstNonEmpty(d.Channel, d.Uploader),
		Subscribers: coerceInt(d.SubscriberCount),
		Verified:    coerceBool(d.Verified),
		ExtractedAt: extractedAt.UTC(),
	}
	if profile.Subscribers == nil {
		profile.Subscribers = coerceInt(d.ChannelFollowerCount)
	}

	if maxVideos <= 0 {
		maxVideos = 1
	}
	var videos []ranker.ChannelVideo
	for _, en := range flatten(d.Entries) {
		if len(videos) >= maxVideos {
			break
		}
		if en.ID == "" {
			continue
		}
		v := ranker.ChannelVideo{
			ChannelURL: channelURL,
			VideoID:    en.ID,
			UploadDate: uploadDate(en),
			Views:      coerceInt(en.ViewCount),
		}
		if dur := coerceInt(en.Duration); dur != nil {
			secs := int(*dur)
			v.DurationSeconds = &secs
		}
		videos = append(videos, v)
	}
	return ranker.Extraction{Profile: profile, Videos: videos, Raw: raw}, nil
}

func flatten(entries []entry) []entry {
	var out []entry
	for _, en := range entries {
		if en.nested {
			title := strings.ToLower(en.Title)
			if strings.Contains(title, "shorts") || strings.Contains(title, "live") {
				continue
			}
			out = append(out, flatten(en.Entries)...)
			continue
		}
		out = append(out, en)
	}
	return out
}

func uploadDate(en entry) *time.Time {
	if en.UploadDate != "" {
		if t, err := time.Parse("20060102", en.UploadDate); err == nil {
			return &t
		}
	}
	ts := coerceInt(en.Timestamp)
	if ts == nil {
		ts = coerceInt(en.ReleaseTimestamp)
	}
	if ts == nil {
		return nil
	}
	y, m, d := time.Unix(*ts, 0).UTC().Date()
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

// coerceInt accepts JSON numbers (integer or float) and numeric strings.
func coerceInt(raw json.RawMessage) *int64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return nil
		}
		n = json.Number(strings.TrimSpace(s))
	}
	if i, err := n.Int64(); err == nil {
		return &i
	}
	if f, err := n.Float64(); err == nil {
		i := int64(f)
		return &i
	}
	return nil
}

func coerceBool(raw json.RawMessage) *bool {
	var b bool
	if len(raw) == 0 || string(raw) == "null" || json.Unmarshal(raw, &b) != nil {
		return nil
	}
	return &b
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
