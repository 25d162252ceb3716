// Package enrichment runs the claim-driven extractor workers.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/channel-ranker/internal/archive"
	"github.com/JakeFAU/channel-ranker/internal/metrics"
	"github.com/JakeFAU/channel-ranker/internal/ranker"
	"github.com/JakeFAU/channel-ranker/internal/store"
)

const stage = string(ranker.StageEnrichment)

// Config controls Worker behavior.
type Config struct {
	Concurrency    int           `mapstructure:"concurrency"`
	BatchSize      int           `mapstructure:"batch_size"`
	MaxVideos      int           `mapstructure:"max_videos"`
	ExtractTimeout time.Duration `mapstructure:"extract_timeout"`
	MaxFailures    int           `mapstructure:"max_failures"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.MaxVideos <= 0 {
		c.MaxVideos = 25
	}
	if c.ExtractTimeout <= 0 {
		c.ExtractTimeout = 180 * time.Second
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 3
	}
	return c
}

// Summary counts channel outcomes.
type Summary struct {
	Claimed   int
	Succeeded int
	Transient int
	Permanent int
	Conflicts int
	Lost      int
}

func (s *Summary) add(o Summary) {
	s.Claimed += o.Claimed
	s.Succeeded += o.Succeeded
	s.Transient += o.Transient
	s.Permanent += o.Permanent
	s.Conflicts += o.Conflicts
	s.Lost += o.Lost
}

// EnrichedEvent is published after a channel's metadata is stored.
type EnrichedEvent struct {
	ChannelURL  string    `json:"channel_url"`
	Subscribers *int64    `json:"subscriber_count,omitempty"`
	Videos      int       `json:"videos"`
	ArchiveURI  string    `json:"archive_uri,omitempty"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// Deps groups the collaborators shared by all workers of a pool.
type Deps struct {
	Claims    store.ClaimRepository
	Channels  store.ChannelRepository
	Extractor ranker.Extractor
	Archive   *archive.Archiver
	Publisher ranker.Publisher
	Clock     ranker.Clock
	Logger    *zap.Logger
}

func (d Deps) validate() error {
	switch {
	case d.Claims == nil:
		return errors.New("enrichment: claim repository is required")
	case d.Claims.Stage() != ranker.StageEnrichment:
		return fmt.Errorf("enrichment: claim store is bound to stage %q", d.Claims.Stage())
	case d.Channels == nil:
		return errors.New("enrichment: channel repository is required")
	case d.Extractor == nil:
		return errors.New("enrichment: extractor is required")
	case d.Clock == nil:
		return errors.New("enrichment: clock is required")
	}
	return nil
}

// Worker processes one channel at a time: claim, extract, persist, complete.
type Worker struct {
	id     string
	deps   Deps
	cfg    Config
	retry  *ranker.ExponentialRetryPolicy
	sleep  func(context.Context, time.Duration) error
	logger *zap.Logger
}

// NewWorker constructs a Worker.
func NewWorker(id string, deps Deps, cfg Config) (*Worker, error) {
	if id == "" {
		return nil, errors.New("enrichment: worker id is required")
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:     id,
		deps:   deps,
		cfg:    cfg,
		retry:  ranker.NewExponentialRetryPolicy(cfg.MaxFailures, cfg.BackoffBase, cfg.BackoffMax),
		sleep:  sleepCtx,
		logger: logger.With(zap.String("worker_id", id)),
	}, nil
}

// ID returns the worker's claim identity.
func (w *Worker) ID() string { return w.id }

// Run drains the candidate list. It returns when no candidates remain, when a
// whole batch made no progress, or when ctx ends.
func (w *Worker) Run(ctx context.Context) (Summary, error) {
	var summary Summary
	for {
		if err := ctx.Err(); err != nil {
			return summary, nil
		}
		candidates, err := w.deps.Claims.ListCandidates(ctx, w.cfg.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return summary, nil
			}
			return summary, fmt.Errorf("list enrichment candidates: %w", err)
		}
		if len(candidates) == 0 {
			return summary, nil
		}

		progressed := false
		for _, channelURL := range candidates {
			if ctx.Err() != nil {
				return summary, nil
			}
			outcome, err := w.processChannel(ctx, channelURL)
			summary.add(outcome)
			if err != nil {
				return summary, err
			}
			if outcome.Conflicts == 0 {
				progressed = true
			}
		}
		if !progressed {
			w.logger.Debug("no claimable candidates left")
			return summary, nil
		}
	}
}

func (w *Worker) processChannel(ctx context.Context, channelURL string) (Summary, error) {
	var out Summary
	logger := w.logger.With(zap.String("channel_url", channelURL))

	claim, err := w.deps.Claims.Claim(ctx, channelURL, w.id)
	if err != nil {
		if errors.Is(err, ranker.ErrClaimConflict) {
			metrics.ObserveClaim(stage, "conflict")
			logger.Debug("channel claimed elsewhere")
			out.Conflicts++
			return out, nil
		}
		if ctx.Err() != nil {
			return out, nil
		}
		return out, fmt.Errorf("claim %s: %w", channelURL, err)
	}
	metrics.ObserveClaim(stage, "acquired")
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	out.Claimed++

	extraction, err := w.extract(ctx, channelURL)
	if err != nil {
		return w.handleFailure(ctx, claim, err, out)
	}

	uri, err := w.persist(ctx, channelURL, extraction)
	if err != nil {
		// Store writes failing mid-channel are retried like a transient extract failure.
		return w.handleFailure(ctx, claim, &ranker.ExtractError{ChannelURL: channelURL, Err: err}, out)
	}

	if err := w.complete(ctx, channelURL, ranker.ProcessedSuccess, &out); err != nil {
		return out, err
	}
	out.Succeeded++
	metrics.ObserveStage(stage, "success", 1)
	logger.Info("channel enriched", zap.Int("videos", len(extraction.Videos)))
	w.publish(ctx, EnrichedEvent{
		ChannelURL:  channelURL,
		Subscribers: extraction.Profile.Subscribers,
		Videos:      len(extraction.Videos),
		ArchiveURI:  uri,
		ExtractedAt: extraction.Profile.ExtractedAt,
	})
	return out, nil
}

func (w *Worker) extract(ctx context.Context, channelURL string) (ranker.Extraction, error) {
	extractCtx, cancel := context.WithTimeout(ctx, w.cfg.ExtractTimeout)
	defer cancel()

	start := time.Now()
	extraction, err := w.deps.Extractor.Extract(extractCtx, channelURL, w.cfg.MaxVideos)
	result := "ok"
	switch {
	case err == nil:
	case ranker.IsPermanent(err):
		result = "permanent"
	case errors.Is(err, context.DeadlineExceeded):
		result = "timeout"
	default:
		result = "transient"
	}
	metrics.ObserveExtract(result, time.Since(start))
	if err != nil {
		return ranker.Extraction{}, err
	}
	if extraction.Profile.ChannelURL == "" {
		extraction.Profile.ChannelURL = channelURL
	}
	if extraction.Profile.ExtractedAt.IsZero() {
		extraction.Profile.ExtractedAt = w.deps.Clock.Now().UTC()
	}
	return extraction, nil
}

func (w *Worker) persist(ctx context.Context, channelURL string, extraction ranker.Extraction) (string, error) {
	if err := w.deps.Channels.UpsertProfile(ctx, extraction.Profile); err != nil {
		return "", fmt.Errorf("upsert profile: %w", err)
	}
	if err := w.deps.Channels.UpsertVideos(ctx, channelURL, extraction.Videos); err != nil {
		return "", fmt.Errorf("upsert videos: %w", err)
	}
	if len(extraction.Raw) == 0 {
		return "", nil
	}
	uri, err := w.deps.Archive.Put(ctx, channelURL, extraction.Profile.ExtractedAt, extraction.Raw)
	if err != nil {
		w.logger.Warn("archive raw dump failed", zap.String("channel_url", channelURL), zap.Error(err))
		return "", nil
	}
	return uri, nil
}

// handleFailure writes a failed marker for permanent errors and exhausted
// budgets; otherwise it releases the claim and backs off.
func (w *Worker) handleFailure(ctx context.Context, claim ranker.Claim, cause error, out Summary) (Summary, error) {
	channelURL := claim.ChannelURL
	logger := w.logger.With(zap.String("channel_url", channelURL))
	// Use a fresh context so shutdown still frees the claim.
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if ctx.Err() != nil {
		if _, err := w.deps.Claims.Release(cleanupCtx, channelURL, w.id, false); err != nil {
			logger.Warn("release on shutdown failed", zap.Error(err))
		}
		return out, nil
	}

	attempt := claim.Failures + 1
	if w.retry.ShouldRetry(cause, attempt) {
		failures, err := w.deps.Claims.Release(cleanupCtx, channelURL, w.id, true)
		if err != nil {
			return out, fmt.Errorf("release %s: %w", channelURL, err)
		}
		out.Transient++
		metrics.ObserveStage(stage, "transient", 1)
		logger.Warn("transient enrichment failure",
			zap.Int("failures", failures),
			zap.Int("max_failures", w.retry.MaxFailures()),
			zap.Error(cause),
		)
		_ = w.sleep(ctx, w.retry.Backoff(failures))
		return out, nil
	}

	if err := w.complete(cleanupCtx, channelURL, ranker.ProcessedFailed, &out); err != nil {
		return out, err
	}
	out.Permanent++
	metrics.ObserveStage(stage, "permanent", 1)
	logger.Warn("channel marked failed",
		zap.Bool("permanent_error", ranker.IsPermanent(cause)),
		zap.Int("failures", attempt),
		zap.Error(cause),
	)
	return out, nil
}

func (w *Worker) complete(ctx context.Context, channelURL string, status ranker.ProcessedStatus, out *Summary) error {
	err := w.deps.Claims.Complete(ctx, channelURL, w.id, status)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ranker.ErrClaimLost):
		// The marker is written regardless of who now holds the claim.
		out.Lost++
		metrics.ObserveClaim(stage, "lost")
		w.logger.Warn("claim lost before completion", zap.String("channel_url", channelURL))
		return nil
	default:
		return fmt.Errorf("complete %s: %w", channelURL, err)
	}
}

func (w *Worker) publish(ctx context.Context, event EnrichedEvent) {
	if w.deps.Publisher == nil {
		return
	}
	if _, err := w.deps.Publisher.Publish(ctx, ranker.TopicChannelEnriched, event); err != nil {
		w.logger.Warn("publish enriched event failed", zap.String("channel_url", event.ChannelURL), zap.Error(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
