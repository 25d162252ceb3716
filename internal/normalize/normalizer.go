package normalize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/channel-ranker/internal/metrics"
	"github.com/JakeFAU/channel-ranker/internal/ranker"
	"github.com/JakeFAU/channel-ranker/internal/store"
)

const stageName = "normalize"

// Summary reports one normalizer pass.
type Summary struct {
	Fetched  int
	Inserted int
	Ignored  int
	Passed   int
	Failed   int
}

// NormalizeRecord parses a raw record in its own locale and validates it.
// Parse failures become verdict reasons; they never abort the caller.
func NormalizeRecord(raw ranker.RawVideo, th Thresholds, now time.Time) ranker.NormalizedVideo {
	loc := raw.Locale
	if loc == "" {
		loc = ranker.LocaleEN
	}
	var fields Fields
	if secs, err := ParseDuration(raw.DurationText); err == nil {
		fields.DurationSeconds = &secs
	}
	if published, err := ParseDate(raw.PublishedText, loc, now); err == nil {
		fields.PublishedAt = &published
	}
	if views, err := ParseViewCount(raw.ViewsText, loc); err == nil {
		fields.Views = &views
	}
	verdict := Validate(fields, th, now)
	return ranker.NormalizedVideo{
		VideoID:         raw.VideoID,
		ChannelURL:      raw.ChannelURL,
		Query:           raw.Query,
		Views:           fields.Views,
		PublishedAt:     fields.PublishedAt,
		DurationSeconds: fields.DurationSeconds,
		Passed:          verdict.Passed,
		Reason:          verdict.Reason,
		NormalizedAt:    now.UTC(),
	}
}

// Normalizer is the batch stage turning videos_raw into videos_normalized.
type Normalizer struct {
	videos     store.VideoRepository
	clock      ranker.Clock
	thresholds Thresholds
	batchSize  int
	logger     *zap.Logger
}

// NewNormalizer wires a Normalizer. A non-positive batchSize defaults to 500.
func NewNormalizer(
	videos store.VideoRepository,
	clock ranker.Clock,
	th Thresholds,
	batchSize int,
	logger *zap.Logger,
) (*Normalizer, error) {
	if videos == nil {
		return nil, errors.New("video repository is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{videos: videos, clock: clock, thresholds: th, batchSize: batchSize, logger: logger}, nil
}

// Run normalizes up to limit pending raw records.
func (n *Normalizer) Run(ctx context.Context, limit int) (Summary, error) {
	var summary Summary
	raws, err := n.videos.ListUnnormalized(ctx, limit)
	if err != nil {
		return summary, fmt.Errorf("list unnormalized: %w", err)
	}
	summary.Fetched = len(raws)
	now := n.clock.Now()

	for start := 0; start < len(raws); start += n.batchSize {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("normalize: %w", err)
		}
		end := min(start+n.batchSize, len(raws))
		batch := make([]ranker.NormalizedVideo, 0, end-start)
		for _, raw := range raws[start:end] {
			rec := NormalizeRecord(raw, n.thresholds, now)
			if rec.Passed {
				summary.Passed++
			} else {
				summary.Failed++
				n.logger.Debug("video rejected",
					zap.String("video_id", rec.VideoID),
					zap.String("reason", rec.Reason),
				)
			}
			batch = append(batch, rec)
		}
		res, err := n.videos.InsertNormalized(ctx, batch)
		if err != nil {
			return summary, fmt.Errorf("insert normalized: %w", err)
		}
		summary.Inserted += res.Inserted
		summary.Ignored += res.Ignored
	}

	n.logger.Info("normalize finished",
		zap.Int("fetched", summary.Fetched),
		zap.Int("inserted", summary.Inserted),
		zap.Int("ignored", summary.Ignored),
		zap.Int("passed", summary.Passed),
		zap.Int("failed", summary.Failed),
	)
	metrics.ObserveStage(stageName, "passed", summary.Passed)
	metrics.ObserveStage(stageName, "failed", summary.Failed)
	metrics.ObserveStage(stageName, "ignored", summary.Ignored)
	return summary, nil
}
