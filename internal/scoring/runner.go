package scoring

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/channel-ranker/internal/metrics"
	"github.com/JakeFAU/channel-ranker/internal/ranker"
	"github.com/JakeFAU/channel-ranker/internal/store"
)

const stageName = "score"

// Summary reports one scoring pass.
type Summary struct {
	Scored    int
	Qualified int
	Published int
}

// ScoredEvent is the payload published for each qualified channel.
type ScoredEvent struct {
	ChannelURL string              `json:"channel_url"`
	Score      ranker.ChannelScore `json:"score"`
}

// Runner re-scores every stored analysis.
type Runner struct {
	analyses  store.AnalysisRepository
	scores    store.ScoreRepository
	publisher ranker.Publisher
	clock     ranker.Clock
	cfg       Config
	logger    *zap.Logger
}

// NewRunner validates cfg and wires a Runner. publisher may be nil.
func NewRunner(
	analyses store.AnalysisRepository,
	scores store.ScoreRepository,
	publisher ranker.Publisher,
	clock ranker.Clock,
	cfg Config,
	logger *zap.Logger,
) (*Runner, error) {
	if analyses == nil || scores == nil {
		return nil, errors.New("scoring: analysis and score repositories are required")
	}
	if clock == nil {
		return nil, errors.New("scoring: clock is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		analyses:  analyses,
		scores:    scores,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Run scores all analyses and upserts the results in one batch.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	var summary Summary
	rows, err := r.analyses.ListAnalyses(ctx)
	if err != nil {
		return summary, fmt.Errorf("list analyses: %w", err)
	}
	now := r.clock.Now()
	scores := make([]ranker.ChannelScore, 0, len(rows))
	for _, a := range rows {
		scores = append(scores, Score(a, r.cfg, now))
	}
	if len(scores) == 0 {
		r.logger.Info("no analyses to score")
		return summary, nil
	}
	if err := r.scores.UpsertScores(ctx, scores); err != nil {
		return summary, fmt.Errorf("upsert scores: %w", err)
	}
	summary.Scored = len(scores)

	for _, s := range scores {
		if s.Reason != "" {
			continue
		}
		summary.Qualified++
		if r.publisher == nil {
			continue
		}
		if _, err := r.publisher.Publish(ctx, ranker.TopicChannelScored, ScoredEvent{ChannelURL: s.ChannelURL, Score: s}); err != nil {
			r.logger.Warn("failed to publish score", zap.String("channel_url", s.ChannelURL), zap.Error(err))
			continue
		}
		summary.Published++
	}

	r.logger.Info("scoring finished",
		zap.Int("scored", summary.Scored),
		zap.Int("qualified", summary.Qualified),
		zap.Int("published", summary.Published),
	)
	metrics.ObserveStage(stageName, "scored", summary.Scored)
	metrics.ObserveStage(stageName, "qualified", summary.Qualified)
	return summary, nil
}
