package analysis

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/channel-ranker/internal/metrics"
	"github.com/JakeFAU/channel-ranker/internal/ranker"
	"github.com/JakeFAU/channel-ranker/internal/store"
)

// Summary reports one analysis pass.
type Summary struct {
	Candidates      int
	Analyzed        int
	Qualified       int
	Duplicates      int
	Conflicts       int
	IntegrityErrors int
}

// Runner claims enriched channels and records their analysis.
type Runner struct {
	claims   store.ClaimRepository
	channels store.ChannelRepository
	analyses store.AnalysisRepository
	clock    ranker.Clock
	workerID string
	cfg      Config
	logger   *zap.Logger
}

// RunnerDeps groups the Runner's collaborators.
type RunnerDeps struct {
	Claims   store.ClaimRepository
	Channels store.ChannelRepository
	Analyses store.AnalysisRepository
	Clock    ranker.Clock
	WorkerID string
	Logger   *zap.Logger
}

// NewRunner validates deps and returns a Runner.
func NewRunner(deps RunnerDeps, cfg Config) (*Runner, error) {
	if deps.Claims == nil || deps.Channels == nil || deps.Analyses == nil {
		return nil, errors.New("analysis: claims, channels and analyses repositories are required")
	}
	if deps.Claims.Stage() != ranker.StageAnalysis {
		return nil, fmt.Errorf("analysis: claim store is bound to stage %q", deps.Claims.Stage())
	}
	if deps.Clock == nil {
		return nil, errors.New("analysis: clock is required")
	}
	if deps.WorkerID == "" {
		return nil, errors.New("analysis: worker id is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		claims:   deps.Claims,
		channels: deps.Channels,
		analyses: deps.Analyses,
		clock:    deps.Clock,
		workerID: deps.WorkerID,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Run analyzes up to limit pending channels. Integrity failures skip the
// channel; store failures abort the pass.
func (r *Runner) Run(ctx context.Context, limit int) (Summary, error) {
	var summary Summary
	candidates, err := r.claims.ListCandidates(ctx, limit)
	if err != nil {
		return summary, fmt.Errorf("list analysis candidates: %w", err)
	}
	summary.Candidates = len(candidates)

	for _, channelURL := range candidates {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("analysis: %w", err)
		}
		if err := r.analyzeOne(ctx, channelURL, &summary); err != nil {
			return summary, err
		}
	}

	r.logger.Info("analysis finished",
		zap.Int("candidates", summary.Candidates),
		zap.Int("analyzed", summary.Analyzed),
		zap.Int("qualified", summary.Qualified),
		zap.Int("conflicts", summary.Conflicts),
		zap.Int("integrity_errors", summary.IntegrityErrors),
	)
	metrics.ObserveStage(string(ranker.StageAnalysis), "analyzed", summary.Analyzed)
	metrics.ObserveStage(string(ranker.StageAnalysis), "qualified", summary.Qualified)
	metrics.ObserveStage(string(ranker.StageAnalysis), "integrity_error", summary.IntegrityErrors)
	return summary, nil
}

func (r *Runner) analyzeOne(ctx context.Context, channelURL string, summary *Summary) error {
	logger := r.logger.With(zap.String("channel_url", channelURL))

	if _, err := r.claims.Claim(ctx, channelURL, r.workerID); err != nil {
		if errors.Is(err, ranker.ErrClaimConflict) {
			summary.Conflicts++
			metrics.ObserveClaim(string(ranker.StageAnalysis), "conflict")
			logger.Debug("channel already claimed")
			return nil
		}
		return fmt.Errorf("claim %s: %w", channelURL, err)
	}
	metrics.ObserveClaim(string(ranker.StageAnalysis), "acquired")

	result, err := r.compute(ctx, channelURL)
	if err == nil {
		var inserted bool
		inserted, err = r.analyses.InsertAnalysis(ctx, result)
		if err == nil {
			if inserted {
				summary.Analyzed++
				if result.Qualified {
					summary.Qualified++
				}
			} else {
				summary.Duplicates++
			}
			if dropErr := r.claims.Drop(ctx, channelURL, r.workerID); dropErr != nil {
				logger.Warn("failed to drop analysis claim", zap.Error(dropErr))
			}
			logger.Debug("channel analyzed",
				zap.Bool("qualified", result.Qualified),
				zap.String("reason", result.Reason),
			)
			return nil
		}
	}

	if _, relErr := r.claims.Release(ctx, channelURL, r.workerID, false); relErr != nil {
		logger.Warn("failed to release analysis claim", zap.Error(relErr))
	}
	if errors.Is(err, ranker.ErrDataIntegrity) {
		summary.IntegrityErrors++
		logger.Warn("skipping channel with inconsistent data", zap.Error(err))
		return nil
	}
	return fmt.Errorf("analyze %s: %w", channelURL, err)
}

func (r *Runner) compute(ctx context.Context, channelURL string) (ranker.ChannelAnalysis, error) {
	profile, err := r.channels.GetProfile(ctx, channelURL)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ranker.ChannelAnalysis{}, fmt.Errorf("profile missing: %w", ranker.ErrDataIntegrity)
		}
		return ranker.ChannelAnalysis{}, fmt.Errorf("load profile: %w", err)
	}
	videos, err := r.channels.ListVideos(ctx, channelURL)
	if err != nil {
		return ranker.ChannelAnalysis{}, fmt.Errorf("load videos: %w", err)
	}
	result := Analyze(profile, videos, r.cfg)
	result.AnalyzedAt = r.clock.Now().UTC()
	return result, nil
}
