// Package discovery executes search queries and records their results as raw
// video rows, one search run per query and locale.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/channel-ranker/internal/metrics"
	"github.com/JakeFAU/channel-ranker/internal/ranker"
	"github.com/JakeFAU/channel-ranker/internal/store"
)

const stageName = "discover"

// Config controls fan-out and throttling.
type Config struct {
	Concurrency int     `mapstructure:"concurrency"`
	RatePerSec  float64 `mapstructure:"rate_per_sec"`
	Burst       int     `mapstructure:"burst"`
	// SkipExecuted drops queries that already have a closed run in the locale.
	SkipExecuted bool `mapstructure:"skip_executed"`
}

// DefaultConfig returns conservative discovery settings.
func DefaultConfig() Config {
	return Config{Concurrency: 2, RatePerSec: 0.5, Burst: 1, SkipExecuted: true}
}

// Summary reports one discovery pass.
type Summary struct {
	Queries    int
	Skipped    int
	Failed     int
	Results    int
	Uncredited int
	Inserted   int
	Ignored    int
}

// Deps bundles collaborators.
type Deps struct {
	Runs   store.SearchRunRepository
	Videos store.VideoRepository
	Source ranker.SearchSource
	// Mode labels search runs and metrics, e.g. "headless" or "static".
	Mode   string
	Clock  ranker.Clock
	IDs    ranker.IDGenerator
	Logger *zap.Logger
}

// Runner fans queries out across goroutines.
type Runner struct {
	deps    Deps
	cfg     Config
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewRunner validates dependencies and applies config defaults.
func NewRunner(deps Deps, cfg Config) (*Runner, error) {
	switch {
	case deps.Runs == nil:
		return nil, errors.New("search run repository is required")
	case deps.Videos == nil:
		return nil, errors.New("video repository is required")
	case deps.Source == nil:
		return nil, errors.New("search source is required")
	case deps.Clock == nil:
		return nil, errors.New("clock is required")
	case deps.IDs == nil:
		return nil, errors.New("id generator is required")
	}
	if deps.Mode == "" {
		deps.Mode = "unknown"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	limit := rate.Limit(cfg.RatePerSec)
	if cfg.RatePerSec <= 0 {
		limit = rate.Inf
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		deps:    deps,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		logger:  logger,
	}, nil
}

// Run executes every query in the locale. A failed search leaves its run open
// and is counted; store failures abort the pass.
func (r *Runner) Run(ctx context.Context, queries []string, locale ranker.Locale) (Summary, error) {
	var summary Summary
	queries = dedupe(queries)
	summary.Queries = len(queries)
	if len(queries) == 0 {
		return summary, nil
	}

	if r.cfg.SkipExecuted {
		executed, err := r.deps.Runs.ExecutedQueries(ctx, locale, queries)
		if err != nil {
			return summary, fmt.Errorf("executed queries: %w", err)
		}
		pending := queries[:0]
		for _, q := range queries {
			if executed[q] {
				summary.Skipped++
				continue
			}
			pending = append(pending, q)
		}
		queries = pending
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for _, q := range queries {
		g.Go(func() error {
			res, err := r.runQuery(gctx, q, locale)
			mu.Lock()
			defer mu.Unlock()
			summary.Results += res.Results
			summary.Uncredited += res.Uncredited
			summary.Inserted += res.Inserted
			summary.Ignored += res.Ignored
			if err == nil {
				return nil
			}
			var searchErr *searchError
			if errors.As(err, &searchErr) && gctx.Err() == nil {
				summary.Failed++
				r.logger.Warn("search failed",
					zap.String("query", q),
					zap.String("locale", string(locale)),
					zap.Error(err),
				)
				return nil
			}
			return err
		})
	}
	err := g.Wait()

	metrics.ObserveStage(stageName, "inserted", summary.Inserted)
	metrics.ObserveStage(stageName, "ignored", summary.Ignored)
	metrics.ObserveStage(stageName, "failed", summary.Failed)
	r.logger.Info("discovery pass complete",
		zap.String("locale", string(locale)),
		zap.String("mode", r.deps.Mode),
		zap.Int("queries", summary.Queries),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Int("results", summary.Results),
		zap.Int("uncredited", summary.Uncredited),
		zap.Int("inserted", summary.Inserted),
		zap.Int("ignored", summary.Ignored),
	)
	if err != nil {
		return summary, fmt.Errorf("discover: %w", err)
	}
	return summary, nil
}

type queryResult struct {
	Results    int
	Uncredited int
	Inserted   int
	Ignored    int
}

type searchError struct{ err error }

func (e *searchError) Error() string { return "search: " + e.err.Error() }
func (e *searchError) Unwrap() error { return e.err }

func (r *Runner) runQuery(ctx context.Context, query string, locale ranker.Locale) (queryResult, error) {
	var res queryResult
	id, err := r.deps.IDs.NewID()
	if err != nil {
		return res, fmt.Errorf("search run id: %w", err)
	}
	run := ranker.SearchRun{
		ID:        id,
		Query:     query,
		Mode:      r.deps.Mode,
		Locale:    locale,
		StartedAt: r.deps.Clock.Now().UTC(),
	}
	if err := r.deps.Runs.CreateSearchRun(ctx, run); err != nil {
		return res, fmt.Errorf("create search run: %w", err)
	}

	if err := r.wait(ctx); err != nil {
		return res, err
	}
	items, err := r.deps.Source.Search(ctx, query, locale)
	if err != nil {
		return res, &searchError{err: err}
	}
	res.Results = len(items)

	now := r.deps.Clock.Now().UTC()
	raws := make([]ranker.RawVideo, 0, len(items))
	for _, item := range items {
		raw, ok := ToRawVideo(item, run, now)
		if !ok {
			res.Uncredited++
			continue
		}
		raws = append(raws, raw)
	}
	if len(raws) > 0 {
		ins, err := r.deps.Videos.InsertRawVideos(ctx, raws)
		if err != nil {
			return res, fmt.Errorf("insert raw videos: %w", err)
		}
		res.Inserted, res.Ignored = ins.Inserted, ins.Ignored
	}

	if err := r.deps.Runs.FinishSearchRun(ctx, run.ID, r.deps.Clock.Now().UTC()); err != nil {
		return res, fmt.Errorf("finish search run: %w", err)
	}
	r.logger.Debug("search run closed",
		zap.String("run_id", run.ID),
		zap.String("query", query),
		zap.Int("results", res.Results),
		zap.Int("inserted", res.Inserted),
	)
	return res, nil
}

func (r *Runner) wait(ctx context.Context) error {
	start := time.Now()
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObserveRateLimitDelay(r.deps.Mode, d)
	}
	return nil
}

// ToRawVideo maps a search result onto a raw row. Results credited to no
// channel are rejected.
func ToRawVideo(item ranker.SearchResult, run ranker.SearchRun, discoveredAt time.Time) (ranker.RawVideo, bool) {
	if item.VideoID == "" || len(item.Creators) == 0 || item.Creators[0].URL == "" {
		return ranker.RawVideo{}, false
	}
	return ranker.RawVideo{
		VideoID:       item.VideoID,
		SearchRunID:   run.ID,
		Query:         run.Query,
		Locale:        run.Locale,
		VideoURL:      "https://www.youtube.com/watch?v=" + item.VideoID,
		ChannelURL:    item.Creators[0].URL,
		ChannelName:   item.Creators[0].Name,
		ThumbnailURL:  "https://i.ytimg.com/vi/" + item.VideoID + "/hqdefault.jpg",
		DurationText:  item.DurationText,
		ViewsText:     item.ViewsText,
		PublishedText: item.PublishedText,
		VideoType:     item.VideoType,
		MultiCreator:  len(item.Creators) > 1,
		DiscoveredAt:  discoveredAt,
	}, true
}

func dedupe(queries []string) []string {
	seen := make(map[string]struct{}, len(queries))
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	return out
}
