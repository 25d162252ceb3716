package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/channel-ranker/internal/ranker"
)

// AnalysisStore persists append-only channel analyses.
type AnalysisStore struct {
	pool dbPool
}

// NewAnalysisStore constructs an AnalysisStore over an existing pool.
func NewAnalysisStore(pool dbPool) (*AnalysisStore, error) {
	if err := checkPool(pool); err != nil {
		return nil, err
	}
	return &AnalysisStore{pool: pool}, nil
}

const analysisColumns = `a.channel_url, a.subscriber_count, a.cycle_start_date, a.cycle_long_videos_count,
	a.long_videos_total, a.median_views, a.max_views, a.median_views_ratio, a.max_views_ratio,
	a.qualified, a.analysis_reason, a.analyzed_at`

// InsertAnalysis writes the row if absent. A channel without a raw profile
// yields ranker.ErrDataIntegrity.
func (s *AnalysisStore) InsertAnalysis(ctx context.Context, a ranker.ChannelAnalysis) (bool, error) {
	const query = `
INSERT INTO channels_analysis (
	channel_url, subscriber_count, cycle_start_date, cycle_long_videos_count, long_videos_total,
	median_views, max_views, median_views_ratio, max_views_ratio, qualified, analysis_reason, analyzed_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (channel_url) DO NOTHING`
	tag, err := s.pool.Exec(ctx, query,
		a.ChannelURL, a.Subscribers, a.CycleStart, a.CycleLongVideos, a.TotalLongVideos,
		a.MedianViews, a.MaxViews, a.MedianRatio, a.MaxRatio, a.Qualified, a.Reason, a.AnalyzedAt,
	)
	if err != nil {
		return false, wrapWriteError("insert channel analysis", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListAnalyses returns every analysis row ordered by channel.
func (s *AnalysisStore) ListAnalyses(ctx context.Context) ([]ranker.ChannelAnalysis, error) {
	query := `SELECT ` + analysisColumns + ` FROM channels_analysis a ORDER BY a.channel_url`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, wrapReadError("list channel analyses", err)
	}
	defer rows.Close()

	var out []ranker.ChannelAnalysis
	for rows.Next() {
		var a ranker.ChannelAnalysis
		if err := rows.Scan(analysisDest(&a)...); err != nil {
			return nil, fmt.Errorf("scan channel analysis: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channel analyses: %w", err)
	}
	return out, nil
}

func analysisDest(a *ranker.ChannelAnalysis) []any {
	return []any{
		&a.ChannelURL, &a.Subscribers, &a.CycleStart, &a.CycleLongVideos,
		&a.TotalLongVideos, &a.MedianViews, &a.MaxViews, &a.MedianRatio, &a.MaxRatio,
		&a.Qualified, &a.Reason, &a.AnalyzedAt,
	}
}
