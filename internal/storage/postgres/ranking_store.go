package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/channel-ranker/internal/ranker"
	"github.com/JakeFAU/channel-ranker/internal/store"
)

const (
	defaultRankingLimit = 100
	maxRankingLimit     = 1000
)

// RankingStore serves the read-only reporting view. It issues no writes.
type RankingStore struct {
	pool dbPool
}

// NewRankingStore constructs a RankingStore over an existing pool.
func NewRankingStore(pool dbPool) (*RankingStore, error) {
	if err := checkPool(pool); err != nil {
		return nil, err
	}
	return &RankingStore{pool: pool}, nil
}

const rankingSelect = `
SELECT s.channel_url, s.s_perf, s.s_peak, s.s_consistency, s.s_size, s.final_score, s.reason, s.scored_at,
	` + analysisColumns + `,
	COALESCE(r.channel_name, ''), r.is_verified
FROM channels_score s
JOIN channels_analysis a ON a.channel_url = s.channel_url
LEFT JOIN channels_raw r ON r.channel_url = s.channel_url`

// ListRankings returns channels by final score descending, ties by channel URL.
func (s *RankingStore) ListRankings(ctx context.Context, q store.RankingQuery) ([]ranker.RankedChannel, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultRankingLimit
	}
	if limit > maxRankingLimit {
		limit = maxRankingLimit
	}
	query := rankingSelect + `
WHERE ($1::boolean = FALSE OR a.qualified)
ORDER BY s.final_score DESC, s.channel_url
LIMIT $2`
	rows, err := s.pool.Query(ctx, query, q.QualifiedOnly, limit)
	if err != nil {
		return nil, wrapReadError("list rankings", err)
	}
	defer rows.Close()

	var out []ranker.RankedChannel
	for rows.Next() {
		var rc ranker.RankedChannel
		if err := rows.Scan(rankedDest(&rc)...); err != nil {
			return nil, fmt.Errorf("scan ranking: %w", err)
		}
		out = append(out, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rankings: %w", err)
	}
	return out, nil
}

// GetChannel returns one scored channel with its stored uploads.
func (s *RankingStore) GetChannel(ctx context.Context, channelURL string) (ranker.ChannelDetail, error) {
	var detail ranker.ChannelDetail
	query := rankingSelect + `
WHERE s.channel_url = $1`
	if err := s.pool.QueryRow(ctx, query, channelURL).Scan(rankedDest(&detail.RankedChannel)...); err != nil {
		return ranker.ChannelDetail{}, wrapReadError("get ranked channel", err)
	}
	videos, err := listChannelVideos(ctx, s.pool, channelURL)
	if err != nil {
		return ranker.ChannelDetail{}, err
	}
	detail.Videos = videos
	return detail, nil
}

// Ping checks connectivity for readiness probes.
func (s *RankingStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func rankedDest(rc *ranker.RankedChannel) []any {
	dest := []any{
		&rc.Score.ChannelURL, &rc.Score.Performance, &rc.Score.Peak, &rc.Score.Consistency,
		&rc.Score.Size, &rc.Score.Final, &rc.Score.Reason, &rc.Score.ScoredAt,
	}
	dest = append(dest, analysisDest(&rc.Analysis)...)
	return append(dest, &rc.Name, &rc.Verified)
}
