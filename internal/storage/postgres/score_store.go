package postgres

import (
	"context"
	"time"

	"github.com/JakeFAU/channel-ranker/internal/ranker"
)

// ScoreStore persists re-computable channel scores.
type ScoreStore struct {
	pool dbPool
}

// NewScoreStore constructs a ScoreStore over an existing pool.
func NewScoreStore(pool dbPool) (*ScoreStore, error) {
	if err := checkPool(pool); err != nil {
		return nil, err
	}
	return &ScoreStore{pool: pool}, nil
}

// UpsertScores overwrites any existing rows for the given channels.
func (s *ScoreStore) UpsertScores(ctx context.Context, scores []ranker.ChannelScore) error {
	unique := dedupeBy(scores, func(sc ranker.ChannelScore) string { return sc.ChannelURL })
	if len(unique) == 0 {
		return nil
	}
	n := len(unique)
	var (
		urls        = make([]string, n)
		finals      = make([]float64, n)
		perf        = make([]float64, n)
		peak        = make([]float64, n)
		consistency = make([]float64, n)
		size        = make([]float64, n)
		reasons     = make([]string, n)
		scoredAt    = make([]time.Time, n)
	)
	for i, sc := range unique {
		urls[i] = sc.ChannelURL
		finals[i] = sc.Final
		perf[i] = sc.Performance
		peak[i] = sc.Peak
		consistency[i] = sc.Consistency
		size[i] = sc.Size
		reasons[i] = sc.Reason
		scoredAt[i] = sc.ScoredAt
	}
	const query = `
INSERT INTO channels_score (channel_url, final_score, s_perf, s_peak, s_consistency, s_size, reason, scored_at)
SELECT * FROM unnest(
	$1::text[], $2::float8[], $3::float8[], $4::float8[], $5::float8[], $6::float8[], $7::text[], $8::timestamptz[]
)
ON CONFLICT (channel_url) DO UPDATE SET
	final_score = EXCLUDED.final_score,
	s_perf = EXCLUDED.s_perf,
	s_peak = EXCLUDED.s_peak,
	s_consistency = EXCLUDED.s_consistency,
	s_size = EXCLUDED.s_size,
	reason = EXCLUDED.reason,
	scored_at = EXCLUDED.scored_at`
	if _, err := s.pool.Exec(ctx, query, urls, finals, perf, peak, consistency, size, reasons, scoredAt); err != nil {
		return wrapWriteError("upsert channel scores", err)
	}
	return nil
}
