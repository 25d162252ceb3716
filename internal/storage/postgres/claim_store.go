package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/channel-ranker/internal/ranker"
)

// stageQueries holds the statements that differ between claimable stages.
type stageQueries struct {
	candidates string
	claim      string
}

// The done-marker guard lives inside the claim statement so a finished
// channel can never be re-claimed, even by a worker holding a stale list.
var claimQueries = map[ranker.Stage]stageQueries{
	ranker.StageEnrichment: {
		candidates: `
SELECT n.channel_url
FROM videos_normalized n
WHERE n.validation_passed
	AND n.channel_url IS NOT NULL AND n.channel_url <> ''
	AND NOT EXISTS (SELECT 1 FROM channels_processed p WHERE p.channel_url = n.channel_url)
	AND NOT EXISTS (
		SELECT 1 FROM channel_claims c
		WHERE c.stage = $1 AND c.channel_url = n.channel_url
			AND c.claimed_at IS NOT NULL AND c.claimed_at >= $2
	)
GROUP BY n.channel_url
ORDER BY MIN(n.normalized_at), n.channel_url
LIMIT $3`,
		claim: `
INSERT INTO channel_claims (stage, channel_url, worker_id, claimed_at)
SELECT $1::text, $2::text, $3::text, $4::timestamptz
WHERE NOT EXISTS (SELECT 1 FROM channels_processed d WHERE d.channel_url = $2::text)
ON CONFLICT (stage, channel_url) DO UPDATE
SET worker_id = EXCLUDED.worker_id, claimed_at = EXCLUDED.claimed_at
WHERE channel_claims.claimed_at IS NULL OR channel_claims.claimed_at < $5
RETURNING failure_count`,
	},
	ranker.StageAnalysis: {
		candidates: `
SELECT p.channel_url
FROM channels_processed p
WHERE p.status = 'success'
	AND NOT EXISTS (SELECT 1 FROM channels_analysis a WHERE a.channel_url = p.channel_url)
	AND NOT EXISTS (
		SELECT 1 FROM channel_claims c
		WHERE c.stage = $1 AND c.channel_url = p.channel_url
			AND c.claimed_at IS NOT NULL AND c.claimed_at >= $2
	)
ORDER BY p.processed_at, p.channel_url
LIMIT $3`,
		claim: `
INSERT INTO channel_claims (stage, channel_url, worker_id, claimed_at)
SELECT $1::text, $2::text, $3::text, $4::timestamptz
WHERE NOT EXISTS (SELECT 1 FROM channels_analysis d WHERE d.channel_url = $2::text)
ON CONFLICT (stage, channel_url) DO UPDATE
SET worker_id = EXCLUDED.worker_id, claimed_at = EXCLUDED.claimed_at
WHERE channel_claims.claimed_at IS NULL OR channel_claims.claimed_at < $5
RETURNING failure_count`,
	},
}

// ClaimStore implements store.ClaimRepository for one stage.
type ClaimStore struct {
	pool       dbPool
	stage      ranker.Stage
	staleAfter time.Duration
	clock      ranker.Clock
	queries    stageQueries
}

// NewClaimStore builds a ClaimStore. Claims older than staleAfter are reclaimable.
func NewClaimStore(pool dbPool, stage ranker.Stage, staleAfter time.Duration, clock ranker.Clock) (*ClaimStore, error) {
	if err := checkPool(pool); err != nil {
		return nil, err
	}
	queries, ok := claimQueries[stage]
	if !ok {
		return nil, fmt.Errorf("unknown claim stage %q", stage)
	}
	if staleAfter <= 0 {
		return nil, fmt.Errorf("stale claim threshold must be > 0")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	return &ClaimStore{
		pool:       pool,
		stage:      stage,
		staleAfter: staleAfter,
		clock:      clock,
		queries:    queries,
	}, nil
}

// Stage returns the stage this store coordinates.
func (s *ClaimStore) Stage() ranker.Stage {
	return s.stage
}

// ListCandidates returns eligible channels in a deterministic order.
func (s *ClaimStore) ListCandidates(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	cutoff := s.clock.Now().Add(-s.staleAfter)
	rows, err := s.pool.Query(ctx, s.queries.candidates, string(s.stage), cutoff, limit)
	if err != nil {
		return nil, wrapReadError("list claim candidates", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var channelURL string
		if err := rows.Scan(&channelURL); err != nil {
			return nil, fmt.Errorf("scan claim candidate: %w", err)
		}
		out = append(out, channelURL)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claim candidates: %w", err)
	}
	return out, nil
}

// Claim atomically inserts a claim, or replaces a released or stale one.
func (s *ClaimStore) Claim(ctx context.Context, channelURL, workerID string) (ranker.Claim, error) {
	if channelURL == "" || workerID == "" {
		return ranker.Claim{}, fmt.Errorf("channel url and worker id are required")
	}
	now := s.clock.Now()
	cutoff := now.Add(-s.staleAfter)
	var failures int
	err := s.pool.QueryRow(ctx, s.queries.claim, string(s.stage), channelURL, workerID, now, cutoff).Scan(&failures)
	if errors.Is(err, pgx.ErrNoRows) {
		return ranker.Claim{}, ranker.ErrClaimConflict
	}
	if err != nil {
		return ranker.Claim{}, wrapWriteError("claim channel", err)
	}
	return ranker.Claim{
		Stage:      s.stage,
		ChannelURL: channelURL,
		WorkerID:   workerID,
		ClaimedAt:  now,
		Failures:   failures,
	}, nil
}

// Complete writes the processed marker and removes the claim in one transaction.
// The marker is written even when the claim was lost, and ErrClaimLost is returned.
func (s *ClaimStore) Complete(
	ctx context.Context,
	channelURL, workerID string,
	status ranker.ProcessedStatus,
) (err error) {
	if s.stage != ranker.StageEnrichment {
		return fmt.Errorf("stage %s has no processed marker", s.stage)
	}
	if status != ranker.ProcessedSuccess && status != ranker.ProcessedFailed {
		return fmt.Errorf("invalid processed status %q", status)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin complete: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	const markQuery = `
INSERT INTO channels_processed (channel_url, processed_at, status)
VALUES ($1, $2, $3)
ON CONFLICT (channel_url) DO NOTHING`
	if _, err = tx.Exec(ctx, markQuery, channelURL, s.clock.Now(), string(status)); err != nil {
		return wrapWriteError("insert processed marker", err)
	}

	const deleteQuery = `
DELETE FROM channel_claims
WHERE stage = $1 AND channel_url = $2 AND worker_id = $3`
	tag, err := tx.Exec(ctx, deleteQuery, string(s.stage), channelURL, workerID)
	if err != nil {
		return wrapWriteError("delete claim", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit complete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ranker.ErrClaimLost
	}
	return nil
}

// Release frees the claim without a marker. A transient release increments the
// persisted failure counter, which is returned.
func (s *ClaimStore) Release(ctx context.Context, channelURL, workerID string, transient bool) (int, error) {
	const query = `
UPDATE channel_claims
SET worker_id = NULL,
	claimed_at = NULL,
	failure_count = failure_count + CASE WHEN $4 THEN 1 ELSE 0 END
WHERE stage = $1 AND channel_url = $2 AND worker_id = $3
RETURNING failure_count`
	var failures int
	err := s.pool.QueryRow(ctx, query, string(s.stage), channelURL, workerID, transient).Scan(&failures)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ranker.ErrClaimLost
	}
	if err != nil {
		return 0, wrapWriteError("release claim", err)
	}
	return failures, nil
}

// Drop deletes the claim row, counter included.
func (s *ClaimStore) Drop(ctx context.Context, channelURL, workerID string) error {
	const query = `
DELETE FROM channel_claims
WHERE stage = $1 AND channel_url = $2 AND worker_id = $3`
	tag, err := s.pool.Exec(ctx, query, string(s.stage), channelURL, workerID)
	if err != nil {
		return wrapWriteError("drop claim", err)
	}
	if tag.RowsAffected() == 0 {
		return ranker.ErrClaimLost
	}
	return nil
}
