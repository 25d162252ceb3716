package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/channel-ranker/internal/ranker"
	"github.com/JakeFAU/channel-ranker/internal/store"
)

// SearchRunStore persists discovery runs.
type SearchRunStore struct {
	pool dbPool
}

// NewSearchRunStore constructs a SearchRunStore over an existing pool.
func NewSearchRunStore(pool dbPool) (*SearchRunStore, error) {
	if err := checkPool(pool); err != nil {
		return nil, err
	}
	return &SearchRunStore{pool: pool}, nil
}

// CreateSearchRun inserts a new open run.
func (s *SearchRunStore) CreateSearchRun(ctx context.Context, run ranker.SearchRun) error {
	if run.ID == "" {
		return fmt.Errorf("search run id is required")
	}
	const query = `
INSERT INTO search_runs (id, query, mode, locale, started_at)
VALUES ($1::uuid, $2, $3, $4, $5)`
	if _, err := s.pool.Exec(ctx, query, run.ID, run.Query, run.Mode, string(run.Locale), run.StartedAt); err != nil {
		return wrapWriteError("insert search run", err)
	}
	return nil
}

// FinishSearchRun sets finished_at once. A missing or already closed run yields store.ErrNotFound.
func (s *SearchRunStore) FinishSearchRun(ctx context.Context, id string, finishedAt time.Time) error {
	const query = `
UPDATE search_runs
SET finished_at = $2
WHERE id = $1::uuid AND finished_at IS NULL`
	tag, err := s.pool.Exec(ctx, query, id, finishedAt)
	if err != nil {
		return wrapWriteError("finish search run", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish search run %s: open run %w", id, store.ErrNotFound)
	}
	return nil
}

// ExecutedQueries returns which of the given queries already have a closed run in the locale.
func (s *SearchRunStore) ExecutedQueries(
	ctx context.Context,
	locale ranker.Locale,
	queries []string,
) (map[string]bool, error) {
	out := make(map[string]bool, len(queries))
	if len(queries) == 0 {
		return out, nil
	}
	const query = `
SELECT DISTINCT query
FROM search_runs
WHERE locale = $1 AND finished_at IS NOT NULL AND query = ANY($2::text[])`
	rows, err := s.pool.Query(ctx, query, string(locale), queries)
	if err != nil {
		return nil, wrapReadError("list executed queries", err)
	}
	defer rows.Close()
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scan executed query: %w", err)
		}
		out[q] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executed queries: %w", err)
	}
	return out, nil
}
