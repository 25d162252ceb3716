package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/channel-ranker/internal/ranker"
)

const testChannel = "https://www.youtube.com/@docs"

func newClaimStore(t *testing.T, stage ranker.Stage) (*ClaimStore, pgxmock.PgxPoolIface, time.Time) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s, err := NewClaimStore(mock, stage, 30*time.Minute, fixedClock{now: now})
	require.NoError(t, err)
	return s, mock, now
}

func TestNewClaimStoreValidates(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewClaimStore(mock, ranker.Stage("scoring"), time.Minute, fixedClock{})
	require.Error(t, err)
	_, err = NewClaimStore(mock, ranker.StageEnrichment, 0, fixedClock{})
	require.Error(t, err)
	_, err = NewClaimStore(nil, ranker.StageEnrichment, time.Minute, fixedClock{})
	require.Error(t, err)
}

func TestClaimSucceedsWhenAbsentOrStale(t *testing.T) {
	t.Parallel()

	s, mock, now := newClaimStore(t, ranker.StageEnrichment)
	mock.ExpectQuery("INSERT INTO channel_claims").
		WithArgs("enrichment", testChannel, "worker-a", now, now.Add(-30*time.Minute)).
		WillReturnRows(mock.NewRows([]string{"failure_count"}).AddRow(2))

	claim, err := s.Claim(context.Background(), testChannel, "worker-a")
	require.NoError(t, err)
	require.Equal(t, ranker.StageEnrichment, claim.Stage)
	require.Equal(t, "worker-a", claim.WorkerID)
	require.Equal(t, 2, claim.Failures)
	require.Equal(t, now, claim.ClaimedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimConflictWhenLiveClaimExists(t *testing.T) {
	t.Parallel()

	s, mock, now := newClaimStore(t, ranker.StageEnrichment)
	mock.ExpectQuery("INSERT INTO channel_claims").
		WithArgs("enrichment", testChannel, "worker-b", now, now.Add(-30*time.Minute)).
		WillReturnRows(mock.NewRows([]string{"failure_count"}))

	_, err := s.Claim(context.Background(), testChannel, "worker-b")
	require.ErrorIs(t, err, ranker.ErrClaimConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimGuardsAgainstDoneChannels(t *testing.T) {
	t.Parallel()

	enrich, _, _ := newClaimStore(t, ranker.StageEnrichment)
	analysis, _, _ := newClaimStore(t, ranker.StageAnalysis)

	require.Contains(t, enrich.queries.claim, "NOT EXISTS (SELECT 1 FROM channels_processed")
	require.Contains(t, enrich.queries.candidates, "NOT EXISTS (SELECT 1 FROM channels_processed")
	require.Contains(t, analysis.queries.claim, "NOT EXISTS (SELECT 1 FROM channels_analysis")
	require.Contains(t, analysis.queries.candidates, "NOT EXISTS (SELECT 1 FROM channels_analysis")
	for _, q := range []string{enrich.queries.claim, analysis.queries.claim} {
		require.Contains(t, q, "ON CONFLICT (stage, channel_url) DO UPDATE")
		require.Contains(t, q, "channel_claims.claimed_at IS NULL OR channel_claims.claimed_at < $5")
	}
}

func TestListCandidatesUsesStaleCutoff(t *testing.T) {
	t.Parallel()

	s, mock, now := newClaimStore(t, ranker.StageEnrichment)
	mock.ExpectQuery("SELECT n.channel_url").
		WithArgs("enrichment", now.Add(-30*time.Minute), 10).
		WillReturnRows(mock.NewRows([]string{"channel_url"}).
			AddRow("https://www.youtube.com/@a").
			AddRow("https://www.youtube.com/@b"))

	got, err := s.ListCandidates(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, []string{"https://www.youtube.com/@a", "https://www.youtube.com/@b"}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteWritesMarkerAndDeletesClaim(t *testing.T) {
	t.Parallel()

	s, mock, now := newClaimStore(t, ranker.StageEnrichment)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO channels_processed").
		WithArgs(testChannel, now, "success").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM channel_claims").
		WithArgs("enrichment", testChannel, "worker-a").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	require.NoError(t, s.Complete(context.Background(), testChannel, "worker-a", ranker.ProcessedSuccess))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteReportsLostClaim(t *testing.T) {
	t.Parallel()

	s, mock, now := newClaimStore(t, ranker.StageEnrichment)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO channels_processed").
		WithArgs(testChannel, now, "failed").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec("DELETE FROM channel_claims").
		WithArgs("enrichment", testChannel, "worker-a").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCommit()

	err := s.Complete(context.Background(), testChannel, "worker-a", ranker.ProcessedFailed)
	require.ErrorIs(t, err, ranker.ErrClaimLost)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteRollsBackOnError(t *testing.T) {
	t.Parallel()

	s, mock, now := newClaimStore(t, ranker.StageEnrichment)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO channels_processed").
		WithArgs(testChannel, now, "success").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := s.Complete(context.Background(), testChannel, "worker-a", ranker.ProcessedSuccess)
	require.ErrorContains(t, err, "insert processed marker")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteRejectsAnalysisStage(t *testing.T) {
	t.Parallel()

	s, _, _ := newClaimStore(t, ranker.StageAnalysis)
	require.Error(t, s.Complete(context.Background(), testChannel, "worker-a", ranker.ProcessedSuccess))
}

func TestReleaseIncrementsFailureCounter(t *testing.T) {
	t.Parallel()

	s, mock, _ := newClaimStore(t, ranker.StageEnrichment)
	mock.ExpectQuery("UPDATE channel_claims").
		WithArgs("enrichment", testChannel, "worker-a", true).
		WillReturnRows(mock.NewRows([]string{"failure_count"}).AddRow(3))

	failures, err := s.Release(context.Background(), testChannel, "worker-a", true)
	require.NoError(t, err)
	require.Equal(t, 3, failures)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseLostClaim(t *testing.T) {
	t.Parallel()

	s, mock, _ := newClaimStore(t, ranker.StageEnrichment)
	mock.ExpectQuery("UPDATE channel_claims").
		WithArgs("enrichment", testChannel, "worker-a", false).
		WillReturnRows(mock.NewRows([]string{"failure_count"}))

	_, err := s.Release(context.Background(), testChannel, "worker-a", false)
	require.ErrorIs(t, err, ranker.ErrClaimLost)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDropDeletesClaim(t *testing.T) {
	t.Parallel()

	s, mock, _ := newClaimStore(t, ranker.StageAnalysis)
	mock.ExpectExec("DELETE FROM channel_claims").
		WithArgs("analysis", testChannel, "worker-a").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, s.Drop(context.Background(), testChannel, "worker-a"))
	require.NoError(t, mock.ExpectationsWereMet())
}
