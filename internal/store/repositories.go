package store

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/channel-ranker/internal/ranker"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// InsertResult reports the outcome of a batch insert-if-absent.
type InsertResult struct {
	// Inserted counts rows written by this call.
	Inserted int
	// Ignored counts rows that already existed, including in-batch duplicates.
	Ignored int
}

// RankingQuery filters the reporting view.
type RankingQuery struct {
	// Limit caps the number of rows returned; zero means the store default.
	Limit int
	// QualifiedOnly drops channels whose analysis did not qualify.
	QualifiedOnly bool
}

// SearchRunRepository persists discovery runs.
type SearchRunRepository interface {
	CreateSearchRun(ctx context.Context, run ranker.SearchRun) error
	// FinishSearchRun closes an open run. Closed runs are immutable.
	FinishSearchRun(ctx context.Context, id string, finishedAt time.Time) error
	// ExecutedQueries returns the subset of queries with a closed run in the locale.
	ExecutedQueries(ctx context.Context, locale ranker.Locale, queries []string) (map[string]bool, error)
}

// VideoRepository persists raw and normalized search results.
type VideoRepository interface {
	InsertRawVideos(ctx context.Context, videos []ranker.RawVideo) (InsertResult, error)
	// ListUnnormalized returns raw rows with no normalized counterpart.
	ListUnnormalized(ctx context.Context, limit int) ([]ranker.RawVideo, error)
	InsertNormalized(ctx context.Context, videos []ranker.NormalizedVideo) (InsertResult, error)
}

// ChannelRepository persists extractor output.
type ChannelRepository interface {
	UpsertProfile(ctx context.Context, profile ranker.ChannelProfile) error
	UpsertVideos(ctx context.Context, channelURL string, videos []ranker.ChannelVideo) error
	GetProfile(ctx context.Context, channelURL string) (ranker.ChannelProfile, error)
	ListVideos(ctx context.Context, channelURL string) ([]ranker.ChannelVideo, error)
}

// ClaimRepository coordinates workers for one stage. Every method is a
// single statement or a single transaction against the shared store.
type ClaimRepository interface {
	Stage() ranker.Stage
	// ListCandidates excludes done channels and channels with a live claim.
	ListCandidates(ctx context.Context, limit int) ([]string, error)
	// Claim returns ranker.ErrClaimConflict when the channel is taken or done.
	Claim(ctx context.Context, channelURL, workerID string) (ranker.Claim, error)
	// Complete writes the processed marker and removes the claim.
	Complete(ctx context.Context, channelURL, workerID string, status ranker.ProcessedStatus) error
	// Release frees the claim without a marker and returns the failure count.
	Release(ctx context.Context, channelURL, workerID string, transient bool) (int, error)
	// Drop removes the claim row entirely.
	Drop(ctx context.Context, channelURL, workerID string) error
}

// AnalysisRepository persists append-only channel analyses.
type AnalysisRepository interface {
	// InsertAnalysis reports false when a row already existed.
	InsertAnalysis(ctx context.Context, analysis ranker.ChannelAnalysis) (bool, error)
	ListAnalyses(ctx context.Context) ([]ranker.ChannelAnalysis, error)
}

// ScoreRepository persists re-computable channel scores.
type ScoreRepository interface {
	UpsertScores(ctx context.Context, scores []ranker.ChannelScore) error
}

// RankingReader is the read-only reporting surface.
type RankingReader interface {
	ListRankings(ctx context.Context, query RankingQuery) ([]ranker.RankedChannel, error)
	GetChannel(ctx context.Context, channelURL string) (ranker.ChannelDetail, error)
	Ping(ctx context.Context) error
}
