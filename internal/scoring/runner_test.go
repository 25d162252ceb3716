package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/channel-ranker/internal/publisher/memory"
	"github.com/JakeFAU/channel-ranker/internal/ranker"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fakeAnalyses struct {
	rows []ranker.ChannelAnalysis
	err  error
}

func (f *fakeAnalyses) InsertAnalysis(context.Context, ranker.ChannelAnalysis) (bool, error) {
	return false, errors.New("read only")
}

func (f *fakeAnalyses) ListAnalyses(context.Context) ([]ranker.ChannelAnalysis, error) {
	return f.rows, f.err
}

type fakeScores struct {
	upserts [][]ranker.ChannelScore
}

func (f *fakeScores) UpsertScores(_ context.Context, scores []ranker.ChannelScore) error {
	f.upserts = append(f.upserts, scores)
	return nil
}

func TestRunnerScoresAndPublishes(t *testing.T) {
	rejected := ranker.ChannelAnalysis{ChannelURL: "https://www.youtube.com/@no", Reason: "insufficient_data"}
	analyses := &fakeAnalyses{rows: []ranker.ChannelAnalysis{qualified(0.5, 1.0, 4, 2000), rejected}}
	scores := &fakeScores{}
	pub := memory.New()

	r, err := NewRunner(analyses, scores, pub, fixedClock{now: scoredAt}, DefaultConfig(), zap.NewNop())
	require.NoError(t, err)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, Summary{Scored: 2, Qualified: 1, Published: 1}, summary)
	require.Len(t, scores.upserts, 1)
	require.Len(t, scores.upserts[0], 2)
	require.Equal(t, ReasonNotQualified, scores.upserts[0][1].Reason)

	events := pub.ByTopic(ranker.TopicChannelScored)
	require.Len(t, events, 1)
	require.Equal(t, "https://www.youtube.com/@chan", events[0].(ScoredEvent).ChannelURL)
}

func TestRunnerIsIdempotent(t *testing.T) {
	analyses := &fakeAnalyses{rows: []ranker.ChannelAnalysis{qualified(0.3, 0.9, 6, 500)}}
	scores := &fakeScores{}
	r, err := NewRunner(analyses, scores, nil, fixedClock{now: scoredAt}, DefaultConfig(), nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	require.NoError(t, err)
	_, err = r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, scores.upserts[0], scores.upserts[1])
}

func TestRunnerPropagatesListError(t *testing.T) {
	r, err := NewRunner(&fakeAnalyses{err: errors.New("down")}, &fakeScores{}, nil, fixedClock{}, DefaultConfig(), nil)
	require.NoError(t, err)
	_, err = r.Run(context.Background())
	require.ErrorContains(t, err, "list analyses")
}

func TestNewRunnerValidatesConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights.Peak = 0.9
	_, err := NewRunner(&fakeAnalyses{}, &fakeScores{}, nil, fixedClock{}, cfg, nil)
	require.Error(t, err)
}
