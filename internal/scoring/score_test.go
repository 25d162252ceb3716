package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/channel-ranker/internal/ranker"
)

var scoredAt = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func qualified(median, peak float64, cycle int, subs int64) ranker.ChannelAnalysis {
	return ranker.ChannelAnalysis{
		ChannelURL:      "https://www.youtube.com/@chan",
		Subscribers:     &subs,
		CycleLongVideos: &cycle,
		MedianRatio:     &median,
		MaxRatio:        &peak,
		Qualified:       true,
		Reason:          "qualified",
	}
}

func TestScoreComponents(t *testing.T) {
	cfg := DefaultConfig()
	got := Score(qualified(0.5, 1.0, 10, 1000), cfg, scoredAt)

	require.Empty(t, got.Reason)
	require.InDelta(t, 0.5, got.Performance, 1e-9)
	require.InDelta(t, 0.5, got.Peak, 1e-9)
	require.InDelta(t, 1.0, got.Consistency, 1e-9)
	require.InDelta(t, 0.5, got.Size, 1e-9)
	require.InDelta(t, 0.40*0.5+0.25*0.5+0.20*1.0+0.15*0.5, got.Final, 1e-9)
	require.Equal(t, scoredAt, got.ScoredAt)
}

func TestScoreClampsComponents(t *testing.T) {
	got := Score(qualified(3.0, 9.0, 50, 1), DefaultConfig(), scoredAt)
	require.Equal(t, 1.0, got.Performance)
	require.Equal(t, 1.0, got.Peak)
	require.Equal(t, 1.0, got.Consistency)
	require.Equal(t, 1.0, got.Size)
	require.InDelta(t, 1.0, got.Final, 1e-9)

	got = Score(qualified(0.3, 0.4, 1, 5_000_000), DefaultConfig(), scoredAt)
	require.Zero(t, got.Consistency)
	require.Zero(t, got.Size)
}

func TestScoreMissingInputs(t *testing.T) {
	base := qualified(0.5, 1.0, 5, 1000)
	testCases := []struct {
		name   string
		mutate func(a *ranker.ChannelAnalysis)
		reason string
	}{
		{"not qualified", func(a *ranker.ChannelAnalysis) { a.Qualified = false }, ReasonNotQualified},
		{"median ratio", func(a *ranker.ChannelAnalysis) { a.MedianRatio = nil }, ReasonMedianRatioMissing},
		{"max ratio", func(a *ranker.ChannelAnalysis) { a.MaxRatio = nil }, ReasonMaxRatioMissing},
		{"cycle count", func(a *ranker.ChannelAnalysis) { a.CycleLongVideos = nil }, ReasonCycleCountMissing},
		{"subscribers", func(a *ranker.ChannelAnalysis) { a.Subscribers = nil }, ReasonSubscriberCountMissing},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a := base
			tc.mutate(&a)
			got := Score(a, DefaultConfig(), scoredAt)
			require.Equal(t, tc.reason, got.Reason)
			require.Zero(t, got.Final)
			require.Zero(t, got.Performance+got.Peak+got.Consistency+got.Size)
		})
	}
}

func TestScoreIsPureAndBounded(t *testing.T) {
	cfg := DefaultConfig()
	for _, subs := range []int64{1, 10, 999, 123_456, 10_000_000} {
		for _, cycle := range []int{1, 2, 3, 9, 11} {
			a := qualified(float64(cycle)/7, float64(subs%5), cycle, subs)
			first := Score(a, cfg, scoredAt)
			require.Equal(t, first, Score(a, cfg, scoredAt))
			require.GreaterOrEqual(t, first.Final, 0.0)
			require.LessOrEqual(t, first.Final, cfg.Weights.Sum()+1e-9)
		}
	}
}

func TestSizeIsDecreasing(t *testing.T) {
	prev := math.Inf(1)
	for _, subs := range []int64{1, 10, 100, 1_000, 10_000, 100_000, 1_000_000} {
		s := size(subs, 1, 1_000_000)
		require.Less(t, s, prev+1e-12)
		prev = s
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Weights.Size = 0.2
	require.ErrorContains(t, cfg.Validate(), "weights sum")

	cfg = DefaultConfig()
	cfg.SizeCeiling = cfg.SizeFloor
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Weights = Weights{Performance: 1.2, Peak: -0.2}
	require.ErrorContains(t, cfg.Validate(), "negative")
}
