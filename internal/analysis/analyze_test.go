package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/channel-ranker/internal/ranker"
)

var day0 = time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func video(id string, daysAgo int, seconds int, views int64) ranker.ChannelVideo {
	uploaded := day0.AddDate(0, 0, -daysAgo)
	return ranker.ChannelVideo{
		VideoID:         id,
		UploadDate:      &uploaded,
		DurationSeconds: ptr(seconds),
		Views:           ptr(views),
	}
}

// videosWithGaps builds long videos whose consecutive gaps, newest first, are gaps.
func videosWithGaps(gaps []int, views int64) []ranker.ChannelVideo {
	out := []ranker.ChannelVideo{video("v0", 0, 1500, views)}
	offset := 0
	for i, g := range gaps {
		offset += g
		out = append(out, video(string(rune('a'+i)), offset, 1500, views))
	}
	return out
}

func profile(subs int64) ranker.ChannelProfile {
	return ranker.ChannelProfile{ChannelURL: "https://www.youtube.com/@chan", Subscribers: &subs}
}

func TestCurrentCycleStopsAtFirstLargeGap(t *testing.T) {
	videos := videosWithGaps([]int{5, 5, 5, 90, 5}, 1000)
	cycle := currentCycle(videos, 60)
	require.Len(t, cycle, 4)
	require.Equal(t, "v0", cycle[0].VideoID)
	require.True(t, day0.AddDate(0, 0, -15).Equal(*cycle[3].UploadDate))
}

func TestCurrentCycleWithoutGapKeepsAll(t *testing.T) {
	videos := videosWithGaps([]int{10, 20, 59}, 1000)
	require.Len(t, currentCycle(videos, 60), 4)
}

func TestCurrentCycleCountsWholeUTCDays(t *testing.T) {
	late := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	early := time.Date(2025, 12, 31, 0, 1, 0, 0, time.UTC) // 60 calendar days before
	videos := []ranker.ChannelVideo{
		{VideoID: "new", UploadDate: &late},
		{VideoID: "old", UploadDate: &early},
	}
	require.Len(t, currentCycle(videos, 60), 1)
}

func TestCurrentCycleTieBreaksOnVideoID(t *testing.T) {
	same := day0
	videos := []ranker.ChannelVideo{
		{VideoID: "aaa", UploadDate: &same},
		{VideoID: "zzz", UploadDate: &same},
		{VideoID: "undated"},
	}
	cycle := currentCycle(videos, 60)
	require.Len(t, cycle, 2)
	require.Equal(t, "zzz", cycle[0].VideoID)
}

func TestAnalyzeQualifiedChannel(t *testing.T) {
	videos := []ranker.ChannelVideo{
		video("a", 1, 1500, 400),
		video("b", 10, 1500, 300),
		video("c", 20, 1500, 200),
		video("d", 30, 1500, 100),
		video("short", 2, 60, 99999),
	}
	got := Analyze(profile(1000), videos, DefaultConfig())

	require.True(t, got.Qualified)
	require.Equal(t, ReasonQualified, got.Reason)
	require.Equal(t, 4, got.TotalLongVideos)
	require.Equal(t, 4, *got.CycleLongVideos)
	require.Equal(t, int64(250), *got.MedianViews)
	require.Equal(t, int64(400), *got.MaxViews)
	require.InDelta(t, 0.25, *got.MedianRatio, 1e-9)
	require.InDelta(t, 0.40, *got.MaxRatio, 1e-9)
	require.True(t, day0.AddDate(0, 0, -30).Equal(*got.CycleStart))
}

func TestAnalyzeReasons(t *testing.T) {
	cfg := DefaultConfig()
	testCases := []struct {
		name    string
		profile ranker.ChannelProfile
		videos  []ranker.ChannelVideo
		reason  string
	}{
		{
			name:    "missing subscribers",
			profile: ranker.ChannelProfile{ChannelURL: "u"},
			videos:  videosWithGaps([]int{1, 1, 1}, 5000),
			reason:  ReasonSubscriberCountMissing,
		},
		{
			name:    "subscriber floor wins over strong videos",
			profile: profile(50),
			videos:  videosWithGaps([]int{1, 1, 1, 1}, 5000),
			reason:  ReasonSubscriberCountBelowMin,
		},
		{
			name:    "no videos",
			profile: profile(1000),
			reason:  ReasonInsufficientData,
		},
		{
			name:    "only shorts",
			profile: profile(1000),
			videos:  []ranker.ChannelVideo{video("s", 1, 30, 5000)},
			reason:  ReasonInsufficientData,
		},
		{
			name:    "two long videos",
			profile: profile(1000),
			videos:  videosWithGaps([]int{1}, 5000),
			reason:  ReasonLongVideosTotalBelowMin,
		},
		{
			name:    "cycle cut short by gap",
			profile: profile(1000),
			videos:  videosWithGaps([]int{5, 90, 5, 5}, 5000),
			reason:  ReasonCycleLongVideosBelowMin,
		},
		{
			name:    "only one high ratio video",
			profile: profile(1000),
			videos: []ranker.ChannelVideo{
				video("a", 1, 1500, 900),
				video("b", 2, 1500, 290),
				video("c", 3, 1500, 280),
			},
			reason: ReasonHighRatioVideosBelowMin,
		},
		{
			name:    "median ratio too low",
			profile: profile(1000),
			videos: []ranker.ChannelVideo{
				video("a", 1, 1500, 900),
				video("b", 2, 1500, 800),
				video("c", 3, 1500, 100),
				video("d", 4, 1500, 100),
				video("e", 5, 1500, 100),
			},
			reason: ReasonMedianRatioBelowMin,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Analyze(tc.profile, tc.videos, cfg)
			require.False(t, got.Qualified)
			require.Equal(t, tc.reason, got.Reason)
		})
	}
}

func TestAnalyzeInsufficientDataLeavesMetricsEmpty(t *testing.T) {
	got := Analyze(profile(1000), nil, DefaultConfig())
	require.Nil(t, got.CycleLongVideos)
	require.Nil(t, got.MedianViews)
	require.Nil(t, got.MedianRatio)
	require.Zero(t, got.TotalLongVideos)
}

func TestAnalyzeSingleVideoMedian(t *testing.T) {
	got := Analyze(profile(1000), []ranker.ChannelVideo{video("solo", 1, 2000, 777)}, DefaultConfig())
	require.Equal(t, int64(777), *got.MedianViews)
	require.Equal(t, 1, *got.CycleLongVideos)
	require.Equal(t, ReasonLongVideosTotalBelowMin, got.Reason)
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	videos := videosWithGaps([]int{3, 4, 5, 100, 2}, 600)
	first := Analyze(profile(1000), videos, DefaultConfig())
	for range 5 {
		require.Equal(t, first, Analyze(profile(1000), videos, DefaultConfig()))
	}
}

func TestMedianEvenCountTruncates(t *testing.T) {
	require.Equal(t, int64(2), *medianInt([]int64{1, 4}))
	require.Equal(t, int64(3), *medianInt([]int64{5, 1, 3}))
	require.Nil(t, medianInt(nil))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	cfg := DefaultConfig()
	cfg.CycleGapDays = 0
	require.Error(t, cfg.Validate())
}
