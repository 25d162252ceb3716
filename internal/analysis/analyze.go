package analysis

import (
	"cmp"
	"errors"
	"slices"
	"time"

	"github.com/JakeFAU/channel-ranker/internal/ranker"
)

// Verdict reason codes, in evaluation order.
const (
	ReasonSubscriberCountMissing  = "subscriber_count_missing"
	ReasonSubscriberCountBelowMin = "subscriber_count_below_min"
	ReasonInsufficientData        = "insufficient_data"
	ReasonLongVideosTotalBelowMin = "long_videos_total_below_min"
	ReasonCycleLongVideosBelowMin = "cycle_long_videos_below_min"
	ReasonHighRatioVideosBelowMin = "high_ratio_videos_below_min"
	ReasonMedianRatioBelowMin     = "median_ratio_below_min"
	ReasonQualified               = "qualified"
)

// Config holds the qualification thresholds.
type Config struct {
	CycleGapDays       int     `mapstructure:"cycle_gap_days"`
	MinDurationSeconds int     `mapstructure:"min_duration_seconds"`
	MinSubscribers     int64   `mapstructure:"min_subscribers"`
	MinLongVideosTotal int     `mapstructure:"min_long_videos_total"`
	MinCycleLongVideos int     `mapstructure:"min_cycle_long_videos"`
	HighRatioThreshold float64 `mapstructure:"high_ratio_threshold"`
	MinHighRatioVideos int     `mapstructure:"min_high_ratio_videos"`
	MinMedianRatio     float64 `mapstructure:"min_median_ratio"`
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		CycleGapDays:       60,
		MinDurationSeconds: 1200,
		MinSubscribers:     100,
		MinLongVideosTotal: 3,
		MinCycleLongVideos: 3,
		HighRatioThreshold: 0.30,
		MinHighRatioVideos: 2,
		MinMedianRatio:     0.25,
	}
}

// Validate rejects thresholds that would make every channel fail or pass trivially.
func (c Config) Validate() error {
	switch {
	case c.CycleGapDays <= 0:
		return errors.New("analysis: cycle_gap_days must be positive")
	case c.MinDurationSeconds < 0:
		return errors.New("analysis: min_duration_seconds must not be negative")
	case c.HighRatioThreshold < 0 || c.MinMedianRatio < 0:
		return errors.New("analysis: ratio thresholds must not be negative")
	}
	return nil
}

// Analyze computes cycle metrics and the qualification verdict. The result's
// AnalyzedAt is left zero for the caller to stamp.
func Analyze(profile ranker.ChannelProfile, videos []ranker.ChannelVideo, cfg Config) ranker.ChannelAnalysis {
	out := ranker.ChannelAnalysis{
		ChannelURL:  profile.ChannelURL,
		Subscribers: profile.Subscribers,
	}
	if profile.Subscribers == nil {
		out.Reason = ReasonSubscriberCountMissing
		return out
	}
	subs := *profile.Subscribers
	if subs < cfg.MinSubscribers {
		out.Reason = ReasonSubscriberCountBelowMin
		return out
	}

	for _, v := range videos {
		if isLong(v, cfg) {
			out.TotalLongVideos++
		}
	}
	if len(videos) == 0 || out.TotalLongVideos == 0 {
		out.Reason = ReasonInsufficientData
		return out
	}

	cycle := currentCycle(videos, cfg.CycleGapDays)
	if len(cycle) > 0 {
		start := *cycle[len(cycle)-1].UploadDate
		out.CycleStart = &start
	}

	var views []int64
	var ratios []float64
	for _, v := range cycle {
		if !isLong(v, cfg) {
			continue
		}
		var count int64
		if v.Views != nil && *v.Views > 0 {
			count = *v.Views
		}
		views = append(views, count)
		if subs > 0 {
			ratios = append(ratios, float64(count)/float64(subs))
		}
	}
	cycleLong := len(views)
	out.CycleLongVideos = &cycleLong
	out.MedianViews = medianInt(views)
	out.MaxViews = maxOf(views)
	out.MedianRatio = medianFloat(ratios)
	out.MaxRatio = maxOf(ratios)

	highRatio := 0
	for _, r := range ratios {
		if r >= cfg.HighRatioThreshold {
			highRatio++
		}
	}

	switch {
	case out.TotalLongVideos < cfg.MinLongVideosTotal:
		out.Reason = ReasonLongVideosTotalBelowMin
	case cycleLong < cfg.MinCycleLongVideos:
		out.Reason = ReasonCycleLongVideosBelowMin
	case highRatio < cfg.MinHighRatioVideos:
		out.Reason = ReasonHighRatioVideosBelowMin
	case out.MedianRatio == nil || *out.MedianRatio < cfg.MinMedianRatio:
		out.Reason = ReasonMedianRatioBelowMin
	default:
		out.Qualified = true
		out.Reason = ReasonQualified
	}
	return out
}

func isLong(v ranker.ChannelVideo, cfg Config) bool {
	return v.DurationSeconds != nil && *v.DurationSeconds >= cfg.MinDurationSeconds
}

// currentCycle returns the dated videos newest first, cut at the first gap of
// at least gapDays whole UTC days. The last element is the earliest upload.
func currentCycle(videos []ranker.ChannelVideo, gapDays int) []ranker.ChannelVideo {
	dated := make([]ranker.ChannelVideo, 0, len(videos))
	for _, v := range videos {
		if v.UploadDate != nil {
			dated = append(dated, v)
		}
	}
	slices.SortStableFunc(dated, func(a, b ranker.ChannelVideo) int {
		if c := b.UploadDate.Compare(*a.UploadDate); c != 0 {
			return c
		}
		return cmp.Compare(b.VideoID, a.VideoID)
	})
	for i := 0; i+1 < len(dated); i++ {
		if daysBetween(*dated[i+1].UploadDate, *dated[i].UploadDate) >= gapDays {
			return dated[:i+1]
		}
	}
	return dated
}

func daysBetween(earlier, later time.Time) int {
	e := utcDate(earlier)
	l := utcDate(later)
	return int(l.Sub(e).Hours() / 24)
}

func utcDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// medianInt averages the two middle values of an even count, truncating.
func medianInt(values []int64) *int64 {
	if len(values) == 0 {
		return nil
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	m := sorted[mid]
	if len(sorted)%2 == 0 {
		m = sorted[mid-1] + (sorted[mid]-sorted[mid-1])/2
	}
	return &m
}

func medianFloat(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	m := sorted[mid]
	if len(sorted)%2 == 0 {
		m = (sorted[mid-1] + sorted[mid]) / 2
	}
	return &m
}

func maxOf[T cmp.Ordered](values []T) *T {
	if len(values) == 0 {
		return nil
	}
	m := slices.Max(values)
	return &m
}
