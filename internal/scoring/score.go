// Package scoring turns channel analyses into comparable ranking scores.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/JakeFAU/channel-ranker/internal/ranker"
)

// Missing-input reason codes.
const (
	ReasonNotQualified           = "not_qualified"
	ReasonMedianRatioMissing     = "median_ratio_missing"
	ReasonMaxRatioMissing        = "max_ratio_missing"
	ReasonCycleCountMissing      = "cycle_count_missing"
	ReasonSubscriberCountMissing = "subscriber_count_missing"
)

const weightTolerance = 1e-6

// Weights sets the contribution of each component to the final score.
type Weights struct {
	Performance float64 `mapstructure:"performance"`
	Peak        float64 `mapstructure:"peak"`
	Consistency float64 `mapstructure:"consistency"`
	Size        float64 `mapstructure:"size"`
}

// Sum adds all weights.
func (w Weights) Sum() float64 {
	return w.Performance + w.Peak + w.Consistency + w.Size
}

// Config parameterizes Score.
type Config struct {
	PerfRatioCeiling      float64 `mapstructure:"perf_ratio_ceiling"`
	PeakRatioCeiling      float64 `mapstructure:"peak_ratio_ceiling"`
	ConsistencySaturation int     `mapstructure:"consistency_saturation"`
	SizeFloor             int64   `mapstructure:"size_floor"`
	SizeCeiling           int64   `mapstructure:"size_ceiling"`
	Weights               Weights `mapstructure:"weights"`
}

// DefaultConfig returns the documented production weights and ceilings.
func DefaultConfig() Config {
	return Config{
		PerfRatioCeiling:      1.0,
		PeakRatioCeiling:      2.0,
		ConsistencySaturation: 10,
		SizeFloor:             1,
		SizeCeiling:           1_000_000,
		Weights: Weights{
			Performance: 0.40,
			Peak:        0.25,
			Consistency: 0.20,
			Size:        0.15,
		},
	}
}

// Validate checks ceilings and that the weights sum to one.
func (c Config) Validate() error {
	if c.PerfRatioCeiling <= 0 || c.PeakRatioCeiling <= 0 {
		return errors.New("scoring: ratio ceilings must be positive")
	}
	if c.ConsistencySaturation < 2 {
		return errors.New("scoring: consistency_saturation must be at least 2")
	}
	if c.SizeFloor < 1 || c.SizeCeiling <= c.SizeFloor {
		return errors.New("scoring: size_ceiling must exceed size_floor, which must be at least 1")
	}
	w := c.Weights
	if w.Performance < 0 || w.Peak < 0 || w.Consistency < 0 || w.Size < 0 {
		return errors.New("scoring: weights must not be negative")
	}
	if sum := w.Sum(); math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("scoring: weights sum to %.6f, want 1", sum)
	}
	return nil
}

// Score computes a channel's components and final score. It depends only on
// its inputs; now is copied into ScoredAt.
func Score(a ranker.ChannelAnalysis, cfg Config, now time.Time) ranker.ChannelScore {
	out := ranker.ChannelScore{ChannelURL: a.ChannelURL, ScoredAt: now.UTC()}
	if reason := missingInput(a); reason != "" {
		out.Reason = reason
		return out
	}

	out.Performance = clamp01(*a.MedianRatio / cfg.PerfRatioCeiling)
	out.Peak = clamp01(*a.MaxRatio / cfg.PeakRatioCeiling)
	out.Consistency = consistency(*a.CycleLongVideos, cfg.ConsistencySaturation)
	out.Size = size(*a.Subscribers, cfg.SizeFloor, cfg.SizeCeiling)

	w := cfg.Weights
	out.Final = w.Performance*out.Performance +
		w.Peak*out.Peak +
		w.Consistency*out.Consistency +
		w.Size*out.Size
	return out
}

func missingInput(a ranker.ChannelAnalysis) string {
	switch {
	case !a.Qualified:
		return ReasonNotQualified
	case a.MedianRatio == nil:
		return ReasonMedianRatioMissing
	case a.MaxRatio == nil:
		return ReasonMaxRatioMissing
	case a.CycleLongVideos == nil:
		return ReasonCycleCountMissing
	case a.Subscribers == nil:
		return ReasonSubscriberCountMissing
	}
	return ""
}

// consistency is log2(n)/log2(saturation), reaching 1 at saturation videos.
func consistency(n, saturation int) float64 {
	if n <= 1 {
		return 0
	}
	return clamp01(math.Log2(float64(n)) / math.Log2(float64(saturation)))
}

// size decreases log-linearly from 1 at floor to 0 at ceiling.
func size(subs, floor, ceiling int64) float64 {
	switch {
	case subs <= floor:
		return 1
	case subs >= ceiling:
		return 0
	}
	lf := math.Log10(float64(floor))
	lc := math.Log10(float64(ceiling))
	return clamp01(1 - (math.Log10(float64(subs))-lf)/(lc-lf))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
