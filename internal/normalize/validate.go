package normalize

import "time"

// Verdict reason codes.
const (
	ReasonOK                     = "ok"
	ReasonDurationBelowMin       = "duration_below_min"
	ReasonPublishedOutsideWindow = "published_outside_window"
	ReasonViewsBelowMin          = "views_below_min"
)

// futureTolerance absorbs clock skew between the search page and this host.
const futureTolerance = time.Hour

// Thresholds are the admission rules for a normalized video.
type Thresholds struct {
	MinDurationSeconds int           `mapstructure:"min_duration_seconds"`
	RecencyWindow      time.Duration `mapstructure:"recency_window"`
	MinViews           int64         `mapstructure:"min_views"`
}

// DefaultThresholds returns the production admission rules.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinDurationSeconds: 1200,
		RecencyWindow:      60 * 24 * time.Hour,
		MinViews:           1000,
	}
}

// Fields holds parsed values. A nil field failed to parse.
type Fields struct {
	DurationSeconds *int
	PublishedAt     *time.Time
	Views           *int64
}

// Verdict is the outcome of Validate.
type Verdict struct {
	Passed bool
	Reason string
}

// Validate applies the duration, recency and views rules in that order and
// reports the first failure.
func Validate(f Fields, th Thresholds, now time.Time) Verdict {
	switch {
	case f.DurationSeconds == nil:
		return fail(unparsableReason(FieldDuration))
	case f.PublishedAt == nil:
		return fail(unparsableReason(FieldPublished))
	case f.Views == nil:
		return fail(unparsableReason(FieldViews))
	}

	if *f.DurationSeconds < th.MinDurationSeconds {
		return fail(ReasonDurationBelowMin)
	}
	published := f.PublishedAt.UTC()
	now = now.UTC()
	if published.Before(now.Add(-th.RecencyWindow)) || published.After(now.Add(futureTolerance)) {
		return fail(ReasonPublishedOutsideWindow)
	}
	if *f.Views < th.MinViews {
		return fail(ReasonViewsBelowMin)
	}
	return Verdict{Passed: true, Reason: ReasonOK}
}

func unparsableReason(field string) string {
	return "unparsable_" + field
}

func fail(reason string) Verdict {
	return Verdict{Reason: reason}
}
