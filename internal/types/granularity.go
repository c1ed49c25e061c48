package types

import (
	"time"

	ierr "github.com/costlens/costlens/internal/errors"
)

// Granularity is the bucketing size for trend series
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

func (g Granularity) Validate() error {
	switch g {
	case GranularityDay, GranularityWeek, GranularityMonth:
		return nil
	default:
		return ierr.NewError("invalid granularity").
			WithHint("Granularity must be one of day, week, month").
			WithReportableDetails(map[string]any{
				"granularity": g,
			}).
			Mark(ierr.ErrValidation)
	}
}

// Truncate returns the start of the bucket containing t, in UTC.
// Weeks start on Monday, matching ClickHouse toStartOfWeek(t, 1).
func (g Granularity) Truncate(t time.Time) time.Time {
	t = t.UTC()
	switch g {
	case GranularityWeek:
		day := t.Truncate(24 * time.Hour)
		weekday := int(day.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		return day.AddDate(0, 0, -(weekday - 1))
	case GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return t.Truncate(24 * time.Hour)
	}
}

// Next returns the start of the bucket after t
func (g Granularity) Next(t time.Time) time.Time {
	switch g {
	case GranularityWeek:
		return g.Truncate(t).AddDate(0, 0, 7)
	case GranularityMonth:
		return g.Truncate(t).AddDate(0, 1, 0)
	default:
		return g.Truncate(t).AddDate(0, 0, 1)
	}
}
