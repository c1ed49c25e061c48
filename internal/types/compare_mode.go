package types

import (
	"time"

	ierr "github.com/costlens/costlens/internal/errors"
)

// CompareMode is the rule used to align a previous period against the
// current period.
type CompareMode string

const (
	CompareModePreviousPeriod CompareMode = "previous_period"
	CompareModeYearOverYear   CompareMode = "year_over_year"
	CompareModeNone           CompareMode = "none"
)

func (m CompareMode) Validate() error {
	switch m {
	case CompareModePreviousPeriod, CompareModeYearOverYear, CompareModeNone:
		return nil
	default:
		return ierr.NewError("invalid compare mode").
			WithHint("Compare mode must be one of previous_period, year_over_year, none").
			WithReportableDetails(map[string]any{
				"compare_mode": m,
			}).
			Mark(ierr.ErrValidation)
	}
}

// PreviousWindow returns the comparison window aligned against [start, end).
// Previous-period compares against the prior window of equal length,
// year-over-year against the same dates one year earlier. The zero values
// returned for CompareModeNone mean no comparison window.
func (m CompareMode) PreviousWindow(start, end time.Time) (time.Time, time.Time) {
	switch m {
	case CompareModePreviousPeriod:
		length := end.Sub(start)
		return start.Add(-length), start
	case CompareModeYearOverYear:
		return start.AddDate(-1, 0, 0), end.AddDate(-1, 0, 0)
	default:
		return time.Time{}, time.Time{}
	}
}

// AlignBucket maps a bucket start in the current window to the matching
// bucket start in the comparison window.
func (m CompareMode) AlignBucket(bucket, start, end time.Time) time.Time {
	switch m {
	case CompareModePreviousPeriod:
		length := end.Sub(start)
		return bucket.Add(-length)
	case CompareModeYearOverYear:
		return bucket.AddDate(-1, 0, 0)
	default:
		return time.Time{}
	}
}
