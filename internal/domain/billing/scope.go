package billing

import (
	"time"

	ierr "github.com/costlens/costlens/internal/errors"
	"github.com/costlens/costlens/internal/types"
)

// ScopeFilters are the equality filters a scope may carry. Team, app and
// environment are tag-backed and translate to tag equality at the store.
type ScopeFilters struct {
	Provider     string `json:"provider,omitempty"`
	Service      string `json:"service,omitempty"`
	Region       string `json:"region,omitempty"`
	Account      string `json:"account,omitempty"`
	SubAccount   string `json:"sub_account,omitempty"`
	CostCategory string `json:"cost_category,omitempty"`
	Team         string `json:"team,omitempty"`
	App          string `json:"app,omitempty"`
	Environment  string `json:"environment,omitempty"`
	TagKey       string `json:"tag_key,omitempty"`
	TagValue     string `json:"tag_value,omitempty"`
}

// TagFilters collects every tag equality the filters imply, including the
// tag-backed dimensions.
func (f ScopeFilters) TagFilters() map[string]string {
	tags := make(map[string]string)
	if f.Team != "" {
		tags[types.TagKeyTeam] = f.Team
	}
	if f.App != "" {
		tags[types.TagKeyApp] = f.App
	}
	if f.Environment != "" {
		tags[types.TagKeyEnvironment] = f.Environment
	}
	if f.TagKey != "" {
		tags[f.TagKey] = f.TagValue
	}
	return tags
}

// AnalyticsScope is one analytics request: a half-open time window
// [StartTime, EndTime), a granularity, a compare mode, the breakdown
// dimensions to compute, and the scope filters.
type AnalyticsScope struct {
	StartTime   time.Time         `json:"start_time"`
	EndTime     time.Time         `json:"end_time"`
	Granularity types.Granularity `json:"granularity"`
	CompareMode types.CompareMode `json:"compare_mode"`

	// Dimensions to break down by; TrendGroupBy selects the dimension whose
	// top entities become the stacked trend series.
	Dimensions   []types.GroupBy `json:"dimensions"`
	TrendGroupBy types.GroupBy   `json:"trend_group_by"`
	TopN         int             `json:"top_n"`

	Filters ScopeFilters `json:"filters"`
}

func (s *AnalyticsScope) Validate() error {
	if s.StartTime.IsZero() || s.EndTime.IsZero() {
		return ierr.NewError("time range is required").
			WithHint("Both start_time and end_time must be provided").
			Mark(ierr.ErrValidation)
	}
	if !s.EndTime.After(s.StartTime) {
		return ierr.NewError("invalid time range").
			WithHint("end_time must be after start_time").
			Mark(ierr.ErrValidation)
	}
	if err := s.Granularity.Validate(); err != nil {
		return err
	}
	if err := s.CompareMode.Validate(); err != nil {
		return err
	}
	for _, dim := range s.Dimensions {
		if err := dim.Validate(); err != nil {
			return err
		}
	}
	if err := s.TrendGroupBy.Validate(); err != nil {
		return err
	}
	return nil
}

// Query returns the window+filter view of the scope for the current period.
func (s *AnalyticsScope) Query() ScopeQuery {
	return ScopeQuery{
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Filters:   s.Filters,
	}
}

// PreviousQuery returns the aligned comparison window, or ok=false when the
// compare mode is none.
func (s *AnalyticsScope) PreviousQuery() (ScopeQuery, bool) {
	prevStart, prevEnd := s.CompareMode.PreviousWindow(s.StartTime, s.EndTime)
	if prevStart.IsZero() {
		return ScopeQuery{}, false
	}
	return ScopeQuery{
		StartTime: prevStart,
		EndTime:   prevEnd,
		Filters:   s.Filters,
	}, true
}

// ScopeQuery is the store-level read scope: one time window plus equality
// filters, always pushed down into the store read.
type ScopeQuery struct {
	StartTime time.Time
	EndTime   time.Time
	Filters   ScopeFilters
}
