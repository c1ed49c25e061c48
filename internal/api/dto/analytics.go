package dto

import (
	"time"

	"github.com/costlens/costlens/internal/analytics"
	"github.com/costlens/costlens/internal/domain/billing"
	ierr "github.com/costlens/costlens/internal/errors"
	"github.com/costlens/costlens/internal/types"
	"github.com/shopspring/decimal"
)

// DashboardContractVersion identifies the shape of DashboardResponse. The
// dashboard collaborator pins against it.
const DashboardContractVersion = "2024-06-01"

// Preset time ranges accepted alongside an explicit custom window.
const (
	TimeRangeLast7Days  = "last_7_days"
	TimeRangeLast30Days = "last_30_days"
	TimeRangeLast90Days = "last_90_days"
	TimeRangeCustom     = "custom"
)

// GetDashboardRequest is the analytics query contract of the UI
// collaborator.
type GetDashboardRequest struct {
	TimeRange   string     `json:"time_range"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Granularity string     `json:"granularity"`
	CompareMode string     `json:"compare_mode"`

	// Dimensions to break down by; defaults to every known dimension the
	// dashboard renders.
	Dimensions   []string `json:"dimensions,omitempty"`
	TrendGroupBy string   `json:"trend_group_by,omitempty"`

	// Filters is keyed by filter field name so an unknown field can be
	// rejected instead of silently dropped.
	Filters map[string]string `json:"filters,omitempty"`
}

// ToScope validates the request and converts it into an analytics scope.
// Unknown filter fields and malformed enums are rejected, so the caller can
// distinguish a malformed request from an empty result.
func (r *GetDashboardRequest) ToScope(now time.Time) (*billing.AnalyticsScope, error) {
	start, end, err := r.resolveWindow(now)
	if err != nil {
		return nil, err
	}

	scope := &billing.AnalyticsScope{
		StartTime:   start,
		EndTime:     end,
		Granularity: types.Granularity(r.Granularity),
		CompareMode: types.CompareMode(r.CompareMode),
	}
	if r.Granularity == "" {
		scope.Granularity = types.GranularityDay
	}
	if r.CompareMode == "" {
		scope.CompareMode = types.CompareModePreviousPeriod
	}

	if len(r.Dimensions) == 0 {
		scope.Dimensions = []types.GroupBy{
			types.GroupByProvider,
			types.GroupByService,
			types.GroupByRegion,
			types.GroupByAccount,
			types.GroupByTeam,
			types.GroupByEnvironment,
		}
	} else {
		for _, dim := range r.Dimensions {
			scope.Dimensions = append(scope.Dimensions, types.GroupBy(dim))
		}
	}

	scope.TrendGroupBy = types.GroupByService
	if r.TrendGroupBy != "" {
		scope.TrendGroupBy = types.GroupBy(r.TrendGroupBy)
	}

	filters, err := parseFilters(r.Filters)
	if err != nil {
		return nil, err
	}
	scope.Filters = filters

	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return scope, nil
}

func (r *GetDashboardRequest) resolveWindow(now time.Time) (time.Time, time.Time, error) {
	end := now.UTC().Truncate(24 * time.Hour).AddDate(0, 0, 1)
	switch r.TimeRange {
	case TimeRangeLast7Days:
		return end.AddDate(0, 0, -7), end, nil
	case TimeRangeLast30Days, "":
		return end.AddDate(0, 0, -30), end, nil
	case TimeRangeLast90Days:
		return end.AddDate(0, 0, -90), end, nil
	case TimeRangeCustom:
		if r.StartTime == nil || r.EndTime == nil {
			return time.Time{}, time.Time{}, ierr.NewError("custom range requires explicit bounds").
				WithHint("Both start_time and end_time must be provided for a custom time range").
				Mark(ierr.ErrValidation)
		}
		return r.StartTime.UTC(), r.EndTime.UTC(), nil
	default:
		return time.Time{}, time.Time{}, ierr.NewError("invalid time range").
			WithHint("Time range must be one of last_7_days, last_30_days, last_90_days, custom").
			WithReportableDetails(map[string]any{
				"time_range": r.TimeRange,
			}).
			Mark(ierr.ErrValidation)
	}
}

func parseFilters(raw map[string]string) (billing.ScopeFilters, error) {
	var filters billing.ScopeFilters
	for field, value := range raw {
		switch field {
		case "provider":
			filters.Provider = value
		case "service":
			filters.Service = value
		case "region":
			filters.Region = value
		case "account":
			filters.Account = value
		case "sub_account":
			filters.SubAccount = value
		case "cost_category":
			filters.CostCategory = value
		case "team":
			filters.Team = value
		case "app":
			filters.App = value
		case "environment":
			filters.Environment = value
		case "tag_key":
			filters.TagKey = value
		case "tag_value":
			filters.TagValue = value
		default:
			return billing.ScopeFilters{}, ierr.NewError("unknown filter field").
				WithHint("Unknown filter field").
				WithReportableDetails(map[string]any{
					"field": field,
				}).
				Mark(ierr.ErrValidation)
		}
	}
	if filters.TagValue != "" && filters.TagKey == "" {
		return billing.ScopeFilters{}, ierr.NewError("tag_value requires tag_key").
			WithHint("tag_value cannot be filtered without tag_key").
			Mark(ierr.ErrValidation)
	}
	return filters, nil
}

// DashboardResponse is the single versioned document consumed by the
// dashboard. Deterministic for a fixed scope and fact set apart from AsOf.
type DashboardResponse struct {
	Version string    `json:"version"`
	AsOf    time.Time `json:"as_of"`

	KPIs          []KPICard                      `json:"kpis"`
	Trend         TrendSection                   `json:"trend"`
	Breakdowns    map[string][]BreakdownRow      `json:"breakdowns"`
	Concentration map[string]ConcentrationBlock  `json:"concentration"`
	Anomalies     AnomalySection                 `json:"anomalies"`
	Forecast      ForecastBlock                  `json:"forecast"`
	Trust         TrustBlock                     `json:"trust"`
}

// KPICard is one headline number with its comparison delta and status band.
type KPICard struct {
	ID           string  `json:"id"`
	Label        string  `json:"label"`
	Value        string  `json:"value"`
	DeltaValue   string  `json:"delta_value"`
	DeltaPercent float64 `json:"delta_percent"`
	Band         string  `json:"band"`
}

type TrendSection struct {
	Granularity string       `json:"granularity"`
	CompareMode string       `json:"compare_mode"`
	GroupBy     string       `json:"group_by"`
	SeriesNames []string     `json:"series_names"`
	Points      []TrendPoint `json:"points"`
}

type TrendPoint struct {
	Bucket        string            `json:"bucket"`
	CurrentTotal  string            `json:"current_total"`
	PreviousTotal string            `json:"previous_total"`
	Series        map[string]string `json:"series"`
	Anomaly       bool              `json:"anomaly"`
	AnomalyImpact string            `json:"anomaly_impact"`
}

type BreakdownRow struct {
	Name          string  `json:"name"`
	CurrentSpend  string  `json:"current_spend"`
	PreviousSpend string  `json:"previous_spend"`
	SharePercent  float64 `json:"share_percent"`
	DeltaValue    string  `json:"delta_value"`
	DeltaPercent  float64 `json:"delta_percent"`
	IsOthers      bool    `json:"is_others"`
	MemberCount   int     `json:"member_count,omitempty"`
}

type ConcentrationBlock struct {
	Points           []ConcentrationPoint `json:"points"`
	TopSharePercent  float64              `json:"top_share_percent"`
	Top3SharePercent float64              `json:"top3_share_percent"`
	Band             string               `json:"band"`
}

type ConcentrationPoint struct {
	Name                   string  `json:"name"`
	Spend                  string  `json:"spend"`
	SharePercent           float64 `json:"share_percent"`
	CumulativeSharePercent float64 `json:"cumulative_share_percent"`
}

type AnomalySection struct {
	TotalImpact   string             `json:"total_impact"`
	ImpactPercent float64            `json:"impact_percent"`
	Highlights    []AnomalyHighlight `json:"highlights"`
	TopMovers     []Mover            `json:"top_movers"`
}

type AnomalyHighlight struct {
	DetectedAt    string   `json:"detected_at"`
	Impact        string   `json:"impact"`
	Confidence    string   `json:"confidence"`
	LikelyDrivers []string `json:"likely_drivers"`
}

type Mover struct {
	Name          string  `json:"name"`
	CurrentSpend  string  `json:"current_spend"`
	PreviousSpend string  `json:"previous_spend"`
	DeltaValue    string  `json:"delta_value"`
	DeltaPercent  float64 `json:"delta_percent"`
}

type ForecastBlock struct {
	ProjectedSpend      string  `json:"projected_spend"`
	LowerBound          string  `json:"lower_bound"`
	UpperBound          string  `json:"upper_bound"`
	Confidence          string  `json:"confidence"`
	PredictabilityScore float64 `json:"predictability_score"`
	VolatilityScore     float64 `json:"volatility_score"`
}

type TrustBlock struct {
	DataFreshness   string  `json:"data_freshness"`
	CoveragePercent float64 `json:"coverage_percent"`
	MatchedRows     uint64  `json:"matched_rows"`
}

// money renders a decimal amount for the wire with bankers-free two-place
// rounding; the UI treats amounts as strings end to end.
func money(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}

func formatBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// NewDashboardResponse assembles the engine result into the wire document.
func NewDashboardResponse(scope *billing.AnalyticsScope, result *analytics.Result, asOf time.Time) *DashboardResponse {
	resp := &DashboardResponse{
		Version:       DashboardContractVersion,
		AsOf:          asOf.UTC(),
		KPIs:          buildKPIs(result),
		Breakdowns:    make(map[string][]BreakdownRow, len(result.Breakdowns)),
		Concentration: make(map[string]ConcentrationBlock, len(result.Concentration)),
	}

	resp.Trend = TrendSection{
		Granularity: string(scope.Granularity),
		CompareMode: string(scope.CompareMode),
		GroupBy:     string(scope.TrendGroupBy),
		SeriesNames: result.SeriesNames,
		Points:      make([]TrendPoint, 0, len(result.Trend)),
	}
	for _, point := range result.Trend {
		series := make(map[string]string, len(point.Series))
		for name, spend := range point.Series {
			series[name] = money(spend)
		}
		resp.Trend.Points = append(resp.Trend.Points, TrendPoint{
			Bucket:        formatBucket(point.Bucket),
			CurrentTotal:  money(point.CurrentTotal),
			PreviousTotal: money(point.PreviousTotal),
			Series:        series,
			Anomaly:       point.Anomaly,
			AnomalyImpact: money(point.AnomalyImpact),
		})
	}

	for dim, rows := range result.Breakdowns {
		out := make([]BreakdownRow, 0, len(rows))
		for _, row := range rows {
			out = append(out, BreakdownRow{
				Name:          row.Name,
				CurrentSpend:  money(row.CurrentSpend),
				PreviousSpend: money(row.PreviousSpend),
				SharePercent:  row.SharePercent,
				DeltaValue:    money(row.DeltaValue),
				DeltaPercent:  row.DeltaPercent,
				IsOthers:      row.IsOthers,
				MemberCount:   row.MemberCount,
			})
		}
		resp.Breakdowns[string(dim)] = out
	}

	for dim, summary := range result.Concentration {
		block := ConcentrationBlock{
			Points:           make([]ConcentrationPoint, 0, len(summary.Points)),
			TopSharePercent:  summary.TopSharePercent,
			Top3SharePercent: summary.Top3SharePercent,
			Band:             string(summary.Band),
		}
		for _, point := range summary.Points {
			block.Points = append(block.Points, ConcentrationPoint{
				Name:                   point.Name,
				Spend:                  money(point.Spend),
				SharePercent:           point.SharePercent,
				CumulativeSharePercent: point.CumulativeSharePercent,
			})
		}
		resp.Concentration[string(dim)] = block
	}

	resp.Anomalies = AnomalySection{
		TotalImpact:   money(result.Anomalies.TotalImpact),
		ImpactPercent: result.Anomalies.ImpactPercent,
		Highlights:    make([]AnomalyHighlight, 0, len(result.Anomalies.Highlights)),
		TopMovers:     make([]Mover, 0, len(result.TopMovers)),
	}
	for _, highlight := range result.Anomalies.Highlights {
		resp.Anomalies.Highlights = append(resp.Anomalies.Highlights, AnomalyHighlight{
			DetectedAt:    formatBucket(highlight.DetectedAt),
			Impact:        money(highlight.Impact),
			Confidence:    highlight.Confidence,
			LikelyDrivers: highlight.LikelyDrivers,
		})
	}
	for _, mover := range result.TopMovers {
		resp.Anomalies.TopMovers = append(resp.Anomalies.TopMovers, Mover{
			Name:          mover.Name,
			CurrentSpend:  money(mover.CurrentSpend),
			PreviousSpend: money(mover.PreviousSpend),
			DeltaValue:    money(mover.DeltaValue),
			DeltaPercent:  mover.DeltaPercent,
		})
	}

	resp.Forecast = ForecastBlock{
		ProjectedSpend:      money(result.Forecast.ProjectedSpend),
		LowerBound:          money(result.Forecast.LowerBound),
		UpperBound:          money(result.Forecast.UpperBound),
		Confidence:          string(result.Forecast.Confidence),
		PredictabilityScore: result.Forecast.PredictabilityScore,
		VolatilityScore:     result.Forecast.VolatilityScore,
	}

	resp.Trust = TrustBlock{
		DataFreshness:   "N/A",
		CoveragePercent: coveragePercent(result),
		MatchedRows:     result.Totals.RowCount,
	}
	if !result.Totals.LatestIngestedAt.IsZero() {
		resp.Trust.DataFreshness = result.Totals.LatestIngestedAt.UTC().Format(time.RFC3339)
	}

	return resp
}

// coveragePercent is the share of window buckets that carry any data, a
// cheap proxy for how complete the ingested history is over the scope.
func coveragePercent(result *analytics.Result) float64 {
	if len(result.Trend) == 0 {
		return 0
	}
	covered := 0
	for _, point := range result.Trend {
		if !point.CurrentTotal.IsZero() {
			covered++
		}
	}
	return float64(covered) / float64(len(result.Trend)) * 100
}

func buildKPIs(result *analytics.Result) []KPICard {
	spendBand := "on_track"
	if serviceConc, ok := result.Concentration[types.GroupByService]; ok {
		spendBand = string(serviceConc.Band)
	}

	cards := []KPICard{
		{
			ID:           "total_spend",
			Label:        "Total Spend",
			Value:        money(result.Totals.CurrentSpend),
			DeltaValue:   money(result.Totals.DeltaValue),
			DeltaPercent: result.Totals.DeltaPercent,
			Band:         spendBand,
		},
		{
			ID:           "anomaly_impact",
			Label:        "Anomaly Impact",
			Value:        money(result.Anomalies.TotalImpact),
			DeltaPercent: result.Anomalies.ImpactPercent,
			DeltaValue:   "0.00",
			Band:         anomalyBand(result.Anomalies.ImpactPercent),
		},
		{
			ID:           "predictability",
			Label:        "Predictability",
			Value:        formatScore(result.Forecast.PredictabilityScore),
			DeltaValue:   "0.00",
			DeltaPercent: 0,
			Band:         predictabilityBand(result.Forecast.PredictabilityScore),
		},
	}

	for _, kpi := range []struct {
		id    string
		label string
		dim   types.GroupBy
	}{
		{"top_service_share", "Top Service Share", types.GroupByService},
		{"top_provider_share", "Top Provider Share", types.GroupByProvider},
		{"top_region_share", "Top Region Share", types.GroupByRegion},
	} {
		summary, ok := result.Concentration[kpi.dim]
		if !ok {
			continue
		}
		cards = append(cards, KPICard{
			ID:           kpi.id,
			Label:        kpi.label,
			Value:        formatScore(summary.TopSharePercent),
			DeltaValue:   "0.00",
			DeltaPercent: 0,
			Band:         string(summary.Band),
		})
	}

	return cards
}

func anomalyBand(impactPercent float64) string {
	switch {
	case impactPercent >= 10:
		return "critical"
	case impactPercent > 0:
		return "watch"
	default:
		return "on_track"
	}
}

func predictabilityBand(score float64) string {
	switch {
	case score >= 80:
		return "on_track"
	case score >= 50:
		return "watch"
	default:
		return "critical"
	}
}

func formatScore(v float64) string {
	return decimal.NewFromFloat(v).Round(1).String()
}
