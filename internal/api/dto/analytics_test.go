package dto

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/costlens/costlens/internal/analytics"
	"github.com/costlens/costlens/internal/config"
	"github.com/costlens/costlens/internal/domain/billing"
	"github.com/costlens/costlens/internal/logger"
	"github.com/costlens/costlens/internal/testutil"
	"github.com/costlens/costlens/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, time.June, 15, 14, 30, 0, 0, time.UTC)

func TestToScopeDefaults(t *testing.T) {
	req := &GetDashboardRequest{}
	scope, err := req.ToScope(now)
	require.NoError(t, err)

	// Default window is the trailing 30 days ending after today.
	assert.Equal(t, time.Date(2024, time.June, 16, 0, 0, 0, 0, time.UTC), scope.EndTime)
	assert.Equal(t, time.Date(2024, time.May, 17, 0, 0, 0, 0, time.UTC), scope.StartTime)
	assert.Equal(t, types.GranularityDay, scope.Granularity)
	assert.Equal(t, types.CompareModePreviousPeriod, scope.CompareMode)
	assert.Equal(t, types.GroupByService, scope.TrendGroupBy)
	assert.Len(t, scope.Dimensions, 6)
}

func TestToScopePresets(t *testing.T) {
	tests := []struct {
		timeRange string
		wantDays  int
	}{
		{TimeRangeLast7Days, 7},
		{TimeRangeLast30Days, 30},
		{TimeRangeLast90Days, 90},
	}
	for _, tt := range tests {
		t.Run(tt.timeRange, func(t *testing.T) {
			req := &GetDashboardRequest{TimeRange: tt.timeRange}
			scope, err := req.ToScope(now)
			require.NoError(t, err)
			assert.Equal(t, float64(tt.wantDays)*24, scope.EndTime.Sub(scope.StartTime).Hours())
		})
	}
}

func TestToScopeCustomRange(t *testing.T) {
	start := time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	req := &GetDashboardRequest{TimeRange: TimeRangeCustom, StartTime: &start, EndTime: &end}

	scope, err := req.ToScope(now)
	require.NoError(t, err)
	assert.Equal(t, start, scope.StartTime)
	assert.Equal(t, end, scope.EndTime)

	// Custom without bounds is rejected.
	_, err = (&GetDashboardRequest{TimeRange: TimeRangeCustom}).ToScope(now)
	assert.Error(t, err)
}

func TestToScopeRejectsUnknownValues(t *testing.T) {
	tests := []struct {
		name string
		req  GetDashboardRequest
	}{
		{name: "time range", req: GetDashboardRequest{TimeRange: "yesterday"}},
		{name: "granularity", req: GetDashboardRequest{Granularity: "hour"}},
		{name: "compare mode", req: GetDashboardRequest{CompareMode: "quarter"}},
		{name: "dimension", req: GetDashboardRequest{Dimensions: []string{"datacenter"}}},
		{name: "trend group by", req: GetDashboardRequest{TrendGroupBy: "rack"}},
		{name: "filter field", req: GetDashboardRequest{Filters: map[string]string{"owner": "bob"}}},
		{name: "tag value without key", req: GetDashboardRequest{Filters: map[string]string{"tag_value": "x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.req.ToScope(now)
			assert.Error(t, err)
		})
	}
}

func TestToScopeFilters(t *testing.T) {
	req := &GetDashboardRequest{Filters: map[string]string{
		"provider": "aws",
		"team":     "platform",
		"tag_key":  "cost-center",
	}}
	scope, err := req.ToScope(now)
	require.NoError(t, err)
	assert.Equal(t, "aws", scope.Filters.Provider)
	assert.Equal(t, "platform", scope.Filters.Team)
	assert.Equal(t, "cost-center", scope.Filters.TagKey)
}

func analyzeFixture(t *testing.T) (*billing.AnalyticsScope, *analytics.Result) {
	t.Helper()
	store := testutil.NewInMemoryFactStore()
	day := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	facts := []*billing.BillingUsageFact{}
	for i, cost := range []float64{100, 50, 50} {
		d := day
		facts = append(facts, &billing.BillingUsageFact{
			ID:                string(rune('a' + i)),
			UploadID:          "upl_dto",
			RowHash:           string(rune('a' + i)),
			Provider:          "aws",
			ServiceName:       []string{"Compute", "Storage", "Database"}[i],
			AccountName:       "acct-1",
			RegionName:        "us-east-1",
			EffectiveCost:     decimal.NewFromFloat(cost),
			ChargePeriodStart: &d,
			IngestedAt:        time.Date(2024, time.June, 2, 8, 0, 0, 0, time.UTC),
		})
	}
	require.NoError(t, store.BulkInsertFacts(testutil.SetupContext(), facts))

	scope := &billing.AnalyticsScope{
		StartTime:    day,
		EndTime:      day.AddDate(0, 0, 7),
		Granularity:  types.GranularityDay,
		CompareMode:  types.CompareModeNone,
		Dimensions:   []types.GroupBy{types.GroupByService},
		TrendGroupBy: types.GroupByService,
		TopN:         5,
	}
	engine := analytics.NewEngine(store, config.GetDefaultConfig().Analytics, logger.NewNoopLogger())
	result, err := engine.Analyze(testutil.SetupContext(), scope)
	require.NoError(t, err)
	return scope, result
}

func TestNewDashboardResponse(t *testing.T) {
	scope, result := analyzeFixture(t)
	resp := NewDashboardResponse(scope, result, now)

	assert.Equal(t, DashboardContractVersion, resp.Version)
	assert.Equal(t, now, resp.AsOf)

	require.NotEmpty(t, resp.KPIs)
	assert.Equal(t, "total_spend", resp.KPIs[0].ID)
	assert.Equal(t, "200.00", resp.KPIs[0].Value)

	rows := resp.Breakdowns["service"]
	require.Len(t, rows, 3)
	assert.Equal(t, "Compute", rows[0].Name)
	assert.Equal(t, "100.00", rows[0].CurrentSpend)

	require.Len(t, resp.Trend.Points, 7)
	assert.Equal(t, "2024-06-01", resp.Trend.Points[0].Bucket)
	assert.Equal(t, "200.00", resp.Trend.Points[0].CurrentTotal)

	assert.Equal(t, "2024-06-02T08:00:00Z", resp.Trust.DataFreshness)
	assert.Equal(t, uint64(3), resp.Trust.MatchedRows)
	assert.InDelta(t, 100.0/7.0, resp.Trust.CoveragePercent, 0.0001)
}

func TestNewDashboardResponseDeterministic(t *testing.T) {
	scope, result := analyzeFixture(t)

	a, err := json.Marshal(NewDashboardResponse(scope, result, now))
	require.NoError(t, err)
	b, err := json.Marshal(NewDashboardResponse(scope, result, now))
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
}

func TestNewDashboardResponseEmptyScope(t *testing.T) {
	store := testutil.NewInMemoryFactStore()
	day := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	scope := &billing.AnalyticsScope{
		StartTime:    day,
		EndTime:      day.AddDate(0, 0, 7),
		Granularity:  types.GranularityDay,
		CompareMode:  types.CompareModeNone,
		Dimensions:   []types.GroupBy{types.GroupByService},
		TrendGroupBy: types.GroupByService,
		TopN:         5,
	}
	engine := analytics.NewEngine(store, config.GetDefaultConfig().Analytics, logger.NewNoopLogger())
	result, err := engine.Analyze(testutil.SetupContext(), scope)
	require.NoError(t, err)

	resp := NewDashboardResponse(scope, result, now)
	assert.Equal(t, "0.00", resp.KPIs[0].Value)
	assert.Equal(t, "N/A", resp.Trust.DataFreshness)
	assert.Equal(t, uint64(0), resp.Trust.MatchedRows)
	assert.Empty(t, resp.Breakdowns["service"])
}
