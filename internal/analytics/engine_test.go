package analytics

import (
	"fmt"
	"testing"
	"time"

	"github.com/costlens/costlens/internal/config"
	"github.com/costlens/costlens/internal/domain/billing"
	"github.com/costlens/costlens/internal/logger"
	"github.com/costlens/costlens/internal/testutil"
	"github.com/costlens/costlens/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day1 = time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

func newTestEngine(store *testutil.InMemoryFactStore) *Engine {
	return NewEngine(store, config.GetDefaultConfig().Analytics, logger.NewNoopLogger())
}

func fact(id string, day time.Time, cost float64, service, account string) *billing.BillingUsageFact {
	d := day
	return &billing.BillingUsageFact{
		ID:                id,
		UploadID:          "upl_test",
		RowHash:           id,
		Provider:          "aws",
		ServiceName:       service,
		AccountName:       account,
		RegionName:        "us-east-1",
		EffectiveCost:     decimal.NewFromFloat(cost),
		ChargePeriodStart: &d,
		IngestedAt:        time.Now().UTC(),
	}
}

func dayScope(start time.Time, days int) *billing.AnalyticsScope {
	return &billing.AnalyticsScope{
		StartTime:    start,
		EndTime:      start.AddDate(0, 0, days),
		Granularity:  types.GranularityDay,
		CompareMode:  types.CompareModeNone,
		Dimensions:   []types.GroupBy{types.GroupByService},
		TrendGroupBy: types.GroupByService,
		TopN:         5,
	}
}

func TestAnalyzeBreakdownShares(t *testing.T) {
	store := testutil.NewInMemoryFactStore()
	require.NoError(t, store.BulkInsertFacts(testutil.SetupContext(), []*billing.BillingUsageFact{
		fact("f1", day1, 100, "Compute", "acct-1"),
		fact("f2", day1, 50, "Compute", "acct-1"),
		fact("f3", day1, 50, "Storage", "acct-1"),
	}))

	engine := newTestEngine(store)
	result, err := engine.Analyze(testutil.SetupContext(), dayScope(day1, 1))
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(200).Equal(result.Totals.CurrentSpend))
	assert.Equal(t, uint64(3), result.Totals.RowCount)

	rows := result.Breakdowns[types.GroupByService]
	require.Len(t, rows, 2)
	assert.Equal(t, "Compute", rows[0].Name)
	assert.True(t, decimal.NewFromInt(150).Equal(rows[0].CurrentSpend))
	assert.InDelta(t, 75.0, rows[0].SharePercent, 0.0001)
	assert.Equal(t, "Storage", rows[1].Name)
	assert.InDelta(t, 25.0, rows[1].SharePercent, 0.0001)

	// Rows sum to the scoped total.
	sum := decimal.Zero
	for _, row := range rows {
		sum = sum.Add(row.CurrentSpend)
	}
	assert.True(t, result.Totals.CurrentSpend.Equal(sum))
}

func TestAnalyzeBreakdownOthersRollup(t *testing.T) {
	store := testutil.NewInMemoryFactStore()
	facts := make([]*billing.BillingUsageFact, 0, 7)
	for i := 0; i < 7; i++ {
		facts = append(facts, fact(
			fmt.Sprintf("f%d", i), day1, float64(100-i*10), fmt.Sprintf("svc-%d", i), "acct-1",
		))
	}
	require.NoError(t, store.BulkInsertFacts(testutil.SetupContext(), facts))

	engine := newTestEngine(store)
	result, err := engine.Analyze(testutil.SetupContext(), dayScope(day1, 1))
	require.NoError(t, err)

	rows := result.Breakdowns[types.GroupByService]
	require.Len(t, rows, 6)
	others := rows[5]
	assert.True(t, others.IsOthers)
	assert.Equal(t, "Others", others.Name)
	assert.Equal(t, 2, others.MemberCount)
	// svc-5 (50) + svc-6 (40)
	assert.True(t, decimal.NewFromInt(90).Equal(others.CurrentSpend))

	sum := decimal.Zero
	for _, row := range rows {
		sum = sum.Add(row.CurrentSpend)
	}
	assert.True(t, result.Totals.CurrentSpend.Equal(sum))
}

func TestAnalyzeConcentration(t *testing.T) {
	store := testutil.NewInMemoryFactStore()
	require.NoError(t, store.BulkInsertFacts(testutil.SetupContext(), []*billing.BillingUsageFact{
		fact("f1", day1, 100, "Compute", "acct-a"),
		fact("f2", day1, 50, "Compute", "acct-b"),
		fact("f3", day1, 50, "Compute", "acct-c"),
		fact("f4", day1, 0, "Compute", "acct-d"),
	}))

	scope := dayScope(day1, 1)
	scope.Dimensions = []types.GroupBy{types.GroupByAccount}

	engine := newTestEngine(store)
	result, err := engine.Analyze(testutil.SetupContext(), scope)
	require.NoError(t, err)

	summary := result.Concentration[types.GroupByAccount]
	require.NotNil(t, summary)
	require.Len(t, summary.Points, 4)

	wantShares := []float64{50, 25, 25, 0}
	wantCumulative := []float64{50, 75, 100, 100}
	for i, point := range summary.Points {
		assert.InDelta(t, wantShares[i], point.SharePercent, 0.0001, "share at %d", i)
		assert.InDelta(t, wantCumulative[i], point.CumulativeSharePercent, 0.0001, "cumulative at %d", i)
	}

	assert.InDelta(t, 50.0, summary.TopSharePercent, 0.0001)
	assert.InDelta(t, 100.0, summary.Top3SharePercent, 0.0001)
	assert.Equal(t, BandCritical, summary.Band)
}

func TestAnalyzeTrendIsGapless(t *testing.T) {
	store := testutil.NewInMemoryFactStore()
	require.NoError(t, store.BulkInsertFacts(testutil.SetupContext(), []*billing.BillingUsageFact{
		fact("f1", day1, 100, "Compute", "acct-1"),
		fact("f2", day1.AddDate(0, 0, 2), 60, "Compute", "acct-1"),
		fact("f3", day1.AddDate(0, 0, 2), 40, "Storage", "acct-1"),
	}))

	engine := newTestEngine(store)
	result, err := engine.Analyze(testutil.SetupContext(), dayScope(day1, 3))
	require.NoError(t, err)

	require.Len(t, result.Trend, 3)
	assert.Equal(t, day1, result.Trend[0].Bucket)
	assert.True(t, decimal.NewFromInt(100).Equal(result.Trend[0].CurrentTotal))
	assert.True(t, result.Trend[1].CurrentTotal.IsZero())
	assert.True(t, decimal.NewFromInt(100).Equal(result.Trend[2].CurrentTotal))

	// Stacked series sum to the bucket total in every bucket.
	for i, point := range result.Trend {
		sum := decimal.Zero
		for _, spend := range point.Series {
			sum = sum.Add(spend)
		}
		assert.True(t, point.CurrentTotal.Equal(sum), "series sum mismatch at bucket %d", i)
	}
}

func TestAnalyzeTrendComparisonAlignment(t *testing.T) {
	store := testutil.NewInMemoryFactStore()
	require.NoError(t, store.BulkInsertFacts(testutil.SetupContext(), []*billing.BillingUsageFact{
		// Previous window: May 30 and 31.
		fact("p1", day1.AddDate(0, 0, -2), 10, "Compute", "acct-1"),
		fact("p2", day1.AddDate(0, 0, -1), 20, "Compute", "acct-1"),
		// Current window: June 1 and 2.
		fact("c1", day1, 30, "Compute", "acct-1"),
		fact("c2", day1.AddDate(0, 0, 1), 40, "Compute", "acct-1"),
	}))

	scope := dayScope(day1, 2)
	scope.CompareMode = types.CompareModePreviousPeriod

	engine := newTestEngine(store)
	result, err := engine.Analyze(testutil.SetupContext(), scope)
	require.NoError(t, err)

	require.Len(t, result.Trend, 2)
	assert.True(t, decimal.NewFromInt(10).Equal(result.Trend[0].PreviousTotal))
	assert.True(t, decimal.NewFromInt(20).Equal(result.Trend[1].PreviousTotal))
	assert.True(t, decimal.NewFromInt(70).Equal(result.Totals.CurrentSpend))
	assert.True(t, decimal.NewFromInt(30).Equal(result.Totals.PreviousSpend))
	assert.True(t, decimal.NewFromInt(40).Equal(result.Totals.DeltaValue))
}

func TestAnalyzeAnomalyDetection(t *testing.T) {
	store := testutil.NewInMemoryFactStore()
	require.NoError(t, store.BulkInsertFacts(testutil.SetupContext(), []*billing.BillingUsageFact{
		// Trailing baseline: mean 100, population stddev 50.
		fact("f1", day1, 50, "Compute", "acct-1"),
		fact("f2", day1.AddDate(0, 0, 1), 150, "Compute", "acct-1"),
		// Spike: deviation 300 against threshold 2*50.
		fact("f3", day1.AddDate(0, 0, 2), 400, "Compute", "acct-1"),
	}))

	engine := newTestEngine(store)
	result, err := engine.Analyze(testutil.SetupContext(), dayScope(day1, 3))
	require.NoError(t, err)

	require.Len(t, result.Trend, 3)
	assert.False(t, result.Trend[0].Anomaly)
	assert.False(t, result.Trend[1].Anomaly)
	assert.True(t, result.Trend[2].Anomaly)
	assert.True(t, decimal.NewFromInt(300).Equal(result.Trend[2].AnomalyImpact))

	require.Len(t, result.Anomalies.Highlights, 1)
	highlight := result.Anomalies.Highlights[0]
	assert.Equal(t, day1.AddDate(0, 0, 2), highlight.DetectedAt)
	assert.True(t, decimal.NewFromInt(300).Equal(highlight.Impact))
	assert.Equal(t, "high", highlight.Confidence)
	assert.Contains(t, highlight.LikelyDrivers, "Compute")
	assert.True(t, decimal.NewFromInt(300).Equal(result.Anomalies.TotalImpact))
}

func TestAnalyzeStableSeriesHasNoAnomalies(t *testing.T) {
	store := testutil.NewInMemoryFactStore()
	facts := make([]*billing.BillingUsageFact, 0, 10)
	for i := 0; i < 10; i++ {
		facts = append(facts, fact(fmt.Sprintf("f%d", i), day1.AddDate(0, 0, i), 100, "Compute", "acct-1"))
	}
	require.NoError(t, store.BulkInsertFacts(testutil.SetupContext(), facts))

	engine := newTestEngine(store)
	result, err := engine.Analyze(testutil.SetupContext(), dayScope(day1, 10))
	require.NoError(t, err)

	for i, point := range result.Trend {
		assert.False(t, point.Anomaly, "bucket %d flagged on a flat series", i)
	}
	assert.Empty(t, result.Anomalies.Highlights)
}

func TestAnalyzeForecastFlatSeries(t *testing.T) {
	store := testutil.NewInMemoryFactStore()
	facts := make([]*billing.BillingUsageFact, 0, 7)
	for i := 0; i < 7; i++ {
		facts = append(facts, fact(fmt.Sprintf("f%d", i), day1.AddDate(0, 0, i), 100, "Compute", "acct-1"))
	}
	require.NoError(t, store.BulkInsertFacts(testutil.SetupContext(), facts))

	engine := newTestEngine(store)
	result, err := engine.Analyze(testutil.SetupContext(), dayScope(day1, 7))
	require.NoError(t, err)

	forecast := result.Forecast
	assert.True(t, decimal.NewFromInt(100).Equal(forecast.ProjectedSpend), "got %s", forecast.ProjectedSpend)
	assert.True(t, decimal.NewFromInt(100).Equal(forecast.LowerBound))
	assert.True(t, decimal.NewFromInt(100).Equal(forecast.UpperBound))
	assert.Equal(t, ConfidenceHigh, forecast.Confidence)
	assert.InDelta(t, 0.0, forecast.VolatilityScore, 0.0001)
	assert.InDelta(t, 100.0, forecast.PredictabilityScore, 0.0001)
}

func TestAnalyzeForecastShortHistoryHasNoConfidence(t *testing.T) {
	store := testutil.NewInMemoryFactStore()
	require.NoError(t, store.BulkInsertFacts(testutil.SetupContext(), []*billing.BillingUsageFact{
		fact("f1", day1, 100, "Compute", "acct-1"),
		fact("f2", day1.AddDate(0, 0, 1), 110, "Compute", "acct-1"),
	}))

	engine := newTestEngine(store)
	result, err := engine.Analyze(testutil.SetupContext(), dayScope(day1, 2))
	require.NoError(t, err)

	assert.Equal(t, ConfidenceNone, result.Forecast.Confidence)
}

func TestAnalyzeTopMovers(t *testing.T) {
	store := testutil.NewInMemoryFactStore()
	require.NoError(t, store.BulkInsertFacts(testutil.SetupContext(), []*billing.BillingUsageFact{
		// Previous window.
		fact("p1", day1.AddDate(0, 0, -2), 100, "Compute", "acct-1"),
		fact("p2", day1.AddDate(0, 0, -2), 50, "Storage", "acct-1"),
		fact("p3", day1.AddDate(0, 0, -1), 30, "Database", "acct-1"),
		// Current window: Compute +200, Storage -50, Database unchanged.
		fact("c1", day1, 300, "Compute", "acct-1"),
		fact("c2", day1.AddDate(0, 0, 1), 30, "Database", "acct-1"),
	}))

	scope := dayScope(day1, 2)
	scope.CompareMode = types.CompareModePreviousPeriod

	engine := newTestEngine(store)
	result, err := engine.Analyze(testutil.SetupContext(), scope)
	require.NoError(t, err)

	require.Len(t, result.TopMovers, 2)
	assert.Equal(t, "Compute", result.TopMovers[0].Name)
	assert.True(t, decimal.NewFromInt(200).Equal(result.TopMovers[0].DeltaValue))
	assert.Equal(t, "Storage", result.TopMovers[1].Name)
	assert.True(t, decimal.NewFromInt(-50).Equal(result.TopMovers[1].DeltaValue))
}

func TestAnalyzeNoMoversWithoutComparison(t *testing.T) {
	store := testutil.NewInMemoryFactStore()
	require.NoError(t, store.BulkInsertFacts(testutil.SetupContext(), []*billing.BillingUsageFact{
		fact("f1", day1, 100, "Compute", "acct-1"),
	}))

	engine := newTestEngine(store)
	result, err := engine.Analyze(testutil.SetupContext(), dayScope(day1, 1))
	require.NoError(t, err)
	assert.Empty(t, result.TopMovers)
}

func TestAnalyzeEmptyScope(t *testing.T) {
	store := testutil.NewInMemoryFactStore()
	engine := newTestEngine(store)

	result, err := engine.Analyze(testutil.SetupContext(), dayScope(day1, 7))
	require.NoError(t, err)

	assert.True(t, result.Totals.CurrentSpend.IsZero())
	assert.Equal(t, uint64(0), result.Totals.RowCount)
	assert.Empty(t, result.Breakdowns[types.GroupByService])
	assert.Empty(t, result.Concentration[types.GroupByService].Points)
	require.Len(t, result.Trend, 7)
	for _, point := range result.Trend {
		assert.True(t, point.CurrentTotal.IsZero())
	}
	assert.Empty(t, result.Anomalies.Highlights)
	assert.Empty(t, result.TopMovers)
}

func TestAnalyzeTagBackedDimension(t *testing.T) {
	store := testutil.NewInMemoryFactStore()
	f1 := fact("f1", day1, 120, "Compute", "acct-1")
	f1.Tags = map[string]string{"team": "platform"}
	f2 := fact("f2", day1, 80, "Compute", "acct-1")
	f2.Tags = map[string]string{"team": "data"}
	require.NoError(t, store.BulkInsertFacts(testutil.SetupContext(), []*billing.BillingUsageFact{f1, f2}))

	scope := dayScope(day1, 1)
	scope.Dimensions = []types.GroupBy{types.GroupByTeam}

	engine := newTestEngine(store)
	result, err := engine.Analyze(testutil.SetupContext(), scope)
	require.NoError(t, err)

	rows := result.Breakdowns[types.GroupByTeam]
	require.Len(t, rows, 2)
	assert.Equal(t, "platform", rows[0].Name)
	assert.Equal(t, "data", rows[1].Name)
}

func TestAnalyzeRejectsInvalidScope(t *testing.T) {
	engine := newTestEngine(testutil.NewInMemoryFactStore())

	scope := dayScope(day1, 1)
	scope.EndTime = scope.StartTime
	_, err := engine.Analyze(testutil.SetupContext(), scope)
	assert.Error(t, err)

	scope = dayScope(day1, 1)
	scope.Granularity = "hour"
	_, err = engine.Analyze(testutil.SetupContext(), scope)
	assert.Error(t, err)
}
