// Package analytics computes the derived structures behind the cost
// dashboard: breakdowns, concentration, trend with comparison, anomaly
// detection, forecasting and top movers. The engine is read-only and
// stateless per request; everything derives from scoped aggregate reads of
// the fact store.
package analytics

import (
	"context"
	"time"

	"github.com/costlens/costlens/internal/config"
	"github.com/costlens/costlens/internal/domain/billing"
	"github.com/costlens/costlens/internal/logger"
	"github.com/costlens/costlens/internal/types"
	"github.com/shopspring/decimal"
)

type Engine struct {
	repo   billing.FactRepository
	cfg    config.AnalyticsConfig
	logger *logger.Logger
}

func NewEngine(repo billing.FactRepository, cfg config.AnalyticsConfig, logger *logger.Logger) *Engine {
	return &Engine{repo: repo, cfg: cfg, logger: logger}
}

// Totals is the headline comparison of the scope.
type Totals struct {
	CurrentSpend     decimal.Decimal
	PreviousSpend    decimal.Decimal
	DeltaValue       decimal.Decimal
	DeltaPercent     float64
	RowCount         uint64
	LatestIngestedAt time.Time
}

// BreakdownRow is one entity of a dimension breakdown. Rows for a dimension
// (top entities plus the Others rollup) sum to the scoped total spend.
type BreakdownRow struct {
	Name          string
	CurrentSpend  decimal.Decimal
	PreviousSpend decimal.Decimal
	SharePercent  float64
	DeltaValue    decimal.Decimal
	DeltaPercent  float64
	IsOthers      bool
	MemberCount   int
}

// ConcentrationPoint is one entity of the Pareto sequence, descending by
// spend with a non-decreasing cumulative share.
type ConcentrationPoint struct {
	Name                   string
	Spend                  decimal.Decimal
	SharePercent           float64
	CumulativeSharePercent float64
}

// ConcentrationSummary is the Pareto view of one dimension plus its band.
type ConcentrationSummary struct {
	Points           []ConcentrationPoint
	TopSharePercent  float64
	Top3SharePercent float64
	Band             ConcentrationBand
}

type ConcentrationBand string

const (
	BandOnTrack  ConcentrationBand = "on_track"
	BandWatch    ConcentrationBand = "watch"
	BandCritical ConcentrationBand = "critical"
)

// TrendPoint is one granularity bucket of the trend series.
type TrendPoint struct {
	Bucket        time.Time
	CurrentTotal  decimal.Decimal
	PreviousTotal decimal.Decimal
	// Series holds per-entity spend for the top-N entities of the trend
	// dimension plus the Other rollup; series values sum to CurrentTotal.
	Series        map[string]decimal.Decimal
	Anomaly       bool
	AnomalyImpact decimal.Decimal
}

// AnomalyHighlight is one flagged bucket with its likely drivers.
type AnomalyHighlight struct {
	DetectedAt    time.Time
	Impact        decimal.Decimal
	Confidence    string
	LikelyDrivers []string
}

// AnomalySummary aggregates anomaly impact across the scope.
type AnomalySummary struct {
	TotalImpact   decimal.Decimal
	ImpactPercent float64
	Highlights    []AnomalyHighlight
}

// ForecastResult projects the next bucket's spend with a volatility band.
type ForecastResult struct {
	ProjectedSpend      decimal.Decimal
	LowerBound          decimal.Decimal
	UpperBound          decimal.Decimal
	Confidence          ForecastConfidence
	PredictabilityScore float64
	VolatilityScore     float64
}

type ForecastConfidence string

const (
	ConfidenceHigh   ForecastConfidence = "high"
	ConfidenceMedium ForecastConfidence = "medium"
	ConfidenceLow    ForecastConfidence = "low"
	ConfidenceNone   ForecastConfidence = "none"
)

// Mover is one entity ranked by absolute spend delta against the comparison
// window, independent from the share-based breakdown ranking.
type Mover struct {
	Name          string
	CurrentSpend  decimal.Decimal
	PreviousSpend decimal.Decimal
	DeltaValue    decimal.Decimal
	DeltaPercent  float64
}

// Result is the full set of derived structures for one scope.
type Result struct {
	Totals        Totals
	Breakdowns    map[types.GroupBy][]BreakdownRow
	Concentration map[types.GroupBy]*ConcentrationSummary
	Trend         []TrendPoint
	SeriesNames   []string
	Anomalies     AnomalySummary
	Forecast      ForecastResult
	TopMovers     []Mover
}

// Analyze computes every derived structure for the scope. An empty scope is
// not an error: the result carries zero totals and empty collections.
func (e *Engine) Analyze(ctx context.Context, scope *billing.AnalyticsScope) (*Result, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if scope.TopN <= 0 {
		scope.TopN = e.cfg.TopN
	}

	current := scope.Query()
	previous, hasPrevious := scope.PreviousQuery()

	totals, err := e.computeTotals(ctx, current, previous, hasPrevious)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Totals:        *totals,
		Breakdowns:    make(map[types.GroupBy][]BreakdownRow, len(scope.Dimensions)),
		Concentration: make(map[types.GroupBy]*ConcentrationSummary, len(scope.Dimensions)),
	}

	for _, dim := range scope.Dimensions {
		currentSpends, err := e.repo.SpendByDimension(ctx, current, dim)
		if err != nil {
			return nil, err
		}
		previousSpends := map[string]decimal.Decimal{}
		if hasPrevious {
			prevRows, err := e.repo.SpendByDimension(ctx, previous, dim)
			if err != nil {
				return nil, err
			}
			for _, row := range prevRows {
				previousSpends[row.Name] = row.Spend
			}
		}

		result.Breakdowns[dim] = e.computeBreakdown(currentSpends, previousSpends, totals.CurrentSpend, scope.TopN)
		result.Concentration[dim] = e.computeConcentration(currentSpends, totals.CurrentSpend)
	}

	trend, seriesNames, err := e.computeTrend(ctx, scope, current, previous, hasPrevious)
	if err != nil {
		return nil, err
	}
	result.Trend = trend
	result.SeriesNames = seriesNames

	e.detectAnomalies(result.Trend)
	result.Anomalies = e.summarizeAnomalies(result.Trend, totals.CurrentSpend)
	result.Forecast = e.computeForecast(result.Trend)

	movers, err := e.computeTopMovers(ctx, scope, current, previous, hasPrevious)
	if err != nil {
		return nil, err
	}
	result.TopMovers = movers

	return result, nil
}

func (e *Engine) computeTotals(ctx context.Context, current, previous billing.ScopeQuery, hasPrevious bool) (*Totals, error) {
	currentTotals, err := e.repo.ScopedTotals(ctx, current)
	if err != nil {
		return nil, err
	}

	totals := &Totals{
		CurrentSpend:     currentTotals.TotalSpend,
		PreviousSpend:    decimal.Zero,
		RowCount:         currentTotals.RowCount,
		LatestIngestedAt: currentTotals.LatestIngestedAt,
	}

	if hasPrevious {
		previousTotals, err := e.repo.ScopedTotals(ctx, previous)
		if err != nil {
			return nil, err
		}
		totals.PreviousSpend = previousTotals.TotalSpend
	}

	totals.DeltaValue = totals.CurrentSpend.Sub(totals.PreviousSpend)
	totals.DeltaPercent = deltaPercent(totals.CurrentSpend, totals.PreviousSpend)
	return totals, nil
}

// deltaPercent is the relative change against the previous value, zero when
// there is nothing to compare against.
func deltaPercent(current, previous decimal.Decimal) float64 {
	if previous.IsZero() {
		return 0
	}
	return current.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// sharePercent is the share of total, zero for a zero total.
func sharePercent(part, total decimal.Decimal) float64 {
	if total.IsZero() {
		return 0
	}
	return part.Div(total).Mul(decimal.NewFromInt(100)).InexactFloat64()
}
