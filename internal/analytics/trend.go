package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/costlens/costlens/internal/domain/billing"
	"github.com/costlens/costlens/internal/types"
	"github.com/shopspring/decimal"
)

// computeTrend buckets scoped spend at the requested granularity, aligns the
// comparison window bucket by bucket, and splits each bucket into stacked
// series for the top-N entities of the trend dimension plus an Other series.
// Buckets with no facts are materialized as zero so the series is gapless
// for the rolling anomaly baseline and the forecast.
func (e *Engine) computeTrend(ctx context.Context, scope *billing.AnalyticsScope, current, previous billing.ScopeQuery, hasPrevious bool) ([]TrendPoint, []string, error) {
	g := scope.Granularity

	currentTotals, err := e.repo.BucketTotals(ctx, current, g)
	if err != nil {
		return nil, nil, err
	}
	totalsByBucket := make(map[time.Time]decimal.Decimal, len(currentTotals))
	for _, bt := range currentTotals {
		totalsByBucket[g.Truncate(bt.Bucket)] = bt.Spend
	}

	previousByBucket := make(map[time.Time]decimal.Decimal)
	if hasPrevious {
		previousTotals, err := e.repo.BucketTotals(ctx, previous, g)
		if err != nil {
			return nil, nil, err
		}
		for _, bt := range previousTotals {
			previousByBucket[g.Truncate(bt.Bucket)] = bt.Spend
		}
	}

	bucketSpends, err := e.repo.BucketSpendByDimension(ctx, current, g, scope.TrendGroupBy)
	if err != nil {
		return nil, nil, err
	}
	seriesNames, spendsByBucket := e.rankSeries(bucketSpends, scope.TopN, g)

	points := make([]TrendPoint, 0)
	for bucket := g.Truncate(scope.StartTime); bucket.Before(scope.EndTime); bucket = g.Next(bucket) {
		point := TrendPoint{
			Bucket:        bucket,
			CurrentTotal:  decimal.Zero,
			PreviousTotal: decimal.Zero,
			Series:        make(map[string]decimal.Decimal, len(seriesNames)),
			AnomalyImpact: decimal.Zero,
		}
		if total, ok := totalsByBucket[bucket]; ok {
			point.CurrentTotal = total
		}
		if hasPrevious {
			aligned := g.Truncate(scope.CompareMode.AlignBucket(bucket, scope.StartTime, scope.EndTime))
			if prev, ok := previousByBucket[aligned]; ok {
				point.PreviousTotal = prev
			}
		}

		// Stacked series must sum to the bucket total, so Other is the
		// remainder after the named series.
		named := decimal.Zero
		for _, name := range seriesNames {
			if name == seriesOther {
				continue
			}
			spend := spendsByBucket[bucket][name]
			point.Series[name] = spend
			named = named.Add(spend)
		}
		if hasOther(seriesNames) {
			point.Series[seriesOther] = point.CurrentTotal.Sub(named)
		}

		points = append(points, point)
	}

	return points, seriesNames, nil
}

const seriesOther = "Other"

// rankSeries picks the top-N entities of the trend dimension by spend across
// the whole window and indexes per-bucket spends by bucket and name.
func (e *Engine) rankSeries(bucketSpends []billing.BucketDimensionSpend, topN int, g types.Granularity) ([]string, map[time.Time]map[string]decimal.Decimal) {
	if len(bucketSpends) == 0 {
		return []string{}, map[time.Time]map[string]decimal.Decimal{}
	}

	windowTotals := make(map[string]decimal.Decimal)
	spendsByBucket := make(map[time.Time]map[string]decimal.Decimal)
	for _, bds := range bucketSpends {
		bucket := g.Truncate(bds.Bucket)
		if spendsByBucket[bucket] == nil {
			spendsByBucket[bucket] = make(map[string]decimal.Decimal)
		}
		spendsByBucket[bucket][bds.Name] = spendsByBucket[bucket][bds.Name].Add(bds.Spend)
		windowTotals[bds.Name] = windowTotals[bds.Name].Add(bds.Spend)
	}

	names := make([]string, 0, len(windowTotals))
	for name := range windowTotals {
		names = append(names, name)
	}
	sort.SliceStable(names, func(i, j int) bool {
		if !windowTotals[names[i]].Equal(windowTotals[names[j]]) {
			return windowTotals[names[i]].GreaterThan(windowTotals[names[j]])
		}
		return names[i] < names[j]
	})

	if len(names) > topN {
		names = append(names[:topN:topN], seriesOther)
	}
	return names, spendsByBucket
}

func hasOther(seriesNames []string) bool {
	for _, name := range seriesNames {
		if name == seriesOther {
			return true
		}
	}
	return false
}
