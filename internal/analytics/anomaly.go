package analytics

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// detectAnomalies flags trend buckets whose total deviates from the rolling
// trailing baseline by more than the configured multiple of the rolling
// standard deviation. The baseline for a bucket is built from the trailing
// window strictly before it, so a spike never inflates its own baseline.
func (e *Engine) detectAnomalies(points []TrendPoint) {
	window := e.cfg.AnomalyWindow
	multiplier := e.cfg.AnomalyStdDevMultiplier

	for i := range points {
		start := i - window
		if start < 0 {
			start = 0
		}
		trailing := points[start:i]
		if len(trailing) < 2 {
			continue
		}

		baseline, stddev := meanAndStdDev(trailing)
		threshold := stddev * multiplier
		if threshold <= 0 {
			continue
		}

		deviation := points[i].CurrentTotal.InexactFloat64() - baseline
		if math.Abs(deviation) > threshold {
			points[i].Anomaly = true
			points[i].AnomalyImpact = points[i].CurrentTotal.Sub(decimal.NewFromFloat(baseline)).Abs()
		}
	}
}

// summarizeAnomalies aggregates total anomaly impact across the scope and
// builds the highlight list with likely drivers per flagged bucket.
func (e *Engine) summarizeAnomalies(points []TrendPoint, totalSpend decimal.Decimal) AnomalySummary {
	summary := AnomalySummary{
		TotalImpact: decimal.Zero,
		Highlights:  []AnomalyHighlight{},
	}

	for _, point := range points {
		if !point.Anomaly {
			continue
		}
		summary.TotalImpact = summary.TotalImpact.Add(point.AnomalyImpact)
		summary.Highlights = append(summary.Highlights, AnomalyHighlight{
			DetectedAt:    point.Bucket,
			Impact:        point.AnomalyImpact,
			Confidence:    anomalyConfidence(point),
			LikelyDrivers: likelyDrivers(point),
		})
	}

	summary.ImpactPercent = sharePercent(summary.TotalImpact, totalSpend)
	return summary
}

// anomalyConfidence grades a flagged bucket by how far its impact outweighs
// the bucket total it disturbed.
func anomalyConfidence(point TrendPoint) string {
	if point.CurrentTotal.IsZero() {
		return "low"
	}
	ratio := point.AnomalyImpact.Div(point.CurrentTotal).InexactFloat64()
	switch {
	case ratio >= 0.5:
		return "high"
	case ratio >= 0.25:
		return "medium"
	default:
		return "low"
	}
}

// likelyDrivers names the largest series contributors of the flagged
// bucket, excluding the Other rollup.
func likelyDrivers(point TrendPoint) []string {
	type contribution struct {
		name  string
		spend decimal.Decimal
	}
	contributions := make([]contribution, 0, len(point.Series))
	for name, spend := range point.Series {
		if name == seriesOther || spend.IsZero() {
			continue
		}
		contributions = append(contributions, contribution{name: name, spend: spend})
	}
	sort.SliceStable(contributions, func(i, j int) bool {
		if !contributions[i].spend.Equal(contributions[j].spend) {
			return contributions[i].spend.GreaterThan(contributions[j].spend)
		}
		return contributions[i].name < contributions[j].name
	})

	const maxDrivers = 3
	drivers := make([]string, 0, maxDrivers)
	for _, c := range contributions {
		if len(drivers) == maxDrivers {
			break
		}
		drivers = append(drivers, c.name)
	}
	return drivers
}

// meanAndStdDev computes the population mean and standard deviation of the
// bucket totals.
func meanAndStdDev(points []TrendPoint) (float64, float64) {
	n := float64(len(points))
	sum := 0.0
	for _, point := range points {
		sum += point.CurrentTotal.InexactFloat64()
	}
	mean := sum / n

	variance := 0.0
	for _, point := range points {
		diff := point.CurrentTotal.InexactFloat64() - mean
		variance += diff * diff
	}
	variance /= n

	return mean, math.Sqrt(variance)
}
