package analytics

import (
	"sort"

	"github.com/costlens/costlens/internal/domain/billing"
	"github.com/shopspring/decimal"
)

// computeConcentration builds the Pareto sequence of a dimension: entities
// descending by spend with running cumulative share. The cumulative share is
// computed on the running sum so it is non-decreasing and ends at 100% of
// the scoped total within rounding.
func (e *Engine) computeConcentration(spends []billing.DimensionSpend, total decimal.Decimal) *ConcentrationSummary {
	summary := &ConcentrationSummary{
		Points: []ConcentrationPoint{},
		Band:   BandOnTrack,
	}
	if len(spends) == 0 {
		return summary
	}

	sorted := make([]billing.DimensionSpend, len(spends))
	copy(sorted, spends)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Spend.Equal(sorted[j].Spend) {
			return sorted[i].Spend.GreaterThan(sorted[j].Spend)
		}
		return sorted[i].Name < sorted[j].Name
	})

	running := decimal.Zero
	for _, entity := range sorted {
		running = running.Add(entity.Spend)
		summary.Points = append(summary.Points, ConcentrationPoint{
			Name:                   entity.Name,
			Spend:                  entity.Spend,
			SharePercent:           sharePercent(entity.Spend, total),
			CumulativeSharePercent: sharePercent(running, total),
		})
	}

	summary.TopSharePercent = summary.Points[0].SharePercent
	top3 := len(summary.Points)
	if top3 > 3 {
		top3 = 3
	}
	summary.Top3SharePercent = summary.Points[top3-1].CumulativeSharePercent
	summary.Band = e.concentrationBand(summary.Top3SharePercent)

	return summary
}

// concentrationBand classifies top-3 share against the configured
// thresholds.
func (e *Engine) concentrationBand(top3SharePercent float64) ConcentrationBand {
	switch {
	case top3SharePercent >= e.cfg.ConcentrationCriticalPercent:
		return BandCritical
	case top3SharePercent >= e.cfg.ConcentrationWatchPercent:
		return BandWatch
	default:
		return BandOnTrack
	}
}
