package analytics

import (
	"sort"

	"github.com/costlens/costlens/internal/domain/billing"
	"github.com/shopspring/decimal"
)

// computeBreakdown ranks entities by current spend, keeps the top N and
// rolls the remainder into a single Others bucket so the rows always sum to
// the scoped total. Ties are broken by name ascending for a stable order.
func (e *Engine) computeBreakdown(current []billing.DimensionSpend, previous map[string]decimal.Decimal, total decimal.Decimal, topN int) []BreakdownRow {
	if len(current) == 0 {
		return []BreakdownRow{}
	}

	sorted := make([]billing.DimensionSpend, len(current))
	copy(sorted, current)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Spend.Equal(sorted[j].Spend) {
			return sorted[i].Spend.GreaterThan(sorted[j].Spend)
		}
		return sorted[i].Name < sorted[j].Name
	})

	rows := make([]BreakdownRow, 0, topN+1)
	for i, entity := range sorted {
		if i >= topN {
			break
		}
		prev := previous[entity.Name]
		rows = append(rows, BreakdownRow{
			Name:          entity.Name,
			CurrentSpend:  entity.Spend,
			PreviousSpend: prev,
			SharePercent:  sharePercent(entity.Spend, total),
			DeltaValue:    entity.Spend.Sub(prev),
			DeltaPercent:  deltaPercent(entity.Spend, prev),
		})
	}

	if len(sorted) > topN {
		rest := sorted[topN:]
		othersSpend := decimal.Zero
		for _, entity := range rest {
			othersSpend = othersSpend.Add(entity.Spend)
		}

		// Previous spend for Others covers everything outside the current
		// top N, including entities that only existed in the previous
		// window.
		inTop := make(map[string]struct{}, topN)
		for _, row := range rows {
			inTop[row.Name] = struct{}{}
		}
		othersPrevious := decimal.Zero
		for name, spend := range previous {
			if _, ok := inTop[name]; !ok {
				othersPrevious = othersPrevious.Add(spend)
			}
		}

		rows = append(rows, BreakdownRow{
			Name:          "Others",
			CurrentSpend:  othersSpend,
			PreviousSpend: othersPrevious,
			SharePercent:  sharePercent(othersSpend, total),
			DeltaValue:    othersSpend.Sub(othersPrevious),
			DeltaPercent:  deltaPercent(othersSpend, othersPrevious),
			IsOthers:      true,
			MemberCount:   len(rest),
		})
	}

	return rows
}
