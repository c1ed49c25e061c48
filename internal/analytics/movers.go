package analytics

import (
	"context"
	"sort"

	"github.com/costlens/costlens/internal/domain/billing"
	"github.com/shopspring/decimal"
)

// computeTopMovers ranks entities of the trend dimension by absolute spend
// delta against the comparison window. This ranking is independent from the
// share-based breakdown: a small entity with a violent swing outranks a
// large stable one. Without a comparison window there are no movers.
func (e *Engine) computeTopMovers(ctx context.Context, scope *billing.AnalyticsScope, current, previous billing.ScopeQuery, hasPrevious bool) ([]Mover, error) {
	if !hasPrevious {
		return []Mover{}, nil
	}

	currentSpends, err := e.repo.SpendByDimension(ctx, current, scope.TrendGroupBy)
	if err != nil {
		return nil, err
	}
	previousSpends, err := e.repo.SpendByDimension(ctx, previous, scope.TrendGroupBy)
	if err != nil {
		return nil, err
	}

	currentByName := make(map[string]decimal.Decimal, len(currentSpends))
	for _, ds := range currentSpends {
		currentByName[ds.Name] = ds.Spend
	}
	previousByName := make(map[string]decimal.Decimal, len(previousSpends))
	for _, ds := range previousSpends {
		previousByName[ds.Name] = ds.Spend
	}

	names := make(map[string]struct{}, len(currentByName)+len(previousByName))
	for name := range currentByName {
		names[name] = struct{}{}
	}
	for name := range previousByName {
		names[name] = struct{}{}
	}

	movers := make([]Mover, 0, len(names))
	for name := range names {
		cur := currentByName[name]
		prev := previousByName[name]
		delta := cur.Sub(prev)
		if delta.IsZero() {
			continue
		}
		movers = append(movers, Mover{
			Name:          name,
			CurrentSpend:  cur,
			PreviousSpend: prev,
			DeltaValue:    delta,
			DeltaPercent:  deltaPercent(cur, prev),
		})
	}

	sort.SliceStable(movers, func(i, j int) bool {
		absI := movers[i].DeltaValue.Abs()
		absJ := movers[j].DeltaValue.Abs()
		if !absI.Equal(absJ) {
			return absI.GreaterThan(absJ)
		}
		return movers[i].Name < movers[j].Name
	})

	if len(movers) > scope.TopN {
		movers = movers[:scope.TopN]
	}
	return movers, nil
}
