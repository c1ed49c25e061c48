package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/costlens/costlens/internal/domain/billing"
	ierr "github.com/costlens/costlens/internal/errors"
	"github.com/costlens/costlens/internal/types"
	"github.com/shopspring/decimal"
)

// InMemoryFactStore mimics the ClickHouse fact table, including the
// ReplacingMergeTree dedup behavior: facts are keyed by (upload_id, row_hash)
// and a re-insert replaces the previous row instead of duplicating it.
type InMemoryFactStore struct {
	mu    sync.RWMutex
	facts map[string]*billing.BillingUsageFact

	// FailNextInsert makes the next BulkInsertFacts call fail, for testing
	// batch-loss accounting.
	FailNextInsert bool
}

func NewInMemoryFactStore() *InMemoryFactStore {
	return &InMemoryFactStore{
		facts: make(map[string]*billing.BillingUsageFact),
	}
}

func (s *InMemoryFactStore) BulkInsertFacts(ctx context.Context, facts []*billing.BillingUsageFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailNextInsert {
		s.FailNextInsert = false
		return ierr.NewError("simulated insert failure").
			WithHint("Injected by test").
			Mark(ierr.ErrDatabase)
	}

	for _, fact := range facts {
		s.facts[fact.UploadID+"\x00"+fact.RowHash] = fact
	}
	return nil
}

func (s *InMemoryFactStore) ScopedTotals(ctx context.Context, q billing.ScopeQuery) (*billing.ScopedTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := &billing.ScopedTotals{TotalSpend: decimal.Zero}
	for _, fact := range s.facts {
		if !matchesScope(fact, q) {
			continue
		}
		totals.TotalSpend = totals.TotalSpend.Add(fact.EffectiveCost)
		totals.RowCount++
		if fact.IngestedAt.After(totals.LatestIngestedAt) {
			totals.LatestIngestedAt = fact.IngestedAt
		}
	}
	return totals, nil
}

func (s *InMemoryFactStore) SpendByDimension(ctx context.Context, q billing.ScopeQuery, dim types.GroupBy) ([]billing.DimensionSpend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byName := make(map[string]decimal.Decimal)
	for _, fact := range s.facts {
		if !matchesScope(fact, q) {
			continue
		}
		name := dimensionName(fact, dim)
		byName[name] = byName[name].Add(fact.EffectiveCost)
	}

	result := make([]billing.DimensionSpend, 0, len(byName))
	for name, spend := range byName {
		result = append(result, billing.DimensionSpend{Name: name, Spend: spend})
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].Spend.Equal(result[j].Spend) {
			return result[i].Spend.GreaterThan(result[j].Spend)
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (s *InMemoryFactStore) BucketTotals(ctx context.Context, q billing.ScopeQuery, g types.Granularity) ([]billing.BucketTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byBucket := make(map[time.Time]decimal.Decimal)
	for _, fact := range s.facts {
		if !matchesScope(fact, q) {
			continue
		}
		bucket := g.Truncate(*fact.ChargePeriodStart)
		byBucket[bucket] = byBucket[bucket].Add(fact.EffectiveCost)
	}

	result := make([]billing.BucketTotal, 0, len(byBucket))
	for bucket, spend := range byBucket {
		result = append(result, billing.BucketTotal{Bucket: bucket, Spend: spend})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Bucket.Before(result[j].Bucket)
	})
	return result, nil
}

func (s *InMemoryFactStore) BucketSpendByDimension(ctx context.Context, q billing.ScopeQuery, g types.Granularity, dim types.GroupBy) ([]billing.BucketDimensionSpend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type bucketName struct {
		bucket time.Time
		name   string
	}
	byKey := make(map[bucketName]decimal.Decimal)
	for _, fact := range s.facts {
		if !matchesScope(fact, q) {
			continue
		}
		key := bucketName{bucket: g.Truncate(*fact.ChargePeriodStart), name: dimensionName(fact, dim)}
		byKey[key] = byKey[key].Add(fact.EffectiveCost)
	}

	result := make([]billing.BucketDimensionSpend, 0, len(byKey))
	for key, spend := range byKey {
		result = append(result, billing.BucketDimensionSpend{Bucket: key.bucket, Name: key.name, Spend: spend})
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].Bucket.Equal(result[j].Bucket) {
			return result[i].Bucket.Before(result[j].Bucket)
		}
		if !result[i].Spend.Equal(result[j].Spend) {
			return result[i].Spend.GreaterThan(result[j].Spend)
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (s *InMemoryFactStore) CountFactsByUpload(ctx context.Context, uploadID string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count uint64
	for _, fact := range s.facts {
		if fact.UploadID == uploadID {
			count++
		}
	}
	return count, nil
}

// Clear removes all stored facts
func (s *InMemoryFactStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts = make(map[string]*billing.BillingUsageFact)
}

func matchesScope(fact *billing.BillingUsageFact, q billing.ScopeQuery) bool {
	if fact.ChargePeriodStart == nil {
		return false
	}
	ts := *fact.ChargePeriodStart
	if ts.Before(q.StartTime) || !ts.Before(q.EndTime) {
		return false
	}

	f := q.Filters
	if f.Provider != "" && fact.Provider != f.Provider {
		return false
	}
	if f.Service != "" && fact.ServiceName != f.Service {
		return false
	}
	if f.Region != "" && fact.RegionName != f.Region {
		return false
	}
	if f.Account != "" && fact.AccountName != f.Account {
		return false
	}
	if f.SubAccount != "" && fact.SubAccountName != f.SubAccount {
		return false
	}
	if f.CostCategory != "" && fact.ChargeCategory != f.CostCategory {
		return false
	}
	for key, value := range f.TagFilters() {
		got, ok := fact.Tags[key]
		if !ok {
			return false
		}
		if value != "" && got != value {
			return false
		}
	}
	return true
}

func dimensionName(fact *billing.BillingUsageFact, dim types.GroupBy) string {
	switch dim {
	case types.GroupByProvider:
		return fact.Provider
	case types.GroupByService:
		return fact.ServiceName
	case types.GroupByRegion:
		return fact.RegionName
	case types.GroupByAccount:
		return fact.AccountName
	case types.GroupBySubAccount:
		return fact.SubAccountName
	case types.GroupBySku:
		return fact.SkuName
	case types.GroupByResource:
		return fact.ResourceName
	case types.GroupByCommitmentDiscount:
		return fact.CommitmentDiscountName
	case types.GroupByCostCategory:
		return fact.ChargeCategory
	case types.GroupByTeam, types.GroupByApp, types.GroupByEnvironment:
		return fact.Tags[dim.TagKey()]
	default:
		return ""
	}
}
