package billing

import (
	"context"
	"time"

	"github.com/costlens/costlens/internal/types"
	"github.com/shopspring/decimal"
)

// FactRepository is the append-only fact store. Writes are bulk-only and
// dedup-safe: re-inserting a row with the same (upload_id, row_hash) must
// not produce a second fact. Reads are scoped aggregates with the filters
// pushed into the store query.
type FactRepository interface {
	BulkInsertFacts(ctx context.Context, facts []*BillingUsageFact) error

	// ScopedTotals returns total spend, matched row count and the latest
	// ingestion timestamp for the scope.
	ScopedTotals(ctx context.Context, q ScopeQuery) (*ScopedTotals, error)

	// SpendByDimension returns spend grouped by the dimension's display
	// name over the scope window, every entity included.
	SpendByDimension(ctx context.Context, q ScopeQuery, dim types.GroupBy) ([]DimensionSpend, error)

	// BucketTotals returns per-bucket spend at the given granularity.
	BucketTotals(ctx context.Context, q ScopeQuery, g types.Granularity) ([]BucketTotal, error)

	// BucketSpendByDimension returns per-bucket per-entity spend for the
	// dimension at the given granularity.
	BucketSpendByDimension(ctx context.Context, q ScopeQuery, g types.Granularity, dim types.GroupBy) ([]BucketDimensionSpend, error)

	// CountFactsByUpload returns the number of distinct fact rows persisted
	// for an upload.
	CountFactsByUpload(ctx context.Context, uploadID string) (uint64, error)
}

// DimensionRepository is the upsert-once reference store for dimension keys.
// GetOrCreate must be idempotent under concurrent calls with the same
// natural key; the store-level uniqueness constraint is the authority.
type DimensionRepository interface {
	GetOrCreate(ctx context.Context, family types.DimensionFamily, naturalKey, displayName string) (*DimensionKey, error)
	Get(ctx context.Context, family types.DimensionFamily, naturalKey string) (*DimensionKey, error)
}

// ScopedTotals is the headline aggregate of one scope read.
type ScopedTotals struct {
	TotalSpend       decimal.Decimal
	RowCount         uint64
	LatestIngestedAt time.Time
}

// DimensionSpend is one entity's spend within a scope window.
type DimensionSpend struct {
	Name  string
	Spend decimal.Decimal
}

// BucketTotal is one granularity bucket's total spend.
type BucketTotal struct {
	Bucket time.Time
	Spend  decimal.Decimal
}

// BucketDimensionSpend is one entity's spend within one bucket.
type BucketDimensionSpend struct {
	Bucket time.Time
	Name   string
	Spend  decimal.Decimal
}
