package clickhouse

import (
	"context"
	"time"

	"github.com/costlens/costlens/internal/clickhouse"
	"github.com/costlens/costlens/internal/domain/billing"
	ierr "github.com/costlens/costlens/internal/errors"
	"github.com/costlens/costlens/internal/logger"
	"github.com/costlens/costlens/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

const insertChunkSize = 500

type FactRepository struct {
	store  *clickhouse.ClickHouseStore
	logger *logger.Logger
}

func NewFactRepository(store *clickhouse.ClickHouseStore, logger *logger.Logger) billing.FactRepository {
	return &FactRepository{store: store, logger: logger}
}

// BulkInsertFacts persists facts in chunked prepared batches. The table is a
// ReplacingMergeTree ordered by (upload_id, row_hash), so re-inserting the
// same source row for the same upload collapses to a single fact instead of
// failing the batch.
func (r *FactRepository) BulkInsertFacts(ctx context.Context, facts []*billing.BillingUsageFact) error {
	if len(facts) == 0 {
		return nil
	}

	for _, chunk := range lo.Chunk(facts, insertChunkSize) {
		batch, err := r.store.GetConn().PrepareBatch(ctx, `
		INSERT INTO billing_usage_facts (
			id, upload_id, row_hash, provider,
			account_key, account_name, service_key, service_name,
			sku_key, sku_name, resource_key, resource_name,
			region_key, region_name, sub_account_key, sub_account_name,
			commitment_discount_key, commitment_discount_name,
			charge_category, charge_class, charge_description, charge_frequency,
			consumed_quantity, consumed_unit, pricing_quantity, pricing_unit,
			list_unit_price, list_cost, contracted_unit_price, contracted_cost,
			effective_unit_price, effective_cost, billed_unit_price, billed_cost,
			billing_period_start, billing_period_end, charge_period_start, charge_period_end,
			tags, ingested_at
		)
	`)
		if err != nil {
			return ierr.WithError(err).
				WithHint("Failed to prepare batch for billing facts").
				Mark(ierr.ErrDatabase)
		}

		for _, fact := range chunk {
			err = batch.Append(
				fact.ID,
				fact.UploadID,
				fact.RowHash,
				fact.Provider,
				fact.AccountKey,
				fact.AccountName,
				fact.ServiceKey,
				fact.ServiceName,
				fact.SkuKey,
				fact.SkuName,
				fact.ResourceKey,
				fact.ResourceName,
				fact.RegionKey,
				fact.RegionName,
				fact.SubAccountKey,
				fact.SubAccountName,
				fact.CommitmentDiscountKey,
				fact.CommitmentDiscountName,
				fact.ChargeCategory,
				fact.ChargeClass,
				fact.ChargeDescription,
				fact.ChargeFrequency,
				fact.ConsumedQuantity,
				fact.ConsumedUnit,
				fact.PricingQuantity,
				fact.PricingUnit,
				fact.ListUnitPrice,
				fact.ListCost,
				fact.ContractedUnitPrice,
				fact.ContractedCost,
				fact.EffectiveUnitPrice,
				fact.EffectiveCost,
				fact.BilledUnitPrice,
				fact.BilledCost,
				fact.BillingPeriodStart,
				fact.BillingPeriodEnd,
				fact.ChargePeriodStart,
				fact.ChargePeriodEnd,
				fact.Tags,
				fact.IngestedAt,
			)
			if err != nil {
				return ierr.WithError(err).
					WithHint("Failed to append billing fact to batch").
					WithReportableDetails(map[string]interface{}{
						"fact_id":   fact.ID,
						"upload_id": fact.UploadID,
					}).
					Mark(ierr.ErrDatabase)
			}
		}

		if err := batch.Send(); err != nil {
			return ierr.WithError(err).
				WithHint("Failed to insert billing facts").
				WithReportableDetails(map[string]interface{}{
					"fact_count": len(chunk),
					"upload_id":  chunk[0].UploadID,
				}).
				Mark(ierr.ErrDatabase)
		}
	}

	r.logger.Debugw("bulk inserted billing facts",
		"fact_count", len(facts),
		"upload_id", facts[0].UploadID,
	)

	return nil
}

// ScopedTotals aggregates total spend, row count and data freshness for the
// scope in a single pass.
func (r *FactRepository) ScopedTotals(ctx context.Context, q billing.ScopeQuery) (*billing.ScopedTotals, error) {
	query := `
		SELECT
			SUM(effective_cost) AS total_spend,
			count() AS row_count,
			max(ingested_at) AS latest_ingested_at
		FROM billing_usage_facts FINAL
		WHERE charge_period_start >= ? AND charge_period_start < ?
	`
	args := []interface{}{q.StartTime, q.EndTime}
	query, args = appendScopeFilters(query, args, q.Filters)

	var (
		totalSpend decimal.Decimal
		rowCount   uint64
		latest     time.Time
	)
	if err := r.store.GetConn().QueryRow(ctx, query, args...).Scan(&totalSpend, &rowCount, &latest); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to aggregate scoped totals").
			Mark(ierr.ErrDatabase)
	}

	totals := &billing.ScopedTotals{
		TotalSpend: totalSpend,
		RowCount:   rowCount,
	}
	if rowCount > 0 {
		totals.LatestIngestedAt = latest
	}
	return totals, nil
}

// SpendByDimension groups scoped spend by the dimension's display name.
// Every matching entity is returned; top-N truncation is engine business.
func (r *FactRepository) SpendByDimension(ctx context.Context, q billing.ScopeQuery, dim types.GroupBy) ([]billing.DimensionSpend, error) {
	expr, err := dimensionExpr(dim)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT
			` + expr + ` AS name,
			SUM(effective_cost) AS spend
		FROM billing_usage_facts FINAL
		WHERE charge_period_start >= ? AND charge_period_start < ?
	`
	args := []interface{}{q.StartTime, q.EndTime}
	query, args = appendScopeFilters(query, args, q.Filters)
	query += " GROUP BY name ORDER BY spend DESC, name ASC"

	rows, err := r.store.GetConn().Query(ctx, query, args...)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to aggregate spend by dimension").
			WithReportableDetails(map[string]interface{}{
				"dimension": dim,
			}).
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var result []billing.DimensionSpend
	for rows.Next() {
		var ds billing.DimensionSpend
		if err := rows.Scan(&ds.Name, &ds.Spend); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan dimension spend row").
				Mark(ierr.ErrDatabase)
		}
		result = append(result, ds)
	}
	return result, rows.Err()
}

// BucketTotals sums scoped spend per granularity bucket.
func (r *FactRepository) BucketTotals(ctx context.Context, q billing.ScopeQuery, g types.Granularity) ([]billing.BucketTotal, error) {
	query := `
		SELECT
			` + bucketExpr(g) + ` AS bucket,
			SUM(effective_cost) AS spend
		FROM billing_usage_facts FINAL
		WHERE charge_period_start >= ? AND charge_period_start < ?
	`
	args := []interface{}{q.StartTime, q.EndTime}
	query, args = appendScopeFilters(query, args, q.Filters)
	query += " GROUP BY bucket ORDER BY bucket ASC"

	rows, err := r.store.GetConn().Query(ctx, query, args...)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to aggregate bucket totals").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var result []billing.BucketTotal
	for rows.Next() {
		var bt billing.BucketTotal
		if err := rows.Scan(&bt.Bucket, &bt.Spend); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan bucket total row").
				Mark(ierr.ErrDatabase)
		}
		bt.Bucket = bt.Bucket.UTC()
		result = append(result, bt)
	}
	return result, rows.Err()
}

// BucketSpendByDimension sums scoped spend per bucket and entity.
func (r *FactRepository) BucketSpendByDimension(ctx context.Context, q billing.ScopeQuery, g types.Granularity, dim types.GroupBy) ([]billing.BucketDimensionSpend, error) {
	expr, err := dimensionExpr(dim)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT
			` + bucketExpr(g) + ` AS bucket,
			` + expr + ` AS name,
			SUM(effective_cost) AS spend
		FROM billing_usage_facts FINAL
		WHERE charge_period_start >= ? AND charge_period_start < ?
	`
	args := []interface{}{q.StartTime, q.EndTime}
	query, args = appendScopeFilters(query, args, q.Filters)
	query += " GROUP BY bucket, name ORDER BY bucket ASC, spend DESC, name ASC"

	rows, err := r.store.GetConn().Query(ctx, query, args...)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to aggregate bucket spend by dimension").
			WithReportableDetails(map[string]interface{}{
				"dimension": dim,
			}).
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var result []billing.BucketDimensionSpend
	for rows.Next() {
		var bds billing.BucketDimensionSpend
		if err := rows.Scan(&bds.Bucket, &bds.Name, &bds.Spend); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan bucket dimension spend row").
				Mark(ierr.ErrDatabase)
		}
		bds.Bucket = bds.Bucket.UTC()
		result = append(result, bds)
	}
	return result, rows.Err()
}

// CountFactsByUpload counts deduplicated fact rows for one upload.
func (r *FactRepository) CountFactsByUpload(ctx context.Context, uploadID string) (uint64, error) {
	var count uint64
	err := r.store.GetConn().QueryRow(ctx, `
		SELECT count() FROM billing_usage_facts FINAL WHERE upload_id = ?
	`, uploadID).Scan(&count)
	if err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to count facts for upload").
			WithReportableDetails(map[string]interface{}{
				"upload_id": uploadID,
			}).
			Mark(ierr.ErrDatabase)
	}
	return count, nil
}

// dimensionExpr maps a grouping dimension to its fact column. Tag-backed
// dimensions read the well-known tag key.
func dimensionExpr(dim types.GroupBy) (string, error) {
	switch dim {
	case types.GroupByProvider:
		return "provider", nil
	case types.GroupByService:
		return "service_name", nil
	case types.GroupByRegion:
		return "region_name", nil
	case types.GroupByAccount:
		return "account_name", nil
	case types.GroupBySubAccount:
		return "sub_account_name", nil
	case types.GroupBySku:
		return "sku_name", nil
	case types.GroupByResource:
		return "resource_name", nil
	case types.GroupByCommitmentDiscount:
		return "commitment_discount_name", nil
	case types.GroupByCostCategory:
		return "charge_category", nil
	case types.GroupByTeam, types.GroupByApp, types.GroupByEnvironment:
		return "tags['" + dim.TagKey() + "']", nil
	default:
		return "", ierr.NewError("invalid breakdown dimension").
			WithHint("Unknown breakdown dimension").
			WithReportableDetails(map[string]interface{}{
				"dimension": dim,
			}).
			Mark(ierr.ErrValidation)
	}
}

// bucketExpr maps a granularity to the ClickHouse bucketing expression.
// Weeks start on Monday to match Granularity.Truncate.
func bucketExpr(g types.Granularity) string {
	switch g {
	case types.GranularityWeek:
		return "toDateTime(toStartOfWeek(charge_period_start, 1), 'UTC')"
	case types.GranularityMonth:
		return "toDateTime(toStartOfMonth(charge_period_start), 'UTC')"
	default:
		return "toDateTime(charge_period_start, 'UTC')"
	}
}

// appendScopeFilters pushes every scope filter into the WHERE clause so the
// store never returns rows the engine would discard.
func appendScopeFilters(query string, args []interface{}, f billing.ScopeFilters) (string, []interface{}) {
	if f.Provider != "" {
		query += " AND provider = ?"
		args = append(args, f.Provider)
	}
	if f.Service != "" {
		query += " AND service_name = ?"
		args = append(args, f.Service)
	}
	if f.Region != "" {
		query += " AND region_name = ?"
		args = append(args, f.Region)
	}
	if f.Account != "" {
		query += " AND account_name = ?"
		args = append(args, f.Account)
	}
	if f.SubAccount != "" {
		query += " AND sub_account_name = ?"
		args = append(args, f.SubAccount)
	}
	if f.CostCategory != "" {
		query += " AND charge_category = ?"
		args = append(args, f.CostCategory)
	}
	for key, value := range f.TagFilters() {
		if value == "" {
			query += " AND mapContains(tags, ?)"
			args = append(args, key)
			continue
		}
		query += " AND tags[?] = ?"
		args = append(args, key, value)
	}
	return query, args
}
