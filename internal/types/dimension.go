package types

import (
	ierr "github.com/costlens/costlens/internal/errors"
)

// DimensionFamily identifies one of the surrogate-keyed reference dimensions
// of the star schema.
type DimensionFamily string

const (
	DimensionCloudAccount       DimensionFamily = "cloud_account"
	DimensionService            DimensionFamily = "service"
	DimensionSku                DimensionFamily = "sku"
	DimensionResource           DimensionFamily = "resource"
	DimensionRegion             DimensionFamily = "region"
	DimensionSubAccount         DimensionFamily = "sub_account"
	DimensionCommitmentDiscount DimensionFamily = "commitment_discount"
)

// DimensionFamilies lists every surrogate-keyed family in schema order.
func DimensionFamilies() []DimensionFamily {
	return []DimensionFamily{
		DimensionCloudAccount,
		DimensionService,
		DimensionSku,
		DimensionResource,
		DimensionRegion,
		DimensionSubAccount,
		DimensionCommitmentDiscount,
	}
}

func (d DimensionFamily) Validate() error {
	for _, family := range DimensionFamilies() {
		if d == family {
			return nil
		}
	}
	return ierr.NewError("invalid dimension family").
		WithHint("Unknown dimension family").
		WithReportableDetails(map[string]any{
			"dimension": d,
		}).
		Mark(ierr.ErrValidation)
}

// GroupBy is an analytics grouping dimension. Tag-backed dimensions group by
// the value of a well-known tag key instead of a fact column.
type GroupBy string

const (
	GroupByProvider           GroupBy = "provider"
	GroupByService            GroupBy = "service"
	GroupByRegion             GroupBy = "region"
	GroupByAccount            GroupBy = "account"
	GroupBySubAccount         GroupBy = "sub_account"
	GroupBySku                GroupBy = "sku"
	GroupByResource           GroupBy = "resource"
	GroupByCommitmentDiscount GroupBy = "commitment_discount"
	GroupByCostCategory       GroupBy = "cost_category"
	GroupByTeam               GroupBy = "team"
	GroupByApp                GroupBy = "app"
	GroupByEnvironment        GroupBy = "environment"
)

// Well-known tag keys backing the team/app/environment dimensions.
const (
	TagKeyTeam        = "team"
	TagKeyApp         = "app"
	TagKeyEnvironment = "environment"
)

func AllGroupBys() []GroupBy {
	return []GroupBy{
		GroupByProvider,
		GroupByService,
		GroupByRegion,
		GroupByAccount,
		GroupBySubAccount,
		GroupBySku,
		GroupByResource,
		GroupByCommitmentDiscount,
		GroupByCostCategory,
		GroupByTeam,
		GroupByApp,
		GroupByEnvironment,
	}
}

func (g GroupBy) Validate() error {
	for _, gb := range AllGroupBys() {
		if g == gb {
			return nil
		}
	}
	return ierr.NewError("invalid breakdown dimension").
		WithHint("Unknown breakdown dimension").
		WithReportableDetails(map[string]any{
			"dimension": g,
		}).
		Mark(ierr.ErrValidation)
}

// TagKey returns the backing tag key for tag-backed dimensions, or "".
func (g GroupBy) TagKey() string {
	switch g {
	case GroupByTeam:
		return TagKeyTeam
	case GroupByApp:
		return TagKeyApp
	case GroupByEnvironment:
		return TagKeyEnvironment
	default:
		return ""
	}
}
