package billing

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	ierr "github.com/costlens/costlens/internal/errors"
	"github.com/costlens/costlens/internal/sanitizer"
	"github.com/costlens/costlens/internal/types"
	"github.com/shopspring/decimal"
)

// RawBillingRow is one source charge line as handed over by the upstream
// extraction collaborator. Value fields are untyped on purpose: exports mix
// strings and numbers freely and the sanitizer owns the coercion.
type RawBillingRow struct {
	// SourceRowID is the natural identity of the row within its upload.
	// When the export carries no row identity it may be left empty and the
	// dedup hash falls back to the charge content.
	SourceRowID string `json:"source_row_id"`

	Provider string `json:"provider"`

	// Charge classification
	ChargeCategory    interface{} `json:"charge_category"`
	ChargeClass       interface{} `json:"charge_class"`
	ChargeDescription interface{} `json:"charge_description"`
	ChargeFrequency   interface{} `json:"charge_frequency"`

	// Quantities
	ConsumedQuantity interface{} `json:"consumed_quantity"`
	ConsumedUnit     interface{} `json:"consumed_unit"`
	PricingQuantity  interface{} `json:"pricing_quantity"`
	PricingUnit      interface{} `json:"pricing_unit"`

	// Prices and costs at the four valuation levels
	ListUnitPrice       interface{} `json:"list_unit_price"`
	ListCost            interface{} `json:"list_cost"`
	ContractedUnitPrice interface{} `json:"contracted_unit_price"`
	ContractedCost      interface{} `json:"contracted_cost"`
	EffectiveUnitPrice  interface{} `json:"effective_unit_price"`
	EffectiveCost       interface{} `json:"effective_cost"`
	BilledUnitPrice     interface{} `json:"billed_unit_price"`
	BilledCost          interface{} `json:"billed_cost"`

	// Period boundaries
	BillingPeriodStart interface{} `json:"billing_period_start"`
	BillingPeriodEnd   interface{} `json:"billing_period_end"`
	ChargePeriodStart  interface{} `json:"charge_period_start"`
	ChargePeriodEnd    interface{} `json:"charge_period_end"`

	// Tag blob, optionally JSON-encoded
	Tags interface{} `json:"tags"`

	// Natural-key dimension attributes
	BillingAccountID       string `json:"billing_account_id"`
	BillingAccountName     string `json:"billing_account_name"`
	SubAccountID           string `json:"sub_account_id"`
	SubAccountName         string `json:"sub_account_name"`
	ServiceName            string `json:"service_name"`
	SkuID                  string `json:"sku_id"`
	ResourceID             string `json:"resource_id"`
	ResourceName           string `json:"resource_name"`
	Region                 string `json:"region"`
	CommitmentDiscountID   string `json:"commitment_discount_id"`
	CommitmentDiscountName string `json:"commitment_discount_name"`
}

// BillingUsageFact is one immutable row of the append-only fact table.
// Dimension references are stored twice: the surrogate key for joins against
// the reference tables, and the denormalized display name so scoped
// aggregation never leaves ClickHouse.
type BillingUsageFact struct {
	ID       string `ch:"id" json:"id"`
	UploadID string `ch:"upload_id" json:"upload_id"`
	RowHash  string `ch:"row_hash" json:"row_hash"`

	Provider string `ch:"provider" json:"provider"`

	AccountKey             uint64 `ch:"account_key" json:"account_key"`
	AccountName            string `ch:"account_name" json:"account_name"`
	ServiceKey             uint64 `ch:"service_key" json:"service_key"`
	ServiceName            string `ch:"service_name" json:"service_name"`
	SkuKey                 uint64 `ch:"sku_key" json:"sku_key"`
	SkuName                string `ch:"sku_name" json:"sku_name"`
	ResourceKey            uint64 `ch:"resource_key" json:"resource_key"`
	ResourceName           string `ch:"resource_name" json:"resource_name"`
	RegionKey              uint64 `ch:"region_key" json:"region_key"`
	RegionName             string `ch:"region_name" json:"region_name"`
	SubAccountKey          uint64 `ch:"sub_account_key" json:"sub_account_key"`
	SubAccountName         string `ch:"sub_account_name" json:"sub_account_name"`
	CommitmentDiscountKey  uint64 `ch:"commitment_discount_key" json:"commitment_discount_key"`
	CommitmentDiscountName string `ch:"commitment_discount_name" json:"commitment_discount_name"`

	ChargeCategory    string `ch:"charge_category" json:"charge_category"`
	ChargeClass       string `ch:"charge_class" json:"charge_class"`
	ChargeDescription string `ch:"charge_description" json:"charge_description"`
	ChargeFrequency   string `ch:"charge_frequency" json:"charge_frequency"`

	ConsumedQuantity decimal.Decimal `ch:"consumed_quantity" json:"consumed_quantity"`
	ConsumedUnit     string          `ch:"consumed_unit" json:"consumed_unit"`
	PricingQuantity  decimal.Decimal `ch:"pricing_quantity" json:"pricing_quantity"`
	PricingUnit      string          `ch:"pricing_unit" json:"pricing_unit"`

	ListUnitPrice       decimal.Decimal `ch:"list_unit_price" json:"list_unit_price"`
	ListCost            decimal.Decimal `ch:"list_cost" json:"list_cost"`
	ContractedUnitPrice decimal.Decimal `ch:"contracted_unit_price" json:"contracted_unit_price"`
	ContractedCost      decimal.Decimal `ch:"contracted_cost" json:"contracted_cost"`
	EffectiveUnitPrice  decimal.Decimal `ch:"effective_unit_price" json:"effective_unit_price"`
	EffectiveCost       decimal.Decimal `ch:"effective_cost" json:"effective_cost"`
	BilledUnitPrice     decimal.Decimal `ch:"billed_unit_price" json:"billed_unit_price"`
	BilledCost          decimal.Decimal `ch:"billed_cost" json:"billed_cost"`

	BillingPeriodStart *time.Time `ch:"billing_period_start" json:"billing_period_start"`
	BillingPeriodEnd   *time.Time `ch:"billing_period_end" json:"billing_period_end"`
	ChargePeriodStart  *time.Time `ch:"charge_period_start" json:"charge_period_start"`
	ChargePeriodEnd    *time.Time `ch:"charge_period_end" json:"charge_period_end"`

	Tags map[string]string `ch:"tags" json:"tags"`

	IngestedAt time.Time `ch:"ingested_at" json:"ingested_at"`
}

// FromRaw sanitizes a raw source row into a fact, wiring in the resolved
// dimension references. It never fails on malformed values; only a missing
// upload id is rejected.
func FromRaw(uploadID string, raw *RawBillingRow, dims DimensionRefs) (*BillingUsageFact, error) {
	if uploadID == "" {
		return nil, ierr.NewError("upload id is required").
			WithHint("Upload ID is required").
			Mark(ierr.ErrValidation)
	}

	fact := &BillingUsageFact{
		ID:       types.GenerateUUIDWithPrefix(types.UUID_PREFIX_FACT),
		UploadID: uploadID,
		RowHash:  raw.Hash(uploadID),
		Provider: sanitizer.ToText(raw.Provider),

		AccountKey:             dims.Account.Key,
		AccountName:            dims.Account.DisplayName,
		ServiceKey:             dims.Service.Key,
		ServiceName:            dims.Service.DisplayName,
		SkuKey:                 dims.Sku.Key,
		SkuName:                dims.Sku.DisplayName,
		ResourceKey:            dims.Resource.Key,
		ResourceName:           dims.Resource.DisplayName,
		RegionKey:              dims.Region.Key,
		RegionName:             dims.Region.DisplayName,
		SubAccountKey:          dims.SubAccount.Key,
		SubAccountName:         dims.SubAccount.DisplayName,
		CommitmentDiscountKey:  dims.CommitmentDiscount.Key,
		CommitmentDiscountName: dims.CommitmentDiscount.DisplayName,

		ChargeCategory:    sanitizer.ToText(raw.ChargeCategory),
		ChargeClass:       sanitizer.ToText(raw.ChargeClass),
		ChargeDescription: sanitizer.ToText(raw.ChargeDescription),
		ChargeFrequency:   sanitizer.ToText(raw.ChargeFrequency),

		ConsumedQuantity: sanitizer.ToDecimal(raw.ConsumedQuantity),
		ConsumedUnit:     sanitizer.ToText(raw.ConsumedUnit),
		PricingQuantity:  sanitizer.ToDecimal(raw.PricingQuantity),
		PricingUnit:      sanitizer.ToText(raw.PricingUnit),

		ListUnitPrice:       sanitizer.ToDecimal(raw.ListUnitPrice),
		ListCost:            sanitizer.ToDecimal(raw.ListCost),
		ContractedUnitPrice: sanitizer.ToDecimal(raw.ContractedUnitPrice),
		ContractedCost:      sanitizer.ToDecimal(raw.ContractedCost),
		EffectiveUnitPrice:  sanitizer.ToDecimal(raw.EffectiveUnitPrice),
		EffectiveCost:       sanitizer.ToDecimal(raw.EffectiveCost),
		BilledUnitPrice:     sanitizer.ToDecimal(raw.BilledUnitPrice),
		BilledCost:          sanitizer.ToDecimal(raw.BilledCost),

		BillingPeriodStart: nillableDate(sanitizer.ToDate(raw.BillingPeriodStart)),
		BillingPeriodEnd:   nillableDate(sanitizer.ToDate(raw.BillingPeriodEnd)),
		ChargePeriodStart:  nillableDate(sanitizer.ToDate(raw.ChargePeriodStart)),
		ChargePeriodEnd:    nillableDate(sanitizer.ToDate(raw.ChargePeriodEnd)),

		Tags: sanitizer.ToTagMap(raw.Tags),

		IngestedAt: time.Now().UTC(),
	}

	return fact, nil
}

// Hash computes the dedup identity of the row within its upload. With a
// source row id the identity is (upload, row id); without one it degrades to
// a content hash over the charge identity fields.
func (r *RawBillingRow) Hash(uploadID string) string {
	h := sha256.New()
	h.Write([]byte(uploadID))
	h.Write([]byte{0})

	if r.SourceRowID != "" {
		h.Write([]byte(r.SourceRowID))
		return hex.EncodeToString(h.Sum(nil))
	}

	parts := []string{
		sanitizer.ToText(r.Provider),
		r.BillingAccountID,
		r.SubAccountID,
		r.ServiceName,
		r.SkuID,
		r.ResourceID,
		r.Region,
		r.CommitmentDiscountID,
		sanitizer.ToText(r.ChargeCategory),
		sanitizer.ToText(r.ChargeDescription),
		sanitizer.ToDate(r.ChargePeriodStart).Format("2006-01-02"),
		sanitizer.ToDate(r.ChargePeriodEnd).Format("2006-01-02"),
		sanitizer.ToDecimal(r.ConsumedQuantity).String(),
		sanitizer.ToDecimal(r.BilledCost).String(),
	}
	tagKeys := make([]string, 0)
	tags := sanitizer.ToTagMap(r.Tags)
	for k := range tags {
		tagKeys = append(tagKeys, k)
	}
	sort.Strings(tagKeys)
	for _, k := range tagKeys {
		parts = append(parts, k+"="+tags[k])
	}

	h.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h.Sum(nil))
}

func nillableDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
