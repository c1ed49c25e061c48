package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/costlens/costlens/internal/api/dto"
	"github.com/costlens/costlens/internal/domain/billing"
	"github.com/costlens/costlens/internal/types"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	NUM_ROWS         = 10000
	BATCH_SIZE       = 200
	REQUESTS_PER_SEC = 10
	API_ENDPOINT     = "http://localhost:8080/v1/ingest"
	TIMEOUT_SECONDS  = 10
)

var (
	providers = []string{"aws", "gcp", "azure"}
	services  = []string{"Compute", "Storage", "Database", "Networking", "Monitoring"}
	regions   = []string{"us-east-1", "us-west-2", "eu-central-1", "ap-south-1"}
	teams     = []string{"platform", "data", "payments", "growth"}
	envs      = []string{"production", "staging", "development"}
)

// generateRow creates a random billing row with a deliberately messy mix of
// value types, the way real export files arrive.
func generateRow(index int, day time.Time) *billing.RawBillingRow {
	quantity := 10 + rand.Float64()*500
	unitPrice := 0.01 + rand.Float64()*0.5
	cost := quantity * unitPrice

	return &billing.RawBillingRow{
		SourceRowID:        uuid.New().String(),
		Provider:           providers[index%len(providers)],
		ChargeCategory:     "Usage",
		ChargeDescription:  fmt.Sprintf("synthetic charge %d", index),
		ConsumedQuantity:   quantity,
		ConsumedUnit:       "Hrs",
		PricingQuantity:    fmt.Sprintf("%.4f", quantity),
		PricingUnit:        "Hrs",
		ListUnitPrice:      unitPrice,
		ListCost:           cost,
		EffectiveUnitPrice: fmt.Sprintf("%.6f", unitPrice*0.9),
		EffectiveCost:      cost * 0.9,
		BilledUnitPrice:    unitPrice * 0.9,
		BilledCost:         fmt.Sprintf("%.6f", cost*0.9),
		ChargePeriodStart:  day.Format("2006-01-02"),
		ChargePeriodEnd:    day.AddDate(0, 0, 1).Format("2006-01-02"),
		BillingPeriodStart: time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC).Format("2006-01-02"),
		BillingPeriodEnd:   time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0).Format("2006-01-02"),
		Tags: map[string]interface{}{
			"team":        teams[index%len(teams)],
			"environment": envs[index%len(envs)],
			"app":         fmt.Sprintf("app-%d", index%7),
		},
		BillingAccountID:   fmt.Sprintf("acct-%d", index%5),
		BillingAccountName: fmt.Sprintf("Account %d", index%5),
		ServiceName:        services[index%len(services)],
		SkuID:              fmt.Sprintf("sku-%d", index%40),
		ResourceID:         fmt.Sprintf("res-%d", index%300),
		ResourceName:       fmt.Sprintf("resource-%d", index%300),
		Region:             regions[index%len(regions)],
	}
}

// SeedBillingRows pushes NUM_ROWS synthetic rows through the ingestion API
// in batches, spread across the trailing 30 days, under one upload id.
func SeedBillingRows() error {
	uploadID := types.GenerateShortIDWithPrefix("UPL_")
	limiter := rate.NewLimiter(rate.Limit(REQUESTS_PER_SEC), 1)
	client := &http.Client{Timeout: TIMEOUT_SECONDS * time.Second}

	now := time.Now().UTC()
	sent := 0
	for start := 0; start < NUM_ROWS; start += BATCH_SIZE {
		end := start + BATCH_SIZE
		if end > NUM_ROWS {
			end = NUM_ROWS
		}

		req := dto.IngestRowsRequest{Rows: make([]*billing.RawBillingRow, 0, end-start)}
		for i := start; i < end; i++ {
			day := now.AddDate(0, 0, -(i % 30)).Truncate(24 * time.Hour)
			req.Rows = append(req.Rows, generateRow(i, day))
		}

		if err := limiter.Wait(context.Background()); err != nil {
			return fmt.Errorf("rate limiter error: %w", err)
		}

		body, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("marshal error: %w", err)
		}

		url := fmt.Sprintf("%s/%s/rows", API_ENDPOINT, uploadID)
		resp, err := client.Post(url, "application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("ingest request failed: %w", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted {
			return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
		}

		sent += end - start
		fmt.Printf("seeded %d/%d rows (upload %s)\n", sent, NUM_ROWS, uploadID)
	}

	return nil
}
