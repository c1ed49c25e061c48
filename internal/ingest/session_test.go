package ingest

import (
	"context"
	"fmt"
	"testing"

	"github.com/costlens/costlens/internal/dimension"
	"github.com/costlens/costlens/internal/domain/billing"
	"github.com/costlens/costlens/internal/logger"
	"github.com/costlens/costlens/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, uploadID string, batchSize int, facts *testutil.InMemoryFactStore, dims *testutil.InMemoryDimensionStore) *Session {
	t.Helper()
	resolver := dimension.NewResolver(dims, logger.NewNoopLogger())
	session, err := NewSession(uploadID, batchSize, facts, resolver, logger.NewNoopLogger())
	require.NoError(t, err)
	return session
}

func makeRow(i int) *billing.RawBillingRow {
	return &billing.RawBillingRow{
		SourceRowID:        fmt.Sprintf("row-%d", i),
		Provider:           "aws",
		ServiceName:        "Compute",
		Region:             "us-east-1",
		BillingAccountID:   "acct-1",
		BillingAccountName: "Main Account",
		ChargePeriodStart:  "2024-06-01",
		ChargePeriodEnd:    "2024-06-02",
		EffectiveCost:      "10.50",
		BilledCost:         10.50,
	}
}

func TestSessionAppendAndFlush(t *testing.T) {
	ctx := context.Background()
	facts := testutil.NewInMemoryFactStore()
	dims := testutil.NewInMemoryDimensionStore()
	session := newTestSession(t, "upl_1", 100, facts, dims)

	for i := 0; i < 10; i++ {
		require.NoError(t, session.Append(ctx, makeRow(i)))
	}
	require.NoError(t, session.Flush(ctx))

	summary := session.Summary()
	assert.Equal(t, "upl_1", summary.UploadID)
	assert.Equal(t, 10, summary.RowsAppended)
	assert.Equal(t, 10, summary.RowsFlushed)
	assert.Equal(t, 0, summary.RowsDropped)
	assert.Equal(t, 1, summary.BatchesSent)

	count, err := facts.CountFactsByUpload(ctx, "upl_1")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), count)
}

func TestSessionAutoFlushAtBatchSize(t *testing.T) {
	ctx := context.Background()
	facts := testutil.NewInMemoryFactStore()
	dims := testutil.NewInMemoryDimensionStore()
	session := newTestSession(t, "upl_auto", 3, facts, dims)

	for i := 0; i < 7; i++ {
		require.NoError(t, session.Append(ctx, makeRow(i)))
	}
	require.NoError(t, session.Flush(ctx))

	summary := session.Summary()
	assert.Equal(t, 7, summary.RowsAppended)
	assert.Equal(t, 7, summary.RowsFlushed)
	assert.Equal(t, 3, summary.BatchesSent)
}

func TestSessionFlushEmptyBufferIsNoop(t *testing.T) {
	ctx := context.Background()
	facts := testutil.NewInMemoryFactStore()
	dims := testutil.NewInMemoryDimensionStore()
	session := newTestSession(t, "upl_empty", 10, facts, dims)

	require.NoError(t, session.Flush(ctx))
	assert.Equal(t, 0, session.Summary().BatchesSent)
}

func TestSessionReingestIsDeduplicated(t *testing.T) {
	ctx := context.Background()
	facts := testutil.NewInMemoryFactStore()
	dims := testutil.NewInMemoryDimensionStore()

	first := newTestSession(t, "upl_dup", 100, facts, dims)
	for i := 0; i < 5; i++ {
		require.NoError(t, first.Append(ctx, makeRow(i)))
	}
	require.NoError(t, first.Flush(ctx))

	// Re-ingesting the same upload, e.g. after a crash mid-run, must not
	// double any fact.
	second := newTestSession(t, "upl_dup", 100, facts, dims)
	for i := 0; i < 5; i++ {
		require.NoError(t, second.Append(ctx, makeRow(i)))
	}
	require.NoError(t, second.Flush(ctx))

	count, err := facts.CountFactsByUpload(ctx, "upl_dup")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), count)
}

func TestSessionDistinctUploadsDoNotCollide(t *testing.T) {
	ctx := context.Background()
	facts := testutil.NewInMemoryFactStore()
	dims := testutil.NewInMemoryDimensionStore()

	a := newTestSession(t, "upl_a", 100, facts, dims)
	require.NoError(t, a.Append(ctx, makeRow(0)))
	require.NoError(t, a.Flush(ctx))

	b := newTestSession(t, "upl_b", 100, facts, dims)
	require.NoError(t, b.Append(ctx, makeRow(0)))
	require.NoError(t, b.Flush(ctx))

	countA, err := facts.CountFactsByUpload(ctx, "upl_a")
	require.NoError(t, err)
	countB, err := facts.CountFactsByUpload(ctx, "upl_b")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), countA)
	assert.Equal(t, uint64(1), countB)
}

func TestSessionBatchLossDoesNotAbortIngestion(t *testing.T) {
	ctx := context.Background()
	facts := testutil.NewInMemoryFactStore()
	dims := testutil.NewInMemoryDimensionStore()
	session := newTestSession(t, "upl_loss", 100, facts, dims)

	for i := 0; i < 4; i++ {
		require.NoError(t, session.Append(ctx, makeRow(i)))
	}
	facts.FailNextInsert = true
	require.NoError(t, session.Flush(ctx))

	// Next batch lands normally.
	for i := 4; i < 6; i++ {
		require.NoError(t, session.Append(ctx, makeRow(i)))
	}
	require.NoError(t, session.Flush(ctx))

	summary := session.Summary()
	assert.Equal(t, 6, summary.RowsAppended)
	assert.Equal(t, 2, summary.RowsFlushed)
	assert.Equal(t, 4, summary.RowsDropped)
	assert.Equal(t, 1, summary.BatchesSent)
	assert.Equal(t, 1, summary.BatchesLost)

	count, err := facts.CountFactsByUpload(ctx, "upl_loss")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestSessionRequiresUploadID(t *testing.T) {
	facts := testutil.NewInMemoryFactStore()
	dims := testutil.NewInMemoryDimensionStore()
	resolver := dimension.NewResolver(dims, logger.NewNoopLogger())

	_, err := NewSession("", 100, facts, resolver, logger.NewNoopLogger())
	assert.Error(t, err)
}

func TestSessionMalformedValuesStillIngest(t *testing.T) {
	ctx := context.Background()
	facts := testutil.NewInMemoryFactStore()
	dims := testutil.NewInMemoryDimensionStore()
	session := newTestSession(t, "upl_messy", 100, facts, dims)

	row := &billing.RawBillingRow{
		SourceRowID:       "messy-1",
		Provider:          "gcp",
		ServiceName:       "Storage",
		ChargePeriodStart: "not a date",
		EffectiveCost:     "N/A",
		Tags:              `{"team":`,
	}
	require.NoError(t, session.Append(ctx, row))
	require.NoError(t, session.Flush(ctx))

	count, err := facts.CountFactsByUpload(ctx, "upl_messy")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}
