package dimension

import (
	"testing"

	"github.com/costlens/costlens/internal/logger"
	"github.com/costlens/costlens/internal/testutil"
	"github.com/costlens/costlens/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCreatesOnce(t *testing.T) {
	ctx := testutil.SetupContext()
	store := testutil.NewInMemoryDimensionStore()
	resolver := NewResolver(store, logger.NewNoopLogger())

	first, err := resolver.Resolve(ctx, types.DimensionService, "AmazonEC2", "Amazon EC2")
	require.NoError(t, err)
	assert.NotZero(t, first.Key)
	assert.Equal(t, "Amazon EC2", first.DisplayName)

	second, err := resolver.Resolve(ctx, types.DimensionService, "AmazonEC2", "Amazon EC2")
	require.NoError(t, err)
	assert.Equal(t, first.Key, second.Key)
	assert.Equal(t, 1, store.CreateCalls)
}

func TestResolveIdempotentAcrossResolvers(t *testing.T) {
	ctx := testutil.SetupContext()
	store := testutil.NewInMemoryDimensionStore()

	// Two resolvers sharing a store stand in for two ingestion sessions;
	// the store constraint, not the cache, owns surrogate stability.
	a := NewResolver(store, logger.NewNoopLogger())
	b := NewResolver(store, logger.NewNoopLogger())

	refA, err := a.Resolve(ctx, types.DimensionRegion, "us-east-1", "US East 1")
	require.NoError(t, err)
	refB, err := b.Resolve(ctx, types.DimensionRegion, "us-east-1", "US East 1")
	require.NoError(t, err)

	assert.Equal(t, refA.Key, refB.Key)
	assert.Equal(t, 1, store.CreateCalls)
}

func TestResolveBlankKeyYieldsNullRef(t *testing.T) {
	ctx := testutil.SetupContext()
	store := testutil.NewInMemoryDimensionStore()
	resolver := NewResolver(store, logger.NewNoopLogger())

	ref, err := resolver.Resolve(ctx, types.DimensionCommitmentDiscount, "   ", "")
	require.NoError(t, err)
	assert.True(t, ref.IsNull())
	assert.Equal(t, 0, store.CreateCalls)
}

func TestResolveSameKeyDifferentFamilies(t *testing.T) {
	ctx := testutil.SetupContext()
	store := testutil.NewInMemoryDimensionStore()
	resolver := NewResolver(store, logger.NewNoopLogger())

	svc, err := resolver.Resolve(ctx, types.DimensionService, "shared-name", "")
	require.NoError(t, err)
	sku, err := resolver.Resolve(ctx, types.DimensionSku, "shared-name", "")
	require.NoError(t, err)

	assert.NotEqual(t, svc.Key, sku.Key)
	assert.Equal(t, 2, store.CreateCalls)
}

func TestResolveDefaultsDisplayNameToNaturalKey(t *testing.T) {
	ctx := testutil.SetupContext()
	store := testutil.NewInMemoryDimensionStore()
	resolver := NewResolver(store, logger.NewNoopLogger())

	ref, err := resolver.Resolve(ctx, types.DimensionResource, "i-0abc123", "")
	require.NoError(t, err)
	assert.Equal(t, "i-0abc123", ref.DisplayName)
}
