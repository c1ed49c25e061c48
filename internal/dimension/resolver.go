// Package dimension resolves natural-key attributes to stable surrogate
// dimension keys.
package dimension

import (
	"context"
	"strings"
	"time"

	"github.com/costlens/costlens/internal/domain/billing"
	"github.com/costlens/costlens/internal/logger"
	"github.com/costlens/costlens/internal/types"
	gocache "github.com/patrickmn/go-cache"
)

const cacheExpiry = 12 * time.Hour

// Resolver maps natural keys to surrogate dimension references. The
// in-process cache only saves round trips; the store's uniqueness constraint
// is what guarantees one surrogate per natural key across sessions.
type Resolver struct {
	repo   billing.DimensionRepository
	cache  *gocache.Cache
	logger *logger.Logger
}

func NewResolver(repo billing.DimensionRepository, logger *logger.Logger) *Resolver {
	return &Resolver{
		repo:   repo,
		cache:  gocache.New(cacheExpiry, cacheExpiry),
		logger: logger,
	}
}

// Resolve returns the surrogate reference for a natural key, creating the
// dimension row on first observation. A blank natural key resolves to the
// null reference without touching the store.
func (r *Resolver) Resolve(ctx context.Context, family types.DimensionFamily, naturalKey, displayName string) (billing.DimensionRef, error) {
	naturalKey = strings.TrimSpace(naturalKey)
	if naturalKey == "" {
		return billing.DimensionRef{}, nil
	}

	cacheKey := string(family) + "\x00" + naturalKey
	if cached, found := r.cache.Get(cacheKey); found {
		return cached.(billing.DimensionRef), nil
	}

	key, err := r.repo.GetOrCreate(ctx, family, naturalKey, strings.TrimSpace(displayName))
	if err != nil {
		return billing.DimensionRef{}, err
	}

	ref := billing.DimensionRef{
		Key:         key.ID,
		DisplayName: key.DisplayName,
	}
	r.cache.Set(cacheKey, ref, gocache.DefaultExpiration)
	return ref, nil
}
