package postgres

import (
	"context"
	"database/sql"

	"github.com/costlens/costlens/internal/domain/billing"
	ierr "github.com/costlens/costlens/internal/errors"
	"github.com/costlens/costlens/internal/logger"
	"github.com/costlens/costlens/internal/postgres"
	"github.com/costlens/costlens/internal/types"
)

type DimensionRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewDimensionRepository(db *postgres.DB, logger *logger.Logger) billing.DimensionRepository {
	return &DimensionRepository{db: db, logger: logger}
}

// GetOrCreate resolves a natural key to its surrogate dimension row,
// inserting it on first observation. The UNIQUE (dimension, natural_key)
// constraint makes concurrent resolution of the same key converge on one
// surrogate: the losing insert hits the conflict and falls through to the
// select.
func (r *DimensionRepository) GetOrCreate(ctx context.Context, family types.DimensionFamily, naturalKey, displayName string) (*billing.DimensionKey, error) {
	if err := family.Validate(); err != nil {
		return nil, err
	}
	if displayName == "" {
		displayName = naturalKey
	}

	var key billing.DimensionKey
	err := r.db.GetContext(ctx, &key, `
		INSERT INTO dimension_keys (dimension, natural_key, display_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (dimension, natural_key) DO NOTHING
		RETURNING id, dimension, natural_key, display_name, created_at
	`, family, naturalKey, displayName)
	if err == nil {
		r.logger.Debugw("created dimension key",
			"dimension", family,
			"natural_key", naturalKey,
			"surrogate_key", key.ID,
		)
		return &key, nil
	}
	if err != sql.ErrNoRows {
		return nil, ierr.WithError(err).
			WithHint("Failed to upsert dimension key").
			WithReportableDetails(map[string]interface{}{
				"dimension":   family,
				"natural_key": naturalKey,
			}).
			Mark(ierr.ErrDatabase)
	}

	// Conflict: the key already exists, read the winning row.
	return r.Get(ctx, family, naturalKey)
}

// Get reads an existing dimension key by natural key.
func (r *DimensionRepository) Get(ctx context.Context, family types.DimensionFamily, naturalKey string) (*billing.DimensionKey, error) {
	var key billing.DimensionKey
	err := r.db.GetContext(ctx, &key, `
		SELECT id, dimension, natural_key, display_name, created_at
		FROM dimension_keys
		WHERE dimension = $1 AND natural_key = $2
	`, family, naturalKey)
	if err == sql.ErrNoRows {
		return nil, ierr.NewError("dimension key not found").
			WithHint("Dimension key not found").
			WithReportableDetails(map[string]interface{}{
				"dimension":   family,
				"natural_key": naturalKey,
			}).
			Mark(ierr.ErrNotFound)
	}
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to read dimension key").
			WithReportableDetails(map[string]interface{}{
				"dimension":   family,
				"natural_key": naturalKey,
			}).
			Mark(ierr.ErrDatabase)
	}
	return &key, nil
}
