package repository

import (
	"github.com/costlens/costlens/internal/clickhouse"
	"github.com/costlens/costlens/internal/domain/billing"
	"github.com/costlens/costlens/internal/logger"
	"github.com/costlens/costlens/internal/postgres"
	clickhouseRepo "github.com/costlens/costlens/internal/repository/clickhouse"
	postgresRepo "github.com/costlens/costlens/internal/repository/postgres"
)

func NewFactRepository(store *clickhouse.ClickHouseStore, logger *logger.Logger) billing.FactRepository {
	return clickhouseRepo.NewFactRepository(store, logger)
}

func NewDimensionRepository(db *postgres.DB, logger *logger.Logger) billing.DimensionRepository {
	return postgresRepo.NewDimensionRepository(db, logger)
}
