package service

import (
	"github.com/costlens/costlens/internal/config"
	"github.com/costlens/costlens/internal/dimension"
	"github.com/costlens/costlens/internal/domain/billing"
	"github.com/costlens/costlens/internal/logger"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration

	// Repositories
	FactRepo      billing.FactRepository
	DimensionRepo billing.DimensionRepository

	// Shared components
	Resolver *dimension.Resolver
}
