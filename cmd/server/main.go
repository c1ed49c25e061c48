package main

import (
	"context"
	"time"

	"github.com/costlens/costlens/internal/api"
	v1 "github.com/costlens/costlens/internal/api/v1"
	"github.com/costlens/costlens/internal/clickhouse"
	"github.com/costlens/costlens/internal/config"
	"github.com/costlens/costlens/internal/dimension"
	"github.com/costlens/costlens/internal/domain/billing"
	"github.com/costlens/costlens/internal/logger"
	"github.com/costlens/costlens/internal/postgres"
	"github.com/costlens/costlens/internal/repository"
	"github.com/costlens/costlens/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	app := fx.New(
		fx.Provide(
			// Config
			config.NewConfig,

			// Logger
			provideLogger,

			// Stores
			clickhouse.NewClickHouseStore,
			postgres.NewDB,

			// Repositories
			repository.NewFactRepository,
			repository.NewDimensionRepository,

			// Dimension resolver
			dimension.NewResolver,

			// Services
			provideServiceParams,
			service.NewIngestionService,
			service.NewAnalyticsService,

			// API
			provideHandlers,
			provideRouter,
		),
		fx.Invoke(startServer),
	)

	app.Run()
}

func provideLogger(cfg *config.Configuration) (*logger.Logger, error) {
	return logger.NewLogger(cfg.Logging.Level)
}

func provideServiceParams(
	cfg *config.Configuration,
	log *logger.Logger,
	factRepo billing.FactRepository,
	dimensionRepo billing.DimensionRepository,
	resolver *dimension.Resolver,
) service.ServiceParams {
	return service.ServiceParams{
		Logger:        log,
		Config:        cfg,
		FactRepo:      factRepo,
		DimensionRepo: dimensionRepo,
		Resolver:      resolver,
	}
}

func provideHandlers(
	ingestionService service.IngestionService,
	analyticsService service.AnalyticsService,
	log *logger.Logger,
) api.Handlers {
	return api.Handlers{
		Health:    v1.NewHealthHandler(log),
		Ingest:    v1.NewIngestHandler(ingestionService, log),
		Analytics: v1.NewAnalyticsHandler(analyticsService, log),
	}
}

func provideRouter(handlers api.Handlers, cfg *config.Configuration, log *logger.Logger) *gin.Engine {
	return api.NewRouter(handlers, cfg, log)
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	r *gin.Engine,
	store *clickhouse.ClickHouseStore,
	log *logger.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting API server", "address", cfg.Server.Address)
			go func() {
				if err := r.Run(cfg.Server.Address); err != nil {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down server...")
			return store.Close()
		},
	})
}
