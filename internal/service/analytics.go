package service

import (
	"context"
	"time"

	"github.com/costlens/costlens/internal/analytics"
	"github.com/costlens/costlens/internal/api/dto"
)

type AnalyticsService interface {
	GetDashboard(ctx context.Context, req *dto.GetDashboardRequest) (*dto.DashboardResponse, error)
}

type analyticsService struct {
	ServiceParams
	engine *analytics.Engine
}

func NewAnalyticsService(params ServiceParams) AnalyticsService {
	return &analyticsService{
		ServiceParams: params,
		engine:        analytics.NewEngine(params.FactRepo, params.Config.Analytics, params.Logger),
	}
}

// GetDashboard resolves the request into an analytics scope, runs the engine
// and assembles the versioned dashboard payload. The same request against the
// same stored facts always produces the same payload.
func (s *analyticsService) GetDashboard(ctx context.Context, req *dto.GetDashboardRequest) (*dto.DashboardResponse, error) {
	asOf := time.Now().UTC()

	scope, err := req.ToScope(asOf)
	if err != nil {
		return nil, err
	}

	result, err := s.engine.Analyze(ctx, scope)
	if err != nil {
		return nil, err
	}

	return dto.NewDashboardResponse(scope, result, asOf), nil
}
