package service

import (
	"context"

	"github.com/costlens/costlens/internal/api/dto"
	"github.com/costlens/costlens/internal/ingest"
)

type IngestionService interface {
	IngestRows(ctx context.Context, uploadID string, req *dto.IngestRowsRequest) (*dto.IngestRowsResponse, error)
}

type ingestionService struct {
	ServiceParams
}

func NewIngestionService(params ServiceParams) IngestionService {
	return &ingestionService{ServiceParams: params}
}

// IngestRows pushes one batch of raw rows through a per-upload session. The
// session is created, drained and flushed within this call, so a request is
// fully durable (or accounted as dropped) by the time the summary returns.
func (s *ingestionService) IngestRows(ctx context.Context, uploadID string, req *dto.IngestRowsRequest) (*dto.IngestRowsResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	session, err := ingest.NewSession(uploadID, s.Config.Ingestion.BatchSize, s.FactRepo, s.Resolver, s.Logger)
	if err != nil {
		return nil, err
	}
	for _, row := range req.Rows {
		if err := session.Append(ctx, row); err != nil {
			return nil, err
		}
	}
	if err := session.Flush(ctx); err != nil {
		return nil, err
	}

	summary := session.Summary()
	s.Logger.Infow("ingested upload batch",
		"upload_id", uploadID,
		"rows_appended", summary.RowsAppended,
		"rows_flushed", summary.RowsFlushed,
		"rows_dropped", summary.RowsDropped,
		"batches_sent", summary.BatchesSent,
		"batches_lost", summary.BatchesLost,
	)

	return &dto.IngestRowsResponse{Summary: summary}, nil
}
