package dto

import (
	"github.com/costlens/costlens/internal/domain/billing"
	"github.com/costlens/costlens/internal/ingest"
	"github.com/costlens/costlens/internal/validator"
)

// IngestRowsRequest is one bulk batch of raw billing rows for an upload.
type IngestRowsRequest struct {
	Rows []*billing.RawBillingRow `json:"rows" validate:"required,min=1,dive,required"`
}

func (r *IngestRowsRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// IngestRowsResponse reports what happened to the submitted rows.
type IngestRowsResponse struct {
	Summary ingest.Summary `json:"summary"`
}
