package v1

import (
	"net/http"

	"github.com/costlens/costlens/internal/api/dto"
	ierr "github.com/costlens/costlens/internal/errors"
	"github.com/costlens/costlens/internal/logger"
	"github.com/costlens/costlens/internal/service"
	"github.com/gin-gonic/gin"
)

type IngestHandler struct {
	ingestionService service.IngestionService
	log              *logger.Logger
}

func NewIngestHandler(ingestionService service.IngestionService, log *logger.Logger) *IngestHandler {
	return &IngestHandler{
		ingestionService: ingestionService,
		log:              log,
	}
}

// @Summary Ingest billing rows
// @Description Ingest a batch of raw billing rows for an upload
// @Tags Ingestion
// @Accept json
// @Produce json
// @Param upload_id path string true "Upload ID"
// @Param request body dto.IngestRowsRequest true "Rows to ingest"
// @Success 202 {object} dto.IngestRowsResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /ingest/{upload_id}/rows [post]
func (h *IngestHandler) IngestRows(c *gin.Context) {
	ctx := c.Request.Context()

	uploadID := c.Param("upload_id")
	if uploadID == "" {
		c.Error(ierr.NewError("upload id is required").
			WithHint("Provide the upload identifier in the request path").
			Mark(ierr.ErrValidation))
		return
	}

	var req dto.IngestRowsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Please check the request payload").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.ingestionService.IngestRows(ctx, uploadID, &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusAccepted, resp)
}
