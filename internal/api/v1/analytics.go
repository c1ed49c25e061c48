package v1

import (
	"net/http"

	"github.com/costlens/costlens/internal/api/dto"
	ierr "github.com/costlens/costlens/internal/errors"
	"github.com/costlens/costlens/internal/logger"
	"github.com/costlens/costlens/internal/service"
	"github.com/gin-gonic/gin"
)

type AnalyticsHandler struct {
	analyticsService service.AnalyticsService
	log              *logger.Logger
}

func NewAnalyticsHandler(analyticsService service.AnalyticsService, log *logger.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		analyticsService: analyticsService,
		log:              log,
	}
}

// @Summary Get cost dashboard
// @Description Retrieve the full cost analytics dashboard for a scope
// @Tags Analytics
// @Accept json
// @Produce json
// @Param request body dto.GetDashboardRequest true "Dashboard scope"
// @Success 200 {object} dto.DashboardResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /analytics/dashboard [post]
func (h *AnalyticsHandler) GetDashboard(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.GetDashboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Please check the request payload").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.analyticsService.GetDashboard(ctx, &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
