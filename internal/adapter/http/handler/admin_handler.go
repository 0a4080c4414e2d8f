package handler

import (
	"time"

	"fx-liquidity-engine/internal/adapter/http/dto"
	"fx-liquidity-engine/internal/core/domain"
	"fx-liquidity-engine/internal/core/ports"
	"fx-liquidity-engine/pkg/response"

	"github.com/gin-gonic/gin"
)

// AdminHandler serves operator reports and the manual rebalance trigger.
type AdminHandler struct {
	reportingSvc ports.ReportingService
	rebalancer   ports.RebalanceRunner
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(reportingSvc ports.ReportingService, rebalancer ports.RebalanceRunner) *AdminHandler {
	return &AdminHandler{reportingSvc: reportingSvc, rebalancer: rebalancer}
}

// Currencies handles GET /api/v1/currencies.
func (h *AdminHandler) Currencies(c *gin.Context) {
	currencies, err := h.reportingSvc.Liquidity(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewCurrencyResponses(currencies))
}

// Revenue handles GET /api/v1/revenue?day=YYYY-MM-DD.
func (h *AdminHandler) Revenue(c *gin.Context) {
	day := c.Query("day")
	rows, err := h.reportingSvc.DailyRevenue(c.Request.Context(), day)
	if err != nil {
		response.Error(c, err)
		return
	}
	if day == "" {
		day = domain.RevenueDay(time.Now())
	}
	response.OK(c, dto.NewRevenueResponse(day, rows))
}

// Rebalance handles POST /api/v1/admin/rebalance.
func (h *AdminHandler) Rebalance(c *gin.Context) {
	report, err := h.rebalancer.RunOnce(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewRebalanceResponse(report))
}
