package handler

import (
	"time"

	"fx-liquidity-engine/internal/adapter/http/dto"
	"fx-liquidity-engine/internal/adapter/http/middleware"
	"fx-liquidity-engine/internal/core/domain"
	"fx-liquidity-engine/internal/core/ports"
	"fx-liquidity-engine/pkg/apperror"
	"fx-liquidity-engine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// RateHandler handles rate publication, rate lookup and quote preview.
type RateHandler struct {
	rateSvc  ports.RateService
	quoteSvc ports.QuoteService
}

// NewRateHandler creates a new RateHandler.
func NewRateHandler(rateSvc ports.RateService, quoteSvc ports.QuoteService) *RateHandler {
	return &RateHandler{rateSvc: rateSvc, quoteSvc: quoteSvc}
}

// UpdateRate handles POST /api/v1/rates.
func (h *RateHandler) UpdateRate(c *gin.Context) {
	var req dto.RateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// The pair tag is the only check that maps to FX_001 rather than VAL_001.
		if req.Pair != "" {
			if _, _, perr := domain.ParsePair(req.Pair); perr != nil {
				response.Error(c, apperror.ErrUnsupportedCurrencyPair())
				return
			}
		}
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	var ts time.Time
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}

	rate, err := h.rateSvc.UpdateRate(c.Request.Context(), ports.RateUpdateRequest{
		Pair:      req.Pair,
		Rate:      req.Rate,
		Timestamp: ts,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxAuditResource, rate.Pair())
	response.Created(c, dto.NewRateResponse(rate))
}

// Latest handles GET /api/v1/rates/latest?pair=SRC/DST.
func (h *RateHandler) Latest(c *gin.Context) {
	pair := c.Query("pair")
	if pair == "" {
		response.Error(c, apperror.Validation("pair is required"))
		return
	}

	rate, err := h.rateSvc.Latest(c.Request.Context(), pair)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.NewRateResponse(rate))
}

// Quote handles GET /api/v1/quotes. Nothing is reserved.
func (h *RateHandler) Quote(c *gin.Context) {
	var q dto.QuoteQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	amount, err := decimal.NewFromString(q.Amount)
	if err != nil {
		response.Error(c, apperror.ErrInvalidAmount())
		return
	}
	src, _ := domain.ParseCurrency(q.SourceCurrency)
	dst, _ := domain.ParseCurrency(q.DestinationCurrency)

	quote, err := h.quoteSvc.Resolve(c.Request.Context(), src, dst, amount, time.Now().UTC())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.NewQuoteResponse(quote))
}
