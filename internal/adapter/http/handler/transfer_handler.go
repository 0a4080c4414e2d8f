package handler

import (
	"fx-liquidity-engine/internal/adapter/http/dto"
	"fx-liquidity-engine/internal/adapter/http/middleware"
	"fx-liquidity-engine/internal/core/ports"
	"fx-liquidity-engine/pkg/apperror"
	"fx-liquidity-engine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TransferHandler handles transfer endpoints.
type TransferHandler struct {
	transferSvc ports.TransferService
}

// NewTransferHandler creates a new TransferHandler.
func NewTransferHandler(transferSvc ports.TransferService) *TransferHandler {
	return &TransferHandler{transferSvc: transferSvc}
}

// Initiate handles POST /api/v1/transfers.
func (h *TransferHandler) Initiate(c *gin.Context) {
	var req dto.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	transfer, err := h.transferSvc.Initiate(c.Request.Context(), ports.TransferRequest{
		Narration:           req.Narration,
		Source:              req.Source,
		SourceCurrency:      req.SourceCurrency,
		SourceAmount:        req.SourceAmount,
		Destination:         req.Destination,
		DestinationCurrency: req.DestinationCurrency,
		Reference:           req.Reference,
		IdempotenceKey:      c.GetHeader(middleware.HeaderIdempotencyKey),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.NewTransferResponse(transfer))
}

// Get handles GET /api/v1/transfers/:id.
func (h *TransferHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid transfer id"))
		return
	}

	transfer, err := h.transferSvc.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.NewTransferResponse(transfer))
}
