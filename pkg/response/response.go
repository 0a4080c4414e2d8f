package response

import (
	"errors"
	"net/http"
	"time"

	"fx-liquidity-engine/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDKey is the gin context key holding the request id.
const RequestIDKey = "request_id"

// SuccessResponse is the standard success envelope.
type SuccessResponse struct {
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id"`
	Timestamp string      `json:"timestamp"`
}

// ErrorResponse is the standard error envelope. ErrorCode is one of the
// stable apperror codes (VAL_*, FX_*, TRF_*, AUTH_*, RATE_*, SYS_*).
type ErrorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// OK sends a 200 response with data.
func OK(c *gin.Context, data interface{}) {
	success(c, http.StatusOK, data)
}

// Created sends a 201 response with data.
func Created(c *gin.Context, data interface{}) {
	success(c, http.StatusCreated, data)
}

// Error maps err onto the error envelope. Anything that is not an
// *apperror.AppError is reported as SYS_001 without its detail. The error is
// also attached to c so the request logger can record its cause.
func Error(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		appErr = apperror.InternalError(err)
	}
	_ = c.Error(appErr)

	c.JSON(appErr.HTTPStatus, ErrorResponse{
		ErrorCode: appErr.Code,
		Message:   appErr.Message,
		RequestID: requestID(c),
		Timestamp: stamp(),
	})
}

func success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, SuccessResponse{
		Data:      data,
		RequestID: requestID(c),
		Timestamp: stamp(),
	})
}

// requestID returns the id set by the RequestID middleware, or a fresh one
// for handlers mounted without it.
func requestID(c *gin.Context) string {
	if s := c.GetString(RequestIDKey); s != "" {
		return s
	}
	return uuid.New().String()
}

func stamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
