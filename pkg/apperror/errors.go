package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// HasCode reports whether err is an AppError carrying the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsClientError reports whether err is an AppError in the 4xx range.
func IsClientError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.HTTPStatus >= 400 && appErr.HTTPStatus < 500
}

// ---- Validation (VAL) ----

// Validation returns a VAL_001 validation error.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}

func ErrInvalidAmount() *AppError {
	return New("VAL_001", "Amount must be greater than zero", http.StatusBadRequest)
}

func ErrMissingIdempotencyKey() *AppError {
	return New("VAL_001", "Idempotency-Key header is required", http.StatusBadRequest)
}

// ---- Exchange rates & quoting (FX) ----

func ErrUnsupportedCurrencyPair() *AppError {
	return New("FX_001", "Unsupported currency pair", http.StatusBadRequest)
}

func ErrRateNotAvailable() *AppError {
	return New("FX_002", "System does not have rates for currency pair", http.StatusUnprocessableEntity)
}

func ErrMarginNotConfigured() *AppError {
	return New("FX_003", "System does not have a margin for destination currency", http.StatusUnprocessableEntity)
}

func ErrDuplicateRate() *AppError {
	return New("FX_004", "Rate observation already exists for pair and timestamp", http.StatusConflict)
}

// ---- Transfers (TRF) ----

func ErrDuplicateTransfer() *AppError {
	return New("TRF_001", "Transfer with Reference/Idempotence exists", http.StatusConflict)
}

func ErrNotFound(entity string) *AppError {
	return New("TRF_002", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrInsufficientLiquidity() *AppError {
	return New("TRF_003", "System cannot Process Destination Currency", http.StatusUnprocessableEntity)
}

func ErrCannotSettleCurrency() *AppError {
	return New("TRF_004", "System cannot Settle Destination Currency", http.StatusUnprocessableEntity)
}

func ErrInvalidTransition(from, to string) *AppError {
	return New("TRF_005", fmt.Sprintf("Transfer cannot move from %s to %s", from, to), http.StatusConflict)
}

// ---- Authentication (AUTH) ----

func ErrInvalidCredentials() *AppError {
	return New("AUTH_001", "Invalid credentials", http.StatusUnauthorized)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

func ErrProviderNotConfigured() *AppError {
	return New("SYS_002", "Processing Provider is not configured", http.StatusInternalServerError)
}

func ErrInvalidProvider(id string) *AppError {
	return New("SYS_002", fmt.Sprintf("Invalid Processing Provider: %s", id), http.StatusInternalServerError)
}

func ErrRebalanceFailed(err error) *AppError {
	return Wrap("SYS_003", "Unexpected error rebalancing liquidity pool", http.StatusInternalServerError, err)
}

func ErrRebalanceInProgress() *AppError {
	return New("SYS_004", "Rebalance already in progress", http.StatusConflict)
}
