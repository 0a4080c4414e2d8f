package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransferStatus represents the lifecycle state of a transfer.
type TransferStatus string

const (
	TransferStatusInitiated  TransferStatus = "Initiated"
	TransferStatusProcessing TransferStatus = "Processing"
	TransferStatusSuccessful TransferStatus = "Successful"
	TransferStatusFailed     TransferStatus = "Failed"
)

// Description returns the human-readable text persisted with each transition.
func (s TransferStatus) Description() string {
	return "Transfer " + string(s)
}

// IsTerminal returns true for Successful and Failed.
func (s TransferStatus) IsTerminal() bool {
	return s == TransferStatusSuccessful || s == TransferStatusFailed
}

// CanTransitionTo enforces Initiated -> Processing -> {Successful, Failed}.
func (s TransferStatus) CanTransitionTo(next TransferStatus) bool {
	switch s {
	case TransferStatusInitiated:
		return next == TransferStatusProcessing
	case TransferStatusProcessing:
		return next.IsTerminal()
	default:
		return false
	}
}

// Transfer moves value from a source pool to a destination pool.
// Once terminal it is immutable.
type Transfer struct {
	ID                      uuid.UUID       `json:"id"`
	Narration               string          `json:"narration"`
	Source                  string          `json:"source"`
	SourceCurrency          CurrencyCode    `json:"source_currency"`
	SourceAmount            decimal.Decimal `json:"source_amount"`
	Destination             string          `json:"destination"`
	DestinationCurrency     CurrencyCode    `json:"destination_currency"`
	DestinationAmount       decimal.Decimal `json:"destination_amount"`
	AppliedRate             decimal.Decimal `json:"applied_rate"`
	AppliedMarginPercentage decimal.Decimal `json:"applied_margin_percentage"`
	AppliedMarginAmount     decimal.Decimal `json:"applied_margin_amount"`
	Reference               string          `json:"reference"`
	IdempotenceKey          string          `json:"idempotence_key"`
	Status                  TransferStatus  `json:"status"`
	StatusDescription       string          `json:"status_description"`
	InitiatedAt             time.Time       `json:"initiated_at"`
	CompletedAt             *time.Time      `json:"completed_at,omitempty"`
}

// IsTerminal returns true if the transfer is in a final state.
func (t *Transfer) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// SettlementRequest is one instruction to move destination funds. TransferID
// is stable across redeliveries so a provider can deduplicate retries.
type SettlementRequest struct {
	TransferID uuid.UUID
	Currency   CurrencyCode
	Amount     decimal.Decimal
}

// SettlementRequest builds the provider instruction for t.
func (t *Transfer) SettlementRequest() SettlementRequest {
	return SettlementRequest{
		TransferID: t.ID,
		Currency:   t.DestinationCurrency,
		Amount:     t.DestinationAmount,
	}
}

// SettlementResult is what a settlement provider reports for one attempt.
type SettlementResult struct {
	Successful bool   `json:"successful"`
	Message    string `json:"message"`
}

// TransferIdempotencyKey is the cache key under which an accepted
// idempotence key is remembered.
func TransferIdempotencyKey(idempotenceKey string) string {
	return "transfer:" + idempotenceKey
}
