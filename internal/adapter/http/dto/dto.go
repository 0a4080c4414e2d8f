package dto

import (
	"time"

	"fx-liquidity-engine/internal/core/domain"

	"github.com/shopspring/decimal"
)

// TokenRequest is the request body for operator token issuance.
type TokenRequest struct {
	Username string `json:"username" binding:"required,max=64"`
	Password string `json:"password" binding:"required,max=128"`
}

// TokenResponse is the response body for a successful token issuance.
type TokenResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// TransferRequest is the request body for POST /transfers. The idempotence
// key travels in the Idempotency-Key header.
type TransferRequest struct {
	Narration           string          `json:"narration" binding:"max=255"`
	Source              string          `json:"source" binding:"required,max=100"`
	SourceCurrency      string          `json:"source_currency" binding:"required,currency_code"`
	SourceAmount        decimal.Decimal `json:"source_amount"`
	Destination         string          `json:"destination" binding:"required,max=100"`
	DestinationCurrency string          `json:"destination_currency" binding:"required,currency_code"`
	Reference           string          `json:"reference" binding:"required,max=100,safe_id"`
}

// TransferResponse is the public projection of a transfer.
type TransferResponse struct {
	ID                      string  `json:"id"`
	Narration               string  `json:"narration"`
	Source                  string  `json:"source"`
	SourceCurrency          string  `json:"source_currency"`
	SourceAmount            string  `json:"source_amount"`
	Destination             string  `json:"destination"`
	DestinationCurrency     string  `json:"destination_currency"`
	DestinationAmount       string  `json:"destination_amount"`
	AppliedRate             string  `json:"applied_rate"`
	AppliedMarginPercentage string  `json:"applied_margin_percentage"`
	AppliedMarginAmount     string  `json:"applied_margin_amount"`
	Reference               string  `json:"reference"`
	IdempotenceKey          string  `json:"idempotence_key"`
	Status                  string  `json:"status"`
	StatusDescription       string  `json:"status_description"`
	InitiatedAt             string  `json:"initiated_at"`
	CompletedAt             *string `json:"completed_at,omitempty"`
}

// NewTransferResponse projects a transfer for the API.
func NewTransferResponse(t *domain.Transfer) TransferResponse {
	resp := TransferResponse{
		ID:                      t.ID.String(),
		Narration:               t.Narration,
		Source:                  t.Source,
		SourceCurrency:          string(t.SourceCurrency),
		SourceAmount:            t.SourceAmount.String(),
		Destination:             t.Destination,
		DestinationCurrency:     string(t.DestinationCurrency),
		DestinationAmount:       t.DestinationAmount.String(),
		AppliedRate:             t.AppliedRate.String(),
		AppliedMarginPercentage: t.AppliedMarginPercentage.String(),
		AppliedMarginAmount:     t.AppliedMarginAmount.String(),
		Reference:               t.Reference,
		IdempotenceKey:          t.IdempotenceKey,
		Status:                  string(t.Status),
		StatusDescription:       t.StatusDescription,
		InitiatedAt:             t.InitiatedAt.UTC().Format(time.RFC3339),
	}
	if t.CompletedAt != nil {
		s := t.CompletedAt.UTC().Format(time.RFC3339)
		resp.CompletedAt = &s
	}
	return resp
}

// RateRequest is the request body for POST /rates.
type RateRequest struct {
	Pair      string          `json:"pair" binding:"required,currency_pair"`
	Rate      decimal.Decimal `json:"rate"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
}

// RateResponse is the public projection of a rate observation.
type RateResponse struct {
	Pair      string `json:"pair"`
	Rate      string `json:"rate"`
	Timestamp string `json:"timestamp"`
}

// NewRateResponse projects a rate for the API.
func NewRateResponse(r *domain.Rate) RateResponse {
	return RateResponse{
		Pair:      r.Pair(),
		Rate:      r.Rate.String(),
		Timestamp: r.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

// QuoteQuery binds GET /quotes.
type QuoteQuery struct {
	SourceCurrency      string `form:"source_currency" binding:"required,currency_code"`
	DestinationCurrency string `form:"destination_currency" binding:"required,currency_code"`
	Amount              string `form:"amount" binding:"required,max=40"`
}

// QuoteResponse is a priced preview of a transfer.
type QuoteResponse struct {
	SourceCurrency      string `json:"source_currency"`
	DestinationCurrency string `json:"destination_currency"`
	SourceAmount        string `json:"source_amount"`
	AppliedRate         string `json:"applied_rate"`
	GrossAmount         string `json:"gross_amount"`
	MarginPercentage    string `json:"margin_percentage"`
	MarginAmount        string `json:"margin_amount"`
	DestinationAmount   string `json:"destination_amount"`
	RateTimestamp       string `json:"rate_timestamp"`
}

// NewQuoteResponse projects a quote for the API.
func NewQuoteResponse(q *domain.Quote) QuoteResponse {
	return QuoteResponse{
		SourceCurrency:      string(q.SourceCurrency),
		DestinationCurrency: string(q.DestinationCurrency),
		SourceAmount:        q.SourceAmount.String(),
		AppliedRate:         q.AppliedRate.String(),
		GrossAmount:         q.GrossAmount.String(),
		MarginPercentage:    q.MarginPercentage.String(),
		MarginAmount:        q.MarginAmount.String(),
		DestinationAmount:   q.DestinationAmount.String(),
		RateTimestamp:       q.RateTimestamp.UTC().Format(time.RFC3339Nano),
	}
}

// CurrencyResponse is one liquidity pool in the snapshot.
type CurrencyResponse struct {
	Name               string `json:"name"`
	AvailableLiquidity string `json:"available_liquidity"`
	LedgerLiquidity    string `json:"ledger_liquidity"`
	InFlight           string `json:"in_flight"`
	LastRebalance      string `json:"last_rebalance"`
}

// NewCurrencyResponses projects the liquidity snapshot.
func NewCurrencyResponses(currencies []domain.Currency) []CurrencyResponse {
	out := make([]CurrencyResponse, 0, len(currencies))
	for i := range currencies {
		c := &currencies[i]
		out = append(out, CurrencyResponse{
			Name:               string(c.Name),
			AvailableLiquidity: c.AvailableLiquidity.String(),
			LedgerLiquidity:    c.LedgerLiquidity.String(),
			InFlight:           c.InFlight().String(),
			LastRebalance:      c.LastRebalance.UTC().Format(time.RFC3339),
		})
	}
	return out
}

// RevenueResponse lists margin revenue for one day.
type RevenueResponse struct {
	Day   string            `json:"day"`
	Items []RevenueLineItem `json:"items"`
}

// RevenueLineItem is revenue in one currency.
type RevenueLineItem struct {
	Currency string `json:"currency"`
	Revenue  string `json:"revenue"`
}

// NewRevenueResponse projects daily revenue rows.
func NewRevenueResponse(day string, rows []domain.DailyRevenue) RevenueResponse {
	items := make([]RevenueLineItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, RevenueLineItem{Currency: string(r.Currency), Revenue: r.Revenue.String()})
	}
	return RevenueResponse{Day: day, Items: items}
}

// RebalanceResponse summarises a manual rebalance run.
type RebalanceResponse struct {
	RunAt  string                   `json:"run_at"`
	Scores []RebalanceScoreResponse `json:"scores"`
}

// RebalanceScoreResponse is one currency's rebalance outcome.
type RebalanceScoreResponse struct {
	Currency          string `json:"currency"`
	TransactionVolume string `json:"transaction_volume"`
	HistoricalDemand  string `json:"historical_demand"`
	RateVolatility    string `json:"rate_volatility"`
	Score             string `json:"score"`
	Applied           bool   `json:"applied"`
}

// NewRebalanceResponse projects a rebalance report.
func NewRebalanceResponse(r *domain.RebalanceReport) RebalanceResponse {
	scores := make([]RebalanceScoreResponse, 0, len(r.Scores))
	for _, s := range r.Scores {
		scores = append(scores, RebalanceScoreResponse{
			Currency:          string(s.Currency),
			TransactionVolume: s.TransactionVolume.String(),
			HistoricalDemand:  s.HistoricalDemand.String(),
			RateVolatility:    s.RateVolatility.String(),
			Score:             s.Score.String(),
			Applied:           s.Applied,
		})
	}
	return RebalanceResponse{RunAt: r.RunAt.UTC().Format(time.RFC3339), Scores: scores}
}
