package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CurrencyCode is an ISO 4217 code supported by the engine.
type CurrencyCode string

const (
	USD CurrencyCode = "USD"
	EUR CurrencyCode = "EUR"
	GBP CurrencyCode = "GBP"
	JPY CurrencyCode = "JPY"
	AUD CurrencyCode = "AUD"
)

// SupportedCurrencies lists every currency a pool may exist for.
var SupportedCurrencies = []CurrencyCode{USD, EUR, GBP, JPY, AUD}

// IsSupported reports whether code is one of SupportedCurrencies.
func (c CurrencyCode) IsSupported() bool {
	for _, s := range SupportedCurrencies {
		if s == c {
			return true
		}
	}
	return false
}

// ParseCurrency normalises and validates a currency code.
func ParseCurrency(s string) (CurrencyCode, bool) {
	c := CurrencyCode(strings.ToUpper(strings.TrimSpace(s)))
	return c, c.IsSupported()
}

// Currency is a liquidity pool for one currency.
//
// AvailableLiquidity is what new transfers may reserve; LedgerLiquidity is the
// settled balance. Available drops below ledger while transfers are in flight
// and never goes negative.
type Currency struct {
	ID                 uuid.UUID       `json:"id"`
	Name               CurrencyCode    `json:"name"`
	AvailableLiquidity decimal.Decimal `json:"available_liquidity"`
	LedgerLiquidity    decimal.Decimal `json:"ledger_liquidity"`
	LastRebalance      time.Time       `json:"last_rebalance"`
	Version            int64           `json:"version"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// InFlight is the amount reserved by transfers that have not settled yet.
func (c *Currency) InFlight() decimal.Decimal {
	return c.LedgerLiquidity.Sub(c.AvailableLiquidity)
}
