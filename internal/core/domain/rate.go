package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Rate is a single exchange-rate observation for an ordered pair.
type Rate struct {
	ID                  uuid.UUID       `json:"id"`
	SourceCurrency      CurrencyCode    `json:"source_currency"`
	DestinationCurrency CurrencyCode    `json:"destination_currency"`
	Rate                decimal.Decimal `json:"rate"`
	Timestamp           time.Time       `json:"timestamp"`
	CreatedAt           time.Time       `json:"created_at"`
}

// Pair formats the rate's pair as "SRC/DST".
func (r *Rate) Pair() string {
	return string(r.SourceCurrency) + "/" + string(r.DestinationCurrency)
}

// ParsePair splits a "SRC/DST" pair and validates both codes.
func ParsePair(pair string) (CurrencyCode, CurrencyCode, error) {
	parts := strings.Split(strings.TrimSpace(pair), "/")
	if len(parts) != 2 || len(parts[0]) != 3 || len(parts[1]) != 3 {
		return "", "", fmt.Errorf("malformed currency pair %q", pair)
	}
	src, ok := ParseCurrency(parts[0])
	if !ok {
		return "", "", fmt.Errorf("unsupported source currency %q", parts[0])
	}
	dst, ok := ParseCurrency(parts[1])
	if !ok {
		return "", "", fmt.Errorf("unsupported destination currency %q", parts[1])
	}
	return src, dst, nil
}

// Quote is the outcome of applying a rate and a destination margin to a
// source amount.
type Quote struct {
	SourceCurrency      CurrencyCode    `json:"source_currency"`
	DestinationCurrency CurrencyCode    `json:"destination_currency"`
	SourceAmount        decimal.Decimal `json:"source_amount"`
	AppliedRate         decimal.Decimal `json:"applied_rate"`
	GrossAmount         decimal.Decimal `json:"gross_amount"`
	MarginPercentage    decimal.Decimal `json:"margin_percentage"`
	MarginAmount        decimal.Decimal `json:"margin_amount"`
	DestinationAmount   decimal.Decimal `json:"destination_amount"`
	RateTimestamp       time.Time       `json:"rate_timestamp"`
}

// AmountPlaces is the scale of every stored money column, NUMERIC(19,9).
const AmountPlaces int32 = 9

var hundred = decimal.NewFromInt(100)

// RoundAmount rounds d half away from zero to AmountPlaces, as PostgreSQL
// does when storing it.
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountPlaces)
}

// ApplyMargin computes gross = amount*rate and margin = gross*pct/100, each
// rounded to AmountPlaces, and destination = gross - margin. Every result is
// exactly representable in storage and gross = destination + margin.
func ApplyMargin(amount, rate, marginPercentage decimal.Decimal) (gross, margin, destination decimal.Decimal) {
	gross = RoundAmount(amount.Mul(rate))
	margin = RoundAmount(gross.Mul(marginPercentage).Div(hundred))
	destination = gross.Sub(margin)
	return gross, margin, destination
}
