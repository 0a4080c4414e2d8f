package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RebalanceScore captures the inputs and result of scoring one currency.
type RebalanceScore struct {
	Currency          CurrencyCode    `json:"currency"`
	TransactionVolume decimal.Decimal `json:"transaction_volume"`
	HistoricalDemand  decimal.Decimal `json:"historical_demand"`
	RateVolatility    decimal.Decimal `json:"rate_volatility"`
	Score             decimal.Decimal `json:"score"`
	Applied           bool            `json:"applied"`
	WindowStart       time.Time       `json:"window_start"`
}

// RebalanceReport summarises one rebalance run.
type RebalanceReport struct {
	RunAt  time.Time        `json:"run_at"`
	Scores []RebalanceScore `json:"scores"`
}
