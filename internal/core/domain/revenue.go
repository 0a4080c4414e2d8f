package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RevenueDayLayout is the format of DailyRevenue.Day.
const RevenueDayLayout = "2006-01-02"

// DailyRevenue aggregates margin earned per currency per UTC day.
type DailyRevenue struct {
	Day       string          `json:"day"`
	Currency  CurrencyCode    `json:"currency"`
	Revenue   decimal.Decimal `json:"revenue"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RevenueDay returns the bucket a completion time belongs to.
func RevenueDay(t time.Time) string {
	return t.UTC().Format(RevenueDayLayout)
}
