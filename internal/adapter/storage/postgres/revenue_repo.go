package postgres

import (
	"context"
	"fmt"
	"time"

	"fx-liquidity-engine/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// RevenueRepo implements ports.RevenueRepository.
type RevenueRepo struct {
	pool Pool
}

// NewRevenueRepo creates a new RevenueRepo.
func NewRevenueRepo(pool Pool) *RevenueRepo {
	return &RevenueRepo{pool: pool}
}

// Accrue adds amount to the (currency, day) bucket, creating it on first use.
func (r *RevenueRepo) Accrue(ctx context.Context, tx pgx.Tx, day string, currency domain.CurrencyCode, amount decimal.Decimal) error {
	query := `INSERT INTO daily_revenue (day, currency, revenue, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (currency, day) DO UPDATE
		SET revenue = daily_revenue.revenue + EXCLUDED.revenue, updated_at = EXCLUDED.updated_at`

	if _, err := tx.Exec(ctx, query, day, currency, amount, time.Now().UTC()); err != nil {
		return fmt.Errorf("accrue revenue: %w", err)
	}
	return nil
}

// ListByDay returns the revenue booked on day for every currency.
func (r *RevenueRepo) ListByDay(ctx context.Context, day string) ([]domain.DailyRevenue, error) {
	query := `SELECT day, currency, revenue, updated_at FROM daily_revenue WHERE day = $1 ORDER BY currency`

	rows, err := r.pool.Query(ctx, query, day)
	if err != nil {
		return nil, fmt.Errorf("list revenue: %w", err)
	}
	defer rows.Close()

	var out []domain.DailyRevenue
	for rows.Next() {
		var d domain.DailyRevenue
		if err := rows.Scan(&d.Day, &d.Currency, &d.Revenue, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan revenue row: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revenue rows: %w", err)
	}
	return out, nil
}
