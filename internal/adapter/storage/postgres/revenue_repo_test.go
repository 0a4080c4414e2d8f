package postgres

import (
	"context"
	"testing"
	"time"

	"fx-liquidity-engine/internal/core/domain"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRevenueRepo_Accrue(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRevenueRepo(mock)
	amount := decimal.RequireFromString("2.2")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO daily_revenue .+ ON CONFLICT \\(currency, day\\) DO UPDATE SET revenue = daily_revenue.revenue \\+ EXCLUDED.revenue").
		WithArgs("2026-03-01", domain.EUR, amount, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.Accrue(context.Background(), dbTx, "2026-03-01", domain.EUR, amount))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevenueRepo_ListByDay(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRevenueRepo(mock)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT day, currency, revenue, updated_at FROM daily_revenue WHERE day").
		WithArgs("2026-03-01").
		WillReturnRows(pgxmock.NewRows([]string{"day", "currency", "revenue", "updated_at"}).
			AddRow("2026-03-01", domain.EUR, decimal.RequireFromString("4.4"), now).
			AddRow("2026-03-01", domain.USD, decimal.RequireFromString("1.5"), now))

	list, err := repo.ListByDay(context.Background(), "2026-03-01")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.EUR, list[0].Currency)
	assert.Equal(t, "4.4", list[0].Revenue.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}
