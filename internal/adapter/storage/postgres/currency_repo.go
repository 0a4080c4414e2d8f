package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fx-liquidity-engine/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const currencyColumns = `id, name, available_liquidity, ledger_liquidity, last_rebalance, version, created_at, updated_at`

// CurrencyRepo implements ports.CurrencyRepository.
type CurrencyRepo struct {
	pool Pool
}

// NewCurrencyRepo creates a new CurrencyRepo.
func NewCurrencyRepo(pool Pool) *CurrencyRepo {
	return &CurrencyRepo{pool: pool}
}

// Seed inserts a currency pool unless one with the same name exists.
func (r *CurrencyRepo) Seed(ctx context.Context, c *domain.Currency) (bool, error) {
	query := `INSERT INTO currencies (id, name, available_liquidity, ledger_liquidity, last_rebalance, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 1, $6, $6)
		ON CONFLICT (name) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query,
		c.ID, c.Name, c.AvailableLiquidity, c.LedgerLiquidity, c.LastRebalance, c.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("seed currency: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetByName fetches a currency pool by its ISO code.
func (r *CurrencyRepo) GetByName(ctx context.Context, name domain.CurrencyCode) (*domain.Currency, error) {
	query := `SELECT ` + currencyColumns + ` FROM currencies WHERE name = $1`
	return r.scanCurrency(r.pool.QueryRow(ctx, query, name))
}

// List returns every currency pool ordered by name.
func (r *CurrencyRepo) List(ctx context.Context) ([]domain.Currency, error) {
	query := `SELECT ` + currencyColumns + ` FROM currencies ORDER BY name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list currencies: %w", err)
	}
	return r.collect(rows)
}

// ListForUpdate locks every currency row for the duration of tx.
func (r *CurrencyRepo) ListForUpdate(ctx context.Context, tx pgx.Tx) ([]domain.Currency, error) {
	query := `SELECT ` + currencyColumns + ` FROM currencies ORDER BY name FOR UPDATE`

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list currencies for update: %w", err)
	}
	return r.collect(rows)
}

// Reserve atomically decrements available liquidity when it covers amount.
// The guard in the WHERE clause keeps concurrent reservations from overdrawing.
func (r *CurrencyRepo) Reserve(ctx context.Context, tx pgx.Tx, name domain.CurrencyCode, amount decimal.Decimal) (bool, error) {
	query := `UPDATE currencies
		SET available_liquidity = available_liquidity - $1, version = version + 1, updated_at = $3
		WHERE name = $2 AND available_liquidity >= $1`

	tag, err := tx.Exec(ctx, query, amount, name, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("reserve liquidity: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Settle applies a settlement outcome to the destination pool.
func (r *CurrencyRepo) Settle(ctx context.Context, tx pgx.Tx, name domain.CurrencyCode, amount decimal.Decimal, success bool) error {
	query := `UPDATE currencies
		SET available_liquidity = available_liquidity + $1, version = version + 1, updated_at = $3
		WHERE name = $2`
	if success {
		query = `UPDATE currencies
		SET ledger_liquidity = ledger_liquidity - $1, version = version + 1, updated_at = $3
		WHERE name = $2`
	}

	tag, err := tx.Exec(ctx, query, amount, name, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("settle liquidity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("currency not found: %s", name)
	}
	return nil
}

// AddLiquidity credits both balances and advances the rebalance watermark.
func (r *CurrencyRepo) AddLiquidity(ctx context.Context, tx pgx.Tx, name domain.CurrencyCode, amount decimal.Decimal, rebalancedAt time.Time) error {
	query := `UPDATE currencies
		SET available_liquidity = available_liquidity + $1,
		    ledger_liquidity = ledger_liquidity + $1,
		    last_rebalance = $3, version = version + 1, updated_at = $3
		WHERE name = $2`

	tag, err := tx.Exec(ctx, query, amount, name, rebalancedAt)
	if err != nil {
		return fmt.Errorf("add liquidity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("currency not found: %s", name)
	}
	return nil
}

func (r *CurrencyRepo) collect(rows pgx.Rows) ([]domain.Currency, error) {
	defer rows.Close()

	var currencies []domain.Currency
	for rows.Next() {
		var c domain.Currency
		if err := rows.Scan(
			&c.ID, &c.Name, &c.AvailableLiquidity, &c.LedgerLiquidity,
			&c.LastRebalance, &c.Version, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan currency row: %w", err)
		}
		currencies = append(currencies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate currency rows: %w", err)
	}
	return currencies, nil
}

func (r *CurrencyRepo) scanCurrency(row pgx.Row) (*domain.Currency, error) {
	var c domain.Currency
	err := row.Scan(
		&c.ID, &c.Name, &c.AvailableLiquidity, &c.LedgerLiquidity,
		&c.LastRebalance, &c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan currency: %w", err)
	}
	return &c, nil
}
