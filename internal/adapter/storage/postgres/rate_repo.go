package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fx-liquidity-engine/internal/core/domain"
	"fx-liquidity-engine/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// RateRepo implements ports.RateRepository. Rows are append-only.
type RateRepo struct {
	pool Pool
}

// NewRateRepo creates a new RateRepo.
func NewRateRepo(pool Pool) *RateRepo {
	return &RateRepo{pool: pool}
}

// Create appends a rate observation.
func (r *RateRepo) Create(ctx context.Context, rate *domain.Rate) error {
	query := `INSERT INTO rates (id, source_currency, destination_currency, rate, ts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query,
		rate.ID, rate.SourceCurrency, rate.DestinationCurrency, rate.Rate, rate.Timestamp, rate.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return conflictError(err, apperror.ErrDuplicateRate)
		}
		return fmt.Errorf("insert rate: %w", err)
	}
	return nil
}

// LatestAt returns the newest observation for the pair with ts <= at.
func (r *RateRepo) LatestAt(ctx context.Context, src, dst domain.CurrencyCode, at time.Time) (*domain.Rate, error) {
	query := `SELECT id, source_currency, destination_currency, rate, ts, created_at
		FROM rates
		WHERE source_currency = $1 AND destination_currency = $2 AND ts <= $3
		ORDER BY ts DESC
		LIMIT 1`

	var rate domain.Rate
	err := r.pool.QueryRow(ctx, query, src, dst, at).Scan(
		&rate.ID, &rate.SourceCurrency, &rate.DestinationCurrency, &rate.Rate, &rate.Timestamp, &rate.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest rate: %w", err)
	}
	return &rate, nil
}

// ListForDestination returns the rate values observed into dst within [from, to].
func (r *RateRepo) ListForDestination(ctx context.Context, tx pgx.Tx, dst domain.CurrencyCode, from, to time.Time) ([]decimal.Decimal, error) {
	query := `SELECT rate FROM rates
		WHERE destination_currency = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts`

	rows, err := tx.Query(ctx, query, dst, from, to)
	if err != nil {
		return nil, fmt.Errorf("list rates for destination: %w", err)
	}
	defer rows.Close()

	var values []decimal.Decimal
	for rows.Next() {
		var v decimal.Decimal
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan rate value: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rate rows: %w", err)
	}
	return values, nil
}
