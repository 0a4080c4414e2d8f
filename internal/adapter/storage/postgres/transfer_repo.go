package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fx-liquidity-engine/internal/core/domain"
	"fx-liquidity-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const transferColumns = `id, narration, source, source_currency, source_amount, destination, destination_currency,
	destination_amount, applied_rate, applied_margin_percentage, applied_margin_amount, reference, idempotence_id,
	status, status_description, initiated_at, completed_at`

// TransferRepo implements ports.TransferRepository.
type TransferRepo struct {
	pool Pool
}

// NewTransferRepo creates a new TransferRepo.
func NewTransferRepo(pool Pool) *TransferRepo {
	return &TransferRepo{pool: pool}
}

// Create inserts a new transfer within a database transaction.
// A clash on reference or idempotence key is returned as a duplicate transfer error.
func (r *TransferRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transfer) error {
	query := `INSERT INTO transfers (` + transferColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := tx.Exec(ctx, query,
		t.ID, t.Narration, t.Source, t.SourceCurrency, t.SourceAmount,
		t.Destination, t.DestinationCurrency, t.DestinationAmount,
		t.AppliedRate, t.AppliedMarginPercentage, t.AppliedMarginAmount,
		t.Reference, t.IdempotenceKey, t.Status, t.StatusDescription,
		t.InitiatedAt, t.CompletedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return conflictError(err, apperror.ErrDuplicateTransfer)
		}
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

// GetByID fetches a transfer by UUID.
func (r *TransferRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE id = $1`
	return r.scanTransfer(r.pool.QueryRow(ctx, query, id))
}

// GetByIDForUpdate fetches and row-locks a transfer inside tx.
func (r *TransferRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE id = $1 FOR UPDATE`
	return r.scanTransfer(tx.QueryRow(ctx, query, id))
}

// ExistsByIdempotenceKeyOrReference reports whether either identifier is taken.
func (r *TransferRepo) ExistsByIdempotenceKeyOrReference(ctx context.Context, tx pgx.Tx, idempotenceKey, reference string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM transfers WHERE idempotence_id = $1 OR reference = $2)`

	var exists bool
	if err := tx.QueryRow(ctx, query, idempotenceKey, reference).Scan(&exists); err != nil {
		return false, fmt.Errorf("check transfer exists: %w", err)
	}
	return exists, nil
}

// UpdateStatus moves a transfer from one status to another. The status guard
// makes concurrent or replayed transitions no-ops.
func (r *TransferRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to domain.TransferStatus, completedAt *time.Time) (bool, error) {
	query := `UPDATE transfers SET status = $1, status_description = $2, completed_at = $3
		WHERE id = $4 AND status = $5`

	tag, err := tx.Exec(ctx, query, to, to.Description(), completedAt, id, from)
	if err != nil {
		return false, fmt.Errorf("update transfer status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SumSuccessfulVolume totals destination amounts settled into dst within [from, to].
func (r *TransferRepo) SumSuccessfulVolume(ctx context.Context, tx pgx.Tx, dst domain.CurrencyCode, from, to time.Time) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(destination_amount), 0) FROM transfers
		WHERE destination_currency = $1 AND status = $2 AND completed_at >= $3 AND completed_at <= $4`

	var sum decimal.Decimal
	if err := tx.QueryRow(ctx, query, dst, domain.TransferStatusSuccessful, from, to).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("sum successful volume: %w", err)
	}
	return sum, nil
}

// SumDemand totals destination amounts requested into dst within [from, to], any status.
func (r *TransferRepo) SumDemand(ctx context.Context, tx pgx.Tx, dst domain.CurrencyCode, from, to time.Time) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(destination_amount), 0) FROM transfers
		WHERE destination_currency = $1 AND initiated_at >= $2 AND initiated_at <= $3`

	var sum decimal.Decimal
	if err := tx.QueryRow(ctx, query, dst, from, to).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("sum demand: %w", err)
	}
	return sum, nil
}

func (r *TransferRepo) scanTransfer(row pgx.Row) (*domain.Transfer, error) {
	var t domain.Transfer
	err := row.Scan(
		&t.ID, &t.Narration, &t.Source, &t.SourceCurrency, &t.SourceAmount,
		&t.Destination, &t.DestinationCurrency, &t.DestinationAmount,
		&t.AppliedRate, &t.AppliedMarginPercentage, &t.AppliedMarginAmount,
		&t.Reference, &t.IdempotenceKey, &t.Status, &t.StatusDescription,
		&t.InitiatedAt, &t.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan transfer: %w", err)
	}
	return &t, nil
}
