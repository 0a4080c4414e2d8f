package ports

import (
	"context"
	"time"

	"fx-liquidity-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// CurrencyRepository owns liquidity pool balances.
// Balance mutations are single atomic SQL statements run inside the caller's transaction.
type CurrencyRepository interface {
	// Seed inserts the currency unless it already exists. Returns true if inserted.
	Seed(ctx context.Context, currency *domain.Currency) (bool, error)
	GetByName(ctx context.Context, name domain.CurrencyCode) (*domain.Currency, error)
	List(ctx context.Context) ([]domain.Currency, error)
	ListForUpdate(ctx context.Context, tx pgx.Tx) ([]domain.Currency, error)
	// Reserve decrements available liquidity if it covers amount. Returns false when it does not.
	Reserve(ctx context.Context, tx pgx.Tx, name domain.CurrencyCode, amount decimal.Decimal) (bool, error)
	// Settle applies a settlement outcome: success debits the ledger balance,
	// failure releases the reservation back to available.
	Settle(ctx context.Context, tx pgx.Tx, name domain.CurrencyCode, amount decimal.Decimal, success bool) error
	// AddLiquidity credits both balances and moves the rebalance watermark.
	AddLiquidity(ctx context.Context, tx pgx.Tx, name domain.CurrencyCode, amount decimal.Decimal, rebalancedAt time.Time) error
}

// RateRepository persists append-only rate observations.
type RateRepository interface {
	Create(ctx context.Context, rate *domain.Rate) error
	// LatestAt returns the most recent observation with ts <= at, or nil.
	LatestAt(ctx context.Context, src, dst domain.CurrencyCode, at time.Time) (*domain.Rate, error)
	ListForDestination(ctx context.Context, tx pgx.Tx, dst domain.CurrencyCode, from, to time.Time) ([]decimal.Decimal, error)
}

// TransferRepository persists transfers and their state transitions.
type TransferRepository interface {
	Create(ctx context.Context, tx pgx.Tx, transfer *domain.Transfer) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transfer, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Transfer, error)
	ExistsByIdempotenceKeyOrReference(ctx context.Context, tx pgx.Tx, idempotenceKey, reference string) (bool, error)
	// UpdateStatus moves a transfer from one status to another. Returns false if
	// the transfer was not in the expected status.
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to domain.TransferStatus, completedAt *time.Time) (bool, error)
	SumSuccessfulVolume(ctx context.Context, tx pgx.Tx, dst domain.CurrencyCode, from, to time.Time) (decimal.Decimal, error)
	SumDemand(ctx context.Context, tx pgx.Tx, dst domain.CurrencyCode, from, to time.Time) (decimal.Decimal, error)
}

// RevenueRepository books margin revenue per day and currency.
type RevenueRepository interface {
	Accrue(ctx context.Context, tx pgx.Tx, day string, currency domain.CurrencyCode, amount decimal.Decimal) error
	ListByDay(ctx context.Context, day string) ([]domain.DailyRevenue, error)
}

// SettlementTaskRepository is the durable outbox feeding the settlement workers.
type SettlementTaskRepository interface {
	Enqueue(ctx context.Context, tx pgx.Tx, task *domain.SettlementTask) error
	// ClaimDue atomically moves up to limit due PENDING tasks to PROCESSING.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.SettlementTask, error)
	MarkDone(ctx context.Context, id uuid.UUID) error
	MarkRetry(ctx context.Context, id uuid.UUID, lastError string, nextAttemptAt time.Time) error
	MarkDead(ctx context.Context, id uuid.UUID, lastError string) error
	// ResetStuck returns PROCESSING tasks untouched since before to PENDING.
	ResetStuck(ctx context.Context, before time.Time) (int64, error)
	// EnqueueOrphans creates tasks for non-terminal transfers initiated before
	// the cutoff that have no live task.
	EnqueueOrphans(ctx context.Context, before time.Time) (int64, error)
}

// AuditRepository persists operator audit records.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
