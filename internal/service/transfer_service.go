package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fx-liquidity-engine/internal/core/domain"
	"fx-liquidity-engine/internal/core/ports"
	"fx-liquidity-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const idempotencyTTL = 24 * time.Hour

// TransferServiceImpl implements ports.TransferService.
//
// Initiate reserves destination liquidity and writes the transfer plus its
// settlement task in one transaction. Settlement happens later in the worker,
// which calls MarkProcessing and Complete.
type TransferServiceImpl struct {
	transferRepo ports.TransferRepository
	currencyRepo ports.CurrencyRepository
	revenueRepo  ports.RevenueRepository
	taskRepo     ports.SettlementTaskRepository
	quoteSvc     ports.QuoteService
	idempCache   ports.IdempotencyCache
	transactor   ports.DBTransactor
	log          zerolog.Logger
	now          func() time.Time
}

// NewTransferService creates a new TransferServiceImpl.
func NewTransferService(
	transferRepo ports.TransferRepository,
	currencyRepo ports.CurrencyRepository,
	revenueRepo ports.RevenueRepository,
	taskRepo ports.SettlementTaskRepository,
	quoteSvc ports.QuoteService,
	idempCache ports.IdempotencyCache,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *TransferServiceImpl {
	return &TransferServiceImpl{
		transferRepo: transferRepo,
		currencyRepo: currencyRepo,
		revenueRepo:  revenueRepo,
		taskRepo:     taskRepo,
		quoteSvc:     quoteSvc,
		idempCache:   idempCache,
		transactor:   transactor,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Initiate applies a transfer request at most once. Rejections are logged
// with the request and, once priced, the quote they were rejected at.
func (s *TransferServiceImpl) Initiate(ctx context.Context, req ports.TransferRequest) (*domain.Transfer, error) {
	transfer, quote, err := s.initiate(ctx, req)
	if err != nil {
		s.logRejection(req, quote, err)
		return nil, err
	}
	return transfer, nil
}

func (s *TransferServiceImpl) initiate(ctx context.Context, req ports.TransferRequest) (*domain.Transfer, *domain.Quote, error) {
	if strings.TrimSpace(req.IdempotenceKey) == "" {
		return nil, nil, apperror.ErrMissingIdempotencyKey()
	}
	if strings.TrimSpace(req.Reference) == "" {
		return nil, nil, apperror.Validation("reference is required")
	}
	if !req.SourceAmount.IsPositive() {
		return nil, nil, apperror.ErrInvalidAmount()
	}
	src, okSrc := domain.ParseCurrency(req.SourceCurrency)
	dst, okDst := domain.ParseCurrency(req.DestinationCurrency)
	if !okSrc || !okDst {
		return nil, nil, apperror.ErrUnsupportedCurrencyPair()
	}

	cacheKey := domain.TransferIdempotencyKey(req.IdempotenceKey)

	// Layer 1: Redis fast path
	cached, err := s.idempCache.Get(ctx, cacheKey)
	if err != nil {
		s.log.Warn().Err(err).Str("key", cacheKey).Msg("redis idempotency check failed, falling through to DB")
	}
	if cached != nil {
		return nil, nil, apperror.ErrDuplicateTransfer()
	}

	now := s.now()
	quote, err := s.quoteSvc.Resolve(ctx, src, dst, req.SourceAmount, now)
	if err != nil {
		return nil, nil, err
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, quote, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	// Layer 2: DB check on key and reference
	exists, err := s.transferRepo.ExistsByIdempotenceKeyOrReference(ctx, dbTx, req.IdempotenceKey, req.Reference)
	if err != nil {
		return nil, quote, apperror.InternalError(fmt.Errorf("check duplicate: %w", err))
	}
	if exists {
		return nil, quote, apperror.ErrDuplicateTransfer()
	}

	reserved, err := s.currencyRepo.Reserve(ctx, dbTx, dst, quote.DestinationAmount)
	if err != nil {
		return nil, quote, apperror.InternalError(fmt.Errorf("reserve liquidity: %w", err))
	}
	if !reserved {
		return nil, quote, apperror.ErrInsufficientLiquidity()
	}

	transfer := &domain.Transfer{
		ID:                      uuid.New(),
		Narration:               req.Narration,
		Source:                  req.Source,
		SourceCurrency:          src,
		SourceAmount:            quote.SourceAmount,
		Destination:             req.Destination,
		DestinationCurrency:     dst,
		DestinationAmount:       quote.DestinationAmount,
		AppliedRate:             quote.AppliedRate,
		AppliedMarginPercentage: quote.MarginPercentage,
		AppliedMarginAmount:     quote.MarginAmount,
		Reference:               req.Reference,
		IdempotenceKey:          req.IdempotenceKey,
		Status:                  domain.TransferStatusInitiated,
		StatusDescription:       domain.TransferStatusInitiated.Description(),
		InitiatedAt:             now,
	}

	// Layer 3: unique constraints, for requests that raced past the check above
	if err := s.transferRepo.Create(ctx, dbTx, transfer); err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return nil, quote, appErr
		}
		return nil, quote, apperror.InternalError(fmt.Errorf("create transfer: %w", err))
	}

	if err := s.taskRepo.Enqueue(ctx, dbTx, domain.NewSettlementTask(transfer.ID, now)); err != nil {
		return nil, quote, apperror.InternalError(fmt.Errorf("enqueue settlement: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, quote, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	// Post-process: cache in Redis (best-effort)
	if err := s.idempCache.Set(ctx, cacheKey, []byte(transfer.ID.String()), idempotencyTTL); err != nil {
		s.log.Warn().Err(err).Str("key", cacheKey).Msg("failed to cache idempotency in redis")
	}

	s.log.Info().
		Str("transfer_id", transfer.ID.String()).
		Str("reference", transfer.Reference).
		Str("pair", string(src)+"/"+string(dst)).
		Str("source_amount", transfer.SourceAmount.String()).
		Str("destination_amount", transfer.DestinationAmount.String()).
		Msg("transfer initiated")

	return transfer, quote, nil
}

func (s *TransferServiceImpl) logRejection(req ports.TransferRequest, quote *domain.Quote, err error) {
	event := s.log.Warn()
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.HTTPStatus >= 500 {
		event = s.log.Error()
	}
	if appErr != nil {
		event = event.Str("error_code", appErr.Code)
	}
	event = event.Err(err).
		Str("reference", req.Reference).
		Str("idempotence_key", req.IdempotenceKey).
		Str("pair", req.SourceCurrency+"/"+req.DestinationCurrency).
		Str("source_amount", req.SourceAmount.String())
	if quote != nil {
		event = event.
			Str("applied_rate", quote.AppliedRate.String()).
			Str("margin_percentage", quote.MarginPercentage.String()).
			Str("destination_amount", quote.DestinationAmount.String())
	}
	event.Msg("transfer rejected")
}

// Get returns a transfer by id.
func (s *TransferServiceImpl) Get(ctx context.Context, id uuid.UUID) (*domain.Transfer, error) {
	t, err := s.transferRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get transfer: %w", err))
	}
	if t == nil {
		return nil, apperror.ErrNotFound("Transfer")
	}
	return t, nil
}

// MarkProcessing moves an Initiated transfer to Processing. A transfer that
// is already Processing is returned unchanged so redelivered tasks can resume.
func (s *TransferServiceImpl) MarkProcessing(ctx context.Context, id uuid.UUID) (*domain.Transfer, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	t, err := s.transferRepo.GetByIDForUpdate(ctx, dbTx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock transfer: %w", err))
	}
	if t == nil {
		return nil, apperror.ErrNotFound("Transfer")
	}
	if t.Status == domain.TransferStatusProcessing {
		return t, nil
	}
	if !t.Status.CanTransitionTo(domain.TransferStatusProcessing) {
		return nil, apperror.ErrInvalidTransition(string(t.Status), string(domain.TransferStatusProcessing))
	}

	moved, err := s.transferRepo.UpdateStatus(ctx, dbTx, id, t.Status, domain.TransferStatusProcessing, nil)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update status: %w", err))
	}
	if !moved {
		return nil, apperror.ErrInvalidTransition(string(t.Status), string(domain.TransferStatusProcessing))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	t.Status = domain.TransferStatusProcessing
	t.StatusDescription = t.Status.Description()
	return t, nil
}

// Complete applies a settlement outcome: terminal status, ledger settlement
// and revenue accrual commit together. Completing a terminal transfer is a
// no-op that returns it as stored.
func (s *TransferServiceImpl) Complete(ctx context.Context, id uuid.UUID, result domain.SettlementResult) (*domain.Transfer, error) {
	to := domain.TransferStatusFailed
	if result.Successful {
		to = domain.TransferStatusSuccessful
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	t, err := s.transferRepo.GetByIDForUpdate(ctx, dbTx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock transfer: %w", err))
	}
	if t == nil {
		return nil, apperror.ErrNotFound("Transfer")
	}
	if t.IsTerminal() {
		return t, nil
	}
	if !t.Status.CanTransitionTo(to) {
		return nil, apperror.ErrInvalidTransition(string(t.Status), string(to))
	}

	completedAt := s.now()
	moved, err := s.transferRepo.UpdateStatus(ctx, dbTx, id, t.Status, to, &completedAt)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update status: %w", err))
	}
	if !moved {
		return nil, apperror.ErrInvalidTransition(string(t.Status), string(to))
	}

	if err := s.currencyRepo.Settle(ctx, dbTx, t.DestinationCurrency, t.DestinationAmount, result.Successful); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("settle liquidity: %w", err))
	}

	if result.Successful {
		day := domain.RevenueDay(completedAt)
		if err := s.revenueRepo.Accrue(ctx, dbTx, day, t.DestinationCurrency, t.AppliedMarginAmount); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("accrue revenue: %w", err))
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	t.Status = to
	t.StatusDescription = to.Description()
	t.CompletedAt = &completedAt

	s.log.Info().
		Str("transfer_id", t.ID.String()).
		Str("status", string(to)).
		Str("message", result.Message).
		Msg("transfer completed")

	return t, nil
}
