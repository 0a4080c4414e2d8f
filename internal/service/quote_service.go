package service

import (
	"context"
	"fmt"
	"time"

	"fx-liquidity-engine/config"
	"fx-liquidity-engine/internal/core/domain"
	"fx-liquidity-engine/internal/core/ports"
	"fx-liquidity-engine/pkg/apperror"

	"github.com/shopspring/decimal"
)

// QuoteServiceImpl implements ports.QuoteService.
type QuoteServiceImpl struct {
	rateRepo ports.RateRepository
	engine   config.EngineConfig
}

// NewQuoteService creates a new QuoteServiceImpl.
func NewQuoteService(rateRepo ports.RateRepository, engine config.EngineConfig) *QuoteServiceImpl {
	return &QuoteServiceImpl{rateRepo: rateRepo, engine: engine}
}

// Resolve prices amount of src into dst using the latest rate observed at or
// before at and the destination currency's margin. amount is rounded to the
// storage scale first; the margin must be positive.
func (s *QuoteServiceImpl) Resolve(ctx context.Context, src, dst domain.CurrencyCode, amount decimal.Decimal, at time.Time) (*domain.Quote, error) {
	if !src.IsSupported() || !dst.IsSupported() {
		return nil, apperror.ErrUnsupportedCurrencyPair()
	}
	amount = domain.RoundAmount(amount)
	if !amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}

	rate, err := s.rateRepo.LatestAt(ctx, src, dst, at)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("latest rate: %w", err))
	}
	if rate == nil {
		return nil, apperror.ErrRateNotAvailable()
	}

	pct, ok := s.engine.Margin(string(dst))
	if !ok || !pct.IsPositive() {
		return nil, apperror.ErrMarginNotConfigured()
	}

	gross, margin, dest := domain.ApplyMargin(amount, rate.Rate, pct)

	return &domain.Quote{
		SourceCurrency:      src,
		DestinationCurrency: dst,
		SourceAmount:        amount,
		AppliedRate:         rate.Rate,
		GrossAmount:         gross,
		MarginPercentage:    pct,
		MarginAmount:        margin,
		DestinationAmount:   dest,
		RateTimestamp:       rate.Timestamp,
	}, nil
}
