package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fx-liquidity-engine/internal/core/domain"
	"fx-liquidity-engine/internal/core/ports"
	"fx-liquidity-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RateServiceImpl implements ports.RateService.
type RateServiceImpl struct {
	rateRepo ports.RateRepository
	log      zerolog.Logger
	now      func() time.Time
}

// NewRateService creates a new RateServiceImpl.
func NewRateService(rateRepo ports.RateRepository, log zerolog.Logger) *RateServiceImpl {
	return &RateServiceImpl{
		rateRepo: rateRepo,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// UpdateRate appends a rate observation. A zero timestamp means now.
func (s *RateServiceImpl) UpdateRate(ctx context.Context, req ports.RateUpdateRequest) (*domain.Rate, error) {
	src, dst, err := domain.ParsePair(req.Pair)
	if err != nil {
		return nil, apperror.ErrUnsupportedCurrencyPair()
	}
	if !req.Rate.IsPositive() {
		return nil, apperror.Validation("rate must be greater than zero")
	}

	now := s.now()
	ts := req.Timestamp.UTC()
	if req.Timestamp.IsZero() {
		ts = now
	}

	rate := &domain.Rate{
		ID:                  uuid.New(),
		SourceCurrency:      src,
		DestinationCurrency: dst,
		Rate:                req.Rate,
		Timestamp:           ts,
		CreatedAt:           now,
	}

	if err := s.rateRepo.Create(ctx, rate); err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperror.InternalError(fmt.Errorf("create rate: %w", err))
	}

	s.log.Info().
		Str("pair", rate.Pair()).
		Str("rate", rate.Rate.String()).
		Time("ts", rate.Timestamp).
		Msg("rate updated")

	return rate, nil
}

// Latest returns the newest rate for pair observed at or before now.
func (s *RateServiceImpl) Latest(ctx context.Context, pair string) (*domain.Rate, error) {
	src, dst, err := domain.ParsePair(pair)
	if err != nil {
		return nil, apperror.ErrUnsupportedCurrencyPair()
	}

	rate, err := s.rateRepo.LatestAt(ctx, src, dst, s.now())
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("latest rate: %w", err))
	}
	if rate == nil {
		return nil, apperror.ErrRateNotAvailable()
	}
	return rate, nil
}
