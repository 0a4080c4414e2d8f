package service

import (
	"context"
	"time"

	"fx-liquidity-engine/internal/core/domain"
	"fx-liquidity-engine/internal/core/ports"
	"fx-liquidity-engine/pkg/apperror"
)

// reportingService implements ports.ReportingService.
type reportingService struct {
	currencyRepo ports.CurrencyRepository
	revenueRepo  ports.RevenueRepository
}

// NewReportingService creates a new reporting service.
func NewReportingService(currencyRepo ports.CurrencyRepository, revenueRepo ports.RevenueRepository) ports.ReportingService {
	return &reportingService{
		currencyRepo: currencyRepo,
		revenueRepo:  revenueRepo,
	}
}

// Liquidity returns the current balances of every currency pool.
func (s *reportingService) Liquidity(ctx context.Context) ([]domain.Currency, error) {
	currencies, err := s.currencyRepo.List(ctx)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	return currencies, nil
}

// DailyRevenue returns margin revenue booked on day (YYYY-MM-DD, UTC).
// An empty day means today.
func (s *reportingService) DailyRevenue(ctx context.Context, day string) ([]domain.DailyRevenue, error) {
	if day == "" {
		day = domain.RevenueDay(time.Now())
	}
	if _, err := time.Parse(domain.RevenueDayLayout, day); err != nil {
		return nil, apperror.Validation("invalid day: must be YYYY-MM-DD")
	}

	rows, err := s.revenueRepo.ListByDay(ctx, day)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	return rows, nil
}
