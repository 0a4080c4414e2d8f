package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"fx-liquidity-engine/config"
	"fx-liquidity-engine/internal/core/domain"
	"fx-liquidity-engine/internal/core/ports"
	"fx-liquidity-engine/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const scorePlaces = 9

// RebalanceServiceImpl implements ports.RebalanceService.
//
// For each currency:
//
//	score = (volume*volumeWeight + demand*demandWeight) / (stdev or 1)
//
// where volume is successful settlement since the last rebalance, demand is
// everything requested within the cut-off window, and stdev is the population
// standard deviation of rates quoted into the currency since the last rebalance.
// A positive score is added to both balances.
type RebalanceServiceImpl struct {
	currencyRepo ports.CurrencyRepository
	transferRepo ports.TransferRepository
	rateRepo     ports.RateRepository
	transactor   ports.DBTransactor
	engine       config.EngineConfig
	log          zerolog.Logger
}

// NewRebalanceService creates a new RebalanceServiceImpl.
func NewRebalanceService(
	currencyRepo ports.CurrencyRepository,
	transferRepo ports.TransferRepository,
	rateRepo ports.RateRepository,
	transactor ports.DBTransactor,
	engine config.EngineConfig,
	log zerolog.Logger,
) *RebalanceServiceImpl {
	return &RebalanceServiceImpl{
		currencyRepo: currencyRepo,
		transferRepo: transferRepo,
		rateRepo:     rateRepo,
		transactor:   transactor,
		engine:       engine,
		log:          log,
	}
}

// Rebalance scores and tops up every currency in one transaction. Any
// failure rolls the whole pass back.
func (s *RebalanceServiceImpl) Rebalance(ctx context.Context, now time.Time) (*domain.RebalanceReport, error) {
	now = now.UTC()

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrRebalanceFailed(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	currencies, err := s.currencyRepo.ListForUpdate(ctx, dbTx)
	if err != nil {
		return nil, apperror.ErrRebalanceFailed(err)
	}

	report := &domain.RebalanceReport{RunAt: now, Scores: make([]domain.RebalanceScore, 0, len(currencies))}
	demandFrom := now.Add(-s.engine.HistoricalCutOff())

	for _, c := range currencies {
		volume, err := s.transferRepo.SumSuccessfulVolume(ctx, dbTx, c.Name, c.LastRebalance, now)
		if err != nil {
			return nil, apperror.ErrRebalanceFailed(err)
		}
		rates, err := s.rateRepo.ListForDestination(ctx, dbTx, c.Name, c.LastRebalance, now)
		if err != nil {
			return nil, apperror.ErrRebalanceFailed(err)
		}
		demand, err := s.transferRepo.SumDemand(ctx, dbTx, c.Name, demandFrom, now)
		if err != nil {
			return nil, apperror.ErrRebalanceFailed(err)
		}

		volatility := PopulationStdDev(rates)
		score := s.score(volume, demand, volatility)

		entry := domain.RebalanceScore{
			Currency:          c.Name,
			TransactionVolume: volume,
			HistoricalDemand:  demand,
			RateVolatility:    volatility,
			Score:             score,
			WindowStart:       c.LastRebalance,
		}

		if score.IsPositive() {
			if err := s.currencyRepo.AddLiquidity(ctx, dbTx, c.Name, score, now); err != nil {
				return nil, apperror.ErrRebalanceFailed(err)
			}
			entry.Applied = true
		}

		report.Scores = append(report.Scores, entry)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrRebalanceFailed(fmt.Errorf("commit tx: %w", err))
	}

	applied := 0
	for _, sc := range report.Scores {
		if sc.Applied {
			applied++
			s.log.Info().
				Str("currency", string(sc.Currency)).
				Str("score", sc.Score.String()).
				Str("volume", sc.TransactionVolume.String()).
				Str("demand", sc.HistoricalDemand.String()).
				Str("volatility", sc.RateVolatility.String()).
				Msg("liquidity rebalanced")
		}
	}
	s.log.Info().Int("currencies", len(report.Scores)).Int("applied", applied).Msg("rebalance complete")

	return report, nil
}

func (s *RebalanceServiceImpl) score(volume, demand, volatility decimal.Decimal) decimal.Decimal {
	if volume.IsZero() {
		return decimal.Zero
	}
	weighted := volume.Mul(s.engine.VolumeWeight()).Add(demand.Mul(s.engine.DemandWeight()))
	divisor := volatility
	if divisor.IsZero() {
		divisor = decimal.NewFromInt(1)
	}
	return weighted.Div(divisor).Round(scorePlaces)
}

// PopulationStdDev returns the population standard deviation of values,
// or zero for an empty slice.
func PopulationStdDev(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}

	n := decimal.NewFromInt(int64(len(values)))
	mean := decimal.Sum(decimal.Zero, values...).Div(n)

	variance := decimal.Zero
	for _, v := range values {
		d := v.Sub(mean)
		variance = variance.Add(d.Mul(d))
	}
	variance = variance.Div(n)
	if variance.IsZero() {
		return decimal.Zero
	}

	// decimal has no square root
	return decimal.NewFromFloat(math.Sqrt(variance.InexactFloat64())).Round(scorePlaces)
}
