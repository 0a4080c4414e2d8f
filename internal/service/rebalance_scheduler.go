package service

import (
	"context"
	"fmt"
	"time"

	"fx-liquidity-engine/config"
	"fx-liquidity-engine/internal/core/domain"
	"fx-liquidity-engine/internal/core/ports"
	"fx-liquidity-engine/pkg/apperror"

	"github.com/rs/zerolog"
)

const rebalanceLockName = "rebalance"

// RebalanceScheduler runs the rebalancer on a ticker. Each pass takes a
// shared Redis lock so only one instance rebalances at a time.
type RebalanceScheduler struct {
	svc   ports.RebalanceService
	locks ports.LockStore
	cfg   config.RebalanceConfig
	log   zerolog.Logger
	now   func() time.Time
}

// NewRebalanceScheduler creates a new RebalanceScheduler.
func NewRebalanceScheduler(svc ports.RebalanceService, locks ports.LockStore, cfg config.RebalanceConfig, log zerolog.Logger) *RebalanceScheduler {
	return &RebalanceScheduler{
		svc:   svc,
		locks: locks,
		cfg:   cfg,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// RunOnce performs one lock-guarded pass.
func (s *RebalanceScheduler) RunOnce(ctx context.Context) (*domain.RebalanceReport, error) {
	acquired, err := s.locks.TryLock(ctx, rebalanceLockName, s.cfg.LockTTL)
	if err != nil {
		return nil, apperror.ErrRebalanceFailed(fmt.Errorf("acquire lock: %w", err))
	}
	if !acquired {
		return nil, apperror.ErrRebalanceInProgress()
	}
	defer func() {
		if err := s.locks.Unlock(context.WithoutCancel(ctx), rebalanceLockName); err != nil {
			s.log.Warn().Err(err).Msg("failed to release rebalance lock")
		}
	}()

	return s.svc.Rebalance(ctx, s.now())
}

// Run ticks until ctx is cancelled.
func (s *RebalanceScheduler) Run(ctx context.Context) error {
	if !s.cfg.Enabled || s.cfg.Interval <= 0 {
		s.log.Info().Msg("rebalance scheduler disabled")
		return nil
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.cfg.Interval).Msg("rebalance scheduler started")

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("rebalance scheduler stopped")
			return nil
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				if apperror.HasCode(err, "SYS_004") {
					s.log.Debug().Msg("rebalance skipped, another instance holds the lock")
					continue
				}
				s.log.Error().Err(err).Msg("scheduled rebalance failed")
			}
		}
	}
}
