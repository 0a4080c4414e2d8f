package settlement

import (
	"context"
	"fmt"

	"fx-liquidity-engine/config"
	"fx-liquidity-engine/internal/core/domain"
	"fx-liquidity-engine/pkg/apperror"
	"fx-liquidity-engine/pkg/backoff"

	"github.com/rs/zerolog"
)

// MockProvider simulates settlement latency per destination currency and
// always succeeds for currencies it knows.
type MockProvider struct {
	cfg config.SettlementConfig
	log zerolog.Logger
}

// NewMockProvider creates a MockProvider.
func NewMockProvider(cfg config.SettlementConfig, log zerolog.Logger) *MockProvider {
	return &MockProvider{cfg: cfg, log: log}
}

// Name returns the provider identifier.
func (p *MockProvider) Name() string { return ProviderMock }

// Process waits settlement_time[currency] seconds, or until ctx is done.
func (p *MockProvider) Process(ctx context.Context, req domain.SettlementRequest) (*domain.SettlementResult, error) {
	delay, ok := p.cfg.Delay(string(req.Currency))
	if !ok {
		return nil, apperror.ErrCannotSettleCurrency()
	}

	if err := backoff.SleepWithContext(ctx, delay); err != nil {
		return nil, fmt.Errorf("mock settlement interrupted: %w", err)
	}

	p.log.Debug().
		Str("transfer_id", req.TransferID.String()).
		Str("currency", string(req.Currency)).
		Str("amount", req.Amount.String()).
		Dur("delay", delay).
		Msg("mock settlement processed")

	return &domain.SettlementResult{
		Successful: true,
		Message:    fmt.Sprintf("Processed request for %s with a delay of %d seconds", req.Currency, int(delay.Seconds())),
	}, nil
}
