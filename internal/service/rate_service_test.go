package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"fx-liquidity-engine/internal/core/domain"
	"fx-liquidity-engine/internal/core/ports"
	"fx-liquidity-engine/internal/core/ports/mocks"
	"fx-liquidity-engine/pkg/apperror"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func setupRateService(t *testing.T) (*RateServiceImpl, *mocks.MockRateRepository) {
	ctrl := gomock.NewController(t)
	rateRepo := mocks.NewMockRateRepository(ctrl)
	svc := NewRateService(rateRepo, newTestLogger())
	svc.now = func() time.Time { return fixedNow }
	return svc, rateRepo
}

func TestRateService_UpdateRate(t *testing.T) {
	svc, rateRepo := setupRateService(t)
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.FixedZone("CET", 3600))

	rateRepo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, r *domain.Rate) error {
			assert.Equal(t, domain.USD, r.SourceCurrency)
			assert.Equal(t, domain.EUR, r.DestinationCurrency)
			assert.Equal(t, time.UTC, r.Timestamp.Location())
			return nil
		})

	rate, err := svc.UpdateRate(context.Background(), ports.RateUpdateRequest{
		Pair:      "usd/eur",
		Rate:      decimal.RequireFromString("0.92"),
		Timestamp: ts,
	})
	require.NoError(t, err)
	assert.Equal(t, "USD/EUR", rate.Pair())
	assert.True(t, rate.Timestamp.Equal(ts))
	assert.Equal(t, fixedNow, rate.CreatedAt)
}

func TestRateService_UpdateRate_DefaultsTimestampToNow(t *testing.T) {
	svc, rateRepo := setupRateService(t)
	rateRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

	rate, err := svc.UpdateRate(context.Background(), ports.RateUpdateRequest{
		Pair: "GBP/JPY",
		Rate: decimal.NewFromInt(190),
	})
	require.NoError(t, err)
	assert.Equal(t, fixedNow, rate.Timestamp)
}

func TestRateService_UpdateRate_Invalid(t *testing.T) {
	tests := []struct {
		name string
		req  ports.RateUpdateRequest
		code string
	}{
		{"malformed pair", ports.RateUpdateRequest{Pair: "USDEUR", Rate: decimal.NewFromInt(1)}, "FX_001"},
		{"unsupported pair", ports.RateUpdateRequest{Pair: "USD/NGN", Rate: decimal.NewFromInt(1)}, "FX_001"},
		{"zero rate", ports.RateUpdateRequest{Pair: "USD/EUR", Rate: decimal.Zero}, "VAL_001"},
		{"negative rate", ports.RateUpdateRequest{Pair: "USD/EUR", Rate: decimal.NewFromInt(-1)}, "VAL_001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := setupRateService(t)
			_, err := svc.UpdateRate(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, apperror.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestRateService_UpdateRate_Duplicate(t *testing.T) {
	svc, rateRepo := setupRateService(t)
	rateRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(apperror.ErrDuplicateRate())

	_, err := svc.UpdateRate(context.Background(), ports.RateUpdateRequest{
		Pair: "USD/EUR", Rate: decimal.NewFromInt(1), Timestamp: fixedNow,
	})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, "FX_004"))
}

func TestRateService_UpdateRate_RepoError(t *testing.T) {
	svc, rateRepo := setupRateService(t)
	rateRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("db down"))

	_, err := svc.UpdateRate(context.Background(), ports.RateUpdateRequest{
		Pair: "USD/EUR", Rate: decimal.NewFromInt(1),
	})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, "SYS_001"))
}

func TestRateService_Latest(t *testing.T) {
	svc, rateRepo := setupRateService(t)
	expected := &domain.Rate{SourceCurrency: domain.EUR, DestinationCurrency: domain.GBP, Rate: decimal.RequireFromString("0.85")}

	rateRepo.EXPECT().LatestAt(gomock.Any(), domain.EUR, domain.GBP, fixedNow).Return(expected, nil)

	rate, err := svc.Latest(context.Background(), "EUR/GBP")
	require.NoError(t, err)
	assert.Equal(t, expected, rate)
}

func TestRateService_Latest_NotAvailable(t *testing.T) {
	svc, rateRepo := setupRateService(t)
	rateRepo.EXPECT().LatestAt(gomock.Any(), domain.EUR, domain.GBP, fixedNow).Return(nil, nil)

	_, err := svc.Latest(context.Background(), "EUR/GBP")
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, "FX_002"))

	_, err = svc.Latest(context.Background(), "EUR")
	assert.True(t, apperror.HasCode(err, "FX_001"))
}
