package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"fx-liquidity-engine/config"
	"fx-liquidity-engine/internal/core/domain"
	"fx-liquidity-engine/internal/core/ports/mocks"
	"fx-liquidity-engine/pkg/apperror"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		MarginPercentage:        map[string]float64{"EUR": 2, "USD": 1, "JPY": 0, "AUD": -1},
		TransactionVolumeWeight: 0.6,
		HistoricalDemandWeight:  0.4,
		HistoricalCutOffDays:    30,
	}
}

func TestQuoteService_Resolve(t *testing.T) {
	ctrl := gomock.NewController(t)
	rateRepo := mocks.NewMockRateRepository(ctrl)
	svc := NewQuoteService(rateRepo, testEngineConfig())

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rateTs := at.Add(-time.Minute)
	rateRepo.EXPECT().LatestAt(gomock.Any(), domain.USD, domain.EUR, at).Return(&domain.Rate{
		SourceCurrency:      domain.USD,
		DestinationCurrency: domain.EUR,
		Rate:                decimal.RequireFromString("1.1"),
		Timestamp:           rateTs,
	}, nil)

	q, err := svc.Resolve(context.Background(), domain.USD, domain.EUR, decimal.NewFromInt(100), at)
	require.NoError(t, err)

	assert.Equal(t, "1.1", q.AppliedRate.String())
	assert.Equal(t, "110", q.GrossAmount.String())
	assert.Equal(t, "2", q.MarginPercentage.String())
	assert.Equal(t, "2.2", q.MarginAmount.String())
	assert.Equal(t, "107.8", q.DestinationAmount.String())
	assert.Equal(t, rateTs, q.RateTimestamp)
}

func TestQuoteService_Resolve_RoundsAmounts(t *testing.T) {
	ctrl := gomock.NewController(t)
	rateRepo := mocks.NewMockRateRepository(ctrl)
	engine := testEngineConfig()
	engine.MarginPercentage["GBP"] = 1.5
	svc := NewQuoteService(rateRepo, engine)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rateRepo.EXPECT().LatestAt(gomock.Any(), domain.USD, domain.GBP, at).Return(&domain.Rate{
		Rate:      decimal.RequireFromString("1.234567891"),
		Timestamp: at,
	}, nil)

	q, err := svc.Resolve(context.Background(), domain.USD, domain.GBP, decimal.RequireFromString("33.3333333334"), at)
	require.NoError(t, err)

	assert.Equal(t, "33.333333333", q.SourceAmount.String())
	assert.Equal(t, "41.152263033", q.GrossAmount.String())
	assert.Equal(t, "0.617283945", q.MarginAmount.String())
	assert.Equal(t, "40.534979088", q.DestinationAmount.String())
	assert.True(t, q.DestinationAmount.Add(q.MarginAmount).Equal(q.GrossAmount))
}

func TestQuoteService_Resolve_Errors(t *testing.T) {
	at := time.Now().UTC()
	eurRate := &domain.Rate{Rate: decimal.RequireFromString("1.1"), Timestamp: at}

	tests := []struct {
		name   string
		src    domain.CurrencyCode
		dst    domain.CurrencyCode
		amount decimal.Decimal
		setup  func(r *mocks.MockRateRepository)
		code   string
	}{
		{
			name: "unsupported currency", src: "NGN", dst: domain.EUR,
			amount: decimal.NewFromInt(1), setup: func(*mocks.MockRateRepository) {}, code: "FX_001",
		},
		{
			name: "non-positive amount", src: domain.USD, dst: domain.EUR,
			amount: decimal.Zero, setup: func(*mocks.MockRateRepository) {}, code: "VAL_001",
		},
		{
			name: "no rate", src: domain.USD, dst: domain.EUR, amount: decimal.NewFromInt(1),
			setup: func(r *mocks.MockRateRepository) {
				r.EXPECT().LatestAt(gomock.Any(), domain.USD, domain.EUR, at).Return(nil, nil)
			},
			code: "FX_002",
		},
		{
			name: "repo failure", src: domain.USD, dst: domain.EUR, amount: decimal.NewFromInt(1),
			setup: func(r *mocks.MockRateRepository) {
				r.EXPECT().LatestAt(gomock.Any(), domain.USD, domain.EUR, at).Return(nil, errors.New("timeout"))
			},
			code: "SYS_001",
		},
		{
			name: "margin missing", src: domain.USD, dst: domain.GBP, amount: decimal.NewFromInt(1),
			setup: func(r *mocks.MockRateRepository) {
				r.EXPECT().LatestAt(gomock.Any(), domain.USD, domain.GBP, at).Return(eurRate, nil)
			},
			code: "FX_003",
		},
		{
			name: "margin zero", src: domain.USD, dst: domain.JPY, amount: decimal.NewFromInt(1),
			setup: func(r *mocks.MockRateRepository) {
				r.EXPECT().LatestAt(gomock.Any(), domain.USD, domain.JPY, at).Return(eurRate, nil)
			},
			code: "FX_003",
		},
		{
			name: "margin negative", src: domain.USD, dst: domain.AUD, amount: decimal.NewFromInt(1),
			setup: func(r *mocks.MockRateRepository) {
				r.EXPECT().LatestAt(gomock.Any(), domain.USD, domain.AUD, at).Return(eurRate, nil)
			},
			code: "FX_003",
		},
		{
			name: "amount below storage scale", src: domain.USD, dst: domain.EUR,
			amount: decimal.RequireFromString("0.0000000004"), setup: func(*mocks.MockRateRepository) {}, code: "VAL_001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			rateRepo := mocks.NewMockRateRepository(ctrl)
			tt.setup(rateRepo)
			svc := NewQuoteService(rateRepo, testEngineConfig())

			_, err := svc.Resolve(context.Background(), tt.src, tt.dst, tt.amount, at)
			require.Error(t, err)
			assert.True(t, apperror.HasCode(err, tt.code), "got %v", err)
		})
	}
}
