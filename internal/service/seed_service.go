package service

import (
	"context"
	"fmt"
	"os"
	"time"

	"fx-liquidity-engine/internal/core/domain"
	"fx-liquidity-engine/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// SeedFile is the on-disk currency seed. JSON files parse too.
type SeedFile struct {
	Currencies []SeedCurrency `yaml:"currencies" json:"currencies"`
}

// SeedCurrency is one pool with its opening balance.
type SeedCurrency struct {
	Name           string `yaml:"name" json:"name"`
	InitialBalance string `yaml:"initialBalance" json:"initialBalance"`
}

// SeedService creates missing currency pools at start-up.
type SeedService struct {
	currencyRepo ports.CurrencyRepository
	log          zerolog.Logger
}

// NewSeedService creates a new SeedService.
func NewSeedService(currencyRepo ports.CurrencyRepository, log zerolog.Logger) *SeedService {
	return &SeedService{currencyRepo: currencyRepo, log: log}
}

// LoadSeedFile reads and parses a seed file.
func LoadSeedFile(path string) (*SeedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return &seed, nil
}

// Apply inserts every seed currency that does not exist yet. Existing pools
// are never touched. Returns the number of pools created.
func (s *SeedService) Apply(ctx context.Context, seed *SeedFile) (int, error) {
	now := time.Now().UTC()
	created := 0

	for _, sc := range seed.Currencies {
		name, ok := domain.ParseCurrency(sc.Name)
		if !ok {
			return created, fmt.Errorf("seed: unsupported currency %q", sc.Name)
		}
		balance, err := decimal.NewFromString(sc.InitialBalance)
		if err != nil {
			return created, fmt.Errorf("seed: invalid initial balance for %s: %w", name, err)
		}
		if balance.IsNegative() {
			return created, fmt.Errorf("seed: negative initial balance for %s", name)
		}

		inserted, err := s.currencyRepo.Seed(ctx, &domain.Currency{
			ID:                 uuid.New(),
			Name:               name,
			AvailableLiquidity: balance,
			LedgerLiquidity:    balance,
			LastRebalance:      now,
			Version:            1,
			CreatedAt:          now,
			UpdatedAt:          now,
		})
		if err != nil {
			return created, fmt.Errorf("seed %s: %w", name, err)
		}
		if inserted {
			created++
			s.log.Info().Str("currency", string(name)).Str("balance", balance.String()).Msg("currency pool seeded")
		}
	}

	return created, nil
}

// ApplyFile loads path and applies it.
func (s *SeedService) ApplyFile(ctx context.Context, path string) (int, error) {
	seed, err := LoadSeedFile(path)
	if err != nil {
		return 0, err
	}
	return s.Apply(ctx, seed)
}
