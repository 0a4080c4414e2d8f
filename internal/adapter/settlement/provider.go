// Package settlement holds the SettlementProvider implementations and the
// start-up registry that picks one of them from configuration.
package settlement

import (
	"net/http"
	"strings"

	"fx-liquidity-engine/config"
	"fx-liquidity-engine/internal/core/ports"
	"fx-liquidity-engine/pkg/apperror"

	"github.com/rs/zerolog"
)

// Provider identifiers accepted in settlement.provider.
const (
	ProviderMock = "MOCK"
	ProviderHTTP = "HTTP"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewProvider resolves the configured provider once. An empty or unknown
// identifier is a start-up error.
func NewProvider(cfg config.SettlementConfig, signer ports.RequestSigner, client HTTPClient, log zerolog.Logger) (ports.SettlementProvider, error) {
	id := strings.ToUpper(strings.TrimSpace(cfg.Provider))

	switch id {
	case "":
		return nil, apperror.ErrProviderNotConfigured()
	case ProviderMock:
		return NewMockProvider(cfg, log), nil
	case ProviderHTTP:
		return NewHTTPProvider(cfg.HTTP, signer, client, log)
	default:
		return nil, apperror.ErrInvalidProvider(cfg.Provider)
	}
}
