package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"fx-liquidity-engine/config"
	"fx-liquidity-engine/internal/core/domain"
	"fx-liquidity-engine/internal/core/ports"
	"fx-liquidity-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	maxResponseBytes = 64 << 10

	// headerIdempotencyKey carries the transfer id; it is the same on every
	// redelivery of a settlement task.
	headerIdempotencyKey = "Idempotency-Key"
)

// settlementRequest is the JSON body POSTed to the settlement endpoint.
type settlementRequest struct {
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

// settlementResponse is the JSON body expected back.
type settlementResponse struct {
	Successful bool   `json:"successful"`
	Message    string `json:"message"`
}

// HTTPProvider settles through a remote endpoint. Every request carries
// X-Timestamp, X-Nonce and an X-Signature produced by the RequestSigner.
type HTTPProvider struct {
	endpoint string
	path     string
	secret   string
	timeout  time.Duration
	signer   ports.RequestSigner
	client   HTTPClient
	log      zerolog.Logger
}

// NewHTTPProvider validates cfg and creates an HTTPProvider. A nil client
// gets an *http.Client bounded by cfg.Timeout.
func NewHTTPProvider(cfg config.HTTPSettlementConfig, signer ports.RequestSigner, client HTTPClient, log zerolog.Logger) (*HTTPProvider, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, apperror.Wrap("SYS_002", "Invalid Processing Provider: HTTP settlement url", http.StatusInternalServerError,
			fmt.Errorf("settlement.http.url %q is not an absolute url", cfg.URL))
	}
	if cfg.Secret == "" {
		return nil, apperror.New("SYS_002", "Invalid Processing Provider: HTTP settlement secret is empty", http.StatusInternalServerError)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}

	return &HTTPProvider{
		endpoint: u.String(),
		path:     path,
		secret:   cfg.Secret,
		timeout:  timeout,
		signer:   signer,
		client:   client,
		log:      log,
	}, nil
}

// Name returns the provider identifier.
func (p *HTTPProvider) Name() string { return ProviderHTTP }

// Process POSTs one settlement instruction. 4xx answers come back as
// client-class AppErrors (not retried); transport errors and 5xx are plain errors.
func (p *HTTPProvider) Process(ctx context.Context, instr domain.SettlementRequest) (*domain.SettlementResult, error) {
	body, err := json.Marshal(settlementRequest{Currency: string(instr.Currency), Amount: instr.Amount})
	if err != nil {
		return nil, fmt.Errorf("marshal settlement request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build settlement request: %w", err)
	}

	ts := time.Now().Unix()
	nonce := uuid.NewString()
	signature := p.signer.Sign(p.secret, ports.SignedMessage{
		Method:    http.MethodPost,
		Path:      p.path,
		Timestamp: ts,
		Nonce:     nonce,
		Body:      body,
	})

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Nonce", nonce)
	req.Header.Set("X-Signature", signature)
	req.Header.Set(headerIdempotencyKey, instr.TransferID.String())

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("settlement request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read settlement response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("settlement endpoint returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		p.log.Warn().
			Int("status", resp.StatusCode).
			Str("transfer_id", instr.TransferID.String()).
			Str("currency", string(instr.Currency)).
			Msg("settlement endpoint rejected request")
		return nil, apperror.Wrap("TRF_004", "System cannot Settle Destination Currency", http.StatusUnprocessableEntity,
			fmt.Errorf("settlement endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(raw)))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("settlement endpoint returned unexpected %d", resp.StatusCode)
	}

	var out settlementResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode settlement response: %w", err)
	}

	return &domain.SettlementResult{Successful: out.Successful, Message: out.Message}, nil
}
