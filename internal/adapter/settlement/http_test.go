package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"fx-liquidity-engine/config"
	"fx-liquidity-engine/internal/core/domain"
	"fx-liquidity-engine/internal/core/ports"
	"fx-liquidity-engine/internal/core/ports/mocks"
	"fx-liquidity-engine/internal/service"
	"fx-liquidity-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const testSecret = "settlement-hmac-secret"

func instruction(currency domain.CurrencyCode, amount decimal.Decimal) domain.SettlementRequest {
	return domain.SettlementRequest{TransferID: uuid.New(), Currency: currency, Amount: amount}
}

func newTestHTTPProvider(t *testing.T, url string) *HTTPProvider {
	t.Helper()
	p, err := NewHTTPProvider(config.HTTPSettlementConfig{URL: url, Secret: testSecret},
		service.NewHMACRequestSigner(), nil, zerolog.Nop())
	require.NoError(t, err)
	return p
}

func TestHTTPProvider_Process_SignedRequest(t *testing.T) {
	sig := service.NewHMACRequestSigner()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ts, err := strconv.ParseInt(r.Header.Get("X-Timestamp"), 10, 64)
		require.NoError(t, err)

		msg := ports.SignedMessage{
			Method:    r.Method,
			Path:      r.URL.Path,
			Timestamp: ts,
			Nonce:     r.Header.Get("X-Nonce"),
			Body:      body,
		}
		if !sig.Verify(testSecret, msg, r.Header.Get("X-Signature")) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var req settlementRequest
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "EUR", req.Currency)
		assert.Equal(t, "107.8", req.Amount.String())

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"successful":true,"message":"settled"}`))
	}))
	defer srv.Close()

	p := newTestHTTPProvider(t, srv.URL+"/v1/settle")

	res, err := p.Process(context.Background(), instruction(domain.EUR, decimal.RequireFromString("107.8")))
	require.NoError(t, err)
	assert.True(t, res.Successful)
	assert.Equal(t, "settled", res.Message)
}

func TestHTTPProvider_Process_DeclinedSettlement(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"successful":false,"message":"beneficiary bank offline"}`))
	}))
	defer srv.Close()

	res, err := newTestHTTPProvider(t, srv.URL).Process(context.Background(), instruction(domain.USD, decimal.NewFromInt(5)))
	require.NoError(t, err)
	assert.False(t, res.Successful)
	assert.Equal(t, "beneficiary bank offline", res.Message)
}

func TestHTTPProvider_Process_StatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		permanent bool
	}{
		{"bad request is permanent", http.StatusBadRequest, true},
		{"unprocessable is permanent", http.StatusUnprocessableEntity, true},
		{"server error is retryable", http.StatusInternalServerError, false},
		{"unavailable is retryable", http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			res, err := newTestHTTPProvider(t, srv.URL).Process(context.Background(), instruction(domain.GBP, decimal.NewFromInt(1)))
			assert.Nil(t, res)
			require.Error(t, err)
			assert.Equal(t, tt.permanent, apperror.IsClientError(err))
		})
	}
}

type failingClient struct{}

func (failingClient) Do(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection reset by peer")
}

func TestHTTPProvider_Process_TransportErrorIsRetryable(t *testing.T) {
	p, err := NewHTTPProvider(config.HTTPSettlementConfig{URL: "https://settle.example.com", Secret: testSecret},
		service.NewHMACRequestSigner(), failingClient{}, zerolog.Nop())
	require.NoError(t, err)

	res, err := p.Process(context.Background(), instruction(domain.AUD, decimal.NewFromInt(1)))
	assert.Nil(t, res)
	assert.ErrorContains(t, err, "connection reset")
	assert.False(t, apperror.IsClientError(err))
}

func TestHTTPProvider_Process_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not-json`))
	}))
	defer srv.Close()

	_, err := newTestHTTPProvider(t, srv.URL).Process(context.Background(), instruction(domain.JPY, decimal.NewFromInt(1)))
	assert.ErrorContains(t, err, "decode settlement response")
}

func TestHTTPProvider_Process_SignsEscapedPath(t *testing.T) {
	ctrl := gomock.NewController(t)
	signer := mocks.NewMockRequestSigner(ctrl)

	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		assert.NotEmpty(t, r.Header.Get("X-Nonce"))
		_, _ = w.Write([]byte(`{"successful":true}`))
	}))
	defer srv.Close()

	signer.EXPECT().Sign(testSecret, gomock.Any()).DoAndReturn(func(_ string, msg ports.SignedMessage) string {
		assert.Equal(t, http.MethodPost, msg.Method)
		assert.Equal(t, "/settle/eur%20desk", msg.Path)
		assert.JSONEq(t, `{"currency":"EUR","amount":"12.5"}`, string(msg.Body))
		return "signed"
	})

	p, err := NewHTTPProvider(config.HTTPSettlementConfig{URL: srv.URL + "/settle/eur%20desk", Secret: testSecret},
		signer, nil, zerolog.Nop())
	require.NoError(t, err)

	_, err = p.Process(context.Background(), instruction(domain.EUR, decimal.RequireFromString("12.5")))
	require.NoError(t, err)
	assert.Equal(t, "signed", gotSig)
}

func TestHTTPProvider_Process_RedeliveryReusesIdempotencyKey(t *testing.T) {
	var keys, nonces []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		nonces = append(nonces, r.Header.Get("X-Nonce"))
		if len(keys) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"successful":true,"message":"settled"}`))
	}))
	defer srv.Close()

	p := newTestHTTPProvider(t, srv.URL)
	instr := instruction(domain.EUR, decimal.RequireFromString("107.8"))

	_, err := p.Process(context.Background(), instr)
	require.Error(t, err)
	assert.False(t, apperror.IsClientError(err))

	res, err := p.Process(context.Background(), instr)
	require.NoError(t, err)
	assert.True(t, res.Successful)

	require.Len(t, keys, 2)
	assert.Equal(t, instr.TransferID.String(), keys[0])
	assert.Equal(t, keys[0], keys[1])
	assert.NotEqual(t, nonces[0], nonces[1])
}
