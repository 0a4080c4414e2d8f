package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fx-liquidity-engine/internal/core/domain"
	"fx-liquidity-engine/internal/core/ports"
	"fx-liquidity-engine/internal/core/ports/mocks"
	"fx-liquidity-engine/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type routerMocks struct {
	transferSvc  *mocks.MockTransferService
	rateSvc      *mocks.MockRateService
	quoteSvc     *mocks.MockQuoteService
	reportingSvc *mocks.MockReportingService
	rebalancer   *mocks.MockRebalanceRunner
	authSvc      *mocks.MockAuthService
	tokenSvc     *mocks.MockTokenService
	auditSvc     *mocks.MockAuditService
}

func setupRouter(t *testing.T) (*gin.Engine, routerMocks) {
	ctrl := gomock.NewController(t)
	m := routerMocks{
		transferSvc:  mocks.NewMockTransferService(ctrl),
		rateSvc:      mocks.NewMockRateService(ctrl),
		quoteSvc:     mocks.NewMockQuoteService(ctrl),
		reportingSvc: mocks.NewMockReportingService(ctrl),
		rebalancer:   mocks.NewMockRebalanceRunner(ctrl),
		authSvc:      mocks.NewMockAuthService(ctrl),
		tokenSvc:     mocks.NewMockTokenService(ctrl),
		auditSvc:     mocks.NewMockAuditService(ctrl),
	}
	r := SetupRouter(RouterDeps{
		TransferSvc:  m.transferSvc,
		RateSvc:      m.rateSvc,
		QuoteSvc:     m.quoteSvc,
		ReportingSvc: m.reportingSvc,
		Rebalancer:   m.rebalancer,
		AuthSvc:      m.authSvc,
		TokenSvc:     m.tokenSvc,
		AuditSvc:     m.auditSvc,
		OpenAPISpec:  []byte("openapi: 3.0.3\n"),
		Mode:         gin.TestMode,
		Logger:       zerolog.Nop(),
	})
	return r, m
}

func (m routerMocks) operatorToken() {
	m.tokenSvc.EXPECT().Validate("op-token").
		Return(&ports.TokenClaims{Subject: "operator", Role: ports.RoleOperator}, nil).AnyTimes()
}

func doJSON(r *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			_ = json.NewEncoder(&buf).Encode(b)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, ok := resp["data"].(map[string]interface{})
	require.True(t, ok, "body: %s", w.Body.String())
	return data
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	code, _ := resp["error_code"].(string)
	return code
}

var bearer = map[string]string{"Authorization": "Bearer op-token"}

// --- Transfers ---

func TestInitiateTransfer_Success(t *testing.T) {
	r, m := setupRouter(t)
	id := uuid.New()

	m.transferSvc.EXPECT().Initiate(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req ports.TransferRequest) (*domain.Transfer, error) {
			assert.Equal(t, "idem-001", req.IdempotenceKey)
			assert.Equal(t, "ref-001", req.Reference)
			assert.Equal(t, "usd", req.SourceCurrency)
			assert.True(t, req.SourceAmount.Equal(decimal.NewFromInt(100)))
			assert.Equal(t, "invoice &lt;42&gt;", req.Narration)
			return &domain.Transfer{
				ID:                  id,
				SourceCurrency:      domain.USD,
				SourceAmount:        req.SourceAmount,
				DestinationCurrency: domain.EUR,
				DestinationAmount:   decimal.RequireFromString("107.8"),
				Reference:           req.Reference,
				Status:              domain.TransferStatusInitiated,
				StatusDescription:   "Transfer Initiated",
				InitiatedAt:         time.Now().UTC(),
			}, nil
		})

	w := doJSON(r, http.MethodPost, "/api/v1/transfers", map[string]interface{}{
		"narration":            "invoice <42>",
		"source":               "acct-src",
		"source_currency":      "usd",
		"source_amount":        "100",
		"destination":          "acct-dst",
		"destination_currency": "EUR",
		"reference":            "ref-001",
	}, map[string]string{"Idempotency-Key": "idem-001"})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := decodeData(t, w)
	assert.Equal(t, id.String(), data["id"])
	assert.Equal(t, "Initiated", data["status"])
	assert.Equal(t, "107.8", data["destination_amount"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestInitiateTransfer_ValidationError(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(r, http.MethodPost, "/api/v1/transfers", map[string]interface{}{
		"source":               "acct-src",
		"source_currency":      "USD",
		"source_amount":        "100",
		"destination":          "acct-dst",
		"destination_currency": "NGN",
		"reference":            "ref-001",
	}, map[string]string{"Idempotency-Key": "idem-001"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VAL_001", errorCode(t, w))
}

func TestInitiateTransfer_Duplicate(t *testing.T) {
	r, m := setupRouter(t)
	m.transferSvc.EXPECT().Initiate(gomock.Any(), gomock.Any()).Return(nil, apperror.ErrDuplicateTransfer())

	w := doJSON(r, http.MethodPost, "/api/v1/transfers", map[string]interface{}{
		"source":               "a",
		"source_currency":      "USD",
		"source_amount":        1,
		"destination":          "b",
		"destination_currency": "EUR",
		"reference":            "ref-001",
	}, map[string]string{"Idempotency-Key": "idem-001"})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "TRF_001", errorCode(t, w))
}

func TestInitiateTransfer_InsufficientLiquidity(t *testing.T) {
	r, m := setupRouter(t)
	m.transferSvc.EXPECT().Initiate(gomock.Any(), gomock.Any()).Return(nil, apperror.ErrInsufficientLiquidity())

	w := doJSON(r, http.MethodPost, "/api/v1/transfers", map[string]interface{}{
		"source":               "a",
		"source_currency":      "USD",
		"source_amount":        "1000000000",
		"destination":          "b",
		"destination_currency": "JPY",
		"reference":            "ref-002",
	}, map[string]string{"Idempotency-Key": "idem-002"})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "TRF_003", errorCode(t, w))
}

func TestGetTransfer(t *testing.T) {
	r, m := setupRouter(t)
	id := uuid.New()
	completed := time.Now().UTC()

	m.transferSvc.EXPECT().Get(gomock.Any(), id).Return(&domain.Transfer{
		ID:          id,
		Status:      domain.TransferStatusSuccessful,
		CompletedAt: &completed,
	}, nil)

	w := doJSON(r, http.MethodGet, "/api/v1/transfers/"+id.String(), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "Successful", data["status"])
	assert.NotEmpty(t, data["completed_at"])
}

func TestGetTransfer_BadID(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(r, http.MethodGet, "/api/v1/transfers/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetTransfer_NotFound(t *testing.T) {
	r, m := setupRouter(t)
	id := uuid.New()
	m.transferSvc.EXPECT().Get(gomock.Any(), id).Return(nil, apperror.ErrNotFound("Transfer"))

	w := doJSON(r, http.MethodGet, "/api/v1/transfers/"+id.String(), nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "TRF_002", errorCode(t, w))
}

// --- Rates & quotes ---

func TestUpdateRate_RequiresToken(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(r, http.MethodPost, "/api/v1/rates", map[string]interface{}{"pair": "USD/EUR", "rate": "0.9"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "AUTH_003", errorCode(t, w))
}

func TestUpdateRate_Success(t *testing.T) {
	r, m := setupRouter(t)
	m.operatorToken()
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	m.rateSvc.EXPECT().UpdateRate(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req ports.RateUpdateRequest) (*domain.Rate, error) {
			assert.Equal(t, "USD/EUR", req.Pair)
			assert.True(t, req.Timestamp.Equal(ts))
			return &domain.Rate{
				SourceCurrency: domain.USD, DestinationCurrency: domain.EUR,
				Rate: req.Rate, Timestamp: req.Timestamp,
			}, nil
		})
	done := make(chan struct{})
	m.auditSvc.EXPECT().Log(gomock.Any(), gomock.Any()).Do(func(_ context.Context, entry *domain.AuditLog) {
		assert.Equal(t, domain.AuditActionRateUpdate, entry.Action)
		assert.Equal(t, "operator", entry.Actor)
		assert.Equal(t, "USD/EUR", entry.ResourceID)
		close(done)
	})

	w := doJSON(r, http.MethodPost, "/api/v1/rates", map[string]interface{}{
		"pair": "USD/EUR", "rate": "0.92", "timestamp": ts.Format(time.RFC3339),
	}, bearer)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := decodeData(t, w)
	assert.Equal(t, "USD/EUR", data["pair"])
	assert.Equal(t, "0.92", data["rate"])
	<-done
}

func TestUpdateRate_UnsupportedPair(t *testing.T) {
	r, m := setupRouter(t)
	m.operatorToken()

	w := doJSON(r, http.MethodPost, "/api/v1/rates", map[string]interface{}{"pair": "USD/NGN", "rate": "1"}, bearer)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "FX_001", errorCode(t, w))
}

func TestUpdateRate_MalformedBody(t *testing.T) {
	r, m := setupRouter(t)
	m.operatorToken()

	w := doJSON(r, http.MethodPost, "/api/v1/rates", "{not json", bearer)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VAL_001", errorCode(t, w))
}

func TestLatestRate(t *testing.T) {
	r, m := setupRouter(t)
	m.rateSvc.EXPECT().Latest(gomock.Any(), "EUR/GBP").Return(&domain.Rate{
		SourceCurrency: domain.EUR, DestinationCurrency: domain.GBP,
		Rate: decimal.RequireFromString("0.85"), Timestamp: time.Now().UTC(),
	}, nil)

	w := doJSON(r, http.MethodGet, "/api/v1/rates/latest?pair=EUR/GBP", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0.85", decodeData(t, w)["rate"])
}

func TestLatestRate_MissingPair(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(r, http.MethodGet, "/api/v1/rates/latest", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQuote(t *testing.T) {
	r, m := setupRouter(t)
	m.quoteSvc.EXPECT().Resolve(gomock.Any(), domain.USD, domain.EUR, decimalMatcher{decimal.NewFromInt(100)}, gomock.Any()).
		Return(&domain.Quote{
			SourceCurrency:      domain.USD,
			DestinationCurrency: domain.EUR,
			SourceAmount:        decimal.NewFromInt(100),
			DestinationAmount:   decimal.RequireFromString("107.8"),
			MarginAmount:        decimal.RequireFromString("2.2"),
		}, nil)

	w := doJSON(r, http.MethodGet, "/api/v1/quotes?source_currency=usd&destination_currency=EUR&amount=100", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decodeData(t, w)
	assert.Equal(t, "107.8", data["destination_amount"])
	assert.Equal(t, "2.2", data["margin_amount"])
}

func TestQuote_BadAmount(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(r, http.MethodGet, "/api/v1/quotes?source_currency=USD&destination_currency=EUR&amount=abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VAL_001", errorCode(t, w))
}

func TestQuote_RateMissing(t *testing.T) {
	r, m := setupRouter(t)
	m.quoteSvc.EXPECT().Resolve(gomock.Any(), domain.USD, domain.AUD, gomock.Any(), gomock.Any()).
		Return(nil, apperror.ErrRateNotAvailable())

	w := doJSON(r, http.MethodGet, "/api/v1/quotes?source_currency=USD&destination_currency=AUD&amount=5", nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "FX_002", errorCode(t, w))
}

// --- Operator reports & rebalance ---

func TestCurrencies(t *testing.T) {
	r, m := setupRouter(t)
	m.operatorToken()
	m.reportingSvc.EXPECT().Liquidity(gomock.Any()).Return([]domain.Currency{
		{Name: domain.EUR, AvailableLiquidity: decimal.NewFromInt(900), LedgerLiquidity: decimal.NewFromInt(1000)},
	}, nil)

	w := doJSON(r, http.MethodGet, "/api/v1/currencies", nil, bearer)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "EUR", resp.Data[0]["name"])
	assert.Equal(t, "100", resp.Data[0]["in_flight"])
}

func TestRevenue(t *testing.T) {
	r, m := setupRouter(t)
	m.operatorToken()
	m.reportingSvc.EXPECT().DailyRevenue(gomock.Any(), "2026-03-01").Return([]domain.DailyRevenue{
		{Day: "2026-03-01", Currency: domain.EUR, Revenue: decimal.RequireFromString("2.2")},
	}, nil)

	w := doJSON(r, http.MethodGet, "/api/v1/revenue?day=2026-03-01", nil, bearer)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "2026-03-01", data["day"])
	items := data["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "2.2", items[0].(map[string]interface{})["revenue"])
}

func TestRevenue_InvalidDay(t *testing.T) {
	r, m := setupRouter(t)
	m.operatorToken()
	m.reportingSvc.EXPECT().DailyRevenue(gomock.Any(), "March").Return(nil, apperror.Validation("invalid day"))

	w := doJSON(r, http.MethodGet, "/api/v1/revenue?day=March", nil, bearer)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRebalance(t *testing.T) {
	r, m := setupRouter(t)
	m.operatorToken()
	m.rebalancer.EXPECT().RunOnce(gomock.Any()).Return(&domain.RebalanceReport{
		RunAt: time.Now().UTC(),
		Scores: []domain.RebalanceScore{
			{Currency: domain.EUR, Score: decimal.NewFromInt(60), Applied: true},
		},
	}, nil)
	m.auditSvc.EXPECT().Log(gomock.Any(), gomock.Any())

	w := doJSON(r, http.MethodPost, "/api/v1/admin/rebalance", nil, bearer)
	require.Equal(t, http.StatusOK, w.Code)
	scores := decodeData(t, w)["scores"].([]interface{})
	require.Len(t, scores, 1)
	assert.Equal(t, true, scores[0].(map[string]interface{})["applied"])
}

func TestRebalance_InProgress(t *testing.T) {
	r, m := setupRouter(t)
	m.operatorToken()
	m.rebalancer.EXPECT().RunOnce(gomock.Any()).Return(nil, apperror.ErrRebalanceInProgress())

	w := doJSON(r, http.MethodPost, "/api/v1/admin/rebalance", nil, bearer)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "SYS_004", errorCode(t, w))
}

// --- Auth ---

func TestIssueToken_Success(t *testing.T) {
	r, m := setupRouter(t)
	expiry := time.Now().Add(time.Hour)
	m.authSvc.EXPECT().IssueToken(gomock.Any(), "operator", "S3cret!").Return("jwt", expiry, nil)
	m.auditSvc.EXPECT().Log(gomock.Any(), gomock.Any()).Do(func(_ context.Context, entry *domain.AuditLog) {
		assert.Equal(t, domain.AuditActionIssueToken, entry.Action)
		assert.Equal(t, "operator", entry.Actor)
	})

	w := doJSON(r, http.MethodPost, "/api/v1/auth/token", map[string]string{"username": "operator", "password": "S3cret!"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "jwt", data["token"])
	assert.Equal(t, float64(expiry.Unix()), data["expiry"])
}

func TestIssueToken_InvalidCredentials(t *testing.T) {
	r, m := setupRouter(t)
	m.authSvc.EXPECT().IssueToken(gomock.Any(), "operator", "nope").Return("", time.Time{}, apperror.ErrInvalidCredentials())

	w := doJSON(r, http.MethodPost, "/api/v1/auth/token", map[string]string{"username": "operator", "password": "nope"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "AUTH_001", errorCode(t, w))
}

func TestIssueToken_MissingFields(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(r, http.MethodPost, "/api/v1/auth/token", map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Health & docs ---

type stubChecker struct {
	name string
	err  error
}

func (s stubChecker) Ping(context.Context) error { return s.err }
func (s stubChecker) Name() string               { return s.name }

func TestHealthCheck(t *testing.T) {
	r := gin.New()
	r.GET("/health", HealthCheck(stubChecker{name: "postgresql"}, stubChecker{name: "redis"}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
}

func TestHealthCheck_Degraded(t *testing.T) {
	r := gin.New()
	r.GET("/health", HealthCheck(stubChecker{name: "postgresql"}, stubChecker{name: "redis", err: errors.New("connection refused")}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestSwagger(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(r, http.MethodGet, "/swagger", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "swagger-ui")

	w = doJSON(r, http.MethodGet, "/swagger/spec", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "openapi")
}

func TestSwaggerSpec_NotLoaded(t *testing.T) {
	r := gin.New()
	r.GET("/spec", NewDocsHandler(nil).Spec)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/spec", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// decimalMatcher matches decimals by value regardless of exponent.
type decimalMatcher struct{ want decimal.Decimal }

func (m decimalMatcher) Matches(x interface{}) bool {
	d, ok := x.(decimal.Decimal)
	return ok && d.Equal(m.want)
}

func (m decimalMatcher) String() string { return "is decimal " + m.want.String() }
