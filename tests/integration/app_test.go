package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fx-liquidity-engine/config"
	httpHandler "fx-liquidity-engine/internal/adapter/http/handler"
	"fx-liquidity-engine/internal/adapter/settlement"
	redisStorage "fx-liquidity-engine/internal/adapter/storage/redis"
	"fx-liquidity-engine/internal/core/ports"
	"fx-liquidity-engine/internal/service"
	"fx-liquidity-engine/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const (
	operatorUser     = "operator"
	operatorPassword = "Op3rator-Pass!"
)

// testApp wires the real HTTP layer, services, settlement worker and Redis
// stores (on miniredis) over the in-memory repositories.
type testApp struct {
	server    *httptest.Server
	redis     *miniredis.Miniredis
	store     *memStore
	tasks     *memTaskRepo
	audits    *memAuditRepo
	locks     *redisStorage.LockStore
	worker    *service.SettlementWorker
	seeds     *service.SeedService
	rebalance *service.RebalanceScheduler
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		MarginPercentage: map[string]float64{
			"USD": 1, "EUR": 2, "GBP": 1.5, "JPY": 1, "AUD": 1,
		},
		TransactionVolumeWeight: 0.6,
		HistoricalDemandWeight:  0.4,
		HistoricalCutOffDays:    30,
	}
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	log := logger.New("error", false)
	store := newMemStore()

	currencyRepo := &memCurrencyRepo{store: store}
	rateRepo := &memRateRepo{store: store}
	transferRepo := &memTransferRepo{store: store}
	revenueRepo := &memRevenueRepo{store: store}
	taskRepo := &memTaskRepo{store: store}
	auditRepo := &memAuditRepo{store: store}
	transactor := &memTransactor{store: store}

	lockStore := redisStorage.NewLockStore(rdb)

	// cheap Argon2 costs for the stored hash; verification reads them back
	hash, err := service.NewArgon2HashServiceWithParams(service.Argon2Params{Time: 1, MemoryKiB: 8 * 1024, Threads: 1}).
		Hash(operatorPassword)
	require.NoError(t, err)

	tokenSvc := service.NewJWTTokenService("integration-jwt-secret-0123456789", time.Hour, "fx-liquidity-engine")
	authSvc := service.NewAuthService(
		config.OperatorConfig{Username: operatorUser, PasswordHash: hash},
		service.NewArgon2HashService(), tokenSvc, log,
	)

	engine := testEngineConfig()
	quoteSvc := service.NewQuoteService(rateRepo, engine)
	rateSvc := service.NewRateService(rateRepo, log)
	transferSvc := service.NewTransferService(
		transferRepo, currencyRepo, revenueRepo, taskRepo,
		quoteSvc, redisStorage.NewIdempotencyCache(rdb), transactor, log,
	)
	rebalanceSvc := service.NewRebalanceService(currencyRepo, transferRepo, rateRepo, transactor, engine, log)
	scheduler := service.NewRebalanceScheduler(rebalanceSvc, lockStore,
		config.RebalanceConfig{Enabled: false, LockTTL: time.Minute}, log)

	// JPY and AUD have no settlement time, so the mock provider rejects them
	provider, err := settlement.NewProvider(config.SettlementConfig{
		Provider:       settlement.ProviderMock,
		SettlementTime: map[string]int{"USD": 0, "EUR": 0, "GBP": 0},
	}, service.NewHMACRequestSigner(), nil, log)
	require.NoError(t, err)

	worker := service.NewSettlementWorker(taskRepo, transferSvc, provider, config.WorkerConfig{
		Concurrency: 1,
		BatchSize:   50,
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		StuckAfter:  time.Minute,
	}, log)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		TransferSvc:    transferSvc,
		RateSvc:        rateSvc,
		QuoteSvc:       quoteSvc,
		ReportingSvc:   service.NewReportingService(currencyRepo, revenueRepo),
		Rebalancer:     scheduler,
		AuthSvc:        authSvc,
		TokenSvc:       tokenSvc,
		AuditSvc:       service.NewAuditService(auditRepo, log),
		RateLimitStore: redisStorage.NewRateLimitStore(rdb),
		HealthCheckers: []ports.HealthChecker{redisStorage.NewHealthCheck(rdb)},
		Mode:           gin.TestMode,
		Logger:         log,
	})

	app := &testApp{
		server:    httptest.NewServer(router),
		redis:     mr,
		store:     store,
		tasks:     taskRepo,
		audits:    auditRepo,
		locks:     lockStore,
		worker:    worker,
		seeds:     service.NewSeedService(currencyRepo, log),
		rebalance: scheduler,
	}
	t.Cleanup(func() {
		app.server.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return app
}

// seed creates pools from name/balance pairs.
func (a *testApp) seed(t *testing.T, pools map[string]string) {
	t.Helper()
	file := &service.SeedFile{}
	for name, balance := range pools {
		file.Currencies = append(file.Currencies, service.SeedCurrency{Name: name, InitialBalance: balance})
	}
	_, err := a.seeds.Apply(context.Background(), file)
	require.NoError(t, err)
}

// settle drains every due settlement task synchronously.
func (a *testApp) settle(t *testing.T) int {
	t.Helper()
	total := 0
	for {
		n, err := a.worker.ProcessBatch(context.Background())
		require.NoError(t, err)
		if n == 0 {
			return total
		}
		total += n
	}
}

type apiResponse struct {
	status    int
	Data      json.RawMessage `json:"data"`
	ErrorCode string          `json:"error_code"`
	Message   string          `json:"message"`
}

func (r apiResponse) decode(t *testing.T, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.Data, v), string(r.Data))
}

func (a *testApp) do(t *testing.T, method, path string, body interface{}, headers map[string]string) apiResponse {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := apiResponse{status: resp.StatusCode}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (a *testApp) operatorToken(t *testing.T) map[string]string {
	t.Helper()
	resp := a.do(t, http.MethodPost, "/api/v1/auth/token",
		map[string]string{"username": operatorUser, "password": operatorPassword}, nil)
	require.Equal(t, http.StatusOK, resp.status, resp.Message)

	var tok struct {
		Token string `json:"token"`
	}
	resp.decode(t, &tok)
	return map[string]string{"Authorization": "Bearer " + tok.Token}
}

func (a *testApp) publishRate(t *testing.T, auth map[string]string, pair, rate string) {
	t.Helper()
	resp := a.do(t, http.MethodPost, "/api/v1/rates", map[string]string{"pair": pair, "rate": rate}, auth)
	require.Equal(t, http.StatusCreated, resp.status, resp.Message)
}

func transferBody(reference, amount, src, dst string) map[string]string {
	return map[string]string{
		"narration":            "integration transfer",
		"source":               "acct-src-001",
		"source_currency":      src,
		"source_amount":        amount,
		"destination":          "acct-dst-001",
		"destination_currency": dst,
		"reference":            reference,
	}
}

func idem(key string) map[string]string {
	return map[string]string{"Idempotency-Key": key}
}

type poolView struct {
	Name               string `json:"name"`
	AvailableLiquidity string `json:"available_liquidity"`
	LedgerLiquidity    string `json:"ledger_liquidity"`
	InFlight           string `json:"in_flight"`
}

func (a *testApp) pools(t *testing.T, auth map[string]string) map[string]poolView {
	t.Helper()
	resp := a.do(t, http.MethodGet, "/api/v1/currencies", nil, auth)
	require.Equal(t, http.StatusOK, resp.status, resp.Message)

	var list []poolView
	resp.decode(t, &list)
	out := make(map[string]poolView, len(list))
	for _, p := range list {
		out[p.Name] = p
	}
	return out
}
