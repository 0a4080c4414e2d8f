package integration

import (
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Each transfer needs 98 EUR, so a 1000 EUR pool fits exactly ten.
func TestIntegration_ConcurrentTransfersNeverOverdraw(t *testing.T) {
	app := newTestApp(t)
	app.seed(t, map[string]string{"USD": "1000000", "EUR": "1000"})
	auth := app.operatorToken(t)
	app.publishRate(t, auth, "USD/EUR", "1")

	const n = 20
	statuses := make([]int, n)
	codes := make([]string, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp := app.do(t, http.MethodPost, "/api/v1/transfers",
				transferBody(fmt.Sprintf("INV-C%03d", i), "100", "USD", "EUR"),
				idem(fmt.Sprintf("idem-c%03d", i)))
			statuses[i] = resp.status
			codes[i] = resp.ErrorCode
		}(i)
	}
	wg.Wait()

	created, rejected := 0, 0
	for i := range statuses {
		switch statuses[i] {
		case http.StatusCreated:
			created++
		case http.StatusUnprocessableEntity:
			assert.Equal(t, "TRF_003", codes[i])
			rejected++
		default:
			t.Errorf("request %d: unexpected status %d (%s)", i, statuses[i], codes[i])
		}
	}
	assert.Equal(t, 10, created)
	assert.Equal(t, 10, rejected)

	eur := app.pools(t, auth)["EUR"]
	assert.Equal(t, "20", eur.AvailableLiquidity)
	assert.Equal(t, "980", eur.InFlight)
	assert.False(t, decimal.RequireFromString(eur.AvailableLiquidity).IsNegative())

	// settling everything leaves ledger and available in agreement
	assert.Equal(t, 10, app.settle(t))
	eur = app.pools(t, auth)["EUR"]
	assert.Equal(t, "20", eur.AvailableLiquidity)
	assert.Equal(t, "20", eur.LedgerLiquidity)
}

func TestIntegration_ConcurrentSameIdempotencyKey(t *testing.T) {
	app := newTestApp(t)
	app.seed(t, map[string]string{"USD": "1000000", "EUR": "1000"})
	auth := app.operatorToken(t)
	app.publishRate(t, auth, "USD/EUR", "1")

	const n = 10
	statuses := make(chan int, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// distinct references so only the key can collide
			resp := app.do(t, http.MethodPost, "/api/v1/transfers",
				transferBody(fmt.Sprintf("INV-K%03d", i), "100", "USD", "EUR"),
				idem("idem-shared"))
			statuses <- resp.status
		}(i)
	}
	wg.Wait()
	close(statuses)

	created, conflicts := 0, 0
	for s := range statuses {
		switch s {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
			conflicts++
		}
	}
	require.Equal(t, 1, created)
	assert.Equal(t, n-1, conflicts)

	assert.Equal(t, "902", app.pools(t, auth)["EUR"].AvailableLiquidity)
	assert.Equal(t, 1, app.settle(t))
}
