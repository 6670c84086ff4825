package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickerhub/internal/application/port"
	"tickerhub/internal/application/service"
	"tickerhub/internal/domain"
)

type fakeStatus struct{}

func (fakeStatus) Upstreams() []service.UpstreamStatus {
	return []service.UpstreamStatus{{Name: "binance", State: "connected", Connected: true, Available: true}}
}

type fakeSearch struct{ query string }

func (f *fakeSearch) Search(_ context.Context, q string) []port.SymbolMatch {
	f.query = q
	return []port.SymbolMatch{{Symbol: "AAPL", Description: "Apple Inc", Source: "finnhub"}}
}

func newTestServer(t *testing.T, deps Deps) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewHandler(deps))
	t.Cleanup(srv.Close)
	return srv
}

func seededBoard() *domain.Board {
	b := domain.NewBoard()
	b.ApplyTick(domain.NewPriceTick("BINANCE:BTC-USD", 70000, 1000, 0.5, nil))
	b.ApplyTick(domain.NewPriceTick("BINANCE:BTC-USD", 71400, 2000, 0.2, nil))
	b.ApplyTick(domain.NewPriceTick("AAPL", 189.5, 1000, 10, nil))
	return b
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestListAndGetPrices(t *testing.T) {
	srv := newTestServer(t, Deps{Board: seededBoard()})

	resp := do(t, http.MethodGet, srv.URL+"/api/prices", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var all []PriceView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&all))
	require.Len(t, all, 2)
	assert.Equal(t, "AAPL", all[0].Symbol)

	resp = do(t, http.MethodGet, srv.URL+"/api/prices/binance:btc-usd", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var btc PriceView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&btc))
	assert.Equal(t, 71400.0, btc.Price)
	assert.InDelta(t, 2.0, btc.Change, 1e-9)
	assert.Equal(t, 0.2, btc.Volume)
	assert.Equal(t, "up", btc.Direction)
	assert.False(t, btc.Stale)

	resp = do(t, http.MethodGet, srv.URL+"/api/prices/NOPE", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHistoryEndpoints(t *testing.T) {
	board := seededBoard()
	srv := newTestServer(t, Deps{Board: board})

	resp := do(t, http.MethodGet, srv.URL+"/api/prices/BINANCE:BTC-USD/history?limit=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Symbol  string                `json:"symbol"`
		History []domain.HistoryPoint `json:"history"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.History, 1)
	assert.Equal(t, 71400.0, body.History[0].Price)

	resp = do(t, http.MethodGet, srv.URL+"/api/prices/AAPL/history?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodDelete, srv.URL+"/api/prices/BINANCE:BTC-USD/history", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, board.GetHistory("BINANCE:BTC-USD", 0))
	assert.Len(t, board.GetHistory("AAPL", 0), 1)
	assert.Equal(t, 71400.0, board.GetPrice("BINANCE:BTC-USD"))

	resp = do(t, http.MethodDelete, srv.URL+"/api/history", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, board.GetHistory("AAPL", 0))

	resp = do(t, http.MethodDelete, srv.URL+"/api/prices", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, board.Symbols())
	assert.Zero(t, board.GetPrice("AAPL"))
}

func TestStaleFlag(t *testing.T) {
	now := time.UnixMilli(10_000)
	board := domain.NewBoard(domain.WithClock(func() time.Time { return now }))
	board.ApplyTick(domain.NewPriceTick("AAPL", 1, 1, 0, nil))
	now = now.Add(2 * time.Second)

	srv := newTestServer(t, Deps{Board: board, StaleAfter: time.Second})
	resp := do(t, http.MethodGet, srv.URL+"/api/prices/AAPL", "")
	var v PriceView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	assert.True(t, v.Stale)
}

func TestWatchlistEndpoints(t *testing.T) {
	wl := service.NewWatchlistService(nil, nil, service.WithDefaultSymbols([]string{"AAPL"}))
	srv := newTestServer(t, Deps{Board: domain.NewBoard(), Watchlist: wl})

	resp := do(t, http.MethodPost, srv.URL+"/api/watchlist", `{"symbol":"msft"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"AAPL", "MSFT"}, wl.Symbols())

	resp = do(t, http.MethodPost, srv.URL+"/api/watchlist", `{"symbol":"BINANCE:"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/api/watchlist", `{"ticker":"X"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodDelete, srv.URL+"/api/watchlist/aapl", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got map[string][]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, []string{"MSFT"}, got["symbols"])

	resp = do(t, http.MethodDelete, srv.URL+"/api/watchlist/AAPL", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatusSearchAndMetrics(t *testing.T) {
	search := &fakeSearch{}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("tickerhub_ticks_total 1\n"))
	})
	srv := newTestServer(t, Deps{Board: domain.NewBoard(), Status: fakeStatus{}, Search: search, Metrics: metrics})

	resp := do(t, http.MethodGet, srv.URL+"/api/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status []service.UpstreamStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	require.Len(t, status, 1)
	assert.True(t, status[0].Connected)

	resp = do(t, http.MethodGet, srv.URL+"/api/search?q=apple", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "apple", search.query)

	resp = do(t, http.MethodGet, srv.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestOptionalDepsMissing(t *testing.T) {
	srv := newTestServer(t, Deps{Board: domain.NewBoard()})

	for _, path := range []string{"/api/status", "/api/watchlist", "/api/search?q=x"} {
		resp := do(t, http.MethodGet, srv.URL+path, "")
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, path)
	}
	resp := do(t, http.MethodGet, srv.URL+"/metrics", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWriteJSONEncodeFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]float64{"price": math.Inf(1)})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["error"])
}

func TestListPricesIgnoresNonFiniteTick(t *testing.T) {
	board := seededBoard()
	board.ApplyTick(domain.NewPriceTick("AAPL", math.Inf(1), 3000, 1, nil))
	srv := newTestServer(t, Deps{Board: board})

	resp := do(t, http.MethodGet, srv.URL+"/api/prices", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var all []PriceView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&all))
	require.Len(t, all, 2)
	assert.Equal(t, 189.5, all[0].Price)
}

func TestPriceViewIsConsistentUnderWrites(t *testing.T) {
	board := domain.NewBoard()
	board.ApplyTick(domain.NewPriceTick("AAPL", 1, 1, 0, nil))
	h := NewHandler(Deps{Board: board})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 2; i <= 2000; i++ {
			board.ApplyTick(domain.NewPriceTick("AAPL", float64(i), int64(i), 0, nil))
		}
	}()

	// every tick raises the price by 1, so change must equal 100/(price-1)
	for i := 0; i < 500; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/prices/AAPL", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var v PriceView
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
		if v.Price < 2 {
			continue
		}
		want := 100 / (v.Price - 1)
		require.InDelta(t, want, v.Change, 1e-9, fmt.Sprintf("price %v", v.Price))
	}
	wg.Wait()
}
