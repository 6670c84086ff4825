package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickerhub/internal/application/port"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestObserveState(t *testing.T) {
	m := New()
	var listener port.StateListener = m.ObserveState

	listener("binance", port.StateConnecting, false)
	listener("binance", port.StateConnected, false)
	body := scrape(t, m)
	assert.Contains(t, body, `tickerhub_upstream_connected{upstream="binance"} 1`)
	assert.Contains(t, body, `tickerhub_connection_attempts_total{upstream="binance"} 1`)

	listener("binance", port.StateDisconnected, false)
	assert.Contains(t, scrape(t, m), `tickerhub_upstream_connected{upstream="binance"} 0`)
}

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveTick("finnhub")
	m.ObserveTick("finnhub")
	m.ObserveDrop("finnhub")

	body := scrape(t, m)
	assert.Contains(t, body, `tickerhub_ticks_total{upstream="finnhub"} 2`)
	assert.Contains(t, body, `tickerhub_dropped_messages_total{upstream="finnhub"} 1`)
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.ObserveTick("binance")
	assert.NotContains(t, scrape(t, b), `tickerhub_ticks_total{upstream="binance"}`)
}
