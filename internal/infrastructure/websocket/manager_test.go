package websocket

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickerhub/internal/application/port"
	"tickerhub/internal/infrastructure/config"
	"tickerhub/internal/infrastructure/exchange"
)

type recordingDialer struct {
	mu   sync.Mutex
	urls []string
}

func (d *recordingDialer) Dial(_ context.Context, url string) (exchange.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	return nil, errors.New("refused")
}

func (d *recordingDialer) URLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

type nopSink struct{}

func (nopSink) ApplyTick(port.PriceTick) {}

func testFeeds() map[string]config.FeedConfig {
	return map[string]config.FeedConfig{
		"binance": {Enabled: true, WsURL: "wss://binance.test/ws"},
		"finnhub": {Enabled: true, WsURL: "wss://finnhub.test"},
		"kraken":  {Enabled: true, WsURL: "wss://kraken.test"},
	}
}

func TestManagerUpstreamsSkipsUnregistered(t *testing.T) {
	feeds := testFeeds()
	feeds["finnhub"] = config.FeedConfig{Enabled: false}
	m := NewManager(feeds, nopSink{})

	assert.Equal(t, []string{"binance"}, m.Upstreams())

	// the manager keeps its own copy
	feeds["finnhub"] = config.FeedConfig{Enabled: true, WsURL: "wss://x"}
	assert.Equal(t, []string{"binance"}, m.Upstreams())
}

func TestManagerBuildUnknownUpstream(t *testing.T) {
	m := NewManager(testFeeds(), nopSink{})
	_, err := m.Build("kraken", nil)
	require.Error(t, err)
}

func TestManagerBuildDialsConfiguredURL(t *testing.T) {
	d := &recordingDialer{}
	var mu sync.Mutex
	var states []port.ConnectionState
	listener := func(_ string, s port.ConnectionState, _ bool) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}

	m := NewManager(testFeeds(), nopSink{}, WithDialer(d))
	conn, err := m.Build("binance", listener)
	require.NoError(t, err)
	assert.Equal(t, "binance", conn.Name())
	assert.True(t, conn.Available())

	conn.Subscribe("BINANCE:BTC-USD")
	conn.Connect(context.Background())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"wss://binance.test/ws"}, d.URLs())
	assert.Equal(t, port.StateDisconnected, conn.State())
	assert.Equal(t, []string{"BINANCE:BTC-USD"}, conn.Subscriptions())
	conn.Stop()
}

func TestManagerFinnhubWithoutKeyIsUnavailable(t *testing.T) {
	d := &recordingDialer{}
	m := NewManager(testFeeds(), nopSink{}, WithDialer(d))

	conn, err := m.Build("finnhub", nil)
	require.NoError(t, err)
	assert.False(t, conn.Available())

	conn.Subscribe("AAPL")
	conn.Connect(context.Background())
	time.Sleep(20 * time.Millisecond)

	assert.Empty(t, d.URLs())
	assert.Equal(t, port.StateDisconnected, conn.State())
	assert.Equal(t, []string{"AAPL"}, conn.Subscriptions())
}

func TestManagerDisabledFeedStillRoutable(t *testing.T) {
	feeds := testFeeds()
	feeds["binance"] = config.FeedConfig{Enabled: false, WsURL: "wss://binance.test/ws"}
	m := NewManager(feeds, nopSink{})

	conn, err := m.Build("binance", nil)
	require.NoError(t, err)
	assert.False(t, conn.Available())
}
