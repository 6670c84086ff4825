package binance

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"tickerhub/internal/application"
	"tickerhub/internal/infrastructure/exchange"
)

// TickerFeed is the Binance 24hr ticker stream protocol.
// ws_url is the raw stream endpoint, e.g. wss://stream.binance.com:9443/ws
type TickerFeed struct {
	wsURL  string
	nextID atomic.Uint64
}

func NewTickerFeed(wsURL string) *TickerFeed {
	f := &TickerFeed{wsURL: strings.TrimSpace(wsURL)}
	// request ids only need to be unique for the lifetime of the process
	f.nextID.Store(uint64(time.Now().UnixMilli()))
	return f
}

func (f *TickerFeed) Name() string { return application.UpstreamBinance }

func (f *TickerFeed) Validate() error {
	if f.wsURL == "" {
		return fmt.Errorf("binance ws_url empty: %w", exchange.ErrUnavailable)
	}
	return nil
}

func (f *TickerFeed) URL() (string, error) {
	if err := f.Validate(); err != nil {
		return "", err
	}
	return f.wsURL, nil
}

type subReq struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     uint64   `json:"id"`
}

func (f *TickerFeed) SubscribeFrame(symbol string) ([]byte, error) {
	return f.frame("SUBSCRIBE", symbol)
}

func (f *TickerFeed) UnsubscribeFrame(symbol string) ([]byte, error) {
	return f.frame("UNSUBSCRIBE", symbol)
}

// Binance answers websocket ping frames itself; there is no in-band keepalive.
func (f *TickerFeed) PongFrame() []byte { return nil }

// StreamName converts a canonical symbol to its ticker stream, e.g. BINANCE:BTC-USD -> btcusdt@ticker
func StreamName(symbol string) (string, error) {
	venue, ok := exchange.BinanceSymbols().ToVenue(symbol)
	if !ok {
		return "", fmt.Errorf("binance: cannot map symbol %q", symbol)
	}
	return strings.ToLower(venue) + "@ticker", nil
}

func (f *TickerFeed) frame(method, symbol string) ([]byte, error) {
	stream, err := StreamName(symbol)
	if err != nil {
		return nil, err
	}
	return json.Marshal(subReq{
		Method: method,
		Params: []string{stream},
		ID:     f.nextID.Add(1),
	})
}

var _ exchange.Protocol = (*TickerFeed)(nil)
