package finnhub

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"tickerhub/internal/application"
	"tickerhub/internal/infrastructure/exchange"
)

var pongFrame = []byte(`{"type":"pong"}`)

// TradeFeed is the Finnhub trade stream protocol. It needs an API key; without
// one the upstream is unavailable and never dialed.
type TradeFeed struct {
	wsURL  string
	apiKey string
}

func NewTradeFeed(wsURL, apiKey string) *TradeFeed {
	return &TradeFeed{
		wsURL:  strings.TrimSpace(wsURL),
		apiKey: strings.TrimSpace(apiKey),
	}
}

func (f *TradeFeed) Name() string { return application.UpstreamFinnhub }

func (f *TradeFeed) Validate() error {
	if f.apiKey == "" {
		return fmt.Errorf("finnhub api key missing: %w", exchange.ErrUnavailable)
	}
	if f.wsURL == "" {
		return fmt.Errorf("finnhub ws_url empty: %w", exchange.ErrUnavailable)
	}
	return nil
}

func (f *TradeFeed) URL() (string, error) {
	if err := f.Validate(); err != nil {
		return "", err
	}
	return exchange.BuildQueryURL(f.wsURL, "", url.Values{"token": {f.apiKey}})
}

type subReq struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

func (f *TradeFeed) SubscribeFrame(symbol string) ([]byte, error) {
	return frame("subscribe", symbol)
}

func (f *TradeFeed) UnsubscribeFrame(symbol string) ([]byte, error) {
	return frame("unsubscribe", symbol)
}

func (f *TradeFeed) PongFrame() []byte { return pongFrame }

func frame(typ, symbol string) ([]byte, error) {
	if strings.TrimSpace(symbol) == "" {
		return nil, fmt.Errorf("finnhub: empty symbol")
	}
	return json.Marshal(subReq{Type: typ, Symbol: symbol})
}

var _ exchange.Protocol = (*TradeFeed)(nil)
