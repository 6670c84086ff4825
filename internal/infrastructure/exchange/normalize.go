package exchange

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"tickerhub/internal/application"
	"tickerhub/internal/domain"
)

// ErrMalformed is returned by Decode for frames that are not valid JSON.
var ErrMalformed = errors.New("malformed message")

// binanceSymbols maps Binance compact symbols into the BINANCE namespace.
var binanceSymbols = NewCommonSymbolConverter(application.PrefixBinance, "USDT", "USD")

// BinanceSymbols returns the converter used for Binance symbols.
func BinanceSymbols() *CommonSymbolConverter { return binanceSymbols }

// RawMessage is a decoded upstream frame. The concrete types below are the
// only variants; Normalize switches over all of them.
type RawMessage interface {
	Upstream() string
	// CarriesTicks reports whether the frame is expected to produce ticks.
	CarriesTicks() bool
}

// BinanceTicker is a Binance 24hr ticker event (<symbol>@ticker).
// Keys differing only in case ("c"/"C", "p"/"P") are all declared so the
// case-insensitive fallback of encoding/json never crosses them.
type BinanceTicker struct {
	EventType     string `json:"e"`
	EventTime     int64  `json:"E"`
	Symbol        string `json:"s"`
	Close         string `json:"c"`
	CloseTime     int64  `json:"C"`
	Volume        string `json:"v"`
	PriceChange   string `json:"p"`
	ChangePercent string `json:"P"`
}

// FinnhubTrade is one entry of a Finnhub trade frame.
type FinnhubTrade struct {
	Symbol     string          `json:"s"`
	Price      json.RawMessage `json:"p"`
	Time       int64           `json:"t"`
	Volume     json.RawMessage `json:"v"`
	Conditions []string        `json:"c"`
}

// FinnhubTrades is a Finnhub {"type":"trade","data":[...]} frame.
type FinnhubTrades struct {
	Trades []FinnhubTrade
}

// Keepalive is an in-band ping that must be answered with the protocol's pong.
type Keepalive struct {
	From string
}

// Control is any frame without price data: acks, errors, unknown types.
type Control struct {
	From   string
	Kind   string
	Detail string
}

func (BinanceTicker) Upstream() string   { return application.UpstreamBinance }
func (BinanceTicker) CarriesTicks() bool { return true }
func (FinnhubTrades) Upstream() string   { return application.UpstreamFinnhub }
func (FinnhubTrades) CarriesTicks() bool { return true }
func (k Keepalive) Upstream() string     { return k.From }
func (Keepalive) CarriesTicks() bool     { return false }
func (c Control) Upstream() string       { return c.From }
func (Control) CarriesTicks() bool       { return false }

// Decode maps a raw frame from upstream into its RawMessage variant.
func Decode(upstream string, raw []byte) (RawMessage, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%s: %w", upstream, ErrMalformed)
	}
	switch upstream {
	case application.UpstreamBinance:
		return decodeBinance(raw)
	case application.UpstreamFinnhub:
		return decodeFinnhub(raw)
	default:
		return nil, fmt.Errorf("decode: unknown upstream %q", upstream)
	}
}

func decodeBinance(raw []byte) (RawMessage, error) {
	res := gjson.ParseBytes(raw)
	if e := res.Get("error"); e.Exists() {
		return Control{From: application.UpstreamBinance, Kind: "error", Detail: e.Raw}, nil
	}
	if res.Get("id").Exists() && !res.Get("s").Exists() {
		return Control{From: application.UpstreamBinance, Kind: "ack", Detail: res.Get("id").String()}, nil
	}

	// combined stream payloads wrap the event in {"stream":..., "data":{...}}
	body := raw
	if data := res.Get("data"); data.IsObject() && res.Get("stream").Exists() {
		body = []byte(data.Raw)
	}

	var msg BinanceTicker
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("binance ticker: %w", err)
	}
	return msg, nil
}

func decodeFinnhub(raw []byte) (RawMessage, error) {
	typ := gjson.GetBytes(raw, "type").String()
	switch typ {
	case "ping":
		return Keepalive{From: application.UpstreamFinnhub}, nil
	case "trade":
		var frame struct {
			Data []FinnhubTrade `json:"data"`
		}
		if err := json.Unmarshal(raw, &frame); err != nil {
			return nil, fmt.Errorf("finnhub trade: %w", err)
		}
		return FinnhubTrades{Trades: frame.Data}, nil
	case "error":
		return Control{From: application.UpstreamFinnhub, Kind: "error", Detail: gjson.GetBytes(raw, "msg").String()}, nil
	default:
		return Control{From: application.UpstreamFinnhub, Kind: typ}, nil
	}
}

// Normalize converts a decoded frame into zero or more canonical ticks.
// Entries with a missing symbol or an unusable price or volume are dropped.
func Normalize(msg RawMessage) []domain.PriceTick {
	switch m := msg.(type) {
	case BinanceTicker:
		t, ok := normalizeBinance(m)
		if !ok {
			log.Debug().Str("feed", m.Upstream()).Str("symbol", m.Symbol).Msg("ticker dropped")
			return nil
		}
		return []domain.PriceTick{t}
	case FinnhubTrades:
		out := make([]domain.PriceTick, 0, len(m.Trades))
		for _, tr := range m.Trades {
			t, ok := normalizeFinnhub(tr)
			if !ok {
				log.Debug().Str("feed", m.Upstream()).Str("symbol", tr.Symbol).Msg("trade dropped")
				continue
			}
			out = append(out, t)
		}
		return out
	case Keepalive, Control:
		return nil
	default:
		return nil
	}
}

// NormalizeRaw decodes and normalizes in one step. Undecodable frames yield no ticks.
func NormalizeRaw(upstream string, raw []byte) []domain.PriceTick {
	msg, err := Decode(upstream, raw)
	if err != nil {
		log.Debug().Str("feed", upstream).Err(err).Msg("frame dropped")
		return nil
	}
	return Normalize(msg)
}

func normalizeBinance(m BinanceTicker) (domain.PriceTick, bool) {
	if strings.TrimSpace(m.Symbol) == "" || strings.TrimSpace(m.Close) == "" {
		return domain.PriceTick{}, false
	}
	sym, ok := binanceSymbols.ToCanonical(m.Symbol)
	if !ok {
		return domain.PriceTick{}, false
	}
	price, ok := parsePositive(m.Close)
	if !ok {
		return domain.PriceTick{}, false
	}
	volume, ok := parseOptional(m.Volume)
	if !ok {
		return domain.PriceTick{}, false
	}

	t := domain.NewPriceTick(sym, price, m.EventTime, volume, nil)
	if m.ChangePercent != "" {
		if pct, err := decimal.NewFromString(strings.TrimSpace(m.ChangePercent)); err == nil {
			if f, ok := finite(pct); ok {
				t = t.WithChange24h(f)
			}
		}
	}
	return t, true
}

func normalizeFinnhub(tr FinnhubTrade) (domain.PriceTick, bool) {
	sym := strings.TrimSpace(tr.Symbol)
	if sym == "" {
		return domain.PriceTick{}, false
	}
	// canonical already; only reject a namespace without a body
	if prefix, body := domain.SplitSymbol(sym); prefix != "" && body == "" {
		return domain.PriceTick{}, false
	}
	price, ok := parsePositive(rawNumber(tr.Price))
	if !ok {
		return domain.PriceTick{}, false
	}
	volume, ok := parseOptional(rawNumber(tr.Volume))
	if !ok {
		return domain.PriceTick{}, false
	}
	return domain.NewPriceTick(sym, price, tr.Time, volume, tr.Conditions), true
}

// rawNumber accepts both JSON numbers and numeric strings.
func rawNumber(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "null" {
		return ""
	}
	return strings.Trim(s, `"`)
}

func parsePositive(s string) (float64, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || !d.IsPositive() {
		return 0, false
	}
	return finite(d)
}

// parseOptional treats an absent value as 0 but rejects garbage and negatives.
func parseOptional(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, true
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return 0, false
	}
	return finite(d)
}

// finite converts d, rejecting values outside the float64 range such as 1e400.
func finite(d decimal.Decimal) (float64, bool) {
	f := d.InexactFloat64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}
