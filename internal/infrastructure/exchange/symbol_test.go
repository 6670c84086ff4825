package exchange

import (
	"testing"

	"tickerhub/internal/application"
)

func TestCommonSymbolConverterToCanonical(t *testing.T) {
	c := NewCommonSymbolConverter("BINANCE", "USDT", "USD")
	cases := map[string]string{
		"BTCUSDT": "BINANCE:BTC-USD",
		"ethusdt": "BINANCE:ETH-USD",
		"ETHBTC":  "BINANCE:ETH-BTC",
		"SOLUSDC": "BINANCE:SOL-USDC",
		"PEPEFOO": "BINANCE:PEPEFOO",
	}
	for in, want := range cases {
		got, ok := c.ToCanonical(in)
		if !ok || got != want {
			t.Errorf("ToCanonical(%q) = %q,%v want %q", in, got, ok, want)
		}
	}
	if _, ok := c.ToCanonical("  "); ok {
		t.Errorf("empty symbol should not convert")
	}
}

func TestCommonSymbolConverterToVenue(t *testing.T) {
	c := NewCommonSymbolConverter("BINANCE", "USDT", "USD")
	cases := map[string]string{
		"BINANCE:BTC-USD": "BTCUSDT",
		"binance:eth-usd": "ETHUSDT",
		"BINANCE:ETH-BTC": "ETHBTC",
		"BINANCE:BTCUSDT": "BTCUSDT",
	}
	for in, want := range cases {
		got, ok := c.ToVenue(in)
		if !ok || got != want {
			t.Errorf("ToVenue(%q) = %q,%v want %q", in, got, ok, want)
		}
	}
	for _, bad := range []string{"AAPL", "COINBASE:BTC-USD", "BINANCE:", "BINANCE:-USD"} {
		if _, ok := c.ToVenue(bad); ok {
			t.Errorf("ToVenue(%q) should fail", bad)
		}
	}
}

func TestConverterRoundTrip(t *testing.T) {
	c := BinanceSymbols()
	for _, venue := range []string{"BTCUSDT", "ETHUSDT", "BNBBTC"} {
		canon, _ := c.ToCanonical(venue)
		back, ok := c.ToVenue(canon)
		if !ok || back != venue {
			t.Errorf("round trip %q -> %q -> %q", venue, canon, back)
		}
	}
}

func TestCanonicalizeMatchesTickKey(t *testing.T) {
	c := BinanceSymbols()
	cases := map[string]string{
		"BINANCE:ETHBTC":   "BINANCE:ETH-BTC",
		"BINANCE:BTCUSDT":  "BINANCE:BTC-USD",
		"binance:btc-usd":  "BINANCE:BTC-USD",
		"BINANCE:BTC-USDT": "BINANCE:BTC-USD",
		"BINANCE:PEPEFOO":  "BINANCE:PEPEFOO",
	}
	for in, want := range cases {
		got, ok := c.Canonicalize(in)
		if !ok || got != want {
			t.Errorf("Canonicalize(%q) = %q,%v want %q", in, got, ok, want)
			continue
		}

		// the venue symbol subscribed for in must come back under the same key
		venue, _ := c.ToVenue(got)
		raw := []byte(`{"e":"24hrTicker","E":1,"s":"` + venue + `","c":"0.05","v":"1"}`)
		ticks := NormalizeRaw(application.UpstreamBinance, raw)
		if len(ticks) != 1 || ticks[0].Symbol != got {
			t.Errorf("subscribed %q as %q but ticks land under %v", in, got, ticks)
		}
	}
	for _, bad := range []string{"AAPL", "BINANCE:", "COINBASE:BTC-USD"} {
		if _, ok := c.Canonicalize(bad); ok {
			t.Errorf("Canonicalize(%q) should fail", bad)
		}
	}
}
